package callflow

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/konclui/speedbridge/pkg/bridge"
)

// Server owns the HTTP surface: the trigger endpoints that create calls,
// the telephony control callbacks, and the media stream socket.
type Server struct {
	PublicHost string

	Dispatcher *bridge.Dispatcher
	Detections *bridge.DetectionCache
	Detector   bridge.SpeechDetector
	Twilio     *TwilioClient
	Sessions   bridge.SessionDeps

	Logger bridge.Logger
}

// TriggerRequest starts the announce/verify/dial flow. Telephony
// credentials ride along on each request and are never stored.
type TriggerRequest struct {
	LeadName        string       `json:"lead_name"`
	LeadPhone       string       `json:"lead_phone"`
	SDRPhone        string       `json:"sdr_phone"`
	DataAgendamento string       `json:"data_agendamento"`
	WebhookURL      string       `json:"n8n_url"`
	Token           string       `json:"token"`
	LeadID          string       `json:"lead_id"`
	OpenAIKey       string       `json:"openai_key"`
	Twilio          TwilioConfig `json:"twilio"`
}

// speedDialRequest is the same trigger with the field names the upstream
// automation flow uses.
type speedDialRequest struct {
	NomeLead        string       `json:"nome_lead"`
	TelefoneLead    string       `json:"telefone_lead"`
	TelefoneSDR     string       `json:"telefone_sdr"`
	DataAgendamento string       `json:"data_agendamento"`
	N8NURL          string       `json:"n8n_url"`
	Token           string       `json:"token"`
	LeadID          string       `json:"lead_id"`
	OpenAIKey       string       `json:"openai_key"`
	Twilio          TwilioConfig `json:"twilio"`
}

// Routes wires every endpoint onto a fresh mux.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/trigger-call", s.handleTriggerCall)
	mux.HandleFunc("/webhook/speed-dial", s.handleSpeedDial)
	mux.HandleFunc("/connect-lead", s.handleConnectLead)
	mux.HandleFunc("/verify-sdr", s.handleVerifySDR)
	mux.HandleFunc("/call-status", s.handleCallStatus)
	mux.HandleFunc("/incoming", s.handleIncoming)
	mux.HandleFunc("/media-stream", s.handleMediaStream)
	mux.HandleFunc("/", s.handleRoot)
	return mux
}

func (s *Server) logger() bridge.Logger {
	if s.Logger == nil {
		return &bridge.NoOpLogger{}
	}
	return s.Logger
}

func (s *Server) handleTriggerCall(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req TriggerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"success": false, "error": "invalid JSON body"})
		return
	}
	s.startCall(w, r.Context(), req)
}

func (s *Server) handleSpeedDial(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req speedDialRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"success": false, "error": "invalid JSON body"})
		return
	}
	s.startCall(w, r.Context(), TriggerRequest{
		LeadName:        req.NomeLead,
		LeadPhone:       req.TelefoneLead,
		SDRPhone:        req.TelefoneSDR,
		DataAgendamento: req.DataAgendamento,
		WebhookURL:      req.N8NURL,
		Token:           req.Token,
		LeadID:          req.LeadID,
		OpenAIKey:       req.OpenAIKey,
		Twilio:          req.Twilio,
	})
}

func (s *Server) startCall(w http.ResponseWriter, ctx context.Context, req TriggerRequest) {
	callID := newCallID()
	leadPhone := SanitizePhone(req.LeadPhone)
	sdrPhone := SanitizePhone(req.SDRPhone)

	// Every attempt that reaches this point produces exactly one webhook
	// event: a fallback here, or the media session's completion later.
	reject := func(status int, reason, message string) {
		if s.Dispatcher != nil {
			s.Dispatcher.DispatchFallback(ctx, bridge.FallbackParams{
				CallID:      callID,
				Token:       req.Token,
				LeadID:      req.LeadID,
				WebhookURL:  req.WebhookURL,
				ErrorReason: reason,
			})
		}
		writeJSON(w, status, map[string]interface{}{"success": false, "error": message, "call_id": callID})
	}

	if leadPhone == "" || sdrPhone == "" {
		reject(http.StatusBadRequest, "missing_phone_numbers", "lead_phone and sdr_phone are required")
		return
	}
	if !req.Twilio.valid() {
		reject(http.StatusBadRequest, "missing_credentials", "twilio credentials are required")
		return
	}
	if s.Twilio == nil {
		reject(http.StatusInternalServerError, "telephony_client_unavailable", "telephony client not configured")
		return
	}

	q := url.Values{}
	q.Set("call_id", callID)
	q.Set("lead_name", req.LeadName)
	q.Set("lead_phone", leadPhone)
	q.Set("data_agendamento", req.DataAgendamento)
	q.Set("n8n_url", req.WebhookURL)
	q.Set("token", req.Token)
	q.Set("lead_id", req.LeadID)
	q.Set("openai_key", req.OpenAIKey)
	q.Set("from_number", req.Twilio.FromNumber)
	encoded := q.Encode()

	controlURL := fmt.Sprintf("https://%s/connect-lead?%s", s.PublicHost, encoded)
	statusURL := fmt.Sprintf("https://%s/call-status?%s", s.PublicHost, encoded)

	callSid, err := s.Twilio.CreateCall(ctx, req.Twilio, sdrPhone, controlURL, statusURL)
	if err != nil {
		// The provider rejection is reported in-band: the caller still
		// gets a 200 with success:false and the call id to correlate the
		// fallback event.
		s.logger().Error("call creation failed", "call_id", callID, "error", err)
		if s.Dispatcher != nil {
			s.Dispatcher.DispatchFallback(ctx, bridge.FallbackParams{
				CallID:      callID,
				Token:       req.Token,
				LeadID:      req.LeadID,
				WebhookURL:  req.WebhookURL,
				ErrorReason: "twilio_api_error: " + err.Error(),
			})
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"success": false, "error": err.Error(), "call_id": callID})
		return
	}

	s.logger().Info("outbound call created", "call_id", callID, "call_sid", callSid, "sdr_phone", sdrPhone)
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "call_sid": callSid, "call_id": callID})
}

// handleConnectLead answers the SDR leg. Machine pickups short-circuit to
// a fallback event; a human gets the recording stream, the announcement
// and the confirmation gather.
func (s *Server) handleConnectLead(w http.ResponseWriter, r *http.Request) {
	r.ParseForm()
	f := r.Form

	answeredBy := f.Get("AnsweredBy")
	if strings.HasPrefix(answeredBy, "machine") || answeredBy == "fax" {
		s.logger().Warn("sdr leg answered by machine", "call_id", f.Get("call_id"), "answered_by", answeredBy)
		s.dispatchCallbackFallback(r.Context(), f, "machine_detection: "+answeredBy, "")
		writeTwiML(w, newTwiML().hangup().String())
		return
	}

	streamParams := map[string]string{
		"mode":             string(bridge.ModeBridge),
		"source":           "speed_dial",
		"call_id":          f.Get("call_id"),
		"token":            f.Get("token"),
		"lead_id":          f.Get("lead_id"),
		"n8n_url":          f.Get("n8n_url"),
		"openai_key":       f.Get("openai_key"),
		"lead_name":        f.Get("lead_name"),
		"data_agendamento": f.Get("data_agendamento"),
	}

	announcement := "Olá! Novo lead: " + f.Get("lead_name") + "."
	if v := f.Get("data_agendamento"); v != "" {
		announcement += " Agendado para " + v + "."
	} else {
		announcement += " Pediu para falar com especialista."
	}

	pass := passthroughQuery(f)
	doc := newTwiML().
		startStream(fmt.Sprintf("wss://%s/media-stream", s.PublicHost), streamParams).
		pause(1).
		say(announcement).
		gatherSpeech("/verify-sdr?"+pass, "Diga algo para confirmar que você está na linha.").
		redirect("/verify-sdr?" + pass).
		String()

	writeTwiML(w, doc)
}

// handleVerifySDR classifies the SDR's gathered speech, parks the verdict
// for the media session, and either dials the lead or hangs up.
func (s *Server) handleVerifySDR(w http.ResponseWriter, r *http.Request) {
	r.ParseForm()
	f := r.Form

	callSid := f.Get("CallSid")
	speech := strings.TrimSpace(f.Get("SpeechResult"))

	var result bridge.DetectionResult
	switch {
	case speech == "":
		result = bridge.DetectionResult{Answered: false, Reason: "no_speech_from_sdr", Confidence: 1.0}
	case s.Detector == nil:
		result = bridge.DetectionResult{Answered: false, Reason: "error: detector not configured"}
	default:
		result = s.Detector.ClassifySDRSpeech(r.Context(), speech, f.Get("openai_key"))
	}

	if s.Detections != nil && callSid != "" {
		s.Detections.Store(callSid, result)
	}
	s.logger().Info("sdr verification",
		"call_id", f.Get("call_id"), "call_sid", callSid,
		"answered", fmt.Sprintf("%t", result.Answered), "reason", result.Reason)

	if result.Answered {
		doc := newTwiML().
			say("Conectando com o lead agora.").
			dial(f.Get("from_number"), f.Get("lead_phone"), 30).
			String()
		writeTwiML(w, doc)
		return
	}

	s.dispatchCallbackFallback(r.Context(), f, "sdr_not_confirmed: "+result.Reason, "")
	doc := newTwiML().
		say("Não foi possível confirmar o atendimento. A ligação será encerrada.").
		hangup().
		String()
	writeTwiML(w, doc)
}

// handleCallStatus receives terminal status callbacks. A leg that never
// connected still produces an event downstream.
func (s *Server) handleCallStatus(w http.ResponseWriter, r *http.Request) {
	r.ParseForm()
	f := r.Form

	status := f.Get("CallStatus")
	switch status {
	case "busy", "no-answer", "canceled", "failed":
		s.logger().Warn("call ended without connecting",
			"call_id", f.Get("call_id"), "call_sid", f.Get("CallSid"), "status", status)
		s.dispatchCallbackFallback(r.Context(), f, "call_status_"+status, f.Get("SipResponseCode"))
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleIncoming(w http.ResponseWriter, r *http.Request) {
	s.writeConnectStream(w, r)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	s.writeConnectStream(w, r)
}

// writeConnectStream hands an inbound call straight to the voice agent.
// Query parameters select voice, provider and prompt overrides.
func (s *Server) writeConnectStream(w http.ResponseWriter, r *http.Request) {
	r.ParseForm()
	f := r.Form

	params := map[string]string{
		"mode":           string(bridge.ModeAgent),
		"source":         f.Get("source"),
		"provider":       f.Get("provider"),
		"voice":          f.Get("voice"),
		"elevenlabs_key": f.Get("elevenlabs_key"),
		"openai_key":     f.Get("openai_key"),
		"system_prompt":  f.Get("system_prompt"),
		"first_message":  f.Get("first_message"),
		"n8n_url":        f.Get("n8n_url"),
		"token":          f.Get("token"),
		"lead_id":        f.Get("lead_id"),
		"call_id":        f.Get("call_id"),
	}
	doc := newTwiML().
		connectStream(fmt.Sprintf("wss://%s/media-stream", s.PublicHost), params).
		String()
	writeTwiML(w, doc)
}

// handleMediaStream upgrades to the media socket and runs the per-call
// session to completion.
func (s *Server) handleMediaStream(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		s.logger().Error("media stream upgrade failed", "error", err)
		return
	}

	session := bridge.NewMediaSession(conn, s.Sessions)
	if err := session.Run(r.Context()); err != nil {
		s.logger().Warn("media session ended abnormally", "error", err)
	}
	conn.Close(websocket.StatusNormalClosure, "done")
}

func (s *Server) dispatchCallbackFallback(ctx context.Context, f url.Values, reason, sipCode string) {
	if s.Dispatcher == nil {
		return
	}
	s.Dispatcher.DispatchFallback(ctx, bridge.FallbackParams{
		CallID:          f.Get("call_id"),
		CallSid:         f.Get("CallSid"),
		Token:           f.Get("token"),
		LeadID:          f.Get("lead_id"),
		WebhookURL:      f.Get("n8n_url"),
		ErrorReason:     reason,
		SipResponseCode: sipCode,
	})
}

// passthroughQuery re-encodes only the call parameters, dropping the
// provider's own form fields so control URLs stay short.
func passthroughQuery(f url.Values) string {
	q := url.Values{}
	for _, key := range []string{
		"call_id", "lead_name", "lead_phone", "data_agendamento",
		"n8n_url", "token", "lead_id", "openai_key", "from_number",
	} {
		if v := f.Get(key); v != "" {
			q.Set(key, v)
		}
	}
	return q.Encode()
}

func newCallID() string {
	return fmt.Sprintf("%d-%s", time.Now().UnixMilli(), uuid.NewString()[:8])
}

func writeTwiML(w http.ResponseWriter, doc string) {
	w.Header().Set("Content-Type", "text/xml")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(doc))
}

func writeJSON(w http.ResponseWriter, status int, body map[string]interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
