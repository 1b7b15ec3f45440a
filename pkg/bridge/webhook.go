package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// sentinelToken reroutes events for the konclui tenant to its fixed sink.
const sentinelToken = "konclui"

const sentinelWebhookURL = "https://n8n.konclui.com.br/webhook/speed-dial-result"

// minWebhookURLLen guards against junk per-call URLs ("-", "null", ...).
const minWebhookURLLen = 12

// RealtimeMessage is one transcript line in the dispatched payload.
type RealtimeMessage struct {
	Role      string `json:"role"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// CompletionEvent is the payload POSTed to the automation endpoint once a
// media session finalizes, and (with Status "failed") on every pre-stream
// failure path.
type CompletionEvent struct {
	AssistantName    string            `json:"assistantName"`
	Transcript       string            `json:"transcript"`
	RealtimeMessages []RealtimeMessage `json:"realtime_messages"`
	RecordingURL     string            `json:"recordingUrl"`
	Timestamp        string            `json:"timestamp"`
	Status           string            `json:"status"`
	Mode             string            `json:"mode"`
	Source           string            `json:"source"`

	SDRTranscript  string `json:"sdr_transcript,omitempty"`
	LeadTranscript string `json:"lead_transcript,omitempty"`
	Token          string `json:"token,omitempty"`
	LeadID         string `json:"lead_id,omitempty"`
	CallID         string `json:"call_id,omitempty"`

	SDRAnswered            *bool   `json:"sdr_answered,omitempty"`
	SDRDetectionReason     string  `json:"sdr_detection_reason,omitempty"`
	SDRDetectionConfidence float64 `json:"sdr_detection_confidence,omitempty"`
	SDRFirstWords          string  `json:"sdr_first_words,omitempty"`

	LeadAnswered            *bool   `json:"lead_answered,omitempty"`
	LeadDetectionReason     string  `json:"lead_detection_reason,omitempty"`
	LeadDetectionConfidence float64 `json:"lead_detection_confidence,omitempty"`

	ErrorReason     string `json:"error_reason,omitempty"`
	SipResponseCode string `json:"sip_response_code,omitempty"`
	CallSid         string `json:"call_sid,omitempty"`
}

// FallbackParams describe a failed call attempt that never reached a
// normal finalize.
type FallbackParams struct {
	CallID          string
	CallSid         string
	Token           string
	LeadID          string
	WebhookURL      string
	ErrorReason     string
	SipResponseCode string
}

// Dispatcher delivers events to the automation endpoint. It never retries:
// the at-least-once property comes from the fallback coverage of every
// failure branch, not from resending.
type Dispatcher struct {
	defaultURL string
	client     *http.Client
	logger     Logger
}

func NewDispatcher(defaultURL string, logger Logger) *Dispatcher {
	if logger == nil {
		logger = &NoOpLogger{}
	}
	return &Dispatcher{
		defaultURL: defaultURL,
		client:     &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
	}
}

// Endpoint applies the selection rule: the sentinel token wins, then the
// per-call URL, then the process-wide default.
func (d *Dispatcher) Endpoint(token, callURL string) string {
	if token == sentinelToken {
		return sentinelWebhookURL
	}
	if len(callURL) >= minWebhookURLLen {
		return callURL
	}
	return d.defaultURL
}

// DispatchCompletion posts a finished session's event. Errors are logged,
// never returned to the finalize path.
func (d *Dispatcher) DispatchCompletion(ctx context.Context, event CompletionEvent, token, callURL string) {
	if event.Timestamp == "" {
		event.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}
	d.post(ctx, d.Endpoint(token, callURL), event)
}

// DispatchFallback posts the failed-attempt shape for a call that never
// produced a media session result.
func (d *Dispatcher) DispatchFallback(ctx context.Context, params FallbackParams) {
	failed := false
	event := CompletionEvent{
		AssistantName:   "BIANCA",
		Transcript:      "",
		RecordingURL:    "",
		Timestamp:       time.Now().UTC().Format(time.RFC3339),
		Status:          "failed",
		Mode:            string(ModeBridge),
		Source:          "speed_dial_fallback",
		Token:           params.Token,
		LeadID:          params.LeadID,
		CallID:          params.CallID,
		CallSid:         params.CallSid,
		ErrorReason:     params.ErrorReason,
		SipResponseCode: params.SipResponseCode,
		SDRAnswered:     &failed,
		LeadAnswered:    &failed,
	}
	if event.RealtimeMessages == nil {
		event.RealtimeMessages = []RealtimeMessage{}
	}
	d.post(ctx, d.Endpoint(params.Token, params.WebhookURL), event)
}

func (d *Dispatcher) post(ctx context.Context, endpoint string, event CompletionEvent) {
	if endpoint == "" {
		d.logger.Warn("no webhook endpoint configured, dropping event", "call_id", event.CallID)
		return
	}
	if event.RealtimeMessages == nil {
		event.RealtimeMessages = []RealtimeMessage{}
	}

	body, err := json.Marshal(event)
	if err != nil {
		d.logger.Error("failed to marshal webhook event", "error", err)
		return
	}

	req, err := http.NewRequestWithContext(ctx, "POST", endpoint, bytes.NewReader(body))
	if err != nil {
		d.logger.Error("failed to build webhook request", "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		d.logger.Error("webhook delivery failed", "endpoint", endpoint, "call_id", event.CallID, "error", err)
		return
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		d.logger.Warn("webhook endpoint rejected event",
			"endpoint", endpoint, "call_id", event.CallID, "status", fmt.Sprintf("%d", resp.StatusCode))
		return
	}
	d.logger.Info("webhook event delivered", "endpoint", endpoint, "call_id", event.CallID, "status_field", event.Status)
}
