package bridge

import (
	"context"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/konclui/speedbridge/pkg/audio"
)

const agentPrompt = `Você é BIANCA, uma assistente de voz simpática e objetiva.
Fale sempre em português brasileiro, com frases curtas adequadas para uma ligação telefônica.
Responda de forma natural e nunca mencione que é uma inteligência artificial.`

const scribePrompt = `You are a silent transcriber on a phone bridge between two people.
Do not speak, do not answer, do not produce audio. Only transcribe what you hear.`

// maxPendingAudio bounds the pre-open audio queue. At one frame per 20ms
// this covers well past the typical time-to-open of the LLM socket.
const maxPendingAudio = 1024

// SessionDeps are the collaborators a media session needs at finalize and
// during streaming. Any nil optional dep degrades to a no-op.
type SessionDeps struct {
	STT        Transcriber
	Detector   SpeechDetector
	TTS        SpeechStreamer
	Uploader   RecordingUploader
	Dispatcher *Dispatcher
	Detections *DetectionCache

	// NewRealtime builds the per-call LLM socket client.
	NewRealtime func() *RealtimeClient

	// AnnouncementWindowSec overrides the announcement span attributed to
	// the system voice on the outbound track.
	AnnouncementWindowSec float64

	Logger Logger
}

// MediaSession is the per-call actor. It owns both sockets, the audio
// buffers and the transcripts; all state mutations are serialized behind
// its mutex, fed by the telephony read loop and the realtime read loop.
type MediaSession struct {
	deps SessionDeps

	conn   *websocket.Conn
	writer *telephonyWriter

	mu        sync.Mutex
	started   bool
	finalized bool
	streamSid string
	callSid   string
	opts      StreamOptions

	inboundChunks  []audio.Chunk
	outboundChunks []audio.Chunk
	agentChunks    []audio.Chunk

	transcripts []TranscriptEntry

	realtime     *RealtimeClient
	pendingAudio []string

	startedAt time.Time
}

// NewMediaSession wraps an accepted telephony socket.
func NewMediaSession(conn *websocket.Conn, deps SessionDeps) *MediaSession {
	if deps.Logger == nil {
		deps.Logger = &NoOpLogger{}
	}
	if deps.AnnouncementWindowSec <= 0 {
		deps.AnnouncementWindowSec = DefaultAnnouncementWindowSec
	}
	return &MediaSession{deps: deps, conn: conn}
}

// Run drives the session until the provider closes the stream. Finalize
// runs only when a stop frame was received; a dropped socket without stop
// just tears both legs down.
func (s *MediaSession) Run(ctx context.Context) error {
	defer s.closeRealtime()

	for {
		var frame mediaFrame
		if err := wsjson.Read(ctx, s.conn, &frame); err != nil {
			s.mu.Lock()
			done := s.finalized
			s.mu.Unlock()
			if done {
				return nil
			}
			return fmt.Errorf("telephony read: %w", err)
		}

		switch frame.Event {
		case "connected":
			// Sent before start; nothing to do yet.
		case "start":
			s.handleStart(ctx, frame.Start)
		case "media":
			s.handleMedia(ctx, frame.Media)
		case "stop":
			s.Finalize(ctx)
			return nil
		case "mark":
			// Playback checkpoints are not used.
		default:
			s.deps.Logger.Debug("unknown media stream event", "event", frame.Event)
		}
	}
}

func (s *MediaSession) handleStart(ctx context.Context, start *startFrame) {
	if start == nil {
		return
	}

	s.mu.Lock()
	s.started = true
	s.startedAt = time.Now()
	s.streamSid = start.StreamSid
	s.callSid = start.CallSid
	s.opts = ParseStreamOptions(start.CustomParameters)
	s.writer = &telephonyWriter{conn: s.conn, streamSid: start.StreamSid}
	opts := s.opts
	s.mu.Unlock()

	s.deps.Logger.Info("stream started",
		"stream_sid", start.StreamSid, "call_sid", start.CallSid,
		"mode", string(opts.Mode), "source", opts.Source)

	// External TTS greets before the LLM socket is even open.
	if opts.Mode == ModeAgent && opts.VoiceProvider == VoiceProviderElevenLabs && opts.FirstMessage != "" {
		go s.speakThroughTTS(ctx, opts.FirstMessage)
	}

	if s.deps.NewRealtime != nil {
		go s.connectRealtime(ctx, opts)
	}
}

func (s *MediaSession) connectRealtime(ctx context.Context, opts StreamOptions) {
	client := s.deps.NewRealtime()

	if err := client.Connect(ctx); err != nil {
		s.deps.Logger.Error("realtime connect failed", "call_sid", s.callSid, "error", err)
		return
	}

	instructions := scribePrompt
	voice := ""
	if opts.Mode == ModeAgent {
		instructions = agentPrompt
		if opts.SystemPrompt != "" {
			instructions = agentPrompt + "\n\n" + opts.SystemPrompt
		}
		if opts.VoiceProvider == VoiceProviderOpenAI && opts.VoiceID != "" {
			voice = opts.VoiceID
		}
	}

	if err := client.SendSessionUpdate(ctx, SessionConfig{Instructions: instructions, Voice: voice}); err != nil {
		s.deps.Logger.Error("realtime session update failed", "call_sid", s.callSid, "error", err)
		client.Close()
		return
	}

	s.mu.Lock()
	s.realtime = client
	pending := s.pendingAudio
	s.pendingAudio = nil
	s.mu.Unlock()

	for _, payload := range pending {
		if err := client.AppendAudio(ctx, payload); err != nil {
			s.deps.Logger.Warn("failed to flush queued audio", "error", err)
			break
		}
	}

	if err := client.ReadLoop(ctx, func(ev RealtimeEvent) { s.handleRealtimeEvent(ctx, ev) }); err != nil {
		// A closed socket mid-call is survivable: audio keeps buffering
		// and the post-hoc pipeline takes over at finalize.
		s.deps.Logger.Debug("realtime loop ended", "call_sid", s.callSid, "error", err)
	}
}

func (s *MediaSession) handleMedia(ctx context.Context, media *mediaBody) {
	if media == nil {
		return
	}

	raw, err := base64.StdEncoding.DecodeString(media.Payload)
	if err != nil {
		s.deps.Logger.Warn("undecodable media payload", "error", err)
		return
	}
	ts, _ := strconv.ParseInt(media.Timestamp, 10, 64)
	chunk := audio.Chunk{Timestamp: ts, Payload: raw}

	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		s.deps.Logger.Debug("dropping media frame", "error", ErrStreamNotStarted)
		return
	}
	if s.opts.Mode == ModeBridge {
		if media.Track == "inbound" {
			s.inboundChunks = append(s.inboundChunks, chunk)
		} else {
			s.outboundChunks = append(s.outboundChunks, chunk)
		}
	} else {
		s.agentChunks = append(s.agentChunks, chunk)
	}

	client := s.realtime
	if client == nil {
		if len(s.pendingAudio) < maxPendingAudio {
			s.pendingAudio = append(s.pendingAudio, media.Payload)
		}
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	if err := client.AppendAudio(ctx, media.Payload); err != nil {
		s.deps.Logger.Debug("realtime append failed", "error", err)
	}
}

func (s *MediaSession) handleRealtimeEvent(ctx context.Context, ev RealtimeEvent) {
	s.mu.Lock()
	opts := s.opts
	writer := s.writer
	client := s.realtime
	s.mu.Unlock()

	switch ev.Type {
	case "session.updated":
		if opts.Mode == ModeAgent && opts.VoiceProvider == VoiceProviderOpenAI && opts.FirstMessage != "" && client != nil {
			if err := client.CreateResponse(ctx, fmt.Sprintf("Say %q", opts.FirstMessage)); err != nil {
				s.deps.Logger.Warn("first message response failed", "error", err)
			}
		}

	case "response.audio.delta":
		// Suppressed entirely when an external voice owns the output.
		if opts.Mode == ModeAgent && opts.VoiceProvider == VoiceProviderOpenAI && writer != nil {
			if err := writer.SendMedia(ctx, ev.Delta); err != nil {
				s.deps.Logger.Debug("media forward failed", "error", err)
			}
		}

	case "input_audio_buffer.speech_started":
		if opts.Mode == ModeAgent {
			if writer != nil {
				if err := writer.SendClear(ctx); err != nil {
					s.deps.Logger.Debug("clear failed", "error", err)
				}
			}
			if client != nil {
				if err := client.CancelResponse(ctx); err != nil {
					s.deps.Logger.Debug("response cancel failed", "error", err)
				}
			}
		}

	case "conversation.item.input_audio_transcription.completed":
		s.appendTranscript("user", ev.Transcript)

	case "response.audio_transcript.done":
		if opts.Mode == ModeAgent {
			s.appendTranscript("assistant", ev.Transcript)
			if opts.VoiceProvider == VoiceProviderElevenLabs && ev.Transcript != "" {
				go s.speakThroughTTS(ctx, ev.Transcript)
			}
		}
	}
}

func (s *MediaSession) appendTranscript(role, text string) {
	if strings.TrimSpace(text) == "" {
		return
	}
	s.mu.Lock()
	s.transcripts = append(s.transcripts, TranscriptEntry{Role: role, Text: text, Timestamp: time.Now()})
	s.mu.Unlock()
}

func (s *MediaSession) speakThroughTTS(ctx context.Context, text string) {
	s.mu.Lock()
	writer := s.writer
	opts := s.opts
	s.mu.Unlock()
	if s.deps.TTS == nil || writer == nil {
		return
	}

	err := s.deps.TTS.StreamSpeech(ctx, text, opts.VoiceID, opts.ElevenLabsKey, func(chunk []byte) error {
		return writer.SendMedia(ctx, base64.StdEncoding.EncodeToString(chunk))
	})
	if err != nil {
		s.deps.Logger.Error("external tts failed", "call_sid", s.callSid, "error", err)
	}
}

func (s *MediaSession) closeRealtime() {
	s.mu.Lock()
	client := s.realtime
	s.realtime = nil
	s.mu.Unlock()
	if client != nil {
		client.Close()
	}
}

// Finalize runs the post-call pipeline exactly once: mix the recording,
// upload it, transcribe per speaker, classify both parties and dispatch
// the completion event.
func (s *MediaSession) Finalize(ctx context.Context) {
	s.mu.Lock()
	if s.finalized {
		s.mu.Unlock()
		s.deps.Logger.Debug("finalize skipped", "error", ErrSessionFinalized)
		return
	}
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.finalized = true
	opts := s.opts
	startedAt := s.startedAt
	s.mu.Unlock()

	s.closeRealtime()
	s.deps.Logger.Info("stream stopped, finalizing",
		"stream_sid", s.streamSid, "call_sid", s.callSid,
		"mode", string(opts.Mode), "duration", time.Since(startedAt).String())

	if opts.Mode == ModeBridge {
		s.finalizeBridge(ctx, opts)
	} else {
		s.finalizeAgent(ctx, opts)
	}
}

func (s *MediaSession) finalizeBridge(ctx context.Context, opts StreamOptions) {
	s.mu.Lock()
	inbound := s.inboundChunks
	outbound := s.outboundChunks
	messages := s.realtimeMessages()
	callSid := s.callSid
	s.mu.Unlock()

	// The verification handler stores its verdict while the stream is still
	// running; the record is consumed exactly once, here.
	detection := DetectionResult{Answered: false, Reason: "no_detection_stored"}
	missing := true
	if s.deps.Detections != nil {
		if rec, ok := s.deps.Detections.Consume(callSid); ok {
			detection = DetectionResult{
				Answered:   rec.Answered,
				Reason:     rec.Reason,
				Confidence: rec.Confidence,
				FirstWords: rec.FirstWords,
			}
			missing = false
		}
	}

	var recordingURL string
	var segments []Segment
	var leadPCM, sdrPCM []int16

	if len(inbound)+len(outbound) > 0 {
		leadPCM, sdrPCM = audio.SynchronizeTracks(inbound, outbound, audio.DefaultSampleRate)

		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			wav := audio.NewStereoWav(leadPCM, sdrPCM, audio.DefaultSampleRate)
			recordingURL = s.upload(ctx, wav)
		}()

		segments = SegmentSpeakers(sdrPCM, leadPCM, audio.DefaultSampleRate, s.deps.AnnouncementWindowSec)
		s.transcribeSegments(ctx, segments, sdrPCM, leadPCM)
		segments = CorrectAnnouncementSegments(segments)

		wg.Wait()
	}

	sdrTranscript, leadTranscript, combined := assembleTranscripts(segments)

	if missing && strings.TrimSpace(sdrTranscript) != "" && s.deps.Detector != nil {
		detection = s.deps.Detector.ClassifySDRSpeech(ctx, sdrTranscript, opts.OpenAIKey)
		detection.Reason = "late_classification: " + detection.Reason
	}

	leadResult := DetectionResult{Answered: false, Reason: "no_transcript", Confidence: 1.0}
	if s.deps.Detector != nil {
		leadResult = s.deps.Detector.ClassifyLeadSpeech(ctx, leadTranscript, opts.OpenAIKey)
	}

	sdrAnswered := detection.Answered
	leadAnswered := leadResult.Answered
	event := CompletionEvent{
		AssistantName:           "BIANCA",
		Transcript:              combined,
		RealtimeMessages:        messages,
		RecordingURL:            recordingURL,
		Status:                  "success",
		Mode:                    string(ModeBridge),
		Source:                  opts.Source,
		SDRTranscript:           sdrTranscript,
		LeadTranscript:          leadTranscript,
		Token:                   opts.Token,
		LeadID:                  opts.LeadID,
		CallID:                  opts.CallID,
		CallSid:                 s.callSid,
		SDRAnswered:             &sdrAnswered,
		SDRDetectionReason:      detection.Reason,
		SDRDetectionConfidence:  detection.Confidence,
		SDRFirstWords:           detection.FirstWords,
		LeadAnswered:            &leadAnswered,
		LeadDetectionReason:     leadResult.Reason,
		LeadDetectionConfidence: leadResult.Confidence,
	}

	if s.deps.Dispatcher != nil {
		s.deps.Dispatcher.DispatchCompletion(ctx, event, opts.Token, opts.WebhookURL)
	}
}

func (s *MediaSession) finalizeAgent(ctx context.Context, opts StreamOptions) {
	s.mu.Lock()
	chunks := s.agentChunks
	messages := s.realtimeMessages()
	s.mu.Unlock()

	var recordingURL string
	if len(chunks) > 0 {
		var mulaw []byte
		for _, c := range chunks {
			mulaw = append(mulaw, c.Payload...)
		}
		wav := audio.NewMonoWav(audio.MuLawToPCM16(mulaw), audio.DefaultSampleRate)
		recordingURL = s.upload(ctx, wav)
	}

	var lines []string
	for _, m := range messages {
		lines = append(lines, m.Role+": "+m.Message)
	}

	event := CompletionEvent{
		AssistantName:    "BIANCA",
		Transcript:       strings.Join(lines, "\n"),
		RealtimeMessages: messages,
		RecordingURL:     recordingURL,
		Status:           "success",
		Mode:             string(ModeAgent),
		Source:           opts.Source,
		Token:            opts.Token,
		LeadID:           opts.LeadID,
		CallID:           opts.CallID,
		CallSid:          s.callSid,
	}

	if s.deps.Dispatcher != nil {
		s.deps.Dispatcher.DispatchCompletion(ctx, event, opts.Token, opts.WebhookURL)
	}
}

func (s *MediaSession) transcribeSegments(ctx context.Context, segments []Segment, sdrPCM, leadPCM []int16) {
	if s.deps.STT == nil {
		return
	}
	for i := range segments {
		track := leadPCM
		if segments[i].Speaker == SpeakerSDR {
			track = sdrPCM
		}
		start, end := segments[i].StartSample, segments[i].EndSample
		if start >= len(track) {
			continue
		}
		if end > len(track) {
			end = len(track)
		}

		wav := audio.NewMonoWav(track[start:end], audio.DefaultSampleRate)
		text, err := s.deps.STT.Transcribe(ctx, wav)
		if err != nil {
			s.deps.Logger.Warn("segment transcription failed",
				"call_sid", s.callSid, "speaker", string(segments[i].Speaker), "error", err)
			continue
		}
		segments[i].Text = strings.TrimSpace(text)
	}
}

func (s *MediaSession) upload(ctx context.Context, wav []byte) string {
	if s.deps.Uploader == nil {
		return ""
	}
	name := s.recordingName()
	url, err := s.deps.Uploader.Upload(ctx, name, wav, "audio/wav")
	if err != nil {
		s.deps.Logger.Error("recording upload failed", "call_sid", s.callSid, "error", err)
		return ""
	}
	return url
}

func (s *MediaSession) recordingName() string {
	id := s.opts.CallID
	if id == "" {
		id = s.streamSid
	}
	return fmt.Sprintf("%s.wav", id)
}

// realtimeMessages snapshots the transcripts in webhook shape. Caller
// holds the lock.
func (s *MediaSession) realtimeMessages() []RealtimeMessage {
	messages := make([]RealtimeMessage, 0, len(s.transcripts))
	for _, t := range s.transcripts {
		messages = append(messages, RealtimeMessage{
			Role:      t.Role,
			Message:   t.Text,
			Timestamp: t.Timestamp.UTC().Format(time.RFC3339),
		})
	}
	return messages
}

// assembleTranscripts turns ordered, corrected segments into the SDR and
// lead transcripts plus the speaker-labeled combined string.
func assembleTranscripts(segments []Segment) (sdr, lead, combined string) {
	var sdrParts, leadParts, lines []string
	for _, seg := range segments {
		if seg.Text == "" {
			continue
		}
		switch seg.Speaker {
		case SpeakerSDR:
			sdrParts = append(sdrParts, seg.Text)
		case SpeakerLead:
			leadParts = append(leadParts, seg.Text)
		}
		lines = append(lines, fmt.Sprintf("[%s]: %s", seg.Speaker, seg.Text))
	}
	return strings.Join(sdrParts, " "), strings.Join(leadParts, " "), strings.Join(lines, "\n")
}
