package bridge

import (
	"context"
	"time"
)

type Logger interface {
	Debug(msg string, args ...interface{})

	Info(msg string, args ...interface{})

	Warn(msg string, args ...interface{})

	Error(msg string, args ...interface{})
}

type NoOpLogger struct{}

func (n *NoOpLogger) Debug(msg string, args ...interface{}) {}
func (n *NoOpLogger) Info(msg string, args ...interface{})  {}
func (n *NoOpLogger) Warn(msg string, args ...interface{})  {}
func (n *NoOpLogger) Error(msg string, args ...interface{}) {}

type Transcriber interface {
	Transcribe(ctx context.Context, wavData []byte) (string, error)
	Name() string
}

type SpeechDetector interface {
	ClassifySDRSpeech(ctx context.Context, text, apiKey string) DetectionResult
	ClassifyLeadSpeech(ctx context.Context, text, apiKey string) DetectionResult
}

type SpeechStreamer interface {
	StreamSpeech(ctx context.Context, text, voiceID, apiKey string, onChunk func([]byte) error) error
	Name() string
}

type RecordingUploader interface {
	Upload(ctx context.Context, name string, data []byte, contentType string) (string, error)
}

// Mode selects the call topology for a media session.
type Mode string

const (
	// ModeAgent connects the caller directly to the LLM voice agent.
	ModeAgent Mode = "agent"
	// ModeBridge runs the SDR announce/verify/dial flow with a scribe-only LLM.
	ModeBridge Mode = "bridge"
)

// VoiceProvider selects who synthesizes the assistant's speech in agent mode.
type VoiceProvider string

const (
	VoiceProviderOpenAI     VoiceProvider = "openai"
	VoiceProviderElevenLabs VoiceProvider = "elevenlabs"
)

// StreamOptions are the recognized per-call options carried as stream
// parameters on the telephony control document.
type StreamOptions struct {
	Mode          Mode
	Source        string
	VoiceID       string
	VoiceProvider VoiceProvider
	ElevenLabsKey string
	OpenAIKey     string
	SystemPrompt  string
	FirstMessage  string
	WebhookURL    string
	Token         string
	LeadID        string
	CallID        string
	LeadName      string
	AgendamentoAt string
}

// ParseStreamOptions maps the provider's customParameters bag onto the
// typed option set. Unknown keys are ignored.
func ParseStreamOptions(params map[string]string) StreamOptions {
	opts := StreamOptions{
		Mode:          ModeAgent,
		VoiceProvider: VoiceProviderOpenAI,
	}
	if params == nil {
		return opts
	}
	if v := params["mode"]; v != "" {
		opts.Mode = Mode(v)
	}
	if v := params["provider"]; v != "" {
		opts.VoiceProvider = VoiceProvider(v)
	}
	opts.Source = params["source"]
	opts.VoiceID = params["voice"]
	opts.ElevenLabsKey = params["elevenlabs_key"]
	opts.OpenAIKey = params["openai_key"]
	opts.SystemPrompt = params["system_prompt"]
	opts.FirstMessage = params["first_message"]
	opts.WebhookURL = params["n8n_url"]
	opts.Token = params["token"]
	opts.LeadID = params["lead_id"]
	opts.CallID = params["call_id"]
	opts.LeadName = params["lead_name"]
	opts.AgendamentoAt = params["data_agendamento"]
	return opts
}

// TranscriptEntry is one utterance captured during a session, append-only.
type TranscriptEntry struct {
	Role      string    `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// DetectionResult is the human-vs-voicemail verdict for one speaker.
type DetectionResult struct {
	Answered   bool
	Reason     string
	Confidence float64
	FirstWords string
}
