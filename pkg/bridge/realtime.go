package bridge

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

const defaultRealtimeModel = "gpt-4o-realtime-preview-2024-10-01"

// RealtimeEvent is the subset of server events the session reacts to.
type RealtimeEvent struct {
	Type       string `json:"type"`
	Delta      string `json:"delta,omitempty"`
	Transcript string `json:"transcript,omitempty"`
}

// RealtimeClient is the LLM leg of a call: a full-duplex socket speaking
// the realtime event protocol with g711_ulaw audio both ways.
type RealtimeClient struct {
	apiKey string
	host   string
	scheme string
	model  string

	mu   sync.Mutex
	conn *websocket.Conn
}

func NewRealtimeClient(apiKey string) *RealtimeClient {
	return &RealtimeClient{
		apiKey: apiKey,
		host:   "api.openai.com",
		scheme: "wss",
		model:  defaultRealtimeModel,
	}
}

// Connect dials the realtime socket. It does not send session config; the
// caller decides the instructions once the stream parameters are known.
func (c *RealtimeClient) Connect(ctx context.Context) error {
	u := url.URL{Scheme: c.scheme, Host: c.host, Path: "/v1/realtime", RawQuery: "model=" + c.model}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+c.apiKey)
	header.Set("OpenAI-Beta", "realtime=v1")

	conn, _, err := websocket.Dial(ctx, u.String(), &websocket.DialOptions{HTTPHeader: header})
	if err != nil {
		return fmt.Errorf("failed to connect realtime socket: %w", err)
	}
	conn.SetReadLimit(16 * 1024 * 1024)

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	return nil
}

// SessionConfig shapes the session.update sent right after connect.
type SessionConfig struct {
	Instructions string
	Voice        string
}

// SendSessionUpdate configures the realtime session. Modalities always
// include audio: the server-side VAD needs it even when the audio output
// is suppressed in bridge mode.
func (c *RealtimeClient) SendSessionUpdate(ctx context.Context, cfg SessionConfig) error {
	voice := cfg.Voice
	if voice == "" {
		voice = "alloy"
	}
	return c.write(ctx, map[string]interface{}{
		"type": "session.update",
		"session": map[string]interface{}{
			"modalities":          []string{"text", "audio"},
			"instructions":        cfg.Instructions,
			"voice":               voice,
			"input_audio_format":  "g711_ulaw",
			"output_audio_format": "g711_ulaw",
			"input_audio_transcription": map[string]interface{}{
				"model": "whisper-1",
			},
			"turn_detection": map[string]interface{}{
				"type": "server_vad",
			},
		},
	})
}

// AppendAudio pushes one base64 μ-law payload into the input buffer.
func (c *RealtimeClient) AppendAudio(ctx context.Context, payload string) error {
	return c.write(ctx, map[string]interface{}{
		"type":  "input_audio_buffer.append",
		"audio": payload,
	})
}

// CreateResponse asks the model to speak with the given instructions.
func (c *RealtimeClient) CreateResponse(ctx context.Context, instructions string) error {
	return c.write(ctx, map[string]interface{}{
		"type": "response.create",
		"response": map[string]interface{}{
			"modalities":   []string{"text", "audio"},
			"instructions": instructions,
		},
	})
}

// CancelResponse aborts the in-flight response (barge-in).
func (c *RealtimeClient) CancelResponse(ctx context.Context) error {
	return c.write(ctx, map[string]interface{}{"type": "response.cancel"})
}

// ReadLoop delivers server events until the socket closes or ctx ends.
// It always returns a non-nil error; callers treat a closed socket as a
// normal end of the LLM leg.
func (c *RealtimeClient) ReadLoop(ctx context.Context, onEvent func(RealtimeEvent)) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrRealtimeClosed
	}

	for {
		var event RealtimeEvent
		if err := wsjson.Read(ctx, conn, &event); err != nil {
			return fmt.Errorf("realtime read: %w", err)
		}
		onEvent(event)
	}
}

// Connected reports whether the socket is currently open.
func (c *RealtimeClient) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Close shuts the socket down. Safe to call more than once.
func (c *RealtimeClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close(websocket.StatusNormalClosure, "")
	c.conn = nil
	return err
}

func (c *RealtimeClient) write(ctx context.Context, payload interface{}) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrRealtimeClosed
	}
	return wsjson.Write(ctx, conn, payload)
}
