package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// ElevenLabsTTS streams μ-law audio for a text through the vendor's
// chunked HTTP endpoint. Output is ulaw_8000 so chunks can be forwarded to
// the telephony socket without conversion.
type ElevenLabsTTS struct {
	apiKey  string
	baseURL string
	model   string
	client  *http.Client
}

func NewElevenLabsTTS(apiKey string) *ElevenLabsTTS {
	return &ElevenLabsTTS{
		apiKey:  apiKey,
		baseURL: "https://api.elevenlabs.io",
		model:   "eleven_multilingual_v2",
		client:  http.DefaultClient,
	}
}

func (t *ElevenLabsTTS) Name() string {
	return "elevenlabs"
}

// StreamSpeech synthesizes text with the given voice and delivers raw
// μ-law chunks to onChunk as they arrive. apiKey overrides the client
// default when the call carries its own vendor key.
func (t *ElevenLabsTTS) StreamSpeech(ctx context.Context, text, voiceID, apiKey string, onChunk func([]byte) error) error {
	if apiKey == "" {
		apiKey = t.apiKey
	}

	url := fmt.Sprintf("%s/v1/text-to-speech/%s/stream?output_format=ulaw_8000&optimize_streaming_latency=4",
		t.baseURL, voiceID)

	payload := map[string]interface{}{
		"text":     text,
		"model_id": t.model,
		"voice_settings": map[string]interface{}{
			"stability":        0.5,
			"similarity_boost": 0.75,
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("xi-api-key", apiKey)

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("elevenlabs request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("elevenlabs error: %s (status %d)", string(respBody), resp.StatusCode)
	}

	buf := make([]byte, 4096)
	for {
		n, err := resp.Body.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			if cbErr := onChunk(chunk); cbErr != nil {
				return cbErr
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("elevenlabs stream read: %w", err)
		}
	}
}
