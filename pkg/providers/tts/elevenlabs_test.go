package tts

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestElevenLabsStreamSpeech(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "/v1/text-to-speech/voice-1/stream") {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("output_format"); got != "ulaw_8000" {
			t.Errorf("expected ulaw_8000 output, got %s", got)
		}
		if got := r.Header.Get("xi-api-key"); got != "default-key" {
			t.Errorf("wrong api key: %s", got)
		}

		var payload map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("undecodable payload: %v", err)
		}
		if payload["text"] != "olá" {
			t.Errorf("text lost: %v", payload["text"])
		}

		w.Write([]byte("chunk-one"))
		w.Write([]byte("chunk-two"))
	}))
	defer server.Close()

	tts := NewElevenLabsTTS("default-key")
	tts.baseURL = server.URL

	var got []byte
	err := tts.StreamSpeech(context.Background(), "olá", "voice-1", "", func(chunk []byte) error {
		got = append(got, chunk...)
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(got) != "chunk-onechunk-two" {
		t.Errorf("unexpected audio: %q", string(got))
	}
	if tts.Name() != "elevenlabs" {
		t.Errorf("unexpected name: %s", tts.Name())
	}
}

func TestElevenLabsPerCallKeyOverride(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("xi-api-key"); got != "call-key" {
			t.Errorf("per-call key must win, got %s", got)
		}
		w.Write([]byte("x"))
	}))
	defer server.Close()

	tts := NewElevenLabsTTS("default-key")
	tts.baseURL = server.URL

	err := tts.StreamSpeech(context.Background(), "oi", "v", "call-key", func([]byte) error { return nil })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestElevenLabsErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"detail": "bad key"}`))
	}))
	defer server.Close()

	tts := NewElevenLabsTTS("k")
	tts.baseURL = server.URL

	err := tts.StreamSpeech(context.Background(), "oi", "v", "", func([]byte) error { return nil })
	if err == nil {
		t.Fatal("expected error on non-200 response")
	}
}
