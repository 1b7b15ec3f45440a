package storage

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestUpload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/storage/v1/object/recordings/call-1.wav" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer service-key" {
			t.Errorf("wrong auth: %s", got)
		}
		if got := r.Header.Get("x-upsert"); got != "true" {
			t.Errorf("upsert not set: %s", got)
		}
		if got := r.Header.Get("Content-Type"); got != "audio/wav" {
			t.Errorf("wrong content type: %s", got)
		}
		body, _ := io.ReadAll(r.Body)
		if string(body) != "RIFF data" {
			t.Errorf("body lost: %q", string(body))
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	u := NewUploader(server.URL, "service-key", "")
	url, err := u.Upload(context.Background(), "call-1.wav", []byte("RIFF data"), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := server.URL + "/storage/v1/object/public/recordings/call-1.wav"
	if url != want {
		t.Errorf("expected %s, got %s", want, url)
	}
}

func TestUploadError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"error": "denied"}`))
	}))
	defer server.Close()

	u := NewUploader(server.URL, "service-key", "")
	if _, err := u.Upload(context.Background(), "x.wav", []byte("d"), ""); err == nil {
		t.Fatal("expected error on rejected upload")
	}
}

func TestUploadUnconfigured(t *testing.T) {
	u := NewUploader("", "", "")
	if _, err := u.Upload(context.Background(), "x.wav", []byte("d"), ""); err == nil {
		t.Fatal("expected error when storage is not configured")
	}
}
