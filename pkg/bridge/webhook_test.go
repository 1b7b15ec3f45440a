package bridge

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestDispatcherEndpoint(t *testing.T) {
	d := NewDispatcher("https://default.example.com/webhook", nil)

	if got := d.Endpoint("konclui", "https://per-call.example.com/hook"); got != sentinelWebhookURL {
		t.Errorf("sentinel token must win, got %s", got)
	}
	if got := d.Endpoint("other", "https://per-call.example.com/hook"); got != "https://per-call.example.com/hook" {
		t.Errorf("per-call URL must win over default, got %s", got)
	}
	if got := d.Endpoint("other", "-"); got != "https://default.example.com/webhook" {
		t.Errorf("junk per-call URL must fall back to default, got %s", got)
	}
	if got := d.Endpoint("", ""); got != "https://default.example.com/webhook" {
		t.Errorf("empty inputs must fall back to default, got %s", got)
	}
}

func TestDispatchCompletion(t *testing.T) {
	received := make(chan CompletionEvent, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var event CompletionEvent
		if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
			t.Errorf("undecodable event: %v", err)
		}
		received <- event
	}))
	defer server.Close()

	d := NewDispatcher(server.URL, nil)
	answered := true
	d.DispatchCompletion(context.Background(), CompletionEvent{
		AssistantName: "BIANCA",
		Status:        "success",
		Mode:          "bridge",
		CallID:        "1724500000000-abc12345",
		SDRAnswered:   &answered,
	}, "", "")

	event := <-received
	if event.Status != "success" {
		t.Errorf("unexpected status: %s", event.Status)
	}
	if event.Timestamp == "" {
		t.Error("dispatcher must stamp the event")
	}
	if event.RealtimeMessages == nil {
		t.Error("realtime_messages must serialize as an array, not null")
	}
	if event.SDRAnswered == nil || !*event.SDRAnswered {
		t.Error("sdr_answered lost in transit")
	}
}

func TestDispatchFallback(t *testing.T) {
	received := make(chan CompletionEvent, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var event CompletionEvent
		json.NewDecoder(r.Body).Decode(&event)
		received <- event
	}))
	defer server.Close()

	d := NewDispatcher(server.URL, nil)
	d.DispatchFallback(context.Background(), FallbackParams{
		CallID:          "call-1",
		CallSid:         "CA123",
		Token:           "t",
		LeadID:          "lead-9",
		ErrorReason:     "call_status_no-answer",
		SipResponseCode: "486",
	})

	event := <-received
	if event.Status != "failed" {
		t.Errorf("expected status failed, got %s", event.Status)
	}
	if event.Source != "speed_dial_fallback" {
		t.Errorf("unexpected source: %s", event.Source)
	}
	if event.AssistantName != "BIANCA" {
		t.Errorf("unexpected assistant name: %s", event.AssistantName)
	}
	if event.SDRAnswered == nil || *event.SDRAnswered {
		t.Error("fallback must report sdr_answered=false")
	}
	if event.LeadAnswered == nil || *event.LeadAnswered {
		t.Error("fallback must report lead_answered=false")
	}
	if event.ErrorReason != "call_status_no-answer" {
		t.Errorf("unexpected error reason: %s", event.ErrorReason)
	}
	if event.SipResponseCode != "486" {
		t.Errorf("unexpected sip code: %s", event.SipResponseCode)
	}
}

func TestDispatcherSurvivesEndpointFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	// Must not panic or block; errors are logged only.
	d := NewDispatcher(server.URL, nil)
	d.DispatchCompletion(context.Background(), CompletionEvent{Status: "success"}, "", "")

	d2 := NewDispatcher("", nil)
	d2.DispatchCompletion(context.Background(), CompletionEvent{Status: "success"}, "", "")
}
