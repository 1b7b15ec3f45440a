package bridge

import (
	"context"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

// Frame shapes of the provider media stream. Inbound frames carry start,
// media and stop events; outbound frames carry media payloads and clears.

type mediaFrame struct {
	Event     string      `json:"event"`
	StreamSid string      `json:"streamSid,omitempty"`
	Start     *startFrame `json:"start,omitempty"`
	Media     *mediaBody  `json:"media,omitempty"`
}

type startFrame struct {
	StreamSid        string            `json:"streamSid"`
	CallSid          string            `json:"callSid"`
	AccountSid       string            `json:"accountSid"`
	Tracks           []string          `json:"tracks"`
	CustomParameters map[string]string `json:"customParameters,omitempty"`
}

type mediaBody struct {
	Track     string `json:"track,omitempty"`
	Chunk     string `json:"chunk,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   string `json:"payload"`
}

// telephonyWriter sends frames back to the provider socket. Session owns
// the socket; writes are serialized by the session loop.
type telephonyWriter struct {
	conn      *websocket.Conn
	streamSid string
}

// SendMedia forwards a base64 μ-law payload to the caller.
func (w *telephonyWriter) SendMedia(ctx context.Context, payload string) error {
	return wsjson.Write(ctx, w.conn, mediaFrame{
		Event:     "media",
		StreamSid: w.streamSid,
		Media:     &mediaBody{Payload: payload},
	})
}

// SendClear drops any audio the provider has buffered for playback.
func (w *telephonyWriter) SendClear(ctx context.Context) error {
	return wsjson.Write(ctx, w.conn, struct {
		Event     string `json:"event"`
		StreamSid string `json:"streamSid"`
	}{Event: "clear", StreamSid: w.streamSid})
}
