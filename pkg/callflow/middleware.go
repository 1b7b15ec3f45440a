package callflow

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/konclui/speedbridge/pkg/bridge"
)

// WithCORS answers preflight requests and opens the API to browser
// callers. The telephony provider ignores these headers.
func WithCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// WithRequestLog tags each request with an id and logs method, path,
// status and latency. Websocket upgrades are logged on entry only.
func WithRequestLog(logger bridge.Logger, next http.Handler) http.Handler {
	if logger == nil {
		logger = &bridge.NoOpLogger{}
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.NewString()[:8]
		start := time.Now()

		if r.Header.Get("Upgrade") == "websocket" {
			logger.Info("websocket upgrade", "request_id", id, "path", r.URL.Path)
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logger.Info("http request",
			"request_id", id, "method", r.Method, "path", r.URL.Path,
			"status", rec.status, "duration", time.Since(start).String())
	})
}
