package bridge

import "errors"

var (
	// ErrStreamNotStarted is returned when media arrives before the start frame.
	ErrStreamNotStarted = errors.New("media frame received before stream start")

	// ErrSessionFinalized is returned when a stop is processed twice.
	ErrSessionFinalized = errors.New("session already finalized")

	// ErrRealtimeClosed is returned when the LLM socket is gone.
	ErrRealtimeClosed = errors.New("realtime socket closed")
)
