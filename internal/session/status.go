package session

import "time"

// Status is the user-visible lifecycle state.
type Status string

const (
	StatusInitializing     Status = "initializing"
	StatusRequestingCamera Status = "requesting camera"
	StatusCameraActive     Status = "camera active"
	StatusCameraError      Status = "camera error"
	StatusDetectorError    Status = "detector error"
	StatusHandDetected     Status = "hand detected"
	StatusSearching        Status = "searching"
)

// StatusEvent is one status change.
type StatusEvent struct {
	Status    Status    `json:"status"`
	Message   string    `json:"message"`
	SessionID string    `json:"session_id,omitempty"`
	At        time.Time `json:"at"`
}

// StatusSink receives status changes. Sinks are called synchronously from
// whichever goroutine caused the change, one at a time. They must not block
// or call back into the Session.
type StatusSink interface {
	SetStatus(ev StatusEvent)
}

// StatusFunc adapts a function to StatusSink.
type StatusFunc func(ev StatusEvent)

// SetStatus calls f(ev).
func (f StatusFunc) SetStatus(ev StatusEvent) {
	f(ev)
}
