package app

import (
	"go.uber.org/zap"

	"github.com/ayusman/nailosophy/internal/session"
	"github.com/ayusman/nailosophy/internal/store"
)

// Journal is a status sink that records every status change in the store.
type Journal struct {
	events *store.EventRepository
	logger *zap.SugaredLogger
}

// NewJournal creates a Journal writing to events.
func NewJournal(events *store.EventRepository, logger *zap.SugaredLogger) *Journal {
	return &Journal{events: events, logger: logger}
}

// SetStatus appends ev. Write failures are logged and otherwise ignored.
func (j *Journal) SetStatus(ev session.StatusEvent) {
	err := j.events.Append(&store.Event{
		SessionID: ev.SessionID,
		Status:    string(ev.Status),
		Message:   ev.Message,
		CreatedAt: ev.At,
	})
	if err != nil {
		j.logger.Warnw("failed to journal status", "status", string(ev.Status), "error", err)
	}
}
