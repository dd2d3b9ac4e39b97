package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/ayusman/nailosophy/internal/overlay"
	"github.com/ayusman/nailosophy/internal/session"
	"github.com/ayusman/nailosophy/internal/store"
)

const (
	defaultEventLimit = 50
	maxEventLimit     = 500
)

type sessionHandler struct {
	session *session.Session
	logger  *zap.SugaredLogger
}

// handleStatus returns the session snapshot.
func (h *sessionHandler) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, h.session.Snapshot())
}

// handleFlip switches the camera. A camera failure is reported in the body
// as well as the status; flipping again is allowed.
func (h *sessionHandler) handleFlip(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if _, err := h.session.Flip(r.Context()); err != nil {
		h.logger.Warnw("flip failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, struct {
			session.Snapshot
			Error string `json:"error"`
		}{h.session.Snapshot(), err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, h.session.Snapshot())
}

// handleViewport replaces the render target size.
func (h *sessionHandler) handleViewport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var vp overlay.Viewport
	if err := json.NewDecoder(r.Body).Decode(&vp); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if err := h.session.Resize(vp.Width, vp.Height); err != nil {
		if errors.Is(err, overlay.ErrViewportUnknown) || errors.Is(err, overlay.ErrViewportTooLarge) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, h.session.Snapshot())
}

type eventsHandler struct {
	events *store.EventRepository
}

// handleRecent returns the newest journaled status events.
func (h *eventsHandler) handleRecent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	limit := defaultEventLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxEventLimit)
	}

	events, err := h.events.Recent(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list events")
		return
	}

	type eventJSON struct {
		ID        int64  `json:"id"`
		SessionID string `json:"session_id"`
		Status    string `json:"status"`
		Message   string `json:"message"`
		CreatedAt string `json:"created_at"`
	}
	out := make([]eventJSON, 0, len(events))
	for _, e := range events {
		out = append(out, eventJSON{
			ID:        e.ID,
			SessionID: e.SessionID,
			Status:    e.Status,
			Message:   e.Message,
			CreatedAt: e.CreatedAt.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		})
	}
	writeJSON(w, http.StatusOK, out)
}
