package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"storefront-customer-layer/internal/domain"
	"storefront-customer-layer/internal/infrastructure/pubsub"
)

func writeEvent(w http.ResponseWriter, flusher http.Flusher, event *domain.SessionEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode session event: %w", err)
	}
	if _, err := fmt.Fprintf(w, "event: session\ndata: %s\n\n", data); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}

// streamEvents sends the visitor's session events as server-sent events,
// starting with a snapshot of the current state.
func (h *AccountHandler) streamEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	ctx := r.Context()
	sessionID := domain.GetSessionIDFromContext(ctx)
	sub := h.events.Subscribe(ctx, &pubsub.EventFilter{SessionID: sessionID})
	defer h.events.Unsubscribe(sub.ID)

	manager := h.session(r)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	snapshot := &domain.SessionEvent{
		SessionID:     sessionID,
		State:         manager.State(),
		Authenticated: manager.IsAuthenticated(),
		Error:         manager.Error(),
		OccurredAt:    time.Now(),
	}
	if err := writeEvent(w, flusher, snapshot); err != nil {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-sub.Events:
			if !ok {
				return
			}
			if err := writeEvent(w, flusher, event); err != nil {
				h.logger.Debug().Err(err).Str("session_id", sessionID).Msg("Session event stream closed")
				return
			}
		}
	}
}
