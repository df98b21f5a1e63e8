package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/okian/resonance/internal/domain/model"
	"github.com/okian/resonance/pkg/logger"
)

// handleEvents handles GET /v1/events, streaming scheduler notifications as
// server-sent events until the client disconnects. Notifications a slow
// client cannot take are dropped for that client only.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	const op = "api.events"
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "internal_error", wrapKind(op, ErrStreaming, nil))
		return
	}
	if !s.deps.Started() {
		writeError(w, http.StatusServiceUnavailable, "unavailable", nil)
		return
	}

	// Streams outlive the server write timeout.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	clientID := uuid.NewString()
	sink, unsubscribe := s.deps.Subscribe("sse-"+clientID, s.streamBuf)
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	_, _ = fmt.Fprintf(w, "event: connected\ndata: {\"client_id\":%q}\n\n", clientID)
	flusher.Flush()
	s.logger.Debug(r.Context(), "event stream opened", logger.String("client", clientID))

	ticker := time.NewTicker(s.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			s.logger.Debug(r.Context(), "event stream closed", logger.String("client", clientID))
			return
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case n := <-sink.C():
			if err := writeEvent(w, n); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, n model.Notification) error { //nolint:gocritic // value from the sink channel
	data, err := json.Marshal(n)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\nid: %s\ndata: %s\n\n", n.Kind, n.Comparison.ID, data)
	return err
}
