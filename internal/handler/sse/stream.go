package sse

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/webitel/code-delivery-service/internal/domain/event"
	"github.com/webitel/code-delivery-service/internal/domain/model"
	ssemarshaller "github.com/webitel/code-delivery-service/internal/handler/marshaller/sse"
	"github.com/webitel/code-delivery-service/internal/service"
)

const DefaultHeartbeat = 15 * time.Second

type StreamHandler struct {
	logger    *slog.Logger
	deliverer service.Deliverer
	heartbeat time.Duration
}

func NewStreamHandler(logger *slog.Logger, deliverer service.Deliverer, heartbeat time.Duration) *StreamHandler {
	if heartbeat <= 0 {
		heartbeat = DefaultHeartbeat
	}
	return &StreamHandler{logger: logger, deliverer: deliverer, heartbeat: heartbeat}
}

// ServeHTTP manages the lifecycle of one Server-Sent Events session.
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	// [ATTACHMENT] the connector lives as long as the request
	conn, err := h.deliverer.Subscribe(r.Context(), chi.URLParam(r, "username"), model.ChannelStream)
	if err != nil {
		http.Error(w, "invalid username", http.StatusBadRequest)
		return
	}
	defer h.deliverer.Unsubscribe(conn)

	l := h.logger.With(
		slog.String("username", conn.GetUsername()),
		slog.String("conn_id", conn.GetID()),
	)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	// flush writes the buffered frame and records the liveness signal
	flush := func(err error) bool {
		if err != nil {
			return false
		}
		flusher.Flush()
		h.deliverer.Touch(conn.GetID())
		return true
	}

	// [HANDSHAKE_LOGIC]
	welcomeEv := event.NewSystemEvent(conn.GetUsername(), event.Connected, event.PriorityNormal, &model.ConnectedPayload{
		Ok:            true,
		ConnectionID:  conn.GetID(),
		Username:      conn.GetUsername(),
		Channel:       model.ChannelStream.String(),
		ServerVersion: model.ServerVersion,
	})
	if !flush(ssemarshaller.WriteEvent(w, welcomeEv)) {
		l.Warn("[STREAM] handshake delivery failed")
		return
	}
	l.Info("[STREAM] session established")

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	// [EVENT_LOOP]
	for {
		select {
		case <-r.Context().Done():
			l.Info("[STREAM] client terminated connection")
			return

		case <-conn.Done():
			// [TERMINATION_SENTINEL] evicted by the reaper or released on shutdown
			goodbye := event.NewSystemEvent(conn.GetUsername(), event.Disconnected, event.PriorityHigh, &model.DisconnectedPayload{
				Reason: "session_closed_by_server",
				Code:   model.DisconnectClosed,
			})
			_ = ssemarshaller.WriteEvent(w, goodbye)
			flusher.Flush()
			l.Info("[STREAM] session closed by server")
			return

		case <-ticker.C:
			if !flush(ssemarshaller.WriteComment(w, "heartbeat")) {
				return
			}

		case ev := <-conn.Recv():
			if !flush(ssemarshaller.WriteEvent(w, ev)) {
				l.Warn("[STREAM] transmission error", slog.String("event_id", ev.GetID()))
				return
			}
			l.Debug("[STREAM] event pushed to wire", slog.String("event_type", ev.GetKind().String()))
		}
	}
}
