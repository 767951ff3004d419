package lp

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/webitel/code-delivery-service/internal/domain/event"
	"github.com/webitel/code-delivery-service/internal/domain/model"
	lpmarshaller "github.com/webitel/code-delivery-service/internal/handler/marshaller/lp"
	"github.com/webitel/code-delivery-service/internal/service"
)

const (
	DefaultPollTimeout = 25 * time.Second
	maxBatch           = 16
)

type LPHandler struct {
	deliverer service.Deliverer
	timeout   time.Duration
}

func NewLPHandler(deliverer service.Deliverer, timeout time.Duration) *LPHandler {
	if timeout <= 0 {
		timeout = DefaultPollTimeout
	}
	return &LPHandler{
		deliverer: deliverer,
		timeout:   timeout,
	}
}

// Poll handles the long-polling request.
// It holds the connection until an event arrives or timeout occurs.
func (h *LPHandler) Poll(w http.ResponseWriter, r *http.Request) {
	// 1. Temporary Subscription.
	// The connector lives only for the duration of this HTTP request.
	conn, err := h.deliverer.Subscribe(r.Context(), chi.URLParam(r, "username"), model.ChannelStream)
	if err != nil {
		http.Error(w, "invalid username", http.StatusBadRequest)
		return
	}
	defer h.deliverer.Unsubscribe(conn)

	timer := time.NewTimer(h.timeout)
	defer timer.Stop()

	var events []event.Eventer

	// 2. Wait for data or timeout.
	select {
	case <-r.Context().Done():
		// Client disconnected.
		return

	case <-conn.Done():
		w.WriteHeader(http.StatusNoContent)
		return

	case <-timer.C:
		// Standard Long-Polling timeout to prevent hanging connections.
		w.WriteHeader(http.StatusNoContent)
		return

	case ev := <-conn.Recv():
		events = append(events, ev)

		// Drain remaining events from buffer to provide batching.
	drainLoop:
		for len(events) < maxBatch {
			select {
			case nextEv := <-conn.Recv():
				events = append(events, nextEv)
			default:
				break drainLoop
			}
		}
	}

	// 3. Final transmission.
	data, err := lpmarshaller.MarshallEvents(events)
	if err != nil {
		http.Error(w, "marshal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err == nil {
		h.deliverer.Touch(conn.GetID())
	}
}
