package rest

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/webitel/code-delivery-service/internal/handler/lp"
	"github.com/webitel/code-delivery-service/internal/handler/sse"
	"github.com/webitel/code-delivery-service/internal/handler/ws"
)

// Handlers groups every HTTP entry point mounted by NewRouter.
type Handlers struct {
	Ingest *IngestHandler
	Users  *UserHandler
	Ops    *OpsHandler
	Stream *sse.StreamHandler
	Poll   *lp.LPHandler
	WS     *ws.WSHandler
}

// NewRouter wires the routes. Live-channel routes must stay free of request
// timeouts.
func NewRouter(h Handlers, mw ...func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer)
	r.Use(mw...)

	r.Get("/health", h.Ops.Health)
	r.Get("/stats", h.Ops.Stats)
	r.Get("/sse-stats", h.Ops.Stats)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Post("/ingest", h.Ingest.Post)
		r.Get("/ingest", h.Ingest.Get)
		r.Get("/users/{username}/verify", h.Users.Verify)
	})

	r.Get("/stream/{username}", h.Stream.ServeHTTP)
	r.Get("/poll/{username}", h.Poll.Poll)
	r.Get("/ws", h.WS.ServeHTTP)

	return r
}
