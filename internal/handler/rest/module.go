package rest

import (
	"log/slog"

	"github.com/webitel/code-delivery-service/config"
	httpsrv "github.com/webitel/code-delivery-service/infra/server/http"
	"github.com/webitel/code-delivery-service/infra/server/http/interceptors"
	"github.com/webitel/code-delivery-service/internal/handler/lp"
	"github.com/webitel/code-delivery-service/internal/handler/sse"
	"github.com/webitel/code-delivery-service/internal/handler/ws"
	"github.com/webitel/code-delivery-service/internal/service"
	"go.uber.org/fx"
)

var Module = fx.Module("http-handlers",
	fx.Provide(
		func(logger *slog.Logger, ingester service.Ingester) *IngestHandler {
			return NewIngestHandler(logger.With(slog.String("component", "ingest_http")), ingester)
		},
		NewUserHandler,
		func(identity service.Resolver, stats *service.StatsCollector) *OpsHandler {
			return NewOpsHandler(identity, stats)
		},
		func(cfg *config.Config, logger *slog.Logger, d service.Deliverer) *sse.StreamHandler {
			return sse.NewStreamHandler(logger.With(slog.String("component", "sse")), d, cfg.Delivery.Heartbeat)
		},
		func(cfg *config.Config, d service.Deliverer) *lp.LPHandler {
			return lp.NewLPHandler(d, cfg.Delivery.PollTimeout)
		},
		func(cfg *config.Config, logger *slog.Logger, d service.Deliverer) *ws.WSHandler {
			return ws.NewWSHandler(logger.With(slog.String("component", "ws")), d, cfg.Delivery.Heartbeat)
		},
	),
	fx.Invoke(func(
		srv *httpsrv.Server,
		logger *slog.Logger,
		ingest *IngestHandler,
		users *UserHandler,
		ops *OpsHandler,
		stream *sse.StreamHandler,
		poll *lp.LPHandler,
		push *ws.WSHandler,
	) {
		srv.Handler = NewRouter(Handlers{
			Ingest: ingest,
			Users:  users,
			Ops:    ops,
			Stream: stream,
			Poll:   poll,
			WS:     push,
		}, interceptors.NewRequestLogger(logger))
	}),
)
