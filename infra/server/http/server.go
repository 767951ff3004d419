package httpsrv

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/webitel/code-delivery-service/config"
	"go.uber.org/fx"
)

// Server owns the listener. Routes are attached by the handler module before start.
type Server struct {
	*http.Server
	logger *slog.Logger
	addr   net.Addr
}

func New(cfg *config.Config, logger *slog.Logger) *Server {
	return &Server{
		Server: &http.Server{
			Addr:              cfg.Server.Addr,
			ReadHeaderTimeout: 10 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		logger: logger.With(slog.String("component", "http_server")),
	}
}

// Start binds the listener synchronously so a busy port fails startup, then serves in the background.
func (s *Server) Start(ctx context.Context) error {
	ln, err := (&net.ListenConfig{}).Listen(ctx, "tcp", s.Addr)
	if err != nil {
		return fmt.Errorf("http server: listen %s: %w", s.Addr, err)
	}
	s.addr = ln.Addr()

	go func() {
		if err := s.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP_SERVER_FAILED", slog.Any("err", err))
		}
	}()
	s.logger.Info("HTTP_SERVER_LISTENING", slog.String("addr", ln.Addr().String()))
	return nil
}

// ListenAddr returns the bound address once started.
func (s *Server) ListenAddr() net.Addr { return s.addr }

var Module = fx.Module("http-server",
	fx.Provide(New),
	fx.Invoke(func(lc fx.Lifecycle, srv *Server) {
		lc.Append(fx.Hook{
			OnStart: srv.Start,
			OnStop: func(ctx context.Context) error {
				return srv.Shutdown(ctx)
			},
		})
	}),
)
