// Package telemetry builds the process-wide logger and tracer provider.
package telemetry

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/webitel/code-delivery-service/config"
	"go.opentelemetry.io/contrib/bridges/otelslog"
	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// ParseLevel maps a config level name to a slog level; unknown names fall back to info.
func ParseLevel(name string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger builds the root logger writing to w. The returned LevelVar stays live
// so the level can change without rebuilding handlers. With cfg.OTel and a
// non-nil provider every record is also handed to the OpenTelemetry log pipeline.
func NewLogger(cfg config.LogConfig, service string, w io.Writer, lp otellog.LoggerProvider) (*slog.Logger, *slog.LevelVar) {
	level := new(slog.LevelVar)
	level.Set(ParseLevel(cfg.Level))

	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	if strings.EqualFold(cfg.Format, "text") {
		h = slog.NewTextHandler(w, opts)
	} else {
		h = slog.NewJSONHandler(w, opts)
	}

	if cfg.OTel && lp != nil {
		bridge := otelslog.NewHandler(service, otelslog.WithLoggerProvider(lp))
		h = fanout{h, &leveled{Handler: bridge, level: level}}
	}

	return slog.New(h).With(slog.String("service", service)), level
}

// ProvideLogger is the fx constructor for the root logger. The level follows config file edits.
// lp is nil when the log pipeline is off.
func ProvideLogger(cfg *config.Config, w io.Writer, service string, lp *sdklog.LoggerProvider) *slog.Logger {
	var provider otellog.LoggerProvider
	if lp != nil {
		provider = lp
	}
	logger, level := NewLogger(cfg.Log, service, w, provider)
	cfg.OnChange(func(next *config.Config) {
		l := ParseLevel(next.Log.Level)
		if l != level.Level() {
			level.Set(l)
			logger.Info("LOG_LEVEL_CHANGED", slog.String("level", l.String()))
		}
	})
	slog.SetDefault(logger)
	return logger
}

func ProvideWatermillLogger(logger *slog.Logger) watermill.LoggerAdapter {
	return watermill.NewSlogLogger(logger.With(slog.String("component", "watermill")))
}

// leveled applies the shared level to a handler that has no level option of its own.
type leveled struct {
	slog.Handler
	level slog.Leveler
}

func (l *leveled) Enabled(ctx context.Context, lvl slog.Level) bool {
	return lvl >= l.level.Level() && l.Handler.Enabled(ctx, lvl)
}

func (l *leveled) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &leveled{Handler: l.Handler.WithAttrs(attrs), level: l.level}
}

func (l *leveled) WithGroup(name string) slog.Handler {
	return &leveled{Handler: l.Handler.WithGroup(name), level: l.level}
}

// fanout hands every record to each handler that accepts its level.
type fanout []slog.Handler

func (f fanout) Enabled(ctx context.Context, lvl slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, lvl) {
			return true
		}
	}
	return false
}

func (f fanout) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range f {
		if h.Enabled(ctx, r.Level) {
			if err := h.Handle(ctx, r.Clone()); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func (f fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := make(fanout, len(f))
	for i, h := range f {
		next[i] = h.WithAttrs(attrs)
	}
	return next
}

func (f fanout) WithGroup(name string) slog.Handler {
	next := make(fanout, len(f))
	for i, h := range f {
		next[i] = h.WithGroup(name)
	}
	return next
}
