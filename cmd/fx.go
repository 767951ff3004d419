package cmd

import (
	"log/slog"
	"os"

	"github.com/webitel/code-delivery-service/config"
	clientdi "github.com/webitel/code-delivery-service/infra/client/di"
	httpsrv "github.com/webitel/code-delivery-service/infra/server/http"
	"github.com/webitel/code-delivery-service/internal/adapter/cache"
	"github.com/webitel/code-delivery-service/internal/adapter/pubsub"
	"github.com/webitel/code-delivery-service/internal/adapter/store"
	"github.com/webitel/code-delivery-service/internal/domain/registry"
	amqpdi "github.com/webitel/code-delivery-service/internal/handler/amqp"
	"github.com/webitel/code-delivery-service/internal/handler/rest"
	"github.com/webitel/code-delivery-service/internal/service"
	"github.com/webitel/code-delivery-service/internal/telemetry"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
)

func NewApp(cfg *config.Config) *fx.App {
	opts := []fx.Option{
		fx.Provide(
			func() *config.Config { return cfg },
			ProvideLoggerProvider,
			func(cfg *config.Config, lp *sdklog.LoggerProvider) *slog.Logger {
				return telemetry.ProvideLogger(cfg, os.Stdout, ServiceName, lp)
			},
			telemetry.ProvideWatermillLogger,
			ProvideTracer,
		),
		fx.WithLogger(func(l *slog.Logger) fxevent.Logger {
			fl := &fxevent.SlogLogger{Logger: l.With(slog.String("component", "fx"))}
			fl.UseLogLevel(slog.LevelDebug)
			return fl
		}),
		fx.Invoke(func(*sdktrace.TracerProvider) {}),
		clientdi.Module,
		cache.Module,
		store.Module,
		pubsub.Module,
		registry.Module,
		service.Module,
		httpsrv.Module,
		rest.Module,
	}

	// [OPTIONAL_INGEST_BUS] The consumer is wired only when a broker is configured
	if cfg.AMQP.Enabled() {
		opts = append(opts, amqpdi.Module)
	}

	return fx.New(opts...)
}

func identity() telemetry.Identity {
	return telemetry.Identity{Service: ServiceName, Namespace: ServiceNamespace, Version: version}
}

// ProvideTracer installs the global tracer provider and attaches the configured span exporter.
func ProvideTracer(cfg *config.Config, lc fx.Lifecycle) (*sdktrace.TracerProvider, error) {
	exporter, err := telemetry.NewSpanExporter(cfg.Telemetry.Tracing.Exporter, os.Stderr)
	if err != nil {
		return nil, err
	}
	var processors []sdktrace.SpanProcessor
	if exporter != nil {
		processors = append(processors, sdktrace.NewBatchSpanProcessor(exporter))
	}

	tp, err := telemetry.NewTracerProvider(identity(), processors...)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		// [FLUSH] pending spans are exported before the process exits
		OnStop: tp.Shutdown,
	})
	return tp, nil
}

// ProvideLoggerProvider builds the OpenTelemetry log pipeline behind the slog bridge.
// It returns nil when log.otel is off or no exporter is configured.
func ProvideLoggerProvider(cfg *config.Config, lc fx.Lifecycle) (*sdklog.LoggerProvider, error) {
	if !cfg.Log.OTel {
		return nil, nil
	}
	exporter, err := telemetry.NewLogExporter(cfg.Telemetry.Logs.Exporter, os.Stderr)
	if err != nil || exporter == nil {
		return nil, err
	}

	lp, err := telemetry.NewLoggerProvider(identity(), sdklog.NewBatchProcessor(exporter))
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: lp.Shutdown,
	})
	return lp, nil
}
