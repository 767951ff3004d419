package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/webitel/code-delivery-service/config"
	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"info":    slog.LevelInfo,
		"bogus":   slog.LevelInfo,
		"":        slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestNewLoggerJSON(t *testing.T) {
	var buf bytes.Buffer
	logger, _ := NewLogger(config.LogConfig{Level: "info", Format: "json"}, "code-delivery", &buf, nil)

	logger.Debug("HIDDEN")
	logger.Info("USER_SYNC_COMPLETED", slog.Int("written", 3))

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "USER_SYNC_COMPLETED", rec["msg"])
	assert.Equal(t, "code-delivery", rec["service"])
	assert.EqualValues(t, 3, rec["written"])
}

func TestLevelVarIsLive(t *testing.T) {
	var buf bytes.Buffer
	logger, level := NewLogger(config.LogConfig{Level: "error", Format: "text"}, "svc", &buf, nil)

	logger.Info("FIRST")
	assert.Empty(t, buf.String())

	level.Set(slog.LevelDebug)
	logger.Debug("SECOND")
	assert.Contains(t, buf.String(), "SECOND")
}

// memoryLogExporter keeps exported record bodies and severities.
type memoryLogExporter struct {
	mu     sync.Mutex
	bodies []string
	levels []otellog.Severity
	attrs  []map[string]string
}

func (e *memoryLogExporter) Export(_ context.Context, records []sdklog.Record) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, r := range records {
		e.bodies = append(e.bodies, r.Body().AsString())
		e.levels = append(e.levels, r.Severity())
		kv := map[string]string{}
		r.WalkAttributes(func(a otellog.KeyValue) bool {
			kv[a.Key] = a.Value.String()
			return true
		})
		e.attrs = append(e.attrs, kv)
	}
	return nil
}

func (e *memoryLogExporter) Shutdown(context.Context) error   { return nil }
func (e *memoryLogExporter) ForceFlush(context.Context) error { return nil }

func (e *memoryLogExporter) Bodies() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.bodies...)
}

func TestOTelBridgeExportsRecords(t *testing.T) {
	exp := &memoryLogExporter{}
	lp, err := NewLoggerProvider(Identity{Service: "svc"}, sdklog.NewSimpleProcessor(exp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = lp.Shutdown(context.Background()) })

	var buf bytes.Buffer
	logger, level := NewLogger(config.LogConfig{Level: "warn", Format: "text", OTel: true}, "svc", &buf, lp)

	logger.Info("BELOW_LEVEL")
	logger.Warn("BRIDGED", slog.Int("n", 1))

	assert.Contains(t, buf.String(), "BRIDGED")
	assert.NotContains(t, buf.String(), "BELOW_LEVEL")
	require.Equal(t, []string{"BRIDGED"}, exp.Bodies())
	assert.Equal(t, otellog.SeverityWarn, exp.levels[0])
	assert.Equal(t, "svc", exp.attrs[0]["service"])

	level.Set(slog.LevelDebug)
	logger.Debug("AFTER_RELOAD")
	assert.Equal(t, []string{"BRIDGED", "AFTER_RELOAD"}, exp.Bodies())
}

func TestOTelBridgeNeedsProvider(t *testing.T) {
	var buf bytes.Buffer
	logger, _ := NewLogger(config.LogConfig{Level: "info", Format: "text", OTel: true}, "svc", &buf, nil)

	_, isFanout := logger.Handler().(fanout)
	assert.False(t, isFanout)
	logger.Info("PLAIN")
	assert.Contains(t, buf.String(), "PLAIN")
}

func TestFanoutKeepsGroupsAndAttrs(t *testing.T) {
	var first, second bytes.Buffer
	h := fanout{slog.NewTextHandler(&first, nil), slog.NewTextHandler(&second, nil)}

	slog.New(h).With(slog.String("k", "v")).WithGroup("g").Info("FANNED", slog.Int("n", 1))
	for _, out := range []string{first.String(), second.String()} {
		assert.Contains(t, out, "FANNED")
		assert.Contains(t, out, "k=v")
		assert.Contains(t, out, "g.n=1")
	}
}
