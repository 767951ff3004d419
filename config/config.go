// Package config loads service configuration from defaults, an optional file,
// environment variables and command-line overrides.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const EnvPrefix = "CODE_DELIVERY"

// ErrMissingDSN is the only configuration error that aborts startup.
var ErrMissingDSN = errors.New("postgres.dsn is required (env CODE_DELIVERY_POSTGRES_DSN)")

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	Postgres  PostgresConfig  `mapstructure:"postgres"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Breaker   BreakerConfig   `mapstructure:"breaker"`
	Identity  IdentityConfig  `mapstructure:"identity"`
	Sync      SyncConfig      `mapstructure:"sync"`
	Reaper    ReaperConfig    `mapstructure:"reaper"`
	Delivery  DeliveryConfig  `mapstructure:"delivery"`
	AMQP      AMQPConfig      `mapstructure:"amqp"`
	Rates     RatesConfig     `mapstructure:"rates"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`

	v *viper.Viper
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	OTel   bool   `mapstructure:"otel"`
}

type PostgresConfig struct {
	DSN            string        `mapstructure:"dsn"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	MaxConns       int32         `mapstructure:"max_conns"`
}

type RedisConfig struct {
	Addr        string        `mapstructure:"addr"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
	OpTimeout   time.Duration `mapstructure:"op_timeout"`
	UserTTL     time.Duration `mapstructure:"user_ttl"`
	BatchSize   int           `mapstructure:"batch_size"`
}

type BreakerConfig struct {
	MaxRequests         uint32        `mapstructure:"max_requests"`
	Interval            time.Duration `mapstructure:"interval"`
	Timeout             time.Duration `mapstructure:"timeout"`
	ConsecutiveFailures uint32        `mapstructure:"consecutive_failures"`
}

type IdentityConfig struct {
	PinnedUsers  []string      `mapstructure:"pinned_users"`
	NegativeTTL  time.Duration `mapstructure:"negative_ttl"`
	NegativeSize int           `mapstructure:"negative_size"`
}

type SyncConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Interval    time.Duration `mapstructure:"interval"`
	StopTimeout time.Duration `mapstructure:"stop_timeout"`
}

type ReaperConfig struct {
	Interval    time.Duration `mapstructure:"interval"`
	Timeout     time.Duration `mapstructure:"timeout"`
	StopTimeout time.Duration `mapstructure:"stop_timeout"`
}

type DeliveryConfig struct {
	BufferSize         int           `mapstructure:"buffer_size"`
	SendTimeout        time.Duration `mapstructure:"send_timeout"`
	Parallelism        int           `mapstructure:"parallelism"`
	Heartbeat          time.Duration `mapstructure:"heartbeat"`
	PollTimeout        time.Duration `mapstructure:"poll_timeout"`
	EvictOnSendFailure bool          `mapstructure:"evict_on_send_failure"`
}

type AMQPConfig struct {
	URL      string `mapstructure:"url"`
	Exchange string `mapstructure:"exchange"`
	Topic    string `mapstructure:"topic"`
	Queue    string `mapstructure:"queue"`
}

// TelemetryConfig selects where spans and bridged log records are exported.
// Exporter names: "none" or "stdout".
type TelemetryConfig struct {
	Tracing ExporterConfig `mapstructure:"tracing"`
	Logs    ExporterConfig `mapstructure:"logs"`
}

type ExporterConfig struct {
	Exporter string `mapstructure:"exporter"`
}

type RatesConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	TTL     time.Duration `mapstructure:"ttl"`
}

// Enabled reports whether the AMQP ingest consumer should run.
func (c AMQPConfig) Enabled() bool { return strings.TrimSpace(c.URL) != "" }

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":5000")
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.otel", false)

	v.SetDefault("postgres.dsn", "")
	v.SetDefault("postgres.connect_timeout", 10*time.Second)
	v.SetDefault("postgres.max_conns", 4)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.dial_timeout", 2*time.Second)
	v.SetDefault("redis.op_timeout", 500*time.Millisecond)
	v.SetDefault("redis.user_ttl", time.Hour)
	v.SetDefault("redis.batch_size", 500)

	v.SetDefault("breaker.max_requests", 1)
	v.SetDefault("breaker.interval", time.Minute)
	v.SetDefault("breaker.timeout", 10*time.Second)
	v.SetDefault("breaker.consecutive_failures", 3)

	v.SetDefault("identity.pinned_users", []string{})
	v.SetDefault("identity.negative_ttl", 10*time.Second)
	v.SetDefault("identity.negative_size", 4096)

	v.SetDefault("sync.enabled", true)
	v.SetDefault("sync.interval", 300*time.Second)
	v.SetDefault("sync.stop_timeout", 5*time.Second)

	v.SetDefault("reaper.interval", 60*time.Second)
	v.SetDefault("reaper.timeout", 120*time.Second)
	v.SetDefault("reaper.stop_timeout", 5*time.Second)

	v.SetDefault("delivery.buffer_size", 64)
	v.SetDefault("delivery.send_timeout", 500*time.Millisecond)
	v.SetDefault("delivery.parallelism", 32)
	v.SetDefault("delivery.heartbeat", 15*time.Second)
	v.SetDefault("delivery.poll_timeout", 25*time.Second)
	v.SetDefault("delivery.evict_on_send_failure", false)

	v.SetDefault("amqp.url", "")
	v.SetDefault("amqp.exchange", "code.events")
	v.SetDefault("amqp.topic", "code.ingest.#")
	v.SetDefault("amqp.queue", "code-delivery.ingest.v1")

	v.SetDefault("rates.enabled", true)
	v.SetDefault("rates.ttl", 24*time.Hour)

	v.SetDefault("telemetry.tracing.exporter", "none")
	// used only with log.otel=true
	v.SetDefault("telemetry.logs.exporter", "stdout")
}

// flagSet exposes the most commonly overridden keys as command-line flags.
func flagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet("code-delivery", pflag.ContinueOnError)
	fs.String("server.addr", ":5000", "HTTP listen address")
	fs.String("log.level", "info", "Log level: debug, info, warn, error")
	fs.String("log.format", "json", "Log format: json or text")
	fs.String("postgres.dsn", "", "Identity store connection string")
	fs.String("redis.addr", "localhost:6379", "Shared cache address")
	fs.StringSlice("identity.pinned_users", nil, "Usernames kept in process memory")
	fs.String("amqp.url", "", "AMQP broker URL; empty disables the ingest consumer")
	fs.Bool("log.otel", false, "Also emit log records through the OpenTelemetry log pipeline")
	fs.String("telemetry.tracing.exporter", "none", "Span exporter: none or stdout")
	return fs
}

// LoadConfig resolves configuration in increasing priority:
// defaults, config file, environment, flags.
func LoadConfig(file string, args []string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	fs := flagSet()
	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("config: parse flags: %w", err)
	}
	if err := v.BindPFlags(fs); err != nil {
		return nil, fmt.Errorf("config: bind flags: %w", err)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", file, err)
		}
	}

	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}
	if cfg.Postgres.DSN == "" {
		return nil, ErrMissingDSN
	}
	return cfg, nil
}

func decode(v *viper.Viper) (*Config, error) {
	cfg := &Config{v: v}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	cfg.Identity.PinnedUsers = normalizeList(cfg.Identity.PinnedUsers)
	cfg.Log.Level = strings.ToLower(strings.TrimSpace(cfg.Log.Level))
	return cfg, nil
}

// OnChange watches the config file and calls fn with the re-read configuration.
// It is a no-op when no file was loaded.
func (c *Config) OnChange(fn func(*Config)) {
	if c.v == nil || c.v.ConfigFileUsed() == "" {
		return
	}
	c.v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		next, err := decode(c.v)
		if err != nil {
			return
		}
		fn(next)
	})
	c.v.WatchConfig()
}

// normalizeList lowercases, trims and de-duplicates entries. It also splits
// comma separated values that arrive as a single element from the environment.
func normalizeList(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, raw := range in {
		for _, part := range strings.Split(raw, ",") {
			part = strings.ToLower(strings.TrimSpace(part))
			if part == "" {
				continue
			}
			if _, dup := seen[part]; dup {
				continue
			}
			seen[part] = struct{}{}
			out = append(out, part)
		}
	}
	return out
}
