package engine

import (
	"fmt"
	"net/url"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/jonwraymond/offlinesync/observe"
)

// DefaultAPIOrigin is the clinic API the default rules cache.
const DefaultAPIOrigin = "https://sanarebackend-production.up.railway.app"

// Config configures an Engine.
type Config struct {
	ServiceName string `env:"OFFLINESYNC_SERVICE_NAME" envDefault:"offlinesync"`
	Version     string `env:"OFFLINESYNC_VERSION"`

	// DBPath is the SQLite database file. Empty keeps everything in memory.
	DBPath string `env:"OFFLINESYNC_DB_PATH"`

	// RulesFile is a YAML rule file. Empty uses DefaultRules(APIOrigin).
	RulesFile string `env:"OFFLINESYNC_RULES_FILE"`

	APIOrigin string `env:"OFFLINESYNC_API_ORIGIN" envDefault:"https://sanarebackend-production.up.railway.app"`

	// AppOrigin is the application's own origin; no-cors requests to other
	// origins produce opaque responses.
	AppOrigin string `env:"OFFLINESYNC_APP_ORIGIN"`

	// RequestTimeout is the hard deadline for one network request.
	RequestTimeout time.Duration `env:"OFFLINESYNC_REQUEST_TIMEOUT" envDefault:"30s"`

	ReplayAttempts int `env:"OFFLINESYNC_REPLAY_ATTEMPTS" envDefault:"1"`
	MaxRetries     int `env:"OFFLINESYNC_MAX_RETRIES" envDefault:"5"`

	DrainDebounce time.Duration `env:"OFFLINESYNC_DRAIN_DEBOUNCE" envDefault:"0s"`

	// MaxConcurrentRequests caps network round trips in flight. 0 means
	// unlimited.
	MaxConcurrentRequests int `env:"OFFLINESYNC_MAX_CONCURRENT_REQUESTS" envDefault:"16"`

	// BackgroundLimit caps concurrent background cache refreshes.
	BackgroundLimit int `env:"OFFLINESYNC_BACKGROUND_LIMIT" envDefault:"8"`

	// BreakerFailures is the number of consecutive network failures that
	// mark the status offline. Zero disables the breaker.
	BreakerFailures int           `env:"OFFLINESYNC_BREAKER_FAILURES" envDefault:"3"`
	BreakerReset    time.Duration `env:"OFFLINESYNC_BREAKER_RESET" envDefault:"15s"`

	LogEnabled      bool    `env:"OFFLINESYNC_LOG_ENABLED" envDefault:"true"`
	LogLevel        string  `env:"OFFLINESYNC_LOG_LEVEL" envDefault:"info"`
	TracingExporter string  `env:"OFFLINESYNC_TRACING_EXPORTER"`
	TraceSamplePct  float64 `env:"OFFLINESYNC_TRACE_SAMPLE_PCT" envDefault:"1"`
	MetricsExporter string  `env:"OFFLINESYNC_METRICS_EXPORTER"`
}

// LoadConfig reads the configuration from the environment.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("engine: parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.APIOrigin != "" {
		u, err := url.Parse(c.APIOrigin)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("%w: api origin %q", ErrInvalidConfig, c.APIOrigin)
		}
	}
	if c.RequestTimeout < 0 || c.DrainDebounce < 0 || c.BreakerReset < 0 {
		return fmt.Errorf("%w: negative duration", ErrInvalidConfig)
	}
	if c.ReplayAttempts < 0 || c.MaxRetries < 0 || c.BackgroundLimit < 0 || c.BreakerFailures < 0 || c.MaxConcurrentRequests < 0 {
		return fmt.Errorf("%w: negative count", ErrInvalidConfig)
	}
	oc := c.observeConfig()
	if err := oc.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

func (c Config) observeConfig() observe.Config {
	name := c.ServiceName
	if name == "" {
		name = "offlinesync"
	}
	return observe.Config{
		ServiceName: name,
		Version:     c.Version,
		Tracing: observe.TracingConfig{
			Enabled:   c.TracingExporter != "" && c.TracingExporter != "none",
			Exporter:  c.TracingExporter,
			SamplePct: c.TraceSamplePct,
		},
		Metrics: observe.MetricsConfig{
			Enabled:  c.MetricsExporter != "" && c.MetricsExporter != "none",
			Exporter: c.MetricsExporter,
		},
		Logging: observe.LoggingConfig{
			Enabled: c.LogEnabled,
			Level:   c.LogLevel,
		},
	}
}
