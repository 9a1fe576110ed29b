package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Providers  ProvidersConfig  `yaml:"providers" mapstructure:"providers"`
	Catalog    CatalogConfig    `yaml:"catalog" mapstructure:"catalog"`
	Sampling   SamplingConfig   `yaml:"sampling" mapstructure:"sampling"`
	Scoring    ScoringConfig    `yaml:"scoring" mapstructure:"scoring"`
	Report     ReportConfig     `yaml:"report" mapstructure:"report"`
	Worker     WorkerConfig     `yaml:"worker" mapstructure:"worker"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	Path        string `yaml:"path" mapstructure:"path"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int    `yaml:"max_conns" mapstructure:"max_conns"`
}

// ProvidersConfig holds credentials and endpoints per answer-engine family.
type ProvidersConfig struct {
	Anthropic  ProviderConfig `yaml:"anthropic" mapstructure:"anthropic"`
	OpenAI     ProviderConfig `yaml:"openai" mapstructure:"openai"`
	Gemini     ProviderConfig `yaml:"gemini" mapstructure:"gemini"`
	Perplexity ProviderConfig `yaml:"perplexity" mapstructure:"perplexity"`
}

// ProviderConfig holds one provider's API settings. BaseURL is only
// honored by the HTTP-backed providers (openai, perplexity).
type ProviderConfig struct {
	APIKey  string `yaml:"api_key" mapstructure:"api_key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// CatalogConfig configures the model catalog.
type CatalogConfig struct {
	OverlayPath string `yaml:"overlay_path" mapstructure:"overlay_path"`
}

// SamplingConfig configures answer-engine sampling runs.
type SamplingConfig struct {
	Concurrency  int     `yaml:"concurrency" mapstructure:"concurrency"`
	BatchPauseMs int     `yaml:"batch_pause_ms" mapstructure:"batch_pause_ms"`
	MaxTokens    int     `yaml:"max_tokens" mapstructure:"max_tokens"`
	Temperature  float64 `yaml:"temperature" mapstructure:"temperature"`
	TimeoutSecs  int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// ScoringConfig configures the visibility scoring window.
type ScoringConfig struct {
	LookbackDays int `yaml:"lookback_days" mapstructure:"lookback_days"`
	MaxResults   int `yaml:"max_results" mapstructure:"max_results"`
}

// ReportConfig configures report artifact output.
type ReportConfig struct {
	OutputDir string `yaml:"output_dir" mapstructure:"output_dir"`
}

// WorkerConfig configures the job worker pool.
type WorkerConfig struct {
	Count            int      `yaml:"count" mapstructure:"count"`
	PollIntervalMs   int      `yaml:"poll_interval_ms" mapstructure:"poll_interval_ms"`
	LeaseMinutes     int      `yaml:"lease_minutes" mapstructure:"lease_minutes"`
	ReapIntervalSecs int      `yaml:"reap_interval_secs" mapstructure:"reap_interval_secs"`
	Types            []string `yaml:"types" mapstructure:"types"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// MonitoringConfig configures the metrics collector and alerter.
type MonitoringConfig struct {
	WebhookURL            string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	FailureRateThreshold  float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	CostThresholdUSD      float64 `yaml:"cost_threshold_usd" mapstructure:"cost_threshold_usd"`
	QueueBacklogThreshold int     `yaml:"queue_backlog_threshold" mapstructure:"queue_backlog_threshold"`
	LookbackHours         int     `yaml:"lookback_hours" mapstructure:"lookback_hours"`
	IntervalSecs          int     `yaml:"interval_secs" mapstructure:"interval_secs"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("visibility")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("VISIBILITY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "visibility.db")
	v.SetDefault("store.max_conns", 4)
	v.SetDefault("providers.openai.base_url", "https://api.openai.com/v1")
	v.SetDefault("providers.perplexity.base_url", "https://api.perplexity.ai")
	v.SetDefault("sampling.concurrency", 3)
	v.SetDefault("sampling.batch_pause_ms", 500)
	v.SetDefault("sampling.max_tokens", 1024)
	v.SetDefault("sampling.temperature", 0.7)
	v.SetDefault("sampling.timeout_secs", 60)
	v.SetDefault("scoring.lookback_days", 30)
	v.SetDefault("scoring.max_results", 500)
	v.SetDefault("report.output_dir", "reports")
	v.SetDefault("worker.count", 2)
	v.SetDefault("worker.poll_interval_ms", 2000)
	v.SetDefault("worker.lease_minutes", 15)
	v.SetDefault("worker.reap_interval_secs", 60)
	v.SetDefault("server.port", 8080)
	v.SetDefault("monitoring.failure_rate_threshold", 0.25)
	v.SetDefault("monitoring.cost_threshold_usd", 50.0)
	v.SetDefault("monitoring.queue_backlog_threshold", 100)
	v.SetDefault("monitoring.lookback_hours", 24)
	v.SetDefault("monitoring.interval_secs", 300)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the fields a given command mode actually needs.
// Modes: "serve", "work", "cli".
func (c *Config) Validate(mode string) error {
	var problems []string

	switch c.Store.Driver {
	case "sqlite":
		if c.Store.Path == "" {
			problems = append(problems, "store.path is required for the sqlite driver")
		}
	case "postgres":
		if c.Store.DatabaseURL == "" {
			problems = append(problems, "store.database_url is required for the postgres driver")
		}
	default:
		problems = append(problems, fmt.Sprintf("store.driver must be sqlite or postgres, got %q", c.Store.Driver))
	}

	if c.Sampling.Concurrency < 1 || c.Sampling.Concurrency > 10 {
		problems = append(problems, "sampling.concurrency must be between 1 and 10")
	}
	if c.Scoring.LookbackDays <= 0 {
		problems = append(problems, "scoring.lookback_days must be > 0")
	}
	if c.Scoring.MaxResults < 1 || c.Scoring.MaxResults > 5000 {
		problems = append(problems, "scoring.max_results must be between 1 and 5000")
	}

	switch mode {
	case "serve":
		if c.Server.Port <= 0 {
			problems = append(problems, "server.port must be > 0")
		}
	case "work":
		if c.Worker.Count < 1 || c.Worker.Count > 32 {
			problems = append(problems, "worker.count must be between 1 and 32")
		}
		if c.Worker.PollIntervalMs <= 0 {
			problems = append(problems, "worker.poll_interval_ms must be > 0")
		}
		if c.Worker.LeaseMinutes <= 0 {
			problems = append(problems, "worker.lease_minutes must be > 0")
		}
	case "cli":
		// Store checks above are all the CLI needs.
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
