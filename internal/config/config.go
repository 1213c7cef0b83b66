package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Oracle     OracleConfig     `yaml:"oracle" mapstructure:"oracle"`
	Session    SessionConfig    `yaml:"session" mapstructure:"session"`
	Resolver   ResolverConfig   `yaml:"resolver" mapstructure:"resolver"`
	Calendly   CalendlyConfig   `yaml:"calendly" mapstructure:"calendly"`
	Notion     NotionConfig     `yaml:"notion" mapstructure:"notion"`
	Salesforce SalesforceConfig `yaml:"salesforce" mapstructure:"salesforce"`
	Bulk       BulkConfig       `yaml:"bulk" mapstructure:"bulk"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Monitor    MonitorConfig    `yaml:"monitor" mapstructure:"monitor"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the session database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	Path        string `yaml:"path" mapstructure:"path"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key         string `yaml:"key" mapstructure:"key"`
	HaikuModel  string `yaml:"haiku_model" mapstructure:"haiku_model"`
	SonnetModel string `yaml:"sonnet_model" mapstructure:"sonnet_model"`
}

// OracleConfig tunes the judgment client wrapping the Anthropic API.
type OracleConfig struct {
	TimeoutSecs      int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RatePerSec       float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	RateBurst        int     `yaml:"rate_burst" mapstructure:"rate_burst"`
	FailureThreshold int     `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int     `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
}

// SessionConfig tunes the onboarding conversation behavior.
type SessionConfig struct {
	// MaxAttempts is how many rejected answers a field tolerates before it
	// is parked for manual review and the conversation moves on.
	MaxAttempts int `yaml:"max_attempts" mapstructure:"max_attempts"`
	// ConfidenceThreshold is the minimum assessment confidence for an
	// answer to be accepted.
	ConfidenceThreshold float64 `yaml:"confidence_threshold" mapstructure:"confidence_threshold"`
	// AutoCompleteRiskBelow is the risk score below which a complete,
	// failure-free session finishes without manual verification.
	AutoCompleteRiskBelow float64 `yaml:"auto_complete_risk_below" mapstructure:"auto_complete_risk_below"`
}

// ResolverConfig configures the field-requirement resolver.
type ResolverConfig struct {
	// CatalogPath points at a requirements YAML file. Empty uses the
	// embedded default catalog.
	CatalogPath string `yaml:"catalog_path" mapstructure:"catalog_path"`
}

// CalendlyConfig holds Calendly API settings for verification scheduling.
type CalendlyConfig struct {
	Token     string `yaml:"token" mapstructure:"token"`
	EventType string `yaml:"event_type" mapstructure:"event_type"`
	BaseURL   string `yaml:"base_url" mapstructure:"base_url"`
}

// NotionConfig holds Notion API credentials and the review board database ID.
type NotionConfig struct {
	Token    string `yaml:"token" mapstructure:"token"`
	ReviewDB string `yaml:"review_db" mapstructure:"review_db"`
}

// SalesforceConfig holds Salesforce JWT auth settings.
type SalesforceConfig struct {
	ClientID string `yaml:"client_id" mapstructure:"client_id"`
	Username string `yaml:"username" mapstructure:"username"`
	KeyPath  string `yaml:"key_path" mapstructure:"key_path"`
	LoginURL string `yaml:"login_url" mapstructure:"login_url"`
}

// BulkConfig configures bulk import processing.
type BulkConfig struct {
	MaxConcurrentRows int `yaml:"max_concurrent_rows" mapstructure:"max_concurrent_rows"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// MonitorConfig configures the session health sweep. WebhookURL is
// optional; when empty, alerts are evaluated but only logged.
type MonitorConfig struct {
	SweepIntervalSecs int    `yaml:"sweep_interval_secs" mapstructure:"sweep_interval_secs"`
	IdleThresholdMins int    `yaml:"idle_threshold_mins" mapstructure:"idle_threshold_mins"`
	StalledThreshold  int    `yaml:"stalled_threshold" mapstructure:"stalled_threshold"`
	BacklogThreshold  int    `yaml:"backlog_threshold" mapstructure:"backlog_threshold"`
	WebhookURL        string `yaml:"webhook_url" mapstructure:"webhook_url"`
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
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("ONBOARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "onboard.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("anthropic.haiku_model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.sonnet_model", "claude-sonnet-4-5-20250929")
	v.SetDefault("oracle.timeout_secs", 30)
	v.SetDefault("oracle.rate_per_sec", 2.0)
	v.SetDefault("oracle.rate_burst", 4)
	v.SetDefault("oracle.failure_threshold", 5)
	v.SetDefault("oracle.reset_timeout_secs", 30)
	v.SetDefault("session.max_attempts", 2)
	v.SetDefault("session.confidence_threshold", 0.7)
	v.SetDefault("session.auto_complete_risk_below", 50.0)
	v.SetDefault("calendly.base_url", "https://api.calendly.com")
	v.SetDefault("salesforce.login_url", "https://login.salesforce.com")
	v.SetDefault("bulk.max_concurrent_rows", 8)
	v.SetDefault("monitor.sweep_interval_secs", 60)
	v.SetDefault("monitor.idle_threshold_mins", 30)
	v.SetDefault("monitor.stalled_threshold", 5)
	v.SetDefault("monitor.backlog_threshold", 20)

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

// Validate checks that the configuration is usable for the given command
// mode. All problems are reported at once.
func (c *Config) Validate(mode string) error {
	var problems []string

	addShared := func() {
		if c.Session.MaxAttempts < 1 || c.Session.MaxAttempts > 10 {
			problems = append(problems, "session.max_attempts must be between 1 and 10")
		}
		if c.Session.ConfidenceThreshold < 0 || c.Session.ConfidenceThreshold > 1 {
			problems = append(problems, "session.confidence_threshold must be between 0 and 1")
		}
		if c.Session.AutoCompleteRiskBelow < 0 || c.Session.AutoCompleteRiskBelow > 100 {
			problems = append(problems, "session.auto_complete_risk_below must be between 0 and 100")
		}
		if c.Oracle.RatePerSec <= 0 {
			problems = append(problems, "oracle.rate_per_sec must be > 0")
		}
	}

	switch mode {
	case "serve":
		addShared()
		if c.Server.Port <= 0 {
			problems = append(problems, "server.port must be > 0")
		}
		if c.Anthropic.Key == "" {
			problems = append(problems, "anthropic.key is required")
		}
	case "session", "score":
		addShared()
		if c.Anthropic.Key == "" {
			problems = append(problems, "anthropic.key is required")
		}
	case "import":
		if c.Bulk.MaxConcurrentRows < 1 || c.Bulk.MaxConcurrentRows > 50 {
			problems = append(problems, "bulk.max_concurrent_rows must be between 1 and 50")
		}
	case "review":
		if (c.Notion.Token == "" || c.Notion.ReviewDB == "") && c.Salesforce.ClientID == "" {
			problems = append(problems, "review sync needs notion.token + notion.review_db or salesforce credentials")
		}
	case "validate":
		// Pure local validation, nothing to check.
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.New("config: " + strings.Join(problems, "; "))
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
