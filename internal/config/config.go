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
	Index      IndexConfig      `yaml:"index" mapstructure:"index"`
	Completion CompletionConfig `yaml:"completion" mapstructure:"completion"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	OpenAI     OpenAIConfig     `yaml:"openai" mapstructure:"openai"`
	Gemini     GeminiConfig     `yaml:"gemini" mapstructure:"gemini"`
	Analysis   AnalysisConfig   `yaml:"analysis" mapstructure:"analysis"`
	Stage      StageConfig      `yaml:"stage" mapstructure:"stage"`
	Temporal   TemporalConfig   `yaml:"temporal" mapstructure:"temporal"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"` // "postgres" or "sqlite"
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	SQLitePath  string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// IndexConfig configures document retrieval.
type IndexConfig struct {
	TopK            int `yaml:"top_k" mapstructure:"top_k"`
	LoadConcurrency int `yaml:"load_concurrency" mapstructure:"load_concurrency"`
}

// CompletionConfig selects the model provider and how calls are guarded.
type CompletionConfig struct {
	Provider          string  `yaml:"provider" mapstructure:"provider"` // "anthropic", "openai" or "gemini"
	Model             string  `yaml:"model" mapstructure:"model"`
	MaxTokens         int     `yaml:"max_tokens" mapstructure:"max_tokens"`
	Temperature       float64 `yaml:"temperature" mapstructure:"temperature"`
	SystemPrompt      string  `yaml:"system_prompt" mapstructure:"system_prompt"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	Burst             int     `yaml:"burst" mapstructure:"burst"`
	MaxAttempts       int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs  int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs      int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	BreakerThreshold  int     `yaml:"breaker_threshold" mapstructure:"breaker_threshold"`
	BreakerResetSecs  int     `yaml:"breaker_reset_secs" mapstructure:"breaker_reset_secs"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key      string `yaml:"key" mapstructure:"key"`
	BaseURL  string `yaml:"base_url" mapstructure:"base_url"`
	CacheTTL string `yaml:"cache_ttl" mapstructure:"cache_ttl"`
}

// OpenAIConfig holds OpenAI API settings.
type OpenAIConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// GeminiConfig holds Gemini API settings.
type GeminiConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// AnalysisConfig configures run execution.
type AnalysisConfig struct {
	Concurrency    int    `yaml:"concurrency" mapstructure:"concurrency"`
	RequireContext bool   `yaml:"require_context" mapstructure:"require_context"`
	Matcher        string `yaml:"matcher" mapstructure:"matcher"` // "normalized" or "semantic"
	MatcherModel   string `yaml:"matcher_model" mapstructure:"matcher_model"`
}

// StageConfig configures the S3-compatible document stage.
type StageConfig struct {
	Endpoint  string `yaml:"endpoint" mapstructure:"endpoint"`
	AccessKey string `yaml:"access_key" mapstructure:"access_key"`
	SecretKey string `yaml:"secret_key" mapstructure:"secret_key"`
	Bucket    string `yaml:"bucket" mapstructure:"bucket"`
	Region    string `yaml:"region" mapstructure:"region"`
	UseSSL    bool   `yaml:"use_ssl" mapstructure:"use_ssl"`
	Prefix    string `yaml:"prefix" mapstructure:"prefix"`
}

// TemporalConfig configures durable runs.
type TemporalConfig struct {
	HostPort      string `yaml:"host_port" mapstructure:"host_port"`
	Namespace     string `yaml:"namespace" mapstructure:"namespace"`
	TaskQueue     string `yaml:"task_queue" mapstructure:"task_queue"`
	CompanyWindow int    `yaml:"company_window" mapstructure:"company_window"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// MonitoringConfig configures run alerts.
type MonitoringConfig struct {
	WebhookURL           string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	MinCells             int     `yaml:"min_cells" mapstructure:"min_cells"`
	CheckIntervalSecs    int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	RecentRuns           int     `yaml:"recent_runs" mapstructure:"recent_runs"`
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
	v.SetEnvPrefix("EVAL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults. Keys without a meaningful default are registered empty so
	// AutomaticEnv can still fill them on Unmarshal.
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.sqlite_path", "report-eval.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 1)
	v.SetDefault("index.top_k", 5)
	v.SetDefault("index.load_concurrency", 4)
	v.SetDefault("completion.provider", "anthropic")
	v.SetDefault("completion.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("completion.max_tokens", 1024)
	v.SetDefault("completion.temperature", 0.0)
	v.SetDefault("completion.system_prompt", "")
	v.SetDefault("completion.requests_per_second", 2.0)
	v.SetDefault("completion.burst", 2)
	v.SetDefault("completion.max_attempts", 3)
	v.SetDefault("completion.initial_backoff_ms", 500)
	v.SetDefault("completion.max_backoff_ms", 30000)
	v.SetDefault("completion.breaker_threshold", 5)
	v.SetDefault("completion.breaker_reset_secs", 30)
	v.SetDefault("anthropic.key", "")
	v.SetDefault("anthropic.base_url", "")
	v.SetDefault("anthropic.cache_ttl", "5m")
	v.SetDefault("openai.key", "")
	v.SetDefault("openai.base_url", "")
	v.SetDefault("gemini.key", "")
	v.SetDefault("gemini.base_url", "")
	v.SetDefault("analysis.concurrency", 1)
	v.SetDefault("analysis.require_context", true)
	v.SetDefault("analysis.matcher", "normalized")
	v.SetDefault("analysis.matcher_model", "claude-haiku-4-5-20251001")
	v.SetDefault("stage.endpoint", "")
	v.SetDefault("stage.access_key", "")
	v.SetDefault("stage.secret_key", "")
	v.SetDefault("stage.bucket", "annual-reports")
	v.SetDefault("stage.region", "")
	v.SetDefault("stage.use_ssl", true)
	v.SetDefault("stage.prefix", "uploads")
	v.SetDefault("temporal.host_port", "localhost:7233")
	v.SetDefault("temporal.namespace", "default")
	v.SetDefault("temporal.task_queue", "report-eval")
	v.SetDefault("temporal.company_window", 4)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("monitoring.webhook_url", "")
	v.SetDefault("monitoring.failure_rate_threshold", 0.25)
	v.SetDefault("monitoring.min_cells", 5)
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.recent_runs", 10)
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
