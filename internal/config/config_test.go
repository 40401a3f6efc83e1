package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "report-eval.db", cfg.Store.SQLitePath)
	assert.Equal(t, 5, cfg.Index.TopK)
	assert.Equal(t, "anthropic", cfg.Completion.Provider)
	assert.Equal(t, "claude-sonnet-4-5-20250929", cfg.Completion.Model)
	assert.Equal(t, 1024, cfg.Completion.MaxTokens)
	assert.Equal(t, 3, cfg.Completion.MaxAttempts)
	assert.InDelta(t, 2.0, cfg.Completion.RequestsPerSecond, 0.001)
	assert.Equal(t, "5m", cfg.Anthropic.CacheTTL)
	assert.Equal(t, 1, cfg.Analysis.Concurrency)
	assert.True(t, cfg.Analysis.RequireContext)
	assert.Equal(t, "normalized", cfg.Analysis.Matcher)
	assert.Equal(t, "report-eval", cfg.Temporal.TaskQueue)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, []string{"*"}, cfg.Server.CORSOrigins)
	assert.InDelta(t, 0.25, cfg.Monitoring.FailureRateThreshold, 0.001)
	assert.Equal(t, 5, cfg.Monitoring.MinCells)
	assert.Equal(t, 300, cfg.Monitoring.CheckIntervalSecs)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/eval
completion:
  provider: openai
  model: gpt-4o-mini
analysis:
  concurrency: 4
  require_context: false
log:
  level: debug
  format: console
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/eval", cfg.Store.DatabaseURL)
	assert.Equal(t, "openai", cfg.Completion.Provider)
	assert.Equal(t, "gpt-4o-mini", cfg.Completion.Model)
	assert.Equal(t, 4, cfg.Analysis.Concurrency)
	assert.False(t, cfg.Analysis.RequireContext)
	assert.Equal(t, "console", cfg.Log.Format)
	// Defaults still apply for unset values
	assert.Equal(t, 5, cfg.Index.TopK)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	t.Setenv("EVAL_STORE_DRIVER", "postgres")
	t.Setenv("EVAL_LOG_LEVEL", "warn")
	t.Setenv("EVAL_ANTHROPIC_KEY", "sk-ant-env")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "sk-ant-env", cfg.Anthropic.Key)
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("store: [unclosed"), 0o644))

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config: read file")
}

func TestInitLogger(t *testing.T) {
	require.NoError(t, InitLogger(LogConfig{Level: "debug", Format: "console"}))
	assert.NotNil(t, zap.L())
	require.NoError(t, InitLogger(LogConfig{Level: "info", Format: "json"}))
	assert.Error(t, InitLogger(LogConfig{Level: "invalid", Format: "json"}))
}

// validDefaults returns a Config with defaults populated for validation tests.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Store.Driver = "sqlite"
	cfg.Store.SQLitePath = "eval.db"
	cfg.Index.TopK = 5
	cfg.Completion.Provider = "anthropic"
	cfg.Completion.Model = "claude-sonnet-4-5-20250929"
	cfg.Completion.MaxTokens = 1024
	cfg.Anthropic.Key = "sk-ant-key"
	cfg.Analysis.Concurrency = 1
	cfg.Analysis.Matcher = "normalized"
	cfg.Temporal.HostPort = "localhost:7233"
	cfg.Temporal.TaskQueue = "report-eval"
	cfg.Temporal.CompanyWindow = 4
	cfg.Server.Port = 8080
	cfg.Stage.Endpoint = "localhost:9000"
	cfg.Stage.Bucket = "annual-reports"
	cfg.Monitoring.FailureRateThreshold = 0.25
	return cfg
}

func TestValidate_AllModesPass(t *testing.T) {
	cfg := validDefaults()
	for _, mode := range []string{"store", "analyze", "serve", "worker", "stage"} {
		assert.NoError(t, cfg.Validate(mode), mode)
	}
}

func TestValidateAnalyze_MissingKey(t *testing.T) {
	cfg := validDefaults()
	cfg.Anthropic.Key = ""

	err := cfg.Validate("analyze")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "EVAL_ANTHROPIC_KEY")
}

func TestValidateAnalyze_ProviderKeys(t *testing.T) {
	cfg := validDefaults()
	cfg.Completion.Provider = "openai"
	err := cfg.Validate("analyze")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "openai.key is required")

	cfg.OpenAI.Key = "sk-openai"
	assert.NoError(t, cfg.Validate("analyze"))

	cfg.Completion.Provider = "gemini"
	err = cfg.Validate("analyze")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gemini.key is required")

	cfg.Completion.Provider = "mistral"
	err = cfg.Validate("analyze")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "completion.provider")
}

func TestValidateStore_Postgres(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = "postgres"
	err := cfg.Validate("store")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.database_url is required")

	cfg.Store.DatabaseURL = "postgres://localhost/eval"
	assert.NoError(t, cfg.Validate("store"))

	cfg.Store.Driver = "mysql"
	assert.Error(t, cfg.Validate("store"))
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := validDefaults()
	cfg.Anthropic.Key = ""
	cfg.Analysis.Concurrency = 0
	cfg.Index.TopK = 0

	err := cfg.Validate("analyze")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "anthropic.key")
	assert.Contains(t, err.Error(), "analysis.concurrency must be between 1 and 32")
	assert.Contains(t, err.Error(), "index.top_k")
}

func TestValidateServe_InvalidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0

	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")
}

func TestValidateWorker_MissingTemporal(t *testing.T) {
	cfg := validDefaults()
	cfg.Temporal.HostPort = ""
	cfg.Temporal.CompanyWindow = 0

	err := cfg.Validate("worker")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "temporal.host_port")
	assert.Contains(t, err.Error(), "temporal.company_window")
}

func TestValidateStage_Missing(t *testing.T) {
	cfg := validDefaults()
	cfg.Stage.Endpoint = ""

	err := cfg.Validate("stage")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stage.endpoint is required")
}

func TestValidate_FailureRateBounds(t *testing.T) {
	cfg := validDefaults()
	cfg.Monitoring.FailureRateThreshold = 1.5
	err := cfg.Validate("store")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failure_rate_threshold")
}

func TestValidateUnknownMode(t *testing.T) {
	err := validDefaults().Validate("unknown")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}
