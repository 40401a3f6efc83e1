package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
)

// Validate checks the settings the given command needs. Modes: "analyze",
// "serve", "worker", "stage" and "store" (any command that only touches the
// database).
func (c *Config) Validate(mode string) error {
	var errs []string
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Sprintf(format, args...))
	}

	checkStore := func() {
		switch c.Store.Driver {
		case "postgres":
			if c.Store.DatabaseURL == "" {
				add("store.database_url is required for the postgres driver (EVAL_STORE_DATABASE_URL)")
			}
		case "sqlite":
			if c.Store.SQLitePath == "" {
				add("store.sqlite_path is required for the sqlite driver (EVAL_STORE_SQLITE_PATH)")
			}
		default:
			add("store.driver must be postgres or sqlite, got %q", c.Store.Driver)
		}
	}

	checkCompletion := func() {
		switch c.Completion.Provider {
		case "anthropic":
			if c.Anthropic.Key == "" {
				add("anthropic.key is required (EVAL_ANTHROPIC_KEY)")
			}
		case "openai":
			if c.OpenAI.Key == "" {
				add("openai.key is required (EVAL_OPENAI_KEY)")
			}
		case "gemini":
			if c.Gemini.Key == "" {
				add("gemini.key is required (EVAL_GEMINI_KEY)")
			}
		default:
			add("completion.provider must be anthropic, openai or gemini, got %q", c.Completion.Provider)
		}
		if c.Completion.Model == "" {
			add("completion.model is required (EVAL_COMPLETION_MODEL)")
		}
		if c.Completion.MaxTokens <= 0 {
			add("completion.max_tokens must be > 0")
		}
		if c.Completion.Temperature < 0 || c.Completion.Temperature > 2 {
			add("completion.temperature must be between 0 and 2")
		}
		if c.Completion.RequestsPerSecond < 0 {
			add("completion.requests_per_second must be >= 0")
		}
		if c.Analysis.Concurrency < 1 || c.Analysis.Concurrency > 32 {
			add("analysis.concurrency must be between 1 and 32")
		}
		if c.Index.TopK < 1 {
			add("index.top_k must be > 0")
		}
		if c.Analysis.Matcher != "normalized" && c.Analysis.Matcher != "semantic" {
			add("analysis.matcher must be normalized or semantic, got %q", c.Analysis.Matcher)
		}
	}

	checkTemporal := func() {
		if c.Temporal.HostPort == "" {
			add("temporal.host_port is required (EVAL_TEMPORAL_HOST_PORT)")
		}
		if c.Temporal.TaskQueue == "" {
			add("temporal.task_queue is required (EVAL_TEMPORAL_TASK_QUEUE)")
		}
	}

	if c.Monitoring.FailureRateThreshold < 0 || c.Monitoring.FailureRateThreshold > 1 {
		add("monitoring.failure_rate_threshold must be between 0 and 1")
	}

	switch mode {
	case "store":
		checkStore()
	case "analyze":
		checkStore()
		checkCompletion()
	case "serve":
		checkStore()
		if c.Server.Port <= 0 {
			add("server.port must be > 0")
		}
	case "worker":
		checkStore()
		checkCompletion()
		checkTemporal()
		if c.Temporal.CompanyWindow < 1 {
			add("temporal.company_window must be > 0")
		}
	case "stage":
		if c.Stage.Endpoint == "" {
			add("stage.endpoint is required (EVAL_STAGE_ENDPOINT)")
		}
		if c.Stage.Bucket == "" {
			add("stage.bucket is required (EVAL_STAGE_BUCKET)")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}
