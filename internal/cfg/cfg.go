// Package cfg holds service-level configuration registered through the
// shared flag/env machinery.
package cfg

import (
	"errors"
	"flag"
	"fmt"

	"github.com/carepath/chat/internal/llm"
)

// Config holds the service's own settings; per-subsystem packages register
// their flags separately.
type Config struct {
	DrainSeconds          int
	ShutdownBudgetSeconds int
	APIPort               int

	DBAPIBaseURL          string
	DBAPITimeoutSeconds   int
	ChatLogTimeoutSeconds int

	DefaultLLMMode string
	EagerWarmup    bool
	APIToken       string

	GGUFModelPath    string
	GGUFServerBin    string
	GGUFContextSize  int
	GGUFThreads      int
	GGUFMaxTokens    int
	GGUFTemperature  float64
	TransformerCmd   string
	TransformerModel string
	TransformerMax   int
	LoadTimeoutSecs  int

	HFAPIToken       string
	HFModel          string
	HFTimeoutSeconds int
	HFMaxNewTokens   int
	HFTemperature    float64

	ClaudeAPIKey          string
	ClaudeModel           string
	ClaudeMaxTokens       int
	ClaudeTimeoutSeconds  int

	DatabaseURL string
}

// RegisterFlags binds Config fields to the given FlagSet with defaults inline.
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.IntVar(&c.DrainSeconds, "drain-seconds", 60, "seconds to wait for in-flight requests to drain before shutdown (1..300)")
	fs.IntVar(&c.ShutdownBudgetSeconds, "shutdown-budget-seconds", 90, "total seconds for component shutdown after drain (1..300)")
	fs.IntVar(&c.APIPort, "http-port", 8002, "API listen TCP port (1..65535)")

	fs.StringVar(&c.DBAPIBaseURL, "db-api-base-url", "http://localhost:8001", "base URL of the DB API serving patient summaries and chat logs")
	fs.IntVar(&c.DBAPITimeoutSeconds, "db-api-timeout-seconds", 30, "timeout for patient summary fetches (1..120)")
	fs.IntVar(&c.ChatLogTimeoutSeconds, "chat-log-timeout-seconds", 10, "timeout for chat log storage (1..120)")

	fs.StringVar(&c.DefaultLLMMode, "default-llm-mode", "mock", "backend used when a request names none (mock, gguf, qwen, hf, claude)")
	fs.BoolVar(&c.EagerWarmup, "eager-warmup", false, "load the default local model at startup instead of on first request")
	fs.StringVar(&c.APIToken, "api-token", "", "bearer token required on API requests (empty = auth disabled)")

	fs.StringVar(&c.GGUFModelPath, "gguf-model-path", "", "path to a local .gguf model file (enables the gguf backend)")
	fs.StringVar(&c.GGUFServerBin, "gguf-server-bin", "llama-server", "llama.cpp server binary, resolved via PATH")
	fs.IntVar(&c.GGUFContextSize, "gguf-context-size", 4096, "context window for the gguf backend")
	fs.IntVar(&c.GGUFThreads, "gguf-threads", 4, "CPU threads for the gguf backend")
	fs.IntVar(&c.GGUFMaxTokens, "gguf-max-tokens", 256, "max tokens generated by the gguf backend")
	fs.Float64Var(&c.GGUFTemperature, "gguf-temperature", 0.7, "sampling temperature for the gguf backend")
	fs.StringVar(&c.TransformerCmd, "transformer-command", "", "transformer runtime binary serving an OpenAI-compatible API (enables the qwen backend)")
	fs.StringVar(&c.TransformerModel, "transformer-model", "", "model identifier for the transformer runtime")
	fs.IntVar(&c.TransformerMax, "transformer-max-tokens", 256, "max tokens generated by the transformer backend")
	fs.IntVar(&c.LoadTimeoutSecs, "model-load-timeout-seconds", 600, "startup budget for a local model runner (1..3600)")

	fs.StringVar(&c.HFAPIToken, "hf-api-token", "", "Hugging Face API token (enables the hf backend)")
	fs.StringVar(&c.HFModel, "hf-model", "Qwen/Qwen2.5-7B-Instruct:together", "Hugging Face router model id, provider suffix included")
	fs.IntVar(&c.HFTimeoutSeconds, "hf-timeout-seconds", 30, "timeout for Hugging Face router requests (1..300)")
	fs.IntVar(&c.HFMaxNewTokens, "hf-max-new-tokens", 256, "max tokens generated by the hf backend")
	fs.Float64Var(&c.HFTemperature, "hf-temperature", 0.7, "sampling temperature for the hf backend")

	fs.StringVar(&c.ClaudeAPIKey, "claude-api-key", "", "Anthropic API key (enables the claude backend)")
	fs.StringVar(&c.ClaudeModel, "claude-model", "claude-sonnet-4-20250514", "Anthropic model to use")
	fs.IntVar(&c.ClaudeMaxTokens, "claude-max-tokens", 1024, "max tokens generated by the claude backend")
	fs.IntVar(&c.ClaudeTimeoutSeconds, "claude-timeout-seconds", 120, "timeout for Anthropic requests (1..600)")

	fs.StringVar(&c.DatabaseURL, "database-url", "", "PostgreSQL connection URL for the triage audit store (empty = in-memory)")
}

// Validate checks all configuration fields for correctness.
// It returns an error if any field is invalid, or nil if all fields are valid.
func (c *Config) Validate() error {
	var errs []error

	// Drain and shutdown budgets
	if c.DrainSeconds <= 0 || c.DrainSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid DRAIN_SECONDS %d (must be 1..300)", c.DrainSeconds))
	}
	if c.ShutdownBudgetSeconds <= 0 || c.ShutdownBudgetSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid SHUTDOWN_BUDGET_SECONDS %d (must be 1..300)", c.ShutdownBudgetSeconds))
	}

	// Shutdown budget must be greater than drain time
	if c.ShutdownBudgetSeconds <= c.DrainSeconds {
		errs = append(errs, fmt.Errorf("SHUTDOWN_BUDGET_SECONDS %d must be greater than DRAIN_SECONDS %d", c.ShutdownBudgetSeconds, c.DrainSeconds))
	}

	// API port must be valid TCP port number
	if c.APIPort <= 0 || c.APIPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP_PORT %d (must be 1..65535)", c.APIPort))
	}

	if c.DBAPIBaseURL == "" {
		errs = append(errs, errors.New("DB_API_BASE_URL is required"))
	}
	if c.DBAPITimeoutSeconds <= 0 || c.DBAPITimeoutSeconds > 120 {
		errs = append(errs, fmt.Errorf("invalid DB_API_TIMEOUT_SECONDS %d (must be 1..120)", c.DBAPITimeoutSeconds))
	}
	if c.ChatLogTimeoutSeconds <= 0 || c.ChatLogTimeoutSeconds > 120 {
		errs = append(errs, fmt.Errorf("invalid CHAT_LOG_TIMEOUT_SECONDS %d (must be 1..120)", c.ChatLogTimeoutSeconds))
	}

	mode, err := llm.ParseMode(c.DefaultLLMMode)
	if err != nil {
		errs = append(errs, fmt.Errorf("invalid DEFAULT_LLM_MODE %q", c.DefaultLLMMode))
	} else {
		// The default backend must be constructible from what is configured.
		switch mode {
		case llm.ModeGGUF:
			if c.GGUFModelPath == "" {
				errs = append(errs, errors.New("DEFAULT_LLM_MODE gguf requires GGUF_MODEL_PATH"))
			}
		case llm.ModeQwen:
			if c.TransformerCmd == "" || c.TransformerModel == "" {
				errs = append(errs, errors.New("DEFAULT_LLM_MODE qwen requires TRANSFORMER_COMMAND and TRANSFORMER_MODEL"))
			}
		case llm.ModeHF:
			if c.HFAPIToken == "" {
				errs = append(errs, errors.New("DEFAULT_LLM_MODE hf requires HF_API_TOKEN"))
			}
		case llm.ModeClaude:
			if c.ClaudeAPIKey == "" {
				errs = append(errs, errors.New("DEFAULT_LLM_MODE claude requires CLAUDE_API_KEY"))
			}
		}
	}

	if c.LoadTimeoutSecs <= 0 || c.LoadTimeoutSecs > 3600 {
		errs = append(errs, fmt.Errorf("invalid MODEL_LOAD_TIMEOUT_SECONDS %d (must be 1..3600)", c.LoadTimeoutSecs))
	}
	if c.HFTimeoutSeconds <= 0 || c.HFTimeoutSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid HF_TIMEOUT_SECONDS %d (must be 1..300)", c.HFTimeoutSeconds))
	}
	if c.ClaudeTimeoutSeconds <= 0 || c.ClaudeTimeoutSeconds > 600 {
		errs = append(errs, fmt.Errorf("invalid CLAUDE_TIMEOUT_SECONDS %d (must be 1..600)", c.ClaudeTimeoutSeconds))
	}
	if c.GGUFModelPath != "" && c.GGUFServerBin == "" {
		errs = append(errs, errors.New("GGUF_SERVER_BIN is required when GGUF_MODEL_PATH is set"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
