// Package config resolves process-wide orchestrator configuration by
// layering, lowest to highest precedence: built-in defaults, an optional
// workspace config file, and environment variables. This mirrors the
// teacher's own defaults->shared->personal->env->flag resolution chain
// (internal/config/resolution.go), collapsed to the three sources this
// spec actually defines.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"

	orcerrors "github.com/randalmurphal/orc-core/internal/errors"
)

const (
	// FileName is the optional workspace-relative config file.
	FileName = ".orc/config.json"

	// EnvLogLevel is the log level environment variable.
	EnvLogLevel = "LOG_LEVEL"
	// EnvOllamaBaseURL is the Ollama-compatible endpoint base URL.
	EnvOllamaBaseURL = "OLLAMA_BASE_URL"

	// DefaultOllamaBaseURL is used when OLLAMA_BASE_URL is unset.
	DefaultOllamaBaseURL = "http://localhost:11434"
	// DefaultWorkerCommand is the subprocess the executor spawns.
	DefaultWorkerCommand = "claude"
	// DefaultMaxTurns bounds a single dispatch's conversation length.
	DefaultMaxTurns = 25
	// DefaultTokenBudget is the dispatcher's hard prompt-size cap.
	DefaultTokenBudget = 60000
	// DefaultBridgeConcurrency bounds the issue-tracker bridge's remote pool.
	DefaultBridgeConcurrency = 4
)

// Config is the resolved, process-wide configuration.
type Config struct {
	LogLevel          string   `json:"logLevel"`
	OllamaBaseURL     string   `json:"ollamaBaseURL"`
	WorkerCommand     string   `json:"workerCommand"`
	WorkerBaseArgs    []string `json:"workerBaseArgs"`
	MaxTurns          int      `json:"maxTurns"`
	TokenBudget       int      `json:"tokenBudget"`
	BridgeConcurrency int      `json:"bridgeConcurrency"`
}

// fileOverrides is the shape of the optional on-disk config file; every
// field is a pointer so an absent key never clobbers a default with a zero
// value.
type fileOverrides struct {
	LogLevel          *string   `json:"logLevel"`
	OllamaBaseURL     *string   `json:"ollamaBaseURL"`
	WorkerCommand     *string   `json:"workerCommand"`
	WorkerBaseArgs    *[]string `json:"workerBaseArgs"`
	MaxTurns          *int      `json:"maxTurns"`
	TokenBudget       *int      `json:"tokenBudget"`
	BridgeConcurrency *int      `json:"bridgeConcurrency"`
}

// Default returns the built-in configuration defaults.
func Default() Config {
	return Config{
		LogLevel:          "info",
		OllamaBaseURL:     DefaultOllamaBaseURL,
		WorkerCommand:     DefaultWorkerCommand,
		WorkerBaseArgs:    []string{"--print", "--dangerously-skip-permissions"},
		MaxTurns:          DefaultMaxTurns,
		TokenBudget:       DefaultTokenBudget,
		BridgeConcurrency: DefaultBridgeConcurrency,
	}
}

// Load resolves Config for the given workspace root: defaults, then
// <workspaceRoot>/.orc/config.json if present, then environment variables.
func Load(workspaceRoot string) (Config, error) {
	cfg := Default()

	path := filepath.Join(workspaceRoot, FileName)
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		var over fileOverrides
		if jsonErr := json.Unmarshal(data, &over); jsonErr != nil {
			return Config{}, orcerrors.ErrConfigInvalid("config file", "not valid JSON").WithCause(jsonErr)
		}
		applyOverrides(&cfg, over)
	case os.IsNotExist(err):
		// Missing file is not an error — defaults stand.
	default:
		return Config{}, orcerrors.ErrConfigInvalid("config file", "could not be read").WithCause(err)
	}

	applyEnv(&cfg)

	if cfg.TokenBudget <= 0 {
		return Config{}, orcerrors.ErrConfigInvalid("tokenBudget", "must be positive")
	}
	if cfg.MaxTurns <= 0 {
		return Config{}, orcerrors.ErrConfigInvalid("maxTurns", "must be positive")
	}
	if cfg.BridgeConcurrency <= 0 {
		return Config{}, orcerrors.ErrConfigInvalid("bridgeConcurrency", "must be positive")
	}

	return cfg, nil
}

func applyOverrides(cfg *Config, over fileOverrides) {
	if over.LogLevel != nil {
		cfg.LogLevel = *over.LogLevel
	}
	if over.OllamaBaseURL != nil {
		cfg.OllamaBaseURL = *over.OllamaBaseURL
	}
	if over.WorkerCommand != nil {
		cfg.WorkerCommand = *over.WorkerCommand
	}
	if over.WorkerBaseArgs != nil {
		cfg.WorkerBaseArgs = *over.WorkerBaseArgs
	}
	if over.MaxTurns != nil {
		cfg.MaxTurns = *over.MaxTurns
	}
	if over.TokenBudget != nil {
		cfg.TokenBudget = *over.TokenBudget
	}
	if over.BridgeConcurrency != nil {
		cfg.BridgeConcurrency = *over.BridgeConcurrency
	}
}

func applyEnv(cfg *Config) {
	if v, ok := os.LookupEnv(EnvLogLevel); ok && v != "" {
		cfg.LogLevel = v
	}
	if v, ok := os.LookupEnv(EnvOllamaBaseURL); ok && v != "" {
		cfg.OllamaBaseURL = v
	}
}
