package config

import (
	"fmt"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("configuration validation failed:\n  - %s", strings.Join(msgs, "\n  - "))
}

// HasErrors returns true if there are any validation errors.
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Validator validates configuration values.
type Validator struct {
	errors ValidationErrors
}

// NewValidator creates a new configuration validator.
func NewValidator() *Validator {
	return &Validator{
		errors: make(ValidationErrors, 0),
	}
}

func (v *Validator) addError(field, message string) {
	v.errors = append(v.errors, ValidationError{Field: field, Message: message})
}

// Validate validates the entire configuration and returns any errors.
func (v *Validator) Validate(cfg *Config) error {
	v.errors = make(ValidationErrors, 0)

	v.validateEngineConfig(&cfg.Engine)
	v.validateRetryConfig(&cfg.Retry)
	v.validateBreakerConfig(&cfg.Breaker)
	v.validateVerificationConfig(&cfg.Verification)
	v.validateSimulationConfig(&cfg.Simulation)
	v.validateLoggingConfig(&cfg.Logging)

	if v.errors.HasErrors() {
		return v.errors
	}
	return nil
}

func (v *Validator) validateEngineConfig(cfg *EngineConfig) {
	if cfg.MaxConcurrency <= 0 {
		v.addError("engine.max_concurrency", "max concurrency must be positive")
	}
	if cfg.DefaultTimeout < 0 {
		v.addError("engine.default_timeout", "default timeout must be non-negative")
	}
}

func (v *Validator) validateRetryConfig(cfg *RetryConfig) {
	if cfg.MaxDelay < 0 {
		v.addError("retry.max_delay", "max delay must be non-negative")
	}
}

func (v *Validator) validateBreakerConfig(cfg *BreakerConfig) {
	if !cfg.Enabled {
		return
	}
	if cfg.FailureThreshold <= 0 {
		v.addError("breaker.failure_threshold", "failure threshold must be positive")
	}
	if cfg.Window <= 0 {
		v.addError("breaker.window", "window must be positive")
	}
	if cfg.Cooldown <= 0 {
		v.addError("breaker.cooldown", "cooldown must be positive")
	}
}

func (v *Validator) validateVerificationConfig(cfg *VerificationConfig) {
	if cfg.StateBound <= 0 {
		v.addError("verification.state_bound", "state bound must be positive")
	}
	if cfg.MaxTokensPerPlace <= 0 {
		v.addError("verification.max_tokens_per_place", "max tokens per place must be positive")
	}
}

func (v *Validator) validateSimulationConfig(cfg *SimulationConfig) {
	if cfg.MaxSteps <= 0 {
		v.addError("simulation.max_steps", "max steps must be positive")
	}
}

func (v *Validator) validateLoggingConfig(cfg *LoggingConfig) {
	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if cfg.Level == "" {
		v.addError("logging.level", "log level is required")
	} else if !validLevels[strings.ToLower(cfg.Level)] {
		v.addError("logging.level", fmt.Sprintf("invalid log level '%s', must be one of: debug, info, warn, error", cfg.Level))
	}

	validFormats := map[string]bool{
		"json":    true,
		"console": true,
	}
	if cfg.Format != "" && !validFormats[strings.ToLower(cfg.Format)] {
		v.addError("logging.format", fmt.Sprintf("invalid log format '%s', must be one of: json, console", cfg.Format))
	}

	validOutputs := map[string]bool{
		"stdout": true,
		"stderr": true,
		"file":   true,
		"both":   true,
	}
	if cfg.Output != "" && !validOutputs[strings.ToLower(cfg.Output)] {
		v.addError("logging.output", fmt.Sprintf("invalid log output '%s', must be one of: stdout, stderr, file, both", cfg.Output))
	}
	if (cfg.Output == "file" || cfg.Output == "both") && cfg.FilePath == "" {
		v.addError("logging.file_path", "file path is required when output is file or both")
	}
}

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	return NewValidator().Validate(c)
}

// LoadAndValidate loads configuration from a file and validates it.
func LoadAndValidate(path string) (*Config, error) {
	cfg, err := LoadFromFile(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
