package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 10, cfg.Engine.MaxConcurrency)
	assert.Equal(t, 30*time.Second, cfg.Retry.MaxDelay)
	assert.True(t, cfg.Breaker.Enabled)
	assert.Equal(t, 5, cfg.Breaker.FailureThreshold)
	assert.Equal(t, 200, cfg.Verification.StateBound)
	assert.Equal(t, 1, cfg.Verification.MaxTokensPerPlace)
	assert.Equal(t, 1000, cfg.Simulation.MaxSteps)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
engine:
  max_concurrency: 4
  default_timeout: 2m
  fail_fast: true

retry:
  max_delay: 5s

breaker:
  failure_threshold: 3
  cooldown: 10s

verification:
  state_bound: 500

logging:
  level: debug
  format: json
`
	require.NoError(t, os.WriteFile(configPath, []byte(configContent), 0644))

	cfg, err := LoadFromFile(configPath)
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.Engine.MaxConcurrency)
	assert.Equal(t, 2*time.Minute, cfg.Engine.DefaultTimeout)
	assert.True(t, cfg.Engine.FailFast)
	assert.Equal(t, 5*time.Second, cfg.Retry.MaxDelay)
	assert.Equal(t, 3, cfg.Breaker.FailureThreshold)
	assert.Equal(t, 10*time.Second, cfg.Breaker.Cooldown)
	// 未设置的字段保留默认值
	assert.Equal(t, 60*time.Second, cfg.Breaker.Window)
	assert.Equal(t, 500, cfg.Verification.StateBound)
	assert.Equal(t, 1, cfg.Verification.MaxTokensPerPlace)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadFromNonExistentFile(t *testing.T) {
	cfg, err := LoadFromFile("/nonexistent/path/config.yaml")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Engine.MaxConcurrency, cfg.Engine.MaxConcurrency)
}

func TestLoadInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("engine: [oops"), 0644))

	_, err := LoadFromFile(path)
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	env := map[string]string{
		"TF_ENGINE_MAX_CONCURRENCY":    "3",
		"TF_BREAKER_COOLDOWN":          "1m",
		"TF_BREAKER_ENABLED":           "false",
		"TF_VERIFY_STATE_BOUND":        "42",
		"TF_LOG_LEVEL":                 "warn",
		"TF_BREAKER_FAILURE_THRESHOLD": "",
	}
	cfg, err := NewLoader().WithEnvLookup(func(k string) string { return env[k] }).Load()
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Engine.MaxConcurrency)
	assert.Equal(t, time.Minute, cfg.Breaker.Cooldown)
	assert.False(t, cfg.Breaker.Enabled)
	assert.Equal(t, 42, cfg.Verification.StateBound)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, 5, cfg.Breaker.FailureThreshold)
}

func TestEnvOverrideInvalidValue(t *testing.T) {
	env := map[string]string{"TF_ENGINE_MAX_CONCURRENCY": "many"}
	_, err := NewLoader().WithEnvLookup(func(k string) string { return env[k] }).Load()
	assert.Error(t, err)
}

func TestPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("engine:\n  max_concurrency: 4\nsimulation:\n  max_steps: 50\n"), 0644))

	env := map[string]string{"TF_ENGINE_MAX_CONCURRENCY": "6"}
	cfg, err := NewLoader().
		WithConfigPath(path).
		WithEnvLookup(func(k string) string { return env[k] }).
		WithCmdArgs(map[string]string{"engine.max_concurrency": "8"}).
		Load()
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.Engine.MaxConcurrency, "flag wins over env and file")
	assert.Equal(t, 50, cfg.Simulation.MaxSteps, "file wins over defaults")
}

func TestCmdArgs(t *testing.T) {
	cfg, err := NewLoader().WithEnvLookup(func(string) string { return "" }).WithCmdArgs(map[string]string{
		"breaker.failure_threshold":         "2",
		"verification.max_tokens_per_place": "3",
		"retry.max_delay":                   "250ms",
		"engine.fail_fast":                  "true",
	}).Load()
	require.NoError(t, err)

	assert.Equal(t, 2, cfg.Breaker.FailureThreshold)
	assert.Equal(t, 3, cfg.Verification.MaxTokensPerPlace)
	assert.Equal(t, 250*time.Millisecond, cfg.Retry.MaxDelay)
	assert.True(t, cfg.Engine.FailFast)

	_, err = NewLoader().WithCmdArgs(map[string]string{"nope.field": "1"}).Load()
	assert.Error(t, err)

	_, err = NewLoader().WithCmdArgs(map[string]string{"engine.max_concurrency.x": "1"}).Load()
	assert.Error(t, err)
}

func TestParseSetFlags(t *testing.T) {
	m, err := ParseSetFlags([]string{"engine.max_concurrency=4", " logging.level = debug "})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"engine.max_concurrency": "4", "logging.level": "debug"}, m)

	_, err = ParseSetFlags([]string{"novalue"})
	assert.Error(t, err)
}

func TestValidation(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Engine.MaxConcurrency = 0
	cfg.Breaker.FailureThreshold = 0
	cfg.Verification.StateBound = -1
	cfg.Simulation.MaxSteps = 0
	cfg.Logging.Level = "loud"
	cfg.Logging.Output = "file"
	cfg.Logging.FilePath = ""

	err := cfg.Validate()
	require.Error(t, err)

	var verrs ValidationErrors
	require.ErrorAs(t, err, &verrs)
	fields := make([]string, 0, len(verrs))
	for _, e := range verrs {
		fields = append(fields, e.Field)
	}
	assert.ElementsMatch(t, []string{
		"engine.max_concurrency",
		"breaker.failure_threshold",
		"verification.state_bound",
		"simulation.max_steps",
		"logging.level",
		"logging.file_path",
	}, fields)
}

func TestValidationSkipsDisabledBreaker(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Breaker.Enabled = false
	cfg.Breaker.FailureThreshold = 0
	assert.NoError(t, cfg.Validate())
}

func TestSerializeRoundTrip(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Engine.MaxConcurrency = 7

	data, err := cfg.Serialize()
	require.NoError(t, err)
	parsed, err := ParseConfig(data)
	require.NoError(t, err)
	assert.Equal(t, cfg, parsed)

	clone := cfg.Clone()
	clone.Engine.MaxConcurrency = 1
	assert.Equal(t, 7, cfg.Engine.MaxConcurrency)
}

func TestLoggerConfig(t *testing.T) {
	lc := DefaultConfig().Logging.LoggerConfig()
	assert.Equal(t, "info", lc.Level)
	assert.Equal(t, "stderr", lc.Output)
}
