package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"yqhp/taskflow/pkg/logger"
)

// Config represents the complete configuration for taskflow.
type Config struct {
	Engine       EngineConfig       `yaml:"engine"`
	Retry        RetryConfig        `yaml:"retry"`
	Breaker      BreakerConfig      `yaml:"breaker"`
	Verification VerificationConfig `yaml:"verification"`
	Simulation   SimulationConfig   `yaml:"simulation"`
	Logging      LoggingConfig      `yaml:"logging"`
}

// EngineConfig holds DAG execution engine configuration.
type EngineConfig struct {
	MaxConcurrency int           `yaml:"max_concurrency" env:"TF_ENGINE_MAX_CONCURRENCY"`
	DefaultTimeout time.Duration `yaml:"default_timeout" env:"TF_ENGINE_DEFAULT_TIMEOUT"`
	FailFast       bool          `yaml:"fail_fast" env:"TF_ENGINE_FAIL_FAST"`
}

// RetryConfig holds retry limits shared by every node.
type RetryConfig struct {
	MaxDelay time.Duration `yaml:"max_delay" env:"TF_RETRY_MAX_DELAY"`
}

// BreakerConfig holds circuit breaker configuration.
type BreakerConfig struct {
	Enabled          bool          `yaml:"enabled" env:"TF_BREAKER_ENABLED"`
	FailureThreshold int           `yaml:"failure_threshold" env:"TF_BREAKER_FAILURE_THRESHOLD"`
	Window           time.Duration `yaml:"window" env:"TF_BREAKER_WINDOW"`
	Cooldown         time.Duration `yaml:"cooldown" env:"TF_BREAKER_COOLDOWN"`
}

// VerificationConfig holds reachability analysis limits.
type VerificationConfig struct {
	StateBound        int `yaml:"state_bound" env:"TF_VERIFY_STATE_BOUND"`
	MaxTokensPerPlace int `yaml:"max_tokens_per_place" env:"TF_VERIFY_MAX_TOKENS_PER_PLACE"`
}

// SimulationConfig holds simulator limits.
type SimulationConfig struct {
	MaxSteps int `yaml:"max_steps" env:"TF_SIM_MAX_STEPS"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `yaml:"level" env:"TF_LOG_LEVEL"`
	Format     string `yaml:"format" env:"TF_LOG_FORMAT"`
	Output     string `yaml:"output" env:"TF_LOG_OUTPUT"`
	FilePath   string `yaml:"file_path" env:"TF_LOG_FILE_PATH"`
	MaxSize    int    `yaml:"max_size" env:"TF_LOG_MAX_SIZE"`
	MaxBackups int    `yaml:"max_backups" env:"TF_LOG_MAX_BACKUPS"`
	MaxAge     int    `yaml:"max_age" env:"TF_LOG_MAX_AGE"`
}

// LoggerConfig converts the logging section into a logger.Config.
func (c LoggingConfig) LoggerConfig() *logger.Config {
	return &logger.Config{
		Level:      c.Level,
		Format:     c.Format,
		Output:     c.Output,
		FilePath:   c.FilePath,
		MaxSize:    c.MaxSize,
		MaxBackups: c.MaxBackups,
		MaxAge:     c.MaxAge,
	}
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		Engine: EngineConfig{
			MaxConcurrency: 10,
			DefaultTimeout: 0, // 不限制
			FailFast:       false,
		},
		Retry: RetryConfig{
			MaxDelay: 30 * time.Second,
		},
		Breaker: BreakerConfig{
			Enabled:          true,
			FailureThreshold: 5,
			Window:           60 * time.Second,
			Cooldown:         30 * time.Second,
		},
		Verification: VerificationConfig{
			StateBound:        200,
			MaxTokensPerPlace: 1,
		},
		Simulation: SimulationConfig{
			MaxSteps: 1000,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "console",
			Output:     "stderr",
			FilePath:   "logs/taskflow.log",
			MaxSize:    100,
			MaxBackups: 3,
			MaxAge:     7,
		},
	}
}

// Loader handles configuration loading from multiple sources.
type Loader struct {
	configPath string
	cmdArgs    map[string]string
	lookupEnv  func(string) string
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	return &Loader{
		cmdArgs:   make(map[string]string),
		lookupEnv: os.Getenv,
	}
}

// WithConfigPath sets the path to the YAML configuration file.
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithCmdArgs sets command-line arguments for configuration override.
func (l *Loader) WithCmdArgs(args map[string]string) *Loader {
	l.cmdArgs = args
	return l
}

// WithEnvLookup replaces os.Getenv, mainly for tests.
func (l *Loader) WithEnvLookup(fn func(string) string) *Loader {
	l.lookupEnv = fn
	return l
}

// Load loads configuration from all sources with proper precedence:
// defaults < YAML file < environment variables < command-line flags
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("从文件加载配置失败: %w", err)
		}
	}

	if err := l.applyEnvToStruct(reflect.ValueOf(cfg).Elem()); err != nil {
		return nil, fmt.Errorf("应用环境变量覆盖失败: %w", err)
	}

	for key, value := range l.cmdArgs {
		if err := setConfigValue(cfg, key, value); err != nil {
			return nil, fmt.Errorf("设置配置值 %s 失败: %w", key, err)
		}
	}

	return cfg, nil
}

// loadFromFile loads configuration from a YAML file.
func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // 文件不存在时使用默认值
		}
		return fmt.Errorf("读取配置文件失败: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("解析配置文件失败: %w", err)
	}
	return nil
}

// applyEnvToStruct recursively applies environment variables to struct fields.
func (l *Loader) applyEnvToStruct(v reflect.Value) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		if field.Kind() == reflect.Struct {
			if err := l.applyEnvToStruct(field); err != nil {
				return err
			}
			continue
		}

		envTag := fieldType.Tag.Get("env")
		if envTag == "" {
			continue
		}
		envValue := l.lookupEnv(envTag)
		if envValue == "" {
			continue
		}

		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("从环境变量 %s 设置字段 %s 失败: %w", envTag, fieldType.Name, err)
		}
	}
	return nil
}

// setConfigValue sets a configuration value by dot-notation path, e.g.
// "breaker.failure_threshold".
func setConfigValue(cfg *Config, path, value string) error {
	parts := strings.Split(path, ".")
	v := reflect.ValueOf(cfg).Elem()

	for i, part := range parts {
		name := strings.ReplaceAll(part, "_", "")
		field := v.FieldByNameFunc(func(fieldName string) bool {
			return strings.EqualFold(fieldName, name)
		})
		if !field.IsValid() {
			return fmt.Errorf("未知的配置路径: %s", path)
		}

		if i == len(parts)-1 {
			return setFieldValue(field, value)
		}

		if field.Kind() != reflect.Struct {
			return fmt.Errorf("期望 %s 是结构体，实际是 %s", part, field.Kind())
		}
		v = field
	}
	return nil
}

// setFieldValue sets a reflect.Value from a string value.
func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return fmt.Errorf("无法设置字段")
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return fmt.Errorf("无效的时间格式: %w", err)
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return fmt.Errorf("无效的整数: %w", err)
			}
			field.SetInt(i)
		}

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("无效的浮点数: %w", err)
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("无效的布尔值: %w", err)
		}
		field.SetBool(b)

	default:
		return fmt.Errorf("不支持的字段类型: %s", field.Kind())
	}
	return nil
}

// ParseSetFlags 把 ["a.b=1", "c=2"] 形式的 --set 参数转换为 map。
func ParseSetFlags(flags []string) (map[string]string, error) {
	out := make(map[string]string, len(flags))
	for _, f := range flags {
		kv := strings.SplitN(f, "=", 2)
		if len(kv) != 2 || strings.TrimSpace(kv[0]) == "" {
			return nil, fmt.Errorf("无效的 --set 参数 %q，期望 key=value", f)
		}
		out[strings.TrimSpace(kv[0])] = strings.TrimSpace(kv[1])
	}
	return out, nil
}

// Serialize serializes the configuration to YAML bytes.
func (c *Config) Serialize() ([]byte, error) {
	return yaml.Marshal(c)
}

// ParseConfig parses a YAML configuration from bytes.
func ParseConfig(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}
	return cfg, nil
}

// LoadFromFile loads configuration from a YAML file path.
func LoadFromFile(path string) (*Config, error) {
	return NewLoader().WithConfigPath(path).Load()
}

// Clone creates a deep copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}
