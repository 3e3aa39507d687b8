package config

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. STELLAR_GENERAL_ACTIONTIMEOUT.
const EnvPrefix = "STELLAR"

// Config is the configuration tree shared by the engine, the satellites and
// the action pipeline.
type Config struct {
	General  GeneralConfig     `mapstructure:"general" yaml:"general"`
	Logger   LoggerConfig      `mapstructure:"logger" yaml:"logger"`
	Redis    RedisConfig       `mapstructure:"redis" yaml:"redis"`
	Cache    CacheConfig       `mapstructure:"cache" yaml:"cache"`
	Tasks    TasksConfig       `mapstructure:"tasks" yaml:"tasks"`
	Database DatabaseConfig    `mapstructure:"database" yaml:"database"`
	Metrics  MetricsConfig     `mapstructure:"metrics" yaml:"metrics"`
	Web      WebConfig         `mapstructure:"web" yaml:"web"`
	Errors   map[string]string `mapstructure:"errors" yaml:"errors"`

	file string
}

// GeneralConfig holds the runtime-wide settings.
type GeneralConfig struct {
	ID                  string        `mapstructure:"id" yaml:"id"`
	SimultaneousActions int           `mapstructure:"simultaneousActions" validate:"gte=1" yaml:"simultaneousActions"`
	ActionTimeout       time.Duration `mapstructure:"actionTimeout" validate:"gt=0" yaml:"actionTimeout"`
	FilteredParams      []string      `mapstructure:"filteredParams" yaml:"filteredParams"`
	DevelopmentMode     bool          `mapstructure:"developmentMode" yaml:"developmentMode"`
	ModulesDir          string        `mapstructure:"modulesDir" yaml:"modulesDir"`
	Modules             []string      `mapstructure:"modules" yaml:"modules"`
	Paths               PathsConfig   `mapstructure:"paths" yaml:"paths"`
}

// PathsConfig lists the directories the runtime writes to.
type PathsConfig struct {
	Pid  string `mapstructure:"pid" yaml:"pid"`
	Temp string `mapstructure:"temp" yaml:"temp"`
}

// LoggerConfig mirrors logger.Config plus the pipeline's truncation limit.
type LoggerConfig struct {
	Level              string   `mapstructure:"level" validate:"omitempty,oneof=debug info warn warning error" yaml:"level"`
	Format             string   `mapstructure:"format" validate:"omitempty,oneof=text json" yaml:"format"`
	Outputs            []string `mapstructure:"outputs" yaml:"outputs"`
	MaxLogStringLength int      `mapstructure:"maxLogStringLength" validate:"gte=0" yaml:"maxLogStringLength"`
	MaxSizeMB          int      `mapstructure:"maxSizeMB" yaml:"maxSizeMB"`
	MaxBackups         int      `mapstructure:"maxBackups" yaml:"maxBackups"`
	MaxAgeDays         int      `mapstructure:"maxAgeDays" yaml:"maxAgeDays"`
	AuditPath          string   `mapstructure:"auditPath" yaml:"auditPath"`
}

// RedisConfig describes the shared redis client.
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled" yaml:"enabled"`
	Address  string `mapstructure:"address" validate:"required_if=Enabled true" yaml:"address"`
	Password string `mapstructure:"password" yaml:"password"`
	DB       int    `mapstructure:"db" yaml:"db"`
}

// CacheConfig selects the cache backend.
type CacheConfig struct {
	Driver     string        `mapstructure:"driver" validate:"omitempty,oneof=memory redis" yaml:"driver"`
	Prefix     string        `mapstructure:"prefix" yaml:"prefix"`
	DefaultTTL time.Duration `mapstructure:"defaultTTL" yaml:"defaultTTL"`
}

// TasksConfig describes the background task queue.
type TasksConfig struct {
	Enabled   bool           `mapstructure:"enabled" yaml:"enabled"`
	Driver    string         `mapstructure:"driver" validate:"omitempty,oneof=memory redis rabbitmq" yaml:"driver"`
	Workers   int            `mapstructure:"workers" yaml:"workers"`
	QueueSize int            `mapstructure:"queueSize" yaml:"queueSize"`
	Redis     RedisQueue     `mapstructure:"redis" yaml:"redis"`
	RabbitMQ  RabbitMQConfig `mapstructure:"rabbitmq" yaml:"rabbitmq"`
}

// RedisQueue configures the redis list backing the task queue.
type RedisQueue struct {
	Queue     string        `mapstructure:"queue" yaml:"queue"`
	BlockWait time.Duration `mapstructure:"blockWait" yaml:"blockWait"`
}

// RabbitMQConfig configures the rabbitmq task queue.
type RabbitMQConfig struct {
	URL        string `mapstructure:"url" yaml:"url"`
	Queue      string `mapstructure:"queue" yaml:"queue"`
	Prefetch   int    `mapstructure:"prefetch" yaml:"prefetch"`
	Durable    bool   `mapstructure:"durable" yaml:"durable"`
	AutoDelete bool   `mapstructure:"autoDelete" yaml:"autoDelete"`
}

// DatabaseConfig configures the optional MySQL pool.
type DatabaseConfig struct {
	Enabled         bool          `mapstructure:"enabled" yaml:"enabled"`
	DSN             string        `mapstructure:"dsn" validate:"required_if=Enabled true" yaml:"dsn"`
	MaxOpenConns    int           `mapstructure:"maxOpenConns" yaml:"maxOpenConns"`
	MaxIdleConns    int           `mapstructure:"maxIdleConns" yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `mapstructure:"connMaxLifetime" yaml:"connMaxLifetime"`
}

// MetricsConfig configures the prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Address string `mapstructure:"address" yaml:"address"`
}

// WebConfig configures the HTTP transport.
type WebConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Address string `mapstructure:"address" yaml:"address"`
}

// File returns the path the configuration was read from, if any.
func (c *Config) File() string {
	if c == nil {
		return ""
	}
	return c.file
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults(".")
	return cfg
}

// Load reads the YAML file at path, applies STELLAR_* environment overrides,
// fills defaults and validates the result. A missing file yields defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		return Default(), nil
	}
	v.SetConfigFile(path)
	baseDir := filepath.Dir(path)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist) {
			cfg := &Config{file: path}
			cfg.applyDefaults(baseDir)
			return cfg, nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(decodeHooks())); err != nil {
		return nil, fmt.Errorf("decode config %s: %w", path, err)
	}
	cfg.file = path
	cfg.applyDefaults(baseDir)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return &cfg, nil
}

// Validate checks the struct tags of cfg.
func Validate(cfg *Config) error {
	return validator.New().Struct(cfg)
}

func decodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)
}

// applyDefaults fills the values the user left empty. Relative paths are
// resolved against the directory of the config file.
func (c *Config) applyDefaults(baseDir string) {
	if c.General.SimultaneousActions <= 0 {
		c.General.SimultaneousActions = 5
	}
	if c.General.ActionTimeout <= 0 {
		c.General.ActionTimeout = 30 * time.Second
	}
	if c.General.FilteredParams == nil {
		c.General.FilteredParams = []string{}
	}
	c.General.ModulesDir = resolve(baseDir, c.General.ModulesDir, "modules")
	c.General.Paths.Temp = resolve(baseDir, c.General.Paths.Temp, "temp")
	c.General.Paths.Pid = resolve(baseDir, c.General.Paths.Pid, filepath.Join("temp", "pids"))

	if c.Logger.Level == "" {
		c.Logger.Level = "info"
	}
	if c.Logger.Format == "" {
		c.Logger.Format = "text"
	}
	if c.Logger.MaxLogStringLength == 0 {
		c.Logger.MaxLogStringLength = 100
	}

	if c.Cache.Driver == "" {
		c.Cache.Driver = "memory"
	}
	if c.Cache.Prefix == "" {
		c.Cache.Prefix = "stellar:cache:"
	}

	if c.Tasks.Driver == "" {
		c.Tasks.Driver = "memory"
	}
	if c.Tasks.Workers <= 0 {
		c.Tasks.Workers = 1
	}
	if c.Tasks.QueueSize <= 0 {
		c.Tasks.QueueSize = 1024
	}

	if c.Metrics.Address == "" {
		c.Metrics.Address = ":9090"
	}
	if c.Web.Address == "" {
		c.Web.Address = ":8080"
	}
	if c.Errors == nil {
		c.Errors = map[string]string{}
	}
}

func resolve(baseDir, value, fallback string) string {
	if value == "" {
		value = fallback
	}
	if filepath.IsAbs(value) {
		return value
	}
	return filepath.Join(baseDir, value)
}
