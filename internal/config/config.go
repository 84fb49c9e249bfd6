package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// EnvPrefix namespaces every environment variable, e.g. VIDLOADER_LOGGING_LEVEL.
const EnvPrefix = "VIDLOADER"

// Config represents the complete application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server" envconfig:"SERVER"`
	Logging   LoggingConfig   `yaml:"logging" envconfig:"LOGGING"`
	Paths     PathsConfig     `yaml:"paths" envconfig:"PATHS"`
	Quota     QuotaConfig     `yaml:"quota" envconfig:"QUOTA"`
	Telemetry TelemetryConfig `yaml:"telemetry" envconfig:"TELEMETRY"`
}

// ServerConfig configures the local status API used by the desktop shell
type ServerConfig struct {
	Addr            string          `yaml:"addr" envconfig:"ADDR" default:"127.0.0.1:8765"`
	ReadTimeout     time.Duration   `yaml:"read_timeout" envconfig:"READ_TIMEOUT" default:"10s"`
	WriteTimeout    time.Duration   `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT" default:"10s"`
	IdleTimeout     time.Duration   `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration   `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT" default:"5s"`
	RateLimit       RateLimitConfig `yaml:"rate_limit" envconfig:"RATE_LIMIT"`
}

// RateLimitConfig contains rate limiting configuration
type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled" envconfig:"ENABLED" default:"true"`
	RPS     float64 `yaml:"rps" envconfig:"RPS" default:"20"`
	Burst   int     `yaml:"burst" envconfig:"BURST" default:"40"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level    string `yaml:"level" envconfig:"LEVEL" default:"info"`
	Format   string `yaml:"format" envconfig:"FORMAT" default:"json"`
	Output   string `yaml:"output" envconfig:"OUTPUT" default:"console"`
	FilePath string `yaml:"file_path" envconfig:"FILE_PATH"`
}

// PathsConfig overrides the default state file locations. Empty values fall
// back to the platform directories.
type PathsConfig struct {
	LicenseFile string `yaml:"license_file" envconfig:"LICENSE_FILE"`
	QuotaFile   string `yaml:"quota_file" envconfig:"QUOTA_FILE"`
}

// QuotaConfig tunes quota file access. The daily cap itself is not
// configurable.
type QuotaConfig struct {
	LockTimeout time.Duration `yaml:"lock_timeout" envconfig:"LOCK_TIMEOUT" default:"3s"`
}

// TelemetryConfig contains OpenTelemetry configuration
type TelemetryConfig struct {
	Enabled        bool    `yaml:"enabled" envconfig:"ENABLED" default:"false"`
	Environment    string  `yaml:"environment" envconfig:"ENVIRONMENT" default:"production"`
	TraceExporter  string  `yaml:"trace_exporter" envconfig:"TRACE_EXPORTER" default:"none"`
	MetricExporter string  `yaml:"metric_exporter" envconfig:"METRIC_EXPORTER" default:"prometheus"`
	SampleRatio    float64 `yaml:"sample_ratio" envconfig:"SAMPLE_RATIO" default:"1.0"`
}

// Load loads configuration from environment variables and the optional YAML
// config file. Environment variables take precedence over the file.
func Load() (*Config, error) {
	var cfg Config

	// Load from environment variables first
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	paths, err := GetPaths()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve paths: %w", err)
	}

	// Load from config file if exists
	if configFile := getConfigFilePath(paths); configFile != "" {
		fileConfig, err := loadFromFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
		cfg = mergeConfigs(*fileConfig, cfg)
	}

	cfg.resolvePaths(paths)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// loadFromFile loads configuration from YAML file
func loadFromFile(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}

	// Keys missing from the file keep their defaults
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// mergeConfigs merges file config with env config. A file value wins unless
// the matching environment variable is set.
func mergeConfigs(fileConfig, envConfig Config) Config {
	cfg := envConfig

	cfg.Server.Addr = pick("SERVER_ADDR", cfg.Server.Addr, fileConfig.Server.Addr)
	cfg.Server.ReadTimeout = pick("SERVER_READ_TIMEOUT", cfg.Server.ReadTimeout, fileConfig.Server.ReadTimeout)
	cfg.Server.WriteTimeout = pick("SERVER_WRITE_TIMEOUT", cfg.Server.WriteTimeout, fileConfig.Server.WriteTimeout)
	cfg.Server.IdleTimeout = pick("SERVER_IDLE_TIMEOUT", cfg.Server.IdleTimeout, fileConfig.Server.IdleTimeout)
	cfg.Server.ShutdownTimeout = pick("SERVER_SHUTDOWN_TIMEOUT", cfg.Server.ShutdownTimeout, fileConfig.Server.ShutdownTimeout)
	cfg.Server.RateLimit.RPS = pick("SERVER_RATE_LIMIT_RPS", cfg.Server.RateLimit.RPS, fileConfig.Server.RateLimit.RPS)
	cfg.Server.RateLimit.Burst = pick("SERVER_RATE_LIMIT_BURST", cfg.Server.RateLimit.Burst, fileConfig.Server.RateLimit.Burst)

	cfg.Logging.Level = pick("LOGGING_LEVEL", cfg.Logging.Level, fileConfig.Logging.Level)
	cfg.Logging.Output = pick("LOGGING_OUTPUT", cfg.Logging.Output, fileConfig.Logging.Output)
	cfg.Logging.FilePath = pick("LOGGING_FILE_PATH", cfg.Logging.FilePath, fileConfig.Logging.FilePath)

	cfg.Paths.LicenseFile = pick("PATHS_LICENSE_FILE", cfg.Paths.LicenseFile, fileConfig.Paths.LicenseFile)
	cfg.Paths.QuotaFile = pick("PATHS_QUOTA_FILE", cfg.Paths.QuotaFile, fileConfig.Paths.QuotaFile)

	cfg.Quota.LockTimeout = pick("QUOTA_LOCK_TIMEOUT", cfg.Quota.LockTimeout, fileConfig.Quota.LockTimeout)

	cfg.Telemetry.Environment = pick("TELEMETRY_ENVIRONMENT", cfg.Telemetry.Environment, fileConfig.Telemetry.Environment)
	cfg.Telemetry.TraceExporter = pick("TELEMETRY_TRACE_EXPORTER", cfg.Telemetry.TraceExporter, fileConfig.Telemetry.TraceExporter)
	cfg.Telemetry.MetricExporter = pick("TELEMETRY_METRIC_EXPORTER", cfg.Telemetry.MetricExporter, fileConfig.Telemetry.MetricExporter)
	cfg.Telemetry.SampleRatio = pick("TELEMETRY_SAMPLE_RATIO", cfg.Telemetry.SampleRatio, fileConfig.Telemetry.SampleRatio)

	cfg.Server.RateLimit.Enabled = pick("SERVER_RATE_LIMIT_ENABLED", cfg.Server.RateLimit.Enabled, fileConfig.Server.RateLimit.Enabled)
	cfg.Telemetry.Enabled = pick("TELEMETRY_ENABLED", cfg.Telemetry.Enabled, fileConfig.Telemetry.Enabled)

	return cfg
}

func pick[T any](envKey string, envValue, fileValue T) T {
	if envSet(envKey) {
		return envValue
	}
	return fileValue
}

func envSet(key string) bool {
	_, ok := os.LookupEnv(EnvPrefix + "_" + key)
	return ok
}

// resolvePaths fills empty path settings from the platform directories
func (c *Config) resolvePaths(paths *Paths) {
	if c.Paths.LicenseFile == "" {
		c.Paths.LicenseFile = paths.LicenseFile
	}
	if c.Paths.QuotaFile == "" {
		c.Paths.QuotaFile = paths.QuotaFile
	}
	if c.Logging.FilePath == "" {
		c.Logging.FilePath = paths.GetLogPath(LogFileName)
	}
}

// validate validates the configuration
func (c *Config) validate() error {
	if c.Quota.LockTimeout < MinLockTimeout || c.Quota.LockTimeout > MaxLockTimeout {
		return fmt.Errorf("quota lock timeout must be between %s and %s, got %s",
			MinLockTimeout, MaxLockTimeout, c.Quota.LockTimeout)
	}

	if c.Server.Addr == "" {
		return fmt.Errorf("server address must not be empty")
	}

	if c.Server.RateLimit.Enabled && c.Server.RateLimit.RPS <= 0 {
		return fmt.Errorf("rate limit rps must be positive")
	}

	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("telemetry sample ratio must be within [0, 1]")
	}

	switch strings.ToLower(c.Logging.Output) {
	case "console", "file", "both":
	default:
		return fmt.Errorf("unsupported logging output %q", c.Logging.Output)
	}

	// Always JSON
	c.Logging.Format = DefaultLogFormat

	return nil
}

// getConfigFilePath returns the config file to read, or "" when none exists.
// VIDLOADER_CONFIG_FILE overrides the platform location.
func getConfigFilePath(paths *Paths) string {
	if explicit := os.Getenv(EnvPrefix + "_CONFIG_FILE"); explicit != "" {
		return explicit
	}
	if FileExists(paths.ConfigFile) {
		return paths.ConfigFile
	}
	return ""
}

// Default returns default configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            DefaultServerAddr,
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 5 * time.Second,
			RateLimit: RateLimitConfig{
				Enabled: true,
				RPS:     DefaultRateLimit,
				Burst:   DefaultBurstSize,
			},
		},
		Logging: LoggingConfig{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
			Output: "console",
		},
		Quota: QuotaConfig{
			LockTimeout: DefaultLockTimeout,
		},
		Telemetry: TelemetryConfig{
			Environment:    "production",
			TraceExporter:  "none",
			MetricExporter: "prometheus",
			SampleRatio:    1.0,
		},
	}
}
