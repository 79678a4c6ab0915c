package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

const (
	// EnvAPIServer overrides the xenvman API address for the whole process
	EnvAPIServer = "XENV_API_SERVER"

	// DefaultAddress is used when neither an address nor the override is given
	DefaultAddress = "http://localhost:9876"
)

// Config holds the client configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Keepalive KeepaliveConfig `mapstructure:"keepalive"`
}

// ServerConfig holds xenvman API settings
type ServerConfig struct {
	Address string        `mapstructure:"address"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// KeepaliveConfig holds settings for the keepalive loop.
// A zero interval means derive it from the environment keep_alive.
type KeepaliveConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Address: DefaultAddress,
			Timeout: 60 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "warn",
			Format: "text",
		},
	}
}

// Load loads configuration from file and XENV_* environment variables
func Load(configPath string) (*Config, error) {
	config := DefaultConfig()
	v := viper.New()

	v.SetDefault("server.address", config.Server.Address)
	v.SetDefault("server.timeout", config.Server.Timeout)
	v.SetDefault("logging.level", config.Logging.Level)
	v.SetDefault("logging.format", config.Logging.Format)
	v.SetDefault("keepalive.interval", config.Keepalive.Interval)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("xenv")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("$HOME/.xenv")
	}

	v.SetEnvPrefix("XENV")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return config, nil
}

// validateConfig validates configuration
func validateConfig(config *Config) error {
	if config.Server.Timeout < 0 {
		return fmt.Errorf("negative server timeout: %s", config.Server.Timeout)
	}

	if config.Keepalive.Interval < 0 {
		return fmt.Errorf("negative keepalive interval: %s", config.Keepalive.Interval)
	}

	validLevels := map[string]bool{
		"trace": true,
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
		"fatal": true,
		"panic": true,
	}

	if !validLevels[config.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", config.Logging.Level)
	}

	validFormats := map[string]bool{
		"json": true,
		"text": true,
	}

	if !validFormats[config.Logging.Format] {
		return fmt.Errorf("invalid log format: %s", config.Logging.Format)
	}

	return nil
}

// ResolveAddress returns the effective API address. A non-empty
// XENV_API_SERVER always wins over the explicit address. One trailing
// slash is stripped.
func ResolveAddress(explicit string) string {
	v := viper.New()
	_ = v.BindEnv("api_server", EnvAPIServer)

	address := v.GetString("api_server")
	if address == "" {
		address = explicit
	}
	if address == "" {
		address = DefaultAddress
	}

	return strings.TrimSuffix(address, "/")
}

// NewLogger builds a logger from the logging section
func NewLogger(cfg LoggingConfig) (*logrus.Logger, error) {
	logger := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}
	logger.SetLevel(level)

	if cfg.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{})
	}

	return logger, nil
}

// GetConfigDir returns the configuration directory
func GetConfigDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".xenv"), nil
}

// SaveConfig saves configuration to file
func SaveConfig(config *Config, configPath string) error {
	v := viper.New()
	v.Set("server.address", config.Server.Address)
	v.Set("server.timeout", config.Server.Timeout.String())
	v.Set("logging.level", config.Logging.Level)
	v.Set("logging.format", config.Logging.Format)
	v.Set("keepalive.interval", config.Keepalive.Interval.String())

	if configPath == "" {
		configDir, err := GetConfigDir()
		if err != nil {
			return fmt.Errorf("failed to get config dir: %w", err)
		}

		if err := os.MkdirAll(configDir, 0755); err != nil {
			return fmt.Errorf("failed to create config dir: %w", err)
		}

		configPath = filepath.Join(configDir, "xenv.yaml")
	}

	return v.WriteConfigAs(configPath)
}
