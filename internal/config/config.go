package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/inkfield/signview/internal/validate"
)

const (
	// Default values
	DefaultLogLevel    = "info"
	DefaultMaxFileSize = 100 * 1024 * 1024 // 100MB
)

// Config holds all configuration for the signature viewer
type Config struct {
	// Runtime mode: "development" or "production"
	Mode string

	// Origin is the document origin used for blob and relative sources
	Origin string

	// AllowedHosts is the https document host allow-list
	AllowedHosts []string

	// MaxFileSize caps loaded PDF documents in bytes
	MaxFileSize int64

	// CollectDeviceInfo enables opt-in device metadata on stamped records
	CollectDeviceInfo bool

	// Application configuration
	Version  string
	LogLevel string
}

// DefaultConfig returns a configuration with sensible defaults. Device info
// collection defaults to off: audit metadata is strictly opt-in.
func DefaultConfig() *Config {
	return &Config{
		Mode:              validate.ModeProduction,
		AllowedHosts:      nil,
		MaxFileSize:       DefaultMaxFileSize,
		CollectDeviceInfo: false,
		Version:           "1.0.0",
		LogLevel:          DefaultLogLevel,
	}
}

// LoadFromFlags parses command line flags and returns a configuration
func LoadFromFlags() (*Config, error) {
	cfg := DefaultConfig()

	setupViperEnvironment(cfg)
	defineCommandLineFlags(cfg)
	bindFlagsToViper()

	pflag.Parse()

	populateConfigFromViper(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// setupViperEnvironment configures viper with environment variables and defaults
func setupViperEnvironment(cfg *Config) {
	viper.SetEnvPrefix("SIGNVIEW")
	viper.AutomaticEnv()

	viper.SetDefault("mode", cfg.Mode)
	viper.SetDefault("origin", cfg.Origin)
	viper.SetDefault("hosts", strings.Join(cfg.AllowedHosts, ","))
	viper.SetDefault("maxfilesize", cfg.MaxFileSize)
	viper.SetDefault("collectdeviceinfo", cfg.CollectDeviceInfo)
	viper.SetDefault("loglevel", cfg.LogLevel)
}

// defineCommandLineFlags sets up all command line flags
func defineCommandLineFlags(cfg *Config) {
	pflag.String("mode", cfg.Mode, "Runtime mode: 'development' or 'production'")
	pflag.String("origin", cfg.Origin, "Document origin for blob and relative sources")
	pflag.String("hosts", strings.Join(cfg.AllowedHosts, ","), "Comma-separated https document host allow-list")
	pflag.Int64("maxfilesize", cfg.MaxFileSize, "Maximum PDF file size in bytes")
	pflag.Bool("collectdeviceinfo", cfg.CollectDeviceInfo, "Collect opt-in device metadata on stamped records")
	pflag.String("loglevel", cfg.LogLevel, "Log level (debug, info, warn, error)")
}

// bindFlagsToViper binds command line flags to viper configuration
func bindFlagsToViper() {
	_ = viper.BindPFlag("mode", pflag.Lookup("mode"))
	_ = viper.BindPFlag("origin", pflag.Lookup("origin"))
	_ = viper.BindPFlag("hosts", pflag.Lookup("hosts"))
	_ = viper.BindPFlag("maxfilesize", pflag.Lookup("maxfilesize"))
	_ = viper.BindPFlag("collectdeviceinfo", pflag.Lookup("collectdeviceinfo"))
	_ = viper.BindPFlag("loglevel", pflag.Lookup("loglevel"))
}

// populateConfigFromViper fills the config struct with values from viper
func populateConfigFromViper(cfg *Config) {
	cfg.Mode = viper.GetString("mode")
	cfg.Origin = viper.GetString("origin")
	cfg.AllowedHosts = splitHosts(viper.GetString("hosts"))
	cfg.MaxFileSize = viper.GetInt64("maxfilesize")
	cfg.CollectDeviceInfo = viper.GetBool("collectdeviceinfo")
	cfg.LogLevel = viper.GetString("loglevel")
}

// splitHosts parses a comma-separated host list, dropping empty entries
func splitHosts(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	hosts := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			hosts = append(hosts, p)
		}
	}
	return hosts
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Mode != validate.ModeDevelopment && c.Mode != validate.ModeProduction {
		return errors.New("mode must be either 'development' or 'production'")
	}

	if c.MaxFileSize <= 0 {
		return errors.New("maximum file size must be positive")
	}

	// An empty allow-list is legal here; the source policy fails closed on
	// https loads outside development mode.

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log level: %s (must be one of: debug, info, warn, error)", c.LogLevel)
	}

	return nil
}

// SourcePolicy builds the document source policy for this configuration
func (c *Config) SourcePolicy() (*validate.SourcePolicy, error) {
	return validate.NewSourcePolicy(c.Mode, c.Origin, c.AllowedHosts)
}

// IsDevelopment returns true if the viewer runs in development mode
func (c *Config) IsDevelopment() bool {
	return c.Mode == validate.ModeDevelopment
}

// IsDebug returns true if debug logging is enabled
func (c *Config) IsDebug() bool {
	return c.LogLevel == "debug"
}

// String returns a string representation of the configuration
func (c *Config) String() string {
	return fmt.Sprintf("Config{Mode: %s, Origin: %s, AllowedHosts: %v, MaxFileSize: %d, CollectDeviceInfo: %t, LogLevel: %s}",
		c.Mode, c.Origin, c.AllowedHosts, c.MaxFileSize, c.CollectDeviceInfo, c.LogLevel)
}
