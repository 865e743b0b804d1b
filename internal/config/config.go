// Package config provides configuration management for Reheat using Viper
// for flexible loading from files, environment variables, and command-line
// flags.
//
// The configuration system supports YAML files, environment variable
// overrides with a REHEAT_ prefix, and validation. It manages server
// settings, watch paths, cache bounds, transform behavior, dependency
// resolution, and client reconnection tuning.
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Watch     WatchConfig     `yaml:"watch" mapstructure:"watch"`
	Cache     CacheConfig     `yaml:"cache" mapstructure:"cache"`
	Transform TransformConfig `yaml:"transform" mapstructure:"transform"`
	Resolver  ResolverConfig  `yaml:"resolver" mapstructure:"resolver"`
	Client    ClientConfig    `yaml:"client" mapstructure:"client"`
}

type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	Host           string   `yaml:"host" mapstructure:"host"`
	Root           string   `yaml:"root" mapstructure:"root"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

type WatchConfig struct {
	Paths    []string      `yaml:"paths" mapstructure:"paths"`
	Include  []string      `yaml:"include" mapstructure:"include"`
	Exclude  []string      `yaml:"exclude" mapstructure:"exclude"`
	Debounce time.Duration `yaml:"debounce" mapstructure:"debounce"`
}

type CacheConfig struct {
	MaxEntries         int           `yaml:"max_entries" mapstructure:"max_entries"`
	MaxMemory          int64         `yaml:"max_memory" mapstructure:"max_memory"`
	TTL                time.Duration `yaml:"ttl" mapstructure:"ttl"`
	ContentSizeCeiling int64         `yaml:"content_size_ceiling" mapstructure:"content_size_ceiling"`
}

type TransformConfig struct {
	CompiledExt     string   `yaml:"compiled_ext" mapstructure:"compiled_ext"`
	ResolutionCalls []string `yaml:"resolution_calls" mapstructure:"resolution_calls"`
	ComponentCalls  []string `yaml:"component_calls" mapstructure:"component_calls"`
	MountCalls      []string `yaml:"mount_calls" mapstructure:"mount_calls"`
}

type ResolverConfig struct {
	Root string        `yaml:"root" mapstructure:"root"`
	TTL  time.Duration `yaml:"ttl" mapstructure:"ttl"`
}

type ClientConfig struct {
	MaxRetries    int           `yaml:"max_retries" mapstructure:"max_retries"`
	BaseDelay     time.Duration `yaml:"base_delay" mapstructure:"base_delay"`
	MaxDelay      time.Duration `yaml:"max_delay" mapstructure:"max_delay"`
	WatchdogGrace time.Duration `yaml:"watchdog_grace" mapstructure:"watchdog_grace"`
}

func Load() (*Config, error) {
	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	applyDefaults(&config)

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// Default returns the built-in defaults without consulting viper. Used by
// tests and one-shot commands that bypass configuration files.
func Default() *Config {
	var config Config
	applyDefaults(&config)
	return &config
}

func applyDefaults(config *Config) {
	if config.Server.Port == 0 {
		config.Server.Port = 3000
	}
	if config.Server.Host == "" {
		config.Server.Host = "localhost"
	}
	if config.Server.Root == "" {
		config.Server.Root = "."
	}

	if len(config.Watch.Paths) == 0 {
		config.Watch.Paths = []string{"./src", "./components"}
	}
	if len(config.Watch.Include) == 0 {
		config.Watch.Include = []string{"**/*.js", "**/*.ts", "**/*.vue.js"}
	}
	if len(config.Watch.Exclude) == 0 {
		config.Watch.Exclude = []string{"**/node_modules/**", "**/.git/**"}
	}
	if config.Watch.Debounce == 0 {
		config.Watch.Debounce = 100 * time.Millisecond
	}

	if config.Cache.MaxEntries == 0 {
		config.Cache.MaxEntries = 500
	}
	if config.Cache.MaxMemory == 0 {
		config.Cache.MaxMemory = 64 << 20 // 64 MiB
	}
	if config.Cache.TTL == 0 {
		config.Cache.TTL = 10 * time.Minute
	}
	if config.Cache.ContentSizeCeiling == 0 {
		config.Cache.ContentSizeCeiling = 1 << 20 // 1 MiB
	}

	if config.Transform.CompiledExt == "" {
		config.Transform.CompiledExt = ".js"
	}
	if len(config.Transform.ResolutionCalls) == 0 {
		config.Transform.ResolutionCalls = []string{"resolveComponent", "_resolveComponent"}
	}
	if len(config.Transform.ComponentCalls) == 0 {
		config.Transform.ComponentCalls = []string{"defineComponent", "_defineComponent"}
	}
	if len(config.Transform.MountCalls) == 0 {
		config.Transform.MountCalls = []string{"createApp", "mount"}
	}

	if config.Resolver.Root == "" {
		config.Resolver.Root = "."
	}
	if config.Resolver.TTL == 0 {
		config.Resolver.TTL = 30 * time.Second
	}

	if config.Client.MaxRetries == 0 {
		config.Client.MaxRetries = 8
	}
	if config.Client.BaseDelay == 0 {
		config.Client.BaseDelay = 250 * time.Millisecond
	}
	if config.Client.MaxDelay == 0 {
		config.Client.MaxDelay = 10 * time.Second
	}
	if config.Client.WatchdogGrace == 0 {
		config.Client.WatchdogGrace = 5 * time.Second
	}
}

// validateConfig validates configuration values for security and correctness
func validateConfig(config *Config) error {
	if err := validateServerConfig(&config.Server); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	for _, path := range config.Watch.Paths {
		if err := validatePath(path); err != nil {
			return fmt.Errorf("watch config: invalid path '%s': %w", path, err)
		}
	}

	if config.Cache.MaxEntries < 0 {
		return fmt.Errorf("cache config: max_entries must be non-negative")
	}
	if config.Cache.MaxMemory < 0 {
		return fmt.Errorf("cache config: max_memory must be non-negative")
	}

	if !strings.HasPrefix(config.Transform.CompiledExt, ".") {
		return fmt.Errorf("transform config: compiled_ext must start with '.'")
	}

	if config.Client.MaxRetries < 1 {
		return fmt.Errorf("client config: max_retries must be at least 1")
	}
	if config.Client.BaseDelay <= 0 || config.Client.MaxDelay <= 0 {
		return fmt.Errorf("client config: delays must be positive")
	}
	if config.Client.BaseDelay > config.Client.MaxDelay {
		return fmt.Errorf("client config: base_delay exceeds max_delay")
	}

	return nil
}

// validateServerConfig validates server configuration values
func validateServerConfig(config *ServerConfig) error {
	// Allow 0 for system-assigned ports in testing
	if config.Port < 0 || config.Port > 65535 {
		return fmt.Errorf("port %d is not in valid range 0-65535", config.Port)
	}

	if config.Host != "" {
		dangerousChars := []string{";", "&", "|", "$", "`", "(", ")", "<", ">", "\"", "'", "\\"}
		for _, char := range dangerousChars {
			if strings.Contains(config.Host, char) {
				return fmt.Errorf("host contains dangerous character: %s", char)
			}
		}
	}

	return validatePath(config.Root)
}

// validatePath validates a file path for security
func validatePath(path string) error {
	if path == "" {
		return fmt.Errorf("empty path")
	}

	cleanPath := filepath.Clean(path)

	if strings.Contains(cleanPath, "..") {
		return fmt.Errorf("path contains traversal: %s", path)
	}

	dangerousChars := []string{";", "&", "|", "$", "`", "(", ")", "<", ">", "\"", "'"}
	for _, char := range dangerousChars {
		if strings.Contains(cleanPath, char) {
			return fmt.Errorf("path contains dangerous character: %s", char)
		}
	}

	return nil
}
