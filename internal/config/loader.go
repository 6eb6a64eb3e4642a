package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// InitViper initializes Viper with the configuration file and environment
// variables. If configFile is empty, it searches for routewarden.yaml/.yml
// in standard locations. The search requires an explicit YAML extension so
// a binary named "routewarden" in the working directory is never matched.
func InitViper(configFile string) {
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else if found := findConfigFile(); found != "" {
		viper.SetConfigFile(found)
	} else {
		// No config file in any standard location. Set name/type without
		// search paths so ReadInConfig returns ConfigFileNotFoundError,
		// which callers handle gracefully (env-only mode).
		viper.SetConfigName("routewarden")
		viper.SetConfigType("yaml")
	}

	// Environment variable support: ROUTEWARDEN_SERVER_HTTP_ADDR
	viper.SetEnvPrefix("ROUTEWARDEN")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	bindNestedEnvKeys()
}

// findConfigFile searches standard locations for a routewarden config file
// with an explicit .yaml or .yml extension.
func findConfigFile() string {
	home, _ := os.UserHomeDir()
	paths := []string{
		".",
		filepath.Join(home, ".routewarden"),
		"/etc/routewarden",
	}
	for _, dir := range paths {
		for _, ext := range []string{".yaml", ".yml"} {
			path := filepath.Join(dir, "routewarden"+ext)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}
	return ""
}

// bindNestedEnvKeys binds scalar config keys for environment variable
// overrides. Arrays and maps (roles, policies, api_keys) are config-file
// only; overriding them through flat env vars is not supported.
func bindNestedEnvKeys() {
	_ = viper.BindEnv("server.http_addr")
	_ = viper.BindEnv("server.log_level")
	_ = viper.BindEnv("server.log_format")

	_ = viper.BindEnv("guard.sign_in_path")
	_ = viper.BindEnv("guard.return_to_param")
	_ = viper.BindEnv("guard.home_path")
	_ = viper.BindEnv("guard.default_fallback")
	_ = viper.BindEnv("guard.cache_size")
	_ = viper.BindEnv("guard.policies_file")

	_ = viper.BindEnv("audit.output")
	_ = viper.BindEnv("audit.retention_days")
	_ = viper.BindEnv("audit.buffer_size")

	_ = viper.BindEnv("tracing.enabled")
	_ = viper.BindEnv("dev_mode")
}

// LoadConfig reads the configuration file, applies environment overrides
// and defaults, merges the standalone policies file if configured, and
// validates the result.
func LoadConfig() (*Config, error) {
	cfg, err := LoadConfigRaw()
	if err != nil {
		return nil, err
	}

	cfg.SetDevDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// LoadConfigRaw reads the configuration file and applies defaults and the
// policies-file merge, but does NOT apply dev defaults or validate. Use
// this when CLI flags may override DevMode before validation.
func LoadConfigRaw() (*Config, error) {
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// No config file: continue with env vars only.
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.SetDefaults()

	if cfg.Guard.PoliciesFile != "" {
		if err := cfg.MergePoliciesFile(cfg.Guard.PoliciesFile); err != nil {
			return nil, err
		}
	}
	return &cfg, nil
}

// ConfigFileUsed returns the path of the loaded configuration file, or ""
// when running on environment variables alone.
func ConfigFileUsed() string {
	return viper.ConfigFileUsed()
}
