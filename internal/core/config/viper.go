package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// ErrSecretInConfig is returned when a config file carries an HMAC secret.
var ErrSecretInConfig = errors.New("HMAC secrets not allowed in config files (use RK_HMAC_SECRET environment variable)")

// LoadConfig loads configuration from file using viper.
// CLI flags > environment > config file > defaults precedence.
func LoadConfig(configPath string) (*Config, error) {
	return Load(viper.New(), configPath)
}

// Load reads configuration through v, which may already carry bound CLI flags.
func Load(v *viper.Viper, configPath string) (*Config, error) {
	d := DefaultConfig()
	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.max_connections", d.Server.MaxConnections)
	v.SetDefault("server.request_timeout", d.Server.RequestTimeout.String())
	v.SetDefault("server.max_input_keys", d.Server.MaxInputKeys)
	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.addr", d.Metrics.Addr)
	v.SetDefault("engine.rules_file", d.Engine.RulesFile)
	v.SetDefault("engine.expression_cache_size", d.Engine.ExpressionCacheSize)
	v.SetDefault("database.url", d.Database.URL)

	v.SetEnvPrefix("RK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Secrets are environment-only
	if err := validateNoSecretsInConfig(v); err != nil {
		return nil, err
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:           v.GetString("server.host"),
			Port:           v.GetInt("server.port"),
			MaxConnections: v.GetInt("server.max_connections"),
			RequestTimeout: v.GetDuration("server.request_timeout"),
			MaxInputKeys:   v.GetInt("server.max_input_keys"),
		},
		Metrics: MetricsConfig{
			Enabled: v.GetBool("metrics.enabled"),
			Addr:    v.GetString("metrics.addr"),
		},
		Engine: EngineConfig{
			RulesFile:           v.GetString("engine.rules_file"),
			ExpressionCacheSize: v.GetInt("engine.expression_cache_size"),
		},
		Database: DatabaseConfig{
			URL: v.GetString("database.url"),
		},
	}

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func validateConfig(cfg *Config) error {
	s := cfg.Server
	if s.Port <= 0 || s.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", s.Port)
	}
	if s.MaxConnections <= 0 {
		return fmt.Errorf("max_connections must be positive, got %d", s.MaxConnections)
	}
	if s.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be positive, got %v", s.RequestTimeout)
	}
	if s.MaxInputKeys <= 0 {
		return fmt.Errorf("max_input_keys must be positive, got %d", s.MaxInputKeys)
	}
	if cfg.Engine.ExpressionCacheSize < 0 {
		return fmt.Errorf("expression_cache_size must not be negative, got %d", cfg.Engine.ExpressionCacheSize)
	}
	if cfg.Metrics.Enabled && cfg.Metrics.Addr == "" {
		return fmt.Errorf("metrics.addr is required when metrics are enabled")
	}
	if cfg.Database.URL == "" {
		return fmt.Errorf("database.url must not be empty")
	}
	return nil
}

// validateNoSecretsInConfig only inspects the file, since RK_HMAC_SECRET in the
// environment is the supported source.
func validateNoSecretsInConfig(v *viper.Viper) error {
	for _, key := range []string{"hmac_secret", "server.hmac_secret", "auth.hmac_secret"} {
		if v.InConfig(key) {
			return ErrSecretInConfig
		}
	}
	return nil
}
