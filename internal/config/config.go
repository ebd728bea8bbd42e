// Package config loads CLI configuration from file, environment and
// defaults, in that order of increasing precedence for the environment.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"inkwell/internal/observability"
)

// Config is everything the CLI needs to attach to a workflow backend.
type Config struct {
	// ServerURL is the HTTP origin of the workflow service.
	ServerURL string `mapstructure:"server_url"`
	// StreamURL overrides the websocket endpoint base. Derived from
	// ServerURL when empty.
	StreamURL string `mapstructure:"stream_url"`
	Token     string `mapstructure:"token"`

	LogLevel string `mapstructure:"log_level"`

	RequestTimeout       time.Duration `mapstructure:"request_timeout"`
	DialTimeout          time.Duration `mapstructure:"dial_timeout"`
	KeepAliveInterval    time.Duration `mapstructure:"keep_alive_interval"`
	MaxReconnectAttempts int           `mapstructure:"max_reconnect_attempts"`
	ReconnectBaseDelay   time.Duration `mapstructure:"reconnect_base_delay"`
	ReconnectMaxDelay    time.Duration `mapstructure:"reconnect_max_delay"`

	BootstrapHistory bool `mapstructure:"bootstrap_history"`

	Metrics observability.MetricsConfig `mapstructure:"metrics"`
}

// Default returns the configuration used when nothing else is set.
func Default() Config {
	return Config{
		ServerURL:            "http://localhost:8000",
		LogLevel:             "info",
		RequestTimeout:       30 * time.Second,
		DialTimeout:          15 * time.Second,
		KeepAliveInterval:    30 * time.Second,
		MaxReconnectAttempts: 5,
		ReconnectBaseDelay:   time.Second,
		ReconnectMaxDelay:    30 * time.Second,
		BootstrapHistory:     true,
		Metrics: observability.MetricsConfig{
			Enabled:    false,
			ListenAddr: ":9464",
		},
	}
}

// Load reads configuration from the given file, or from
// inkwell-config.json in $HOME and the working directory when path is
// empty. INKWELL_* environment variables override file values; a missing
// config file is not an error.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetConfigType("json")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("inkwell-config")
		v.AddConfigPath("$HOME")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("INKWELL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := Default()
	setDefaults(v, cfg)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// setDefaults registers defaults with viper so AutomaticEnv lookups see
// every key.
func setDefaults(v *viper.Viper, cfg Config) {
	v.SetDefault("server_url", cfg.ServerURL)
	v.SetDefault("stream_url", cfg.StreamURL)
	v.SetDefault("token", cfg.Token)
	v.SetDefault("log_level", cfg.LogLevel)
	v.SetDefault("request_timeout", cfg.RequestTimeout)
	v.SetDefault("dial_timeout", cfg.DialTimeout)
	v.SetDefault("keep_alive_interval", cfg.KeepAliveInterval)
	v.SetDefault("max_reconnect_attempts", cfg.MaxReconnectAttempts)
	v.SetDefault("reconnect_base_delay", cfg.ReconnectBaseDelay)
	v.SetDefault("reconnect_max_delay", cfg.ReconnectMaxDelay)
	v.SetDefault("bootstrap_history", cfg.BootstrapHistory)
	v.SetDefault("metrics.enabled", cfg.Metrics.Enabled)
	v.SetDefault("metrics.listen_addr", cfg.Metrics.ListenAddr)
}

// Validate rejects configurations the client cannot work with.
func (c Config) Validate() error {
	if strings.TrimSpace(c.ServerURL) == "" && strings.TrimSpace(c.StreamURL) == "" {
		return errors.New("config: server_url or stream_url is required")
	}
	if c.MaxReconnectAttempts < 0 {
		return errors.New("config: max_reconnect_attempts must not be negative")
	}
	if c.ReconnectBaseDelay < 0 || c.ReconnectMaxDelay < 0 {
		return errors.New("config: reconnect delays must not be negative")
	}
	return nil
}
