package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/dgnsrekt/stagehand-relay/internal/notify"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Poll      PollConfig      `mapstructure:"poll"`
	Broadcast BroadcastConfig `mapstructure:"broadcast"`
	Provider  ProviderConfig  `mapstructure:"provider"`
	Commands  CommandsConfig  `mapstructure:"commands"`
	Stream    StreamConfig    `mapstructure:"stream"`
	Notify    notify.Config   `mapstructure:"notify"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Client    ClientConfig    `mapstructure:"client"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type PollConfig struct {
	Interval      time.Duration `mapstructure:"interval"`
	SampleTimeout time.Duration `mapstructure:"sample_timeout"`
}

type BroadcastConfig struct {
	DeliveryBudget   time.Duration `mapstructure:"delivery_budget"`
	SubscriberBuffer int           `mapstructure:"subscriber_buffer"`
}

type ProviderConfig struct {
	Kind         string        `mapstructure:"kind"`
	Player       string        `mapstructure:"player"`
	Artwork      bool          `mapstructure:"artwork"`
	AcquireRetry time.Duration `mapstructure:"acquire_retry"`
	FallbackDemo bool          `mapstructure:"fallback_demo"`
	AllowReload  bool          `mapstructure:"allow_reload"`
}

type CommandsConfig struct {
	RatePerSecond float64 `mapstructure:"rate_per_second"`
	Burst         int     `mapstructure:"burst"`
}

type StreamConfig struct {
	Heartbeat  time.Duration `mapstructure:"heartbeat"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	PongWait   time.Duration `mapstructure:"pong_wait"`
	WriteWait  time.Duration `mapstructure:"write_wait"`
}

type LoggingConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Directory string `mapstructure:"directory"`
	Level     string `mapstructure:"level"`
}

type ClientConfig struct {
	BaseURL       string        `mapstructure:"base_url"`
	Timeout       time.Duration `mapstructure:"timeout"`
	RetryCount    int           `mapstructure:"retry_count"`
	RetryDelay    time.Duration `mapstructure:"retry_delay"`
	RatePerSecond float64       `mapstructure:"rate_per_second"`
}

const (
	ProviderPlayerctl = "playerctl"
	ProviderDemo      = "demo"
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 7168)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", time.Duration(0))
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("poll.interval", time.Second)
	v.SetDefault("poll.sample_timeout", 800*time.Millisecond)
	v.SetDefault("broadcast.delivery_budget", 250*time.Millisecond)
	v.SetDefault("broadcast.subscriber_buffer", 16)
	v.SetDefault("provider.kind", ProviderPlayerctl)
	v.SetDefault("provider.player", "")
	v.SetDefault("provider.artwork", true)
	v.SetDefault("provider.acquire_retry", 5*time.Second)
	v.SetDefault("provider.fallback_demo", false)
	v.SetDefault("provider.allow_reload", true)
	v.SetDefault("commands.rate_per_second", 5.0)
	v.SetDefault("commands.burst", 10)
	v.SetDefault("stream.heartbeat", 30*time.Second)
	v.SetDefault("stream.ping_period", 54*time.Second)
	v.SetDefault("stream.pong_wait", 60*time.Second)
	v.SetDefault("stream.write_wait", 10*time.Second)
	v.SetDefault("notify.enabled", false)
	v.SetDefault("notify.server", "https://ntfy.sh")
	v.SetDefault("notify.topic", "")
	v.SetDefault("notify.priority", "default")
	v.SetDefault("notify.tags", "musical_note")
	v.SetDefault("notify.token", "")
	v.SetDefault("notify.attach_artwork", true)
	v.SetDefault("logging.enabled", false)
	v.SetDefault("logging.directory", "logs")
	v.SetDefault("logging.level", "info")
	v.SetDefault("client.base_url", "http://localhost:7168")
	v.SetDefault("client.timeout", 10*time.Second)
	v.SetDefault("client.retry_count", 2)
	v.SetDefault("client.retry_delay", 500*time.Millisecond)
	v.SetDefault("client.rate_per_second", 5.0)
}

// Load reads configuration from defaults, an optional YAML file and
// STAGEHAND_* environment variables, in increasing priority.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	// Environment variable support
	v.SetEnvPrefix("STAGEHAND")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// Load config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("stagehand")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, "stagehand"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}
