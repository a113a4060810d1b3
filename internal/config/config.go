// Package config loads gateway configuration from file and environment.
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all runtime configuration for the gateway.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Auth      AuthConfig      `mapstructure:"auth"`
	WhatsApp  WhatsAppConfig  `mapstructure:"whatsapp"`
	Inference InferenceConfig `mapstructure:"inference"`
	Backend   BackendConfig   `mapstructure:"backend"`
	Delivery  DeliveryConfig  `mapstructure:"delivery"`
	Selection SelectionConfig `mapstructure:"selection"`
	Redis     RedisConfig     `mapstructure:"redis"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	APIKey    string        `mapstructure:"api_key"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
}

type WhatsAppConfig struct {
	StorePath      string        `mapstructure:"store_path"`
	CountryCode    string        `mapstructure:"country_code"`
	ReconnectDelay time.Duration `mapstructure:"reconnect_delay"`
	MaxReconnects  int           `mapstructure:"max_reconnects"`
}

type InferenceConfig struct {
	APIURL      string  `mapstructure:"api_url"`
	APIKey      string  `mapstructure:"api_key"`
	Model       string  `mapstructure:"model"`
	Temperature float64 `mapstructure:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens"`
}

type BackendConfig struct {
	APIURL string `mapstructure:"api_url"`
}

type DeliveryConfig struct {
	Concurrency    int           `mapstructure:"concurrency"`
	RatePerMinute  int           `mapstructure:"rate_per_minute"`
	MaxAttempts    int           `mapstructure:"max_attempts"`
	InitialBackoff time.Duration `mapstructure:"initial_backoff"`
	SentRetention  time.Duration `mapstructure:"sent_retention"`
	FailRetention  time.Duration `mapstructure:"fail_retention"`
	MaxSentKept    int           `mapstructure:"max_sent_kept"`
}

type SelectionConfig struct {
	Store string        `mapstructure:"store"` // memory or redis
	TTL   time.Duration `mapstructure:"ttl"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Load reads configuration from the given file (optional) plus environment
// variables prefixed WAGATEWAY_.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("WAGATEWAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// Missing config file is fine, env vars and defaults still apply.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 3000)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("database.path", "data/wagateway.db")

	v.SetDefault("auth.jwt_secret", "change-me-in-production")
	v.SetDefault("auth.api_key", "change-me-in-production")
	v.SetDefault("auth.token_ttl", 24*time.Hour)

	v.SetDefault("whatsapp.store_path", "data/whatsmeow.db")
	v.SetDefault("whatsapp.country_code", "62")
	v.SetDefault("whatsapp.reconnect_delay", 5*time.Second)
	v.SetDefault("whatsapp.max_reconnects", 5)

	v.SetDefault("inference.api_url", "https://api.cursor.sh/v1")
	v.SetDefault("inference.model", "gpt-4")
	v.SetDefault("inference.temperature", 0.3)
	v.SetDefault("inference.max_tokens", 500)

	v.SetDefault("backend.api_url", "http://localhost:7000")

	v.SetDefault("delivery.concurrency", 5)
	v.SetDefault("delivery.rate_per_minute", 60)
	v.SetDefault("delivery.max_attempts", 3)
	v.SetDefault("delivery.initial_backoff", 2*time.Second)
	v.SetDefault("delivery.sent_retention", time.Hour)
	v.SetDefault("delivery.fail_retention", 24*time.Hour)
	v.SetDefault("delivery.max_sent_kept", 1000)

	v.SetDefault("selection.store", "memory")
	v.SetDefault("selection.ttl", 5*time.Minute)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
}
