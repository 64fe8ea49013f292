package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type HTTPConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

type AppConfig struct {
	ServiceName string     `mapstructure:"service_name"`
	Env         string     `mapstructure:"env"`
	LogLevel    string     `mapstructure:"log_level"`
	MetricsPort int        `mapstructure:"metrics_port"`
	HTTP        HTTPConfig `mapstructure:"http"`
}

type DBConfig struct {
	Host        string
	Port        int
	Name        string
	User        string
	Password    string
	SSLMode     string
	MaxConns    int
	LockTimeout time.Duration
}

func (c DBConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s&pool_max_conns=%d",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode, c.MaxConns)
}

type JWTConfig struct {
	Secret string
	TTL    time.Duration
}

type RedisConfig struct {
	Addr string
	DB   int
}

type KafkaConfig struct {
	// Brokers empty disables the trade feed.
	Brokers     []string
	TradesTopic string
}

type TraceConfig struct {
	OTLPEndpoint string
}

type Config struct {
	App   AppConfig
	DB    DBConfig
	JWT   JWTConfig
	Redis RedisConfig
	Kafka KafkaConfig
	Trace TraceConfig
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SPOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	path := os.Getenv("SPOT_CONFIG")
	if path == "" {
		path = "config.yaml"
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		// A missing file is fine; env vars and defaults still apply.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var app AppConfig
	if err := v.Unmarshal(&app); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg := &Config{
		App: app,
		DB: DBConfig{
			Host:        envString("POSTGRES_HOST", "localhost"),
			Port:        envInt("POSTGRES_PORT", 5432),
			Name:        envString("POSTGRES_DB", "gospot"),
			User:        envString("POSTGRES_USER", "gospot"),
			Password:    envString("POSTGRES_PASSWORD", "gospot"),
			SSLMode:     envString("POSTGRES_SSLMODE", "disable"),
			MaxConns:    envInt("POSTGRES_MAX_CONNS", 16),
			LockTimeout: envDuration("SPOT_LOCK_TIMEOUT", 3*time.Second),
		},
		JWT: JWTConfig{
			Secret: envString("SPOT_JWT_SECRET", "dev-secret-change-me"),
			TTL:    envDuration("SPOT_JWT_TTL", 24*time.Hour),
		},
		Redis: RedisConfig{
			Addr: envString("REDIS_ADDR", "localhost:6379"),
			DB:   envInt("REDIS_DB", 0),
		},
		Kafka: KafkaConfig{
			Brokers:     envCSV("KAFKA_BROKERS", nil),
			TradesTopic: envString("KAFKA_TRADES_TOPIC", "trades.executed"),
		},
		Trace: TraceConfig{
			OTLPEndpoint: envString("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		},
	}

	if cfg.App.HTTP.Port <= 0 {
		return nil, fmt.Errorf("http port must be positive")
	}
	if cfg.App.MetricsPort <= 0 {
		return nil, fmt.Errorf("metrics port must be positive")
	}
	if cfg.JWT.Secret == "" {
		return nil, fmt.Errorf("jwt secret required")
	}
	if cfg.DB.LockTimeout < time.Second || cfg.DB.LockTimeout > 5*time.Second {
		return nil, fmt.Errorf("lock timeout must be between 1s and 5s")
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("service_name", "gospot")
	v.SetDefault("env", "dev")
	v.SetDefault("log_level", "info")
	v.SetDefault("metrics_port", 9100)
	v.SetDefault("http.host", "0.0.0.0")
	v.SetDefault("http.port", 8080)
	v.SetDefault("http.read_timeout", "5s")
	v.SetDefault("http.write_timeout", "10s")
	v.SetDefault("http.idle_timeout", "60s")
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func envCSV(key string, def []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))
		for _, part := range parts {
			trimmed := strings.TrimSpace(part)
			if trimmed != "" {
				out = append(out, trimmed)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return def
}
