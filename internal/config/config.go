// Package config loads the daemon configuration from an optional YAML file
// and REDIS_ACTOR_* environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/trvinh99/redis-actor/core/connmgr"
	"github.com/trvinh99/redis-actor/core/pool"
	"github.com/trvinh99/redis-actor/ports/kv"
)

// EnvPrefix prefixes every environment override, e.g. REDIS_ACTOR_REDIS_URLS.
const EnvPrefix = "REDIS_ACTOR"

var ErrInvalid = errors.New("invalid config")

type (
	Config struct {
		Redis RedisConfig `mapstructure:"redis"`
		NATS  NATSConfig  `mapstructure:"nats"`
		HTTP  HTTPConfig  `mapstructure:"http"`
		Log   LogConfig   `mapstructure:"log"`
	}

	RedisConfig struct {
		URLs              []string      `mapstructure:"urls"`
		Username          string        `mapstructure:"username"`
		Password          string        `mapstructure:"password"`
		PoolSize          int           `mapstructure:"pool_size"`
		ConnectionTimeout time.Duration `mapstructure:"connection_timeout"`
		OperationTimeout  time.Duration `mapstructure:"operation_timeout"`
		QueryTimeout      time.Duration `mapstructure:"query_timeout"`
	}

	NATSConfig struct {
		Bucket string `mapstructure:"bucket"`
	}

	HTTPConfig struct {
		Addr string `mapstructure:"addr"`
	}

	LogConfig struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
	}
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("redis.urls", []string{"redis://127.0.0.1:6379"})
	v.SetDefault("redis.username", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.pool_size", pool.DefaultMaxSize)
	v.SetDefault("redis.connection_timeout", pool.DefaultConnectionTimeout)
	v.SetDefault("redis.operation_timeout", connmgr.DefaultOperationTimeout)
	v.SetDefault("redis.query_timeout", connmgr.DefaultQueryTimeout)
	v.SetDefault("nats.bucket", "redis_actor")
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Load reads path when set, otherwise config.yml in the working directory if
// present. Environment variables override both.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if len(c.Redis.URLs) == 0 {
		return fmt.Errorf("%w: redis.urls: %w", ErrInvalid, kv.ErrNoURLs)
	}
	if _, err := kv.Scheme(c.Redis.URLs); err != nil {
		return fmt.Errorf("%w: redis.urls: %w", ErrInvalid, err)
	}
	if c.Redis.PoolSize <= 0 {
		return fmt.Errorf("%w: redis.pool_size must be positive", ErrInvalid)
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		return fmt.Errorf("%w: log.level: %w", ErrInvalid, err)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("%w: log.format %q", ErrInvalid, c.Log.Format)
	}
	return nil
}

// Auth returns the credentials forwarded to the store.
func (c RedisConfig) Auth() kv.Auth {
	if c.Username == "" && c.Password == "" {
		return kv.NoAuth()
	}
	return kv.UserPass(c.Username, c.Password)
}

func (c LogConfig) SlogLevel() (slog.Level, error) {
	var l slog.Level
	err := l.UnmarshalText([]byte(c.Level))
	return l, err
}
