package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App      AppConfig
	Database DatabaseConfig
	Log      LogConfig
	Lock     LockConfig
	Redis    RedisConfig
	CORS     CORSConfig
	Page     PageConfig
}

type AppConfig struct {
	Port        string
	StaticDir   string
	ReadTimeout time.Duration
}

type DatabaseConfig struct {
	Path string
}

type LogConfig struct {
	Level  string
	Format string
}

const (
	LockBackendMemory = "memory"
	LockBackendRedis  = "redis"
)

type LockConfig struct {
	Backend string
	TTL     time.Duration
}

type RedisConfig struct {
	Address  string
	Password string
	DB       int
}

type CORSConfig struct {
	AllowedOrigins []string
}

type PageConfig struct {
	DefaultLimit int
	MaxLimit     int
}

// Load reads configuration from the environment and, when path is not
// empty, from a config file (.env, yaml, json...). Environment wins.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	cfg := &Config{
		App: AppConfig{
			Port:        v.GetString("APP_PORT"),
			StaticDir:   v.GetString("STATIC_DIR"),
			ReadTimeout: time.Duration(v.GetInt("HTTP_TIMEOUT_SECONDS")) * time.Second,
		},
		Database: DatabaseConfig{
			Path: v.GetString("DB_PATH"),
		},
		Log: LogConfig{
			Level:  v.GetString("LOG_LEVEL"),
			Format: v.GetString("LOG_FORMAT"),
		},
		Lock: LockConfig{
			Backend: strings.ToLower(v.GetString("LOCK_BACKEND")),
			TTL:     time.Duration(v.GetInt("LOCK_TTL_SECONDS")) * time.Second,
		},
		Redis: RedisConfig{
			Address:  v.GetString("REDIS_ADDRESS"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
		},
		CORS: CORSConfig{
			AllowedOrigins: splitList(v.GetStringSlice("CORS_ALLOWED_ORIGINS")),
		},
		Page: PageConfig{
			DefaultLimit: v.GetInt("PAGE_DEFAULT_LIMIT"),
			MaxLimit:     v.GetInt("PAGE_MAX_LIMIT"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_PORT", "8080")
	v.SetDefault("STATIC_DIR", "./web/dist")
	v.SetDefault("HTTP_TIMEOUT_SECONDS", 15)
	v.SetDefault("DB_PATH", "./data/supplies.db")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("LOCK_BACKEND", LockBackendMemory)
	v.SetDefault("LOCK_TTL_SECONDS", 10)
	v.SetDefault("REDIS_ADDRESS", "localhost:6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("CORS_ALLOWED_ORIGINS", "http://localhost:5173,http://localhost:3000")
	v.SetDefault("PAGE_DEFAULT_LIMIT", 15)
	v.SetDefault("PAGE_MAX_LIMIT", 100)
}

// Validate rejects settings the server cannot start with.
func (c *Config) Validate() error {
	var errs []error
	if c.Database.Path == "" {
		errs = append(errs, errors.New("DB_PATH is required"))
	}
	switch c.Lock.Backend {
	case LockBackendMemory:
	case LockBackendRedis:
		if c.Redis.Address == "" {
			errs = append(errs, errors.New("REDIS_ADDRESS is required for the redis lock backend"))
		}
		if c.Lock.TTL <= 0 {
			errs = append(errs, errors.New("LOCK_TTL_SECONDS must be positive"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown LOCK_BACKEND %q", c.Lock.Backend))
	}
	if c.Page.DefaultLimit <= 0 || c.Page.MaxLimit < c.Page.DefaultLimit {
		errs = append(errs, fmt.Errorf("invalid page limits: default %d, max %d", c.Page.DefaultLimit, c.Page.MaxLimit))
	}
	return errors.Join(errs...)
}

// Addr is the listen address for the HTTP server.
func (c *AppConfig) Addr() string {
	return ":" + c.Port
}

// env values arrive as one comma separated string
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
