package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/agendave/micita/libs/config"
	"github.com/agendave/micita/libs/httpx"
)

type Config struct {
	ServiceName string `env:"SERVICE_NAME" envDefault:"booking-service"`
	Port        string `env:"PORT" envDefault:"8083"`
	GRPCPort    string `env:"GRPC_PORT"`
	DatabaseURL string `env:"DATABASE_URL,required"`

	// StoreBackend selects where reads come from: "postgres" or "supabase".
	StoreBackend           string `env:"STORE_BACKEND" envDefault:"postgres"`
	SupabaseURL            string `env:"SUPABASE_URL"`
	SupabaseServiceRoleKey string `env:"SUPABASE_SERVICE_ROLE_KEY"`
	SupabaseJWTSecret      string `env:"SUPABASE_JWT_SECRET,required"`
	JWTAudience            string `env:"SUPABASE_JWT_AUDIENCE" envDefault:"authenticated"`

	DefaultTimezone        string `env:"DEFAULT_TIMEZONE" envDefault:"America/Caracas"`
	SlotGranularityMinutes int    `env:"SLOT_GRANULARITY_MINUTES" envDefault:"30"`

	CacheBackend       string `env:"CACHE_BACKEND" envDefault:"memory"`
	CacheSize          int    `env:"CACHE_SIZE" envDefault:"1024"`
	CacheMaxAgeSeconds int    `env:"CACHE_MAX_AGE_SECONDS" envDefault:"300"`

	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	KafkaBrokers string `env:"KAFKA_BROKERS"`
	KafkaGroupID string `env:"KAFKA_GROUP_ID" envDefault:"booking-service"`

	RateLimitPerMinute int      `env:"RATE_LIMIT_PER_MINUTE" envDefault:"120"`
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:","`
	TrustedProxies     []string `env:"TRUSTED_PROXIES" envSeparator:","`
}

func loadConfig() (Config, error) {
	var cfg Config
	if err := config.Load(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if err := config.ValidPort("PORT", c.Port); err != nil {
		return err
	}
	if err := config.ValidPort("GRPC_PORT", c.GRPCPort); err != nil {
		return err
	}
	switch c.StoreBackend {
	case "postgres":
	case "supabase":
		if strings.TrimSpace(c.SupabaseURL) == "" || strings.TrimSpace(c.SupabaseServiceRoleKey) == "" {
			return fmt.Errorf("STORE_BACKEND=supabase requires SUPABASE_URL and SUPABASE_SERVICE_ROLE_KEY")
		}
	default:
		return fmt.Errorf("STORE_BACKEND must be postgres or supabase (got %q)", c.StoreBackend)
	}
	switch c.CacheBackend {
	case "memory":
	case "redis":
		if strings.TrimSpace(c.RedisAddr) == "" {
			return fmt.Errorf("CACHE_BACKEND=redis requires REDIS_ADDR")
		}
	default:
		return fmt.Errorf("CACHE_BACKEND must be memory or redis (got %q)", c.CacheBackend)
	}
	if c.SlotGranularityMinutes <= 0 || c.SlotGranularityMinutes > 24*60 {
		return fmt.Errorf("SLOT_GRANULARITY_MINUTES must be between 1 and 1440 (got %d)", c.SlotGranularityMinutes)
	}
	if _, err := time.LoadLocation(c.DefaultTimezone); err != nil {
		return fmt.Errorf("DEFAULT_TIMEZONE: %w", err)
	}
	if _, err := httpx.ParseTrustedProxies(c.TrustedProxies); err != nil {
		return fmt.Errorf("TRUSTED_PROXIES: %w", err)
	}
	return nil
}

func (c Config) CacheMaxAge() time.Duration {
	return time.Duration(c.CacheMaxAgeSeconds) * time.Second
}
