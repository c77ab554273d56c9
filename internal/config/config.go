// Package config loads the process-wide configuration once at startup from
// environment variables. Configuration is immutable for the lifetime of the
// process: a reset clears sale state but never rereads the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config is the immutable process-wide configuration.
type Config struct {
	Host string
	Port string

	RedisURL string

	Postgres PostgresConfig

	CORSOrigin      string
	RateLimitMax    int
	RateLimitWindow time.Duration

	SaleStart    time.Time
	SaleEnd      time.Time
	TotalStock   int
	ProductName  string
	ProductPrice float64

	LogLevel string
}

// PostgresConfig configures the ambient audit-trail database. It is
// optional: the core runs on Redis alone, and a Postgres outage degrades
// only the audit trail, never the purchase invariants.
type PostgresConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DB       string
	SSLMode  string
}

// DSN returns the libpq connection string.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		p.User, p.Password, p.Host, p.Port, p.DB, p.SSLMode)
}

// Load reads configuration from the environment, applying sane defaults for
// every field. Returns an error (process should fail to start) on invalid
// timestamps, a sale window that ends before it starts, or negative stock.
func Load() (*Config, error) {
	now := time.Now()

	saleStart, err := getTime("SALE_START_TIME", now.Add(60*time.Second))
	if err != nil {
		return nil, fmt.Errorf("config: invalid SALE_START_TIME: %w", err)
	}
	saleEnd, err := getTime("SALE_END_TIME", now.Add(time.Hour))
	if err != nil {
		return nil, fmt.Errorf("config: invalid SALE_END_TIME: %w", err)
	}
	if saleEnd.Before(saleStart) {
		return nil, fmt.Errorf("config: SALE_END_TIME (%s) is before SALE_START_TIME (%s)", saleEnd, saleStart)
	}

	totalStock, err := getInt("TOTAL_STOCK", 100)
	if err != nil {
		return nil, fmt.Errorf("config: invalid TOTAL_STOCK: %w", err)
	}
	if totalStock < 0 {
		return nil, fmt.Errorf("config: TOTAL_STOCK must not be negative, got %d", totalStock)
	}

	rateLimitMax, err := getInt("RATE_LIMIT_MAX", 100)
	if err != nil {
		return nil, fmt.Errorf("config: invalid RATE_LIMIT_MAX: %w", err)
	}

	rateLimitWindow, err := getDuration("RATE_LIMIT_WINDOW", time.Minute)
	if err != nil {
		return nil, fmt.Errorf("config: invalid RATE_LIMIT_WINDOW: %w", err)
	}

	productPrice, err := getFloat("PRODUCT_PRICE", 0)
	if err != nil {
		return nil, fmt.Errorf("config: invalid PRODUCT_PRICE: %w", err)
	}

	return &Config{
		Host:     getEnv("HOST", "0.0.0.0"),
		Port:     getEnv("PORT", "3001"),
		RedisURL: getEnv("REDIS_URL", "localhost:6379"),
		Postgres: PostgresConfig{
			Host:     getEnv("PG_HOST", "localhost"),
			Port:     getEnv("PG_PORT", "5432"),
			User:     getEnv("PG_USER", "postgres"),
			Password: getEnv("PG_PASSWORD", "postgres"),
			DB:       getEnv("PG_DB", "flash_sale"),
			SSLMode:  getEnv("PG_SSLMODE", "disable"),
		},
		CORSOrigin:      getEnv("CORS_ORIGIN", "*"),
		RateLimitMax:    rateLimitMax,
		RateLimitWindow: rateLimitWindow,
		SaleStart:       saleStart,
		SaleEnd:         saleEnd,
		TotalStock:      totalStock,
		ProductName:     getEnv("PRODUCT_NAME", "Flash Sale Item"),
		ProductPrice:    productPrice,
		LogLevel:        getEnv("LOG_LEVEL", "info"),
	}, nil
}

func getEnv(key, defaultValue string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return defaultValue
}

func getInt(key string, defaultValue int) (int, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return defaultValue, nil
	}
	return strconv.Atoi(v)
}

func getFloat(key string, defaultValue float64) (float64, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return defaultValue, nil
	}
	return strconv.ParseFloat(v, 64)
}

func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return defaultValue, nil
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d, nil
	}
	// Also accept the loose "1 minute" / "30 seconds" style operators tend to type.
	var n int
	var unit string
	if _, err := fmt.Sscanf(v, "%d %s", &n, &unit); err != nil {
		return 0, fmt.Errorf("cannot parse duration %q", v)
	}
	switch unit {
	case "second", "seconds":
		return time.Duration(n) * time.Second, nil
	case "minute", "minutes":
		return time.Duration(n) * time.Minute, nil
	case "hour", "hours":
		return time.Duration(n) * time.Hour, nil
	default:
		return 0, fmt.Errorf("unknown duration unit %q", unit)
	}
}

func getTime(key string, defaultValue time.Time) (time.Time, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return defaultValue, nil
	}
	return time.Parse(time.RFC3339, v)
}
