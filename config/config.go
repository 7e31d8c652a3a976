package config

import (
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // TIMEZONE must resolve on images without zoneinfo

	"github.com/joho/godotenv"
)

type Config struct {
	DB               DBConfig
	Telegram         TelegramConfig
	HTTP             HTTPConfig
	Delivery         DeliveryConfig
	Pricing          PricingConfig
	Notify           NotifyConfig
	Location         *time.Location // wall clock used for promo windows and opening hours
	UsernameCacheTTL time.Duration
	AutoMigrate      bool // apply embedded migrations on serve
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
}

type TelegramConfig struct {
	Token string // notifications + merchant bot; empty disables Telegram
}

type HTTPConfig struct {
	Addr      string
	JWTSecret string
}

type DeliveryConfig struct {
	RatePerKm int64 // fallback when a merchant has no fee tiers
}

type PricingConfig struct {
	TaxPercent int64
}

type NotifyConfig struct {
	PollInterval time.Duration
	MaxAttempts  int
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	port, _ := strconv.Atoi(getEnv("DB_PORT", "5432"))

	loc, err := time.LoadLocation(getEnv("TIMEZONE", "Asia/Kolkata"))
	if err != nil {
		return nil, err
	}

	return &Config{
		DB: DBConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     port,
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			Database: getEnv("DB_NAME", "pattibytes"),
		},
		Telegram: TelegramConfig{
			Token: getEnv("TOKEN", ""),
		},
		HTTP: HTTPConfig{
			Addr:      getEnv("HTTP_ADDR", ":8080"),
			JWTSecret: getEnv("JWT_SECRET", "changeme"),
		},
		Delivery: DeliveryConfig{
			RatePerKm: getEnvInt64("DELIVERY_RATE_PER_KM", 10),
		},
		Pricing: PricingConfig{
			TaxPercent: getEnvInt64("TAX_PERCENT", 5),
		},
		Notify: NotifyConfig{
			PollInterval: getEnvDuration("NOTIFY_POLL_INTERVAL", 3*time.Second),
			MaxAttempts:  int(getEnvInt64("NOTIFY_MAX_ATTEMPTS", 5)),
		},
		Location:         loc,
		UsernameCacheTTL: getEnvDuration("USERNAME_CACHE_TTL", 5*time.Minute),
		AutoMigrate:      getEnvBool("AUTO_MIGRATE"),
	}, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt64(key string, def int64) int64 {
	n, err := strconv.ParseInt(getEnv(key, ""), 10, 64)
	if err != nil {
		return def
	}
	return n
}

func getEnvBool(key string) bool {
	v := strings.TrimSpace(os.Getenv(key))
	return v == "1" || strings.EqualFold(v, "true")
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(getEnv(key, ""))
	if err != nil || d <= 0 {
		return def
	}
	return d
}
