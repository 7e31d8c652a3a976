package config

import (
	"testing"
	"time"
)

func TestLoad_Timezone(t *testing.T) {
	t.Setenv("TIMEZONE", "")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Location.String() != "Asia/Kolkata" {
		t.Errorf("default location = %s", cfg.Location)
	}
	_, offset := time.Date(2026, 5, 2, 12, 0, 0, 0, time.UTC).In(cfg.Location).Zone()
	if offset != 5*3600+1800 {
		t.Errorf("Asia/Kolkata offset = %d", offset)
	}

	t.Setenv("TIMEZONE", "Not/AZone")
	if _, err := Load(); err == nil {
		t.Error("unknown timezone accepted")
	}
}

func TestLoad_Defaults(t *testing.T) {
	for _, k := range []string{"NOTIFY_MAX_ATTEMPTS", "NOTIFY_POLL_INTERVAL", "USERNAME_CACHE_TTL", "AUTO_MIGRATE", "TIMEZONE"} {
		t.Setenv(k, "")
	}
	t.Setenv("DELIVERY_RATE_PER_KM", "12")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Delivery.RatePerKm != 12 {
		t.Errorf("RatePerKm = %d", cfg.Delivery.RatePerKm)
	}
	if cfg.Notify.MaxAttempts != 5 || cfg.Notify.PollInterval != 3*time.Second {
		t.Errorf("notify = %+v", cfg.Notify)
	}
	if cfg.UsernameCacheTTL != 5*time.Minute || cfg.AutoMigrate {
		t.Errorf("ttl=%v auto_migrate=%v", cfg.UsernameCacheTTL, cfg.AutoMigrate)
	}
}
