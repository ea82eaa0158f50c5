package config

import "testing"

func TestLoadDoesNotInjectWeakAuthDefaults(t *testing.T) {
	t.Setenv("AUTH_SECRET", "")

	cfg := Load()
	if cfg.AuthSecret != "" {
		t.Fatalf("expected empty AUTH_SECRET when unset, got %q", cfg.AuthSecret)
	}
}

func TestLoadFallsBackOnBadNumbers(t *testing.T) {
	t.Setenv("ACCESS_TOKEN_TTL_MINUTES", "not-a-number")
	t.Setenv("KPI_CACHE_TTL_SECONDS", "-5")
	t.Setenv("LOW_STOCK_THRESHOLD", "0")

	cfg := Load()
	if cfg.AccessTokenTTLMinutes != 480 {
		t.Fatalf("expected token TTL fallback 480, got %d", cfg.AccessTokenTTLMinutes)
	}
	if cfg.KPICacheTTLSeconds != 60 {
		t.Fatalf("expected KPI TTL fallback 60, got %d", cfg.KPICacheTTLSeconds)
	}
	if cfg.LowStockThreshold != 10 {
		t.Fatalf("expected low stock fallback 10, got %d", cfg.LowStockThreshold)
	}
}
