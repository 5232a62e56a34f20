package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDoesNotInjectWeakAuthDefaults(t *testing.T) {
	t.Setenv("AUTH_SECRET", "")

	cfg := Load()
	if cfg.AuthSecret != "" {
		t.Fatalf("expected empty AUTH_SECRET when unset, got %q", cfg.AuthSecret)
	}
}

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"REPORT_CACHE_TTL_SECONDS", "REPORT_TIMEZONE", "MONTHLY_REPORT_INCLUDES_DAILY_EXPENSES", "AUTO_MIGRATE"} {
		t.Setenv(key, "")
	}

	cfg := Load()
	if cfg.ReportCacheTTL() != time.Minute {
		t.Fatalf("expected 60s cache ttl, got %s", cfg.ReportCacheTTL())
	}
	if cfg.MonthlyIncludesDailyExpenses {
		t.Fatalf("daily expenses must be excluded from monthly totals by default")
	}
	if cfg.AutoMigrate {
		t.Fatalf("auto migrate must be opt-in")
	}
	loc, err := cfg.Location()
	if err != nil || loc != time.UTC {
		t.Fatalf("expected UTC location, got %v (%v)", loc, err)
	}
}

func TestLoadReadsFlags(t *testing.T) {
	t.Setenv("MONTHLY_REPORT_INCLUDES_DAILY_EXPENSES", "true")
	t.Setenv("REPORT_CACHE_TTL_SECONDS", "-4")
	t.Setenv("STORAGE_URL", "https://project.supabase.co/")

	cfg := Load()
	if !cfg.MonthlyIncludesDailyExpenses {
		t.Fatalf("expected flag to be read")
	}
	if cfg.ReportCacheTTLSeconds != 60 {
		t.Fatalf("invalid ttl should fall back to 60, got %d", cfg.ReportCacheTTLSeconds)
	}
	if cfg.StorageURL != "https://project.supabase.co" {
		t.Fatalf("expected trailing slash trimmed, got %q", cfg.StorageURL)
	}
}

func TestLoadEnvFile(t *testing.T) {
	if err := LoadEnvFile(filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Fatalf("missing env file should be ignored: %v", err)
	}

	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("CAFE_DOTENV_PROBE=from-file\n"), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Setenv("CAFE_DOTENV_PROBE", "")
	os.Unsetenv("CAFE_DOTENV_PROBE")

	if err := LoadEnvFile(path); err != nil {
		t.Fatalf("load env file: %v", err)
	}
	if got := os.Getenv("CAFE_DOTENV_PROBE"); got != "from-file" {
		t.Fatalf("expected value from env file, got %q", got)
	}
}
