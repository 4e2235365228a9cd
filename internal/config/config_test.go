package config

import (
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Server.Port)
	}
	if cfg.Scan.Workers != 16 {
		t.Errorf("expected 16 workers, got %d", cfg.Scan.Workers)
	}
	if cfg.Scan.MaxAttempts != 3 {
		t.Errorf("expected 3 max attempts, got %d", cfg.Scan.MaxAttempts)
	}
	if cfg.Scan.BackoffBase != 500*time.Millisecond {
		t.Errorf("expected 500ms backoff base, got %v", cfg.Scan.BackoffBase)
	}
	if cfg.Scan.BackoffCap != 30*time.Second {
		t.Errorf("expected 30s backoff cap, got %v", cfg.Scan.BackoffCap)
	}
	if len(cfg.Providers.Enabled) != 1 || cfg.Providers.Enabled[0] != "abuseIPDB" {
		t.Errorf("expected abuseIPDB enabled by default, got %v", cfg.Providers.Enabled)
	}
	if cfg.Providers.AbuseIPDB.MaxAgeDays != 90 {
		t.Errorf("expected 90 day report window, got %d", cfg.Providers.AbuseIPDB.MaxAgeDays)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("expected json log format, got %s", cfg.Logging.Format)
	}
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("SCAN_WORKERS", "32")
	t.Setenv("SCAN_BACKOFF_BASE", "250ms")
	t.Setenv("PROVIDERS_ENABLED", "abuseIPDB, otherProvider")
	t.Setenv("ABUSEIPDB_RPS", "2.5")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != "9090" {
		t.Errorf("expected port 9090, got %s", cfg.Server.Port)
	}
	if cfg.Scan.Workers != 32 {
		t.Errorf("expected 32 workers, got %d", cfg.Scan.Workers)
	}
	if cfg.Scan.BackoffBase != 250*time.Millisecond {
		t.Errorf("expected 250ms backoff base, got %v", cfg.Scan.BackoffBase)
	}
	if len(cfg.Providers.Enabled) != 2 || cfg.Providers.Enabled[1] != "otherProvider" {
		t.Errorf("expected two enabled providers, got %v", cfg.Providers.Enabled)
	}
	if cfg.Providers.AbuseIPDB.RPS != 2.5 {
		t.Errorf("expected RPS 2.5, got %v", cfg.Providers.AbuseIPDB.RPS)
	}
}

func TestLoadConfigIgnoresMalformedValues(t *testing.T) {
	t.Setenv("SCAN_WORKERS", "many")
	t.Setenv("SCAN_BACKOFF_BASE", "soon")
	t.Setenv("ABUSEIPDB_RPS", "fast")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Scan.Workers != 16 {
		t.Errorf("malformed int should fall back to default, got %d", cfg.Scan.Workers)
	}
	if cfg.Scan.BackoffBase != 500*time.Millisecond {
		t.Errorf("malformed duration should fall back to default, got %v", cfg.Scan.BackoffBase)
	}
	if cfg.Providers.AbuseIPDB.RPS != 5 {
		t.Errorf("malformed float should fall back to default, got %v", cfg.Providers.AbuseIPDB.RPS)
	}
}

func TestSplitList(t *testing.T) {
	tests := []struct {
		raw  string
		want []string
	}{
		{raw: "a,b,c", want: []string{"a", "b", "c"}},
		{raw: " a , b ", want: []string{"a", "b"}},
		{raw: "a,,b", want: []string{"a", "b"}},
		{raw: "", want: []string{}},
	}

	for _, tt := range tests {
		got := splitList(tt.raw)
		if len(got) != len(tt.want) {
			t.Errorf("splitList(%q) = %v, want %v", tt.raw, got, tt.want)
			continue
		}
		for i := range tt.want {
			if got[i] != tt.want[i] {
				t.Errorf("splitList(%q)[%d] = %q, want %q", tt.raw, i, got[i], tt.want[i])
			}
		}
	}
}
