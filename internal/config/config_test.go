package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if errWrite := os.WriteFile(path, []byte(content), 0o600); errWrite != nil {
		t.Fatalf("write config: %v", errWrite)
	}
	return path
}

func TestLoadEmptyPathYieldsDefaults(t *testing.T) {
	cfg, errLoad := Load("")
	if errLoad != nil {
		t.Fatalf("load defaults: %v", errLoad)
	}
	if cfg.Server.Addr != ":8317" {
		t.Fatalf("unexpected default addr: %s", cfg.Server.Addr)
	}
	if cfg.Governance.Limits.DailyMicros != 10_000_000 {
		t.Fatalf("unexpected default daily limit: %d", cfg.Governance.Limits.DailyMicros)
	}
	if cfg.Governance.Thresholds.LatencyCriticalMs != 15_000 {
		t.Fatalf("unexpected default latency critical: %d", cfg.Governance.Thresholds.LatencyCriticalMs)
	}
}

func TestLoadParsesYAMLOverDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  addr: ":9000"
governance:
  limits:
    daily-micros: 20000000
    max-requests-per-minute: 5
  scope-limits:
    "svc|openai|gpt-4o":
      daily-micros: 1000000
      warning-threshold: 0.5
`)
	cfg, errLoad := Load(path)
	if errLoad != nil {
		t.Fatalf("load: %v", errLoad)
	}
	if cfg.Server.Addr != ":9000" {
		t.Fatalf("unexpected addr: %s", cfg.Server.Addr)
	}
	if cfg.Governance.Limits.DailyMicros != 20_000_000 {
		t.Fatalf("unexpected daily limit: %d", cfg.Governance.Limits.DailyMicros)
	}
	if cfg.Governance.Limits.MaxRequestsPerMinute != 5 {
		t.Fatalf("unexpected rpm: %d", cfg.Governance.Limits.MaxRequestsPerMinute)
	}
	override, ok := cfg.Governance.ScopeLimits["svc|openai|gpt-4o"]
	if !ok || override.DailyMicros != 1_000_000 || override.WarningThreshold != 0.5 {
		t.Fatalf("unexpected scope override: %+v ok=%v", override, ok)
	}
}

func TestEnvOverridesWinOverFile(t *testing.T) {
	path := writeConfig(t, "server:\n  addr: \":9000\"\n")
	t.Setenv("GOVERNOR_ADDR", ":7000")
	t.Setenv("GOVERNOR_DAILY_LIMIT_MICROS", "42")

	cfg, errLoad := Load(path)
	if errLoad != nil {
		t.Fatalf("load: %v", errLoad)
	}
	if cfg.Server.Addr != ":7000" {
		t.Fatalf("expected env addr to win, got %s", cfg.Server.Addr)
	}
	if cfg.Governance.Limits.DailyMicros != 42 {
		t.Fatalf("expected env daily limit, got %d", cfg.Governance.Limits.DailyMicros)
	}
}

func TestLoadRejectsNegativeLimits(t *testing.T) {
	path := writeConfig(t, "governance:\n  limits:\n    daily-micros: -1\n")
	if _, errLoad := Load(path); errLoad == nil {
		t.Fatalf("expected validation failure for negative limit")
	}
}

func TestLoadRejectsWarningThresholdOutOfRange(t *testing.T) {
	path := writeConfig(t, "governance:\n  limits:\n    warning-threshold: 1.5\n")
	if _, errLoad := Load(path); errLoad == nil {
		t.Fatalf("expected validation failure for threshold > 1")
	}
}

func TestLoadRejectsInvertedLatencyThresholds(t *testing.T) {
	path := writeConfig(t, `
governance:
  thresholds:
    latency-warning-ms: 20000
    latency-critical-ms: 10000
`)
	if _, errLoad := Load(path); errLoad == nil {
		t.Fatalf("expected validation failure for warning >= critical")
	}
}

func TestProviderTimeoutDerivedFromMillis(t *testing.T) {
	path := writeConfig(t, "provider:\n  timeout-ms: 5000\n")
	cfg, errLoad := Load(path)
	if errLoad != nil {
		t.Fatalf("load: %v", errLoad)
	}
	if cfg.Provider.Timeout.Milliseconds() != 5000 {
		t.Fatalf("unexpected provider timeout: %s", cfg.Provider.Timeout)
	}
}
