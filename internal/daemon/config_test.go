package daemon

import (
	"testing"
)

// ─── Config Tests ───────────────────────────────────────────────────────────

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.API.Port != 8090 {
		t.Errorf("default port = %d, want 8090", cfg.API.Port)
	}
	if cfg.Sweeps.VoteInterval != 60 {
		t.Errorf("default vote interval = %d, want 60", cfg.Sweeps.VoteInterval)
	}
	if cfg.Economy.FreezeFee != 10 || cfg.Economy.UnfreezeFee != 5 {
		t.Errorf("default fees = %d/%d, want 10/5", cfg.Economy.FreezeFee, cfg.Economy.UnfreezeFee)
	}
	if !cfg.Telemetry.Prometheus {
		t.Error("prometheus should default on")
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("LOCKUP_HOME", t.TempDir())

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}
	if cfg != DefaultConfig() {
		t.Errorf("config without file = %+v, want defaults", cfg)
	}
}

func TestConfig_SaveLoadRoundTrip(t *testing.T) {
	t.Setenv("LOCKUP_HOME", t.TempDir())

	cfg := DefaultConfig()
	cfg.API.Port = 9999
	cfg.Sweeps.RewardInterval = 120
	cfg.Economy.FreezeFee = 25

	if err := SaveConfig(cfg); err != nil {
		t.Fatalf("SaveConfig() error: %v", err)
	}
	loaded, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}
	if loaded != cfg {
		t.Errorf("round trip = %+v, want %+v", loaded, cfg)
	}
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("LOCKUP_HOME", t.TempDir())
	t.Setenv("LOCKUP_API_PORT", "7070")
	t.Setenv("LOCKUP_FREEZE_FEE", "42")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}
	if cfg.API.Port != 7070 {
		t.Errorf("env port = %d, want 7070", cfg.API.Port)
	}
	if cfg.Economy.FreezeFee != 42 {
		t.Errorf("env freeze fee = %d, want 42", cfg.Economy.FreezeFee)
	}
}
