package config

import (
	"testing"
	"time"
)

func setBase(t *testing.T) {
	t.Helper()
	t.Setenv("PRACTICE_ID", "prac_test")
}

func TestLoadDefaults(t *testing.T) {
	setBase(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Practice.Mode != ModeDryRun {
		t.Errorf("default mode = %q, want DRY_RUN", cfg.Practice.Mode)
	}
	if cfg.Practice.KillSwitch != KillSwitchOff {
		t.Errorf("default kill switch = %q, want OFF", cfg.Practice.KillSwitch)
	}
	if cfg.Practice.RecallDueWindowDays != 30 {
		t.Errorf("default window = %d, want 30", cfg.Practice.RecallDueWindowDays)
	}
	if cfg.StuckAfter != 30*time.Minute {
		t.Errorf("default stuck threshold = %v, want 30m", cfg.StuckAfter)
	}
	if cfg.KillSwitchEngaged() {
		t.Error("kill switch must not be engaged in DRY_RUN with switch OFF")
	}
}

func TestLoadRequiresPracticeID(t *testing.T) {
	t.Setenv("PRACTICE_ID", "")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for missing PRACTICE_ID")
	}
}

func TestLoadRejectsBadMode(t *testing.T) {
	setBase(t)
	t.Setenv("MODE", "SORT_OF_LIVE")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for invalid MODE")
	}
}

func TestLoadRejectsBadKillSwitch(t *testing.T) {
	setBase(t)
	t.Setenv("KILL_SWITCH", "MAYBE")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for invalid KILL_SWITCH")
	}
}

func TestLiveModeRequiresProviderCreds(t *testing.T) {
	setBase(t)
	t.Setenv("MODE", "LIVE")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for LIVE mode without provider credentials")
	}

	t.Setenv("PROVIDER_ACCOUNT_SID", "AC123")
	t.Setenv("PROVIDER_AUTH_TOKEN", "token")
	t.Setenv("PROVIDER_MESSAGING_SERVICE_SID", "MG123")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load with creds: %v", err)
	}
	if cfg.DryRun() {
		t.Error("DryRun() must be false in LIVE mode")
	}
}

func TestKillSwitchEngagement(t *testing.T) {
	setBase(t)
	t.Setenv("KILL_SWITCH", "ON")

	// ON + DRY_RUN is not engaged: dry runs stay allowed for validation.
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.KillSwitchEngaged() {
		t.Error("kill switch must not block DRY_RUN")
	}

	t.Setenv("MODE", "LIVE")
	t.Setenv("PROVIDER_ACCOUNT_SID", "AC123")
	t.Setenv("PROVIDER_AUTH_TOKEN", "token")
	t.Setenv("PROVIDER_MESSAGING_SERVICE_SID", "MG123")
	cfg, err = Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.KillSwitchEngaged() {
		t.Error("kill switch ON in LIVE mode must be engaged")
	}
}
