package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Rates.StandardEarn != 0.2 {
		t.Errorf("StandardEarn = %v, want 0.2", cfg.Rates.StandardEarn)
	}
	if cfg.Rates.DeepFocusEarn != 0.3 {
		t.Errorf("DeepFocusEarn = %v, want 0.3", cfg.Rates.DeepFocusEarn)
	}
	if cfg.Rates.WelcomeCreditMinutes != 15 {
		t.Errorf("WelcomeCreditMinutes = %v, want 15", cfg.Rates.WelcomeCreditMinutes)
	}
	if cfg.Enforcement.PollInterval != 10*time.Second {
		t.Errorf("PollInterval = %v, want 10s", cfg.Enforcement.PollInterval)
	}
	if cfg.Enforcement.FocusWindow != 25*time.Minute {
		t.Errorf("FocusWindow = %v, want 25m", cfg.Enforcement.FocusWindow)
	}
	if len(cfg.Enforcement.InterventionDurations) != 3 {
		t.Errorf("InterventionDurations = %v, want 3 entries", cfg.Enforcement.InterventionDurations)
	}
	if cfg.Daemon.SnoozeDuration != 30*time.Minute {
		t.Errorf("SnoozeDuration = %v, want 30m", cfg.Daemon.SnoozeDuration)
	}
}

func TestThresholds(t *testing.T) {
	cfg := Default()

	deep := cfg.Enforcement.Thresholds(true)
	if deep.Nudge != 10 || deep.Redirect != 60 || deep.Intervention != 300 {
		t.Errorf("deep thresholds = %+v", deep)
	}

	light := cfg.Enforcement.Thresholds(false)
	if light.Nudge != 30 || light.Redirect != 120 || light.Intervention != 600 {
		t.Errorf("light thresholds = %+v", light)
	}
}

func TestLoadFromPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	content := `
rates:
  standard_earn: 0.5
enforcement:
  poll_interval: 5s
  deep_focus:
    nudge: 20
scorer:
  model: test-model
daemon:
  disabled: true
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath failed: %v", err)
	}

	if cfg.Rates.StandardEarn != 0.5 {
		t.Errorf("StandardEarn = %v, want the file's 0.5", cfg.Rates.StandardEarn)
	}
	if cfg.Enforcement.PollInterval != 5*time.Second {
		t.Errorf("PollInterval = %v, want 5s", cfg.Enforcement.PollInterval)
	}
	if cfg.Enforcement.DeepFocus.Nudge != 20 {
		t.Errorf("deep nudge = %v, want 20", cfg.Enforcement.DeepFocus.Nudge)
	}
	if !cfg.Daemon.Disabled {
		t.Error("Disabled should come from the file")
	}

	// Keys the file omits keep their defaults.
	if cfg.Rates.DeepFocusEarn != 0.3 {
		t.Errorf("DeepFocusEarn = %v, want default 0.3", cfg.Rates.DeepFocusEarn)
	}
	if cfg.Enforcement.LightFocus.Redirect != 120 {
		t.Errorf("light redirect = %v, want default 120", cfg.Enforcement.LightFocus.Redirect)
	}
	if cfg.Scorer.Model != "test-model" {
		t.Errorf("Model = %q, want test-model", cfg.Scorer.Model)
	}
}

func TestLoadFromPathMissingFile(t *testing.T) {
	if _, err := LoadFromPath(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected an error for a missing file")
	}
}

func TestDataDirOverride(t *testing.T) {
	cfg := Default()
	cfg.Daemon.DataDir = "/srv/tempo"
	if got := cfg.DataDir(); got != "/srv/tempo" {
		t.Errorf("DataDir = %q, want the override", got)
	}
}
