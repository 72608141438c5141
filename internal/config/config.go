// Package config handles configuration loading and management for tempo.
// It supports XDG config paths and environment variable overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the tempo daemon.
type Config struct {
	Anthropic   AnthropicConfig   `mapstructure:"anthropic"`
	Rates       RatesConfig       `mapstructure:"rates"`
	Enforcement EnforcementConfig `mapstructure:"enforcement"`
	Scorer      ScorerConfig      `mapstructure:"scorer"`
	Hub         HubConfig         `mapstructure:"hub"`
	Daemon      DaemonConfig      `mapstructure:"daemon"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	APIKey string `mapstructure:"api_key"`
	// UseAWSBedrock routes inference through AWS Bedrock instead of the
	// direct API.
	UseAWSBedrock bool   `mapstructure:"use_aws_bedrock"`
	AWSRegion     string `mapstructure:"aws_region"`
	AWSProfile    string `mapstructure:"aws_profile"`
}

// RatesConfig holds the earned-time economy parameters.
type RatesConfig struct {
	// StandardEarn is earned minutes per on-task minute in a work block.
	StandardEarn float64 `mapstructure:"standard_earn"`
	// DeepFocusEarn is the boosted rate while the deep-focus window holds.
	DeepFocusEarn float64 `mapstructure:"deep_focus_earn"`
	// WelcomeCreditMinutes is the one-time first-day credit.
	WelcomeCreditMinutes float64 `mapstructure:"welcome_credit_minutes"`
	// PartnerGrantMinutes is the size of one partner time grant.
	PartnerGrantMinutes float64 `mapstructure:"partner_grant_minutes"`
	// PartnerGrantsPerDay caps partner grants per calendar day.
	PartnerGrantsPerDay int `mapstructure:"partner_grants_per_day"`
}

// StageThresholds holds the cumulative distraction-second boundaries
// for one block kind's escalation machine.
type StageThresholds struct {
	// Nudge is the distraction-seconds threshold for the nudge stage.
	Nudge float64 `mapstructure:"nudge"`
	// Redirect is the threshold for the redirect stage on a first
	// visit. Revisits within the same block redirect instantly.
	Redirect float64 `mapstructure:"redirect"`
	// Intervention is the threshold for the intervention stage.
	Intervention float64 `mapstructure:"intervention"`
}

// EnforcementConfig holds the monitor's timing parameters.
type EnforcementConfig struct {
	// PollInterval is how often the foreground target is sampled.
	PollInterval time.Duration `mapstructure:"poll_interval"`
	// DeepFocus holds stage thresholds for deep-focus blocks.
	DeepFocus StageThresholds `mapstructure:"deep_focus"`
	// LightFocus holds stage thresholds for light-focus blocks.
	LightFocus StageThresholds `mapstructure:"light_focus"`
	// DecayWindow is how long the distraction counter takes to fully
	// unwind once the user returns to on-task work.
	DecayWindow time.Duration `mapstructure:"decay_window"`
	// InterventionDurations are the escalating lengths of repeated
	// interventions within one block.
	InterventionDurations []time.Duration `mapstructure:"intervention_durations"`
	// FocusWindow is the rolling window length for deep-focus detection.
	FocusWindow time.Duration `mapstructure:"focus_window"`
	// AlwaysAllowed lists target labels exempt from scoring.
	AlwaysAllowed []string `mapstructure:"always_allowed"`
}

// ScorerConfig holds relevance-scoring settings.
type ScorerConfig struct {
	// Model is the Anthropic model used for inference.
	Model string `mapstructure:"model"`
	// Timeout bounds one inference call; expiry is fail-closed.
	Timeout time.Duration `mapstructure:"timeout"`
	// MinKeywordOverlap is the keyword-stage match threshold.
	MinKeywordOverlap int `mapstructure:"min_keyword_overlap"`
}

// HubConfig holds protocol hub settings.
type HubConfig struct {
	// SocketPath overrides the per-user default socket location.
	SocketPath string `mapstructure:"socket_path"`
}

// DaemonConfig holds top-level daemon settings.
type DaemonConfig struct {
	// Disabled switches off all enforcement and earning.
	Disabled bool `mapstructure:"disabled"`
	// DataDir overrides the default per-user data directory.
	DataDir string `mapstructure:"data_dir"`
	// HeartbeatInterval is the coarse external heartbeat period.
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	// SnoozeDuration is the length of a schedule snooze.
	SnoozeDuration time.Duration `mapstructure:"snooze_duration"`
}

// Load loads configuration from the XDG path and environment variables.
// Precedence (highest to lowest):
// 1. Environment variables (ANTHROPIC_API_KEY, TEMPO_*)
// 2. User config (~/.config/tempo/config.yaml)
// 3. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(getUserConfigDir())

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	v.AutomaticEnv()
	v.SetEnvPrefix("TEMPO")
	v.BindEnv("anthropic.api_key", "ANTHROPIC_API_KEY")

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Anthropic.APIKey = os.ExpandEnv(cfg.Anthropic.APIKey)

	return cfg, nil
}

// LoadFromPath loads configuration from a specific path (for testing).
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Anthropic.APIKey = os.ExpandEnv(cfg.Anthropic.APIKey)

	return cfg, nil
}

// Save writes the current configuration to the user config file.
func Save(cfg *Config) error {
	dir := getUserConfigDir()
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(filepath.Join(dir, "config.yaml"))

	v.Set("anthropic.api_key", cfg.Anthropic.APIKey)
	v.Set("anthropic.use_aws_bedrock", cfg.Anthropic.UseAWSBedrock)
	v.Set("rates.standard_earn", cfg.Rates.StandardEarn)
	v.Set("rates.deep_focus_earn", cfg.Rates.DeepFocusEarn)
	v.Set("rates.welcome_credit_minutes", cfg.Rates.WelcomeCreditMinutes)
	v.Set("rates.partner_grant_minutes", cfg.Rates.PartnerGrantMinutes)
	v.Set("rates.partner_grants_per_day", cfg.Rates.PartnerGrantsPerDay)
	v.Set("enforcement.poll_interval", cfg.Enforcement.PollInterval.String())
	v.Set("enforcement.focus_window", cfg.Enforcement.FocusWindow.String())
	v.Set("scorer.model", cfg.Scorer.Model)
	v.Set("scorer.timeout", cfg.Scorer.Timeout.String())
	v.Set("daemon.disabled", cfg.Daemon.Disabled)
	v.Set("daemon.heartbeat_interval", cfg.Daemon.HeartbeatInterval.String())
	v.Set("daemon.snooze_duration", cfg.Daemon.SnoozeDuration.String())

	return v.WriteConfig()
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// DataDir returns the resolved data directory for persisted state.
func (c *Config) DataDir() string {
	if c.Daemon.DataDir != "" {
		return c.Daemon.DataDir
	}
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		home, _ := os.UserHomeDir()
		dataDir = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataDir, "tempo")
}

// Thresholds returns the escalation thresholds for a block kind:
// the strict set for deep focus, the lenient set otherwise.
func (c *EnforcementConfig) Thresholds(deepFocus bool) StageThresholds {
	if deepFocus {
		return c.DeepFocus
	}
	return c.LightFocus
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("anthropic.api_key", "")
	v.SetDefault("anthropic.use_aws_bedrock", false)

	v.SetDefault("rates.standard_earn", 0.2)
	v.SetDefault("rates.deep_focus_earn", 0.3)
	v.SetDefault("rates.welcome_credit_minutes", 15.0)
	v.SetDefault("rates.partner_grant_minutes", 15.0)
	v.SetDefault("rates.partner_grants_per_day", 2)

	v.SetDefault("enforcement.poll_interval", "10s")
	v.SetDefault("enforcement.deep_focus.nudge", 10.0)
	v.SetDefault("enforcement.deep_focus.redirect", 60.0)
	v.SetDefault("enforcement.deep_focus.intervention", 300.0)
	v.SetDefault("enforcement.light_focus.nudge", 30.0)
	v.SetDefault("enforcement.light_focus.redirect", 120.0)
	v.SetDefault("enforcement.light_focus.intervention", 600.0)
	v.SetDefault("enforcement.decay_window", "6s")
	v.SetDefault("enforcement.intervention_durations", []string{"60s", "90s", "120s"})
	v.SetDefault("enforcement.focus_window", "25m")
	v.SetDefault("enforcement.always_allowed", []string{})

	v.SetDefault("scorer.model", "claude-3-5-haiku-20241022")
	v.SetDefault("scorer.timeout", "8s")
	v.SetDefault("scorer.min_keyword_overlap", 1)

	v.SetDefault("hub.socket_path", "")

	v.SetDefault("daemon.disabled", false)
	v.SetDefault("daemon.data_dir", "")
	v.SetDefault("daemon.heartbeat_interval", "60s")
	v.SetDefault("daemon.snooze_duration", "30m")
}

// getUserConfigDir returns the XDG config directory for tempo.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "tempo")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "tempo")
	}
	return filepath.Join(home, ".config", "tempo")
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Rates: RatesConfig{
			StandardEarn:         0.2,
			DeepFocusEarn:        0.3,
			WelcomeCreditMinutes: 15,
			PartnerGrantMinutes:  15,
			PartnerGrantsPerDay:  2,
		},
		Enforcement: EnforcementConfig{
			PollInterval: 10 * time.Second,
			DeepFocus: StageThresholds{
				Nudge:        10,
				Redirect:     60,
				Intervention: 300,
			},
			LightFocus: StageThresholds{
				Nudge:        30,
				Redirect:     120,
				Intervention: 600,
			},
			DecayWindow: 6 * time.Second,
			InterventionDurations: []time.Duration{
				60 * time.Second,
				90 * time.Second,
				120 * time.Second,
			},
			FocusWindow: 25 * time.Minute,
		},
		Scorer: ScorerConfig{
			Model:             "claude-3-5-haiku-20241022",
			Timeout:           8 * time.Second,
			MinKeywordOverlap: 1,
		},
		Daemon: DaemonConfig{
			HeartbeatInterval: 60 * time.Second,
			SnoozeDuration:    30 * time.Minute,
		},
	}
}
