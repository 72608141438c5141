package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"tempo/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config [key] [value]",
	Short: "Manage configuration",
	Long: `View or modify tempo configuration.

Without arguments, displays current configuration.
With one argument (key), displays the value for that key.
With two arguments (key value), sets the configuration value.

Configuration is stored at ~/.config/tempo/config.yaml`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}

		switch len(args) {
		case 0:
			displayAllConfig(cfg)
		case 1:
			displayConfigKey(cfg, args[0])
		default:
			setConfigKey(cfg, args[0], args[1])
		}
	},
}

// displayAllConfig prints all configuration values.
func displayAllConfig(cfg *config.Config) {
	// Mask API key if set
	apiKeyDisplay := "(not set)"
	if cfg.Anthropic.APIKey != "" {
		apiKeyDisplay = "****"
	}

	fmt.Printf("anthropic.api_key: %s\n", apiKeyDisplay)
	fmt.Printf("anthropic.use_aws_bedrock: %t\n", cfg.Anthropic.UseAWSBedrock)
	fmt.Printf("rates.standard_earn: %g\n", cfg.Rates.StandardEarn)
	fmt.Printf("rates.deep_focus_earn: %g\n", cfg.Rates.DeepFocusEarn)
	fmt.Printf("rates.welcome_credit_minutes: %g\n", cfg.Rates.WelcomeCreditMinutes)
	fmt.Printf("rates.partner_grant_minutes: %g\n", cfg.Rates.PartnerGrantMinutes)
	fmt.Printf("rates.partner_grants_per_day: %d\n", cfg.Rates.PartnerGrantsPerDay)
	fmt.Printf("enforcement.poll_interval: %s\n", cfg.Enforcement.PollInterval)
	fmt.Printf("enforcement.decay_window: %s\n", cfg.Enforcement.DecayWindow)
	fmt.Printf("enforcement.focus_window: %s\n", cfg.Enforcement.FocusWindow)
	fmt.Printf("scorer.model: %s\n", cfg.Scorer.Model)
	fmt.Printf("scorer.timeout: %s\n", cfg.Scorer.Timeout)
	fmt.Printf("scorer.min_keyword_overlap: %d\n", cfg.Scorer.MinKeywordOverlap)
	fmt.Printf("hub.socket_path: %s\n", orDefault(cfg.Hub.SocketPath, "(per-user default)"))
	fmt.Printf("daemon.disabled: %t\n", cfg.Daemon.Disabled)
	fmt.Printf("daemon.data_dir: %s\n", cfg.DataDir())
	fmt.Printf("daemon.heartbeat_interval: %s\n", cfg.Daemon.HeartbeatInterval)
	fmt.Printf("daemon.snooze_duration: %s\n", cfg.Daemon.SnoozeDuration)
}

// displayConfigKey prints a single configuration value.
func displayConfigKey(cfg *config.Config, key string) {
	value, err := getConfigValue(cfg, key)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(value)
}

// setConfigKey sets a configuration value and saves the config.
func setConfigKey(cfg *config.Config, key, value string) {
	if err := setConfigValue(cfg, key, value); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := config.Save(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error saving config: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Set %s = %s\n", key, value)
}

// getConfigValue retrieves a configuration value by dot-notation key.
func getConfigValue(cfg *config.Config, key string) (string, error) {
	switch strings.ToLower(key) {
	case "anthropic.api_key":
		if cfg.Anthropic.APIKey == "" {
			return "(not set)", nil
		}
		return "****", nil
	case "anthropic.use_aws_bedrock":
		return strconv.FormatBool(cfg.Anthropic.UseAWSBedrock), nil
	case "rates.standard_earn":
		return strconv.FormatFloat(cfg.Rates.StandardEarn, 'g', -1, 64), nil
	case "rates.deep_focus_earn":
		return strconv.FormatFloat(cfg.Rates.DeepFocusEarn, 'g', -1, 64), nil
	case "rates.welcome_credit_minutes":
		return strconv.FormatFloat(cfg.Rates.WelcomeCreditMinutes, 'g', -1, 64), nil
	case "rates.partner_grant_minutes":
		return strconv.FormatFloat(cfg.Rates.PartnerGrantMinutes, 'g', -1, 64), nil
	case "rates.partner_grants_per_day":
		return strconv.Itoa(cfg.Rates.PartnerGrantsPerDay), nil
	case "enforcement.poll_interval":
		return cfg.Enforcement.PollInterval.String(), nil
	case "enforcement.decay_window":
		return cfg.Enforcement.DecayWindow.String(), nil
	case "enforcement.focus_window":
		return cfg.Enforcement.FocusWindow.String(), nil
	case "scorer.model":
		return cfg.Scorer.Model, nil
	case "scorer.timeout":
		return cfg.Scorer.Timeout.String(), nil
	case "scorer.min_keyword_overlap":
		return strconv.Itoa(cfg.Scorer.MinKeywordOverlap), nil
	case "hub.socket_path":
		return orDefault(cfg.Hub.SocketPath, "(per-user default)"), nil
	case "daemon.disabled":
		return strconv.FormatBool(cfg.Daemon.Disabled), nil
	case "daemon.data_dir":
		return cfg.DataDir(), nil
	case "daemon.heartbeat_interval":
		return cfg.Daemon.HeartbeatInterval.String(), nil
	case "daemon.snooze_duration":
		return cfg.Daemon.SnoozeDuration.String(), nil
	default:
		return "", fmt.Errorf("unknown configuration key: %s", key)
	}
}

// setConfigValue sets a configuration value by dot-notation key.
func setConfigValue(cfg *config.Config, key, value string) error {
	switch strings.ToLower(key) {
	case "anthropic.api_key":
		cfg.Anthropic.APIKey = value
	case "anthropic.use_aws_bedrock":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean: %s", value)
		}
		cfg.Anthropic.UseAWSBedrock = b
	case "rates.standard_earn":
		return setFloat(&cfg.Rates.StandardEarn, value)
	case "rates.deep_focus_earn":
		return setFloat(&cfg.Rates.DeepFocusEarn, value)
	case "rates.welcome_credit_minutes":
		return setFloat(&cfg.Rates.WelcomeCreditMinutes, value)
	case "rates.partner_grant_minutes":
		return setFloat(&cfg.Rates.PartnerGrantMinutes, value)
	case "rates.partner_grants_per_day":
		n, err := strconv.Atoi(value)
		if err != nil || n < 0 {
			return fmt.Errorf("invalid count: %s", value)
		}
		cfg.Rates.PartnerGrantsPerDay = n
	case "enforcement.poll_interval":
		return setDuration(&cfg.Enforcement.PollInterval, value)
	case "enforcement.decay_window":
		return setDuration(&cfg.Enforcement.DecayWindow, value)
	case "enforcement.focus_window":
		return setDuration(&cfg.Enforcement.FocusWindow, value)
	case "scorer.model":
		cfg.Scorer.Model = value
	case "scorer.timeout":
		return setDuration(&cfg.Scorer.Timeout, value)
	case "scorer.min_keyword_overlap":
		n, err := strconv.Atoi(value)
		if err != nil || n < 1 {
			return fmt.Errorf("invalid overlap count: %s", value)
		}
		cfg.Scorer.MinKeywordOverlap = n
	case "hub.socket_path":
		cfg.Hub.SocketPath = value
	case "daemon.disabled":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean: %s", value)
		}
		cfg.Daemon.Disabled = b
	case "daemon.data_dir":
		cfg.Daemon.DataDir = value
	case "daemon.heartbeat_interval":
		return setDuration(&cfg.Daemon.HeartbeatInterval, value)
	case "daemon.snooze_duration":
		return setDuration(&cfg.Daemon.SnoozeDuration, value)
	default:
		return fmt.Errorf("unknown configuration key: %s", key)
	}
	return nil
}

func setFloat(dst *float64, value string) error {
	f, err := strconv.ParseFloat(value, 64)
	if err != nil || f < 0 {
		return fmt.Errorf("invalid number: %s", value)
	}
	*dst = f
	return nil
}

func setDuration(dst *time.Duration, value string) error {
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return fmt.Errorf("invalid duration: %s", value)
	}
	*dst = d
	return nil
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
