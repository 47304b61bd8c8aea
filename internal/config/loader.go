package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// LoadConfig loads configuration from a YAML file, applies defaults and validates it
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{}
	if err := loadYAML(path, cfg); err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}

	applyDefaults(cfg)

	// Seed secrets from the env file; variables already set win
	if cfg.Global.EnvFile != "" {
		if err := godotenv.Load(cfg.Global.EnvFile); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("loading env file %s: %w", cfg.Global.EnvFile, err)
		}
	}

	if err := ValidateConfig(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// loadYAML loads a YAML file into a struct
func loadYAML(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, out)
}

// applyDefaults fills every zero value the rest of the program relies on
func applyDefaults(cfg *Config) {
	if cfg.Global.PollInterval == 0 {
		cfg.Global.PollInterval = time.Hour
	}
	if cfg.Global.APIPort == "" {
		cfg.Global.APIPort = "8765"
	}
	if cfg.Global.StatePath == "" {
		cfg.Global.StatePath = "/config/state.yaml"
	}

	if cfg.Countdown.Rounds == 0 {
		cfg.Countdown.Rounds = 5
	}
	if cfg.Countdown.RoundInterval == 0 {
		cfg.Countdown.RoundInterval = time.Minute
	}
	if cfg.Countdown.Cooldown == 0 {
		cfg.Countdown.Cooldown = 5 * time.Minute
	}

	if cfg.Weather.BaseURL == "" {
		cfg.Weather.BaseURL = "https://api.weather.gov"
	}
	if cfg.Weather.UserAgent == "" {
		cfg.Weather.UserAgent = "stormguard (admin@localhost)"
	}
	if cfg.Weather.Timeout == 0 {
		cfg.Weather.Timeout = 15 * time.Second
	}

	if cfg.Telegram.TokenEnv == "" {
		cfg.Telegram.TokenEnv = "TELEGRAM_BOT_TOKEN"
	}
	if cfg.Telegram.RatePerSecond == 0 {
		cfg.Telegram.RatePerSecond = 20
	}

	if cfg.Apprise.APIURLEnv == "" {
		cfg.Apprise.APIURLEnv = "APPRISE_API_URL"
	}
	if cfg.Apprise.Timeout == 0 {
		cfg.Apprise.Timeout = 10 * time.Second
	}

	if cfg.Panel.APIKeyEnv == "" {
		cfg.Panel.APIKeyEnv = "PANEL_API_KEY"
	}
	if cfg.Panel.Timeout == 0 {
		cfg.Panel.Timeout = 10 * time.Second
	}

	if cfg.LLM.Model == "" {
		cfg.LLM.Model = "gpt-4o-mini"
	}
	if cfg.LLM.APIKeyEnv == "" {
		cfg.LLM.APIKeyEnv = "OPENAI_API_KEY"
	}
	if cfg.LLM.Persona == "" {
		cfg.LLM.Persona = "You are Red, a witty, helpful server assistant."
	}

	if cfg.Announcements.DefaultUsername == "" {
		cfg.Announcements.DefaultUsername = "Red"
	}
	if cfg.Announcements.DefaultMessage == "" {
		cfg.Announcements.DefaultMessage = "Server is offline."
	}
}

// ValidateConfig validates the configuration
func ValidateConfig(cfg *Config) error {
	if cfg.Global.PollInterval < time.Minute {
		return fmt.Errorf("global.poll_interval must be at least 1m, got %s", cfg.Global.PollInterval)
	}
	if cfg.Countdown.Rounds < 1 {
		return fmt.Errorf("countdown.rounds must be > 0")
	}
	if cfg.Countdown.RoundInterval <= 0 || cfg.Countdown.Cooldown < 0 {
		return fmt.Errorf("countdown.round_interval must be > 0 and countdown.cooldown >= 0")
	}

	if cfg.LLM.ClassifyFallback && !cfg.LLM.Enabled {
		return fmt.Errorf("llm.classify_fallback requires llm.enabled")
	}

	for name, ent := range cfg.Entities {
		if (ent.Latitude == nil) != (ent.Longitude == nil) {
			return fmt.Errorf("entity %s: latitude and longitude must be set together", name)
		}
		if ent.Latitude != nil {
			if lat := *ent.Latitude; !(lat >= -90 && lat <= 90) {
				return fmt.Errorf("entity %s: latitude %v out of range", name, *ent.Latitude)
			}
			if lon := *ent.Longitude; !(lon >= -180 && lon <= 180) {
				return fmt.Errorf("entity %s: longitude %v out of range", name, *ent.Longitude)
			}
		}
		if ent.MonitoringInterval < 0 {
			return fmt.Errorf("entity %s: monitoring_interval must not be negative", name)
		}
		if len(ent.Servers) > 0 && cfg.Panel.BaseURL == "" {
			return fmt.Errorf("entity %s: servers configured but panel.base_url is empty", name)
		}
	}

	for role, members := range cfg.Roles {
		if len(members) == 0 {
			return fmt.Errorf("role %s: has no members", role)
		}
	}

	return nil
}
