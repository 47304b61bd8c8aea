package config

import "time"

// Config represents the complete StormGuard configuration
type Config struct {
	Global        GlobalConfig            `yaml:"global"`
	Countdown     CountdownConfig         `yaml:"countdown"`
	Weather       WeatherConfig           `yaml:"weather"`
	Telegram      TelegramConfig          `yaml:"telegram"`
	Apprise       AppriseConfig           `yaml:"apprise"`
	Panel         PanelConfig             `yaml:"panel"`
	LLM           LLMConfig               `yaml:"llm"`
	Announcements AnnouncementConfig      `yaml:"announcements"`
	Roles         map[string][]string     `yaml:"roles,omitempty"`
	Entities      map[string]EntityConfig `yaml:"entities,omitempty"`
}

// GlobalConfig contains global settings
type GlobalConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
	APIPort      string        `yaml:"api_port"`
	StatePath    string        `yaml:"state_path"`
	LogFile      string        `yaml:"log_file,omitempty"`
	EnvFile      string        `yaml:"env_file,omitempty"`
}

// CountdownConfig shapes the shutdown warning sequence
type CountdownConfig struct {
	Rounds        int           `yaml:"rounds"`
	RoundInterval time.Duration `yaml:"round_interval"`
	Cooldown      time.Duration `yaml:"cooldown"`
}

// WeatherConfig points at the alert feed
type WeatherConfig struct {
	BaseURL   string        `yaml:"base_url"`
	UserAgent string        `yaml:"user_agent"`
	Timeout   time.Duration `yaml:"timeout"`
}

// TelegramConfig configures the chat adapter
type TelegramConfig struct {
	TokenEnv      string `yaml:"token_env"`
	RatePerSecond int    `yaml:"rate_per_second"`
}

// AppriseConfig configures the Apprise API sink
type AppriseConfig struct {
	APIURLEnv string        `yaml:"api_url_env"`
	Timeout   time.Duration `yaml:"timeout"`
}

// PanelConfig configures the game-server panel client
type PanelConfig struct {
	BaseURL   string        `yaml:"base_url"`
	APIKeyEnv string        `yaml:"api_key_env"`
	Timeout   time.Duration `yaml:"timeout"`
}

// LLMConfig configures the optional language model
type LLMConfig struct {
	Enabled          bool   `yaml:"enabled"`
	Model            string `yaml:"model"`
	APIKeyEnv        string `yaml:"api_key_env"`
	BaseURL          string `yaml:"base_url,omitempty"`
	Persona          string `yaml:"persona,omitempty"`
	ClassifyFallback bool   `yaml:"classify_fallback"`
}

// AnnouncementConfig holds the announcement shown before anyone posts one
type AnnouncementConfig struct {
	DefaultUsername string `yaml:"default_username"`
	DefaultAvatar   string `yaml:"default_avatar"`
	DefaultMessage  string `yaml:"default_message"`
}

// EntityConfig seeds a monitored entity on first start
type EntityConfig struct {
	Latitude            *float64      `yaml:"latitude,omitempty"`
	Longitude           *float64      `yaml:"longitude,omitempty"`
	Alerts              []string      `yaml:"alerts,omitempty"`
	Admins              []string      `yaml:"admins,omitempty"`
	AnnouncementChannel string        `yaml:"announcement_channel,omitempty"`
	Enabled             bool          `yaml:"enabled"`
	MonitoringInterval  time.Duration `yaml:"monitoring_interval,omitempty"`
	Servers             []string      `yaml:"servers,omitempty"`
}
