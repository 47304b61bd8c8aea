package config

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "stormguard.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	path := writeConfig(t, "global:\n  api_port: \"9000\"\n")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Global.APIPort != "9000" {
		t.Errorf("api_port = %q, want 9000", cfg.Global.APIPort)
	}
	if cfg.Global.PollInterval != time.Hour {
		t.Errorf("poll_interval = %s, want 1h", cfg.Global.PollInterval)
	}
	if cfg.Countdown.Rounds != 5 || cfg.Countdown.RoundInterval != time.Minute || cfg.Countdown.Cooldown != 5*time.Minute {
		t.Errorf("unexpected countdown defaults: %+v", cfg.Countdown)
	}
	if cfg.Weather.BaseURL != "https://api.weather.gov" {
		t.Errorf("weather base url = %q", cfg.Weather.BaseURL)
	}
	if cfg.Announcements.DefaultUsername != "Red" || cfg.Announcements.DefaultMessage != "Server is offline." {
		t.Errorf("unexpected announcement defaults: %+v", cfg.Announcements)
	}
}

func TestLoadConfigDurations(t *testing.T) {
	path := writeConfig(t, `
global:
  poll_interval: 30m
countdown:
  rounds: 3
  round_interval: 90s
  cooldown: 2m
entities:
  "-100123":
    latitude: 35.2
    longitude: -97.4
    enabled: true
    monitoring_interval: 2h
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Global.PollInterval != 30*time.Minute {
		t.Errorf("poll_interval = %s", cfg.Global.PollInterval)
	}
	if cfg.Countdown.Rounds != 3 || cfg.Countdown.RoundInterval != 90*time.Second {
		t.Errorf("countdown = %+v", cfg.Countdown)
	}
	ent, ok := cfg.Entities["-100123"]
	if !ok {
		t.Fatalf("entity not loaded")
	}
	if ent.MonitoringInterval != 2*time.Hour || !ent.Enabled || *ent.Latitude != 35.2 {
		t.Errorf("entity = %+v", ent)
	}
}

func TestValidateConfigRejects(t *testing.T) {
	lat := 10.0
	badLat := 120.0
	lon := 20.0
	nan := math.NaN()

	cases := map[string]struct {
		mutate func(*Config)
		want   string
	}{
		"half location": {
			mutate: func(c *Config) { c.Entities = map[string]EntityConfig{"g": {Latitude: &lat}} },
			want:   "latitude and longitude",
		},
		"latitude range": {
			mutate: func(c *Config) { c.Entities = map[string]EntityConfig{"g": {Latitude: &badLat, Longitude: &lon}} },
			want:   "out of range",
		},
		"nan longitude": {
			mutate: func(c *Config) { c.Entities = map[string]EntityConfig{"g": {Latitude: &lat, Longitude: &nan}} },
			want:   "longitude NaN out of range",
		},
		"short poll": {
			mutate: func(c *Config) { c.Global.PollInterval = time.Second },
			want:   "poll_interval",
		},
		"classifier without llm": {
			mutate: func(c *Config) { c.LLM.ClassifyFallback = true },
			want:   "classify_fallback",
		},
		"servers without panel": {
			mutate: func(c *Config) { c.Entities = map[string]EntityConfig{"g": {Servers: []string{"abc"}}} },
			want:   "panel.base_url",
		},
		"empty role": {
			mutate: func(c *Config) { c.Roles = map[string][]string{"ops": nil} },
			want:   "no members",
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := &Config{}
			applyDefaults(cfg)
			tc.mutate(cfg)
			err := ValidateConfig(cfg)
			if err == nil {
				t.Fatalf("expected error containing %q", tc.want)
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
