package config

import (
	"errors"
	"io/fs"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port           string   `yaml:"port"`
		PublicURL      string   `yaml:"public_url"`
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"server"`
	Log struct {
		Mode string `yaml:"mode"`
	} `yaml:"log"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Quiz struct {
		CacheTTL               string `yaml:"cache_ttl"`
		DefaultTimePerQuestion int    `yaml:"default_time_per_question"`
	} `yaml:"quiz"`
	Gemini struct {
		APIKey  string `yaml:"api_key"`
		BaseURL string `yaml:"base_url"`
		Model   string `yaml:"model"`
		Timeout string `yaml:"timeout"`
	} `yaml:"gemini"`
	Pexels struct {
		APIKey  string `yaml:"api_key"`
		BaseURL string `yaml:"base_url"`
		Timeout string `yaml:"timeout"`
	} `yaml:"pexels"`
	Multiplayer struct {
		Topic        string `yaml:"topic"`
		NumQuestions int    `yaml:"num_questions"`
	} `yaml:"multiplayer"`
}

// Load reads YAML config from path. A missing file yields defaults; env overrides apply last.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return cfg, err
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, err
		}
	}
	cfg.applyEnv()
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyEnv() {
	override(&c.Gemini.APIKey, "GEMINI_API_KEY")
	override(&c.Pexels.APIKey, "PEXELS_API_KEY")
	override(&c.Redis.Addr, "REDIS_ADDR")
	override(&c.Postgres.URL, "POSTGRES_URL")
}

func (c *Config) applyDefaults() {
	if c.Server.PublicURL == "" {
		c.Server.PublicURL = "http://localhost:8080"
	}
	if c.Gemini.BaseURL == "" {
		c.Gemini.BaseURL = "https://generativelanguage.googleapis.com"
	}
	if c.Gemini.Model == "" {
		c.Gemini.Model = "gemini-2.0-flash"
	}
	if c.Pexels.BaseURL == "" {
		c.Pexels.BaseURL = "https://api.pexels.com/v1"
	}
	if c.Quiz.DefaultTimePerQuestion <= 0 {
		c.Quiz.DefaultTimePerQuestion = 30
	}
	if c.Multiplayer.Topic == "" {
		c.Multiplayer.Topic = "General Knowledge"
	}
	if c.Multiplayer.NumQuestions <= 0 {
		c.Multiplayer.NumQuestions = 5
	}
}

// Warnings describes features degraded by missing credentials.
// The service still starts; clients see the message next to the affected actions.
func (c Config) Warnings() string {
	var parts []string
	if c.Gemini.APIKey == "" {
		parts = append(parts, "Gemini API Key is not configured. AI features may be unavailable.")
	}
	if c.Pexels.APIKey == "" {
		parts = append(parts, "Pexels API Key missing. Image questions may not work.")
	}
	return strings.Join(parts, " ")
}

func override(dst *string, env string) {
	if v := strings.TrimSpace(os.Getenv(env)); v != "" {
		*dst = v
	}
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
