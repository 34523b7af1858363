package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config holds all vaigai configuration.
type Config struct {
	Listen string       `yaml:"listen" env:"VAIGAI_LISTEN" validate:"required"`
	DBPath string       `yaml:"db_path" env:"VAIGAI_DB_PATH" validate:"required"`
	Origin string       `yaml:"origin" env:"VAIGAI_ORIGIN" validate:"required,url"`
	Log    LogConfig    `yaml:"log"`
	Cache  CacheConfig  `yaml:"cache"`
	Gemini GeminiConfig `yaml:"gemini"`
	Report ReportConfig `yaml:"report"`
}

// LogConfig controls the zap logger.
type LogConfig struct {
	Level       string `yaml:"level" env:"VAIGAI_LOG_LEVEL" validate:"oneof=debug info warn error"`
	Development bool   `yaml:"development"`
}

// CacheConfig controls the asset cache.
// Version names the current cache generation; every other generation is
// removed on activation.
type CacheConfig struct {
	Version            string   `yaml:"version" env:"VAIGAI_CACHE_VERSION" validate:"required"`
	Manifest           []string `yaml:"manifest" validate:"dive,rootpath"`
	InstallConcurrency int      `yaml:"install_concurrency" validate:"gte=1,lte=64"`
}

// GeminiConfig defines the generative-content endpoint.
// APIKey is optional; when empty the key saved in the local store is used.
type GeminiConfig struct {
	BaseURL string `yaml:"base_url" validate:"required,url"`
	Model   string `yaml:"model" env:"VAIGAI_GEMINI_MODEL" validate:"required"`
	APIKey  string `yaml:"api_key" env:"GEMINI_API_KEY"`
}

// ReportConfig controls the simulated report desk.
type ReportConfig struct {
	Delay        time.Duration `yaml:"delay" validate:"gte=0"`
	DismissAfter time.Duration `yaml:"dismiss_after" validate:"gte=0"`
}

// DefaultManifest is the asset list pre-cached at install.
var DefaultManifest = []string{
	"/",
	"/index.html",
	"/styles.css",
	"/app.js",
	"/manifest.json",
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Listen: ":8080",
		DBPath: "vaigai.db",
		Origin: "http://localhost:3000",
		Log: LogConfig{
			Level: "info",
		},
		Cache: CacheConfig{
			Version:            "vaigai-ai-v1",
			Manifest:           append([]string(nil), DefaultManifest...),
			InstallConcurrency: 4,
		},
		Gemini: GeminiConfig{
			BaseURL: "https://generativelanguage.googleapis.com/v1beta",
			Model:   "gemini-1.5-flash",
		},
		Report: ReportConfig{
			Delay:        1200 * time.Millisecond,
			DismissAfter: 5 * time.Second,
		},
	}
}

// Load reads a YAML config file, expands environment variables and validates
// the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := parseEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// parseEnv applies VAIGAI_* overrides on top of the file values.
func parseEnv(cfg *Config) error {
	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// LoadOrDefault behaves like Load but falls back to Default when the file
// does not exist.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := Default()
		if err := parseEnv(cfg); err != nil {
			return nil, err
		}
		return cfg, cfg.Validate()
	}
	return Load(path)
}
