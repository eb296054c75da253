// Package config loads runtime settings from an optional YAML file with
// environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration adds YAML support for time.ParseDuration strings like "30m".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

type Config struct {
	Port        int    `yaml:"port"`
	DBPath      string `yaml:"dbPath"`
	CatalogPath string `yaml:"catalogPath"`
	APIKey      string `yaml:"apiKey"`

	Crawl  CrawlConfig  `yaml:"crawl"`
	Enrich EnrichConfig `yaml:"enrich"`
}

type CrawlConfig struct {
	Concurrency    int      `yaml:"concurrency"`
	Timeout        Duration `yaml:"timeout"`
	MaxRetries     int      `yaml:"maxRetries"`
	RetryBase      Duration `yaml:"retryBase"`
	MaxItems       int      `yaml:"maxItems"`
	HighInterval   Duration `yaml:"highInterval"`
	MediumInterval Duration `yaml:"mediumInterval"`
	LowInterval    Duration `yaml:"lowInterval"`
	AutoInterval   Duration `yaml:"autoInterval"`
}

type EnrichConfig struct {
	BaseURL      string   `yaml:"baseUrl"`
	APIKey       string   `yaml:"apiKey"`
	Model        string   `yaml:"model"`
	Concurrency  int      `yaml:"concurrency"`
	HandoffLimit int      `yaml:"handoffLimit"`
	Timeout      Duration `yaml:"timeout"`
}

func defaults() Config {
	return Config{
		Port:   8080,
		DBPath: "data/aiscope.db",
		Crawl: CrawlConfig{
			Concurrency:    5,
			Timeout:        Duration(20 * time.Second),
			MaxRetries:     3,
			RetryBase:      Duration(3 * time.Second),
			MaxItems:       10,
			HighInterval:   Duration(30 * time.Minute),
			MediumInterval: Duration(2 * time.Hour),
			LowInterval:    Duration(6 * time.Hour),
			AutoInterval:   Duration(10 * time.Minute),
		},
		Enrich: EnrichConfig{
			BaseURL:      "https://api.openai.com/v1",
			Model:        "gpt-4o-mini",
			Concurrency:  3,
			HandoffLimit: 5,
			Timeout:      Duration(60 * time.Second),
		},
	}
}

// Load builds the configuration: defaults, then the YAML file at path (if
// path is non-empty), then AISCOPE_* environment variables.
func Load(path string) (Config, error) {
	cfg := defaults()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if port := os.Getenv("AISCOPE_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Port = p
		}
	}
	if v := os.Getenv("AISCOPE_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("AISCOPE_CATALOG_PATH"); v != "" {
		cfg.CatalogPath = v
	}
	if v := os.Getenv("AISCOPE_API_KEY"); v != "" {
		cfg.APIKey = v
	}
	if v := os.Getenv("AISCOPE_LLM_BASE_URL"); v != "" {
		cfg.Enrich.BaseURL = v
	}
	if v := os.Getenv("AISCOPE_LLM_API_KEY"); v != "" {
		cfg.Enrich.APIKey = v
	}
	if v := os.Getenv("AISCOPE_LLM_MODEL"); v != "" {
		cfg.Enrich.Model = v
	}

	return cfg, nil
}

func (c Config) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}
