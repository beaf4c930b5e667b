package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
		// RateLimit caps collaborator-backed requests per second and user; zero disables it.
		RateLimit float64 `yaml:"rateLimit"`
		RateBurst int     `yaml:"rateBurst"`
	} `yaml:"server"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	LLM struct {
		Provider          string `yaml:"provider"`
		Model             string `yaml:"model"`
		APIKey            string `yaml:"apiKey"`
		BaseURL           string `yaml:"baseURL"`
		Timeout           string `yaml:"timeout"`
		SuggestionTimeout string `yaml:"suggestionTimeout"`
	} `yaml:"llm"`
	Log struct {
		Mode string `yaml:"mode"`
		File string `yaml:"file"`
	} `yaml:"log"`
	Study struct {
		SessionSize int `yaml:"sessionSize"`
	} `yaml:"study"`
}

// Load reads YAML config from path.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
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
