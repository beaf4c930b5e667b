package llm

import (
	"fmt"
	"os"
	"time"
)

// DefaultTimeout bounds a single request when none is configured.
const DefaultTimeout = 30 * time.Second

// Config selects and configures one backend.
type Config struct {
	// Provider is one of "openai", "gemini", "anthropic" or "mock".
	Provider string
	Model    string
	APIKey   string
	BaseURL  string
	Timeout  time.Duration
}

var defaultModels = map[string]string{
	"openai":    "gpt-4o-mini",
	"gemini":    "gemini-flash",
	"anthropic": "claude-haiku",
}

var apiKeyEnv = map[string]string{
	"openai":    "OPENAI_API_KEY",
	"gemini":    "GEMINI_API_KEY",
	"anthropic": "ANTHROPIC_API_KEY",
}

func (c Config) model() string {
	if c.Model != "" {
		return c.Model
	}
	return defaultModels[c.Provider]
}

// WithEnv fills an empty API key from the provider's conventional
// environment variable.
func (c Config) WithEnv() Config {
	if c.APIKey == "" {
		if name, ok := apiKeyEnv[c.Provider]; ok {
			c.APIKey = os.Getenv(name)
		}
	}
	return c
}

// Validate checks that the provider is known and has credentials.
func (c Config) Validate() error {
	switch c.Provider {
	case "mock":
		return nil
	case "openai", "gemini", "anthropic":
		if c.APIKey == "" {
			return fmt.Errorf("%s provider needs an api key (set llm.apiKey or %s)", c.Provider, apiKeyEnv[c.Provider])
		}
		return nil
	default:
		return fmt.Errorf("unknown llm provider %q", c.Provider)
	}
}
