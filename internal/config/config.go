// Package config loads application configuration from the environment.
//
// Configuration comes exclusively from env vars (twelve-factor style). For
// local development, a .env file in the working directory is loaded first if
// present — production deployments set real env vars and ship no .env file.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

// Config holds every tunable of the server. Parsed once in main and passed
// down; nothing reads os.Getenv after startup.
type Config struct {
	Port   int    `env:"PORT" envDefault:"8080"`
	DBPath string `env:"DB_PATH" envDefault:"data/snipshare.db"`

	// BaseURL is the public origin of this server, used to build OAuth
	// callback URLs. No trailing slash.
	BaseURL string `env:"BASE_URL" envDefault:"http://localhost:8080"`

	// SessionSecret signs session tokens. Must be long and random:
	//   SESSION_SECRET=$(openssl rand -hex 32)
	SessionSecret string `env:"SESSION_SECRET,required"`

	// SessionMaxAge bounds token validity from its issued-at timestamp.
	// A short rolling window — users re-authenticate at least daily.
	SessionMaxAge time.Duration `env:"SESSION_MAX_AGE" envDefault:"24h"`

	GitHubClientID     string `env:"GITHUB_CLIENT_ID"`
	GitHubClientSecret string `env:"GITHUB_CLIENT_SECRET"`
	GoogleClientID     string `env:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret string `env:"GOOGLE_CLIENT_SECRET"`

	CORSOrigins []string `env:"CORS_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000"`

	// Debug enables verbose logging of authentication failures. The API
	// response stays generic either way; only the server log gets detail.
	Debug bool `env:"DEBUG"`
}

// Load reads the .env file (if one exists) and parses the environment into
// a Config. Returns an error if a required variable is missing.
func Load() (*Config, error) {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return nil, fmt.Errorf("config: loading .env: %w", err)
		}
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: parsing environment: %w", err)
	}

	return cfg, nil
}
