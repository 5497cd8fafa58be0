// Package config reads the command line tool's settings from the
// environment and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

var ErrMissingCredentials = errors.New("FUT_EMAIL, FUT_PASSWORD and FUT_SECRET must be set")

// Config holds everything the CLI needs to sign in.
type Config struct {
	Email    string `env:"FUT_EMAIL"`
	Password string `env:"FUT_PASSWORD"`
	Secret   string `env:"FUT_SECRET"`
	// Code is offered when the accounts site asks to verify the device.
	Code     string `env:"FUT_CODE"`
	Platform string `env:"FUT_PLATFORM" envDefault:"ps4"`

	CookieFile    string        `env:"FUT_COOKIE_FILE" envDefault:"cookies.json"`
	ProxyFile     string        `env:"FUT_PROXY_FILE"`
	MinDelay      time.Duration `env:"FUT_MIN_DELAY" envDefault:"0s"`
	LoginAttempts int           `env:"FUT_LOGIN_ATTEMPTS" envDefault:"3"`

	Log LogConfig `envPrefix:"LOG_"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level  string `env:"LEVEL" envDefault:"info"`
	Format string `env:"FORMAT" envDefault:"console"`
	// File enables a rotating JSON log next to the console output.
	File       string `env:"FILE"`
	MaxSize    int    `env:"MAX_SIZE" envDefault:"10"`
	MaxBackups int    `env:"MAX_BACKUPS" envDefault:"3"`
	MaxAge     int    `env:"MAX_AGE" envDefault:"7"`
}

// Load reads the given .env files, or .env when none are given, and parses
// the environment. Missing .env files are not an error.
func Load(files ...string) (Config, error) {
	_ = godotenv.Load(files...)

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.LoginAttempts < 1 {
		cfg.LoginAttempts = 1
	}
	return cfg, nil
}

// Validate checks that the account credentials are present.
func (c Config) Validate() error {
	if c.Email == "" || c.Password == "" || c.Secret == "" {
		return ErrMissingCredentials
	}
	return nil
}
