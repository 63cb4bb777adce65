// Package config loads the runtime configuration from the environment and
// optional .env files.
package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"listbind/internal/list"
	"listbind/pkg/logger"
)

// Environment variables
const (
	EnvSiteURL       = "LISTBIND_SITE_URL"
	EnvLogLevel      = "LISTBIND_LOG_LEVEL"
	EnvEnvironment   = "LISTBIND_ENV"
	EnvDrainPartials = "LISTBIND_DRAIN_PARTIALS"
)

// Config is the process configuration.
type Config struct {
	// DefaultSiteURL is used for lists created without a site.
	DefaultSiteURL string
	LogLevel       string
	LogDevelopment bool
	// AutoDrainPartials makes every list load partial lookup entities in
	// full as soon as they are referenced.
	AutoDrainPartials bool
}

// Load reads the given .env files (".env" when none are given; missing files
// are ignored) and then the environment. Variables already set in the
// environment win over file values.
func Load(files ...string) (Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, err
		}
	}

	env := getEnv(EnvEnvironment, "production")
	return Config{
		DefaultSiteURL:    strings.TrimSuffix(getEnv(EnvSiteURL, ""), "/"),
		LogLevel:          getEnv(EnvLogLevel, "info"),
		LogDevelopment:    env == "development" || env == "dev",
		AutoDrainPartials: getEnvBool(EnvDrainPartials, false),
	}, nil
}

// Logger builds the logger described by the configuration.
func (c Config) Logger() (*logger.Logger, error) {
	return logger.New(logger.Config{
		Level:       c.LogLevel,
		Development: c.LogDevelopment,
	})
}

// RegistryConfig returns the list registry settings.
func (c Config) RegistryConfig() list.RegistryConfig {
	cfg := list.DefaultRegistryConfig()
	cfg.DefaultSiteURL = c.DefaultSiteURL
	cfg.AutoDrainPartials = c.AutoDrainPartials
	return cfg
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
