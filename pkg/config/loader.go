package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// DefaultEnvFile is read by Load when no other file is given
const DefaultEnvFile = ".env"

// Load reads envFile (if it exists) into the process environment and
// populates a Config from it. Variables already present in the environment
// win over values from the file.
func Load(envFile string) (*Config, error) {
	if envFile == "" {
		envFile = DefaultEnvFile
	}

	// A missing .env is fine, the environment might be set otherwise
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	cfg.Message.To = CleanList(cfg.Message.To)
	cfg.Message.Attachments = CleanList(cfg.Message.Attachments)

	return cfg, nil
}

// CleanList trims every entry and drops the empty ones
func CleanList(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
