package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	"grid-hedge-bot-go/internal/models"
)

// envVarPattern matches ${VAR} and ${VAR:default} references in the raw
// config text. The default applies when the variable is unset or empty.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z0-9_]+)(?::([^}]*))?\}`)

// Load reads the YAML configuration from path, expands environment variable
// references and validates the result.
func Load(path string) (*models.Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	expanded := expandEnv(raw)

	cfg := &models.Config{}
	if err := yaml.Unmarshal(expanded, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	applyDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func expandEnv(raw []byte) []byte {
	return envVarPattern.ReplaceAllFunc(raw, func(match []byte) []byte {
		groups := envVarPattern.FindSubmatch(match)
		if v := os.Getenv(string(groups[1])); v != "" {
			return []byte(v)
		}
		return groups[2] // default, possibly empty
	})
}

func applyDefaults(cfg *models.Config) {
	if cfg.System.DataDir == "" {
		cfg.System.DataDir = "./data"
	}
	if cfg.System.Storage == "" {
		cfg.System.Storage = "file"
	}
	if cfg.System.UpdateInterval <= 0 {
		cfg.System.UpdateInterval = 2 * time.Second
	}
	if cfg.System.StatusInterval <= 0 {
		cfg.System.StatusInterval = 30 * time.Second
	}
	if cfg.System.Log.Level == "" {
		cfg.System.Log.Level = "info"
	}
	if cfg.System.Log.Output == "" {
		cfg.System.Log.Output = "console"
	}
	for i := range cfg.Strategies {
		if cfg.Strategies[i].OrderType == "" {
			cfg.Strategies[i].OrderType = "limit"
		}
	}
}

func validate(cfg *models.Config) error {
	if len(cfg.Venues) == 0 {
		return fmt.Errorf("config: at least one venue is required")
	}
	for _, v := range cfg.Venues {
		if v.Name == "" {
			return fmt.Errorf("config: venue name is required")
		}
	}
	seen := make(map[string]bool, len(cfg.Strategies))
	for i := range cfg.Strategies {
		s := &cfg.Strategies[i]
		if err := s.Validate(); err != nil {
			return fmt.Errorf("config: %w", err)
		}
		if seen[s.ID] {
			return fmt.Errorf("config: duplicate strategy id %q", s.ID)
		}
		seen[s.ID] = true
	}
	return nil
}
