package core

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

const (
	defaultPort             = 8080
	defaultDatabaseType     = "sqlite"
	defaultConnectionString = "iconease.db"
	defaultDisplayWidth     = 512
)

type Database struct {
	Type             string `yaml:"type"`
	ConnectionString string `yaml:"connectionString"`
}

type Display struct {
	// Width is the maximum pixel width of rendered display payloads.
	Width int `yaml:"width"`
	// CacheAddr points at an external Redis instance; empty means an
	// embedded cache.
	CacheAddr string `yaml:"cacheAddr"`
}

type ServiceConfig struct {
	Port     int      `yaml:"port"`
	Database Database `yaml:"database"`
	Display  Display  `yaml:"display"`
}

// LoadConfig loads configuration from the specified YAML file and applies
// defaults for omitted fields.
func LoadConfig(configPath string) (*ServiceConfig, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	var config ServiceConfig
	if err = yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
	}

	applyDefaults(&config)
	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", configPath, err)
	}
	return &config, nil
}

func applyDefaults(config *ServiceConfig) {
	if config.Port == 0 {
		config.Port = defaultPort
	}
	if config.Database.Type == "" {
		config.Database.Type = defaultDatabaseType
	}
	if config.Database.ConnectionString == "" {
		config.Database.ConnectionString = defaultConnectionString
	}
	if config.Display.Width == 0 {
		config.Display.Width = defaultDisplayWidth
	}
}

func validate(config *ServiceConfig) error {
	if config.Port < 0 || config.Port > 65535 {
		return fmt.Errorf("port %d out of range", config.Port)
	}
	if config.Database.Type != "sqlite" {
		return fmt.Errorf("unsupported database type: %s", config.Database.Type)
	}
	if config.Display.Width < 0 {
		return fmt.Errorf("display width must not be negative, got %d", config.Display.Width)
	}
	return nil
}
