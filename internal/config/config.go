// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

// Package config loads service configuration from the environment, with an
// optional .env file for local development.
package config

import (
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the full runtime configuration of the snowball service.
type Config struct {
	Server     ServerConfig
	NATS       NATSConfig
	Import     ImportConfig
	Sweeper    SweeperConfig
	Classifier ClassifierConfig
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Host string
	Port int
}

// NATSConfig holds the NATS connection settings.
type NATSConfig struct {
	URL           string
	Timeout       time.Duration
	MaxReconnect  int
	ReconnectWait time.Duration
}

// ImportConfig holds the CSV import ceilings. Zero values fall back to the
// platform defaults.
type ImportConfig struct {
	MaxFileBytes int64
	MaxRows      int
}

// SweeperConfig holds the candidate retention sweeper settings.
type SweeperConfig struct {
	Interval time.Duration
}

// ClassifierConfig holds the optional classifier list override file.
type ClassifierConfig struct {
	ListsPath string
}

// Load reads configuration from the environment. A .env file in the
// working directory is merged in when present; real environment variables
// win over file values.
func Load() (Config, error) {
	// Missing .env is the normal production case.
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("snowball")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("host", "0.0.0.0")
	v.SetDefault("port", 8080)
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.timeout", 10*time.Second)
	v.SetDefault("nats.max_reconnect", 5)
	v.SetDefault("nats.reconnect_wait", 2*time.Second)
	v.SetDefault("import.max_file_bytes", int64(0))
	v.SetDefault("import.max_rows", 0)
	v.SetDefault("sweeper.interval", time.Hour)
	v.SetDefault("classifier.lists_path", "")

	cfg := Config{
		Server: ServerConfig{
			Host: v.GetString("host"),
			Port: v.GetInt("port"),
		},
		NATS: NATSConfig{
			URL:           v.GetString("nats.url"),
			Timeout:       v.GetDuration("nats.timeout"),
			MaxReconnect:  v.GetInt("nats.max_reconnect"),
			ReconnectWait: v.GetDuration("nats.reconnect_wait"),
		},
		Import: ImportConfig{
			MaxFileBytes: v.GetInt64("import.max_file_bytes"),
			MaxRows:      v.GetInt("import.max_rows"),
		},
		Sweeper: SweeperConfig{
			Interval: v.GetDuration("sweeper.interval"),
		},
		Classifier: ClassifierConfig{
			ListsPath: v.GetString("classifier.lists_path"),
		},
	}
	return cfg, nil
}
