// Package config exposes strongly typed application configuration structs loaded from YAML.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// App captures process-wide runtime settings such as name, environment, metrics, and logging levels.
type App struct {
	Name        string `yaml:"name"`
	Env         string `yaml:"env"`
	MetricsAddr string `yaml:"metrics_addr"`
	LogLevel    string `yaml:"log_level"`
}

// Server describes where the REP socket binds.
type Server struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Artifacts points at the trained model and scaler files loaded at startup.
type Artifacts struct {
	Model  string `yaml:"model"`
	Scaler string `yaml:"scaler"`
}

// Decision carries the probability threshold for the BUY/SELL/HOLD band.
type Decision struct {
	Threshold float64 `yaml:"threshold"`
}

// Config collects every configuration leaf for easy marshaling from YAML.
type Config struct {
	App       App       `yaml:"app"`
	Server    Server    `yaml:"server"`
	Artifacts Artifacts `yaml:"artifacts"`
	Decision  Decision  `yaml:"decision"`
}

// Default returns the configuration used when no file is supplied.
func Default() *Config {
	return &Config{
		App:      App{Name: "signal-server", Env: "dev", LogLevel: "info"},
		Server:   Server{Host: "127.0.0.1", Port: 5555},
		Decision: Decision{Threshold: 0.56},
	}
}

// Load reads a YAML file from disk and hydrates a Config struct on top of the defaults.
func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	config := Default()
	if err := yaml.NewDecoder(file).Decode(config); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	return config, nil
}

// Save persists a Config struct to disk as YAML.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
