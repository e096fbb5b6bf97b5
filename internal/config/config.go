// Package config loads provider/getter network settings the way the
// teacher loads repository settings: a DefaultConfig, an optional
// global file under the user's home directory, an optional
// local-directory override that takes precedence, and JSON as the
// on-disk shape.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Config is blobtransfer's network and runtime configuration.
type Config struct {
	Provider ProviderConfig `json:"provider"`
	Getter   GetterConfig   `json:"getter"`
	Color    ColorConfig    `json:"color"`
}

// ProviderConfig holds settings for serving a Database.
type ProviderConfig struct {
	ListenAddr     string `json:"listen_addr"`
	MaxConnections int    `json:"max_connections"`
	MaxStreams     int    `json:"max_streams"`
	EventBacklog   int    `json:"event_backlog"`
	Workers        int    `json:"workers"`
	KeystorePath   string `json:"keystore_path,omitempty"`
	MetricsAddr    string `json:"metrics_addr,omitempty"`
}

// GetterConfig holds settings for fetching from a provider.
type GetterConfig struct {
	SizeLimit int64 `json:"size_limit"`
}

// ColorConfig toggles colored CLI status output.
type ColorConfig struct {
	UI bool `json:"ui"`
}

// DefaultConfig returns a config with sensible defaults (spec.md §4.4:
// 1024 connections, 10 streams per connection).
func DefaultConfig() *Config {
	return &Config{
		Provider: ProviderConfig{
			ListenAddr:     "0.0.0.0:4433",
			MaxConnections: 1024,
			MaxStreams:     10,
			EventBacklog:   8,
			Workers:        8,
			KeystorePath:   defaultKeystorePath(),
		},
		Getter: GetterConfig{
			SizeLimit: 1 << 30,
		},
		Color: ColorConfig{
			UI: true,
		},
	}
}

func defaultKeystorePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".blobtransfer/identity.db"
	}
	return filepath.Join(home, ".blobtransfer", "identity.db")
}

// globalConfigPath returns the path to the user-wide config file.
func globalConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("config: get home directory: %w", err)
	}
	return filepath.Join(home, ".blobtransferconfig"), nil
}

// localConfigPath returns the path to a working-directory override.
func localConfigPath() string {
	return filepath.Join(".blobtransfer", "config")
}

// Load loads configuration from both the global and local config
// files; the local file takes precedence (spec.md §4.4 defaults are
// the base, each file is merged over it as merge describes).
func Load() (*Config, error) {
	cfg := DefaultConfig()

	if globalPath, err := globalConfigPath(); err == nil {
		if data, err := os.ReadFile(globalPath); err == nil {
			var global Config
			if err := json.Unmarshal(data, &global); err == nil {
				merge(cfg, &global)
			}
		}
	}

	if data, err := os.ReadFile(localConfigPath()); err == nil {
		var local Config
		if err := json.Unmarshal(data, &local); err == nil {
			merge(cfg, &local)
		}
	}

	return cfg, nil
}

// SaveGlobal writes cfg to the user-wide config file.
func SaveGlobal(cfg *Config) error {
	path, err := globalConfigPath()
	if err != nil {
		return err
	}
	return writeJSON(path, cfg)
}

// SaveLocal writes cfg to the working-directory config file.
func SaveLocal(cfg *Config) error {
	path := localConfigPath()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("config: create %s: %w", filepath.Dir(path), err)
	}
	return writeJSON(path, cfg)
}

func writeJSON(path string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// GetValue retrieves a configuration value by "section.key".
func GetValue(key string) (string, error) {
	cfg, err := Load()
	if err != nil {
		return "", err
	}

	section, field, err := splitKey(key)
	if err != nil {
		return "", err
	}

	switch section {
	case "provider":
		switch field {
		case "listen_addr":
			return cfg.Provider.ListenAddr, nil
		case "max_connections":
			return fmt.Sprintf("%d", cfg.Provider.MaxConnections), nil
		case "max_streams":
			return fmt.Sprintf("%d", cfg.Provider.MaxStreams), nil
		case "workers":
			return fmt.Sprintf("%d", cfg.Provider.Workers), nil
		case "keystore_path":
			return cfg.Provider.KeystorePath, nil
		case "metrics_addr":
			return cfg.Provider.MetricsAddr, nil
		default:
			return "", fmt.Errorf("config: unknown provider field: %s", field)
		}
	case "getter":
		switch field {
		case "size_limit":
			return fmt.Sprintf("%d", cfg.Getter.SizeLimit), nil
		default:
			return "", fmt.Errorf("config: unknown getter field: %s", field)
		}
	case "color":
		switch field {
		case "ui":
			return fmt.Sprintf("%t", cfg.Color.UI), nil
		default:
			return "", fmt.Errorf("config: unknown color field: %s", field)
		}
	default:
		return "", fmt.Errorf("config: unknown section: %s", section)
	}
}

func splitKey(key string) (section, field string, err error) {
	parts := strings.SplitN(key, ".", 2)
	if len(parts) != 2 {
		return "", "", fmt.Errorf("config: invalid key %q, expected section.field", key)
	}
	return parts[0], parts[1], nil
}

// SetValue sets a configuration value by "section.field" and persists
// it, to the local override when local is true, the global file
// otherwise.
func SetValue(key, value string, local bool) error {
	cfg, err := Load()
	if err != nil {
		return err
	}

	section, field, err := splitKey(key)
	if err != nil {
		return err
	}

	switch section {
	case "provider":
		switch field {
		case "listen_addr":
			cfg.Provider.ListenAddr = value
		case "max_connections":
			if _, err := fmt.Sscanf(value, "%d", &cfg.Provider.MaxConnections); err != nil {
				return fmt.Errorf("config: bad int value %q: %w", value, err)
			}
		case "max_streams":
			if _, err := fmt.Sscanf(value, "%d", &cfg.Provider.MaxStreams); err != nil {
				return fmt.Errorf("config: bad int value %q: %w", value, err)
			}
		case "workers":
			if _, err := fmt.Sscanf(value, "%d", &cfg.Provider.Workers); err != nil {
				return fmt.Errorf("config: bad int value %q: %w", value, err)
			}
		case "keystore_path":
			cfg.Provider.KeystorePath = value
		case "metrics_addr":
			cfg.Provider.MetricsAddr = value
		default:
			return fmt.Errorf("config: unknown provider field: %s", field)
		}
	case "getter":
		switch field {
		case "size_limit":
			if _, err := fmt.Sscanf(value, "%d", &cfg.Getter.SizeLimit); err != nil {
				return fmt.Errorf("config: bad int value %q: %w", value, err)
			}
		default:
			return fmt.Errorf("config: unknown getter field: %s", field)
		}
	case "color":
		switch field {
		case "ui":
			cfg.Color.UI = value == "true"
		default:
			return fmt.Errorf("config: unknown color field: %s", field)
		}
	default:
		return fmt.Errorf("config: unknown section: %s", section)
	}

	if local {
		return SaveLocal(cfg)
	}
	return SaveGlobal(cfg)
}

// merge overlays non-zero fields of src onto dst. Color.UI is the
// exception: it is always taken from src, so a file without a color
// section turns colored output off.
func merge(dst, src *Config) {
	if src.Provider.ListenAddr != "" {
		dst.Provider.ListenAddr = src.Provider.ListenAddr
	}
	if src.Provider.MaxConnections != 0 {
		dst.Provider.MaxConnections = src.Provider.MaxConnections
	}
	if src.Provider.MaxStreams != 0 {
		dst.Provider.MaxStreams = src.Provider.MaxStreams
	}
	if src.Provider.EventBacklog != 0 {
		dst.Provider.EventBacklog = src.Provider.EventBacklog
	}
	if src.Provider.Workers != 0 {
		dst.Provider.Workers = src.Provider.Workers
	}
	if src.Provider.KeystorePath != "" {
		dst.Provider.KeystorePath = src.Provider.KeystorePath
	}
	if src.Provider.MetricsAddr != "" {
		dst.Provider.MetricsAddr = src.Provider.MetricsAddr
	}
	if src.Getter.SizeLimit != 0 {
		dst.Getter.SizeLimit = src.Getter.SizeLimit
	}
	dst.Color.UI = src.Color.UI
}
