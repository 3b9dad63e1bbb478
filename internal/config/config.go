// Package config loads the gateway configuration: a JSON settings file for
// the daemon itself and a YAML file describing the routing table.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

const ConfigFileName = "radgate.json"

type Config struct {
	// DataRoot is the directory holding per-route study folders.
	DataRoot string `json:"data_root"`
	Database string `json:"database"`

	// RoutesFile is the YAML routing table, relative to the config dir
	// unless absolute.
	RoutesFile string `json:"routes_file,omitempty"`

	// Retention for archived studies, history files and event logs.
	// 0 means use default (30 days).
	RetentionDays int `json:"retention_days,omitempty"`

	// DICOM listener identity.
	AETitle    string `json:"ae_title,omitempty"`
	ListenPort int    `json:"listen_port,omitempty"`

	// BrokerName identifies the de-identification broker whose crosswalk
	// entries map original UIDs to hashed ones.
	BrokerName string `json:"broker_name,omitempty"`
}

func DefaultConfig() *Config {
	return &Config{
		DataRoot:   "data",
		Database:   "radgate.db",
		RoutesFile: "routes.yaml",
	}
}

func ConfigPath(configDir string) string {
	return filepath.Join(configDir, ConfigFileName)
}

func Load(configDir string) (*Config, error) {
	configPath := ConfigPath(configDir)

	data, err := os.ReadFile(configPath) // #nosec G304 - controlled path from config
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) Save(configDir string) error {
	configPath := ConfigPath(configDir)

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	return nil
}

// DataRootPath resolves DataRoot against the config dir.
func (c *Config) DataRootPath(configDir string) string {
	if filepath.IsAbs(c.DataRoot) {
		return c.DataRoot
	}
	return filepath.Join(configDir, c.DataRoot)
}

func (c *Config) DatabasePath(configDir string) string {
	if filepath.IsAbs(c.Database) {
		return c.Database
	}
	return filepath.Join(configDir, c.Database)
}

func (c *Config) RoutesPath(configDir string) string {
	rf := c.RoutesFile
	if rf == "" {
		rf = "routes.yaml"
	}
	if filepath.IsAbs(rf) {
		return rf
	}
	return filepath.Join(configDir, rf)
}

// DefaultRetentionDays is the default retention period for archived studies.
const DefaultRetentionDays = 30

// GetRetentionDays returns the configured retention days, or the default if not set.
func (c *Config) GetRetentionDays() int {
	if c.RetentionDays <= 0 {
		return DefaultRetentionDays
	}
	return c.RetentionDays
}

// GetAETitle returns the listener AE title, defaulting to "RADGATE".
func (c *Config) GetAETitle() string {
	if c.AETitle != "" {
		return c.AETitle
	}
	return "RADGATE"
}

// GetListenPort returns the DICOM listen port, defaulting to 11112.
func (c *Config) GetListenPort() int {
	if c.ListenPort > 0 {
		return c.ListenPort
	}
	return 11112
}
