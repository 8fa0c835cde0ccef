package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	xdgAppName = "autosched"
	yamlFile   = "config.yaml"
	jsonFile   = "config.json"

	DefaultCalendar    = "Tasks"
	DefaultCron        = "*/30 * * * *"
	DefaultParallelism = 2
)

type Config struct {
	Calendar     string            `json:"calendar" yaml:"calendar"`
	Calendars    map[string]string `json:"calendars,omitempty" yaml:"calendars,omitempty"`
	Database     string            `json:"database,omitempty" yaml:"database,omitempty"`
	LogLevel     string            `json:"log_level,omitempty" yaml:"log_level,omitempty"`
	LogFile      string            `json:"log_file,omitempty" yaml:"log_file,omitempty"`
	Timezone     string            `json:"timezone,omitempty" yaml:"timezone,omitempty"`
	ChunkMinutes int               `json:"chunk_minutes,omitempty" yaml:"chunk_minutes,omitempty"`
	Cron         string            `json:"cron,omitempty" yaml:"cron,omitempty"`
	Users        []string          `json:"users,omitempty" yaml:"users,omitempty"`
	Parallelism  int               `json:"parallelism,omitempty" yaml:"parallelism,omitempty"`
}

// Dir is the application's XDG config directory.
func Dir() (string, error) {
	xdgHome, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(xdgHome, ".config", xdgAppName), nil
}

// GetConfigPath returns config.yaml when it exists, otherwise config.json.
func GetConfigPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(filepath.Join(dir, yamlFile)); err == nil {
		return filepath.Join(dir, yamlFile), nil
	}
	return filepath.Join(dir, jsonFile), nil
}

// Load reads the config at path, or at GetConfigPath when path is empty. A missing
// file yields the defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		p, err := GetConfigPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg := &Config{}
			cfg.applyDefaults()
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if isYAML(path) {
		err = yaml.Unmarshal(data, &cfg)
	} else {
		err = json.Unmarshal(data, &cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode config %s: %w", path, err)
	}
	cfg.applyDefaults()
	if _, err := cfg.Location(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save writes cfg to path, or to GetConfigPath when path is empty, in the format
// the file extension names.
func Save(cfg *Config, path string) error {
	if path == "" {
		p, err := GetConfigPath()
		if err != nil {
			return err
		}
		path = p
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(cfg)
	} else {
		data, err = json.MarshalIndent(cfg, "", "  ")
		data = append(data, '\n')
	}
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Calendar == "" {
		c.Calendar = DefaultCalendar
	}
	if c.Database == "" {
		if dir, err := Dir(); err == nil {
			c.Database = filepath.Join(dir, "autosched.db")
		}
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Cron == "" {
		c.Cron = DefaultCron
	}
	if c.Parallelism <= 0 {
		c.Parallelism = DefaultParallelism
	}
}

// Location is the zone working hours are interpreted in. Empty means the local zone.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// CalendarFor returns the calendar name mapped to userID, falling back to Calendar.
func (c *Config) CalendarFor(userID string) string {
	if name, ok := c.Calendars[userID]; ok && name != "" {
		return name
	}
	return c.Calendar
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}
