// Package config loads the panel server configuration from defaults, an
// optional YAML file and WEBPANEL_* environment variables, in that order.
// Flags parsed by cmd/server are applied last.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "WEBPANEL_"

// ServerConfig holds configuration for the panel server.
type ServerConfig struct {
	Addr      string `yaml:"addr"`       // listen address
	LogLevel  string `yaml:"log_level"`  // debug, info, warn, error
	LogFormat string `yaml:"log_format"` // text, json
	DBPath    string `yaml:"db_path"`    // SQLite path, ":memory:" for testing

	BackendURL     string   `yaml:"backend_url"`     // Flask backend origin, without /api
	ForwardCookies []string `yaml:"forward_cookies"` // browser cookies relayed to the backend; empty relays all but our own
	SecureCookies  bool     `yaml:"secure_cookies"`

	SessionTTL           time.Duration `yaml:"session_ttl"`
	BootstrapTimeout     time.Duration `yaml:"bootstrap_timeout"` // how long a page render waits for bootstrap
	FetchTimeout         time.Duration `yaml:"fetch_timeout"`
	NotificationDuration time.Duration `yaml:"notification_duration"`

	MutationRate  float64 `yaml:"mutation_rate"` // backend POST/DELETE per second, 0 = unlimited
	MutationBurst int     `yaml:"mutation_burst"`
}

// DefaultServerConfig returns sensible defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:                 ":8080",
		LogLevel:             "info",
		LogFormat:            "text",
		DBPath:               "webpanel.db",
		BackendURL:           "http://localhost:5000",
		SessionTTL:           24 * time.Hour,
		BootstrapTimeout:     3 * time.Second,
		FetchTimeout:         15 * time.Second,
		NotificationDuration: 5 * time.Second,
		MutationRate:         5,
		MutationBurst:        10,
	}
}

// Load returns the defaults overlaid with the YAML file at path (skipped when
// path is empty) and then with the process environment.
func Load(path string) (ServerConfig, error) {
	cfg := DefaultServerConfig()
	if path != "" {
		if err := LoadFile(&cfg, path); err != nil {
			return ServerConfig{}, err
		}
	}
	if err := ApplyEnv(&cfg, os.LookupEnv); err != nil {
		return ServerConfig{}, err
	}
	return cfg, cfg.Validate()
}

// LoadFile overlays the YAML file at path onto cfg. Keys absent from the file
// keep their current values.
func LoadFile(cfg *ServerConfig, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overlays WEBPANEL_* variables onto cfg. All malformed variables are
// reported together.
func ApplyEnv(cfg *ServerConfig, lookup func(string) (string, bool)) error {
	var invalid []string
	get := func(name string) (string, bool) {
		v, ok := lookup(EnvPrefix + name)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}

	strs := map[string]*string{
		"ADDR":        &cfg.Addr,
		"LOG_LEVEL":   &cfg.LogLevel,
		"LOG_FORMAT":  &cfg.LogFormat,
		"DB_PATH":     &cfg.DBPath,
		"BACKEND_URL": &cfg.BackendURL,
	}
	for name, dst := range strs {
		if v, ok := get(name); ok {
			*dst = v
		}
	}

	durations := map[string]*time.Duration{
		"SESSION_TTL":           &cfg.SessionTTL,
		"BOOTSTRAP_TIMEOUT":     &cfg.BootstrapTimeout,
		"FETCH_TIMEOUT":         &cfg.FetchTimeout,
		"NOTIFICATION_DURATION": &cfg.NotificationDuration,
	}
	for name, dst := range durations {
		if v, ok := get(name); ok {
			d, err := time.ParseDuration(v)
			if err != nil || d < 0 {
				invalid = append(invalid, EnvPrefix+name)
				continue
			}
			*dst = d
		}
	}

	if v, ok := get("SECURE_COOKIES"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			invalid = append(invalid, EnvPrefix+"SECURE_COOKIES")
		} else {
			cfg.SecureCookies = b
		}
	}
	if v, ok := get("MUTATION_RATE"); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f < 0 {
			invalid = append(invalid, EnvPrefix+"MUTATION_RATE")
		} else {
			cfg.MutationRate = f
		}
	}
	if v, ok := get("MUTATION_BURST"); ok {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			invalid = append(invalid, EnvPrefix+"MUTATION_BURST")
		} else {
			cfg.MutationBurst = n
		}
	}
	if v, ok := get("FORWARD_COOKIES"); ok {
		cfg.ForwardCookies = SplitList(v)
	}

	if len(invalid) > 0 {
		return fmt.Errorf("invalid environment values: %s", strings.Join(invalid, ", "))
	}
	return nil
}

// Validate checks values that would otherwise fail late.
func (c ServerConfig) Validate() error {
	var errs []error
	if c.Addr == "" {
		errs = append(errs, errors.New("addr is required"))
	}
	if c.BackendURL == "" {
		errs = append(errs, errors.New("backend_url is required"))
	}
	if c.SessionTTL <= 0 {
		errs = append(errs, errors.New("session_ttl must be positive"))
	}
	if c.MutationRate > 0 && c.MutationBurst <= 0 {
		errs = append(errs, errors.New("mutation_burst must be positive when mutation_rate is set"))
	}
	return errors.Join(errs...)
}

// SplitList splits a comma-separated list, dropping blanks.
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
