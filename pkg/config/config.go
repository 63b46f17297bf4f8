// Package config loads remedy's runtime configuration: defaults, then a
// remedy.yaml file, then REMEDY_* environment variables (which a .env
// file may supply).
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// FileName is the config file searched for from the working directory up.
const FileName = "remedy.yaml"

// MemoryStore as StorePath keeps all state in process.
const MemoryStore = ":memory:"

// Duration is a time.Duration written as "5s", "2m" in YAML.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(n *yaml.Node) error {
	var s string
	if err := n.Decode(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("duration %q: %w", s, err)
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}

// RedactRule scrubs matches of Pattern from failure notes.
type RedactRule struct {
	Pattern string `yaml:"pattern"`
	Replace string `yaml:"replace,omitempty"`
}

// Config is remedy's runtime configuration.
type Config struct {
	StorePath         string       `yaml:"store_path,omitempty"`
	LogLevel          string       `yaml:"log_level,omitempty"`
	LogJSON           bool         `yaml:"log_json,omitempty"`
	CatalogPath       string       `yaml:"catalog,omitempty"`
	EntryStep         string       `yaml:"entry_step,omitempty"`
	ValidationTimeout Duration     `yaml:"validation_timeout,omitempty"`
	ExportedBy        string       `yaml:"exported_by,omitempty"`
	MetricsRangeDays  int          `yaml:"metrics_range_days,omitempty"`
	TracePath         string       `yaml:"trace,omitempty"`
	RedactEnv         []string     `yaml:"redact_env,omitempty"`
	RedactPatterns    []RedactRule `yaml:"redact_patterns,omitempty"`

	// Source is the file the config was read from, if any.
	Source string `yaml:"-"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		StorePath:        defaultStorePath(),
		LogLevel:         "warn",
		ExportedBy:       "remedy",
		MetricsRangeDays: 30,
	}
}

func defaultStorePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".remedy", "state.db")
	}
	return filepath.Join(home, ".remedy", "state.db")
}

// Load builds the configuration. An explicit path must exist; with an empty
// path remedy.yaml is searched for from the working directory up, and its
// absence is not an error. A .env file in the working directory is loaded
// first; variables already set in the environment win over it.
func Load(path string) (*Config, error) {
	if err := LoadDotEnv(".env"); err != nil {
		return nil, err
	}
	if path == "" {
		found, err := Discover(".")
		if err != nil {
			return nil, err
		}
		path = found
	}

	cfg := Default()
	if path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDotEnv loads path into the environment if it exists.
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// Discover walks up from start looking for remedy.yaml. It returns "" when
// there is none.
func Discover(start string) (string, error) {
	dir, err := filepath.Abs(start)
	if err != nil {
		return "", err
	}
	for {
		candidate := filepath.Join(dir, FileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", nil
		}
		dir = parent
	}
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	c.Source = path
	if c.CatalogPath != "" && !filepath.IsAbs(c.CatalogPath) {
		c.CatalogPath = filepath.Join(filepath.Dir(path), c.CatalogPath)
	}
	return nil
}

// applyEnv overlays REMEDY_* variables.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	str("REMEDY_STORE", &c.StorePath)
	str("REMEDY_LOG_LEVEL", &c.LogLevel)
	str("REMEDY_CATALOG", &c.CatalogPath)
	str("REMEDY_ENTRY_STEP", &c.EntryStep)
	str("REMEDY_EXPORTED_BY", &c.ExportedBy)
	str("REMEDY_TRACE", &c.TracePath)

	if v, ok := lookup("REMEDY_REDACT_ENV"); ok && v != "" {
		c.RedactEnv = c.RedactEnv[:0]
		for _, name := range strings.Split(v, ",") {
			if name = strings.TrimSpace(name); name != "" {
				c.RedactEnv = append(c.RedactEnv, name)
			}
		}
	}
	if v, ok := lookup("REMEDY_LOG_JSON"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("REMEDY_LOG_JSON: %w", err)
		}
		c.LogJSON = b
	}
	if v, ok := lookup("REMEDY_VALIDATION_TIMEOUT"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("REMEDY_VALIDATION_TIMEOUT: %w", err)
		}
		c.ValidationTimeout.Duration = d
	}
	if v, ok := lookup("REMEDY_METRICS_RANGE_DAYS"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("REMEDY_METRICS_RANGE_DAYS: %w", err)
		}
		c.MetricsRangeDays = n
	}
	return nil
}

// Validate reports settings that cannot work.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.StorePath) == "" {
		errs = append(errs, errors.New("store_path is required"))
	}
	if c.ValidationTimeout.Duration < 0 {
		errs = append(errs, errors.New("validation_timeout must not be negative"))
	}
	if c.MetricsRangeDays < 0 {
		errs = append(errs, errors.New("metrics_range_days must not be negative"))
	}
	for i, r := range c.RedactPatterns {
		if _, err := regexp.Compile(r.Pattern); err != nil {
			errs = append(errs, fmt.Errorf("redact_patterns[%d]: %w", i, err))
		}
	}
	return errors.Join(errs...)
}
