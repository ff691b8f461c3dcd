// Package config loads the tsim HCL configuration file: the facts
// directory, evaluation defaults, history settings, and per-router
// overrides. CLI flags take precedence over the file, the file over the
// built-in defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/hcl/v2/hclsimple"

	"grimm.is/tsim/internal/brand"
	"grimm.is/tsim/internal/facts"
)

// CurrentSchemaVersion is the config schema this build reads.
const CurrentSchemaVersion = 1

// ErrNotFound marks a config path that does not exist. Callers loading the
// default location fall back to Default on it; an explicit --config path
// that is missing stays an error.
var ErrNotFound = errors.New("config file not found")

// Config is the decoded tsim.hcl.
type Config struct {
	SchemaVersion int    `hcl:"schema_version,optional"`
	FactsDir      string `hcl:"facts_dir,optional"`
	DefaultPolicy string `hcl:"default_policy,optional"`
	ResolveNames  *bool  `hcl:"resolve_names,optional"`

	Log     *LogConfig     `hcl:"log,block"`
	History *HistoryConfig `hcl:"history,block"`
	Routers []RouterConfig `hcl:"router,block"`
}

// LogConfig selects log level and output format.
type LogConfig struct {
	Level  string `hcl:"level,optional"`
	Format string `hcl:"format,optional"`
}

// HistoryConfig controls the query history store.
type HistoryConfig struct {
	Enabled *bool  `hcl:"enabled,optional"`
	Path    string `hcl:"path,optional"`
	Limit   int    `hcl:"limit,optional"`
}

// RouterConfig pins one router to a facts file outside the facts dir.
type RouterConfig struct {
	Name  string `hcl:"name,label"`
	Facts string `hcl:"facts,optional"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		SchemaVersion: CurrentSchemaVersion,
		FactsDir:      brand.GetFactsDir(),
		DefaultPolicy: "ACCEPT",
		Log:           &LogConfig{Level: "info", Format: "console"},
		History: &HistoryConfig{
			Path:  filepath.Join(brand.GetStateDir(), "history.db"),
			Limit: 1000,
		},
	}
}

// Load reads and validates one config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	return Parse(path, data)
}

// Parse decodes config bytes. The filename only labels diagnostics.
func Parse(filename string, data []byte) (*Config, error) {
	cfg := &Config{}
	if err := hclsimple.Decode(filename, data, nil, cfg); err != nil {
		return nil, fmt.Errorf("decode config %s: %w", filename, err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", filename, err)
	}
	return cfg, nil
}

// LoadOrDefault loads path, or returns Default when the file at the
// standard location is simply absent. explicit marks a user-supplied path,
// which must exist.
func LoadOrDefault(path string, explicit bool) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, ErrNotFound) && !explicit {
		return Default(), nil
	}
	return cfg, err
}

func (c *Config) applyDefaults() {
	d := Default()
	if c.SchemaVersion == 0 {
		c.SchemaVersion = d.SchemaVersion
	}
	if c.FactsDir == "" {
		c.FactsDir = d.FactsDir
	}
	if c.DefaultPolicy == "" {
		c.DefaultPolicy = d.DefaultPolicy
	}
	if c.Log == nil {
		c.Log = d.Log
	} else {
		if c.Log.Level == "" {
			c.Log.Level = d.Log.Level
		}
		if c.Log.Format == "" {
			c.Log.Format = d.Log.Format
		}
	}
	if c.History == nil {
		c.History = d.History
	} else {
		if c.History.Path == "" {
			c.History.Path = d.History.Path
		}
		if c.History.Limit == 0 {
			c.History.Limit = d.History.Limit
		}
	}
}

// Validate rejects values the rest of the program cannot act on.
func (c *Config) Validate() error {
	if c.SchemaVersion > CurrentSchemaVersion {
		return fmt.Errorf("schema_version %d not supported", c.SchemaVersion)
	}
	switch strings.ToUpper(c.DefaultPolicy) {
	case "ACCEPT", "DROP", "REJECT":
	default:
		return fmt.Errorf("default_policy %q must be ACCEPT, DROP, or REJECT", c.DefaultPolicy)
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log level %q must be debug, info, warn, or error", c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "console", "json":
	default:
		return fmt.Errorf("log format %q must be console or json", c.Log.Format)
	}
	if c.History.Limit < 0 {
		return fmt.Errorf("history limit %d must not be negative", c.History.Limit)
	}
	seen := map[string]bool{}
	for _, r := range c.Routers {
		if r.Name == "" {
			return errors.New("router block needs a name label")
		}
		if seen[r.Name] {
			return fmt.Errorf("router %q declared twice", r.Name)
		}
		seen[r.Name] = true
	}
	return nil
}

// FactsPath resolves the facts file for one router: a router block's facts
// attribute wins, otherwise NAME.json inside the facts dir.
func (c *Config) FactsPath(router string) string {
	for _, r := range c.Routers {
		if r.Name == router && r.Facts != "" {
			return r.Facts
		}
	}
	return facts.Path(c.FactsDir, router)
}

// ResolveHostnames reports whether query arguments may be resolved via
// DNS. On by default.
func (c *Config) ResolveHostnames() bool {
	return c.ResolveNames == nil || *c.ResolveNames
}

// HistoryEnabled reports whether queries are recorded. On by default when
// a history path is configured.
func (c *Config) HistoryEnabled() bool {
	if c.History == nil || c.History.Path == "" {
		return false
	}
	return c.History.Enabled == nil || *c.History.Enabled
}
