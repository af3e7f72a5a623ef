// Package am holds mappa core configuration ("I am").
//
// Configuration is read with viper from TOML files and MAPPA_* environment
// variables. See load.go for the precedence cascade.
package am

import "time"

// Config represents the core mappa configuration
type Config struct {
	Database DatabaseConfig `mapstructure:"database" toml:"database" json:"database" yaml:"database"`
	System   SystemConfig   `mapstructure:"system" toml:"system" json:"system" yaml:"system"`
	Map      MapConfig      `mapstructure:"map" toml:"map" json:"map" yaml:"map"`
	Import   ImportConfig   `mapstructure:"import" toml:"import" json:"import" yaml:"import"`
	Log      LogConfig      `mapstructure:"log" toml:"log" json:"log" yaml:"log"`
}

// DatabaseConfig configures the on-disk store used by the sqlite and bolt backends
type DatabaseConfig struct {
	Path string `mapstructure:"path" toml:"path" json:"path" yaml:"path"`
}

// SystemConfig selects the Topic Map System backend
type SystemConfig struct {
	// Backend is one of memory, sqlite, bolt
	Backend string `mapstructure:"backend" toml:"backend" json:"backend" yaml:"backend"`
}

// MapConfig names the topic map the bootstrap command ensures
type MapConfig struct {
	// IRI is treated as an opaque key. The empty string is passed through.
	IRI string `mapstructure:"iri" toml:"iri" json:"iri" yaml:"iri"`
}

// ImportConfig configures the dataset importer that populates a new map
type ImportConfig struct {
	// Source is the dataset file. Empty selects the embedded default dataset.
	Source string `mapstructure:"source" toml:"source" json:"source" yaml:"source"`

	// Format is jtm or yaml. Empty detects the format from the source extension.
	Format string `mapstructure:"format" toml:"format" json:"format" yaml:"format"`

	// BaseIRI resolves relative IRIs. Empty uses the source location.
	BaseIRI string `mapstructure:"base_iri" toml:"base_iri" json:"base_iri" yaml:"base_iri"`

	// TimeoutSeconds bounds the import alone. 0 = no import deadline.
	TimeoutSeconds int `mapstructure:"timeout_seconds" toml:"timeout_seconds" json:"timeout_seconds" yaml:"timeout_seconds"`
}

// Timeout returns the import deadline as a duration. Zero means no deadline.
func (c ImportConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// LogConfig configures CLI logging
type LogConfig struct {
	JSON bool `mapstructure:"json" toml:"json" json:"json" yaml:"json"`
}

// Backend names understood by Validate
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendBolt   = "bolt"
)

// Dataset formats understood by Validate
const (
	FormatJTM  = "jtm"
	FormatYAML = "yaml"
)

// DefaultMapIRI is the topic map the bootstrap command ensures when none is configured
const DefaultMapIRI = "http://www.example.org/map"

// DefaultImportTimeoutSeconds bounds a single dataset import
const DefaultImportTimeoutSeconds = 300

// File system constants
const (
	DefaultDirPermissions  = 0755 // Standard directory permissions (rwxr-xr-x)
	DefaultFilePermissions = 0644 // Standard file permissions (rw-r--r--)
)
