package am

import (
	"github.com/spf13/viper"
)

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	// Database defaults
	v.SetDefault("database.path", "mappa.db")

	// Topic Map System defaults
	v.SetDefault("system.backend", BackendSQLite)

	// Map defaults
	v.SetDefault("map.iri", DefaultMapIRI)

	// Import defaults
	v.SetDefault("import.source", "")
	v.SetDefault("import.format", "")
	v.SetDefault("import.base_iri", "")
	v.SetDefault("import.timeout_seconds", DefaultImportTimeoutSeconds)

	// Logging defaults
	v.SetDefault("log.json", false)
}

// BindEnvVars explicitly binds configuration keys to their environment
// variables. AutomaticEnv alone does not reach keys during Unmarshal.
func BindEnvVars(v *viper.Viper) {
	v.BindEnv("database.path", "MAPPA_DATABASE_PATH")
	v.BindEnv("system.backend", "MAPPA_SYSTEM_BACKEND")
	v.BindEnv("map.iri", "MAPPA_MAP_IRI")
	v.BindEnv("import.source", "MAPPA_IMPORT_SOURCE")
	v.BindEnv("import.format", "MAPPA_IMPORT_FORMAT")
	v.BindEnv("import.base_iri", "MAPPA_IMPORT_BASE_IRI")
	v.BindEnv("import.timeout_seconds", "MAPPA_IMPORT_TIMEOUT_SECONDS")
	v.BindEnv("log.json", "MAPPA_LOG_JSON")
}
