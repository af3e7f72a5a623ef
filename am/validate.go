package am

import "github.com/teranos/mappa/errors"

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	switch c.System.Backend {
	case BackendMemory:
		// Process-local; database.path is ignored
	case BackendSQLite, BackendBolt:
		if c.Database.Path == "" {
			return errors.Newf("database.path cannot be empty for the %s backend", c.System.Backend)
		}
	default:
		return errors.WithHint(
			errors.Newf("system.backend %q is not supported", c.System.Backend),
			"use one of: memory, sqlite, bolt",
		)
	}

	// map.iri is an opaque key; the empty string is deliberately not rejected

	switch c.Import.Format {
	case "", FormatJTM, FormatYAML:
	default:
		return errors.WithHint(
			errors.Newf("import.format %q is not supported", c.Import.Format),
			"use jtm or yaml, or leave empty to detect from the source extension",
		)
	}

	// Import timeout: 0 = no deadline, negative = invalid
	if c.Import.TimeoutSeconds < 0 {
		return errors.Newf("import.timeout_seconds must be >= 0, got %d", c.Import.TimeoutSeconds)
	}

	return nil
}
