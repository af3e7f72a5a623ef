package logger

import (
	"context"

	"go.uber.org/zap"
)

// Standard field names for consistent structured logging across mappa.
// Use these constants instead of raw strings to ensure consistency.
const (
	// Components
	FieldComponent = "component"
	FieldBackend   = "backend"

	// Operations
	FieldOperation = "operation"
	FieldPath      = "path"

	// Timing
	FieldDurationMS = "duration_ms"
	FieldTimeout    = "timeout"

	// Errors
	FieldError = "error"

	// Counts
	FieldCount            = "count"
	FieldTopicCount       = "topic_count"
	FieldAssociationCount = "association_count"

	// Topic maps
	FieldMapIRI = "map_iri"
	FieldSource = "source"
	FieldFormat = "format"
)

type contextKey string

const (
	mapIRIKey    contextKey = "logger_map_iri"
	componentKey contextKey = "logger_component"
)

// WithMapIRI adds a topic map IRI to the context for logging
func WithMapIRI(ctx context.Context, iri string) context.Context {
	return context.WithValue(ctx, mapIRIKey, iri)
}

// MapIRIFromContext returns the map IRI set by WithMapIRI
func MapIRIFromContext(ctx context.Context) (string, bool) {
	iri, ok := ctx.Value(mapIRIKey).(string)
	return iri, ok
}

// WithComponent adds a component name to the context for logging
func WithComponent(ctx context.Context, component string) context.Context {
	return context.WithValue(ctx, componentKey, component)
}

// FieldsFromContext extracts logging fields from context.
// Returns key-value pairs suitable for use with Infow/Errorw/etc.
// The map IRI is included even when empty since "" is a valid map identifier.
func FieldsFromContext(ctx context.Context) []interface{} {
	var fields []interface{}

	if iri, ok := MapIRIFromContext(ctx); ok {
		fields = append(fields, FieldMapIRI, iri)
	}
	if component, ok := ctx.Value(componentKey).(string); ok && component != "" {
		fields = append(fields, FieldComponent, component)
	}

	return fields
}

// FromContext returns base with fields extracted from context.
func FromContext(ctx context.Context, base *zap.SugaredLogger) *zap.SugaredLogger {
	base = OrNop(base)
	fields := FieldsFromContext(ctx)
	if len(fields) == 0 {
		return base
	}
	return base.With(fields...)
}

// ComponentLogger returns a named logger for a specific component.
// This is the preferred way to get a logger for dependency injection.
//
// Example:
//
//	orch := bootstrap.New(sys, imp, bootstrap.Options{
//	    Logger: logger.ComponentLogger("bootstrap"),
//	})
func ComponentLogger(name string) *zap.SugaredLogger {
	return Logger.Named(name)
}
