package model

import (
	"fmt"
)

// SchemaError reports a required field that is absent or malformed.
type SchemaError struct {
	Source string
	Field  string
	Reason string
}

func (e *SchemaError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("schema: %s: missing field %q", e.Source, e.Field)
	}
	return fmt.Sprintf("schema: %s: field %q: %s", e.Source, e.Field, e.Reason)
}

// GeometryError reports a nil, empty or invalid geometry.
type GeometryError struct {
	ID     string
	Reason string
}

func (e *GeometryError) Error() string {
	if e.ID == "" {
		return "geometry: " + e.Reason
	}
	return fmt.Sprintf("geometry: record %s: %s", e.ID, e.Reason)
}

// ConfigurationError reports settings that cannot produce a correct result,
// such as coordinate reference systems that cannot be reconciled.
type ConfigurationError struct {
	Setting string
	Reason  string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration: %s: %s", e.Setting, e.Reason)
}

// ExternalServiceError reports a failure from a remote collaborator after
// retries were exhausted or the failure was not retryable.
type ExternalServiceError struct {
	Service    string
	StatusCode int
	Err        error
}

func (e *ExternalServiceError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: status %d: %v", e.Service, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Service, e.Err)
}

func (e *ExternalServiceError) Unwrap() error {
	return e.Err
}
