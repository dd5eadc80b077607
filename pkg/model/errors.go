package model

import (
	"errors"
	"fmt"
)

// ErrorCode represents a structured assembly error code.
type ErrorCode string

const (
	ErrConfigValidation   ErrorCode = "CONFIG_VALIDATION"
	ErrUnknownGenomeBuild ErrorCode = "UNKNOWN_GENOME_BUILD"
	ErrMissingSampleField ErrorCode = "MISSING_SAMPLE_FIELD"
	ErrIncompleteWorkItem ErrorCode = "INCOMPLETE_WORK_ITEM"
	ErrStaleSchema        ErrorCode = "STALE_SCHEMA_VERSION"
	ErrNotFound           ErrorCode = "NOT_FOUND"
	ErrConflict           ErrorCode = "CONFLICT"
	ErrInternal           ErrorCode = "INTERNAL_ERROR"
)

// APIError is a structured error returned by the HTTP API and printed by the CLI.
type APIError struct {
	Code    ErrorCode    `json:"code"`
	Message string       `json:"message"`
	Details []FieldError `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// FieldError describes a failure on a specific field and where its value came from.
type FieldError struct {
	Field   string `json:"field,omitempty"`
	Source  string `json:"source,omitempty"`
	Message string `json:"message"`
}

// NewNotFoundError creates a NOT_FOUND APIError.
func NewNotFoundError(resource, id string) *APIError {
	return &APIError{
		Code:    ErrNotFound,
		Message: fmt.Sprintf("%s '%s' not found", resource, id),
	}
}

// ConfigValidationError reports an unrecognized, mistyped or conflicting
// algorithm option. Layer names the configuration layer the key came from.
type ConfigValidationError struct {
	Key    string
	Layer  string
	Reason string
}

func (e *ConfigValidationError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("config validation: unrecognized option %q (layer %s)", e.Key, e.Layer)
	}
	return fmt.Sprintf("config validation: option %q (layer %s): %s", e.Key, e.Layer, e.Reason)
}

// UnknownGenomeBuildError is returned when a build id is not in the catalog.
type UnknownGenomeBuildError struct {
	Build string
}

func (e *UnknownGenomeBuildError) Error() string {
	return fmt.Sprintf("unknown genome build %q", e.Build)
}

// MissingSampleFieldError is returned when a required read-group identity field is empty.
type MissingSampleFieldError struct {
	Field string
	Row   int
}

func (e *MissingSampleFieldError) Error() string {
	return fmt.Sprintf("sample sheet row %d: missing required field %q", e.Row, e.Field)
}

// IncompleteWorkItemError is returned when composition produced a structurally invalid WorkItem.
type IncompleteWorkItemError struct {
	Field  string
	Reason string
}

func (e *IncompleteWorkItemError) Error() string {
	return fmt.Sprintf("incomplete work item: %s: %s", e.Field, e.Reason)
}

// StaleSchemaVersionError is returned for genome resource versions outside the supported range.
type StaleSchemaVersionError struct {
	Build     string
	Version   int
	Supported [2]int
}

func (e *StaleSchemaVersionError) Error() string {
	return fmt.Sprintf("genome %s: resource schema version %d unsupported (want %d..%d)",
		e.Build, e.Version, e.Supported[0], e.Supported[1])
}

// SampleError attaches the sample and lane to an assembly failure.
type SampleError struct {
	Sample string
	Lane   string
	Err    error
}

func (e *SampleError) Error() string {
	return fmt.Sprintf("sample %q lane %q: %v", e.Sample, e.Lane, e.Err)
}

func (e *SampleError) Unwrap() error { return e.Err }

// ToAPIError maps any assembly error onto the structured APIError envelope.
func ToAPIError(err error) *APIError {
	if err == nil {
		return nil
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}

	out := &APIError{Code: ErrInternal, Message: err.Error()}
	var (
		cfgErr     *ConfigValidationError
		buildErr   *UnknownGenomeBuildError
		fieldErr   *MissingSampleFieldError
		incomplete *IncompleteWorkItemError
		stale      *StaleSchemaVersionError
	)
	switch {
	case errors.As(err, &cfgErr):
		out.Code = ErrConfigValidation
		out.Details = []FieldError{{Field: "algorithm." + cfgErr.Key, Source: cfgErr.Layer, Message: cfgErr.Error()}}
	case errors.As(err, &buildErr):
		out.Code = ErrUnknownGenomeBuild
		out.Details = []FieldError{{Field: "genome_build", Source: "catalog", Message: buildErr.Error()}}
	case errors.As(err, &fieldErr):
		out.Code = ErrMissingSampleField
		out.Details = []FieldError{{Field: "rgnames." + fieldErr.Field, Source: "sample sheet", Message: fieldErr.Error()}}
	case errors.As(err, &incomplete):
		out.Code = ErrIncompleteWorkItem
		out.Details = []FieldError{{Field: incomplete.Field, Source: "assembler", Message: incomplete.Error()}}
	case errors.As(err, &stale):
		out.Code = ErrStaleSchema
		out.Details = []FieldError{{Field: "genome_resources.version", Source: "catalog", Message: stale.Error()}}
	}
	return out
}
