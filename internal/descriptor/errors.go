package descriptor

import (
	"errors"
	"fmt"
)

// Validation failures. Resolution is all-or-nothing: any of these aborts the
// whole call. Use errors.Is to tell them apart; every error returned by
// Resolve is a *ValidationError wrapping exactly one of them.
var (
	ErrUnknownEndpoint     = errors.New("unknown endpoint")
	ErrInvalidRange        = errors.New("invalid range")
	ErrUnsupportedWireType = errors.New("unsupported wire type")
	ErrConflictingProperty = errors.New("conflicting property")
	ErrInvalidAccessMode   = errors.New("invalid access mode")
	ErrUnknownAttribute    = errors.New("unknown cluster or attribute")
	ErrInvalidReporting    = errors.New("invalid reporting policy")
	ErrInvalidEndpointMap  = errors.New("invalid endpoint map")
	ErrInvalidFeature      = errors.New("invalid feature")
)

// ValidationError locates a validation failure within a descriptor.
type ValidationError struct {
	Index    int    // position in the feature list, -1 for endpoint map errors
	Kind     Kind   // feature kind, empty for endpoint map errors
	Endpoint string // endpoint name being resolved, if any
	Err      error
}

func (e *ValidationError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("descriptor: %v", e.Err)
	}
	if e.Endpoint != "" {
		return fmt.Sprintf("descriptor: feature %d (%s) endpoint %q: %v", e.Index, e.Kind, e.Endpoint, e.Err)
	}
	return fmt.Sprintf("descriptor: feature %d (%s): %v", e.Index, e.Kind, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

var reasons = []struct {
	err    error
	reason string
}{
	{ErrUnknownEndpoint, "unknown_endpoint"},
	{ErrInvalidRange, "invalid_range"},
	{ErrUnsupportedWireType, "unsupported_wire_type"},
	{ErrConflictingProperty, "conflicting_property"},
	{ErrInvalidAccessMode, "invalid_access_mode"},
	{ErrUnknownAttribute, "unknown_attribute"},
	{ErrInvalidReporting, "invalid_reporting"},
	{ErrInvalidEndpointMap, "invalid_endpoint_map"},
	{ErrInvalidFeature, "invalid_feature"},
}

// Reason returns a short snake_case label for a validation error, suitable
// for metric labels and API responses. Errors that are not validation
// failures yield "other".
func Reason(err error) string {
	for _, r := range reasons {
		if errors.Is(err, r.err) {
			return r.reason
		}
	}
	return "other"
}
