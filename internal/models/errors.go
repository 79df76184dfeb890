package models

import "errors"

// ErrNotFound is returned when an operation references an unknown rule id.
var ErrNotFound = errors.New("automation not found")

// ValidationError describes a structurally invalid rule definition. It is
// returned before any state change, so a rejected rule is never partially
// applied.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid automation: " + e.Reason
	}
	return "invalid automation: " + e.Field + ": " + e.Reason
}

// AsValidationError unwraps err into a *ValidationError if it is one.
func AsValidationError(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}
