package parameter

import "errors"

// Domain errors for the parameter package.
//
// Validation failures always wrap one of these so callers can use errors.Is:
//
//	if errors.Is(err, parameter.ErrInvalidValue) {
//	    // value outside the declared range or enum set
//	}
var (
	// ErrInvalidValue is returned when a value is outside the allowed set or range.
	ErrInvalidValue = errors.New("parameter: invalid value")

	// ErrFixedValue is returned when assigning a different value to a Fixed parameter.
	ErrFixedValue = errors.New("parameter: fixed value cannot change")

	// ErrUnsupportedSchema is returned when an attribute map matches no parameter kind.
	ErrUnsupportedSchema = errors.New("parameter: unsupported schema")
)
