package hon

import "errors"

// Bridge errors.
var (
	// ErrInvalidTopic is returned for messages outside the command hierarchy.
	ErrInvalidTopic = errors.New("bridge: invalid command topic")

	// ErrInvalidPayload is returned when a command payload is not valid JSON.
	ErrInvalidPayload = errors.New("bridge: invalid command payload")

	// ErrMissingDependency is returned by New when a required option is nil.
	ErrMissingDependency = errors.New("bridge: missing dependency")
)
