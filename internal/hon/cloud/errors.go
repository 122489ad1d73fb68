package cloud

import "errors"

// Remote API errors.
//
// The three kinds are handled differently by callers: transport failures
// may be retried after re-authentication, protocol failures and rejections
// are not.
var (
	// ErrTransport is returned when the request did not complete
	// (connection refused, timeout, reset).
	ErrTransport = errors.New("cloud: transport failure")

	// ErrUnauthorized is returned with ErrTransport when the API refused
	// the session tokens. The session is invalidated before returning.
	ErrUnauthorized = errors.New("cloud: session refused")

	// ErrProtocol is returned when the response is not the expected JSON shape.
	ErrProtocol = errors.New("cloud: unexpected response")

	// ErrRejected is returned when the API answered with a non-zero result code.
	ErrRejected = errors.New("cloud: rejected")
)
