package session

import "errors"

// Authentication errors.
//
// Every failure of the login protocol wraps ErrAuthFailed, so callers that
// only need "can the operation proceed now" check that one:
//
//	if errors.Is(err, session.ErrAuthFailed) {
//	    // retry on the next poll
//	}
var (
	// ErrAuthFailed is returned when the session could not be established.
	ErrAuthFailed = errors.New("session: authentication failed")

	// ErrFrameworkMismatch is returned when the identity provider rejected
	// the framework-version tag twice in a row.
	ErrFrameworkMismatch = errors.New("session: framework version mismatch")

	// ErrPasswordChangeRequired is returned when the identity provider asks
	// the account owner to change their password in the mobile app.
	ErrPasswordChangeRequired = errors.New("session: password change required")

	// ErrLoginRejected is returned when the token exchange did not yield a
	// session token.
	ErrLoginRejected = errors.New("session: login rejected")

	// ErrNoCredentials is returned when email or password is empty.
	ErrNoCredentials = errors.New("session: email and password are required")
)
