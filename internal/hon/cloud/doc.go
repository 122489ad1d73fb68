// Package cloud is the HTTP client for the hOn appliance API.
//
// Every call ensures the session is valid first and carries the session
// headers. Reads of context, statistics and command schemas go through the
// shared TTL cache; appliance discovery and status are always fetched.
//
// Failures are classified as ErrTransport, ErrProtocol or ErrRejected so
// the dispatcher can decide whether a retry makes sense.
package cloud
