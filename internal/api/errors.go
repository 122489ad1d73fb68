package api

import (
	"encoding/json"
	"net/http"

	bridge "github.com/nerrad567/hon-bridge/internal/bridges/hon"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes. Command failures use the bridge's ErrCode* values
// so MQTT and HTTP callers see the same classification.
const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeUnauthorized = "unauthorized"
	ErrCodeNotFound     = "not_found"
	ErrCodeInternal     = "internal_error"
	ErrCodeUnavailable  = "unavailable"
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

// writeBadRequest writes a 400 error response.
func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// writeUnauthorized writes a 401 error response with a bearer challenge.
func writeUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="honbridge"`)
	writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

// writeNotFound writes a 404 error response.
func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writeStoreError classifies an appliance store error and writes it.
func writeStoreError(w http.ResponseWriter, err error) {
	code := bridge.ErrorCode(err)
	writeError(w, statusForCode(code), code, err.Error())
}

// statusForCode maps a bridge error code to an HTTP status.
func statusForCode(code string) int {
	switch code {
	case bridge.ErrCodeDeviceNotFound:
		return http.StatusNotFound
	case bridge.ErrCodeInvalidPayload, bridge.ErrCodeUnknownProgram, bridge.ErrCodeInvalidValue:
		return http.StatusBadRequest
	case bridge.ErrCodeCommandUnavailable, bridge.ErrCodeDisconnected:
		return http.StatusConflict
	case bridge.ErrCodeRejected, bridge.ErrCodeTransport, bridge.ErrCodeAuthentication:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
