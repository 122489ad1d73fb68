package hon

import (
	"errors"
	"time"

	"github.com/nerrad567/hon-bridge/internal/hon/appliance"
	"github.com/nerrad567/hon-bridge/internal/hon/cloud"
	"github.com/nerrad567/hon-bridge/internal/hon/command"
	"github.com/nerrad567/hon-bridge/internal/hon/parameter"
	"github.com/nerrad567/hon-bridge/internal/hon/session"
)

// CommandMessage is a command request received on
// {prefix}/command/{mac}/{command}. The MAC address and command name come
// from the topic. An empty payload sends the command with the device's
// current values.
type CommandMessage struct {
	// ID correlates the request with its result. Generated when empty.
	ID string `json:"id,omitempty"`

	// Program selects the startProgram variant, e.g. "cottons".
	Program string `json:"program,omitempty"`

	// Parameters override individual values, e.g. {"temp": 40}.
	Parameters map[string]any `json:"parameters,omitempty"`

	// Source names the requester ("homeassistant", "api", "cli").
	Source string `json:"source,omitempty"`
}

// ResultStatus is the outcome of a command request.
type ResultStatus string

const (
	// ResultAccepted means the remote API accepted the command.
	ResultAccepted ResultStatus = "accepted"

	// ResultFailed means the command was not sent or was rejected.
	ResultFailed ResultStatus = "failed"
)

// ResultMessage is published on {prefix}/result/{mac} for every command
// request, successful or not.
type ResultMessage struct {
	CommandID     string       `json:"command_id"`
	MAC           string       `json:"mac"`
	Command       string       `json:"command"`
	Program       string       `json:"program,omitempty"`
	Status        ResultStatus `json:"status"`
	TransactionID string       `json:"transaction_id,omitempty"`
	ResultCode    string       `json:"result_code,omitempty"`
	Attempts      int          `json:"attempts,omitempty"`
	Error         *ResultError `json:"error,omitempty"`
	Timestamp     time.Time    `json:"timestamp"`
}

// ResultError describes why a command failed.
type ResultError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes carried in ResultError.Code.
const (
	ErrCodeInvalidPayload     = "invalid_payload"
	ErrCodeDeviceNotFound     = "device_not_found"
	ErrCodeCommandUnavailable = "command_unavailable"
	ErrCodeUnknownProgram     = "unknown_program"
	ErrCodeInvalidValue       = "invalid_value"
	ErrCodeDisconnected       = "disconnected"
	ErrCodeRejected           = "rejected"
	ErrCodeTransport          = "transport"
	ErrCodeAuthentication     = "authentication"
	ErrCodeInternal           = "internal"
)

// ErrorCode classifies an Execute error for callers outside the process.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrInvalidPayload):
		return ErrCodeInvalidPayload
	case errors.Is(err, appliance.ErrDeviceNotFound):
		return ErrCodeDeviceNotFound
	case errors.Is(err, appliance.ErrCommandUnavailable):
		return ErrCodeCommandUnavailable
	case errors.Is(err, command.ErrUnknownProgram), errors.Is(err, command.ErrNotMultiVariant):
		return ErrCodeUnknownProgram
	case errors.Is(err, parameter.ErrInvalidValue), errors.Is(err, parameter.ErrFixedValue):
		return ErrCodeInvalidValue
	case errors.Is(err, appliance.ErrDisconnected):
		return ErrCodeDisconnected
	case errors.Is(err, cloud.ErrRejected):
		return ErrCodeRejected
	case errors.Is(err, session.ErrAuthFailed), errors.Is(err, session.ErrLoginRejected),
		errors.Is(err, session.ErrPasswordChangeRequired), errors.Is(err, session.ErrFrameworkMismatch):
		return ErrCodeAuthentication
	case errors.Is(err, cloud.ErrTransport), errors.Is(err, cloud.ErrProtocol):
		return ErrCodeTransport
	default:
		return ErrCodeInternal
	}
}

// Availability payloads.
const (
	AvailabilityOnline  = "online"
	AvailabilityOffline = "offline"
)

// availability maps a status category to an availability payload.
func availability(connection string) string {
	if connection == "CONNECTED" {
		return AvailabilityOnline
	}
	return AvailabilityOffline
}
