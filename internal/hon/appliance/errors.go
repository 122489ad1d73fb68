package appliance

import "errors"

// Domain errors for the appliance package.
var (
	// ErrDeviceNotFound is returned when no discovered appliance has the MAC address.
	ErrDeviceNotFound = errors.New("appliance: not found")

	// ErrIncompleteRecord is returned for appliance records without a MAC
	// address or a type id.
	ErrIncompleteRecord = errors.New("appliance: record lacks macAddress or applianceTypeId")

	// ErrCommandUnavailable is returned when the appliance's schema does not
	// declare the requested command, or the schema is not loaded.
	ErrCommandUnavailable = errors.New("appliance: command not available")

	// ErrDisconnected is returned when starting a program on an appliance
	// whose status reads DISCONNECTED.
	ErrDisconnected = errors.New("appliance: disconnected")
)
