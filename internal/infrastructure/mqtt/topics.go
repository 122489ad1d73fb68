package mqtt

import "strings"

// DefaultTopicPrefix is the root of every bridge topic when the
// configuration does not name one.
const DefaultTopicPrefix = "hon"

// Topics builds the bridge's MQTT topics under a common prefix.
//
//	{prefix}/status                      bridge online/offline (retained, LWT)
//	{prefix}/state/{mac}                 merged appliance state (retained)
//	{prefix}/availability/{mac}          "online" / "offline" (retained)
//	{prefix}/command/{mac}/{command}     command requests, e.g. startProgram
//	{prefix}/result/{mac}                outcome of each command request
//
// MAC addresses are used as they appear in the appliance record
// (e.g. "AA:BB:CC:DD:EE:FF"); ':' is legal in a topic level.
type Topics struct {
	Prefix string
}

// NewTopics returns a builder for prefix, or DefaultTopicPrefix when empty.
func NewTopics(prefix string) Topics {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return Topics{Prefix: prefix}
}

func (t Topics) join(parts ...string) string {
	prefix := t.Prefix
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return prefix + "/" + strings.Join(parts, "/")
}

// BridgeStatus returns the topic of the bridge's own online status.
//
// Example: hon/status
func (t Topics) BridgeStatus() string {
	return t.join("status")
}

// State returns the retained state topic of one appliance.
//
// Example: hon/state/AA:BB:CC:DD:EE:FF
func (t Topics) State(mac string) string {
	return t.join("state", mac)
}

// Availability returns the retained availability topic of one appliance.
//
// Example: hon/availability/AA:BB:CC:DD:EE:FF
func (t Topics) Availability(mac string) string {
	return t.join("availability", mac)
}

// Command returns the topic on which command requests for an appliance
// are received.
//
// Example: hon/command/AA:BB:CC:DD:EE:FF/startProgram
func (t Topics) Command(mac, command string) string {
	return t.join("command", mac, command)
}

// CommandResult returns the topic on which command outcomes are published.
//
// Example: hon/result/AA:BB:CC:DD:EE:FF
func (t Topics) CommandResult(mac string) string {
	return t.join("result", mac)
}

// AllCommands returns a pattern matching every command request.
//
// Pattern: hon/command/+/+
func (t Topics) AllCommands() string {
	return t.join("command", "+", "+")
}

// AllStates returns a pattern matching every appliance state.
//
// Pattern: hon/state/+
func (t Topics) AllStates() string {
	return t.join("state", "+")
}

// ParseCommand splits a command request topic into MAC address and command
// name. ok is false for topics outside the command hierarchy.
func (t Topics) ParseCommand(topic string) (mac, command string, ok bool) {
	rest, found := strings.CutPrefix(topic, t.join("command")+"/")
	if !found {
		return "", "", false
	}
	mac, command, found = strings.Cut(rest, "/")
	if !found || mac == "" || command == "" || strings.Contains(command, "/") {
		return "", "", false
	}
	return mac, command, true
}
