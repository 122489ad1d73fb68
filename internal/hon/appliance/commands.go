package appliance

import (
	"fmt"
	"maps"

	"github.com/nerrad567/hon-bridge/internal/hon/command"
	"github.com/nerrad567/hon-bridge/internal/hon/parameter"
)

// Command names with dedicated helpers.
const (
	CommandStart    = "startProgram"
	CommandStop     = "stopProgram"
	CommandSettings = "settings"
)

// Prepared is a command with its values applied, ready to send.
type Prepared struct {
	Command *command.Command

	// Drift lists values that were not applied: stale enum values and
	// context values the selected variant does not accept.
	Drift []command.Drift
}

// StartCommand prepares startProgram. The program is taken from program,
// else from overrides["program"]; an empty result keeps the active one.
func (d *Device) StartCommand(program string, overrides map[string]any) (Prepared, error) {
	return d.PrepareCommand(CommandStart, program, overrides)
}

// SettingsCommand prepares the settings command.
func (d *Device) SettingsCommand(overrides map[string]any) (Prepared, error) {
	return d.PrepareCommand(CommandSettings, "", overrides)
}

// StopCommand prepares stopProgram.
func (d *Device) StopCommand(overrides map[string]any) (Prepared, error) {
	return d.PrepareCommand(CommandStop, "", overrides)
}

// PrepareCommand selects the program (for program families), applies the
// current context parameters, then applies overrides.
//
// An unknown program fails with command.ErrUnknownProgram before any value
// is touched. Override values outside a range or differing from a fixed
// value fail; stale enum values are reported as drift.
func (d *Device) PrepareCommand(name, program string, overrides map[string]any) (Prepared, error) {
	schema := d.Schema()
	if schema == nil {
		return Prepared{}, fmt.Errorf("%w: %s on %s: commands not loaded", ErrCommandUnavailable, name, d.MAC())
	}
	family, ok := schema.Table.Family(name)
	if !ok {
		return Prepared{}, fmt.Errorf("%w: %s on %s", ErrCommandUnavailable, name, d.MAC())
	}

	overrides = maps.Clone(overrides)
	if program == "" {
		if p, ok := overrides[command.ProgramKey]; ok {
			program = parameter.Stringify(p)
		}
	}
	delete(overrides, command.ProgramKey)

	if program != "" {
		if err := family.SetProgram(program); err != nil {
			return Prepared{}, err
		}
	}
	cmd := family.Active()

	drift := d.applyContext(cmd)
	more, err := command.Update(cmd, overrides)
	if err != nil {
		return Prepared{}, err
	}
	return Prepared{Command: cmd, Drift: append(drift, more...)}, nil
}

// applyContext copies matching context parameters into cmd. Values the
// command rejects are reported as drift, never as errors: the context may
// describe a different program than the one selected.
func (d *Device) applyContext(cmd *command.Command) []command.Drift {
	params := d.ContextParameters()
	delete(params, command.ProgramKey)

	var drift []command.Drift
	for _, key := range cmd.Keys() {
		v, ok := params[key]
		if !ok {
			continue
		}
		found, err := command.Update(cmd, map[string]any{key: v})
		drift = append(drift, found...)
		if err != nil {
			drift = append(drift, command.Drift{Key: key, Value: parameter.Stringify(v)})
		}
	}
	return drift
}
