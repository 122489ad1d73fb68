// Package command turns the server-declared command schema of an appliance
// into validated, dispatchable commands.
//
// # Key Types
//
//   - Command: a named group of parameters plus ancillary metadata
//   - Family: the set of variants sharing one command name; a single-shape
//     command is a family of one, a program family (e.g. startProgram)
//     holds one variant per program and an index of the active one
//   - Table: a device's command table, name -> Family
//
// Switching program updates the family's active index; the variants and
// their parameter prototypes are built once when the schema is parsed and
// never rebuilt. Each variant owns its own current values, so values set on
// one program are not carried over to another.
//
// # Usage
//
//	schema, err := command.Parse(payload)
//	start, _ := schema.Table.Family("startProgram")
//	if err := start.SetProgram("cottons"); err != nil {
//	    return err // command.ErrUnknownProgram
//	}
//	drift, err := command.Update(start.Active(), map[string]any{"temp": 40})
package command
