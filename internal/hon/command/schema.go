package command

import (
	"fmt"
	"maps"
	"slices"
)

// Top-level schema entries that are not commands.
var reservedKeys = map[string]bool{
	"applianceModel": true,
	"options":        true,
	"dictionaryId":   true,
	"resultCode":     true,
}

// Schema is the parsed command schema of one appliance.
type Schema struct {
	// ApplianceModel is the raw applianceModel section.
	ApplianceModel map[string]any

	// Options is applianceModel.options, sent as applianceOptions with every command.
	Options map[string]any

	Table *Table

	// Skipped lists parameters and entries that could not be understood.
	Skipped []error
}

// Parse classifies every command the server declares into one of:
//
//   - a plain command: the entry holds "parameters"
//   - a nested command: the entry holds "setParameters" which holds "parameters"
//   - a program family: the entry maps program keys to parameter schemas
//
// Entries matching none of these are reported in Schema.Skipped.
func Parse(payload map[string]any) (*Schema, error) {
	model, ok := payload["applianceModel"].(map[string]any)
	if !ok {
		return nil, ErrMissingApplianceModel
	}

	s := &Schema{
		ApplianceModel: model,
		Options:        asMap(model["options"]),
		Table:          NewTable(),
	}

	for _, name := range slices.Sorted(maps.Keys(payload)) {
		if reservedKeys[name] {
			continue
		}
		attrs, ok := payload[name].(map[string]any)
		if !ok {
			s.Skipped = append(s.Skipped, fmt.Errorf("%w: %s is %T", ErrInvalidSchema, name, payload[name]))
			continue
		}

		switch {
		case attrs["parameters"] != nil:
			cmd, errs := build(name, attrs)
			s.Skipped = append(s.Skipped, errs...)
			s.Table.add(newSingle(cmd))

		case asMap(attrs["setParameters"])["parameters"] != nil:
			cmd, errs := build(name, asMap(attrs["setParameters"]))
			s.Skipped = append(s.Skipped, errs...)
			s.Table.add(newSingle(cmd))

		default:
			programs, ok := programEntries(attrs)
			if !ok {
				s.Skipped = append(s.Skipped, fmt.Errorf("%w: %s matches no command shape", ErrInvalidSchema, name))
				continue
			}
			family, errs := newMulti(name, programs)
			s.Skipped = append(s.Skipped, errs...)
			s.Table.add(family)
		}
	}

	return s, nil
}

// programEntries returns attrs as program-key -> schema when every value is
// a map carrying "parameters".
func programEntries(attrs map[string]any) (map[string]map[string]any, bool) {
	if len(attrs) == 0 {
		return nil, false
	}
	out := make(map[string]map[string]any, len(attrs))
	for key, raw := range attrs {
		entry, ok := raw.(map[string]any)
		if !ok || entry["parameters"] == nil {
			return nil, false
		}
		out[key] = entry
	}
	return out, true
}
