package command

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/nerrad567/hon-bridge/internal/hon/parameter"
)

// ProgramKey is the parameter key of the program selector.
const ProgramKey = "program"

// Command is one dispatchable shape of a named appliance command.
type Command struct {
	name       string
	program    string // variant name, empty for single-shape commands
	programKey string // schema key the variant was declared under, e.g. PROGRAMS.WM.COTTONS

	params    map[string]parameter.Parameter
	keys      []string
	ancillary map[string]parameter.Parameter

	family *Family
}

// build creates a command from a schema entry holding "parameters" and,
// optionally, "ancillaryParameters". Parameters the parameter package does
// not understand are skipped and reported.
func build(name string, attrs map[string]any) (*Command, []error) {
	c := &Command{
		name:      name,
		params:    make(map[string]parameter.Parameter),
		ancillary: make(map[string]parameter.Parameter),
	}

	var skipped []error
	for key, raw := range asMap(attrs["parameters"]) {
		p, err := parameter.New(key, asMap(raw))
		if err != nil {
			skipped = append(skipped, fmt.Errorf("%s: %w", name, err))
			continue
		}
		c.params[key] = p
	}

	for key, raw := range asMap(attrs["ancillaryParameters"]) {
		spec, ok := raw.(map[string]any)
		if !ok {
			// Plain scalars are sent as-is.
			spec = map[string]any{"fixedValue": raw}
		}
		p, err := parameter.New(key, spec)
		if err != nil {
			skipped = append(skipped, fmt.Errorf("%s ancillary: %w", name, err))
			continue
		}
		c.ancillary[key] = p
	}

	c.keys = slices.Sorted(maps.Keys(c.params))
	return c, skipped
}

// Name returns the command name (e.g. "startProgram").
func (c *Command) Name() string { return c.name }

// Program returns the variant name, or "" for a single-shape command.
func (c *Command) Program() string { return c.program }

// ProgramKey returns the schema key of the variant (e.g. "PROGRAMS.WM.COTTONS").
func (c *Command) ProgramKey() string { return c.programKey }

// Family returns the family this command belongs to.
func (c *Command) Family() *Family { return c.family }

// Keys returns the parameter keys, sorted.
func (c *Command) Keys() []string { return c.keys }

// Parameter returns the parameter for key.
func (c *Command) Parameter(key string) (parameter.Parameter, bool) {
	p, ok := c.params[key]
	return p, ok
}

// Parameters returns the parameter map. Callers must not modify it.
func (c *Command) Parameters() map[string]parameter.Parameter { return c.params }

// Values returns the current wire value of every parameter.
func (c *Command) Values() map[string]string {
	out := make(map[string]string, len(c.params))
	for key, p := range c.params {
		out[key] = p.Value()
	}
	return out
}

// AncillaryValues returns the current wire value of every ancillary parameter.
func (c *Command) AncillaryValues() map[string]string {
	out := make(map[string]string, len(c.ancillary))
	for key, p := range c.ancillary {
		out[key] = p.Value()
	}
	return out
}

// Programs returns the variant-name -> Command mapping of the family.
// It is nil for single-shape commands.
func (c *Command) Programs() map[string]*Command {
	return c.family.Programs()
}

// SetProgram switches the family's active variant.
func (c *Command) SetProgram(name string) error {
	return c.family.SetProgram(name)
}

// ProgramNames returns the family's variant names, sorted.
func (c *Command) ProgramNames() []string {
	return c.family.ProgramNames()
}

// SettingKeys returns the keys an operator may change: the non-fixed keys
// of every variant of the family, plus "program" for program families.
func (c *Command) SettingKeys() []string {
	return c.family.SettingKeys()
}

// Settings returns this command's parameters whose keys are setting keys.
func (c *Command) Settings() map[string]parameter.Parameter {
	out := make(map[string]parameter.Parameter)
	for _, key := range c.SettingKeys() {
		if p, ok := c.params[key]; ok {
			out[key] = p
		}
	}
	return out
}

// Dump returns operator help text: one line per changeable parameter and a
// literal example of overrides using the defaults.
func (c *Command) Dump() (text, example string) {
	var lines, pairs []string
	for _, key := range c.keys {
		p := c.params[key]
		if p.Kind() == parameter.KindFixed || key == ProgramKey {
			continue
		}
		lines = append(lines, p.Dump())

		def := p.Default()
		if def == "" {
			def = p.Value()
		}
		pairs = append(pairs, fmt.Sprintf("'%s':%s", key, def))
	}
	if len(lines) > 0 {
		text = strings.Join(lines, "\n") + "\n"
	}
	return text, "{" + strings.Join(pairs, ",") + "}"
}

// Drift records an override that was not applied because the value is no
// longer in the parameter's allowed set.
type Drift struct {
	Key     string
	Value   string
	Allowed []string
}

// Update applies overrides to cmd.
//
// For every key present in both cmd and overrides whose parameter is not
// Fixed and whose value differs, the override is assigned. An enum value
// outside the allowed set is not an error: it is reported as Drift and the
// parameter keeps its prior value. Any other rejection aborts the update.
//
// A "program" override switches the family; it does not change which
// variant cmd refers to.
func Update(cmd *Command, overrides map[string]any) ([]Drift, error) {
	var drift []Drift
	for _, key := range cmd.keys {
		v, ok := overrides[key]
		if !ok {
			continue
		}
		p := cmd.params[key]
		if p.Kind() == parameter.KindFixed || parameter.Stringify(v) == p.Value() {
			continue
		}
		if e, isEnum := p.(*parameter.Enum); isEnum && !e.Allows(v) {
			drift = append(drift, Drift{Key: key, Value: parameter.Stringify(v), Allowed: e.Values()})
			continue
		}
		if err := p.Set(v); err != nil {
			return drift, fmt.Errorf("updating %s: %w", cmd.name, err)
		}
	}
	return drift, nil
}

func asMap(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}
