package parameter

import (
	"fmt"
	"slices"
	"strings"
)

// Switcher is implemented by the multi-variant command that owns a Program
// parameter. Assigning the parameter delegates to SetProgram.
type Switcher interface {
	SetProgram(name string) error
	ProgramNames() []string
}

// Program is the variant selector of a multi-variant command.
//
// Each variant carries its own Program parameter whose value is that
// variant's name; assigning another name switches the owner's active
// variant and leaves this parameter untouched.
type Program struct {
	key   string
	value string
	owner Switcher
}

// NewProgram returns the selector for the variant named current.
func NewProgram(key, current string, owner Switcher) *Program {
	return &Program{key: key, value: current, owner: owner}
}

// Key returns the parameter key.
func (p *Program) Key() string { return p.key }

// Kind returns KindProgram.
func (p *Program) Kind() Kind { return KindProgram }

// Info describes the selector as an enum.
func (p *Program) Info() Info { return Info{Typology: "enum"} }

// Value returns the name of the variant this selector belongs to.
func (p *Program) Value() string { return p.value }

// Default is the variant's own name.
func (p *Program) Default() string { return p.value }

// Values returns the variant names of the owner, sorted.
func (p *Program) Values() []string { return p.owner.ProgramNames() }

// Validate accepts any variant name known to the owner.
func (p *Program) Validate(value any) (string, error) {
	s := Stringify(value)
	names := p.owner.ProgramNames()
	if !slices.Contains(names, s) {
		return "", fmt.Errorf("%w: %s value %q - allowed: [%s]",
			ErrInvalidValue, p.key, s, strings.Join(names, ", "))
	}
	return s, nil
}

// Set switches the owner to the named variant.
func (p *Program) Set(value any) error {
	s, err := p.Validate(value)
	if err != nil {
		return err
	}
	return p.owner.SetProgram(s)
}

// Dump returns a one-line description.
func (p *Program) Dump() string {
	return fmt.Sprintf("%s: %s", p.key, p.value)
}
