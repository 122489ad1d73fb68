package command

import (
	"fmt"
	"maps"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/nerrad567/hon-bridge/internal/hon/parameter"
)

// Family groups the variants declared under one command name and tracks
// which one is active.
//
// Thread Safety:
//   - SetProgram and Active are safe for concurrent use.
//   - Parameter values may be read while another goroutine updates them.
//     A multi-key Update is not atomic; serialise updates of one variant.
type Family struct {
	name     string
	variants map[string]*Command
	names    []string
	multi    bool

	active string
	mu     sync.RWMutex

	settingOnce sync.Once
	settingKeys []string
}

// newSingle wraps a single-shape command in a family of one.
func newSingle(cmd *Command) *Family {
	f := &Family{
		name:     cmd.name,
		variants: map[string]*Command{"": cmd},
		names:    nil,
	}
	cmd.family = f
	return f
}

// newMulti builds a program family from schema entries keyed by program
// schema key (e.g. "PROGRAMS.WM.COTTONS"). The first program in name order
// is active initially.
func newMulti(name string, programs map[string]map[string]any) (*Family, []error) {
	f := &Family{
		name:     name,
		variants: make(map[string]*Command, len(programs)),
		multi:    true,
	}

	var skipped []error
	for _, key := range slices.Sorted(maps.Keys(programs)) {
		program := VariantName(key)
		cmd, errs := build(name, programs[key])
		skipped = append(skipped, errs...)

		cmd.program = program
		cmd.programKey = key
		cmd.family = f
		cmd.params[ProgramKey] = parameter.NewProgram(ProgramKey, program, f)
		cmd.keys = slices.Sorted(maps.Keys(cmd.params))

		f.variants[program] = cmd
	}
	f.names = slices.Sorted(maps.Keys(f.variants))
	if len(f.names) > 0 {
		f.active = f.names[0]
	}
	return f, skipped
}

// VariantName derives the program name from its schema key: the last dotted
// segment, lower-cased ("PROGRAMS.WM.COTTONS" -> "cottons").
func VariantName(key string) string {
	if i := strings.LastIndex(key, "."); i >= 0 {
		key = key[i+1:]
	}
	return strings.ToLower(key)
}

// Name returns the command name.
func (f *Family) Name() string { return f.name }

// IsMulti reports whether the family is a program family.
func (f *Family) IsMulti() bool { return f.multi }

// Active returns the currently selected variant.
func (f *Family) Active() *Command {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.variants[f.active]
}

// SetProgram makes the named variant active.
// Returns ErrUnknownProgram if the family does not declare it.
func (f *Family) SetProgram(name string) error {
	if !f.multi {
		return fmt.Errorf("%w: %s", ErrNotMultiVariant, f.name)
	}
	if _, ok := f.variants[name]; !ok {
		return fmt.Errorf("%w: %s has no program %q (available: %s)",
			ErrUnknownProgram, f.name, name, strings.Join(f.names, ", "))
	}

	f.mu.Lock()
	f.active = name
	f.mu.Unlock()
	return nil
}

// ProgramNames returns the variant names, sorted. Nil for single-shape commands.
func (f *Family) ProgramNames() []string { return f.names }

// Programs returns the variant-name -> Command mapping, or nil for
// single-shape commands.
func (f *Family) Programs() map[string]*Command {
	if !f.multi {
		return nil
	}
	return maps.Clone(f.variants)
}

// SettingKeys returns the union of non-fixed parameter keys across every
// variant, always including "program" for program families. The result is
// computed once; the schema does not change after parsing.
func (f *Family) SettingKeys() []string {
	f.settingOnce.Do(func() {
		seen := make(map[string]struct{})
		for _, cmd := range f.variants {
			for key, p := range cmd.params {
				if p.Kind() != parameter.KindFixed {
					seen[key] = struct{}{}
				}
			}
		}
		if f.multi {
			seen[ProgramKey] = struct{}{}
		}
		f.settingKeys = slices.Sorted(maps.Keys(seen))
	})
	return f.settingKeys
}

// Table is a device's command table: command name -> Family.
type Table struct {
	families map[string]*Family
}

// NewTable returns an empty table.
func NewTable() *Table {
	return &Table{families: make(map[string]*Family)}
}

// Family returns the family registered under name.
func (t *Table) Family(name string) (*Family, bool) {
	f, ok := t.families[name]
	return f, ok
}

// Get returns the active variant of the named command.
func (t *Table) Get(name string) (*Command, bool) {
	f, ok := t.families[name]
	if !ok {
		return nil, false
	}
	return f.Active(), true
}

// Names returns the command names, sorted.
func (t *Table) Names() []string {
	names := make([]string, 0, len(t.families))
	for name := range t.families {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of commands.
func (t *Table) Len() int { return len(t.families) }

func (t *Table) add(f *Family) {
	t.families[f.name] = f
}
