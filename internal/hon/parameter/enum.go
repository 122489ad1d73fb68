package parameter

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Enum is a parameter restricted to a closed set of string values.
// Value and Set are safe for concurrent use.
type Enum struct {
	key     string
	info    Info
	values  []string // sorted, for display and error messages
	allowed map[string]struct{}
	def     string

	mu    sync.RWMutex
	value string
}

func newEnum(key string, info Info, attrs map[string]any) (*Enum, error) {
	var raw []any
	switch t := attrs[attrEnumValues].(type) {
	case []any:
		raw = t
	case []string:
		for _, s := range t {
			raw = append(raw, s)
		}
	default:
		return nil, fmt.Errorf("%w: %s enumValues is %T", ErrUnsupportedSchema, key, t)
	}

	p := &Enum{
		key:     key,
		info:    info,
		allowed: make(map[string]struct{}, len(raw)),
	}
	for _, v := range raw {
		s := Stringify(v)
		if _, dup := p.allowed[s]; dup {
			continue
		}
		p.allowed[s] = struct{}{}
		p.values = append(p.values, s)
	}
	sort.Strings(p.values)

	p.def = stringAttr(attrs, attrDefaultValue)
	switch {
	case p.def != "":
		p.value = p.def
	case len(p.values) > 0:
		p.value = p.values[0]
	default:
		p.value = "0"
	}
	return p, nil
}

// Key returns the parameter key.
func (p *Enum) Key() string { return p.key }

// Kind returns KindEnum.
func (p *Enum) Kind() Kind { return KindEnum }

// Info returns the descriptive attributes.
func (p *Enum) Info() Info { return p.info }

// Value returns the current value.
func (p *Enum) Value() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.value
}

// Default returns the schema default (may be empty).
func (p *Enum) Default() string { return p.def }

// Values returns the allowed values, sorted. The slice must not be modified.
func (p *Enum) Values() []string { return p.values }

// Allows reports whether value string-matches a member of the set.
func (p *Enum) Allows(value any) bool {
	_, ok := p.allowed[Stringify(value)]
	return ok
}

// Validate accepts only members of the allowed set.
func (p *Enum) Validate(value any) (string, error) {
	s := Stringify(value)
	if _, ok := p.allowed[s]; !ok {
		return "", fmt.Errorf("%w: %s value %q - allowed: [%s]",
			ErrInvalidValue, p.key, s, strings.Join(p.values, ", "))
	}
	return s, nil
}

// Set validates and assigns value.
func (p *Enum) Set(value any) error {
	s, err := p.Validate(value)
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.value = s
	p.mu.Unlock()
	return nil
}

// Dump returns a one-line description.
func (p *Enum) Dump() string {
	return fmt.Sprintf("%s: [%s] - Default: %s", p.key, strings.Join(p.values, ", "), p.def)
}
