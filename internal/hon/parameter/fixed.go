package parameter

import "fmt"

// Fixed is a parameter whose value never changes.
type Fixed struct {
	key   string
	info  Info
	value string
}

func newFixed(key string, info Info, raw any) *Fixed {
	value := Stringify(raw)
	if value == "" {
		value = "0"
	}
	return &Fixed{key: key, info: info, value: value}
}

// Key returns the parameter key.
func (p *Fixed) Key() string { return p.key }

// Kind returns KindFixed.
func (p *Fixed) Kind() Kind { return KindFixed }

// Info returns the descriptive attributes.
func (p *Fixed) Info() Info { return p.info }

// Value returns the fixed value.
func (p *Fixed) Value() string { return p.value }

// Default returns the fixed value.
func (p *Fixed) Default() string { return p.value }

// Validate accepts only the fixed value itself.
func (p *Fixed) Validate(value any) (string, error) {
	s := Stringify(value)
	if s != p.value {
		return "", fmt.Errorf("%w: %s is fixed to %q, got %q", ErrFixedValue, p.key, p.value, s)
	}
	return s, nil
}

// Set is a no-op for the fixed value and fails for anything else.
func (p *Fixed) Set(value any) error {
	_, err := p.Validate(value)
	return err
}

// Dump returns a one-line description.
func (p *Fixed) Dump() string {
	return fmt.Sprintf("%s: %s (fixed)", p.key, p.value)
}
