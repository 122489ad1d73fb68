package parameter

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
)

// stepTolerance absorbs binary rounding when checking real-valued steps.
const stepTolerance = 1e-9

// Range is a numeric parameter bounded by [min, max] and quantised by step.
//
// A Range is real-valued when any of its bounds, step or default was written
// with a decimal separator; otherwise it is integer-valued and rejects
// non-integral candidates. Both "." and "," are accepted as separator.
// Value, Number and Set are safe for concurrent use.
type Range struct {
	key     string
	info    Info
	isFloat bool
	min     float64
	max     float64
	step    float64
	def     float64

	mu    sync.RWMutex
	value float64
}

func newRange(key string, info Info, attrs map[string]any) (*Range, error) {
	rawMin := Stringify(attrs[attrMinimumValue])
	rawMax := Stringify(attrs[attrMaximumValue])
	rawStep := Stringify(attrs[attrIncrementValue])
	rawDef := rawMin
	if hasAttr(attrs, attrDefaultValue) {
		rawDef = Stringify(attrs[attrDefaultValue])
	}
	if rawStep == "" {
		rawStep = "1"
	}

	p := &Range{key: key, info: info}
	for _, raw := range []string{rawMin, rawMax, rawStep, rawDef} {
		if hasDecimalSeparator(raw) {
			p.isFloat = true
		}
	}

	var err error
	if p.min, err = parseLocaleFloat(rawMin); err != nil {
		return nil, fmt.Errorf("%w: %s minimum %q", ErrUnsupportedSchema, key, rawMin)
	}
	if p.max, err = parseLocaleFloat(rawMax); err != nil {
		return nil, fmt.Errorf("%w: %s maximum %q", ErrUnsupportedSchema, key, rawMax)
	}
	if p.step, err = parseLocaleFloat(rawStep); err != nil {
		return nil, fmt.Errorf("%w: %s step %q", ErrUnsupportedSchema, key, rawStep)
	}
	if p.def, err = parseLocaleFloat(rawDef); err != nil {
		return nil, fmt.Errorf("%w: %s default %q", ErrUnsupportedSchema, key, rawDef)
	}
	if p.min > p.max {
		return nil, fmt.Errorf("%w: %s minimum %v above maximum %v", ErrUnsupportedSchema, key, p.min, p.max)
	}

	p.value = p.def
	return p, nil
}

// Key returns the parameter key.
func (p *Range) Key() string { return p.key }

// Kind returns KindRange.
func (p *Range) Kind() Kind { return KindRange }

// Info returns the descriptive attributes.
func (p *Range) Info() Info { return p.info }

// Min returns the lower bound.
func (p *Range) Min() float64 { return p.min }

// Max returns the upper bound.
func (p *Range) Max() float64 { return p.max }

// Step returns the increment.
func (p *Range) Step() float64 { return p.step }

// IsFloat reports whether the range is real-valued.
func (p *Range) IsFloat() bool { return p.isFloat }

// Number returns the current value as a number.
func (p *Range) Number() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.value
}

// Value returns the current value in wire form.
func (p *Range) Value() string { return p.format(p.Number()) }

// Default returns the schema default in wire form.
func (p *Range) Default() string { return p.format(p.def) }

// Validate accepts v iff it equals min or max, or lies within [min, max]
// and is reachable from min by whole steps.
func (p *Range) Validate(value any) (string, error) {
	v, err := p.coerce(value)
	if err != nil {
		return "", err
	}
	if !p.accepts(v) {
		return "", fmt.Errorf("%w: %s value %s - allowed: min %s max %s step %s",
			ErrInvalidValue, p.key, p.format(v), p.format(p.min), p.format(p.max), p.format(p.step))
	}
	return p.format(v), nil
}

// Set validates and assigns value.
func (p *Range) Set(value any) error {
	s, err := p.Validate(value)
	if err != nil {
		return err
	}
	v, err := parseLocaleFloat(s)
	if err != nil {
		return fmt.Errorf("%w: %s value %q", ErrInvalidValue, p.key, s)
	}
	p.mu.Lock()
	p.value = v
	p.mu.Unlock()
	return nil
}

// Dump returns a one-line description.
func (p *Range) Dump() string {
	return fmt.Sprintf("%s: [%s - %s] - Default: %s - Step: %s",
		p.key, p.format(p.min), p.format(p.max), p.format(p.def), p.format(p.step))
}

func (p *Range) accepts(v float64) bool {
	if v == p.min || v == p.max {
		return true
	}
	if v < p.min || v > p.max {
		return false
	}
	if p.step <= 0 {
		return true
	}
	if !p.isFloat {
		return int64(v-p.min)%int64(p.step) == 0
	}
	q := (v - p.min) / p.step
	return math.Abs(q-math.Round(q)) < stepTolerance
}

// coerce converts a candidate into a number, honouring locale decimals and
// the integer/real mode of the range.
func (p *Range) coerce(value any) (float64, error) {
	var v float64
	switch t := value.(type) {
	case float64:
		v = t
	case float32:
		v = float64(t)
	case int:
		v = float64(t)
	case int64:
		v = float64(t)
	case int32:
		v = float64(t)
	default:
		s := strings.TrimSpace(Stringify(value))
		f, err := parseLocaleFloat(s)
		if err != nil {
			return 0, fmt.Errorf("%w: %s value %q is not a number", ErrInvalidValue, p.key, s)
		}
		v = f
	}

	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: %s value is not finite", ErrInvalidValue, p.key)
	}
	if !p.isFloat && v != math.Trunc(v) {
		return 0, fmt.Errorf("%w: %s value %v is not an integer", ErrInvalidValue, p.key, v)
	}
	return v, nil
}

func (p *Range) format(v float64) string {
	if !p.isFloat {
		return strconv.FormatInt(int64(v), 10)
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func hasDecimalSeparator(s string) bool {
	return strings.ContainsAny(s, ".,")
}

func parseLocaleFloat(s string) (float64, error) {
	return strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(s), ",", "."), 64)
}
