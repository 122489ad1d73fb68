package parameter

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Kind identifies the concrete parameter implementation.
type Kind string

// Parameter kinds.
const (
	KindFixed   Kind = "fixed"
	KindRange   Kind = "range"
	KindEnum    Kind = "enum"
	KindProgram Kind = "program"
)

// Schema attribute keys used to pick the parameter kind.
const (
	attrFixedValue     = "fixedValue"
	attrMinimumValue   = "minimumValue"
	attrMaximumValue   = "maximumValue"
	attrIncrementValue = "incrementValue"
	attrDefaultValue   = "defaultValue"
	attrEnumValues     = "enumValues"
	attrCategory       = "category"
	attrTypology       = "typology"
	attrMandatory      = "mandatory"
)

// Parameter is one typed value of a command.
//
// Validate checks a candidate without changing the parameter and returns
// the wire form the value would take. Set validates and assigns.
type Parameter interface {
	Key() string
	Kind() Kind
	Info() Info

	// Value returns the current value in its wire (string) form.
	Value() string

	// Default returns the schema default in its wire form.
	Default() string

	Validate(value any) (string, error)
	Set(value any) error

	// Dump returns a one-line operator-facing description.
	Dump() string
}

// Info carries the descriptive attributes every server-declared parameter has.
type Info struct {
	Category  string
	Typology  string
	Mandatory bool
}

// New builds a Parameter from the attribute map the server declares for key.
//
// The kind is chosen by which attributes are present: a fixed value, numeric
// bounds, or an enumerated value list, checked in that order.
func New(key string, attrs map[string]any) (Parameter, error) {
	info := Info{
		Category:  stringAttr(attrs, attrCategory),
		Typology:  stringAttr(attrs, attrTypology),
		Mandatory: isTruthy(attrs[attrMandatory]),
	}

	switch {
	case hasAttr(attrs, attrFixedValue):
		return newFixed(key, info, attrs[attrFixedValue]), nil
	case hasAttr(attrs, attrMinimumValue) && hasAttr(attrs, attrMaximumValue):
		return newRange(key, info, attrs)
	case hasAttr(attrs, attrEnumValues):
		return newEnum(key, info, attrs)
	default:
		return nil, fmt.Errorf("%w: %s (typology %q)", ErrUnsupportedSchema, key, info.Typology)
	}
}

// Stringify converts a value into the string form used on the wire.
//
// Numbers are formatted without exponent or trailing zeros so that 40,
// 40.0 and "40" all compare equal.
func Stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case int32:
		return strconv.FormatInt(int64(t), 10)
	case uint:
		return strconv.FormatUint(uint64(t), 10)
	case uint64:
		return strconv.FormatUint(t, 10)
	case bool:
		if t {
			return "1"
		}
		return "0"
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}

func hasAttr(attrs map[string]any, key string) bool {
	v, ok := attrs[key]
	return ok && v != nil
}

func stringAttr(attrs map[string]any, key string) string {
	if v, ok := attrs[key]; ok {
		return Stringify(v)
	}
	return ""
}

func isTruthy(v any) bool {
	switch Stringify(v) {
	case "1", "true", "True", "TRUE":
		return true
	}
	return false
}
