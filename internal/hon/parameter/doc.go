// Package parameter implements the typed, validated scalar values that make
// up an appliance command.
//
// The server declares every command parameter as a small attribute map.
// New inspects that map and returns one of four implementations:
//
//   - Fixed: an immutable value (fixedValue present)
//   - Range: a numeric value bounded by min/max and reachable by step
//     (minimumValue and maximumValue present)
//   - Enum: one member of a closed set of strings (enumValues present)
//   - Program: the variant selector of a multi-variant command; assigning
//     it switches the owning command family's active variant
//
// Every Parameter always has exactly one current value, exposed as the
// string that is sent on the wire.
//
// # Usage
//
//	p, err := parameter.New("temp", map[string]any{
//	    "minimumValue": "0", "maximumValue": "90", "incrementValue": "10",
//	})
//	if err := p.Set(40); err != nil {
//	    // errors.Is(err, parameter.ErrInvalidValue)
//	}
//	fmt.Println(p.Value()) // "40"
package parameter
