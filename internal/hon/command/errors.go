package command

import "errors"

// Domain errors for the command package.
var (
	// ErrUnknownProgram is returned when selecting a program the family does not declare.
	ErrUnknownProgram = errors.New("command: unknown program")

	// ErrNotMultiVariant is returned when selecting a program on a single-shape command.
	ErrNotMultiVariant = errors.New("command: command has no programs")

	// ErrInvalidSchema is returned when the schema payload cannot be classified.
	ErrInvalidSchema = errors.New("command: invalid schema")

	// ErrMissingApplianceModel is returned when the schema lacks its applianceModel section.
	ErrMissingApplianceModel = errors.New("command: schema has no applianceModel")
)
