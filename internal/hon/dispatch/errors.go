package dispatch

import "errors"

var (
	// ErrNoCommand is returned when Send is called without a command.
	ErrNoCommand = errors.New("dispatch: no command")

	// ErrNoTarget is returned when the target has no MAC address.
	ErrNoTarget = errors.New("dispatch: target has no MAC address")
)
