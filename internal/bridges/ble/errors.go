package ble

import "errors"

// Domain errors for the BLE bridge package.
var (
	// ErrLinkBusy is returned when a link to the address is already open.
	ErrLinkBusy = errors.New("ble: link already open for address")

	// ErrInvalidMessage is returned when a bridge message cannot be decoded
	// or carries unknown values.
	ErrInvalidMessage = errors.New("ble: invalid bridge message")

	// ErrCommandFailed is returned when a command cannot be published.
	ErrCommandFailed = errors.New("ble: command publish failed")

	// ErrNotStarted is returned by Connect before Start.
	ErrNotStarted = errors.New("ble: transport not started")
)
