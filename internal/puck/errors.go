package puck

import "errors"

// Domain errors for the puck package.
//
//	if errors.Is(err, puck.ErrPuckNotFound) {
//	    // unknown address or ID
//	}
var (
	// ErrPuckNotFound is returned when no puck matches the ID, address or beacon identity.
	ErrPuckNotFound = errors.New("puck: not found")

	// ErrPuckExists is returned when the address or beacon identity is already paired.
	ErrPuckExists = errors.New("puck: already exists")

	// ErrInvalidAddress is returned for a malformed MAC address.
	ErrInvalidAddress = errors.New("puck: invalid address")

	// ErrInvalidServiceID is returned when a service ID is not a UUID.
	ErrInvalidServiceID = errors.New("puck: invalid service id")

	// ErrInvalidBeacon is returned when a beacon identity is incomplete.
	ErrInvalidBeacon = errors.New("puck: invalid beacon identity")

	// ErrInvalidName is returned when a puck name is too long.
	ErrInvalidName = errors.New("puck: invalid name")
)
