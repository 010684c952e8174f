package pairing

import "errors"

var (
	// ErrInvalidSighting is returned for a sighting with a malformed beacon
	// identity, address or transition.
	ErrInvalidSighting = errors.New("pairing: invalid sighting")

	// ErrCandidateNotFound is returned when accepting an address that has no
	// live candidate.
	ErrCandidateNotFound = errors.New("pairing: candidate not found")

	// ErrAlreadyPaired is returned when accepting a candidate whose address
	// or beacon already belongs to a puck.
	ErrAlreadyPaired = errors.New("pairing: puck already paired")
)
