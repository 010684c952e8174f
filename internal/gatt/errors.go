package gatt

import (
	"errors"
	"fmt"
)

var (
	// ErrTransport is wrapped by every TransportError.
	ErrTransport = errors.New("gatt: transport failure")

	// ErrUnexpectedDisconnect is returned when the link drops before the
	// session asked for it.
	ErrUnexpectedDisconnect = errors.New("gatt: unexpected disconnect")

	// ErrLinkClosed is returned when the transport closes the event stream
	// while the session is still running.
	ErrLinkClosed = errors.New("gatt: event stream closed")

	// ErrSessionTimeout is returned when a configured session timeout elapses.
	ErrSessionTimeout = errors.New("gatt: session timed out")
)

// Common BLE stack status codes seen on connection state changes.
const (
	StatusSuccess             = 0
	StatusConnTimeout         = 8
	StatusRemoteTerminated    = 19
	StatusLocalHostTerminated = 22
	StatusFailedToEstablish   = 62
	StatusGattError           = 133
	StatusGattInternalError   = 129
	StatusInsufficientAuth    = 5
	StatusInsufficientEncrypt = 15
)

var statusNames = map[int]string{
	StatusSuccess:             "success",
	StatusConnTimeout:         "connection timeout",
	StatusRemoteTerminated:    "terminated by peer",
	StatusLocalHostTerminated: "terminated by local host",
	StatusFailedToEstablish:   "failed to establish",
	StatusGattError:           "gatt error",
	StatusGattInternalError:   "gatt internal error",
	StatusInsufficientAuth:    "insufficient authentication",
	StatusInsufficientEncrypt: "insufficient encryption",
}

// StatusName returns a short description of a status code.
func StatusName(status int) string {
	if name, ok := statusNames[status]; ok {
		return name
	}
	return "unknown"
}

// TransportError carries the raw status code of a failed connection.
type TransportError struct {
	Status int
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("gatt: transport status %d (%s)", e.Status, StatusName(e.Status))
}

func (e *TransportError) Unwrap() error {
	return ErrTransport
}
