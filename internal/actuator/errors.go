package actuator

import "errors"

var (
	// ErrUnknownKind is returned by New for a kind outside Kinds().
	ErrUnknownKind = errors.New("actuator: unknown kind")

	// ErrMissingParam is returned when a required configuration value is absent.
	ErrMissingParam = errors.New("actuator: missing parameter")

	// ErrInvalidParam is returned when a configuration value has the wrong
	// type or format.
	ErrInvalidParam = errors.New("actuator: invalid parameter")

	// ErrNoPublisher is returned when an MQTT actuator runs without a client.
	ErrNoPublisher = errors.New("actuator: MQTT publisher unavailable")

	// ErrHTTPStatus is returned when a webhook answers with a non-2xx status.
	ErrHTTPStatus = errors.New("actuator: webhook returned error status")
)
