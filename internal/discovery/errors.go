package discovery

import "errors"

var (
	// ErrNotRunning is returned when discovery is requested before Start or
	// after Stop.
	ErrNotRunning = errors.New("discovery: coordinator not running")

	// ErrInvalidSchedule is returned when the refresh cron expression does
	// not parse.
	ErrInvalidSchedule = errors.New("discovery: invalid refresh schedule")
)
