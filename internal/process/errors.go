package process

import "errors"

var (
	// ErrAlreadyRunning is returned by Start when the process is running.
	ErrAlreadyRunning = errors.New("process: already running")

	// ErrNoBinary is returned by Start when no executable is configured.
	ErrNoBinary = errors.New("process: no binary configured")

	// ErrUnhealthy is returned by watchdog checks that fail.
	ErrUnhealthy = errors.New("process: health check failed")
)

// RecoverableError lets an exit error say whether a restart can help.
type RecoverableError interface {
	error
	IsRecoverable() bool
}

// IsRecoverable reports whether a restart should be attempted after err.
// Errors are recoverable unless they say otherwise.
func IsRecoverable(err error) bool {
	var re RecoverableError
	if errors.As(err, &re) {
		return re.IsRecoverable()
	}
	return true
}
