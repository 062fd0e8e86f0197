package daemon

import "errors"

// Failure causes reported by Daemonize. Returned errors wrap one of these and
// can be matched with errors.Is.
var (
	// ErrResource means the handoff channel could not be created. No process
	// split was attempted.
	ErrResource = errors.New("handoff channel unavailable")

	// ErrSplit means a process split failed, either in the invoker or in the
	// intermediate stage.
	ErrSplit = errors.New("process split failed")

	// ErrDetach means the intermediate stage could not start a new session.
	ErrDetach = errors.New("detach from terminal failed")

	// ErrHandoff means no valid pid payload arrived on the handoff channel.
	ErrHandoff = errors.New("pid handoff failed")
)

// Exit statuses of the intermediate and daemon stages. The invoker maps them
// back to a failure cause when the handoff channel closes without data.
const (
	ExitOK            = 0
	ExitDetachFailed  = 3
	ExitSplitFailed   = 4
	ExitHandoffFailed = 5
)

// causeOf maps the exit status of the intermediate stage to a failure cause.
func causeOf(code int) error {
	switch code {
	case ExitDetachFailed:
		return ErrDetach
	case ExitSplitFailed:
		return ErrSplit
	default:
		return ErrHandoff
	}
}
