//go:build windows

package root

import "errors"

// Windows has no sessions or fork semantics to detach with.
func checkDaemonSupported() error {
	return errors.New("running in the background is not supported on Windows")
}
