//go:build windows

package daemon

import (
	"errors"
	"os"
	"syscall"
)

var defaultIgnoredSignals = []os.Signal{syscall.SIGHUP}

var errUnsupported = errors.New("daemon mode is not supported on Windows")

// windowsPlatform can create the handoff channel but never split, so
// Daemonize reports ErrSplit.
type windowsPlatform struct{}

func newPlatform() platform { return windowsPlatform{} }

func (windowsPlatform) stage() StageName { return Stage() }

func (windowsPlatform) pipe() (*os.File, *os.File, error) { return os.Pipe() }

func (windowsPlatform) spawn(StageName, *os.File) (process, error) { return nil, errUnsupported }

func (windowsPlatform) handoff() *os.File { return nil }

func (windowsPlatform) setsid() error { return errUnsupported }

func (windowsPlatform) ignore(...os.Signal) {}

func (windowsPlatform) clearStage() { _ = os.Unsetenv(StageEnv) }

func (windowsPlatform) getpid() int { return os.Getpid() }

func (windowsPlatform) exit(code int) { os.Exit(code) }
