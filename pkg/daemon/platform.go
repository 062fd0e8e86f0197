package daemon

import "os"

// platform is the set of process operations the stages are built from. The
// real implementation talks to the operating system; tests replace it to
// inject failures that cannot be provoked on a healthy host.
type platform interface {
	stage() StageName
	pipe() (r *os.File, w *os.File, err error)
	// spawn re-executes the program as the next stage with w as descriptor 3
	// and stdio on the null device.
	spawn(next StageName, w *os.File) (process, error)
	// handoff returns the inherited write end, or nil if there is none.
	handoff() *os.File
	setsid() error
	ignore(sigs ...os.Signal)
	clearStage()
	getpid() int
	exit(code int)
}

// process is a spawned stage.
type process interface {
	Pid() int
	// Wait reaps the process and returns its exit status.
	Wait() (int, error)
	// Release gives up the process without reaping it.
	Release() error
}
