// Package daemon detaches the running program from its terminal and reports
// the pid of the resulting background process to the original caller.
//
// A Go process cannot be duplicated with a raw fork, so each process split is
// a re-execution of the current executable with the same arguments, working
// directory and environment. The role of a re-executed process is carried in
// the VIOLET_DAEMON_STAGE environment variable and the write end of the
// handoff pipe is passed as file descriptor 3:
//
//	invoker ──spawn──▶ intermediate (setsid) ──spawn──▶ daemon
//	   ▲                                                  │
//	   └──────────────── "<pid>\n" over the pipe ─────────┘
//
// Daemonize must be called early in main, before the program starts any
// goroutines or opens resources it does not want to duplicate, because every
// stage runs the program from the top until it reaches Daemonize again.
package daemon

import (
	"errors"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/inercia/violet/pkg/common"
)

// StageEnv is the environment variable that tells a re-executed process
// which stage of the daemonization it is running.
const StageEnv = "VIOLET_DAEMON_STAGE"

// handoffFD is the descriptor number of the handoff pipe in spawned stages.
const handoffFD = 3

// StageName identifies the role of the current process.
type StageName string

const (
	// StageInvoker is the process that asked to be daemonized.
	StageInvoker StageName = ""
	// StageIntermediate is the short-lived session leader.
	StageIntermediate StageName = "intermediate"
	// StageDaemon is the final background process.
	StageDaemon StageName = "daemon"
)

// Kind tells the caller which role it has after Daemonize returns.
type Kind int

const (
	// Failure means no daemon is known to be running. An error is returned
	// alongside it.
	Failure Kind = iota
	// ParentSuccess is returned in the invoker once the daemon reported its pid.
	ParentSuccess
	// ChildContinues is returned in the background daemon.
	ChildContinues
)

func (k Kind) String() string {
	switch k {
	case ParentSuccess:
		return "parent-success"
	case ChildContinues:
		return "child-continues"
	default:
		return "failure"
	}
}

// Outcome is the result of Daemonize. PID is only set for ParentSuccess.
type Outcome struct {
	Kind Kind
	PID  int
}

// Daemonizer runs the double split and pid handoff. The zero value is ready
// to use.
type Daemonizer struct {
	// HandoffTimeout bounds how long the invoker waits for the pid. Zero
	// waits until the handoff channel is closed.
	HandoffTimeout time.Duration

	// IgnoredSignals are set to ignored in the intermediate and daemon
	// stages, and stay ignored in the daemon. Defaults to SIGHUP and SIGCHLD.
	IgnoredSignals []os.Signal

	// Logger traces the invoker side and reports why a spawned stage gave
	// up. Spawned stages have their stdio on the null device, so their
	// reports are only seen when a stage is started by hand.
	Logger *common.Logger

	sys platform
}

var daemonized atomic.Bool

// errStageExited is only returned when the platform exit hook returns,
// which the real one never does.
var errStageExited = errors.New("daemonization stage exited")

// Daemonize detaches the current program using a default Daemonizer.
func Daemonize() (Outcome, error) {
	var d Daemonizer
	return d.Daemonize()
}

// Stage returns the daemonization stage of the current process.
func Stage() StageName {
	return StageName(os.Getenv(StageEnv))
}

// IsDaemonized reports whether Daemonize returned ChildContinues in this
// process.
func IsDaemonized() bool {
	return daemonized.Load()
}

// Daemonize turns the calling process into a background daemon.
//
// In the invoker it blocks until the daemon has reported its pid and returns
// ParentSuccess with that pid, or Failure with an error wrapping one of
// ErrResource, ErrSplit, ErrDetach or ErrHandoff. In the daemon it returns
// ChildContinues. The intermediate stage never returns: it exits once the
// daemon has been spawned.
//
// As a side effect the daemon keeps the signals in IgnoredSignals ignored
// and its session differs from the invoker's, so it has no controlling
// terminal.
//
// Returns:
//   - The Outcome for the calling process
//   - An error when the Outcome is Failure
func (d *Daemonizer) Daemonize() (Outcome, error) {
	p := d.platform()

	switch stage := p.stage(); stage {
	case StageInvoker:
		return d.invoke(p)

	case StageIntermediate:
		code := d.detach(p)
		if code != ExitOK {
			d.errorf("%s stage failed: %v", stage, causeOf(code))
		}
		p.exit(code)
		return Outcome{Kind: Failure}, errStageExited

	case StageDaemon:
		out, code := d.announce(p)
		if code != ExitOK {
			d.errorf("%s stage failed: %v", stage, causeOf(code))
			p.exit(code)
			return Outcome{Kind: Failure}, errStageExited
		}
		daemonized.Store(true)
		return out, nil

	default:
		return Outcome{Kind: Failure}, fmt.Errorf("%w: unknown stage %q in %s", ErrSplit, stage, StageEnv)
	}
}

func (d *Daemonizer) platform() platform {
	if d.sys != nil {
		return d.sys
	}
	return newPlatform()
}

func (d *Daemonizer) ignored() []os.Signal {
	if len(d.IgnoredSignals) > 0 {
		return d.IgnoredSignals
	}
	return defaultIgnoredSignals
}

func (d *Daemonizer) debugf(format string, v ...interface{}) {
	if d.Logger != nil {
		d.Logger.Debug(format, v...)
	}
}

func (d *Daemonizer) errorf(format string, v ...interface{}) {
	if d.Logger != nil {
		d.Logger.Error(format, v...)
	}
}

// invoke runs in the original process. It creates the handoff channel,
// starts the intermediate stage and waits for the pid payload.
func (d *Daemonizer) invoke(p platform) (Outcome, error) {
	r, w, err := p.pipe()
	if err != nil {
		return Outcome{Kind: Failure}, fmt.Errorf("%w: %w", ErrResource, err)
	}

	child, err := p.spawn(StageIntermediate, w)
	if err != nil {
		_ = r.Close()
		_ = w.Close()
		return Outcome{Kind: Failure}, fmt.Errorf("%w: %w", ErrSplit, err)
	}
	d.debugf("started intermediate process %d", child.Pid())

	// Only the daemon may hold a write end, otherwise EOF never arrives.
	_ = w.Close()

	if d.HandoffTimeout > 0 {
		if err := r.SetReadDeadline(time.Now().Add(d.HandoffTimeout)); err != nil {
			d.debugf("handoff deadline not supported: %v", err)
		}
	}

	payload, err := readPayload(r)
	_ = r.Close()
	if err != nil {
		// The intermediate stage may be stuck; do not block on it.
		_ = child.Release()
		return Outcome{Kind: Failure}, fmt.Errorf("%w: reading pid: %w", ErrHandoff, err)
	}

	code, waitErr := child.Wait()
	if waitErr != nil {
		d.debugf("waiting for intermediate process: %v", waitErr)
	}

	if len(payload) == 0 {
		return Outcome{Kind: Failure}, fmt.Errorf("%w: handoff channel closed without a pid (intermediate exit status %d)",
			causeOf(code), code)
	}

	pid, err := ParsePID(payload)
	if err != nil {
		return Outcome{Kind: Failure}, fmt.Errorf("%w: %w", ErrHandoff, err)
	}

	d.debugf("daemon reported pid %d", pid)
	return Outcome{Kind: ParentSuccess, PID: pid}, nil
}

// detach runs in the intermediate stage and returns its exit status.
func (d *Daemonizer) detach(p platform) int {
	w := p.handoff()
	if w == nil {
		return ExitHandoffFailed
	}

	if err := p.setsid(); err != nil {
		_ = w.Close()
		return ExitDetachFailed
	}

	p.ignore(d.ignored()...)

	child, err := p.spawn(StageDaemon, w)
	_ = w.Close()
	if err != nil {
		return ExitSplitFailed
	}

	// The daemon is adopted by init once this process exits.
	_ = child.Release()
	return ExitOK
}

// announce runs in the daemon stage. It writes the pid to the handoff
// channel and returns the outcome, or a non-zero exit status on failure.
func (d *Daemonizer) announce(p platform) (Outcome, int) {
	p.ignore(d.ignored()...)
	p.clearStage()

	w := p.handoff()
	if w == nil {
		return Outcome{Kind: Failure}, ExitHandoffFailed
	}

	payload, err := FormatPID(p.getpid())
	if err != nil {
		_ = w.Close()
		return Outcome{Kind: Failure}, ExitHandoffFailed
	}

	n, err := w.Write(payload)
	if err != nil || n != len(payload) {
		_ = w.Close()
		return Outcome{Kind: Failure}, ExitHandoffFailed
	}

	// The pid is already delivered; a close error changes nothing for the
	// invoker.
	_ = w.Close()
	return Outcome{Kind: ChildContinues}, ExitOK
}
