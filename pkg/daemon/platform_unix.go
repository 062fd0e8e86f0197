//go:build !windows

package daemon

import (
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"syscall"

	"golang.org/x/sys/unix"
)

var defaultIgnoredSignals = []os.Signal{syscall.SIGHUP, syscall.SIGCHLD}

type unixPlatform struct{}

func newPlatform() platform { return unixPlatform{} }

func (unixPlatform) stage() StageName { return Stage() }

func (unixPlatform) pipe() (*os.File, *os.File, error) { return os.Pipe() }

func (unixPlatform) spawn(next StageName, w *os.File) (process, error) {
	executable, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("failed to get executable path: %w", err)
	}

	workDir, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get working directory: %w", err)
	}

	cmd := exec.Command(executable)
	cmd.Args = append([]string(nil), os.Args...)
	cmd.Dir = workDir
	cmd.Env = append(environWithout(StageEnv), StageEnv+"="+string(next))
	// nil stdio is connected to the null device
	cmd.Stdin, cmd.Stdout, cmd.Stderr = nil, nil, nil
	cmd.ExtraFiles = []*os.File{w}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s stage: %w", next, err)
	}
	return &execProcess{cmd: cmd}, nil
}

func (unixPlatform) handoff() *os.File {
	if _, err := unix.FcntlInt(handoffFD, unix.F_GETFD, 0); err != nil {
		return nil
	}
	// Keep the descriptor out of anything but the explicit next stage.
	syscall.CloseOnExec(handoffFD)
	return os.NewFile(handoffFD, "violet-handoff")
}

func (unixPlatform) setsid() error {
	_, err := unix.Setsid()
	return err
}

func (unixPlatform) ignore(sigs ...os.Signal) { signal.Ignore(sigs...) }

func (unixPlatform) clearStage() { _ = os.Unsetenv(StageEnv) }

func (unixPlatform) getpid() int { return os.Getpid() }

func (unixPlatform) exit(code int) { os.Exit(code) }

func environWithout(key string) []string {
	env := os.Environ()
	out := env[:0:0]
	for _, kv := range env {
		if strings.HasPrefix(kv, key+"=") {
			continue
		}
		out = append(out, kv)
	}
	return out
}

type execProcess struct {
	cmd *exec.Cmd
}

func (p *execProcess) Pid() int { return p.cmd.Process.Pid }

func (p *execProcess) Wait() (int, error) {
	err := p.cmd.Wait()
	if exitErr, ok := err.(*exec.ExitError); ok {
		return exitErr.ExitCode(), nil
	}
	if err != nil {
		return -1, err
	}
	return p.cmd.ProcessState.ExitCode(), nil
}

func (p *execProcess) Release() error { return p.cmd.Process.Release() }
