//go:build !windows

package daemon

import (
	"bytes"
	"errors"
	"os"
	"reflect"
	"strings"
	"syscall"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"github.com/inercia/violet/pkg/common"
)

// fakePlatform runs stages as goroutines. The spawned stage receives its own
// duplicate of the handoff write end, like a real child would.
type fakePlatform struct {
	current   StageName
	pipeErr   error
	spawnErr  error
	setsidErr error
	pid       int

	// run plays the spawned stage. It owns w and must close it.
	run        func(w *os.File)
	exitStatus int

	handoffFile *os.File

	r, w     *os.File
	spawned  []StageName
	ignored  []os.Signal
	cleared  bool
	exited   []int
	waited   bool
	released bool
}

func (f *fakePlatform) stage() StageName { return f.current }

func (f *fakePlatform) pipe() (*os.File, *os.File, error) {
	if f.pipeErr != nil {
		return nil, nil, f.pipeErr
	}
	r, w, err := os.Pipe()
	f.r, f.w = r, w
	return r, w, err
}

func (f *fakePlatform) spawn(next StageName, w *os.File) (process, error) {
	f.spawned = append(f.spawned, next)
	if f.spawnErr != nil {
		return nil, f.spawnErr
	}

	fd, err := unix.FcntlInt(w.Fd(), unix.F_DUPFD_CLOEXEC, 0)
	if err != nil {
		return nil, err
	}
	dup := os.NewFile(uintptr(fd), "fake-handoff")

	done := make(chan struct{})
	go func() {
		defer close(done)
		if f.run != nil {
			f.run(dup)
			return
		}
		_ = dup.Close()
	}()

	return &fakeProcess{owner: f, done: done}, nil
}

func (f *fakePlatform) handoff() *os.File { return f.handoffFile }

func (f *fakePlatform) setsid() error { return f.setsidErr }

func (f *fakePlatform) ignore(sigs ...os.Signal) { f.ignored = append(f.ignored, sigs...) }

func (f *fakePlatform) clearStage() { f.cleared = true }

func (f *fakePlatform) getpid() int { return f.pid }

func (f *fakePlatform) exit(code int) { f.exited = append(f.exited, code) }

type fakeProcess struct {
	owner *fakePlatform
	done  chan struct{}
}

func (p *fakeProcess) Pid() int { return 1000 }

func (p *fakeProcess) Wait() (int, error) {
	<-p.done
	p.owner.waited = true
	return p.owner.exitStatus, nil
}

func (p *fakeProcess) Release() error {
	p.owner.released = true
	return nil
}

// daemonizeWithin runs Daemonize and fails the test if it does not return in
// time, so a hang shows up as a failure instead of a stuck test binary.
func daemonizeWithin(t *testing.T, d *Daemonizer, limit time.Duration) (Outcome, error) {
	t.Helper()

	type result struct {
		out Outcome
		err error
	}
	ch := make(chan result, 1)
	go func() {
		out, err := d.Daemonize()
		ch <- result{out, err}
	}()

	select {
	case res := <-ch:
		return res.out, res.err
	case <-time.After(limit):
		t.Fatalf("Daemonize did not return within %s", limit)
		return Outcome{}, nil
	}
}

func assertClosed(t *testing.T, name string, f *os.File) {
	t.Helper()
	if f == nil {
		t.Fatalf("%s was never created", name)
	}
	if err := f.Close(); !errors.Is(err, os.ErrClosed) {
		t.Errorf("%s is still open (second Close returned %v)", name, err)
	}
}

func writeAndClose(payload string) func(w *os.File) {
	return func(w *os.File) {
		if payload != "" {
			_, _ = w.Write([]byte(payload))
		}
		_ = w.Close()
	}
}

// resetDaemonized clears the process-wide daemonized flag after a test that
// plays the daemon stage in-process.
func resetDaemonized(t *testing.T) {
	t.Helper()
	t.Cleanup(func() { daemonized.Store(false) })
}

func TestInvokeSuccess(t *testing.T) {
	fake := &fakePlatform{run: writeAndClose("31337\n")}
	d := &Daemonizer{sys: fake}

	out, err := daemonizeWithin(t, d, 5*time.Second)
	if err != nil {
		t.Fatalf("Daemonize failed: %v", err)
	}
	if out.Kind != ParentSuccess || out.PID != 31337 {
		t.Errorf("Daemonize() = %+v, want ParentSuccess with pid 31337", out)
	}
	if !reflect.DeepEqual(fake.spawned, []StageName{StageIntermediate}) {
		t.Errorf("spawned stages = %v, want only the intermediate stage", fake.spawned)
	}
	if !fake.waited {
		t.Error("intermediate process was not reaped")
	}
	assertClosed(t, "read end", fake.r)
	assertClosed(t, "write end", fake.w)
}

func TestInvokeShortReads(t *testing.T) {
	fake := &fakePlatform{run: func(w *os.File) {
		_, _ = w.Write([]byte("12"))
		time.Sleep(20 * time.Millisecond)
		_, _ = w.Write([]byte("34\n"))
		_ = w.Close()
	}}
	d := &Daemonizer{sys: fake}

	out, err := daemonizeWithin(t, d, 5*time.Second)
	if err != nil {
		t.Fatalf("Daemonize failed: %v", err)
	}
	if out.PID != 1234 {
		t.Errorf("pid = %d, want 1234", out.PID)
	}
}

func TestInvokeResourceError(t *testing.T) {
	fake := &fakePlatform{pipeErr: syscall.EMFILE}
	d := &Daemonizer{sys: fake}

	out, err := d.Daemonize()
	if out.Kind != Failure {
		t.Errorf("Kind = %v, want failure", out.Kind)
	}
	if !errors.Is(err, ErrResource) {
		t.Errorf("error = %v, want ErrResource", err)
	}
	if !errors.Is(err, syscall.EMFILE) {
		t.Errorf("error = %v, does not wrap the cause", err)
	}
	if len(fake.spawned) != 0 {
		t.Errorf("spawned %v without a handoff channel", fake.spawned)
	}
}

func TestStageFailuresAreLogged(t *testing.T) {
	tests := []struct {
		name  string
		stage StageName
		want  string
	}{
		{name: "intermediate", stage: StageIntermediate, want: "intermediate stage failed: pid handoff failed"},
		{name: "daemon", stage: StageDaemon, want: "daemon stage failed: pid handoff failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			fake := &fakePlatform{current: tt.stage, pid: 10}
			d := &Daemonizer{sys: fake, Logger: common.NewWriterLogger(&buf, "", common.LogLevelError)}

			if _, err := d.Daemonize(); !errors.Is(err, errStageExited) {
				t.Fatalf("Daemonize() error = %v, want the stage to exit", err)
			}
			if !strings.Contains(buf.String(), tt.want) {
				t.Errorf("log = %q, want it to contain %q", buf.String(), tt.want)
			}
			if IsDaemonized() {
				t.Error("IsDaemonized() is true after the stage failed")
			}
		})
	}
}

func TestInvokeSplitFailureClosesBothEnds(t *testing.T) {
	fake := &fakePlatform{spawnErr: syscall.EAGAIN}
	d := &Daemonizer{sys: fake}

	out, err := d.Daemonize()
	if out.Kind != Failure || out.PID != 0 {
		t.Errorf("Daemonize() = %+v, want failure", out)
	}
	if !errors.Is(err, ErrSplit) {
		t.Errorf("error = %v, want ErrSplit", err)
	}
	assertClosed(t, "read end", fake.r)
	assertClosed(t, "write end", fake.w)
}

func TestInvokeChildFailures(t *testing.T) {
	tests := []struct {
		name       string
		payload    string
		exitStatus int
		want       error
	}{
		{name: "detach failed", exitStatus: ExitDetachFailed, want: ErrDetach},
		{name: "second split failed", exitStatus: ExitSplitFailed, want: ErrSplit},
		{name: "daemon died before writing", exitStatus: ExitOK, want: ErrHandoff},
		{name: "daemon write failed", exitStatus: ExitHandoffFailed, want: ErrHandoff},
		{name: "payload without line feed", payload: "123", want: ErrHandoff},
		{name: "non numeric payload", payload: "abc\n", want: ErrHandoff},
		{name: "zero pid", payload: "0\n", want: ErrHandoff},
		{name: "oversized payload", payload: strings.Repeat("7", 40) + "\n", want: ErrHandoff},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakePlatform{run: writeAndClose(tt.payload), exitStatus: tt.exitStatus}
			d := &Daemonizer{sys: fake}

			out, err := daemonizeWithin(t, d, 5*time.Second)
			if out.Kind != Failure || out.PID != 0 {
				t.Errorf("Daemonize() = %+v, want failure without pid", out)
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
			assertClosed(t, "read end", fake.r)
			assertClosed(t, "write end", fake.w)
		})
	}
}

func TestInvokeHandoffTimeout(t *testing.T) {
	hold := make(chan struct{})
	defer close(hold)

	fake := &fakePlatform{run: func(w *os.File) {
		<-hold
		_ = w.Close()
	}}
	d := &Daemonizer{sys: fake, HandoffTimeout: 50 * time.Millisecond}

	out, err := daemonizeWithin(t, d, 5*time.Second)
	if out.Kind != Failure {
		t.Errorf("Kind = %v, want failure", out.Kind)
	}
	if !errors.Is(err, ErrHandoff) || !errors.Is(err, os.ErrDeadlineExceeded) {
		t.Errorf("error = %v, want ErrHandoff caused by the deadline", err)
	}
	if !fake.released {
		t.Error("intermediate process was neither reaped nor released")
	}
}

func TestDetach(t *testing.T) {
	tests := []struct {
		name        string
		setsidErr   error
		spawnErr    error
		wantCode    int
		wantSpawned []StageName
		wantIgnored bool
		wantPayload string
	}{
		{
			name:        "success",
			wantCode:    ExitOK,
			wantSpawned: []StageName{StageDaemon},
			wantIgnored: true,
			wantPayload: "99\n",
		},
		{
			name:      "setsid fails",
			setsidErr: syscall.EPERM,
			wantCode:  ExitDetachFailed,
		},
		{
			name:        "second split fails",
			spawnErr:    syscall.EAGAIN,
			wantCode:    ExitSplitFailed,
			wantSpawned: []StageName{StageDaemon},
			wantIgnored: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, w, err := os.Pipe()
			if err != nil {
				t.Fatalf("failed to create pipe: %v", err)
			}
			defer r.Close()

			fake := &fakePlatform{
				current:     StageIntermediate,
				setsidErr:   tt.setsidErr,
				spawnErr:    tt.spawnErr,
				handoffFile: w,
				run:         writeAndClose("99\n"),
			}
			d := &Daemonizer{sys: fake}

			if code := d.detach(fake); code != tt.wantCode {
				t.Errorf("detach() = %d, want %d", code, tt.wantCode)
			}
			if !reflect.DeepEqual(fake.spawned, tt.wantSpawned) {
				t.Errorf("spawned = %v, want %v", fake.spawned, tt.wantSpawned)
			}
			if tt.wantIgnored && !reflect.DeepEqual(fake.ignored, defaultIgnoredSignals) {
				t.Errorf("ignored signals = %v, want %v", fake.ignored, defaultIgnoredSignals)
			}
			if !tt.wantIgnored && len(fake.ignored) != 0 {
				t.Errorf("ignored signals = %v, want none", fake.ignored)
			}
			assertClosed(t, "intermediate handoff", w)

			// All write ends are gone once the simulated daemon is done, so the
			// reader sees either the payload or a clean end of input.
			payload, err := readPayload(r)
			if err != nil {
				t.Fatalf("reading handoff channel: %v", err)
			}
			if string(payload) != tt.wantPayload {
				t.Errorf("handoff channel carried %q, want %q", payload, tt.wantPayload)
			}
		})
	}
}

func TestDetachWithoutHandoff(t *testing.T) {
	fake := &fakePlatform{current: StageIntermediate}
	d := &Daemonizer{sys: fake}

	out, err := d.Daemonize()
	if out.Kind != Failure || !errors.Is(err, errStageExited) {
		t.Errorf("Daemonize() = %+v, %v; want the stage to exit", out, err)
	}
	if !reflect.DeepEqual(fake.exited, []int{ExitHandoffFailed}) {
		t.Errorf("exit statuses = %v, want [%d]", fake.exited, ExitHandoffFailed)
	}
	if len(fake.spawned) != 0 {
		t.Errorf("spawned %v without a handoff channel", fake.spawned)
	}
}

func TestAnnounce(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("failed to create pipe: %v", err)
	}
	defer r.Close()

	resetDaemonized(t)
	fake := &fakePlatform{current: StageDaemon, pid: 777, handoffFile: w}
	d := &Daemonizer{sys: fake}

	out, err := d.Daemonize()
	if err != nil {
		t.Fatalf("Daemonize failed: %v", err)
	}
	if out.Kind != ChildContinues {
		t.Errorf("Kind = %v, want child-continues", out.Kind)
	}
	if !IsDaemonized() {
		t.Error("IsDaemonized() is false after the daemon stage returned")
	}
	if out.PID != 0 {
		t.Errorf("daemon got pid %d, want none", out.PID)
	}
	if !fake.cleared {
		t.Error("stage marker was not cleared")
	}
	if !reflect.DeepEqual(fake.ignored, defaultIgnoredSignals) {
		t.Errorf("ignored signals = %v, want %v", fake.ignored, defaultIgnoredSignals)
	}
	if len(fake.exited) != 0 {
		t.Errorf("daemon stage exited with %v", fake.exited)
	}
	assertClosed(t, "daemon handoff", w)

	payload, err := readPayload(r)
	if err != nil {
		t.Fatalf("reading handoff channel: %v", err)
	}
	if string(payload) != "777\n" {
		t.Errorf("handoff channel carried %q, want %q", payload, "777\n")
	}
}

func TestAnnounceFailures(t *testing.T) {
	tests := []struct {
		name       string
		pid        int
		readerGone bool
	}{
		{name: "broken channel", pid: 777, readerGone: true},
		{name: "invalid pid", pid: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, w, err := os.Pipe()
			if err != nil {
				t.Fatalf("failed to create pipe: %v", err)
			}
			if tt.readerGone {
				_ = r.Close()
			} else {
				defer r.Close()
			}

			fake := &fakePlatform{current: StageDaemon, pid: tt.pid, handoffFile: w}
			d := &Daemonizer{sys: fake}

			out, err := d.Daemonize()
			if out.Kind != Failure || !errors.Is(err, errStageExited) {
				t.Errorf("Daemonize() = %+v, %v; want the stage to exit", out, err)
			}
			if !reflect.DeepEqual(fake.exited, []int{ExitHandoffFailed}) {
				t.Errorf("exit statuses = %v, want [%d]", fake.exited, ExitHandoffFailed)
			}
			assertClosed(t, "daemon handoff", w)
		})
	}
}

func TestIgnoredSignalsOverride(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("failed to create pipe: %v", err)
	}
	defer r.Close()

	resetDaemonized(t)
	fake := &fakePlatform{current: StageDaemon, pid: 10, handoffFile: w}
	d := &Daemonizer{sys: fake, IgnoredSignals: []os.Signal{syscall.SIGUSR1}}

	if _, err := d.Daemonize(); err != nil {
		t.Fatalf("Daemonize failed: %v", err)
	}
	if !reflect.DeepEqual(fake.ignored, []os.Signal{syscall.SIGUSR1}) {
		t.Errorf("ignored signals = %v, want [SIGUSR1]", fake.ignored)
	}
}

func TestUnknownStage(t *testing.T) {
	fake := &fakePlatform{current: "bogus"}
	d := &Daemonizer{sys: fake}

	out, err := d.Daemonize()
	if out.Kind != Failure || !errors.Is(err, ErrSplit) {
		t.Errorf("Daemonize() = %+v, %v; want ErrSplit", out, err)
	}
	if len(fake.spawned) != 0 || len(fake.exited) != 0 {
		t.Errorf("unknown stage spawned %v and exited %v", fake.spawned, fake.exited)
	}
}

func TestKindString(t *testing.T) {
	for kind, want := range map[Kind]string{
		Failure:        "failure",
		ParentSuccess:  "parent-success",
		ChildContinues: "child-continues",
	} {
		if got := kind.String(); got != want {
			t.Errorf("Kind(%d).String() = %q, want %q", int(kind), got, want)
		}
	}
}
