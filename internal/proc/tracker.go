// Package proc tracks background command executions and exposes poll/kill.
package proc

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"sync"

	"github.com/oklog/ulid/v2"

	"github.com/sysgate-io/sysgate/internal/event"
	"github.com/sysgate-io/sysgate/internal/logging"
)

// State is the lifecycle state of a background process.
type State string

const (
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateKilled    State = "killed"
)

// Status is a point-in-time snapshot of a tracked process. Output and exit
// code are populated only once the process reaches a terminal state.
type Status struct {
	Exists   bool
	State    State
	ExitCode int
	Stdout   string
	Stderr   string
}

// Completed reports whether the process reached a terminal state.
func (s Status) Completed() bool {
	return s.Exists && s.State != StateRunning
}

// record is the tracker's view of one launched process. The worker
// goroutine writes the terminal fields exactly once, under the tracker
// mutex, when the process exits.
type record struct {
	id         string
	command    string
	workingDir string
	state      State
	exitCode   int
	stdout     *bytes.Buffer
	stderr     *bytes.Buffer
	stdoutText string // snapshot taken at the terminal transition
	stderrText string
	cmd        *exec.Cmd
}

// Tracker is a thread-safe registry of background executions.
type Tracker struct {
	mu    sync.Mutex
	procs map[string]*record
	shell string
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{
		procs: make(map[string]*record),
		shell: DetectShell(),
	}
}

// Launch starts command detached in cwd, registers it as running, and
// returns its id immediately.
func (t *Tracker) Launch(command, cwd string) (string, error) {
	return t.launch(shellCommand(t.shell, command), command, cwd)
}

// LaunchArgv starts an argument vector directly, without shell
// interpretation, for script execution.
func (t *Tracker) LaunchArgv(argv []string, cwd string) (string, error) {
	if len(argv) == 0 {
		return "", errors.New("empty argument vector")
	}
	return t.launch(exec.Command(argv[0], argv[1:]...), strings.Join(argv, " "), cwd)
}

func (t *Tracker) launch(cmd *exec.Cmd, command, cwd string) (string, error) {
	cmd.Dir = cwd
	cmd.Env = os.Environ()

	// Process group so Kill reaches children too.
	SetProcessGroup(cmd)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return "", fmt.Errorf("failed to start process: %w", err)
	}

	rec := &record{
		id:         ulid.Make().String(),
		command:    command,
		workingDir: cwd,
		state:      StateRunning,
		stdout:     &stdout,
		stderr:     &stderr,
		cmd:        cmd,
	}

	t.mu.Lock()
	t.procs[rec.id] = rec
	t.mu.Unlock()

	logging.Info().Str("id", rec.id).Str("command", command).Msg("background process started")
	event.Publish(event.Event{
		Type: event.ProcessStarted,
		Data: event.ProcessData{ID: rec.id, Command: command},
	})

	go t.wait(rec)

	return rec.id, nil
}

// wait blocks on process exit and records the terminal state, unless Kill
// got there first.
func (t *Tracker) wait(rec *record) {
	err := rec.cmd.Wait()

	t.mu.Lock()
	if rec.state != StateRunning {
		// Kill already finalized the record; the natural exit lost the
		// race. The output copiers are done only now that Wait returned,
		// so the stdout snapshot is taken here rather than in Kill.
		rec.stdoutText = rec.stdout.String()
		t.mu.Unlock()
		return
	}
	rec.state = StateCompleted
	if rec.cmd.ProcessState != nil {
		rec.exitCode = rec.cmd.ProcessState.ExitCode()
	} else if err != nil {
		rec.exitCode = 1
	}
	rec.stdoutText = rec.stdout.String()
	rec.stderrText = rec.stderr.String()
	exitCode := rec.exitCode
	t.mu.Unlock()

	logging.Debug().Str("id", rec.id).Int("exit", exitCode).Msg("background process exited")
	event.Publish(event.Event{
		Type: event.ProcessExited,
		Data: event.ProcessData{ID: rec.id, Command: rec.command, ExitCode: exitCode},
	})
}

// Status returns a snapshot of the process. Exists is false for unknown ids.
func (t *Tracker) Status(id string) Status {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.procs[id]
	if !ok {
		return Status{}
	}

	status := Status{Exists: true, State: rec.state}
	if rec.state != StateRunning {
		status.ExitCode = rec.exitCode
		status.Stdout = rec.stdoutText
		status.Stderr = rec.stderrText
	}
	return status
}

// Kill terminates a running process. Terminal records are an idempotent
// no-op returning true; unknown ids return false.
func (t *Tracker) Kill(id string) bool {
	t.mu.Lock()
	rec, ok := t.procs[id]
	if !ok {
		t.mu.Unlock()
		return false
	}
	if rec.state != StateRunning {
		t.mu.Unlock()
		return true
	}

	terminate(rec.cmd)

	// stdout is still being appended to by the exec copier until Wait
	// returns; wait() snapshots it once the process is reaped.
	rec.state = StateKilled
	rec.exitCode = 1
	rec.stderrText = "Process was killed"
	t.mu.Unlock()

	logging.Info().Str("id", id).Msg("background process killed")
	event.Publish(event.Event{
		Type: event.ProcessKilled,
		Data: event.ProcessData{ID: id, Command: rec.command, ExitCode: 1},
	})
	return true
}

// List returns the ids of all tracked processes.
func (t *Tracker) List() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	ids := make([]string, 0, len(t.procs))
	for id := range t.procs {
		ids = append(ids, id)
	}
	return ids
}

// shellCommand builds the exec.Cmd to run command through the shell.
func shellCommand(shell, command string) *exec.Cmd {
	if runtime.GOOS == "windows" {
		return exec.Command(shell, "/c", command)
	}
	return exec.Command(shell, "-c", command)
}

// DetectShell picks the shell used for command execution.
func DetectShell() string {
	if s := os.Getenv("SHELL"); s != "" {
		// Exclude unsupported shells
		if s != "/bin/fish" && s != "/usr/bin/fish" &&
			s != "/bin/nu" && s != "/usr/bin/nu" {
			return s
		}
	}

	if runtime.GOOS == "darwin" {
		return "/bin/zsh"
	}
	if runtime.GOOS == "windows" {
		if comspec := os.Getenv("COMSPEC"); comspec != "" {
			return comspec
		}
		return "cmd.exe"
	}

	if bash, err := exec.LookPath("bash"); err == nil {
		return bash
	}

	return "/bin/sh"
}
