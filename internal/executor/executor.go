// Package executor runs shell commands and scripts under the permission
// flow, synchronously or as tracked background processes.
package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/sysgate-io/sysgate/internal/logging"
	"github.com/sysgate-io/sysgate/internal/oplog"
	"github.com/sysgate-io/sysgate/internal/permission"
	"github.com/sysgate-io/sysgate/internal/proc"
)

// DefaultTimeout bounds synchronous execution when the caller supplies none.
const DefaultTimeout = 5 * time.Minute

// Result is the uniform outcome of a command execution. Permission
// denials, spawn failures and timeouts all surface here rather than as
// errors, so every command path has the same shape.
type Result struct {
	ExitCode     int
	Stdout       string
	Stderr       string
	BackgroundID string // set only for background launches
}

// Options controls a single execution.
type Options struct {
	Cwd        string        // working directory; defaults to the workspace root
	Timeout    time.Duration // synchronous mode only
	Background bool
}

// Executor runs commands, honoring the safe-command allow-list and the
// permission store before anything is spawned.
type Executor struct {
	store     *permission.Store
	gate      *permission.Gate
	tracker   *proc.Tracker
	log       *oplog.Log
	workspace string
	shell     string
	timeout   time.Duration
	extraSafe map[string]bool
}

// Option configures an Executor.
type Option func(*Executor)

// WithDefaultTimeout overrides the synchronous execution timeout.
func WithDefaultTimeout(d time.Duration) Option {
	return func(e *Executor) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithExtraSafeCommands extends the safe-command set with site-local names.
func WithExtraSafeCommands(names []string) Option {
	return func(e *Executor) {
		for _, name := range names {
			e.extraSafe[strings.ToLower(name)] = true
		}
	}
}

// New creates an executor rooted at workspace.
func New(store *permission.Store, gate *permission.Gate, tracker *proc.Tracker, log *oplog.Log, workspace string, opts ...Option) *Executor {
	e := &Executor{
		store:     store,
		gate:      gate,
		tracker:   tracker,
		log:       log,
		workspace: workspace,
		shell:     proc.DetectShell(),
		timeout:   DefaultTimeout,
		extraSafe: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// isSafe reports whether the command bypasses the permission flow.
func (e *Executor) isSafe(command string) bool {
	if permission.IsSafeCommand(command) {
		return true
	}
	if len(e.extraSafe) == 0 {
		return false
	}
	commands, err := permission.ParseCommand(command)
	if err != nil || len(commands) == 0 {
		return false
	}
	for _, cmd := range commands {
		if !e.extraSafe[strings.ToLower(cmd.Name)] {
			return false
		}
	}
	return true
}

// authorize runs the permission flow for a grant key. A consented approval
// is stored permanently so the same key never re-prompts.
func (e *Executor) authorize(key string, description string) bool {
	if e.store.Check(key, permission.OpExecute) {
		return true
	}
	if !e.gate.Request(key, permission.OpExecute, description) {
		return false
	}
	e.store.Grant(key, []permission.Operation{permission.OpExecute}, 0, "user")
	return true
}

// Execute runs a shell command. Safe-listed commands skip consent
// entirely; everything else is keyed on the command's first token. In
// background mode the returned result carries the process id and the
// call does not block on completion.
func (e *Executor) Execute(ctx context.Context, command string, opts Options) Result {
	cwd := opts.Cwd
	if cwd == "" {
		cwd = e.workspace
	}

	if !e.isSafe(command) {
		token := permission.FirstToken(command)
		if !e.authorize(token, fmt.Sprintf("Execute command: %s", command)) {
			logging.Warn().Str("command", command).Msg("command execution denied")
			return Result{ExitCode: 1, Stderr: "Permission denied"}
		}
	}

	if opts.Background {
		id, err := e.tracker.Launch(command, cwd)
		if err != nil {
			return Result{ExitCode: 1, Stderr: fmt.Sprintf("Error: %v", err)}
		}
		return Result{
			Stdout:       fmt.Sprintf("Started background process. Process ID: %s", id),
			BackgroundID: id,
		}
	}

	logging.Info().Str("command", command).Str("cwd", cwd).Msg("executing command")
	result := e.runShell(ctx, command, cwd, opts.Timeout)
	e.log.Record(oplog.KindGeneric, command, nil, false)
	return result
}

// ExecuteScript runs an interpreter plus script as an argument vector,
// never as a shell string, keyed on the script path for permission.
func (e *Executor) ExecuteScript(ctx context.Context, scriptPath string, args []string, opts Options) Result {
	resolved := permission.Canonicalize(scriptPath)
	if _, err := os.Stat(resolved); err != nil {
		return Result{ExitCode: 1, Stderr: fmt.Sprintf("Script not found: %s", scriptPath)}
	}

	if !e.authorize(resolved, fmt.Sprintf("Execute script: %s", resolved)) {
		logging.Warn().Str("script", resolved).Msg("script execution denied")
		return Result{ExitCode: 1, Stderr: "Permission denied"}
	}

	argv := append(interpreterFor(resolved), resolved)
	argv = append(argv, args...)

	cwd := opts.Cwd
	if cwd == "" {
		cwd = e.workspace
	}

	if opts.Background {
		id, err := e.tracker.LaunchArgv(argv, cwd)
		if err != nil {
			return Result{ExitCode: 1, Stderr: fmt.Sprintf("Error: %v", err)}
		}
		return Result{
			Stdout:       fmt.Sprintf("Started background process. Process ID: %s", id),
			BackgroundID: id,
		}
	}

	logging.Info().Str("script", resolved).Msg("executing script")
	return e.RunArgv(ctx, argv, cwd, opts.Timeout)
}

// runShell executes command through the shell with output capture.
func (e *Executor) runShell(ctx context.Context, command, cwd string, timeout time.Duration) Result {
	var cmd func(ctx context.Context) *exec.Cmd
	if runtime.GOOS == "windows" {
		cmd = func(ctx context.Context) *exec.Cmd { return exec.CommandContext(ctx, e.shell, "/c", command) }
	} else {
		cmd = func(ctx context.Context) *exec.Cmd { return exec.CommandContext(ctx, e.shell, "-c", command) }
	}
	return e.run(ctx, cmd, cwd, timeout)
}

// RunArgv executes an argument vector with output capture. Callers are
// responsible for having passed the permission flow already.
func (e *Executor) RunArgv(ctx context.Context, argv []string, cwd string, timeout time.Duration) Result {
	if len(argv) == 0 {
		return Result{ExitCode: 1, Stderr: "Error: empty argument vector"}
	}
	return e.run(ctx, func(ctx context.Context) *exec.Cmd {
		return exec.CommandContext(ctx, argv[0], argv[1:]...)
	}, cwd, timeout)
}

func (e *Executor) run(ctx context.Context, build func(context.Context) *exec.Cmd, cwd string, timeout time.Duration) Result {
	if timeout <= 0 {
		timeout = e.timeout
	}
	cmdCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := build(cmdCtx)
	cmd.Dir = cwd
	cmd.Env = os.Environ()
	proc.SetProcessGroup(cmd)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	if cmdCtx.Err() == context.DeadlineExceeded {
		logging.Warn().Str("cwd", cwd).Dur("timeout", timeout).Msg("command timed out")
		return Result{ExitCode: 1, Stdout: stdout.String(), Stderr: "Command timed out"}
	}

	result := Result{Stdout: stdout.String(), Stderr: stderr.String()}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		} else {
			result.ExitCode = 1
			result.Stderr = fmt.Sprintf("Error: %v", err)
		}
	}
	return result
}

// interpreterFor picks the interpreter argv prefix for a script.
func interpreterFor(path string) []string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".py":
		if runtime.GOOS == "windows" {
			return []string{"python"}
		}
		return []string{"python3"}
	case ".sh":
		return []string{"bash"}
	case ".ps1":
		return []string{"powershell", "-File"}
	default:
		// Run the file itself; it must be executable.
		return nil
	}
}

// PythonArgv returns the interpreter argv used to run python tooling such
// as pip.
func PythonArgv() string {
	if runtime.GOOS == "windows" {
		return "python"
	}
	return "python3"
}
