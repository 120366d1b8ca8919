// Package broker is the facade over the permission, execution, process,
// elevation, platform and rollback layers. Callers (CLI, file layer)
// invoke named high-level operations; the broker owns the consent
// descriptions, the implicit workspace trust rules and the rollback
// bookkeeping that tie the layers together.
package broker

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/sysgate-io/sysgate/internal/elevate"
	"github.com/sysgate-io/sysgate/internal/executor"
	"github.com/sysgate-io/sysgate/internal/oplog"
	"github.com/sysgate-io/sysgate/internal/permission"
	"github.com/sysgate-io/sysgate/internal/platform"
	"github.com/sysgate-io/sysgate/internal/proc"
)

// Reason classifies why an operation failed. Successful results carry
// ReasonNone.
type Reason string

const (
	ReasonNone                Reason = ""
	ReasonPermissionDenied    Reason = "permission_denied"
	ReasonElevationDenied     Reason = "elevation_denied"
	ReasonUnsupportedPlatform Reason = "unsupported_platform"
	ReasonRollbackUnavailable Reason = "rollback_unavailable"
	ReasonExecutionError      Reason = "execution_error"
)

// Result is the uniform outcome of the non-shell operations. Shell-backed
// operations return the executor's Result instead.
type Result struct {
	Success bool
	Message string
	Reason  Reason
}

func failure(reason Reason, format string, args ...any) Result {
	return Result{Success: false, Message: fmt.Sprintf(format, args...), Reason: reason}
}

func success(format string, args ...any) Result {
	return Result{Success: true, Message: fmt.Sprintf(format, args...)}
}

// Elevator is the privilege surface the broker needs. Satisfied by
// *elevate.Elevator.
type Elevator interface {
	IsElevated() bool
	Elevate(reason string) (bool, error)
}

// DefaultSafeDirs are the workspace subdirectories where write and delete
// are implicitly trusted.
var DefaultSafeDirs = []string{"logs", "cache", "temp", "output"}

// Deps are the collaborators a Broker composes. All of them are injected;
// the broker constructs nothing itself.
type Deps struct {
	Store     *permission.Store
	Gate      *permission.Gate
	Executor  *executor.Executor
	Tracker   *proc.Tracker
	Elevator  Elevator
	Platform  platform.Ops
	Log       *oplog.Log
	Workspace string
	SafeDirs  []string // workspace-relative; nil means DefaultSafeDirs
}

// Broker is the system-operation facade.
type Broker struct {
	store     *permission.Store
	gate      *permission.Gate
	exec      *executor.Executor
	tracker   *proc.Tracker
	elevator  Elevator
	ops       platform.Ops
	log       *oplog.Log
	workspace string
	safeGlobs []string
}

// New wires a broker from its dependencies and registers the registry undo
// routine on the operation log.
func New(deps Deps) (*Broker, error) {
	switch {
	case deps.Store == nil:
		return nil, errors.New("broker requires a permission store")
	case deps.Gate == nil:
		return nil, errors.New("broker requires a consent gate")
	case deps.Executor == nil:
		return nil, errors.New("broker requires an executor")
	case deps.Tracker == nil:
		return nil, errors.New("broker requires a process tracker")
	case deps.Elevator == nil:
		return nil, errors.New("broker requires an elevator")
	case deps.Platform == nil:
		return nil, errors.New("broker requires platform ops")
	case deps.Log == nil:
		return nil, errors.New("broker requires an operation log")
	case deps.Workspace == "":
		return nil, errors.New("broker requires a workspace root")
	}

	safeDirs := deps.SafeDirs
	if safeDirs == nil {
		safeDirs = DefaultSafeDirs
	}
	workspace := permission.Canonicalize(deps.Workspace)
	globs := make([]string, 0, len(safeDirs))
	for _, dir := range safeDirs {
		globs = append(globs, filepath.ToSlash(filepath.Join(workspace, dir))+"/**")
	}

	b := &Broker{
		store:     deps.Store,
		gate:      deps.Gate,
		exec:      deps.Executor,
		tracker:   deps.Tracker,
		elevator:  deps.Elevator,
		ops:       deps.Platform,
		log:       deps.Log,
		workspace: workspace,
		safeGlobs: globs,
	}
	b.log.RegisterUndo(oplog.KindRegistryWrite, b.undoRegistryWrite)
	return b, nil
}

// implicitlyTrusted applies the workspace trust rules checked before the
// permission store: anything under the workspace root may be read, and the
// safe subdirectories additionally allow write and delete. Execute is never
// implicit.
func (b *Broker) implicitlyTrusted(path string, op permission.Operation) bool {
	path = filepath.ToSlash(permission.Canonicalize(path))
	root := filepath.ToSlash(b.workspace)
	inWorkspace := path == root || strings.HasPrefix(path, root+"/")

	switch op {
	case permission.OpRead:
		return inWorkspace
	case permission.OpWrite, permission.OpDelete:
		for _, glob := range b.safeGlobs {
			if ok, err := doublestar.Match(glob, path); err == nil && ok {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// AuthorizeFile decides whether a file action may proceed: implicit
// workspace trust first, then the permission store, then consent. A
// positive consent decision becomes a permanent grant.
func (b *Broker) AuthorizeFile(path string, op permission.Operation) bool {
	canonical := permission.Canonicalize(path)
	if b.implicitlyTrusted(canonical, op) {
		return true
	}
	if b.store.Check(canonical, op) {
		return true
	}
	description := fmt.Sprintf("Allow %s access to %s", op, canonical)
	if !b.gate.Request(canonical, op, description) {
		return false
	}
	b.store.Grant(canonical, []permission.Operation{op}, 0, "user")
	return true
}

// authorize is the consent path for non-file targets (registry keys,
// service names). The target string is the grant key.
func (b *Broker) authorize(target string, op permission.Operation, description string) bool {
	if b.store.Check(target, op) {
		return true
	}
	if !b.gate.Request(target, op, description) {
		return false
	}
	b.store.Grant(target, []permission.Operation{op}, 0, "user")
	return true
}

// elevateFor obtains elevation for operations that need administrator
// rights. A consent denial aborts; an unsupported elevation mechanism does
// not, since the platform backend gives the authoritative refusal.
func (b *Broker) elevateFor(reason string) (Result, bool) {
	if b.elevator.IsElevated() {
		return Result{}, true
	}
	granted, err := b.elevator.Elevate(reason)
	if err != nil {
		if errors.Is(err, elevate.ErrUnsupported) {
			return Result{}, true
		}
		return failure(ReasonExecutionError, "Elevation failed: %v", err), false
	}
	if !granted {
		return failure(ReasonElevationDenied, "Elevation denied: %s", reason), false
	}
	return Result{}, true
}

// ExecuteCommand runs a shell command through the executor. Permission
// denial and timeout semantics live there; the broker only forwards.
func (b *Broker) ExecuteCommand(ctx context.Context, command string, opts executor.Options) executor.Result {
	return b.exec.Execute(ctx, command, opts)
}

// ExecuteScript runs a script file by interpreter, keyed on the script
// path rather than a command token.
func (b *Broker) ExecuteScript(ctx context.Context, path string, args []string, opts executor.Options) executor.Result {
	return b.exec.ExecuteScript(ctx, path, args, opts)
}

// InstallPackage installs a Python package with pip. The grant key is the
// pip invocation, not the package, so one consent covers later installs.
func (b *Broker) InstallPackage(ctx context.Context, pkg string, upgrade, userInstall bool) executor.Result {
	if pkg == "" || strings.HasPrefix(pkg, "-") {
		return executor.Result{ExitCode: 1, Stderr: fmt.Sprintf("Invalid package name: %q", pkg)}
	}
	description := fmt.Sprintf("Install Python package: %s", pkg)
	if !b.authorize("pip install", permission.OpExecute, description) {
		return executor.Result{ExitCode: 1, Stderr: "Permission denied"}
	}

	argv := []string{executor.PythonArgv(), "-m", "pip", "install"}
	if upgrade {
		argv = append(argv, "--upgrade")
	}
	if userInstall {
		argv = append(argv, "--user")
	}
	argv = append(argv, pkg)
	return b.exec.RunArgv(ctx, argv, b.workspace, 0)
}

// OpenFile opens a path with the platform's default application. Gated on
// execute since the handler application runs with the file as input.
func (b *Broker) OpenFile(ctx context.Context, path string) Result {
	canonical := permission.Canonicalize(path)
	description := fmt.Sprintf("Open file with default application: %s", canonical)
	if !b.authorize(canonical, permission.OpExecute, description) {
		return failure(ReasonPermissionDenied, "Permission denied: %s", canonical)
	}

	argv := openerArgv(canonical)
	res := b.exec.RunArgv(ctx, argv, b.workspace, 0)
	if res.ExitCode != 0 {
		return failure(ReasonExecutionError, "Failed to open %s: %s", canonical, strings.TrimSpace(res.Stderr))
	}
	return success("Opened %s", canonical)
}

// GetProcessStatus returns the tracker's snapshot for a background id.
func (b *Broker) GetProcessStatus(id string) proc.Status {
	return b.tracker.Status(id)
}

// ListProcesses returns the ids of all tracked background processes.
func (b *Broker) ListProcesses() []string {
	return b.tracker.List()
}

// KillProcess terminates a background process. False only for unknown ids.
func (b *Broker) KillProcess(id string) bool {
	return b.tracker.Kill(id)
}

// ElevatePrivileges requests elevation. On some platforms success means
// the process is being relaunched and this call never returns.
func (b *Broker) ElevatePrivileges(reason string) (bool, error) {
	return b.elevator.Elevate(reason)
}

// RollbackLastOperation undoes the most recent reversible mutation.
func (b *Broker) RollbackLastOperation() bool {
	return b.log.Rollback()
}

// CanRollback reports whether a rollback is currently available.
func (b *Broker) CanRollback() bool {
	return b.log.CanRollback()
}
