// Package elevate detects the process privilege level and relaunches the
// process elevated on demand.
package elevate

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"

	"github.com/sysgate-io/sysgate/internal/event"
	"github.com/sysgate-io/sysgate/internal/logging"
	"github.com/sysgate-io/sysgate/internal/permission"
)

// ErrUnsupported is returned when the platform has no elevation mechanism.
var ErrUnsupported = errors.New("privilege elevation is not supported on this platform")

// Elevator requests higher OS privileges for the current process. A
// successful elevation relaunches the executable and never returns;
// callers must treat process exit as the success signal.
type Elevator struct {
	gate     *permission.Gate
	goos     string
	geteuid  func() int
	winAdmin func() bool
	relaunch func() error
	exit     func(code int)
}

// Option configures an Elevator, mainly for tests.
type Option func(*Elevator)

// WithPlatform overrides the detected platform.
func WithPlatform(goos string) Option {
	return func(e *Elevator) {
		e.goos = goos
	}
}

// WithRelaunch overrides the relaunch step.
func WithRelaunch(fn func() error) Option {
	return func(e *Elevator) {
		e.relaunch = fn
	}
}

// WithEuidProbe overrides the effective UID probe.
func WithEuidProbe(fn func() int) Option {
	return func(e *Elevator) {
		e.geteuid = fn
	}
}

// WithAdminProbe overrides the windows administrator check.
func WithAdminProbe(fn func() bool) Option {
	return func(e *Elevator) {
		e.winAdmin = fn
	}
}

// WithExit overrides the process exit taken after a successful relaunch.
func WithExit(fn func(code int)) Option {
	return func(e *Elevator) {
		e.exit = fn
	}
}

// New creates an elevator that obtains consent through gate.
func New(gate *permission.Gate, opts ...Option) *Elevator {
	e := &Elevator{
		gate:    gate,
		goos:    runtime.GOOS,
		geteuid: os.Geteuid,
	}
	// `net session` succeeds only for administrators.
	e.winAdmin = func() bool {
		return exec.Command("net", "session").Run() == nil
	}
	e.relaunch = e.relaunchElevated
	e.exit = os.Exit
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// IsElevated reports whether the process already has elevated privileges:
// an administrator token on windows, effective UID 0 elsewhere.
func (e *Elevator) IsElevated() bool {
	if e.goos == "windows" {
		return e.winAdmin()
	}
	return e.geteuid() == 0
}

// Elevate asks for consent and relaunches the process with elevated
// privileges. It returns true immediately if already elevated, false when
// consent is denied, and false with ErrUnsupported on platforms without an
// elevation mechanism. On a successful relaunch the current process exits.
func (e *Elevator) Elevate(reason string) (bool, error) {
	if e.IsElevated() {
		return true, nil
	}

	description := fmt.Sprintf("Elevate privileges to administrator: %s", reason)
	granted := e.gate.Request("elevation", permission.OpExecute, description)

	event.Publish(event.Event{
		Type: event.ElevationRequested,
		Data: event.ElevationRequestedData{Reason: reason, Granted: granted},
	})

	if !granted {
		logging.Info().Str("reason", reason).Msg("elevation denied")
		return false, nil
	}

	if e.goos != "windows" {
		logging.Warn().Str("platform", e.goos).Msg("elevation unsupported")
		return false, ErrUnsupported
	}

	logging.Info().Str("reason", reason).Msg("relaunching elevated")
	if err := e.relaunch(); err != nil {
		logging.Error().Err(err).Msg("elevated relaunch failed")
		return false, err
	}

	// The elevated replacement is starting; this process is done.
	e.exit(0)
	return true, nil
}

// relaunchElevated restarts the current executable with the same arguments
// under a Windows elevation request.
func (e *Elevator) relaunchElevated() error {
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to locate executable: %w", err)
	}

	args := make([]string, 0, len(os.Args)-1)
	for _, arg := range os.Args[1:] {
		args = append(args, fmt.Sprintf("'%s'", strings.ReplaceAll(arg, "'", "''")))
	}

	psArgs := []string{"-Command", fmt.Sprintf("Start-Process -FilePath '%s' -Verb RunAs", exe)}
	if len(args) > 0 {
		psArgs[1] = fmt.Sprintf("Start-Process -FilePath '%s' -ArgumentList %s -Verb RunAs",
			exe, strings.Join(args, ","))
	}

	return exec.Command("powershell", psArgs...).Run()
}
