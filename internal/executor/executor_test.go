package executor

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sysgate-io/sysgate/internal/oplog"
	"github.com/sysgate-io/sysgate/internal/permission"
	"github.com/sysgate-io/sysgate/internal/proc"
)

// countingConsent records every consent request it receives.
type countingConsent struct {
	answer bool
	calls  []string
}

func (c *countingConsent) RequestConsent(description string) bool {
	c.calls = append(c.calls, description)
	return c.answer
}

func newTestExecutor(t *testing.T, consent permission.ConsentProvider) (*Executor, *permission.Store) {
	t.Helper()
	store := permission.NewStore()
	gate := permission.NewGate(store, consent)
	return New(store, gate, proc.NewTracker(), oplog.NewLog(), t.TempDir()), store
}

func TestSafeCommandSkipsConsent(t *testing.T) {
	consent := &countingConsent{answer: false}
	exec, _ := newTestExecutor(t, consent)

	result := exec.Execute(context.Background(), "echo hi", Options{})

	assert.Equal(t, 0, result.ExitCode)
	assert.Equal(t, "hi\n", result.Stdout)
	assert.Empty(t, result.Stderr)
	// The consent stub must never have been invoked.
	assert.Empty(t, consent.calls)
}

func TestUnsafeCommandDenied(t *testing.T) {
	consent := &countingConsent{answer: false}
	exec, _ := newTestExecutor(t, consent)

	result := exec.Execute(context.Background(), "true", Options{})

	assert.Equal(t, 1, result.ExitCode)
	assert.Equal(t, "Permission denied", result.Stderr)
	assert.Len(t, consent.calls, 1)
}

func TestUnsafeCommandConsentOncePerToken(t *testing.T) {
	consent := &countingConsent{answer: true}
	exec, store := newTestExecutor(t, consent)

	first := exec.Execute(context.Background(), "true", Options{})
	assert.Equal(t, 0, first.ExitCode)
	assert.Len(t, consent.calls, 1)

	// Same token again: the stored grant short-circuits the gate.
	second := exec.Execute(context.Background(), "true --flag", Options{})
	assert.Equal(t, 0, second.ExitCode)
	assert.Len(t, consent.calls, 1)

	assert.True(t, store.Check("true", permission.OpExecute))
}

func TestExtraSafeCommands(t *testing.T) {
	consent := &countingConsent{answer: false}
	store := permission.NewStore()
	gate := permission.NewGate(store, consent)
	exec := New(store, gate, proc.NewTracker(), oplog.NewLog(), t.TempDir(),
		WithExtraSafeCommands([]string{"true"}))

	result := exec.Execute(context.Background(), "true", Options{})
	assert.Equal(t, 0, result.ExitCode)
	assert.Empty(t, consent.calls)
}

func TestCommandTimeout(t *testing.T) {
	exec, _ := newTestExecutor(t, &countingConsent{answer: true})

	result := exec.Execute(context.Background(), "sleep 5", Options{Timeout: 100 * time.Millisecond})

	assert.Equal(t, 1, result.ExitCode)
	assert.Equal(t, "Command timed out", result.Stderr)
}

func TestCapturesStderrAndExitCode(t *testing.T) {
	exec, _ := newTestExecutor(t, &countingConsent{answer: true})

	result := exec.Execute(context.Background(), "echo oops >&2; exit 2", Options{})

	assert.Equal(t, 2, result.ExitCode)
	assert.Equal(t, "oops\n", result.Stderr)
}

func TestSyncExecutionRecordsGenericOperation(t *testing.T) {
	store := permission.NewStore()
	gate := permission.NewGate(store, &countingConsent{answer: true})
	log := oplog.NewLog()
	exec := New(store, gate, proc.NewTracker(), log, t.TempDir())

	exec.Execute(context.Background(), "echo hi", Options{})

	op, ok := log.Last()
	require.True(t, ok)
	assert.Equal(t, oplog.KindGeneric, op.Kind)
	assert.False(t, op.RollbackPossible)
}

func TestBackgroundExecution(t *testing.T) {
	consent := &countingConsent{answer: false}
	store := permission.NewStore()
	gate := permission.NewGate(store, consent)
	tracker := proc.NewTracker()
	exec := New(store, gate, tracker, oplog.NewLog(), t.TempDir())

	result := exec.Execute(context.Background(), "echo bg", Options{Background: true})

	assert.Equal(t, 0, result.ExitCode)
	require.NotEmpty(t, result.BackgroundID)
	assert.Contains(t, result.Stdout, result.BackgroundID)

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if tracker.Status(result.BackgroundID).Completed() {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	status := tracker.Status(result.BackgroundID)
	assert.True(t, status.Completed())
	assert.Equal(t, "bg\n", status.Stdout)
}

func TestExecuteScriptNotFound(t *testing.T) {
	exec, _ := newTestExecutor(t, &countingConsent{answer: true})

	result := exec.ExecuteScript(context.Background(), "/no/such/script.py", nil, Options{})

	assert.Equal(t, 1, result.ExitCode)
	assert.Contains(t, result.Stderr, "Script not found")
}

func TestExecuteScript(t *testing.T) {
	consent := &countingConsent{answer: true}
	exec, _ := newTestExecutor(t, consent)

	script := filepath.Join(t.TempDir(), "hello.sh")
	require.NoError(t, os.WriteFile(script, []byte("echo hello from script\n"), 0755))

	result := exec.ExecuteScript(context.Background(), script, nil, Options{})

	assert.Equal(t, 0, result.ExitCode)
	assert.Equal(t, "hello from script\n", result.Stdout)
	// Consent was keyed on the script path, not a command token.
	require.Len(t, consent.calls, 1)
	assert.Contains(t, consent.calls[0], script)
}

func TestExecuteScriptDenied(t *testing.T) {
	exec, _ := newTestExecutor(t, &countingConsent{answer: false})

	script := filepath.Join(t.TempDir(), "hello.sh")
	require.NoError(t, os.WriteFile(script, []byte("echo hi\n"), 0755))

	result := exec.ExecuteScript(context.Background(), script, nil, Options{})
	assert.Equal(t, 1, result.ExitCode)
	assert.Equal(t, "Permission denied", result.Stderr)
}

func TestRunArgvPassesArguments(t *testing.T) {
	exec, _ := newTestExecutor(t, &countingConsent{answer: true})

	result := exec.RunArgv(context.Background(), []string{"echo", "a b", "c"}, t.TempDir(), 0)

	assert.Equal(t, 0, result.ExitCode)
	assert.Equal(t, "a b c\n", result.Stdout)
}
