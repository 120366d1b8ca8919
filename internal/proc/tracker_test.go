package proc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// waitForState polls until the process reaches a terminal state or the
// deadline passes.
func waitForState(t *testing.T, tracker *Tracker, id string, timeout time.Duration) Status {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		status := tracker.Status(id)
		if status.Completed() {
			return status
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("process %s did not complete within %v", id, timeout)
	return Status{}
}

func TestLaunchAndComplete(t *testing.T) {
	tracker := NewTracker()

	id, err := tracker.Launch("echo hi", t.TempDir())
	require.NoError(t, err)
	require.NotEmpty(t, id)

	status := waitForState(t, tracker, id, 5*time.Second)
	assert.Equal(t, StateCompleted, status.State)
	assert.Equal(t, 0, status.ExitCode)
	assert.Equal(t, "hi\n", status.Stdout)
	assert.Empty(t, status.Stderr)
}

func TestStatusWhileRunning(t *testing.T) {
	tracker := NewTracker()

	id, err := tracker.Launch("sleep 5", t.TempDir())
	require.NoError(t, err)
	defer tracker.Kill(id)

	status := tracker.Status(id)
	assert.True(t, status.Exists)
	assert.Equal(t, StateRunning, status.State)
	assert.False(t, status.Completed())
	// Output is withheld until the process is terminal.
	assert.Empty(t, status.Stdout)
}

func TestStatusUnknownID(t *testing.T) {
	tracker := NewTracker()

	status := tracker.Status("no-such-id")
	assert.False(t, status.Exists)
	assert.False(t, status.Completed())
}

func TestKillRunningProcess(t *testing.T) {
	tracker := NewTracker()

	id, err := tracker.Launch("sleep 30", t.TempDir())
	require.NoError(t, err)

	assert.True(t, tracker.Kill(id))

	status := tracker.Status(id)
	assert.Equal(t, StateKilled, status.State)
	assert.Equal(t, 1, status.ExitCode)
	assert.Equal(t, "Process was killed", status.Stderr)
}

func TestKillWhileProducingOutput(t *testing.T) {
	tracker := NewTracker()

	id, err := tracker.Launch("while true; do echo spam; done", t.TempDir())
	require.NoError(t, err)

	// Give the loop time to start streaming before the kill.
	time.Sleep(100 * time.Millisecond)
	require.True(t, tracker.Kill(id))

	status := tracker.Status(id)
	assert.Equal(t, StateKilled, status.State)
	assert.Equal(t, 1, status.ExitCode)
	assert.Equal(t, "Process was killed", status.Stderr)

	// The stdout snapshot lands once the process has been reaped.
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if s := tracker.Status(id); s.Stdout != "" {
			assert.Contains(t, s.Stdout, "spam")
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("killed process output was never captured")
}

func TestKillIsIdempotent(t *testing.T) {
	tracker := NewTracker()

	id, err := tracker.Launch("sleep 30", t.TempDir())
	require.NoError(t, err)

	require.True(t, tracker.Kill(id))
	first := tracker.Status(id)

	// A second kill succeeds without changing the record.
	assert.True(t, tracker.Kill(id))
	second := tracker.Status(id)
	assert.Equal(t, first.ExitCode, second.ExitCode)
	assert.Equal(t, first.Stderr, second.Stderr)
	assert.Equal(t, first.State, second.State)
}

func TestKillCompletedProcess(t *testing.T) {
	tracker := NewTracker()

	id, err := tracker.Launch("echo done", t.TempDir())
	require.NoError(t, err)
	waitForState(t, tracker, id, 5*time.Second)

	// Kill on a terminal record is a no-op returning true.
	assert.True(t, tracker.Kill(id))
	status := tracker.Status(id)
	assert.Equal(t, StateCompleted, status.State)
	assert.Equal(t, 0, status.ExitCode)
}

func TestKillUnknownID(t *testing.T) {
	tracker := NewTracker()
	assert.False(t, tracker.Kill("no-such-id"))
}

func TestCapturesFailureExitCode(t *testing.T) {
	tracker := NewTracker()

	id, err := tracker.Launch("exit 3", t.TempDir())
	require.NoError(t, err)

	status := waitForState(t, tracker, id, 5*time.Second)
	assert.Equal(t, StateCompleted, status.State)
	assert.Equal(t, 3, status.ExitCode)
}

func TestList(t *testing.T) {
	tracker := NewTracker()
	assert.Empty(t, tracker.List())

	id1, err := tracker.Launch("echo one", t.TempDir())
	require.NoError(t, err)
	id2, err := tracker.Launch("echo two", t.TempDir())
	require.NoError(t, err)

	ids := tracker.List()
	assert.Len(t, ids, 2)
	assert.Contains(t, ids, id1)
	assert.Contains(t, ids, id2)
}
