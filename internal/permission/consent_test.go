package permission

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// scriptedConsent is a ConsentProvider stub that records invocations.
type scriptedConsent struct {
	answer bool
	calls  []string
}

func (s *scriptedConsent) RequestConsent(description string) bool {
	s.calls = append(s.calls, description)
	return s.answer
}

func TestGateApproval(t *testing.T) {
	store := NewStore()
	provider := &scriptedConsent{answer: true}
	gate := NewGate(store, provider)

	granted := gate.Request("/data/file.txt", OpWrite, "Write to /data/file.txt")

	assert.True(t, granted)
	assert.Equal(t, []string{"Write to /data/file.txt"}, provider.calls)

	// The gate does not store the decision itself.
	assert.False(t, store.Check("/data/file.txt", OpWrite))
}

func TestGateDenial(t *testing.T) {
	store := NewStore()
	provider := &scriptedConsent{answer: false}
	gate := NewGate(store, provider)

	assert.False(t, gate.Request("/data/file.txt", OpDelete, "Delete /data/file.txt"))
	assert.Len(t, provider.calls, 1)
}

func TestGateFailsClosedWithoutProvider(t *testing.T) {
	store := NewStore()
	gate := NewGate(store, nil)

	assert.False(t, gate.Request("/home/user/deep/file.txt", OpRead, "read"))
	assert.False(t, gate.Request("/home", OpWrite, "write"))
	assert.False(t, gate.Request("git", OpExecute, "execute"))
}

func TestGateBootstrapReadAllowance(t *testing.T) {
	store := NewStore()
	gate := NewGate(store, nil)

	// Reads on near-root paths are auto-approved with a time-boxed grant.
	assert.True(t, gate.Request("/home", OpRead, "read /home"))
	assert.True(t, store.Check("/home", OpRead))

	records := store.List()
	assert.Len(t, records, 1)
	assert.NotNil(t, records[0].ExpiresAt)
	assert.Equal(t, "bootstrap", records[0].GrantedBy)

	// Deeper paths are not covered by the allowance.
	assert.False(t, gate.Request("/home/user/project", OpRead, "read"))
}

func TestGateHasProvider(t *testing.T) {
	store := NewStore()
	assert.False(t, NewGate(store, nil).HasProvider())
	assert.True(t, NewGate(store, ConsentFunc(func(string) bool { return true })).HasProvider())
}
