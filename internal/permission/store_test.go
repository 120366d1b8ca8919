package permission

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sysgate-io/sysgate/internal/storage"
)

func TestGrantThenCheck(t *testing.T) {
	store := NewStore()

	store.Grant("/data/project", []Operation{OpRead}, 0, "user")

	assert.True(t, store.Check("/data/project", OpRead))
	assert.False(t, store.Check("/data/project", OpWrite))
	assert.False(t, store.Check("/data/other", OpRead))
}

func TestCheckAncestor(t *testing.T) {
	store := NewStore()

	store.Grant("/data", []Operation{OpWrite}, 0, "user")

	assert.True(t, store.Check("/data/project/deep/file.txt", OpWrite))
	assert.True(t, store.Check("/data", OpWrite))
	assert.False(t, store.Check("/other/file.txt", OpWrite))
}

func TestCheckCommandTokenHasNoAncestors(t *testing.T) {
	store := NewStore()

	// A grant on the root must not leak into command-token checks.
	store.Grant("/", []Operation{OpExecute}, 0, "user")

	assert.False(t, store.Check("git", OpExecute))

	store.Grant("git", []Operation{OpExecute}, 0, "user")
	assert.True(t, store.Check("git", OpExecute))
}

func TestGrantExpiry(t *testing.T) {
	store := NewStore()

	store.Grant("/data", []Operation{OpRead}, 10*time.Millisecond, "user")
	assert.True(t, store.Check("/data", OpRead))

	time.Sleep(20 * time.Millisecond)
	assert.False(t, store.Check("/data", OpRead))
}

func TestGrantMergesOperations(t *testing.T) {
	store := NewStore()

	store.Grant("/data", []Operation{OpRead}, 0, "user")
	store.Grant("/data", []Operation{OpWrite}, 0, "admin")

	assert.True(t, store.Check("/data", OpRead))
	assert.True(t, store.Check("/data", OpWrite))

	records := store.List()
	require.Len(t, records, 1)
	assert.Equal(t, "admin", records[0].GrantedBy)
}

func TestLaterPermanentGrantSupersedesTimeBoxed(t *testing.T) {
	store := NewStore()

	store.Grant("/data", []Operation{OpRead}, 10*time.Millisecond, "user")
	store.Grant("/data", []Operation{OpRead}, 0, "user")

	time.Sleep(20 * time.Millisecond)
	assert.True(t, store.Check("/data", OpRead))
}

func TestRevokeWholeRecord(t *testing.T) {
	store := NewStore()

	store.Grant("/data", []Operation{OpRead, OpWrite}, 0, "user")
	store.Revoke("/data")

	assert.False(t, store.Check("/data", OpRead))
	assert.False(t, store.Check("/data", OpWrite))
	assert.Empty(t, store.List())
}

func TestRevokeSpecificOperations(t *testing.T) {
	store := NewStore()

	store.Grant("/data", []Operation{OpRead, OpWrite, OpDelete}, 0, "user")
	store.Revoke("/data", OpWrite)

	assert.True(t, store.Check("/data", OpRead))
	assert.False(t, store.Check("/data", OpWrite))
	assert.True(t, store.Check("/data", OpDelete))

	// Removing the remaining operations deletes the record.
	store.Revoke("/data", OpRead, OpDelete)
	assert.Empty(t, store.List())
}

func TestListPrunesExpired(t *testing.T) {
	store := NewStore()

	store.Grant("/stale", []Operation{OpRead}, 10*time.Millisecond, "user")
	store.Grant("/fresh", []Operation{OpRead}, 0, "user")

	time.Sleep(20 * time.Millisecond)
	records := store.List()
	require.Len(t, records, 1)
	assert.Equal(t, "/fresh", records[0].Path)
}

func TestPersistenceRoundTrip(t *testing.T) {
	dir := t.TempDir()
	st := storage.New(dir)

	store := NewStore(WithStorage(st))
	store.Grant("/data", []Operation{OpRead, OpWrite}, 0, "user")
	store.Grant("/stale", []Operation{OpRead}, 5*time.Millisecond, "user")

	assert.FileExists(t, filepath.Join(dir, "permissions.json"))
	time.Sleep(10 * time.Millisecond)

	// A fresh store loads only the unexpired record.
	reloaded := NewStore(WithStorage(st))
	assert.True(t, reloaded.Check("/data", OpWrite))
	assert.False(t, reloaded.Check("/stale", OpRead))
	assert.Len(t, reloaded.List(), 1)
}

func TestAutoSaveDisabled(t *testing.T) {
	dir := t.TempDir()
	st := storage.New(dir)

	store := NewStore(WithStorage(st), WithAutoSave(false))
	store.Grant("/data", []Operation{OpRead}, 0, "user")

	reloaded := NewStore(WithStorage(st))
	assert.False(t, reloaded.Check("/data", OpRead))
}

func TestClear(t *testing.T) {
	store := NewStore()

	store.Grant("/a", []Operation{OpRead}, 0, "user")
	store.Grant("/b", []Operation{OpWrite}, 0, "user")
	store.Clear()

	assert.Empty(t, store.List())
	assert.False(t, store.Check("/a", OpRead))
}

func TestCanonicalize(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"/data/../etc", "/etc"},
		{"/data/project/", "/data/project"},
		{"git", "git"},
		{"npm", "npm"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, Canonicalize(tt.input))
		})
	}
}

func TestPathSegments(t *testing.T) {
	tests := []struct {
		path     string
		expected int
	}{
		{"/", 1},
		{"/home", 2},
		{"/home/user", 3},
		{"git", 1},
		{"", 0},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.expected, PathSegments(tt.path))
		})
	}
}
