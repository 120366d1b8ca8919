package storage

import (
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testDoc struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestPutAndGet(t *testing.T) {
	store := New(t.TempDir())

	in := testDoc{Name: "grants", Count: 3}
	require.NoError(t, store.Put([]string{"state", "grants"}, in))

	var out testDoc
	require.NoError(t, store.Get([]string{"state", "grants"}, &out))
	assert.Equal(t, in, out)
}

func TestGetNotFound(t *testing.T) {
	store := New(t.TempDir())

	var out testDoc
	err := store.Get([]string{"missing"}, &out)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDelete(t *testing.T) {
	store := New(t.TempDir())

	require.NoError(t, store.Put([]string{"doc"}, testDoc{Name: "x"}))
	assert.True(t, store.Exists([]string{"doc"}))

	require.NoError(t, store.Delete([]string{"doc"}))
	assert.False(t, store.Exists([]string{"doc"}))

	// Deleting again is not an error
	assert.NoError(t, store.Delete([]string{"doc"}))
}

func TestPutOverwrites(t *testing.T) {
	store := New(t.TempDir())

	require.NoError(t, store.Put([]string{"doc"}, testDoc{Count: 1}))
	require.NoError(t, store.Put([]string{"doc"}, testDoc{Count: 2}))

	var out testDoc
	require.NoError(t, store.Get([]string{"doc"}, &out))
	assert.Equal(t, 2, out.Count)
}

func TestConcurrentPuts(t *testing.T) {
	dir := t.TempDir()
	store := New(dir)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			assert.NoError(t, store.Put([]string{"shared"}, testDoc{Count: n}))
		}(i)
	}
	wg.Wait()

	// The file must exist and contain a complete document
	var out testDoc
	require.NoError(t, store.Get([]string{"shared"}, &out))
	assert.FileExists(t, filepath.Join(dir, "shared.json"))
}
