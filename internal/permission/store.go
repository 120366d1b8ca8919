package permission

import (
	"errors"
	"path/filepath"
	"sync"
	"time"

	"github.com/sysgate-io/sysgate/internal/event"
	"github.com/sysgate-io/sysgate/internal/logging"
	"github.com/sysgate-io/sysgate/internal/storage"
)

// permissionsKey is the storage document holding the permission table.
var permissionsKey = []string{"permissions"}

// Store is the durable table of path grants. All access goes through a
// single mutex; grant and revoke persist synchronously inside the lock
// when auto-save is enabled.
type Store struct {
	mu       sync.Mutex
	records  map[string]*Record
	storage  *storage.Store
	autoSave bool
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithStorage backs the store with a JSON document store. Existing records
// are loaded at construction; expired ones are pruned.
func WithStorage(st *storage.Store) StoreOption {
	return func(s *Store) {
		s.storage = st
	}
}

// WithAutoSave controls synchronous persistence on every mutation.
// Auto-save is on by default when storage is configured.
func WithAutoSave(enabled bool) StoreOption {
	return func(s *Store) {
		s.autoSave = enabled
	}
}

// NewStore creates a permission store.
func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		records:  make(map[string]*Record),
		autoSave: true,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.load()
	return s
}

// load reads the persisted table, dropping expired records.
func (s *Store) load() {
	if s.storage == nil {
		return
	}

	var persisted map[string]*Record
	if err := s.storage.Get(permissionsKey, &persisted); err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			logging.Error().Err(err).Msg("failed to load permission table")
		}
		return
	}

	now := time.Now()
	for path, record := range persisted {
		if record.Valid(now) {
			s.records[path] = record
		}
	}
	logging.Debug().Int("records", len(s.records)).Msg("loaded permission table")
}

// persistLocked writes the table to storage. Callers must hold s.mu.
func (s *Store) persistLocked() {
	if s.storage == nil || !s.autoSave {
		return
	}
	if err := s.storage.Put(permissionsKey, s.records); err != nil {
		logging.Error().Err(err).Msg("failed to save permission table")
	}
}

// Check reports whether an unexpired record for path or any ancestor
// directory allows op. The exact path is consulted first, then each
// ancestor in order up to the filesystem root.
func (s *Store) Check(path string, op Operation) bool {
	canonical := Canonicalize(path)
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if record, ok := s.records[canonical]; ok && record.Allows(op, now) {
		return true
	}

	// Ancestor walk applies only to filesystem paths.
	if !filepath.IsAbs(canonical) {
		return false
	}
	parent := canonical
	for {
		next := filepath.Dir(parent)
		if next == parent {
			return false
		}
		parent = next
		if record, ok := s.records[parent]; ok && record.Allows(op, now) {
			return true
		}
	}
}

// Grant stores or extends a grant for path. Operations are unioned into an
// existing record; expiry, grantor and grant time are overwritten, so a
// later permanent grant supersedes a time-boxed one. A zero duration means
// the grant is permanent.
func (s *Store) Grant(path string, ops []Operation, duration time.Duration, grantedBy string) {
	canonical := Canonicalize(path)
	now := time.Now()

	var expiresAt *time.Time
	if duration != 0 {
		t := now.Add(duration)
		expiresAt = &t
	}

	s.mu.Lock()
	record, ok := s.records[canonical]
	if ok && record.Valid(now) {
		record.union(ops)
		record.GrantedBy = grantedBy
		record.GrantedAt = now
		record.ExpiresAt = expiresAt
	} else {
		record = &Record{
			Path:       canonical,
			Operations: append([]Operation(nil), ops...),
			GrantedBy:  grantedBy,
			GrantedAt:  now,
			ExpiresAt:  expiresAt,
		}
		s.records[canonical] = record
	}
	s.persistLocked()
	s.mu.Unlock()

	logging.Info().Str("path", canonical).Interface("operations", ops).Msg("permission granted")
	event.Publish(event.Event{
		Type: event.PermissionGranted,
		Data: event.PermissionGrantedData{
			Path:       canonical,
			Operations: opStrings(ops),
			GrantedBy:  grantedBy,
		},
	})
}

// Revoke removes a grant. With no operations the whole record is deleted;
// otherwise only the listed operations are removed, deleting the record if
// it becomes empty.
func (s *Store) Revoke(path string, ops ...Operation) {
	canonical := Canonicalize(path)

	s.mu.Lock()
	record, ok := s.records[canonical]
	if !ok {
		s.mu.Unlock()
		return
	}
	if len(ops) == 0 {
		delete(s.records, canonical)
	} else {
		record.remove(ops)
		if len(record.Operations) == 0 {
			delete(s.records, canonical)
		}
	}
	s.persistLocked()
	s.mu.Unlock()

	logging.Info().Str("path", canonical).Interface("operations", ops).Msg("permission revoked")
	event.Publish(event.Event{
		Type: event.PermissionRevoked,
		Data: event.PermissionRevokedData{
			Path:       canonical,
			Operations: opStrings(ops),
		},
	})
}

// List returns all currently valid records, pruning expired ones as a side
// effect.
func (s *Store) List() []Record {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	pruned := false
	for path, record := range s.records {
		if !record.Valid(now) {
			delete(s.records, path)
			pruned = true
		}
	}
	if pruned {
		s.persistLocked()
	}

	records := make([]Record, 0, len(s.records))
	for _, record := range s.records {
		records = append(records, *record)
	}
	return records
}

// Clear removes all grants.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = make(map[string]*Record)
	s.persistLocked()
}

func opStrings(ops []Operation) []string {
	out := make([]string, len(ops))
	for i, op := range ops {
		out[i] = string(op)
	}
	return out
}
