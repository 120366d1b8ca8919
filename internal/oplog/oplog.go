// Package oplog keeps the single-slot record of the last undoable mutation.
package oplog

import (
	"errors"
	"sync"
	"time"

	"github.com/sysgate-io/sysgate/internal/event"
	"github.com/sysgate-io/sysgate/internal/logging"
	"github.com/sysgate-io/sysgate/internal/storage"
)

// Kind identifies the category of a recorded operation.
type Kind string

const (
	KindGeneric       Kind = "generic"
	KindRegistryWrite Kind = "registry_write"
)

// PriorState holds enough of the pre-mutation value to reconstruct it.
type PriorState struct {
	Value     string `json:"value"`
	ValueType string `json:"value_type,omitempty"`
}

// Operation is the single-slot record of the last mutation. Each new
// mutating call overwrites it; only the most recent one is ever undoable.
type Operation struct {
	Kind             Kind        `json:"kind"`
	Target           string      `json:"target"`
	PriorState       *PriorState `json:"prior_state"`
	RollbackPossible bool        `json:"rollback_possible"`
	RecordedAt       time.Time   `json:"recorded_at"`
}

// UndoFunc reverts an operation by re-applying its prior state.
type UndoFunc func(op Operation) error

// lastOpKey is the storage document holding the slot.
var lastOpKey = []string{"lastop"}

// Log is the reversible operation log. A rollback is not itself undoable.
type Log struct {
	mu      sync.Mutex
	op      *Operation
	storage *storage.Store
	undo    map[Kind]UndoFunc
}

// LogOption configures a Log.
type LogOption func(*Log)

// WithStorage persists the slot so rollback survives a process restart.
func WithStorage(st *storage.Store) LogOption {
	return func(l *Log) {
		l.storage = st
	}
}

// NewLog creates an operation log and loads any persisted slot.
func NewLog(opts ...LogOption) *Log {
	l := &Log{undo: make(map[Kind]UndoFunc)}
	for _, opt := range opts {
		opt(l)
	}
	l.load()
	return l
}

// RegisterUndo installs the undo routine for a kind.
func (l *Log) RegisterUndo(kind Kind, fn UndoFunc) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.undo[kind] = fn
}

func (l *Log) load() {
	if l.storage == nil {
		return
	}
	var op Operation
	if err := l.storage.Get(lastOpKey, &op); err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			logging.Error().Err(err).Msg("failed to load operation log")
		}
		return
	}
	l.op = &op
}

// persistLocked writes the slot. Callers must hold l.mu.
func (l *Log) persistLocked() {
	if l.storage == nil {
		return
	}
	if l.op == nil {
		return
	}
	if err := l.storage.Put(lastOpKey, l.op); err != nil {
		logging.Error().Err(err).Msg("failed to save operation log")
	}
}

// Record overwrites the slot with a new operation. A rollbackPossible
// operation must carry a non-nil prior state; recording one without is
// downgraded to non-reversible.
func (l *Log) Record(kind Kind, target string, prior *PriorState, rollbackPossible bool) {
	if rollbackPossible && prior == nil {
		rollbackPossible = false
	}

	l.mu.Lock()
	l.op = &Operation{
		Kind:             kind,
		Target:           target,
		PriorState:       prior,
		RollbackPossible: rollbackPossible,
		RecordedAt:       time.Now(),
	}
	l.persistLocked()
	l.mu.Unlock()

	event.Publish(event.Event{
		Type: event.OperationRecorded,
		Data: event.OperationData{Kind: string(kind), Target: target},
	})
}

// CanRollback reports whether the slot holds an undoable operation.
func (l *Log) CanRollback() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.op != nil && l.op.RollbackPossible
}

// Last returns a copy of the slot, if any.
func (l *Log) Last() (Operation, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.op == nil {
		return Operation{}, false
	}
	return *l.op, true
}

// Rollback undoes the recorded operation by dispatching to the matching
// undo routine. On success the slot loses its rollback capability; on
// failure or when nothing is undoable it returns false with no effect.
func (l *Log) Rollback() bool {
	l.mu.Lock()
	if l.op == nil || !l.op.RollbackPossible {
		l.mu.Unlock()
		return false
	}
	op := *l.op
	fn, ok := l.undo[op.Kind]
	l.mu.Unlock()

	if !ok {
		logging.Warn().Str("kind", string(op.Kind)).Msg("no undo routine registered")
		return false
	}

	// The undo routine may block on I/O; run it outside the lock.
	if err := fn(op); err != nil {
		logging.Error().Err(err).Str("target", op.Target).Msg("rollback failed")
		return false
	}

	l.mu.Lock()
	if l.op != nil && l.op.Kind == op.Kind && l.op.Target == op.Target {
		l.op.RollbackPossible = false
		l.persistLocked()
	}
	l.mu.Unlock()

	logging.Info().Str("kind", string(op.Kind)).Str("target", op.Target).Msg("operation rolled back")
	event.Publish(event.Event{
		Type: event.OperationRolledBack,
		Data: event.OperationData{Kind: string(op.Kind), Target: op.Target},
	})
	return true
}
