package permission

import (
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/sysgate-io/sysgate/internal/event"
	"github.com/sysgate-io/sysgate/internal/logging"
)

// bootstrapGrantDuration is the lifetime of auto-approved read grants on
// near-root paths when no consent provider is configured.
const bootstrapGrantDuration = time.Hour

// ConsentProvider is implemented by the UI or CLI collaborator. The call
// blocks the invoking goroutine until the human answers.
type ConsentProvider interface {
	RequestConsent(description string) bool
}

// ConsentFunc adapts a plain function to a ConsentProvider.
type ConsentFunc func(description string) bool

func (f ConsentFunc) RequestConsent(description string) bool {
	return f(description)
}

// Gate obtains consent for operations that no standing grant covers.
// It never holds store locks across the blocking provider call.
type Gate struct {
	store    *Store
	provider ConsentProvider
}

// NewGate creates a consent gate. provider may be nil, in which case
// requests fail closed apart from the read bootstrap allowance.
func NewGate(store *Store, provider ConsentProvider) *Gate {
	return &Gate{store: store, provider: provider}
}

// Request asks for consent to perform op on path, describing the action to
// the human. The positive decision is not stored here; callers convert it
// into a grant with whatever expiry they choose.
//
// Without a provider the request is denied, except that a read on a path
// with at most two segments (a drive root or top-level directory) is
// auto-approved with a one-hour grant so read-only discovery can proceed.
func (g *Gate) Request(path string, op Operation, description string) bool {
	canonical := Canonicalize(path)

	if g.provider == nil {
		if op == OpRead && PathSegments(canonical) <= 2 {
			g.store.Grant(canonical, []Operation{OpRead}, bootstrapGrantDuration, "bootstrap")
			logging.Debug().Str("path", canonical).Msg("auto-approved near-root read")
			return true
		}
		logging.Warn().Str("path", canonical).Str("operation", string(op)).
			Msg("consent unavailable, denying")
		return false
	}

	id := ulid.Make().String()
	event.Publish(event.Event{
		Type: event.PermissionRequired,
		Data: event.PermissionRequiredData{
			ID:          id,
			Path:        canonical,
			Operation:   string(op),
			Description: description,
		},
	})

	granted := g.provider.RequestConsent(description)

	event.Publish(event.Event{
		Type: event.PermissionResolved,
		Data: event.PermissionResolvedData{ID: id, Granted: granted},
	})

	if granted {
		logging.Info().Str("path", canonical).Str("operation", string(op)).Msg("consent granted")
	} else {
		logging.Info().Str("path", canonical).Str("operation", string(op)).Msg("consent denied")
	}
	return granted
}

// HasProvider reports whether a consent provider is configured.
func (g *Gate) HasProvider() bool {
	return g.provider != nil
}
