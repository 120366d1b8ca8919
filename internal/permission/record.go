// Package permission provides the durable permission table and consent gate
// that decide whether file and system operations may proceed.
package permission

import (
	"path/filepath"
	"strings"
	"time"
)

// Operation is a grantable action on a path or command token.
type Operation string

const (
	OpRead    Operation = "read"
	OpWrite   Operation = "write"
	OpExecute Operation = "execute"
	OpDelete  Operation = "delete"
)

// Record is a stored grant of operations on a path, optionally time-boxed.
// A nil ExpiresAt means the grant is permanent.
type Record struct {
	Path       string      `json:"path"`
	Operations []Operation `json:"operations"`
	GrantedBy  string      `json:"granted_by"`
	GrantedAt  time.Time   `json:"granted_at"`
	ExpiresAt  *time.Time  `json:"expires_at"`
}

// Valid reports whether the record has not expired.
func (r *Record) Valid(now time.Time) bool {
	if r.ExpiresAt == nil {
		return true
	}
	return now.Before(*r.ExpiresAt)
}

// Allows reports whether the record permits op and has not expired.
func (r *Record) Allows(op Operation, now time.Time) bool {
	if !r.Valid(now) {
		return false
	}
	for _, o := range r.Operations {
		if o == op {
			return true
		}
	}
	return false
}

// union adds ops to the record's operation set, preserving order.
func (r *Record) union(ops []Operation) {
	for _, op := range ops {
		found := false
		for _, existing := range r.Operations {
			if existing == op {
				found = true
				break
			}
		}
		if !found {
			r.Operations = append(r.Operations, op)
		}
	}
}

// remove drops ops from the record's operation set.
func (r *Record) remove(ops []Operation) {
	kept := r.Operations[:0]
	for _, existing := range r.Operations {
		drop := false
		for _, op := range ops {
			if existing == op {
				drop = true
				break
			}
		}
		if !drop {
			kept = append(kept, existing)
		}
	}
	r.Operations = kept
}

// Canonicalize normalizes a grant target. Filesystem paths become absolute
// and cleaned; bare command tokens (no separator, not rooted) are left as-is
// so executor grants key on the command name.
func Canonicalize(path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	if strings.ContainsRune(path, filepath.Separator) || strings.ContainsRune(path, '/') ||
		strings.HasPrefix(path, ".") || strings.HasPrefix(path, "~") {
		if abs, err := filepath.Abs(path); err == nil {
			return abs
		}
		return filepath.Clean(path)
	}
	return path
}

// PathSegments counts the components of a canonical path, including the
// root. "/home" has two segments; a bare command token has one.
func PathSegments(path string) int {
	if path == "" {
		return 0
	}
	vol := filepath.VolumeName(path)
	rest := path[len(vol):]
	sep := string(filepath.Separator)
	rest = strings.ReplaceAll(rest, "/", sep)

	n := 0
	if vol != "" || strings.HasPrefix(rest, sep) {
		n++ // the root itself
	}
	for _, part := range strings.Split(rest, sep) {
		if part != "" {
			n++
		}
	}
	return n
}
