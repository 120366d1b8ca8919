// Package fileops is the permission-checked file layer. Every operation
// asks the broker's authorizer before touching the filesystem, so reads
// inside the workspace and writes to the safe subdirectories proceed
// silently while anything else needs a grant or consent.
package fileops

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/sysgate-io/sysgate/internal/logging"
	"github.com/sysgate-io/sysgate/internal/permission"
)

// Authorizer decides whether a file operation may proceed. Satisfied by
// *broker.Broker.
type Authorizer interface {
	AuthorizeFile(path string, op permission.Operation) bool
}

// ErrDenied is returned when the authorizer refuses an operation.
var ErrDenied = fmt.Errorf("permission denied")

// Entry describes one directory member.
type Entry struct {
	Name  string
	IsDir bool
	Size  int64
}

// Info is file metadata.
type Info struct {
	Path    string
	Size    int64
	IsDir   bool
	Mode    os.FileMode
	ModTime time.Time
}

// Manager performs file operations under an authorizer.
type Manager struct {
	auth Authorizer
}

// NewManager creates a file operations manager.
func NewManager(auth Authorizer) *Manager {
	return &Manager{auth: auth}
}

// ReadFile returns the file contents.
func (m *Manager) ReadFile(path string) ([]byte, error) {
	canonical := permission.Canonicalize(path)
	if !m.auth.AuthorizeFile(canonical, permission.OpRead) {
		return nil, fmt.Errorf("read %s: %w", canonical, ErrDenied)
	}
	data, err := os.ReadFile(canonical)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", canonical, err)
	}
	return data, nil
}

// WriteFile writes content, creating parent directories as needed.
func (m *Manager) WriteFile(path string, content []byte) error {
	canonical := permission.Canonicalize(path)
	if !m.auth.AuthorizeFile(canonical, permission.OpWrite) {
		return fmt.Errorf("write %s: %w", canonical, ErrDenied)
	}
	if err := os.MkdirAll(filepath.Dir(canonical), 0755); err != nil {
		return fmt.Errorf("failed to create parent directory: %w", err)
	}
	if err := os.WriteFile(canonical, content, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", canonical, err)
	}
	logging.Debug().Str("path", canonical).Int("bytes", len(content)).Msg("file written")
	return nil
}

// AppendFile appends content to a file, creating it if absent.
func (m *Manager) AppendFile(path string, content []byte) error {
	canonical := permission.Canonicalize(path)
	if !m.auth.AuthorizeFile(canonical, permission.OpWrite) {
		return fmt.Errorf("append %s: %w", canonical, ErrDenied)
	}
	f, err := os.OpenFile(canonical, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", canonical, err)
	}
	defer f.Close()
	if _, err := f.Write(content); err != nil {
		return fmt.Errorf("failed to append to %s: %w", canonical, err)
	}
	return nil
}

// DeleteFile removes a single file.
func (m *Manager) DeleteFile(path string) error {
	canonical := permission.Canonicalize(path)
	if !m.auth.AuthorizeFile(canonical, permission.OpDelete) {
		return fmt.Errorf("delete %s: %w", canonical, ErrDenied)
	}
	if err := os.Remove(canonical); err != nil {
		return fmt.Errorf("failed to delete %s: %w", canonical, err)
	}
	return nil
}

// CreateDirectory creates a directory and its parents.
func (m *Manager) CreateDirectory(path string) error {
	canonical := permission.Canonicalize(path)
	if !m.auth.AuthorizeFile(canonical, permission.OpWrite) {
		return fmt.Errorf("create directory %s: %w", canonical, ErrDenied)
	}
	if err := os.MkdirAll(canonical, 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", canonical, err)
	}
	return nil
}

// DeleteDirectory removes a directory; recursive removes contents too.
func (m *Manager) DeleteDirectory(path string, recursive bool) error {
	canonical := permission.Canonicalize(path)
	if !m.auth.AuthorizeFile(canonical, permission.OpDelete) {
		return fmt.Errorf("delete directory %s: %w", canonical, ErrDenied)
	}
	var err error
	if recursive {
		err = os.RemoveAll(canonical)
	} else {
		err = os.Remove(canonical)
	}
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", canonical, err)
	}
	return nil
}

// ListDirectory returns the entries of a directory, sorted by name.
func (m *Manager) ListDirectory(path string) ([]Entry, error) {
	canonical := permission.Canonicalize(path)
	if !m.auth.AuthorizeFile(canonical, permission.OpRead) {
		return nil, fmt.Errorf("list %s: %w", canonical, ErrDenied)
	}
	dirEntries, err := os.ReadDir(canonical)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", canonical, err)
	}

	entries := make([]Entry, 0, len(dirEntries))
	for _, de := range dirEntries {
		entry := Entry{Name: de.Name(), IsDir: de.IsDir()}
		if info, err := de.Info(); err == nil {
			entry.Size = info.Size()
		}
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

// Exists reports whether the path exists. No permission needed: existence
// alone leaks nothing the workspace rules care about.
func (m *Manager) Exists(path string) bool {
	_, err := os.Stat(permission.Canonicalize(path))
	return err == nil
}

// GetInfo returns metadata for a path.
func (m *Manager) GetInfo(path string) (*Info, error) {
	canonical := permission.Canonicalize(path)
	if !m.auth.AuthorizeFile(canonical, permission.OpRead) {
		return nil, fmt.Errorf("stat %s: %w", canonical, ErrDenied)
	}
	fi, err := os.Stat(canonical)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", canonical, err)
	}
	return &Info{
		Path:    canonical,
		Size:    fi.Size(),
		IsDir:   fi.IsDir(),
		Mode:    fi.Mode(),
		ModTime: fi.ModTime(),
	}, nil
}

// CopyFile copies src to dst: read permission on the source, write on the
// destination.
func (m *Manager) CopyFile(src, dst string) error {
	srcPath := permission.Canonicalize(src)
	dstPath := permission.Canonicalize(dst)
	if !m.auth.AuthorizeFile(srcPath, permission.OpRead) {
		return fmt.Errorf("read %s: %w", srcPath, ErrDenied)
	}
	if !m.auth.AuthorizeFile(dstPath, permission.OpWrite) {
		return fmt.Errorf("write %s: %w", dstPath, ErrDenied)
	}

	in, err := os.Open(srcPath)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", srcPath, err)
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dstPath), 0755); err != nil {
		return fmt.Errorf("failed to create parent directory: %w", err)
	}
	out, err := os.Create(dstPath)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dstPath, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("failed to copy to %s: %w", dstPath, err)
	}
	return out.Sync()
}

// MoveFile moves src to dst: the source needs delete, the destination
// write.
func (m *Manager) MoveFile(src, dst string) error {
	srcPath := permission.Canonicalize(src)
	dstPath := permission.Canonicalize(dst)
	if !m.auth.AuthorizeFile(srcPath, permission.OpDelete) {
		return fmt.Errorf("delete %s: %w", srcPath, ErrDenied)
	}
	if !m.auth.AuthorizeFile(dstPath, permission.OpWrite) {
		return fmt.Errorf("write %s: %w", dstPath, ErrDenied)
	}

	if err := os.MkdirAll(filepath.Dir(dstPath), 0755); err != nil {
		return fmt.Errorf("failed to create parent directory: %w", err)
	}
	if err := os.Rename(srcPath, dstPath); err == nil {
		return nil
	}
	// Rename fails across filesystems; fall back to copy and delete.
	if err := m.copyWithoutChecks(srcPath, dstPath); err != nil {
		return err
	}
	return os.Remove(srcPath)
}

func (m *Manager) copyWithoutChecks(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dst, err)
	}
	defer out.Close()
	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("failed to copy to %s: %w", dst, err)
	}
	return out.Sync()
}
