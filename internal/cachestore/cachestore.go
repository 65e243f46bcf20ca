// Package cachestore maps backing-relative paths to local staging paths
// under a per-server cache root, and manages the directories and files
// staged there. It performs no remote I/O itself.
package cachestore

import (
	"os"
	"path/filepath"

	"github.com/sftpfs/sftpfs/internal/fserrors"
)

// Store resolves backing-relative paths to local staging paths rooted at
// cacheRoot/namespace, where namespace partitions the cache by remote
// server identity so two servers never collide on disk.
type Store struct {
	root string // cacheRoot/namespace, already joined and created
}

// New returns a Store rooted at cacheRoot/namespace, creating the
// namespace directory if it does not already exist.
func New(cacheRoot, namespace string) (*Store, error) {
	root := filepath.Join(cacheRoot, namespace)
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fserrors.New(fserrors.IO, "cachestore.New", err)
	}
	return &Store{root: root}, nil
}

// LocalPath returns the local staging path for a backing-relative path.
// It performs no filesystem access; call EnsureParents before creating the
// file there.
func (s *Store) LocalPath(relPath string) string {
	return filepath.Join(s.root, filepath.FromSlash(relPath))
}

// EnsureParents creates any missing intermediate directories for
// localPath, using the store's default directory permissions.
func (s *Store) EnsureParents(localPath string) error {
	dir := filepath.Dir(localPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fserrors.New(fserrors.IO, "cachestore.EnsureParents", err)
	}
	return nil
}

// Evict removes the staged file at relPath. A file that is already absent
// is not an error.
func (s *Store) Evict(relPath string) error {
	err := os.Remove(s.LocalPath(relPath))
	if err != nil && !os.IsNotExist(err) {
		return fserrors.New(fserrors.IO, "cachestore.Evict", err)
	}
	return nil
}

// Open opens the staged local file at relPath for reading and writing,
// creating it (and its parent directories) if it does not already exist.
func (s *Store) Open(relPath string) (*os.File, error) {
	local := s.LocalPath(relPath)
	if err := s.EnsureParents(local); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(local, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fserrors.New(fserrors.IO, "cachestore.Open", err)
	}
	return f, nil
}

// Stat reports whether relPath is already staged locally, without
// touching the remote side.
func (s *Store) Stat(relPath string) (os.FileInfo, bool) {
	info, err := os.Stat(s.LocalPath(relPath))
	if err != nil {
		return nil, false
	}
	return info, true
}
