// Package handletable is the Open-File Table: it assigns and tracks
// per-open-file handles, each pointing at a staged local file plus the
// bookkeeping the VFS Request Handler needs to decide when a file may be
// evicted from the cache.
package handletable

import (
	"os"
	"sync"

	"github.com/jacobsa/fuse/fuseops"
)

// AccessMode is the effective access granted to a handle, which may be a
// downgrade of what the caller originally requested.
type AccessMode int

const (
	ReadOnly AccessMode = iota
	ReadWrite
)

// Writable reports whether m permits writes.
func (m AccessMode) Writable() bool { return m == ReadWrite }

// Entry is one open-file table row.
type Entry struct {
	Inode fuseops.InodeID
	File  *os.File
	Mode  AccessMode
	Dirty bool
}

// Table is the Open-File Table itself. Its own mutex only guards the
// index structures; callers hold the engine's coarser lock around any
// operation that must be consistent with Registry state, per the
// concurrency model.
type Table struct {
	mu      sync.Mutex
	next    uint64
	entries map[uint64]*Entry
}

// New returns an empty Table. Handle zero is never issued so a zero value
// can serve as "no handle" in callers that need one.
func New() *Table {
	return &Table{next: 1, entries: map[uint64]*Entry{}}
}

// Insert assigns the next handle identifier, installs entry, and returns
// the handle. Handles are never reused within a Table's lifetime.
func (t *Table) Insert(entry *Entry) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	h := t.next
	t.next++
	t.entries[h] = entry
	return h
}

// Get returns the entry for handle, if any.
func (t *Table) Get(handle uint64) (*Entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[handle]
	return e, ok
}

// Remove deletes the entry for handle, if any.
func (t *Table) Remove(handle uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, handle)
}

// AnyForInode reports whether any entry (other than exclude, if nonzero)
// still owns ino. The VFS Request Handler uses this on release to decide
// whether last-reference cleanup — evicting the Registry mapping and the
// staged file — may run.
func (t *Table) AnyForInode(ino fuseops.InodeID, exclude uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for h, e := range t.entries {
		if h == exclude {
			continue
		}
		if e.Inode == ino {
			return true
		}
	}
	return false
}

// AnyDirtyForInode reports whether any entry for ino is currently dirty.
// The VFS Request Handler uses this on open to decide whether a new
// write-capable open must be downgraded to read-only.
func (t *Table) AnyDirtyForInode(ino fuseops.InodeID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, e := range t.entries {
		if e.Inode == ino && e.Dirty {
			return true
		}
	}
	return false
}
