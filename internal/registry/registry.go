// Package registry is the path/inode registry: the two-way mapping between
// the kernel-visible inode numbers this engine hands out and the
// backing-relative paths they name on the remote server.
package registry

import (
	"crypto/md5"
	"encoding/binary"
	"path"
	"sync"

	"github.com/jacobsa/fuse/fuseops"
)

// RootInode is the fixed inode identifying the backing directory's root,
// matching fuseops.RootInodeID.
const RootInode = fuseops.RootInodeID

// Registry is the coarse-locked inode<->path bijection described by the
// engine's concurrency model: every method takes and releases the lock
// internally, so callers never hold it across a remote or disk operation.
type Registry struct {
	mu        sync.Mutex
	pathToIno map[string]fuseops.InodeID
	inoToPath map[fuseops.InodeID]string
}

// New returns a Registry with only the root inode registered.
func New() *Registry {
	r := &Registry{
		pathToIno: make(map[string]fuseops.InodeID),
		inoToPath: make(map[fuseops.InodeID]string),
	}
	r.pathToIno["/"] = RootInode
	r.inoToPath[RootInode] = "/"
	return r
}

// inodeForPath derives a stable inode identifier from a backing-relative
// path by truncating an MD5 digest to 64 bits, exactly as the reference
// client does. Two distinct paths can in principle collide; this is an
// accepted limitation, not a bug to defend against here.
func inodeForPath(relPath string) fuseops.InodeID {
	d := md5.Sum([]byte(relPath))
	return fuseops.InodeID(binary.BigEndian.Uint64(d[:8]))
}

// Intern returns the reserved root inode if relPath denotes the root,
// otherwise the existing mapping if one is already installed, otherwise a
// freshly computed inode with both directions installed atomically.
func (r *Registry) Intern(relPath string) fuseops.InodeID {
	relPath = normalize(relPath)
	if relPath == "/" {
		return RootInode
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if ino, ok := r.pathToIno[relPath]; ok {
		return ino
	}

	ino := inodeForPath(relPath)
	r.pathToIno[relPath] = ino
	r.inoToPath[ino] = relPath
	return ino
}

// Resolve returns the backing-relative path registered for ino, without
// consulting storage for the root inode.
func (r *Registry) Resolve(ino fuseops.InodeID) (string, bool) {
	if ino == RootInode {
		return "/", true
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.inoToPath[ino]
	return p, ok
}

// Forget removes both directions of the mapping for (ino, path) if present.
// It is idempotent: forgetting an inode that is not registered is a no-op.
func (r *Registry) Forget(ino fuseops.InodeID, relPath string) {
	if ino == RootInode {
		return
	}
	relPath = normalize(relPath)

	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.inoToPath, ino)
	delete(r.pathToIno, relPath)
}

// normalize ensures every path handled by the registry is rooted and has no
// trailing slash (other than the root itself), so "/" and "/foo/" and "foo"
// map consistently.
func normalize(p string) string {
	if p == "" {
		return "/"
	}
	return path.Clean("/" + p)
}
