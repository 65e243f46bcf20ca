// Package engine is the VFS Request Handler: it implements the kernel
// callbacks by composing the Path/Inode Registry, the Remote Adapter, the
// Cache Store, the Open-File Table, and Attribute Projection.
//
// Each callback is serialized by a single coarse lock over shared state
// (the registry and the handle table); remote and local file I/O always
// happen outside the lock.
package engine

import (
	"context"
	"io"
	"os"
	"sync"
	"syscall"
	"time"

	"github.com/jacobsa/fuse"
	"github.com/jacobsa/fuse/fuseops"
	"github.com/jacobsa/fuse/fuseutil"

	"github.com/sftpfs/sftpfs/internal/attrs"
	"github.com/sftpfs/sftpfs/internal/cachestore"
	"github.com/sftpfs/sftpfs/internal/clock"
	"github.com/sftpfs/sftpfs/internal/fserrors"
	"github.com/sftpfs/sftpfs/internal/handletable"
	"github.com/sftpfs/sftpfs/internal/logger"
	"github.com/sftpfs/sftpfs/internal/registry"
	"github.com/sftpfs/sftpfs/internal/remote"
	"github.com/sftpfs/sftpfs/internal/util"
	"github.com/sftpfs/sftpfs/metrics"
)

// AttributesTTL is how long the kernel may cache an inode's attributes and
// directory-entry lookups before re-querying this engine.
const AttributesTTL = time.Second

// Engine implements fuseutil.FileSystem over a remote Adapter and a local
// Cache Store, fronted by an inode Registry and a handle Table.
//
// mu is the single coarse lock described by the concurrency model: it
// guards only the Registry and the handle Table, and is never held across
// remote or local file I/O.
type Engine struct {
	fuseutil.NotImplementedFileSystem

	mu    sync.Mutex
	reg   *registry.Registry
	files *handletable.Table

	remote    remote.Adapter
	cache     *cachestore.Store
	metrics   metrics.Handle
	projector *attrs.Projector
}

// New returns an Engine serving remote through cache, with its own
// Registry and handle Table. Operations are unmeasured until WithMetrics
// installs a recording Handle, and missing remote timestamps default to
// the real wall clock until WithClock installs another one.
func New(remoteAdapter remote.Adapter, cache *cachestore.Store) *Engine {
	return &Engine{
		reg:       registry.New(),
		files:     handletable.New(),
		remote:    remoteAdapter,
		cache:     cache,
		metrics:   metrics.NoopHandle{},
		projector: attrs.NewProjector(clock.RealClock{}),
	}
}

// WithMetrics installs h as the engine's metrics Handle and returns fs for
// chaining.
func (fs *Engine) WithMetrics(h metrics.Handle) *Engine {
	fs.metrics = h
	return fs
}

// WithClock installs c as the Clock used to default missing remote
// timestamps, and returns fs for chaining. Tests substitute a
// clock.SimulatedClock to assert on attribute values deterministically.
func (fs *Engine) WithClock(c clock.Clock) *Engine {
	fs.projector = attrs.NewProjector(c)
	return fs
}

// expiration returns the instant until which the kernel may cache an
// attribute or directory-entry response handed out right now.
func (fs *Engine) expiration() time.Time {
	return fs.projector.Clock.Now().Add(AttributesTTL)
}

func (fs *Engine) Init(ctx context.Context, op *fuseops.InitOp) error {
	return nil
}

func (fs *Engine) LookUpInode(ctx context.Context, op *fuseops.LookUpInodeOp) (err error) {
	defer fs.record(ctx, "LookUpInode", time.Now(), &err)

	fs.mu.Lock()
	parentPath, ok := fs.reg.Resolve(op.Parent)
	fs.mu.Unlock()
	if !ok {
		return fuse.ENOENT
	}

	childPath := joinChild(parentPath, op.Name)

	fs.mu.Lock()
	childIno := fs.reg.Intern(childPath)
	fs.mu.Unlock()

	st, err := fs.remote.Stat(childPath)
	if err != nil {
		return translate(err)
	}

	expiration := fs.expiration()
	op.Entry = fuseops.ChildInodeEntry{
		Child:                childIno,
		Attributes:           fs.projector.Project(toRemoteStat(st)),
		AttributesExpiration: expiration,
		EntryExpiration:      expiration,
	}
	return nil
}

func (fs *Engine) GetInodeAttributes(ctx context.Context, op *fuseops.GetInodeAttributesOp) (err error) {
	defer fs.record(ctx, "GetInodeAttributes", time.Now(), &err)

	if op.Inode == fuseops.RootInodeID {
		op.Attributes = fs.projector.RootAttributes()
		op.AttributesExpiration = fs.expiration()
		return nil
	}

	fs.mu.Lock()
	p, ok := fs.reg.Resolve(op.Inode)
	fs.mu.Unlock()
	if !ok {
		return fuse.ENOENT
	}

	st, err := fs.remote.Stat(p)
	if err != nil {
		return translate(err)
	}
	op.Attributes = fs.projector.Project(toRemoteStat(st))
	op.AttributesExpiration = fs.expiration()
	return nil
}

func (fs *Engine) OpenFile(ctx context.Context, op *fuseops.OpenFileOp) (err error) {
	defer fs.record(ctx, "OpenFile", time.Now(), &err)

	fs.mu.Lock()
	p, ok := fs.reg.Resolve(op.Inode)
	fs.mu.Unlock()
	if !ok {
		return fuse.ENOENT
	}

	requestedWrite := wantsWrite(op.Flags)

	_, staged := fs.cache.Stat(p)
	if !staged {
		return fs.openMiss(op, p, requestedWrite)
	}
	return fs.openHit(op, p, requestedWrite)
}

func (fs *Engine) openMiss(op *fuseops.OpenFileOp, p string, requestedWrite bool) error {
	local := fs.cache.LocalPath(p)
	if err := fs.cache.EnsureParents(local); err != nil {
		return translate(err)
	}

	f, err := os.OpenFile(local, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return translate(fserrors.New(fserrors.IO, "engine.OpenFile", err))
	}

	if err := fs.remote.Fetch(p, f); err != nil {
		f.Close()
		return translate(err)
	}

	mode := handletable.ReadOnly
	if requestedWrite {
		mode = handletable.ReadWrite
	}

	fs.mu.Lock()
	h := fs.files.Insert(&handletable.Entry{Inode: op.Inode, File: f, Mode: mode})
	fs.mu.Unlock()

	op.Handle = fuseops.HandleID(h)
	return nil
}

func (fs *Engine) openHit(op *fuseops.OpenFileOp, p string, requestedWrite bool) error {
	mode := handletable.ReadOnly

	fs.mu.Lock()
	if requestedWrite && !fs.files.AnyDirtyForInode(op.Inode) {
		mode = handletable.ReadWrite
	}
	fs.mu.Unlock()

	local := fs.cache.LocalPath(p)
	flags := os.O_RDONLY
	if mode.Writable() {
		flags = os.O_RDWR
	}
	f, err := os.OpenFile(local, flags, 0o644)
	if err != nil {
		return translate(fserrors.New(fserrors.IO, "engine.OpenFile", err))
	}

	fs.mu.Lock()
	h := fs.files.Insert(&handletable.Entry{Inode: op.Inode, File: f, Mode: mode})
	fs.mu.Unlock()

	op.Handle = fuseops.HandleID(h)
	return nil
}

func (fs *Engine) ReadFile(ctx context.Context, op *fuseops.ReadFileOp) (err error) {
	defer fs.record(ctx, "ReadFile", time.Now(), &err)

	fs.mu.Lock()
	entry, ok := fs.files.Get(uint64(op.Handle))
	fs.mu.Unlock()
	if !ok {
		return fuse.EINVAL
	}

	dup, derr := dupFile(entry.File)
	if derr != nil {
		return translate(fserrors.New(fserrors.IO, "engine.ReadFile", derr))
	}
	defer dup.Close()

	if _, serr := dup.Seek(op.Offset, io.SeekStart); serr != nil {
		return translate(fserrors.New(fserrors.IO, "engine.ReadFile", serr))
	}

	buf := make([]byte, op.Size)
	n, rerr := dup.Read(buf)
	if rerr != nil && rerr != io.EOF {
		return translate(fserrors.New(fserrors.IO, "engine.ReadFile", rerr))
	}
	op.BytesRead = n
	copy(op.Dst, buf[:n])
	fs.metrics.RecordBytes(ctx, "read", int64(n))
	return nil
}

func (fs *Engine) WriteFile(ctx context.Context, op *fuseops.WriteFileOp) (err error) {
	defer fs.record(ctx, "WriteFile", time.Now(), &err)

	fs.mu.Lock()
	entry, ok := fs.files.Get(uint64(op.Handle))
	fs.mu.Unlock()
	if !ok {
		return fuse.EINVAL
	}
	if !entry.Mode.Writable() {
		return fuse.EACCES
	}

	if _, serr := entry.File.Seek(op.Offset, io.SeekStart); serr != nil {
		return translate(fserrors.New(fserrors.IO, "engine.WriteFile", serr))
	}
	if _, werr := entry.File.Write(op.Data); werr != nil {
		return translate(fserrors.New(fserrors.IO, "engine.WriteFile", werr))
	}
	fs.metrics.RecordBytes(ctx, "write", int64(len(op.Data)))

	fs.mu.Lock()
	entry.Dirty = true
	fs.mu.Unlock()
	return nil
}

func (fs *Engine) FlushFile(ctx context.Context, op *fuseops.FlushFileOp) (err error) {
	defer fs.record(ctx, "FlushFile", time.Now(), &err)

	fs.mu.Lock()
	entry, ok := fs.files.Get(uint64(op.Handle))
	fs.mu.Unlock()
	if !ok {
		return fuse.EINVAL
	}
	if !entry.Dirty {
		return nil
	}

	fs.mu.Lock()
	p, found := fs.reg.Resolve(entry.Inode)
	fs.mu.Unlock()
	if !found {
		return fuse.ENOENT
	}

	if err := fs.remote.Upload(entry.File, p); err != nil {
		return translate(err)
	}

	fs.mu.Lock()
	entry.Dirty = false
	fs.mu.Unlock()
	return nil
}

func (fs *Engine) ReleaseFileHandle(ctx context.Context, op *fuseops.ReleaseFileHandleOp) (err error) {
	// The kernel does not wait on a reply to ReleaseFileHandle, so its ctx
	// may be torn down before the dirty-handle upload below completes;
	// isolate from it so that upload still runs to completion.
	ctx, cancel := util.IsolateContextFromParentContext(ctx)
	defer cancel()
	defer fs.record(ctx, "ReleaseFileHandle", time.Now(), &err)

	fs.mu.Lock()
	entry, ok := fs.files.Get(uint64(op.Handle))
	fs.mu.Unlock()
	if !ok {
		return fuse.EINVAL
	}

	if entry.Dirty {
		fs.mu.Lock()
		p, found := fs.reg.Resolve(entry.Inode)
		fs.mu.Unlock()
		if found {
			if err := fs.remote.Upload(entry.File, p); err != nil {
				return translate(err)
			}
			fs.mu.Lock()
			entry.Dirty = false
			fs.mu.Unlock()
		}
	}

	entry.File.Close()

	fs.mu.Lock()
	fs.files.Remove(uint64(op.Handle))
	last := !fs.files.AnyForInode(entry.Inode, 0)
	var path string
	if last {
		path, _ = fs.reg.Resolve(entry.Inode)
		fs.reg.Forget(entry.Inode, path)
	}
	fs.mu.Unlock()

	if last {
		if err := fs.cache.Evict(path); err != nil {
			logger.Warnf("release: evicting %q: %v", path, err)
		}
	}
	return nil
}

// record reports op's latency and outcome to the engine's metrics Handle.
// It is called via defer with a pointer to the method's named error return,
// so it observes the final error after the method body has run.
func (fs *Engine) record(ctx context.Context, op string, start time.Time, errp *error) {
	fs.metrics.RecordOp(ctx, op, time.Since(start), *errp)
}

func dupFile(f *os.File) (*os.File, error) {
	fd, err := syscall.Dup(int(f.Fd()))
	if err != nil {
		return nil, err
	}
	return os.NewFile(uintptr(fd), f.Name()), nil
}

func wantsWrite(flags fuseops.OpenFlags) bool {
	acc := int(flags) & (syscall.O_WRONLY | syscall.O_RDWR)
	return acc == syscall.O_WRONLY || acc == syscall.O_RDWR
}

func joinChild(parent, name string) string {
	if parent == "/" {
		return "/" + name
	}
	return parent + "/" + name
}

func toRemoteStat(st remote.Stat) attrs.RemoteStat {
	out := attrs.RemoteStat{
		Size:  st.Size,
		Mode:  st.Mode,
		IsDir: st.IsDir,
	}
	if st.ModTime != 0 {
		out.ModTime = time.Unix(st.ModTime, 0)
	}
	return out
}

// translate converts a domain error into the kernel error code the FUSE
// dispatcher expects. This is the single point in the engine where that
// conversion happens.
func translate(err error) error {
	if err == nil {
		return nil
	}
	switch fserrors.KindOf(err) {
	case fserrors.NotFound:
		return fuse.ENOENT
	case fserrors.NotADirectory:
		return fuse.ENOTDIR
	case fserrors.InvalidArgument:
		return fuse.EINVAL
	case fserrors.PermissionDenied:
		return fuse.EACCES
	case fserrors.AlreadyExists:
		return fuse.EEXIST
	default:
		return fuse.EIO
	}
}
