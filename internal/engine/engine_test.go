package engine

import (
	"context"
	"io"
	"os"
	"testing"
	"time"

	"github.com/jacobsa/fuse"
	"github.com/jacobsa/fuse/fuseops"
	"github.com/sftpfs/sftpfs/internal/cachestore"
	"github.com/sftpfs/sftpfs/internal/clock"
	"github.com/sftpfs/sftpfs/internal/fserrors"
	"github.com/sftpfs/sftpfs/internal/remote"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAdapter is an in-memory stand-in for remote.Adapter, grounded on the
// spec's own note that the adapter is a narrow interface precisely so a
// local-filesystem fake can substitute for it in tests.
type fakeAdapter struct {
	files   map[string][]byte
	dirs    map[string]bool
	uploads map[string][]byte
}

func newFakeAdapter() *fakeAdapter {
	return &fakeAdapter{files: map[string][]byte{}, dirs: map[string]bool{}, uploads: map[string][]byte{}}
}

func (a *fakeAdapter) Stat(p string) (remote.Stat, error) {
	if a.dirs[p] {
		return remote.Stat{IsDir: true}, nil
	}
	content, ok := a.files[p]
	if !ok {
		return remote.Stat{}, fserrors.New(fserrors.NotFound, "fake.Stat", os.ErrNotExist)
	}
	return remote.Stat{Size: uint64(len(content))}, nil
}

func (a *fakeAdapter) IsDir(p string) bool { return a.dirs[p] }

func (a *fakeAdapter) Fetch(p string, local *os.File) error {
	content, ok := a.files[p]
	if !ok {
		return fserrors.New(fserrors.NotFound, "fake.Fetch", os.ErrNotExist)
	}
	_, err := local.Write(content)
	return err
}

func (a *fakeAdapter) Upload(local *os.File, p string) error {
	if _, err := local.Seek(0, io.SeekStart); err != nil {
		return err
	}
	content, err := io.ReadAll(local)
	if err != nil {
		return err
	}
	a.uploads[p] = content
	a.files[p] = content
	return nil
}

func newTestEngine(t *testing.T) (*Engine, *fakeAdapter) {
	t.Helper()
	adapter := newFakeAdapter()
	store, err := cachestore.New(t.TempDir(), "ns")
	require.NoError(t, err)
	return New(adapter, store), adapter
}

func internChild(t *testing.T, fs *Engine, parent fuseops.InodeID, name string) fuseops.InodeID {
	t.Helper()
	op := &fuseops.LookUpInodeOp{Parent: parent, Name: name}
	err := fs.LookUpInode(context.Background(), op)
	require.NoError(t, err)
	return op.Entry.Child
}

func TestLookUpInode_ResolvesChildAttributes(t *testing.T) {
	fs, adapter := newTestEngine(t)
	adapter.files["/hello.txt"] = []byte("hi\n")

	op := &fuseops.LookUpInodeOp{Parent: fuseops.RootInodeID, Name: "hello.txt"}
	err := fs.LookUpInode(context.Background(), op)

	require.NoError(t, err)
	assert.Equal(t, uint64(3), op.Entry.Attributes.Size)
}

func TestLookUpInode_MissingModTimeDefaultsToInstalledClock(t *testing.T) {
	fs, adapter := newTestEngine(t)
	adapter.files["/hello.txt"] = []byte("hi\n")
	sim := clock.NewSimulatedClock(time.Date(2020, 3, 4, 5, 6, 7, 0, time.UTC))
	fs.WithClock(sim)

	op := &fuseops.LookUpInodeOp{Parent: fuseops.RootInodeID, Name: "hello.txt"}
	require.NoError(t, fs.LookUpInode(context.Background(), op))

	assert.Equal(t, sim.Now(), op.Entry.Attributes.Mtime)
}

func TestLookUpInode_MissingRemoteFileIsENOENT(t *testing.T) {
	fs, _ := newTestEngine(t)

	op := &fuseops.LookUpInodeOp{Parent: fuseops.RootInodeID, Name: "missing.txt"}
	err := fs.LookUpInode(context.Background(), op)

	assert.Equal(t, fuse.ENOENT, err)
}

func TestLookUpInode_UnknownParentIsENOENT(t *testing.T) {
	fs, _ := newTestEngine(t)

	op := &fuseops.LookUpInodeOp{Parent: fuseops.InodeID(999999), Name: "x"}
	err := fs.LookUpInode(context.Background(), op)

	assert.Equal(t, fuse.ENOENT, err)
}

func TestGetInodeAttributes_Root(t *testing.T) {
	fs, _ := newTestEngine(t)

	op := &fuseops.GetInodeAttributesOp{Inode: fuseops.RootInodeID}
	err := fs.GetInodeAttributes(context.Background(), op)

	require.NoError(t, err)
	assert.True(t, op.Attributes.Mode.IsDir())
}

func TestOpenReadRelease_FetchesOnMiss(t *testing.T) {
	fs, adapter := newTestEngine(t)
	adapter.files["/hello.txt"] = []byte("hello world")
	child := internChild(t, fs, fuseops.RootInodeID, "hello.txt")

	openOp := &fuseops.OpenFileOp{Inode: child}
	require.NoError(t, fs.OpenFile(context.Background(), openOp))

	readOp := &fuseops.ReadFileOp{
		Handle: openOp.Handle,
		Offset: 0,
		Size:   5,
		Dst:    make([]byte, 5),
	}
	require.NoError(t, fs.ReadFile(context.Background(), readOp))
	assert.Equal(t, "hello", string(readOp.Dst[:readOp.BytesRead]))

	releaseOp := &fuseops.ReleaseFileHandleOp{Handle: openOp.Handle}
	require.NoError(t, fs.ReleaseFileHandle(context.Background(), releaseOp))
}

func TestWriteFlush_UploadsOnDirtyHandle(t *testing.T) {
	fs, adapter := newTestEngine(t)
	adapter.files["/out.txt"] = []byte("old")
	child := internChild(t, fs, fuseops.RootInodeID, "out.txt")

	openOp := &fuseops.OpenFileOp{Inode: child, Flags: fuseops.OpenFlags(os.O_RDWR)}
	require.NoError(t, fs.OpenFile(context.Background(), openOp))

	writeOp := &fuseops.WriteFileOp{Handle: openOp.Handle, Offset: 0, Data: []byte("new!!")}
	require.NoError(t, fs.WriteFile(context.Background(), writeOp))

	flushOp := &fuseops.FlushFileOp{Handle: openOp.Handle}
	require.NoError(t, fs.FlushFile(context.Background(), flushOp))

	assert.Equal(t, []byte("new!!"), adapter.uploads["/out.txt"])
}

func TestWriteFile_RejectsWriteOnReadOnlyHandle(t *testing.T) {
	fs, adapter := newTestEngine(t)
	adapter.files["/ro.txt"] = []byte("data")
	child := internChild(t, fs, fuseops.RootInodeID, "ro.txt")

	openOp := &fuseops.OpenFileOp{Inode: child, Flags: fuseops.OpenFlags(os.O_RDONLY)}
	require.NoError(t, fs.OpenFile(context.Background(), openOp))

	writeOp := &fuseops.WriteFileOp{Handle: openOp.Handle, Offset: 0, Data: []byte("x")}
	err := fs.WriteFile(context.Background(), writeOp)

	assert.Equal(t, fuse.EACCES, err)
}

func TestSecondOpen_DowngradedToReadOnlyWhileFirstIsDirty(t *testing.T) {
	fs, adapter := newTestEngine(t)
	adapter.files["/shared.txt"] = []byte("data")
	child := internChild(t, fs, fuseops.RootInodeID, "shared.txt")

	first := &fuseops.OpenFileOp{Inode: child, Flags: fuseops.OpenFlags(os.O_RDWR)}
	require.NoError(t, fs.OpenFile(context.Background(), first))
	require.NoError(t, fs.WriteFile(context.Background(), &fuseops.WriteFileOp{
		Handle: first.Handle, Offset: 0, Data: []byte("x"),
	}))

	second := &fuseops.OpenFileOp{Inode: child, Flags: fuseops.OpenFlags(os.O_RDWR)}
	require.NoError(t, fs.OpenFile(context.Background(), second))

	writeOp := &fuseops.WriteFileOp{Handle: second.Handle, Offset: 0, Data: []byte("y")}
	err := fs.WriteFile(context.Background(), writeOp)
	assert.Equal(t, fuse.EACCES, err)
}

func TestReadFile_UnknownHandleIsEINVAL(t *testing.T) {
	fs, _ := newTestEngine(t)

	err := fs.ReadFile(context.Background(), &fuseops.ReadFileOp{Handle: 999, Size: 1, Dst: make([]byte, 1)})

	assert.Equal(t, fuse.EINVAL, err)
}

func TestRelease_EvictsCacheWhenLastHandleCloses(t *testing.T) {
	fs, adapter := newTestEngine(t)
	adapter.files["/solo.txt"] = []byte("x")
	child := internChild(t, fs, fuseops.RootInodeID, "solo.txt")

	openOp := &fuseops.OpenFileOp{Inode: child}
	require.NoError(t, fs.OpenFile(context.Background(), openOp))
	require.NoError(t, fs.ReleaseFileHandle(context.Background(), &fuseops.ReleaseFileHandleOp{Handle: openOp.Handle}))

	_, ok := fs.reg.Resolve(child)
	assert.False(t, ok)
	_, staged := fs.cache.Stat("/solo.txt")
	assert.False(t, staged)
}
