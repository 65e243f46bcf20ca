// Package attrs projects remote stat results into the kernel-facing
// attribute records the FUSE layer expects (fuseops.InodeAttributes).
package attrs

import (
	"os"
	"time"

	"github.com/jacobsa/fuse/fuseops"

	"github.com/sftpfs/sftpfs/internal/clock"
)

const (
	// DefaultDirMode is the permission bits reported for a directory whose
	// remote mode could not be determined.
	DefaultDirMode = os.FileMode(0o755)
	// DefaultFileMode is the permission bits reported for a regular file
	// whose remote mode could not be determined.
	DefaultFileMode = os.FileMode(0o644)
	// BlockSize is the block size of an attribute record. Project does not
	// set a block size in the records it returns.
	BlockSize = 512
)

// RemoteStat is the subset of a remote stat result this projection needs.
// The engine fills IsDir from the Remote Adapter's Stat result, which takes
// it from the remote file mode.
type RemoteStat struct {
	Size    uint64
	Mode    os.FileMode // zero means "unknown, use the default for IsDir"
	ModTime time.Time   // zero means "unknown, use now"
	Uid     uint32      // used only when HasUid; otherwise the process owner
	Gid     uint32      // used only when HasGid; otherwise the process group
	HasUid  bool
	HasGid  bool
	IsDir   bool
}

// Project converts a RemoteStat into the attribute record the kernel
// expects. Missing owner/group default to the current process's
// effective ids; missing permission bits default to DefaultDirMode or
// DefaultFileMode; missing times default to now; creation and change times
// mirror modification time.
func Project(st RemoteStat) fuseops.InodeAttributes {
	uid := uint32(os.Getuid())
	if st.HasUid {
		uid = st.Uid
	}
	gid := uint32(os.Getgid())
	if st.HasGid {
		gid = st.Gid
	}

	mode := st.Mode
	if mode == 0 {
		if st.IsDir {
			mode = DefaultDirMode
		} else {
			mode = DefaultFileMode
		}
	}
	if st.IsDir {
		mode |= os.ModeDir
	}

	mtime := st.ModTime
	if mtime.IsZero() {
		mtime = time.Now()
	}

	size := st.Size
	nlink := uint64(1)
	if st.IsDir {
		size = 0
		nlink = 2
	}

	return fuseops.InodeAttributes{
		Size:   size,
		Nlink:  nlink,
		Mode:   mode,
		Atime:  mtime,
		Mtime:  mtime,
		Ctime:  mtime,
		Crtime: mtime,
		Uid:    uid,
		Gid:    gid,
	}
}

// RootAttributes returns the synthetic attribute record for the root
// inode: current-time stamps, directory mode 0755, owned by this process.
func RootAttributes() fuseops.InodeAttributes {
	return Project(RemoteStat{IsDir: true, Mode: DefaultDirMode})
}

// Projector defaults a missing RemoteStat.ModTime to a Clock's notion of
// now instead of the real wall clock, so callers can substitute a
// clock.SimulatedClock in tests that assert on the "missing time" case.
type Projector struct {
	Clock clock.Clock
}

// NewProjector returns a Projector that fills in missing modification
// times from c.
func NewProjector(c clock.Clock) *Projector {
	return &Projector{Clock: c}
}

// Project behaves like the package-level Project, except a zero ModTime is
// filled in from p.Clock rather than time.Now.
func (p *Projector) Project(st RemoteStat) fuseops.InodeAttributes {
	if st.ModTime.IsZero() {
		st.ModTime = p.Clock.Now()
	}
	return Project(st)
}

// RootAttributes is the Projector-scoped equivalent of the package-level
// RootAttributes.
func (p *Projector) RootAttributes() fuseops.InodeAttributes {
	return p.Project(RemoteStat{IsDir: true, Mode: DefaultDirMode})
}
