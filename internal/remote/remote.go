// Package remote is the Remote Adapter: a narrow facade over the SFTP
// session exposing exactly the capabilities the engine needs — stat,
// directory probe, whole-file fetch, whole-file upload — so that a
// local-filesystem fake can substitute for it in tests.
package remote

import (
	"io"
	"os"
	"path"

	"github.com/pkg/sftp"
	"github.com/sftpfs/sftpfs/internal/fserrors"
)

// Stat is the remote attribute information the adapter reports back.
type Stat struct {
	Size    uint64
	Mode    os.FileMode
	ModTime int64 // unix seconds; zero means unknown
	IsDir   bool
}

// Adapter is the capability set the VFS Request Handler depends on. It is
// expressed as an interface, not a concrete SFTP type, precisely so tests
// can substitute an in-memory fake.
type Adapter interface {
	// Stat returns the attribute record for the backing-relative path, or
	// a fserrors.NotFound error if the remote stat fails.
	Stat(relPath string) (Stat, error)
	// IsDir reports whether relPath is a directory on the remote side.
	// Any failure is reported as false, never as an error.
	IsDir(relPath string) bool
	// Fetch streams the whole remote file at relPath into local, then
	// flushes it. Returns a fserrors.IO error if the transport fails.
	Fetch(relPath string, local *os.File) error
	// Upload rewinds local to offset zero, reads its entire content, and
	// writes it to relPath on the remote side, opened for write, create,
	// and truncate. Returns a fserrors.IO error on failure. SFTPAdapter
	// passes no permission bits, so a newly created remote file gets the
	// server's default mode.
	Upload(local *os.File, relPath string) error
}

// sftpClient is the subset of *sftp.Client this adapter calls, narrowed so
// the adapter itself stays easy to fake in tests that don't want a real
// SFTP round trip either.
type sftpClient interface {
	Stat(path string) (os.FileInfo, error)
	Open(path string) (sftpFile, error)
	OpenFile(path string, flags int) (sftpFile, error)
}

// sftpFile is the subset of *sftp.File used here.
type sftpFile interface {
	io.ReadWriteCloser
}

// SFTPAdapter implements Adapter over a live SFTP session rooted at a fixed
// backing directory on the remote host.
type SFTPAdapter struct {
	client     sftpClient
	backingDir string
}

// realSFTPClient adapts *sftp.Client to the narrow sftpClient interface;
// *sftp.Client itself returns concrete *sftp.File values, which must be
// converted to the sftpFile interface at the call site for the interface
// satisfaction to hold.
type realSFTPClient struct {
	*sftp.Client
}

func (r realSFTPClient) Open(path string) (sftpFile, error) {
	return r.Client.Open(path)
}

func (r realSFTPClient) OpenFile(path string, flags int) (sftpFile, error) {
	return r.Client.OpenFile(path, flags)
}

// NewSFTPAdapter returns an Adapter backed by client, resolving
// backing-relative paths under backingDir.
func NewSFTPAdapter(client *sftp.Client, backingDir string) *SFTPAdapter {
	return &SFTPAdapter{client: realSFTPClient{client}, backingDir: backingDir}
}

func (a *SFTPAdapter) remotePath(relPath string) string {
	return path.Join(a.backingDir, relPath)
}

func (a *SFTPAdapter) Stat(relPath string) (Stat, error) {
	info, err := a.client.Stat(a.remotePath(relPath))
	if err != nil {
		return Stat{}, fserrors.New(fserrors.NotFound, "remote.Stat", err)
	}
	return Stat{
		Size:    uint64(info.Size()),
		Mode:    info.Mode(),
		ModTime: info.ModTime().Unix(),
		IsDir:   info.IsDir(),
	}, nil
}

func (a *SFTPAdapter) IsDir(relPath string) bool {
	info, err := a.client.Stat(a.remotePath(relPath))
	if err != nil {
		return false
	}
	return info.IsDir()
}

func (a *SFTPAdapter) Fetch(relPath string, local *os.File) error {
	remote, err := a.client.Open(a.remotePath(relPath))
	if err != nil {
		return fserrors.New(fserrors.IO, "remote.Fetch", err)
	}
	defer remote.Close()

	if _, err := io.Copy(local, remote); err != nil {
		return fserrors.New(fserrors.IO, "remote.Fetch", err)
	}
	if err := local.Sync(); err != nil {
		return fserrors.New(fserrors.IO, "remote.Fetch", err)
	}
	return nil
}

func (a *SFTPAdapter) Upload(local *os.File, relPath string) error {
	if _, err := local.Seek(0, io.SeekStart); err != nil {
		return fserrors.New(fserrors.IO, "remote.Upload", err)
	}

	remote, err := a.client.OpenFile(a.remotePath(relPath), os.O_WRONLY|os.O_CREATE|os.O_TRUNC)
	if err != nil {
		return fserrors.New(fserrors.IO, "remote.Upload", err)
	}
	defer remote.Close()

	if _, err := io.Copy(remote, local); err != nil {
		return fserrors.New(fserrors.IO, "remote.Upload", err)
	}
	return nil
}
