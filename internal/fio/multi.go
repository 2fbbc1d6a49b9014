package fio

import (
	"context"
	"io"
	"os"

	"dbbackup/internal/xerrors"
)

type backend interface {
	open(ctx context.Context, path string, flag int, perm os.FileMode) (File, error)
	stat(ctx context.Context, path string) (os.FileInfo, error)
	chmod(ctx context.Context, path string, mode os.FileMode) error
	mkdir(ctx context.Context, path string, perm os.FileMode) error
	rename(ctx context.Context, oldpath, newpath string) error
	unlink(ctx context.Context, path string) error
	opendir(ctx context.Context, path string) ([]DirEntry, error)
}

// multiFacade routes BackupHost calls to a local backend always, and
// DbHost calls to whichever backend New configured — local when PGDATA
// is on the same machine, remote (SFTP) otherwise.
type multiFacade struct {
	backupHost backend
	dbHost     backend
}

// New returns a Facade with the BackupHost location always local and
// the DbHost location backed by dbHost (pass NewLocalBackend() when
// PGDATA is local, or the result of NewRemoteBackend otherwise).
func New(dbHost backend) Facade {
	return &multiFacade{backupHost: NewLocalBackend(), dbHost: dbHost}
}

// NewWithHosts returns a Facade with explicit backends for both
// locations, for tests that want BackupHost rooted at an in-memory
// filesystem too instead of the real OS filesystem New always uses.
func NewWithHosts(backupHost, dbHost backend) Facade {
	return &multiFacade{backupHost: backupHost, dbHost: dbHost}
}

func (m *multiFacade) backend(loc Location) backend {
	if loc == DbHost {
		return m.dbHost
	}
	return m.backupHost
}

func (m *multiFacade) Open(ctx context.Context, loc Location, path string, flag int, perm os.FileMode) (File, error) {
	return m.backend(loc).open(ctx, path, flag, perm)
}

func (m *multiFacade) Stat(ctx context.Context, loc Location, path string) (os.FileInfo, error) {
	return m.backend(loc).stat(ctx, path)
}

func (m *multiFacade) Chmod(ctx context.Context, loc Location, path string, mode os.FileMode) error {
	return m.backend(loc).chmod(ctx, path, mode)
}

func (m *multiFacade) Mkdir(ctx context.Context, loc Location, path string, perm os.FileMode) error {
	return m.backend(loc).mkdir(ctx, path, perm)
}

func (m *multiFacade) Rename(ctx context.Context, loc Location, oldpath, newpath string) error {
	return m.backend(loc).rename(ctx, oldpath, newpath)
}

func (m *multiFacade) Unlink(ctx context.Context, loc Location, path string) error {
	return m.backend(loc).unlink(ctx, path)
}

func (m *multiFacade) Opendir(ctx context.Context, loc Location, path string) ([]DirEntry, error) {
	return m.backend(loc).opendir(ctx, path)
}

// SendPages streams n bytes starting at off from srcPath to dstPath,
// crossing Locations when src and dst differ (e.g. DbHost → BackupHost
// during a remote backup). No decode/encode step is applied: callers
// of the Data-File Engine pass already-framed bytes.
func (m *multiFacade) SendPages(ctx context.Context, srcLoc Location, srcPath string, off, n int64, dstLoc Location, dstPath string) error {
	src, err := m.Open(ctx, srcLoc, srcPath, os.O_RDONLY, 0)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := m.Open(ctx, dstLoc, dstPath, os.O_WRONLY|os.O_CREATE, 0640)
	if err != nil {
		return err
	}
	defer dst.Close()

	buf := make([]byte, 256*1024)
	var copied int64
	srcOff, dstOff := off, off
	for copied < n {
		chunk := int64(len(buf))
		if remaining := n - copied; remaining < chunk {
			chunk = remaining
		}
		rn, rerr := src.Pread(buf[:chunk], srcOff)
		if rn > 0 {
			if _, werr := dst.Pwrite(buf[:rn], dstOff); werr != nil {
				return xerrors.Wrap(xerrors.KindIO, xerrors.SeverityError, werr, "send-pages write")
			}
			copied += int64(rn)
			srcOff += int64(rn)
			dstOff += int64(rn)
		}
		if rerr != nil {
			if rerr == io.EOF {
				break
			}
			return xerrors.Wrap(xerrors.KindIO, xerrors.SeverityError, rerr, "send-pages read")
		}
		if rn == 0 {
			break
		}
	}
	return dst.Flush()
}
