package fio

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/afero"
	"golang.org/x/sys/unix"

	"dbbackup/internal/xerrors"
)

// localBackend implements the per-Location file operations against a
// single afero.Fs — the real OS filesystem by default, an in-memory
// tree in tests.
type localBackend struct {
	fs afero.Fs
}

// NewLocalBackend returns a backend rooted at the real OS filesystem.
func NewLocalBackend() *localBackend {
	return &localBackend{fs: afero.NewOsFs()}
}

// NewLocalBackendFS returns a backend over a caller-supplied afero.Fs,
// for tests that want afero.NewMemMapFs().
func NewLocalBackendFS(fs afero.Fs) *localBackend {
	return &localBackend{fs: fs}
}

func (b *localBackend) open(_ context.Context, path string, flag int, perm os.FileMode) (File, error) {
	f, err := b.fs.OpenFile(path, flag, perm)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.KindIO, xerrors.SeverityError, err, "open "+path)
	}
	return &localFile{f: f}, nil
}

func (b *localBackend) stat(_ context.Context, path string) (os.FileInfo, error) {
	fi, err := b.fs.Stat(path)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.KindIO, xerrors.SeverityError, err, "stat "+path)
	}
	return fi, nil
}

func (b *localBackend) chmod(_ context.Context, path string, mode os.FileMode) error {
	return b.fs.Chmod(path, mode)
}

func (b *localBackend) mkdir(_ context.Context, path string, perm os.FileMode) error {
	return b.fs.MkdirAll(path, perm)
}

func (b *localBackend) rename(_ context.Context, oldpath, newpath string) error {
	return b.fs.Rename(oldpath, newpath)
}

func (b *localBackend) unlink(_ context.Context, path string) error {
	err := b.fs.Remove(path)
	if err != nil && os.IsNotExist(err) {
		return nil
	}
	return err
}

func (b *localBackend) opendir(_ context.Context, path string) ([]DirEntry, error) {
	infos, err := afero.ReadDir(b.fs, path)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.KindIO, xerrors.SeverityError, err, "opendir "+path)
	}
	out := make([]DirEntry, 0, len(infos))
	for _, fi := range infos {
		entry := DirEntry{
			Name:    fi.Name(),
			Mode:    fi.Mode(),
			Size:    fi.Size(),
			ModTime: fi.ModTime(),
			IsDir:   fi.IsDir(),
		}
		if fi.Mode()&os.ModeSymlink != 0 {
			entry.IsLink = true
			if target, err := os.Readlink(filepath.Join(path, fi.Name())); err == nil {
				entry.LinkTo = target
			}
		}
		out = append(out, entry)
	}
	return out, nil
}

// localFile wraps an afero.File, adding positioned Pread/Pwrite. When
// the underlying file exposes a real file descriptor (the OS backend),
// positioned access goes through pread(2)/pwrite(2) directly; against
// an in-memory afero.Fs it falls back to ReaderAt/WriterAt, which
// afero's mem.File also implements.
type localFile struct {
	mu sync.Mutex
	f  afero.File
}

func (lf *localFile) Read(p []byte) (int, error)  { return lf.f.Read(p) }
func (lf *localFile) Write(p []byte) (int, error) { return lf.f.Write(p) }
func (lf *localFile) Close() error                { return lf.f.Close() }
func (lf *localFile) Flush() error                { return lf.f.Sync() }
func (lf *localFile) Stat() (os.FileInfo, error)  { return lf.f.Stat() }
func (lf *localFile) Chmod(mode os.FileMode) error {
	return os.Chmod(lf.f.Name(), mode)
}

func (lf *localFile) Fseek(offset int64, whence int) (int64, error) {
	return lf.f.Seek(offset, whence)
}

func (lf *localFile) Ftruncate(size int64) error {
	return lf.f.Truncate(size)
}

func (lf *localFile) Pread(p []byte, off int64) (int, error) {
	if osf, ok := lf.f.(*os.File); ok {
		n, err := unix.Pread(int(osf.Fd()), p, off)
		if err != nil {
			return n, fmt.Errorf("fio: pread %s at %d: %w", osf.Name(), off, err)
		}
		return n, nil
	}
	if ra, ok := lf.f.(io.ReaderAt); ok {
		return ra.ReadAt(p, off)
	}
	return lf.seekReadFallback(p, off)
}

func (lf *localFile) Pwrite(p []byte, off int64) (int, error) {
	if osf, ok := lf.f.(*os.File); ok {
		n, err := unix.Pwrite(int(osf.Fd()), p, off)
		if err != nil {
			return n, fmt.Errorf("fio: pwrite %s at %d: %w", osf.Name(), off, err)
		}
		return n, nil
	}
	if wa, ok := lf.f.(io.WriterAt); ok {
		return wa.WriteAt(p, off)
	}
	return lf.seekWriteFallback(p, off)
}

// seekReadFallback/seekWriteFallback serialize position changes
// against concurrent callers of the same handle; only reached for
// afero backends that expose neither a real fd nor ReaderAt/WriterAt.
func (lf *localFile) seekReadFallback(p []byte, off int64) (int, error) {
	lf.mu.Lock()
	defer lf.mu.Unlock()
	if _, err := lf.f.Seek(off, io.SeekStart); err != nil {
		return 0, err
	}
	return lf.f.Read(p)
}

func (lf *localFile) seekWriteFallback(p []byte, off int64) (int, error) {
	lf.mu.Lock()
	defer lf.mu.Unlock()
	if _, err := lf.f.Seek(off, io.SeekStart); err != nil {
		return 0, err
	}
	return lf.f.Write(p)
}
