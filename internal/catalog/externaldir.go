package catalog

import (
	"archive/tar"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"

	"github.com/klauspost/pgzip"

	"dbbackup/internal/xerrors"
)

// ExternalDirName returns the on-disk name for the Nth user-listed
// external directory (0 is reserved for PGDATA itself).
func ExternalDirName(n int) string {
	return fmt.Sprintf("externaldir%d", n)
}

// ExternalDirsRoot is <backup-dir>/external_directories/.
func ExternalDirsRoot(backupDir string) string {
	return filepath.Join(backupDir, "external_directories")
}

// PackExternalDir copies srcDir into
// <backup-dir>/external_directories/externaldir<n>/, mirroring relative
// paths plainly unless compress requests a tar.gz stream, which is used
// when the destination is a remote host reached over an SSH-tunneled
// transport: fewer round trips at the cost of CPU, using parallel gzip.
func PackExternalDir(ctx context.Context, srcDir, backupDir string, n int, compress bool) error {
	destDir := filepath.Join(ExternalDirsRoot(backupDir), ExternalDirName(n))
	if !compress {
		return copyDirPlain(ctx, srcDir, destDir)
	}
	return packDirTarGz(ctx, srcDir, destDir+".tar.gz")
}

func copyDirPlain(ctx context.Context, srcDir, destDir string) error {
	return filepath.Walk(srcDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}
		target := filepath.Join(destDir, rel)
		switch {
		case info.IsDir():
			return os.MkdirAll(target, 0750)
		case info.Mode()&os.ModeSymlink != 0:
			link, err := os.Readlink(path)
			if err != nil {
				return err
			}
			return os.Symlink(link, target)
		default:
			return copyFilePlain(path, target, info.Mode())
		}
	})
}

func copyFilePlain(src, dst string, mode os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0750); err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return xerrors.Wrap(xerrors.KindIO, xerrors.SeverityError, err, "open external-dir source file")
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return xerrors.Wrap(xerrors.KindIO, xerrors.SeverityError, err, "create external-dir dest file")
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return xerrors.Wrap(xerrors.KindIO, xerrors.SeverityError, err, "copy external-dir file")
	}
	return out.Sync()
}

func packDirTarGz(ctx context.Context, srcDir, destArchive string) error {
	if err := os.MkdirAll(filepath.Dir(destArchive), 0750); err != nil {
		return err
	}
	out, err := os.Create(destArchive)
	if err != nil {
		return xerrors.Wrap(xerrors.KindIO, xerrors.SeverityError, err, "create external-dir archive")
	}
	defer out.Close()

	gz, err := pgzip.NewWriterLevel(out, pgzip.DefaultCompression)
	if err != nil {
		return err
	}
	if err := gz.SetConcurrency(1<<20, runtime.NumCPU()); err != nil {
		return err
	}
	defer gz.Close()

	tw := tar.NewWriter(gz)
	defer tw.Close()

	err = filepath.Walk(srcDir, func(path string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		hdr.Name = rel
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if info.Mode().IsRegular() {
			f, err := os.Open(path)
			if err != nil {
				return err
			}
			_, err = io.Copy(tw, f)
			f.Close()
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return xerrors.Wrap(xerrors.KindIO, xerrors.SeverityError, err, "pack external directory")
	}
	if err := tw.Close(); err != nil {
		return err
	}
	return gz.Close()
}
