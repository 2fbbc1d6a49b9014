package datafile

import (
	"context"
	"hash/crc32"
	"io"
	"os"
	"time"

	"dbbackup/internal/fio"
)

// CopyNonDataFile copies a non-relation file (small config, WAL segment
// staged for the backup label, control file) whole, without page
// framing, computing its CRC as it streams.
func CopyNonDataFile(ctx context.Context, fac fio.Facade, srcPath, dstPath string) (size int64, crc uint32, err error) {
	src, err := fac.Open(ctx, fio.DbHost, srcPath, os.O_RDONLY, 0)
	if err != nil {
		return 0, 0, err
	}
	defer src.Close()

	dst, err := fac.Open(ctx, fio.BackupHost, dstPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return 0, 0, err
	}
	defer dst.Close()

	table := crc32.IEEETable
	buf := make([]byte, 64*1024)
	var n64 int64
	var sum uint32
	for {
		if err := checkInterrupt(ctx); err != nil {
			return n64, sum, err
		}
		n, rerr := src.Read(buf)
		if n > 0 {
			sum = crc32.Update(sum, table, buf[:n])
			if _, werr := dst.Write(buf[:n]); werr != nil {
				return n64, sum, werr
			}
			n64 += int64(n)
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return n64, sum, rerr
		}
	}
	if err := dst.Flush(); err != nil {
		return n64, sum, err
	}
	return n64, sum, nil
}

// ShouldSkipUnchanged reports whether a non-data file that existed in the
// parent backup can be skipped entirely (no bytes copied, the file-list
// line reuses the parent's recorded CRC): it must predate the parent's
// start time. A file whose mtime is that old and whose size matches the
// parent's entry is assumed unchanged without re-reading its contents —
// recomputing the CRC would require the very read this optimization
// exists to avoid.
func ShouldSkipUnchanged(existsInPrev bool, srcMtime, parentStartTime time.Time, srcSize, parentSize int64) bool {
	return existsInPrev && srcSize == parentSize && srcMtime.Before(parentStartTime)
}
