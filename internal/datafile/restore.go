package datafile

import (
	"context"
	"io"
	"os"

	"dbbackup/internal/catalog"
	"dbbackup/internal/fio"
	"dbbackup/internal/pagecodec"
	"dbbackup/internal/xerrors"
)

// RestoreOptions configures one file's restore pass.
type RestoreOptions struct {
	CompressAlg catalog.CompressAlg
	// LegacyFormat selects the pre-2.0.23 decompress heuristic
	// (pagecodec.DecompressLegacySizeEqualRaw) for backups written by an
	// older program version.
	LegacyFormat bool
	// HeaderStride restores into a merged intermediate that preserves
	// frame headers: when true, block N lands at
	// N*(BLCKSZ+frameHeaderSize) rather than N*BLCKSZ.
	HeaderStride bool
	// FinalBlockCount, when >= 0, is the DELTA backup's recorded block
	// count; if the target file is longer than this after restore, it is
	// truncated to match.
	FinalBlockCount int64
}

const frameHeaderSize = 8

// RestoreFile replays a backed-up data file's frames onto dstPath,
// opened read-write so a merge/incremental restore can lay multiple
// backups' frames onto the same target. It is the structural inverse of
// BackupFile: read each frame, decompress if needed, seek to the frame's
// block offset, and write; a PageIsTruncated sentinel terminates the
// loop with an ftruncate at that block.
func RestoreFile(ctx context.Context, fac fio.Facade, srcPath, dstPath string, opts RestoreOptions) error {
	src, err := fac.Open(ctx, fio.BackupHost, srcPath, os.O_RDONLY, 0)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := fac.Open(ctx, fio.DbHost, dstPath, os.O_RDWR|os.O_CREATE, 0600)
	if err != nil {
		return err
	}
	defer dst.Close()

	page := make([]byte, pagecodec.PageSize)
	var lastBlock int64 = -1

	for {
		if err := checkInterrupt(ctx); err != nil {
			return err
		}

		hdr, payload, rerr := pagecodec.ReadFrame(src)
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return xerrors.Wrap(xerrors.KindIO, xerrors.SeverityError, rerr, "read page frame").WithDetails(srcPath)
		}

		if hdr.CompressedSize == pagecodec.PageIsTruncated {
			if err := dst.Ftruncate(blockOffset(int64(hdr.Block), opts.HeaderStride)); err != nil {
				return xerrors.Wrap(xerrors.KindIO, xerrors.SeverityError, err, "truncate restored file").WithDetails(dstPath)
			}
			return nil
		}

		n, derr := decodeFramePayload(opts, payload, page)
		if derr != nil {
			return xerrors.Wrap(xerrors.KindPage, xerrors.SeverityError, derr, "decompress page frame").WithDetails(srcPath)
		}

		off := blockOffset(int64(hdr.Block), opts.HeaderStride)
		if _, err := dst.Pwrite(page[:n], off); err != nil {
			return xerrors.Wrap(xerrors.KindIO, xerrors.SeverityError, err, "write restored page").WithDetails(dstPath)
		}
		lastBlock = int64(hdr.Block)
	}

	if opts.FinalBlockCount >= 0 {
		fi, err := dst.Stat()
		if err == nil {
			wantSize := blockOffset(opts.FinalBlockCount, opts.HeaderStride)
			if fi.Size() > wantSize {
				if err := dst.Ftruncate(wantSize); err != nil {
					return xerrors.Wrap(xerrors.KindIO, xerrors.SeverityError, err, "truncate delta-restored file").WithDetails(dstPath)
				}
			}
		}
	}
	_ = lastBlock
	return nil
}

func blockOffset(block int64, headerStride bool) int64 {
	if headerStride {
		return block * (pagecodec.PageSize + frameHeaderSize)
	}
	return block * pagecodec.PageSize
}

func decodeFramePayload(opts RestoreOptions, payload []byte, dst []byte) (int, error) {
	if opts.CompressAlg == catalog.CompressNone || len(payload) == pagecodec.PageSize {
		if opts.LegacyFormat && len(payload) == pagecodec.PageSize && opts.CompressAlg != catalog.CompressNone {
			return pagecodec.DecompressLegacySizeEqualRaw(payload, dst, pagecodec.PageSize)
		}
		copy(dst[:pagecodec.PageSize], payload)
		return pagecodec.PageSize, nil
	}
	return pagecodec.Decompress(opts.CompressAlg, payload, dst, pagecodec.PageSize)
}
