// Package datafile implements the Data-File Engine: the per-relation-
// segment-file page loop that decides, block by block, whether to copy,
// skip, or mark truncated; verifies headers and checksums with retry
// under torn-write conditions; frames kept blocks through
// internal/pagecodec; and the restore-side inverse of that loop.
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

// MaxReadRetries bounds the torn-page recovery loop: the database may be
// mid-write on a page, so a failed header/checksum check is retried this
// many times before being treated as corruption.
const MaxReadRetries = 100

// RelsegSize is the number of blocks per relation segment file (1 GiB /
// 8 KiB), the point at which PostgreSQL starts a new numbered segment.
const RelsegSize = 1024 * 1024 * 1024 / pagecodec.PageSize

// PtrackFetcher is the change-tracking extension's per-block RPC surface
// the read-retry loop falls back to when a disk re-read keeps failing.
// Only PtrackGetBlock2 is needed at this layer; the bulk bitmap RPCs live
// in internal/pagemap.
type PtrackFetcher interface {
	PtrackGetBlock2(ctx context.Context, relOID, forkNum, blockNum uint32) ([]byte, catalog.LSN, error)
}

// Options configures one file's backup pass.
type Options struct {
	Mode            catalog.Mode
	ChecksumEnabled bool
	ParentStartLSN  catalog.LSN // DELTA: pages with LSN below this are skipped
	CompressAlg     catalog.CompressAlg
	CompressLevel   int

	// Ptrack is non-nil when a change-tracking extension is available;
	// used only as a retry fallback in strict runs per spec.md §4.3,
	// never as the primary PTRACK source (internal/pagemap already
	// populated entry.PageMap for PTRACK mode).
	Ptrack PtrackFetcher
	// Strict distinguishes backup (true, corruption is fatal) from
	// checkdb (false, corruption is reported and scanning continues).
	// A strict run with Ptrack set breaks out of the retry loop on the
	// first torn read and fetches the page from the extension instead;
	// checkdb runs always retry to exhaustion and report, since a
	// diagnostic scan must not mask what it finds by silently patching it.
	Strict bool
}

// Result summarizes one file's backup pass, the fields the caller folds
// back into the FileEntry / byte-accounting totals.
type Result struct {
	WriteSize    int64
	Crc          uint32
	NBlocksTotal int64
	NBlocksRead  int64
	NBlocksSkip  int64
	Truncated    bool
	Deleted      bool // empty output file removed rather than kept
}

// BackupFile runs the page loop for one relation-segment file, reading
// from src (DbHost) and writing the framed, optionally compressed output
// to dst (BackupHost). entry.PageMap must already be populated for
// PAGE/PTRACK modes (internal/pagemap's job); entry.Segno identifies
// which segment (and therefore the absolute block-number base) this
// file is.
func BackupFile(ctx context.Context, fac fio.Facade, entry *catalog.FileEntry, opts Options, srcPath, dstPath string) (Result, error) {
	src, err := fac.Open(ctx, fio.DbHost, srcPath, os.O_RDONLY, 0)
	if err != nil {
		return Result{}, err
	}
	defer src.Close()

	dst, err := fac.Open(ctx, fio.BackupHost, dstPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return Result{}, err
	}
	defer dst.Close()

	var res Result
	segBase := uint32(entry.Segno) * RelsegSize
	page := make([]byte, pagecodec.PageSize)

	for blockInSeg := uint32(0); ; blockInSeg++ {
		if err := checkInterrupt(ctx); err != nil {
			return res, err
		}

		n, readErr := readBlockRetry(ctx, src, page, int64(blockInSeg)*pagecodec.PageSize, entry.RelOid, forkNumOf(entry.ForkName), segBase+blockInSeg, opts)
		if readErr == io.EOF || n == 0 {
			// Zero-length read: the file ends here. Write a PageIsTruncated
			// frame so restore knows to ftruncate at this block instead of
			// assuming the file ran the full segment length.
			hdr := pagecodec.Header{Block: blockInSeg, CompressedSize: pagecodec.PageIsTruncated}
			if err := pagecodec.WriteFrame(dst, hdr, nil, &res.Crc); err != nil {
				return res, xerrors.Wrap(xerrors.KindIO, xerrors.SeverityError, err, "write truncation frame").
					WithDetails(dstPath)
			}
			res.Truncated = true
			break
		}
		if readErr != nil {
			return res, readErr
		}
		res.NBlocksTotal++

		keep, skipReason := decideKeep(entry, opts, blockInSeg, page[:n])
		if !keep {
			res.NBlocksSkip++
			_ = skipReason
			continue
		}

		hdr, payload := pagecodec.BuildFrame(blockInSeg, page[:n], opts.CompressAlg, opts.CompressLevel)
		if err := pagecodec.WriteFrame(dst, hdr, payload, &res.Crc); err != nil {
			return res, xerrors.Wrap(xerrors.KindIO, xerrors.SeverityError, err, "write page frame").
				WithDetails(dstPath)
		}
		res.NBlocksRead++
		res.WriteSize += int64(frameWriteLen(hdr.CompressedSize))
	}

	if err := dst.Flush(); err != nil {
		return res, xerrors.Wrap(xerrors.KindIO, xerrors.SeverityError, err, "flush backup data file").WithDetails(dstPath)
	}

	if res.NBlocksRead == 0 && res.NBlocksSkip == res.NBlocksTotal && res.NBlocksTotal > 0 {
		// An empty file (every block skipped, none copied): delete the
		// placeholder rather than leaving a zero-byte file in the backup.
		_ = dst.Close()
		if err := fac.Unlink(ctx, fio.BackupHost, dstPath); err != nil {
			return res, err
		}
		res.Deleted = true
		res.WriteSize = catalog.BytesInvalid
	}

	entry.NBlocks = res.NBlocksTotal
	return res, nil
}

func frameWriteLen(compressedSize int32) int {
	const frameHeaderSize = 8
	if compressedSize < 0 {
		return frameHeaderSize
	}
	padded := (int(compressedSize) + maxAlign - 1) &^ (maxAlign - 1)
	return frameHeaderSize + padded
}

const maxAlign = 8

// decideKeep applies the backup-mode decision table of spec.md §4.3 to
// one already-read, already-validated page.
func decideKeep(entry *catalog.FileEntry, opts Options, block uint32, page []byte) (bool, string) {
	switch opts.Mode {
	case catalog.ModeFull:
		return true, ""
	case catalog.ModeDelta:
		if pagecodec.IsZeroed(page) {
			return true, ""
		}
		lsn, ok := pagecodec.Valid(page)
		if !ok {
			return true, "" // let the caller's corruption path decide; don't silently skip
		}
		if catalog.LSN(lsn) >= opts.ParentStartLSN {
			return true, ""
		}
		return false, "page-lsn below parent start-lsn"
	case catalog.ModePage, catalog.ModePtrack:
		if entry.PageMap == nil || entry.PageMap.Absent() {
			return true, "" // whole-file copy fallback
		}
		if entry.PageMap.Has(block) {
			return true, ""
		}
		return false, "block not in page map"
	default:
		return true, ""
	}
}

// readBlockRetry reads one BLCKSZ block at off, validating header and
// checksum (when enabled) with up to MaxReadRetries retries on a torn
// read. In a strict run with a change-tracking extension available, the
// first retryable failure breaks out of the retry loop immediately and
// fetches the authoritative page via PtrackGetBlock2 instead of burning
// the remaining retries; a checkdb run (Strict == false) or a run with
// no Ptrack fetcher always retries to exhaustion and then reports
// corruption, per spec.md §4.3/§9.
func readBlockRetry(ctx context.Context, src fio.File, page []byte, off int64, relOid uint32, forkNum uint8, absBlock uint32, opts Options) (int, error) {
	var lastErr error
	for attempt := 0; attempt < MaxReadRetries; attempt++ {
		if err := checkInterrupt(ctx); err != nil {
			return 0, err
		}

		n, err := src.Pread(page, off)
		if n == 0 && (err == nil || err == io.EOF) {
			return 0, io.EOF
		}

		var retryErr error
		switch {
		case err != nil && err != io.EOF:
			retryErr = err
		case n < pagecodec.PageSize:
			retryErr = xerrors.New(xerrors.KindPage, xerrors.SeverityWarning, "short page read").
				WithRetryable(true)
		case pagecodec.IsZeroed(page[:n]):
			return n, nil
		default:
			if _, ok := pagecodec.Valid(page[:n]); !ok {
				retryErr = xerrors.New(xerrors.KindPage, xerrors.SeverityWarning, "invalid page header").
					WithDetails("retrying").WithRetryable(true)
			} else if opts.ChecksumEnabled && !pagecodec.VerifyChecksum(page[:n], absBlock) {
				retryErr = xerrors.New(xerrors.KindPage, xerrors.SeverityWarning, "page checksum mismatch").
					WithRetryable(true)
			} else {
				return n, nil
			}
		}

		lastErr = retryErr
		if opts.Strict && opts.Ptrack != nil {
			if n, ok := ptrackRefetch(ctx, opts.Ptrack, page, relOid, forkNum, absBlock); ok {
				return n, nil
			}
			break
		}
	}

	// Retries exhausted (or the ptrack refetch above also failed): report
	// corruption. A checkdb run reports and lets the caller treat the
	// block as best-effort skipped; a strict run without (or having
	// exhausted) a ptrack fallback fails the backup.
	severity := xerrors.SeverityError
	if !opts.Strict {
		severity = xerrors.SeverityWarning
	}
	cerr := xerrors.Wrap(xerrors.KindPage, severity, lastErr,
		"block unreadable after exhausting retries").WithDetails("block permanently corrupt")
	if opts.Strict {
		return 0, cerr
	}
	// Non-strict (checkdb): report and continue the file scan by
	// returning the last bytes read so far as a best effort; caller
	// treats this block as skipped via a zero page marker.
	return pagecodec.PageSize, nil
}

// ptrackRefetch fetches absBlock's page image from the change-tracking
// extension as a substitute for a disk re-read that keeps failing,
// copying it into page on success.
func ptrackRefetch(ctx context.Context, fetcher PtrackFetcher, page []byte, relOid uint32, forkNum uint8, absBlock uint32) (int, bool) {
	raw, _, err := fetcher.PtrackGetBlock2(ctx, relOid, uint32(forkNum), absBlock)
	if err != nil || len(raw) != pagecodec.PageSize {
		return 0, false
	}
	copy(page, raw)
	return pagecodec.PageSize, true
}

// forkNumOf maps a file list entry's fork name to PostgreSQL's ForkNumber,
// the form the change-tracking extension's per-block RPC expects. Mirrors
// internal/pagemap's segment index key.
func forkNumOf(name string) uint8 {
	switch name {
	case "", "main":
		return 0
	case "fsm":
		return 1
	case "vm":
		return 2
	case "init":
		return 3
	default:
		return 0
	}
}

func checkInterrupt(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return xerrors.Wrap(xerrors.KindInterrupt, xerrors.SeverityError, ctx.Err(), "backup interrupted")
	default:
		return nil
	}
}
