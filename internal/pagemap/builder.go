// Package pagemap builds the per-file changed-block bitmaps that the
// Data-File Engine consults in PAGE and PTRACK backup modes.
//
// PAGE mode scans the WAL range between the parent backup's start LSN
// and the current backup's start LSN for block references
// (internal/wal's simplified record scanner) and marks each referenced
// (relOID, forkNum, blockNum) in the owning file's bitmap. PTRACK mode
// instead asks the database extension directly for each file's changed
// blocks, which is far cheaper when available but requires ptrack to
// have been continuously enabled since the parent backup's start LSN.
package pagemap

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"

	"dbbackup/internal/catalog"
	"dbbackup/internal/wal"
	"dbbackup/internal/xerrors"
)

// FileIndex resolves a (dbOID, relOID, forkName) block reference to the
// FileEntry whose bitmap should record it, and its segment size in
// blocks so a reference can be routed to the correct 1 GiB segment
// file. Built once per session from the already-classified file list.
type FileIndex interface {
	Lookup(dbOID, relOID uint32, forkNum uint8, block uint32) (entry *catalog.FileEntry, segRelativeBlock uint32, ok bool)
}

// PtrackSource is the subset of *dbconn.Client the PTRACK builder needs.
type PtrackSource interface {
	PtrackGetAndClearDB(ctx context.Context, dbOID, relOID uint32) ([]byte, error)
	PtrackControlLSN(ctx context.Context) (catalog.LSN, error)
}

// BuildFromWAL walks segPaths (already-ordered by LSN, spanning from
// the parent's start LSN to the current backup's start LSN) and marks
// every block reference found in idx's bitmaps. Segments containing no
// reference for a given file leave that file's bitmap untouched (zero
// value: unchanged since parent).
func BuildFromWAL(ctx context.Context, segPaths []string, stopLSN catalog.LSN, idx FileIndex) error {
	for _, path := range segPaths {
		if err := ctx.Err(); err != nil {
			return xerrors.Wrap(xerrors.KindInterrupt, xerrors.SeverityError, err, "page-map build interrupted")
		}
		err := wal.ScanBlockRefs(path, stopLSN, func(lsn catalog.LSN, ref wal.BlockRef) {
			entry, segBlock, ok := idx.Lookup(ref.DbNode, ref.RelNode, ref.ForkNum, ref.BlockNum)
			if !ok {
				return // reference to a file outside this backup's scope (e.g. a dropped relation)
			}
			if entry.PageMap == nil {
				entry.PageMap = catalog.NewBlockBitmap()
			}
			entry.PageMap.Add(segBlock)
		})
		if err != nil {
			return xerrors.Wrap(xerrors.KindWalWait, xerrors.SeverityError, err, "scan wal segment for block refs").WithDetails(path)
		}
	}
	return nil
}

// BuildFromPtrack fetches the ptrack change bitmap for every datafile
// entry's relation, grouped by (dbOID, relOID) since ptrack tracks at
// relation granularity and a relation may span several 1 GiB segment
// files. controlLSN is the extension's last (re)init LSN; entries are
// checked against it by the caller before calling this (PTRACK mode
// falls back to PAGE when parentStartLSN < controlLSN).
func BuildFromPtrack(ctx context.Context, src PtrackSource, entries []*catalog.FileEntry) error {
	byRelation := make(map[relKey][]*catalog.FileEntry)
	for _, e := range entries {
		if !e.IsDatafile {
			continue
		}
		k := relKey{dbOID: e.DbOid, relOID: e.RelOid}
		byRelation[k] = append(byRelation[k], e)
	}

	// Deterministic order keeps logs and any future resume logic stable.
	keys := make([]relKey, 0, len(byRelation))
	for k := range byRelation {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].dbOID != keys[j].dbOID {
			return keys[i].dbOID < keys[j].dbOID
		}
		return keys[i].relOID < keys[j].relOID
	})

	for _, k := range keys {
		if err := ctx.Err(); err != nil {
			return xerrors.Wrap(xerrors.KindInterrupt, xerrors.SeverityError, err, "page-map build interrupted")
		}
		raw, err := src.PtrackGetAndClearDB(ctx, k.dbOID, k.relOID)
		if err != nil {
			return xerrors.Wrap(xerrors.KindProtocol, xerrors.SeverityError, err, "ptrack_get_and_clear_db").
				WithDetails(fmt.Sprintf("db=%d rel=%d", k.dbOID, k.relOID))
		}
		segs := byRelation[k]
		if raw == nil {
			// Extension returned no slice for this relation: treat every
			// segment as absent, forcing a whole-file fallback copy.
			for _, e := range segs {
				bm := catalog.NewBlockBitmap()
				bm.SetAbsent()
				e.PageMap = bm
			}
			continue
		}
		applyPtrackBits(raw, segs)
	}
	return nil
}

type relKey struct {
	dbOID, relOID uint32
}

// applyPtrackBits splits the relation-wide bit array ptrack returns
// across segs (one FileEntry per 1 GiB segment of the relation),
// bit i set meaning block i of the whole relation changed.
func applyPtrackBits(raw []byte, segs []*catalog.FileEntry) {
	sort.Slice(segs, func(i, j int) bool { return segs[i].Segno < segs[j].Segno })

	for _, e := range segs {
		bm := catalog.NewBlockBitmap()
		base := uint32(e.Segno) * blocksPerSeg
		for rel := uint32(0); rel < blocksPerSeg; rel++ {
			abs := base + rel
			byteIdx := abs / 8
			if int(byteIdx) >= len(raw) {
				break
			}
			if raw[byteIdx]&(1<<(abs%8)) != 0 {
				bm.Add(rel)
			}
		}
		e.PageMap = bm
	}
}

// listIndex is the default FileIndex, built from a flat file list by
// parsing each datafile entry's relative path once.
type listIndex struct {
	bySegment map[segKey]*catalog.FileEntry
}

type segKey struct {
	dbOID, relOID uint32
	forkNum       uint8
	segno         int64
}

// NewFileIndex builds a FileIndex over entries (only IsDatafile ones
// are indexed; non-relation files never receive block references).
func NewFileIndex(entries []*catalog.FileEntry) FileIndex {
	idx := &listIndex{bySegment: make(map[segKey]*catalog.FileEntry, len(entries))}
	for _, e := range entries {
		if !e.IsDatafile {
			continue
		}
		idx.bySegment[segKey{e.DbOid, e.RelOid, forkNumOf(e.ForkName), e.Segno}] = e
	}
	return idx
}

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

const blocksPerSeg = 1024 * 1024 * 1024 / 8192

func (idx *listIndex) Lookup(dbOID, relOID uint32, forkNum uint8, block uint32) (*catalog.FileEntry, uint32, bool) {
	segno := int64(block / blocksPerSeg)
	e, ok := idx.bySegment[segKey{dbOID, relOID, forkNum, segno}]
	if !ok {
		return nil, 0, false
	}
	return e, block % blocksPerSeg, true
}

// SegmentsInRange returns the WAL segment file names (without
// directory) spanning [startLSN, stopLSN] on timeline tli, in
// ascending order, for the caller to resolve against the archive or
// stream directory before handing the list to BuildFromWAL.
func SegmentsInRange(tli uint32, startLSN, stopLSN catalog.LSN) []string {
	const segSize = 16 * 1024 * 1024
	first := uint64(startLSN) / segSize
	last := uint64(stopLSN) / segSize
	const segsPerXLogId = 0x100000000 / segSize

	names := make([]string, 0, last-first+1)
	for segNo := first; segNo <= last; segNo++ {
		xlogID := segNo / segsPerXLogId
		segID := segNo % segsPerXLogId
		names = append(names, fmt.Sprintf("%08X%08X%08X", tli, xlogID, segID))
	}
	return names
}

// ResolvePaths joins names under dir, for callers that already know
// the WAL files live uncompressed in a single directory.
func ResolvePaths(dir string, names []string) []string {
	paths := make([]string, len(names))
	for i, n := range names {
		paths[i] = filepath.Join(dir, n)
	}
	return paths
}
