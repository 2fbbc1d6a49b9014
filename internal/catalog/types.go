// Package catalog implements the on-disk backup registry: a flat-file,
// lockfile-disciplined store of backup metadata organized as one
// directory per backup under <backup-root>/backups/<instance>/<backup-id>/.
//
// The catalog has no database of its own — every invariant (chain
// integrity, lifecycle status, crash safety) is enforced by how control
// files are written and how the per-backup lockfile is acquired, not by
// a query engine.
package catalog

import (
	"fmt"
	"strconv"
	"sync/atomic"
	"time"
)

// Mode is the backup mode.
type Mode string

const (
	ModeFull   Mode = "FULL"
	ModePage   Mode = "PAGE"
	ModePtrack Mode = "PTRACK"
	ModeDelta  Mode = "DELTA"
)

// Status is the backup lifecycle status.
type Status string

const (
	StatusInvalid  Status = "INVALID"
	StatusRunning  Status = "RUNNING"
	StatusOK       Status = "OK"
	StatusDone     Status = "DONE"
	StatusError    Status = "ERROR"
	StatusMerging  Status = "MERGING"
	StatusDeleting Status = "DELETING"
	StatusDeleted  Status = "DELETED"
	StatusOrphan   Status = "ORPHAN"
	StatusCorrupt  Status = "CORRUPT"
)

// CompressAlg identifies the page/file compression algorithm.
type CompressAlg string

const (
	CompressNone CompressAlg = "none"
	CompressZlib CompressAlg = "zlib"
	CompressPglz CompressAlg = "pglz"
	// CompressZstd is an additional algorithm beyond the core {none,zlib,pglz} set.
	CompressZstd CompressAlg = "zstd"
)

// LSN is a WAL log sequence number, the byte offset encoded as two hex
// components ("%X/%X" in the control file).
type LSN uint64

// ParseLSN parses the "%X/%X" textual LSN representation. Total: never
// panics, always returns a typed error.
func ParseLSN(s string) (LSN, error) {
	var hi, lo uint32
	n, err := fmt.Sscanf(s, "%X/%X", &hi, &lo)
	if err != nil || n != 2 {
		return 0, fmt.Errorf("catalog: invalid LSN %q: %w", s, err)
	}
	return LSN(uint64(hi)<<32 | uint64(lo)), nil
}

func (l LSN) String() string {
	return fmt.Sprintf("%X/%X", uint32(l>>32), uint32(l))
}

// Backup is the in-memory representation of one backup's metadata,
// mirroring backup.control plus an in-memory-only parent link resolved
// after enumeration.
type Backup struct {
	// Identity
	StartTime int64 // seconds since epoch; base36(StartTime) is the directory name
	BackupID  string

	Mode            Mode
	Status          Status
	TimelineID      uint32
	StartLSN        LSN
	StopLSN         LSN
	StartTimeStamp  time.Time
	EndTimeStamp    time.Time
	RecoveryTime    time.Time
	MergeTime       time.Time
	RecoveryXid     uint64
	BlockSize       uint32
	WalBlockSize    uint32
	ChecksumVersion uint32
	CompressAlg     CompressAlg
	CompressLevel   int
	Stream          bool
	FromReplica     bool
	ParentBackupID  string // base36, empty for FULL
	ProgramVersion  string
	ServerVersion   string
	PrimaryConninfo string
	ExternalDirs    []string

	DataBytes         int64 // -1 means "invalid"/unset
	WalBytes          int64
	UncompressedBytes int64
	PgdataBytes       int64

	// Resolved after enumeration; nil for a FULL backup or a broken link.
	Parent *Backup

	// RootDir is the absolute on-disk directory for this backup; not
	// persisted, filled in by the Store on load/create.
	RootDir string
}

// BytesInvalid / FileNotFound sentinels for FileEntry.WriteSize.
const (
	BytesInvalid  int64 = -1
	FileNotFound  int64 = -2
)

// FileKind is the kind of a file-list entry.
type FileKind string

const (
	KindRegular FileKind = "regular"
	KindDir     FileKind = "dir"
	KindSymlink FileKind = "symlink"
)

// FileEntry is one element of a backup's file list.
type FileEntry struct {
	Path       string // absolute source path at scan time
	RelPath    string // relative path used at restore
	Kind       FileKind
	Mode       uint32
	Size       int64
	Crc        uint32
	WriteSize  int64 // BytesInvalid / FileNotFound sentinels apply
	IsDatafile bool
	IsCfs      bool
	Segno      int64
	DbOid      uint32
	TblspcOid  uint32
	RelOid     uint32
	ForkName   string
	Linked     string
	NBlocks    int64 // valid for datafiles under DELTA

	CompressAlg       CompressAlg
	ExternalDirNum    int // 0 for PGDATA
	ExistsInPrev      bool
	PagemapAbsent     bool

	// PageMap is the set of changed block numbers for PAGE/PTRACK modes.
	// Not persisted to the file list; rebuilt per-session.
	PageMap *BlockBitmap `json:"-"`

	// claimed is the per-entry atomic work-claim flag:
	// workers pull entries by atomically flipping this from 0 to 1.
	claimed int32
}

// Claim atomically flips the entry's work-claim flag from unclaimed to
// claimed, returning true iff this call was the one that claimed it.
// Workers use this instead of any higher-level locking to distribute
// file_list entries across the pool without aliasing.
func (e *FileEntry) Claim() bool {
	return atomic.CompareAndSwapInt32(&e.claimed, 0, 1)
}

// Claimed reports whether some worker has already claimed the entry.
func (e *FileEntry) Claimed() bool {
	return atomic.LoadInt32(&e.claimed) != 0
}

// ResetClaim clears the claim flag, used when a session rewinds (e.g. a
// file's classification changed and it needs to be re-dispatched).
func (e *FileEntry) ResetClaim() {
	atomic.StoreInt32(&e.claimed, 0)
}

// NewBackup returns a Backup populated with its zero-value defaults.
func NewBackup(startTime int64) *Backup {
	return &Backup{
		StartTime:       startTime,
		BackupID:        EncodeID(startTime),
		Status:          StatusInvalid,
		BlockSize:       8192,
		WalBlockSize:    8192,
		DataBytes:       BytesInvalid,
		WalBytes:        BytesInvalid,
		CompressAlg:     CompressNone,
		StartTimeStamp:  time.Unix(startTime, 0).UTC(),
	}
}

// EncodeID returns the base36 directory name for a start-time.
func EncodeID(startTime int64) string {
	return strconv.FormatInt(startTime, 36)
}

// DecodeID parses a base36 directory name back into a start-time. Total.
func DecodeID(id string) (int64, error) {
	v, err := strconv.ParseInt(id, 36, 64)
	if err != nil {
		return 0, fmt.Errorf("catalog: invalid backup id %q: %w", id, err)
	}
	return v, nil
}
