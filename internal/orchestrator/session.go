// Package orchestrator implements the Backup Orchestrator: the session
// state machine that drives one physical, block-level backup end to
// end — connect, start-backup, list and classify PGDATA, build the
// page map for incremental modes, dispatch the worker pool over the
// file list, stop-backup, and finalize the catalog entry.
//
// The state sequence is INIT -> CONNECTED -> STARTED -> LISTED ->
// MAPPED -> COPYING -> STOPPED -> FINALIZED -> OK (or -> ERROR from any
// state). Two states register an abnormal-exit cleanup: once STARTED,
// a crash must still issue stop-of-backup so the server doesn't stay
// pinned in backup mode; once INIT has created the catalog entry, a
// crash must mark it ERROR rather than leave it RUNNING forever.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"dbbackup/internal/catalog"
	"dbbackup/internal/cleanup"
	"dbbackup/internal/dbconn"
	"dbbackup/internal/fio"
	"dbbackup/internal/logger"
	"dbbackup/internal/pagemap"
	"dbbackup/internal/wal"
	"dbbackup/internal/walwait"
	"dbbackup/internal/xerrors"
)

// State is one point in the session state machine.
type State int

const (
	StateInit State = iota
	StateConnected
	StateStarted
	StateListed
	StateMapped
	StateCopying
	StateStopped
	StateFinalized
	StateOK
	StateError
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StateConnected:
		return "CONNECTED"
	case StateStarted:
		return "STARTED"
	case StateListed:
		return "LISTED"
	case StateMapped:
		return "MAPPED"
	case StateCopying:
		return "COPYING"
	case StateStopped:
		return "STOPPED"
	case StateFinalized:
		return "FINALIZED"
	case StateOK:
		return "OK"
	default:
		return "ERROR"
	}
}

// Options configures one backup session. Connection fields mirror
// dbconn.Connect's DSN construction; PGDataPath is the DbHost-side
// PGDATA root (local path, or the remote path a configured fio
// backend resolves against).
type Options struct {
	Instance      string
	BackupRoot    string
	PGDataPath    string
	DSN           string
	Mode          catalog.Mode
	Jobs          int
	CompressAlg   catalog.CompressAlg
	CompressLevel int
	Stream        bool
	Strict        bool
	// CheckpointTimeout bounds the stream worker's post-stop drain; the
	// caller reads it from the server's checkpoint_timeout GUC.
	CheckpointTimeout time.Duration
}

// Session carries all per-run state threaded through the phase methods.
type Session struct {
	opts Options
	log  logger.Logger

	store *catalog.Store
	db    *dbconn.Client
	fac   fio.Facade
	clean *cleanup.Handler

	backup  *catalog.Backup
	parent  *catalog.Backup
	entries []*catalog.FileEntry

	state State
}

// defaultCheckpointTimeout is used when the caller leaves
// Options.CheckpointTimeout unset; callers that read the server's
// actual checkpoint_timeout GUC should pass that value (times ~1.1)
// instead, per spec.md §4.6.
const defaultCheckpointTimeout = 5 * time.Minute

// New returns a Session ready to Run. fac must already be configured
// for opts.Stream's Location split (local-only or remote DbHost).
func New(opts Options, fac fio.Facade, clean *cleanup.Handler, log logger.Logger) *Session {
	if opts.CheckpointTimeout == 0 {
		opts.CheckpointTimeout = defaultCheckpointTimeout
	}
	return &Session{opts: opts, fac: fac, clean: clean, log: log, state: StateInit}
}

// State reports the session's current phase, for progress reporting.
func (s *Session) State() State { return s.state }

// Run drives every phase in order, returning the finalized Backup
// record. On any failure the session's catalog entry (once created) is
// marked ERROR before the error is returned.
func (s *Session) Run(ctx context.Context) (*catalog.Backup, error) {
	s.store = catalog.NewStore(s.opts.BackupRoot, s.opts.Instance, s.log)
	if err := s.store.Init(); err != nil {
		return nil, err
	}

	if err := s.runPhases(ctx); err != nil {
		s.state = StateError
		if s.backup != nil {
			s.backup.Status = catalog.StatusError
			_ = s.store.Save(s.backup)
			catalog.ReleaseLock(s.backup.RootDir)
		}
		return s.backup, err
	}

	s.state = StateOK
	s.backup.Status = catalog.StatusOK
	s.backup.EndTimeStamp = time.Now().UTC()
	if err := s.store.Save(s.backup); err != nil {
		return s.backup, err
	}
	catalog.ReleaseLock(s.backup.RootDir)
	return s.backup, nil
}

func (s *Session) runPhases(ctx context.Context) error {
	if err := s.phaseInit(ctx); err != nil {
		return err
	}
	if err := s.phaseConnect(ctx); err != nil {
		return err
	}
	if err := s.phaseStartBackup(ctx); err != nil {
		return err
	}
	if err := s.phaseList(ctx); err != nil {
		return err
	}
	if err := s.phaseMap(ctx); err != nil {
		return err
	}
	if err := s.phaseCopy(ctx); err != nil {
		return err
	}
	if err := s.phaseStopBackup(ctx); err != nil {
		return err
	}
	return s.phaseFinalize(ctx)
}

// phaseInit creates the catalog entry (RUNNING) and registers the
// abnormal-exit handler that marks it ERROR if the process dies before
// FINALIZED.
func (s *Session) phaseInit(ctx context.Context) error {
	b := catalog.NewBackup(time.Now().Unix())
	b.Mode = s.opts.Mode
	b.Stream = s.opts.Stream
	b.CompressAlg = s.opts.CompressAlg
	b.CompressLevel = s.opts.CompressLevel

	if s.opts.Mode != catalog.ModeFull {
		parent, err := s.findParent()
		if err != nil {
			return err
		}
		s.parent = parent
		b.ParentBackupID = parent.BackupID
	}

	if err := s.store.CreateBackup(b); err != nil {
		return err
	}
	s.backup = b
	s.state = StateInit

	if s.clean != nil {
		s.clean.RegisterCleanup("orchestrator-init-"+b.BackupID, func(ctx context.Context) error {
			if s.state != StateOK && s.state != StateError {
				b.Status = catalog.StatusError
				_ = s.store.Save(b)
				catalog.ReleaseLock(b.RootDir)
			}
			return nil
		})
	}
	return nil
}

// findParent picks the most recent OK/DONE backup as the incremental
// parent, per spec.md §4.2's "latest valid backup" default.
func (s *Session) findParent() (*catalog.Backup, error) {
	list, err := s.store.List()
	if err != nil {
		return nil, err
	}
	for _, b := range list {
		if b.Status == catalog.StatusOK || b.Status == catalog.StatusDone {
			return b, nil
		}
	}
	return nil, xerrors.New(xerrors.KindCatalog, xerrors.SeverityFatal,
		"no valid parent backup found for an incremental backup").
		WithRemediation("run a FULL backup first")
}

func (s *Session) phaseConnect(ctx context.Context) error {
	db, err := dbconn.Connect(ctx, s.opts.DSN, s.log)
	if err != nil {
		return err
	}
	s.db = db
	s.state = StateConnected

	tli, err := db.CurrentTimeline(ctx)
	if err != nil {
		return err
	}
	s.backup.TimelineID = tli

	inRecovery, err := db.IsInRecovery(ctx)
	if err != nil {
		return err
	}
	s.backup.FromReplica = inRecovery

	blockSize, err := db.ShowGUC(ctx, "block_size")
	if err != nil {
		return err
	}
	bs, err := dbconn.ParseByteUnit(blockSize)
	if err != nil {
		return err
	}
	s.backup.BlockSize = uint32(bs)

	checksums, err := db.ShowGUC(ctx, "data_checksums")
	if err != nil {
		return err
	}
	checksumsOn, err := dbconn.ParseBool(checksums)
	if err != nil {
		return err
	}
	if checksumsOn {
		s.backup.ChecksumVersion = 1
	}

	return nil
}

// phaseStartBackup issues the start-backup RPC and registers the
// abnormal-exit stop-of-backup handler; a crash between here and
// phaseStopBackup must not leave the server pinned in backup mode.
func (s *Session) phaseStartBackup(ctx context.Context) error {
	label := fmt.Sprintf("dbbackup/%s", s.backup.BackupID)
	lsn, err := s.db.StartBackup(ctx, label, false)
	if err != nil {
		return err
	}
	s.backup.StartLSN = lsn
	s.backup.StartTimeStamp = time.Now().UTC()
	s.state = StateStarted

	stopped := false
	if s.clean != nil {
		s.clean.RegisterCleanup("orchestrator-stop-backup-"+s.backup.BackupID, func(ctx context.Context) error {
			if stopped || s.state == StateStopped || s.state == StateFinalized || s.state == StateOK {
				return nil
			}
			_, err := s.db.StopBackup(ctx)
			stopped = true
			return err
		})
	}
	return nil
}

func (s *Session) phaseList(ctx context.Context) error {
	entries, err := ClassifyPGData(ctx, s.fac, s.opts.PGDataPath)
	if err != nil {
		return err
	}
	if len(entries) < minPlausiblePGDataEntries {
		return xerrors.New(xerrors.KindConfig, xerrors.SeverityFatal,
			"PGDATA directory does not look like a PostgreSQL data directory").
			WithDetails(fmt.Sprintf("%s: only %d entries found", s.opts.PGDataPath, len(entries))).
			WithRemediation("check --pgdata points at a real PGDATA")
	}

	if s.parent != nil {
		markExistsInPrev(entries, s.parent)
	}
	s.entries = entries
	s.state = StateListed
	return nil
}

func (s *Session) phaseMap(ctx context.Context) error {
	if s.opts.Mode == catalog.ModeFull {
		s.state = StateMapped
		return nil
	}

	datafiles := make([]*catalog.FileEntry, 0, len(s.entries))
	for _, e := range s.entries {
		if e.IsDatafile {
			datafiles = append(datafiles, e)
		}
	}

	switch s.opts.Mode {
	case catalog.ModePtrack:
		controlLSN, err := s.db.PtrackControlLSN(ctx)
		if err != nil {
			return err
		}
		if s.parent.StartLSN < controlLSN {
			// ptrack was (re)initialized after the parent started:
			// its bitmap cannot be trusted, fall back to PAGE mode.
			if s.log != nil {
				s.log.Warn("ptrack control lsn postdates parent backup; falling back to PAGE mode",
					"parent_start_lsn", s.parent.StartLSN.String(), "ptrack_control_lsn", controlLSN.String())
			}
			if err := s.buildPageMapFromWAL(ctx, datafiles); err != nil {
				return err
			}
		} else if err := pagemap.BuildFromPtrack(ctx, s.db, datafiles); err != nil {
			return err
		}
	case catalog.ModePage, catalog.ModeDelta:
		if s.opts.Mode == catalog.ModePage {
			if err := s.buildPageMapFromWAL(ctx, datafiles); err != nil {
				return err
			}
		}
		// DELTA needs no page map: the data-file engine compares each
		// page's own LSN against ParentStartLSN block by block.
	}

	s.state = StateMapped
	return nil
}

func (s *Session) buildPageMapFromWAL(ctx context.Context, datafiles []*catalog.FileEntry) error {
	names := pagemap.SegmentsInRange(s.backup.TimelineID, s.parent.StartLSN, s.backup.StartLSN)
	dir := s.store.WalInstancePath()
	paths := pagemap.ResolvePaths(dir, names)
	idx := pagemap.NewFileIndex(datafiles)
	return pagemap.BuildFromWAL(ctx, paths, s.backup.StartLSN, idx)
}

const minPlausiblePGDataEntries = 10

// markExistsInPrev flags entries the parent backup's file list already
// recorded (by relative path), the signal CopyNonDataFile's caller
// uses to skip unchanged non-relation files.
func markExistsInPrev(entries []*catalog.FileEntry, parent *catalog.Backup) {
	prevList, err := catalog.ReadFileList(parent.RootDir)
	if err != nil || len(prevList) == 0 {
		return
	}
	byPath := make(map[string]*catalog.FileEntry, len(prevList))
	for _, p := range prevList {
		byPath[p.RelPath] = p
	}
	for _, e := range entries {
		if _, ok := byPath[e.RelPath]; ok {
			e.ExistsInPrev = true
		}
	}
}

func (s *Session) phaseStopBackup(ctx context.Context) error {
	var stopLSN catalog.LSN
	err := s.db.WithStatementTimeout(ctx, 0, func(ctx context.Context) error {
		lsn, err := s.db.StopBackup(ctx)
		stopLSN = lsn
		return err
	})
	if err != nil {
		return err
	}
	s.backup.StopLSN = stopLSN
	s.state = StateStopped

	if !s.opts.Stream {
		waiter := walwait.New(walwait.Options{
			Timeline: s.backup.TimelineID,
			Dir:      s.store.WalInstancePath(),
			Timeout:  s.opts.CheckpointTimeout,
			Scanner:  wal.NewSegmentScanner(),
			Log:      s.log,
		})
		if _, err := waiter.WaitForLSN(ctx, stopLSN); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) phaseFinalize(ctx context.Context) error {
	var total, uncompressed int64
	for _, e := range s.entries {
		if e.WriteSize > 0 {
			total += e.WriteSize
		}
		uncompressed += e.Size
	}
	s.backup.DataBytes = total
	s.backup.UncompressedBytes = uncompressed

	if err := catalog.WriteFileList(s.backup.RootDir, s.entries); err != nil {
		return err
	}
	s.state = StateFinalized
	return s.store.Save(s.backup)
}

// Close releases the database connection, if open.
func (s *Session) Close(ctx context.Context) error {
	if s.db != nil {
		return s.db.Close(ctx)
	}
	return nil
}
