package catalog

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"dbbackup/internal/logger"
	"dbbackup/internal/xerrors"
)

// Store is the on-disk catalog for one instance, rooted at
// <backup-root>/backups/<instance>/, with archived WAL living alongside
// at <backup-root>/wal/<instance>/.
type Store struct {
	backupRoot string
	instance   string
	log        logger.Logger
}

// NewStore returns a Store for instance under backupRoot.
func NewStore(backupRoot, instance string, log logger.Logger) *Store {
	return &Store{backupRoot: backupRoot, instance: instance, log: log}
}

// BackupInstancePath is <backup-root>/backups/<instance>/.
func (s *Store) BackupInstancePath() string {
	return filepath.Join(s.backupRoot, "backups", s.instance)
}

// WalInstancePath is <backup-root>/wal/<instance>/.
func (s *Store) WalInstancePath() string {
	return filepath.Join(s.backupRoot, "wal", s.instance)
}

// BackupDir returns the directory for a specific backup id.
func (s *Store) BackupDir(backupID string) string {
	return filepath.Join(s.BackupInstancePath(), backupID)
}

// Init creates the instance's directory skeleton.
func (s *Store) Init() error {
	for _, d := range []string{s.BackupInstancePath(), s.WalInstancePath()} {
		if err := os.MkdirAll(d, 0750); err != nil {
			return xerrors.Wrap(xerrors.KindIO, xerrors.SeverityError, err, "create catalog directory "+d)
		}
	}
	return nil
}

// CreateBackup creates a new backup directory, writes its control file
// with status=RUNNING, and acquires the per-backup lockfile.
func (s *Store) CreateBackup(b *Backup) error {
	dir := s.BackupDir(b.BackupID)
	if err := os.MkdirAll(filepath.Join(dir, "database"), 0750); err != nil {
		return xerrors.Wrap(xerrors.KindIO, xerrors.SeverityError, err, "create backup directory")
	}
	b.RootDir = dir
	b.Status = StatusRunning

	ok, err := AcquireLock(dir)
	if err != nil {
		return err
	}
	if !ok {
		return xerrors.New(xerrors.KindCatalog, xerrors.SeverityError, "backup directory already locked").
			WithDetails(dir)
	}

	if err := WriteControl(dir, b); err != nil {
		ReleaseLock(dir)
		return err
	}
	return nil
}

// Save rewrites b's control file in place. Used both by the periodic
// lead-worker checkpoint and by final status transitions.
func (s *Store) Save(b *Backup) error {
	return WriteControl(b.RootDir, b)
}

// placeholderFromDirName synthesizes a Backup for a directory whose
// control file is missing: its start-time is base36-decoded from the
// directory name.
func placeholderFromDirName(dir, name string) (*Backup, error) {
	startTime, err := DecodeID(name)
	if err != nil {
		return nil, err
	}
	b := NewBackup(startTime)
	b.Status = StatusCorrupt
	b.RootDir = dir
	return b, nil
}

// List enumerates every backup under the instance directory, sorted by
// start-time descending, with parent links resolved.
// Hidden and non-directory entries are skipped.
func (s *Store) List() ([]*Backup, error) {
	root := s.BackupInstancePath()
	dirEntries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, xerrors.Wrap(xerrors.KindCatalog, xerrors.SeverityError, err, "list catalog directory")
	}

	var backups []*Backup
	for _, de := range dirEntries {
		name := de.Name()
		if len(name) == 0 || name[0] == '.' || !de.IsDir() {
			continue
		}
		dir := filepath.Join(root, name)

		b, err := ReadControl(dir)
		if err != nil {
			if os.IsNotExist(err) {
				ph, perr := placeholderFromDirName(dir, name)
				if perr != nil {
					if s.log != nil {
						s.log.Warn("catalog: skipping unreadable backup directory", "dir", dir, "error", perr)
					}
					continue
				}
				backups = append(backups, ph)
				continue
			}
			if s.log != nil {
				s.log.Warn("catalog: failed to read control file", "dir", dir, "error", err)
			}
			continue
		}

		b.RootDir = dir
		if b.BackupID != name && s.log != nil {
			s.log.Warn("catalog: directory name does not match control file start-time; control file wins",
				"dir", name, "control_id", b.BackupID)
		}
		backups = append(backups, b)
	}

	sort.Slice(backups, func(i, j int) bool { return backups[i].StartTime > backups[j].StartTime })
	resolveParents(backups)
	return backups, nil
}

// resolveParents resolves each non-FULL backup's in-memory Parent link
// by binary search over the (now start-time-descending) sorted list.
func resolveParents(backups []*Backup) {
	// binary search needs ascending order over the key we search by.
	byStart := make([]*Backup, len(backups))
	copy(byStart, backups)
	sort.Slice(byStart, func(i, j int) bool { return byStart[i].StartTime < byStart[j].StartTime })

	find := func(id string) *Backup {
		target, err := DecodeID(id)
		if err != nil {
			return nil
		}
		lo, hi := 0, len(byStart)-1
		for lo <= hi {
			mid := (lo + hi) / 2
			switch {
			case byStart[mid].StartTime == target:
				return byStart[mid]
			case byStart[mid].StartTime < target:
				lo = mid + 1
			default:
				hi = mid - 1
			}
		}
		return nil
	}

	for _, b := range backups {
		if b.Mode == ModeFull || b.ParentBackupID == "" {
			continue
		}
		b.Parent = find(b.ParentBackupID)
	}
}

// Get returns the single backup with the given id, or an error if absent.
func (s *Store) Get(backupID string) (*Backup, error) {
	dir := s.BackupDir(backupID)
	b, err := ReadControl(dir)
	if err != nil {
		return nil, fmt.Errorf("catalog: backup %s not found: %w", backupID, err)
	}
	b.RootDir = dir
	return b, nil
}
