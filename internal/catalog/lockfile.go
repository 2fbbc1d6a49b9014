package catalog

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"

	"dbbackup/internal/cleanup"
	"dbbackup/internal/xerrors"
)

const lockFileName = "backup.pid"

// MaxLockAcquireAttempts bounds the retry loop that unlinks a confirmed-
// stale lockfile and retries acquisition, so an unwritable directory
// cannot spin forever.
const MaxLockAcquireAttempts = 100

// registry tracks every lockfile path acquired by this process so the
// at-exit cleanup handler can unlink all of them even on abnormal exit.
// It is process-global by necessity: the
// lockfile discipline must survive regardless of which goroutine or
// session object acquired the lock.
var registry = struct {
	mu       sync.Mutex
	paths    map[string]struct{}
	once     sync.Once
}{paths: make(map[string]struct{})}

// RegisterCleanupHandler binds the process-global lockfile registry into
// h so h's LIFO cleanup unlinks every lockfile this process still holds,
// even on abnormal exit. Call once from
// main(); safe to call more than once, only the first call is honored.
func RegisterCleanupHandler(h *cleanup.Handler) {
	registry.once.Do(func() {
		h.RegisterCleanup("catalog-lockfiles", func(ctx context.Context) error {
			UnlinkAllHeldLocks()
			return nil
		})
	})
}

// UnlinkAllHeldLocks removes every lockfile this process is known to
// hold. It is safe to call more than once and safe to call on a lock
// this process no longer owns (the file may already be gone).
func UnlinkAllHeldLocks() {
	registry.mu.Lock()
	paths := make([]string, 0, len(registry.paths))
	for p := range registry.paths {
		paths = append(paths, p)
	}
	registry.paths = make(map[string]struct{})
	registry.mu.Unlock()

	for _, p := range paths {
		os.Remove(p)
	}
}

func trackLock(path string) {
	registry.mu.Lock()
	registry.paths[path] = struct{}{}
	registry.mu.Unlock()
}

func untrackLock(path string) {
	registry.mu.Lock()
	delete(registry.paths, path)
	registry.mu.Unlock()
}

// AcquireLock implements the lockfile protocol: exclusive create with
// the caller's PID; on EEXIST, read the existing PID and treat it as
// stale if it equals the caller's own PID or its parent/grandparent (a
// value that can only appear after a PID got reused across a reboot),
// or if a zero-signal probe reports the process is gone. Returns
// (false, nil) for "busy" (a live process holds the lock) rather than
// an error.
func AcquireLock(dir string) (bool, error) {
	path := filepath.Join(dir, lockFileName)
	pid := os.Getpid()
	ownLineage := lineagePIDs(pid)

	for attempt := 0; attempt < MaxLockAcquireAttempts; attempt++ {
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
		if err == nil {
			fmt.Fprintf(f, "%d\n", pid)
			cerr := f.Close()
			if cerr != nil {
				return false, xerrors.Wrap(xerrors.KindCatalog, xerrors.SeverityError, cerr, "write lock file")
			}
			trackLock(path)
			return true, nil
		}
		if !os.IsExist(err) {
			return false, xerrors.Wrap(xerrors.KindCatalog, xerrors.SeverityError, err, "create lock file")
		}

		existingPID, readErr := readLockPID(path)
		if readErr != nil {
			// Lockfile vanished between stat and read (another process
			// cleaned it up); retry the create.
			continue
		}

		if containsPID(ownLineage, existingPID) {
			// Stale after a PID got reused, or a lock this same process
			// already holds (re-entrant call): unlink and retry.
			os.Remove(path)
			untrackLock(path)
			continue
		}

		if processAlive(existingPID) {
			return false, nil // busy
		}

		// Owning process is gone: the lock is stale.
		os.Remove(path)
	}

	return false, xerrors.New(xerrors.KindCatalog, xerrors.SeverityError,
		"exceeded lock acquisition retry limit").WithDetails(fmt.Sprintf("dir=%s attempts=%d", dir, MaxLockAcquireAttempts))
}

// ReleaseLock unlinks the lockfile for dir, if this process is tracking it.
func ReleaseLock(dir string) error {
	path := filepath.Join(dir, lockFileName)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return xerrors.Wrap(xerrors.KindCatalog, xerrors.SeverityWarning, err, "release lock file")
	}
	untrackLock(path)
	return nil
}

// IsLocked reports whether dir currently has a live lockfile.
func IsLocked(dir string) (bool, int, error) {
	pid, err := readLockPID(filepath.Join(dir, lockFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return false, 0, nil
		}
		return false, 0, err
	}
	return processAlive(pid), pid, nil
}

func readLockPID(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	s := strings.TrimSpace(string(data))
	pid, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("catalog: malformed lock file %s: %q", path, s)
	}
	return pid, nil
}

// processAlive probes pid with a zero signal, the idiomatic Go analogue
// of a kill(pid, 0) liveness check.
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	if err == nil {
		return true
	}
	if err == syscall.ESRCH {
		return false
	}
	if err.Error() == "os: process already finished" {
		return false
	}
	// EPERM means the process exists but we can't signal it: alive.
	return err == syscall.EPERM
}

func lineagePIDs(pid int) []int {
	lineage := []int{pid}
	cur := pid
	for i := 0; i < 2; i++ {
		ppid, err := parentPID(cur)
		if err != nil || ppid <= 1 {
			break
		}
		lineage = append(lineage, ppid)
		cur = ppid
	}
	return lineage
}

func containsPID(list []int, pid int) bool {
	for _, p := range list {
		if p == pid {
			return true
		}
	}
	return false
}

// parentPID reads /proc/<pid>/stat for its parent PID. Linux-only; on
// other platforms it reports "unknown" and the lineage check degenerates
// to "own PID only", which still correctly handles the stale-after-reboot
// case.
func parentPID(pid int) (int, error) {
	data, err := os.ReadFile(fmt.Sprintf("/proc/%d/stat", pid))
	if err != nil {
		return 0, err
	}
	// Format: pid (comm) state ppid ...  comm may contain spaces/parens,
	// so scan from the last ')'.
	s := string(data)
	idx := strings.LastIndexByte(s, ')')
	if idx < 0 || idx+2 >= len(s) {
		return 0, fmt.Errorf("unexpected /proc/%d/stat format", pid)
	}
	fields := strings.Fields(s[idx+2:])
	if len(fields) < 2 {
		return 0, fmt.Errorf("unexpected /proc/%d/stat format", pid)
	}
	ppid, err := strconv.Atoi(fields[1])
	if err != nil {
		return 0, err
	}
	return ppid, nil
}
