package catalog

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"dbbackup/internal/xerrors"
)

const controlFileName = "backup.control"
const timestampLayout = "2006-01-02 15:04:05"

// writeAtomic serializes to <path>.tmp, flushes, closes, then renames
// over path. On any error the tmp file is unlinked.
func writeAtomic(path string, write func(w *bufio.Writer) error) error {
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0640)
	if err != nil {
		return xerrors.Wrap(xerrors.KindIO, xerrors.SeverityError, err, "open control tmp file")
	}

	w := bufio.NewWriter(f)
	werr := write(w)
	if werr == nil {
		werr = w.Flush()
	}
	if werr == nil {
		werr = f.Sync()
	}
	closeErr := f.Close()
	if werr == nil {
		werr = closeErr
	}
	if werr != nil {
		os.Remove(tmp)
		return xerrors.Wrap(xerrors.KindIO, xerrors.SeverityError, werr, "write control tmp file")
	}

	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return xerrors.Wrap(xerrors.KindIO, xerrors.SeverityError, err, "rename control file into place")
	}
	return nil
}

// WriteControl writes b's control file at <dir>/backup.control using the
// crash-safe tmp+rename discipline.
func WriteControl(dir string, b *Backup) error {
	path := filepath.Join(dir, controlFileName)
	return writeAtomic(path, func(w *bufio.Writer) error {
		fmt.Fprintf(w, "#Configuration\n")
		fmt.Fprintf(w, "backup-mode = %s\n", b.Mode)
		fmt.Fprintf(w, "stream = %s\n", boolStr(b.Stream))
		fmt.Fprintf(w, "compress-alg = %s\n", b.CompressAlg)
		fmt.Fprintf(w, "compress-level = %d\n", b.CompressLevel)
		fmt.Fprintf(w, "from-replica = %s\n", boolStr(b.FromReplica))

		fmt.Fprintf(w, "\n#Compatibility\n")
		fmt.Fprintf(w, "block-size = %d\n", b.BlockSize)
		fmt.Fprintf(w, "xlog-block-size = %d\n", b.WalBlockSize)
		fmt.Fprintf(w, "checksum-version = %d\n", b.ChecksumVersion)
		fmt.Fprintf(w, "program-version = %s\n", b.ProgramVersion)
		if b.ServerVersion != "" {
			fmt.Fprintf(w, "server-version = %s\n", b.ServerVersion)
		}

		fmt.Fprintf(w, "\n#Result backup info\n")
		fmt.Fprintf(w, "timelineid = %d\n", b.TimelineID)
		fmt.Fprintf(w, "start-lsn = %s\n", b.StartLSN)
		if b.StopLSN != 0 {
			fmt.Fprintf(w, "stop-lsn = %s\n", b.StopLSN)
		}
		fmt.Fprintf(w, "start-time = '%s'\n", b.StartTimeStamp.UTC().Format(timestampLayout))
		if !b.MergeTime.IsZero() {
			fmt.Fprintf(w, "merge-time = '%s'\n", b.MergeTime.UTC().Format(timestampLayout))
		}
		if !b.EndTimeStamp.IsZero() {
			fmt.Fprintf(w, "end-time = '%s'\n", b.EndTimeStamp.UTC().Format(timestampLayout))
		}
		if !b.RecoveryTime.IsZero() {
			fmt.Fprintf(w, "recovery-time = '%s'\n", b.RecoveryTime.UTC().Format(timestampLayout))
		}
		if b.RecoveryXid != 0 {
			fmt.Fprintf(w, "recovery-xid = %d\n", b.RecoveryXid)
		}
		writeBytesField(w, "data-bytes", b.DataBytes)
		writeBytesField(w, "wal-bytes", b.WalBytes)
		fmt.Fprintf(w, "status = %s\n", b.Status)

		if b.ParentBackupID != "" {
			fmt.Fprintf(w, "\n#Parent Backup info\n")
			fmt.Fprintf(w, "parent-backup-id = '%s'\n", b.ParentBackupID)
		}

		fmt.Fprintf(w, "\n#Connection info\n")
		if b.PrimaryConninfo != "" {
			fmt.Fprintf(w, "primary_conninfo = '%s'\n", escapeQuotes(b.PrimaryConninfo))
		}
		if len(b.ExternalDirs) > 0 {
			fmt.Fprintf(w, "external-dirs = '%s'\n", strings.Join(b.ExternalDirs, ":"))
		}
		return nil
	})
}

func writeBytesField(w *bufio.Writer, key string, v int64) {
	if v == BytesInvalid {
		return
	}
	fmt.Fprintf(w, "%s = %d\n", key, v)
}

func boolStr(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

func escapeQuotes(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

// ReadControl parses dir/backup.control. A missing start-time (or a
// missing file) is reported via a corrupt placeholder: start-time is
// the authoritative identifier, and a missing or zero value marks the
// control file corrupt.
func ReadControl(dir string) (*Backup, error) {
	path := filepath.Join(dir, controlFileName)
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, err
		}
		return nil, xerrors.Wrap(xerrors.KindCatalog, xerrors.SeverityError, err, "open control file")
	}
	defer f.Close()

	b := &Backup{Status: StatusInvalid, DataBytes: BytesInvalid, WalBytes: BytesInvalid}

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		eq := strings.IndexByte(line, '=')
		if eq < 0 {
			continue
		}
		key := strings.TrimSpace(line[:eq])
		val := unquote(strings.TrimSpace(line[eq+1:]))
		if err := applyControlKey(b, key, val); err != nil {
			return nil, xerrors.Wrap(xerrors.KindCatalog, xerrors.SeverityWarning, err, "parse control key "+key)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.KindIO, xerrors.SeverityError, err, "read control file")
	}

	if b.StartTime == 0 {
		b.Status = StatusCorrupt
	}
	b.BackupID = EncodeID(b.StartTime)
	return b, nil
}

func unquote(s string) string {
	if len(s) >= 2 && s[0] == '\'' && s[len(s)-1] == '\'' {
		return strings.ReplaceAll(s[1:len(s)-1], "''", "'")
	}
	return s
}

func applyControlKey(b *Backup, key, val string) error {
	switch key {
	case "backup-mode":
		b.Mode = Mode(val)
	case "stream":
		b.Stream = val == "true"
	case "compress-alg":
		b.CompressAlg = CompressAlg(val)
	case "compress-level":
		n, err := strconv.Atoi(val)
		if err != nil {
			return err
		}
		b.CompressLevel = n
	case "from-replica":
		b.FromReplica = val == "true"
	case "block-size":
		n, err := strconv.ParseUint(val, 10, 32)
		if err != nil {
			return err
		}
		b.BlockSize = uint32(n)
	case "xlog-block-size":
		n, err := strconv.ParseUint(val, 10, 32)
		if err != nil {
			return err
		}
		b.WalBlockSize = uint32(n)
	case "checksum-version":
		n, err := strconv.ParseUint(val, 10, 32)
		if err != nil {
			return err
		}
		b.ChecksumVersion = uint32(n)
	case "program-version":
		b.ProgramVersion = val
	case "server-version":
		b.ServerVersion = val
	case "timelineid":
		n, err := strconv.ParseUint(val, 10, 32)
		if err != nil {
			return err
		}
		b.TimelineID = uint32(n)
	case "start-lsn":
		lsn, err := ParseLSN(val)
		if err != nil {
			return err
		}
		b.StartLSN = lsn
	case "stop-lsn":
		lsn, err := ParseLSN(val)
		if err != nil {
			return err
		}
		b.StopLSN = lsn
	case "start-time":
		t, err := parseControlTime(val)
		if err != nil {
			return err
		}
		b.StartTimeStamp = t
		b.StartTime = t.Unix()
	case "merge-time":
		t, err := parseControlTime(val)
		if err != nil {
			return err
		}
		b.MergeTime = t
	case "end-time":
		t, err := parseControlTime(val)
		if err != nil {
			return err
		}
		b.EndTimeStamp = t
	case "recovery-time":
		t, err := parseControlTime(val)
		if err != nil {
			return err
		}
		b.RecoveryTime = t
	case "recovery-xid":
		n, err := strconv.ParseUint(val, 10, 64)
		if err != nil {
			return err
		}
		b.RecoveryXid = n
	case "data-bytes":
		n, err := strconv.ParseInt(val, 10, 64)
		if err != nil {
			return err
		}
		b.DataBytes = n
	case "wal-bytes":
		n, err := strconv.ParseInt(val, 10, 64)
		if err != nil {
			return err
		}
		b.WalBytes = n
	case "status":
		b.Status = Status(val)
	case "parent-backup-id":
		b.ParentBackupID = val
	case "primary_conninfo":
		b.PrimaryConninfo = val
	case "external-dirs":
		if val != "" {
			b.ExternalDirs = strings.Split(val, ":")
		}
	default:
		// unrecognized keys are ignored
	}
	return nil
}

func parseControlTime(s string) (time.Time, error) {
	return time.Parse(timestampLayout, s)
}
