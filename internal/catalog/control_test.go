package catalog

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestControlRoundTrip(t *testing.T) {
	dir := t.TempDir()

	b := NewBackup(1700000000)
	b.Mode = ModeDelta
	b.Status = StatusDone
	b.TimelineID = 3
	b.StartLSN = LSN(0x1_0000_0028)
	b.StopLSN = LSN(0x1_0000_0100)
	b.StartTimeStamp = time.Unix(1700000000, 0).UTC()
	b.EndTimeStamp = b.StartTimeStamp.Add(5 * time.Minute)
	b.RecoveryXid = 4242
	b.CompressAlg = CompressZlib
	b.CompressLevel = 6
	b.Stream = true
	b.ParentBackupID = EncodeID(1699000000)
	b.DataBytes = 12345
	b.WalBytes = 999
	b.ProgramVersion = "1.0.0"
	b.ExternalDirs = []string{"/data/ext1", "/data/ext2"}

	if err := WriteControl(dir, b); err != nil {
		t.Fatalf("WriteControl: %v", err)
	}

	got, err := ReadControl(dir)
	if err != nil {
		t.Fatalf("ReadControl: %v", err)
	}

	if got.Mode != b.Mode || got.Status != b.Status || got.TimelineID != b.TimelineID {
		t.Fatalf("mismatch: got %+v", got)
	}
	if got.StartLSN != b.StartLSN || got.StopLSN != b.StopLSN {
		t.Fatalf("LSN mismatch: got start=%s stop=%s", got.StartLSN, got.StopLSN)
	}
	if got.ParentBackupID != b.ParentBackupID {
		t.Fatalf("parent id mismatch: %s vs %s", got.ParentBackupID, b.ParentBackupID)
	}
	if got.DataBytes != b.DataBytes || got.WalBytes != b.WalBytes {
		t.Fatalf("byte counters mismatch: %+v", got)
	}
	if len(got.ExternalDirs) != 2 || got.ExternalDirs[0] != "/data/ext1" {
		t.Fatalf("external dirs mismatch: %v", got.ExternalDirs)
	}
	if got.StartTime != b.StartTime {
		t.Fatalf("start-time mismatch: %d vs %d", got.StartTime, b.StartTime)
	}
}

func TestControlMissingStartTimeIsCorrupt(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, controlFileName)
	if err := os.WriteFile(path, []byte("status = RUNNING\n"), 0640); err != nil {
		t.Fatal(err)
	}

	b, err := ReadControl(dir)
	if err != nil {
		t.Fatalf("ReadControl: %v", err)
	}
	if b.Status != StatusCorrupt {
		t.Fatalf("expected status CORRUPT for missing start-time, got %s", b.Status)
	}
}

func TestControlWriteIsAtomic(t *testing.T) {
	dir := t.TempDir()
	b := NewBackup(1)
	if err := WriteControl(dir, b); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(dir, controlFileName+".tmp")); !os.IsNotExist(err) {
		t.Fatalf("tmp file should not survive a successful write")
	}
}

func TestBase36RoundTrip(t *testing.T) {
	cases := []int64{0, 1, 42, 1700000000, 9999999999}
	for _, ts := range cases {
		id := EncodeID(ts)
		got, err := DecodeID(id)
		if err != nil {
			t.Fatalf("DecodeID(%q): %v", id, err)
		}
		if got != ts {
			t.Fatalf("round trip mismatch: %d -> %q -> %d", ts, id, got)
		}
	}
}

func TestParseLSNRoundTrip(t *testing.T) {
	cases := []string{"0/0", "1/28", "16/FF000000", "FFFFFFFF/FFFFFFFF"}
	for _, s := range cases {
		lsn, err := ParseLSN(s)
		if err != nil {
			t.Fatalf("ParseLSN(%q): %v", s, err)
		}
		if lsn.String() != s {
			// Sscanf parses without leading zeros, String() renders %X/%X,
			// so compare by re-parsing the rendered form instead of exact
			// byte-for-byte equality.
			lsn2, err := ParseLSN(lsn.String())
			if err != nil || lsn2 != lsn {
				t.Fatalf("LSN round trip mismatch for %q: rendered %q", s, lsn.String())
			}
		}
	}
}

func TestParseLSNRejectsGarbage(t *testing.T) {
	if _, err := ParseLSN("not-an-lsn"); err == nil {
		t.Fatal("expected error for garbage LSN")
	}
}
