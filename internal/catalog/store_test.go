package catalog

import (
	"os"
	"testing"
)

func TestStoreCreateAndList(t *testing.T) {
	root := t.TempDir()
	defer UnlinkAllHeldLocks()

	store := NewStore(root, "main", nil)
	if err := store.Init(); err != nil {
		t.Fatal(err)
	}

	full := NewBackup(1000)
	full.Mode = ModeFull
	full.Status = StatusOK
	if err := store.CreateBackup(full); err != nil {
		t.Fatal(err)
	}
	full.Status = StatusOK
	if err := store.Save(full); err != nil {
		t.Fatal(err)
	}
	ReleaseLock(full.RootDir)

	delta := NewBackup(2000)
	delta.Mode = ModeDelta
	delta.ParentBackupID = full.BackupID
	delta.Status = StatusOK
	if err := store.CreateBackup(delta); err != nil {
		t.Fatal(err)
	}
	delta.Status = StatusOK
	if err := store.Save(delta); err != nil {
		t.Fatal(err)
	}
	ReleaseLock(delta.RootDir)

	list, err := store.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 backups, got %d", len(list))
	}
	// descending by start-time
	if list[0].StartTime != 2000 || list[1].StartTime != 1000 {
		t.Fatalf("expected descending order, got %d, %d", list[0].StartTime, list[1].StartTime)
	}
	if list[0].Parent == nil || list[0].Parent.StartTime != 1000 {
		t.Fatalf("expected delta's parent resolved to the full backup, got %+v", list[0].Parent)
	}
}

func TestStoreListSynthesizesPlaceholderForMissingControl(t *testing.T) {
	root := t.TempDir()
	store := NewStore(root, "main", nil)
	if err := store.Init(); err != nil {
		t.Fatal(err)
	}

	// A directory with no control file at all.
	dir := store.BackupDir(EncodeID(5000))
	if err := os.MkdirAll(dir, 0750); err != nil {
		t.Fatal(err)
	}

	list, err := store.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1 placeholder backup, got %d", len(list))
	}
	if list[0].StartTime != 5000 || list[0].Status != StatusCorrupt {
		t.Fatalf("expected placeholder with decoded start-time and CORRUPT status, got %+v", list[0])
	}
}
