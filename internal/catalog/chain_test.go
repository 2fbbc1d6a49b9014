package catalog

import "testing"

func chainFixture() (full, delta1, delta2 *Backup) {
	full = NewBackup(1000)
	full.Mode = ModeFull
	full.Status = StatusOK

	delta1 = NewBackup(2000)
	delta1.Mode = ModeDelta
	delta1.ParentBackupID = full.BackupID
	delta1.Parent = full
	delta1.Status = StatusOK

	delta2 = NewBackup(3000)
	delta2.Mode = ModeDelta
	delta2.ParentBackupID = delta1.BackupID
	delta2.Parent = delta1
	delta2.Status = StatusOK

	return
}

func TestFindParentFull(t *testing.T) {
	full, _, delta2 := chainFixture()
	root, err := FindParentFull(delta2)
	if err != nil {
		t.Fatal(err)
	}
	if root != full {
		t.Fatalf("expected root to be the FULL backup, got %+v", root)
	}
}

func TestFindParentFullBrokenChain(t *testing.T) {
	_, _, delta2 := chainFixture()
	delta2.Parent.Parent = nil // break the link to FULL
	delta2.Parent.Mode = ModeDelta
	_, err := FindParentFull(delta2)
	if err == nil {
		t.Fatal("expected error for broken chain whose root is not FULL")
	}
}

func TestScanParentChainAllOK(t *testing.T) {
	_, _, delta2 := chainFixture()
	state, witness := ScanParentChain(delta2)
	if state != ChainIntactAllOK {
		t.Fatalf("expected ChainIntactAllOK, got %v witness=%+v", state, witness)
	}
}

func TestScanParentChainWithInvalid(t *testing.T) {
	full, delta1, delta2 := chainFixture()
	delta1.Status = StatusError
	state, witness := ScanParentChain(delta2)
	if state != ChainIntactWithInvalid {
		t.Fatalf("expected ChainIntactWithInvalid, got %v", state)
	}
	if witness != delta1 {
		t.Fatalf("expected witness to be the invalid node, got %+v want %+v", witness, delta1)
	}
	_ = full
}

func TestScanParentChainBroken(t *testing.T) {
	_, delta1, delta2 := chainFixture()
	delta1.Parent = nil // unresolved parent link
	state, _ := ScanParentChain(delta2)
	if state != ChainBroken {
		t.Fatalf("expected ChainBroken, got %v", state)
	}
}

func TestIsParent(t *testing.T) {
	full, delta1, delta2 := chainFixture()
	if !IsParent(full.StartTime, delta2, false) {
		t.Fatal("expected full to be a strict ancestor of delta2")
	}
	if IsParent(delta2.StartTime, delta2, false) {
		t.Fatal("strict ancestor check should not match self")
	}
	if !IsParent(delta2.StartTime, delta2, true) {
		t.Fatal("inclusive ancestor check should match self")
	}
	_ = delta1
}

func TestIsProlific(t *testing.T) {
	full, delta1, delta2 := chainFixture()
	list := []*Backup{full, delta1, delta2}
	if IsProlific(list, full) {
		t.Fatal("full should not be prolific with only one OK child")
	}

	delta3 := NewBackup(2500)
	delta3.Mode = ModeDelta
	delta3.ParentBackupID = full.BackupID
	delta3.Status = StatusDone
	list = append(list, delta3)

	if !IsProlific(list, full) {
		t.Fatal("full should be prolific with two OK/DONE children")
	}
}
