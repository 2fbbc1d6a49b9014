package orchestrator

import "testing"

func TestParseRelationFilenameMainFork(t *testing.T) {
	dbOid, relOid, fork, segno, ok := parseRelationFilename("base/16384", "16385")
	if !ok {
		t.Fatal("expected match")
	}
	if dbOid != 16384 || relOid != 16385 || fork != "main" || segno != 0 {
		t.Fatalf("got db=%d rel=%d fork=%s segno=%d", dbOid, relOid, fork, segno)
	}
}

func TestParseRelationFilenameSegmentedFile(t *testing.T) {
	_, relOid, fork, segno, ok := parseRelationFilename("base/16384", "16385.3")
	if !ok {
		t.Fatal("expected match")
	}
	if relOid != 16385 || fork != "main" || segno != 3 {
		t.Fatalf("got rel=%d fork=%s segno=%d", relOid, fork, segno)
	}
}

func TestParseRelationFilenameForkSuffix(t *testing.T) {
	_, relOid, fork, _, ok := parseRelationFilename("base/16384", "16385_fsm")
	if !ok {
		t.Fatal("expected match")
	}
	if relOid != 16385 || fork != "fsm" {
		t.Fatalf("got rel=%d fork=%s", relOid, fork)
	}
}

func TestParseRelationFilenameGlobalTablespace(t *testing.T) {
	dbOid, relOid, _, _, ok := parseRelationFilename("global", "1262")
	if !ok {
		t.Fatal("expected match")
	}
	if dbOid != 0 || relOid != 1262 {
		t.Fatalf("got db=%d rel=%d", dbOid, relOid)
	}
}

func TestParseRelationFilenameRejectsNonRelationDir(t *testing.T) {
	_, _, _, _, ok := parseRelationFilename("pg_wal", "000000010000000000000001")
	if ok {
		t.Fatal("expected no match outside base/global")
	}
}

func TestShouldSkipNameExcludesRuntimeFiles(t *testing.T) {
	for _, name := range []string{"postmaster.pid", "postmaster.opts", "backup_label", "tablespace_map"} {
		if !shouldSkipName(name) {
			t.Fatalf("expected %s to be skipped", name)
		}
	}
	if shouldSkipName("16385") {
		t.Fatal("relation file must not be skipped")
	}
}
