package pagemap

import (
	"context"
	"testing"

	"dbbackup/internal/catalog"
)

func TestFileIndexLookupRoutesToSegment(t *testing.T) {
	entries := []*catalog.FileEntry{
		{IsDatafile: true, DbOid: 1, RelOid: 100, ForkName: "", Segno: 0},
		{IsDatafile: true, DbOid: 1, RelOid: 100, ForkName: "", Segno: 1},
	}
	idx := NewFileIndex(entries)

	e, rel, ok := idx.Lookup(1, 100, 0, 5)
	if !ok || e != entries[0] || rel != 5 {
		t.Fatalf("expected segment 0 block 5, got entry=%v rel=%d ok=%v", e, rel, ok)
	}

	second := uint32(blocksPerSeg + 10)
	e, rel, ok = idx.Lookup(1, 100, 0, second)
	if !ok || e != entries[1] || rel != 10 {
		t.Fatalf("expected segment 1 block 10, got entry=%v rel=%d ok=%v", e, rel, ok)
	}
}

func TestFileIndexLookupMissRelationNotFound(t *testing.T) {
	idx := NewFileIndex(nil)
	_, _, ok := idx.Lookup(1, 999, 0, 0)
	if ok {
		t.Fatalf("expected lookup miss for unknown relation")
	}
}

func TestSegmentsInRangeCoversBoundary(t *testing.T) {
	names := SegmentsInRange(1, 0, 16*1024*1024)
	if len(names) != 2 {
		t.Fatalf("expected 2 segments spanning the boundary, got %d: %v", len(names), names)
	}
	if names[0] == names[1] {
		t.Fatalf("expected distinct segment names")
	}
}

type fakePtrackSource struct {
	bits map[relKey][]byte
}

func (f *fakePtrackSource) PtrackGetAndClearDB(_ context.Context, dbOID, relOID uint32) ([]byte, error) {
	return f.bits[relKey{dbOID, relOID}], nil
}

func (f *fakePtrackSource) PtrackControlLSN(_ context.Context) (catalog.LSN, error) {
	return 0, nil
}

func TestBuildFromPtrackMarksBitsAndFallsBackOnMissingSlice(t *testing.T) {
	e1 := &catalog.FileEntry{IsDatafile: true, DbOid: 1, RelOid: 200, Segno: 0}
	e2 := &catalog.FileEntry{IsDatafile: true, DbOid: 1, RelOid: 300, Segno: 0}

	raw := make([]byte, 4)
	raw[0] = 0x01 // block 0 changed

	src := &fakePtrackSource{bits: map[relKey][]byte{
		{dbOID: 1, relOID: 200}: raw,
	}}

	if err := BuildFromPtrack(context.Background(), src, []*catalog.FileEntry{e1, e2}); err != nil {
		t.Fatalf("BuildFromPtrack: %v", err)
	}

	if e1.PageMap == nil || !e1.PageMap.Has(0) {
		t.Fatalf("expected block 0 marked changed for e1")
	}
	if e2.PageMap == nil || !e2.PageMap.Absent() {
		t.Fatalf("expected e2 (no ptrack slice) marked absent")
	}
}
