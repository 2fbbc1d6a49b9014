package walwait

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"dbbackup/internal/catalog"
)

type fakeScanner struct {
	found   bool
	highest catalog.LSN
	err     error
}

func (f *fakeScanner) ScanSegment(segPath string, target catalog.LSN) (bool, catalog.LSN, error) {
	return f.found, f.highest, f.err
}

func TestSegmentNameDecrementsForPrevious(t *testing.T) {
	name := SegmentName(1, WalSegSize*3, false)
	prev := SegmentName(1, WalSegSize*3, true)
	if name == prev {
		t.Fatalf("expected previous segment name to differ")
	}
}

func TestSegmentNameFirstSegmentPrevIsStable(t *testing.T) {
	name := SegmentName(1, 0, false)
	prev := SegmentName(1, 0, true)
	if name != prev {
		t.Fatalf("first segment's 'previous' must be itself: got %s vs %s", name, prev)
	}
}

func TestWaitForLSNSucceedsWhenSegmentAndLSNPresent(t *testing.T) {
	dir := t.TempDir()
	segName := SegmentName(1, 0, false)
	if err := os.WriteFile(filepath.Join(dir, segName), []byte("x"), 0600); err != nil {
		t.Fatal(err)
	}

	w := New(Options{
		Timeline: 1,
		Dir:      dir,
		Timeout:  2 * time.Second,
		Scanner:  &fakeScanner{found: true},
	})
	got, err := w.WaitForLSN(context.Background(), 0)
	if err != nil {
		t.Fatalf("WaitForLSN: %v", err)
	}
	if got != 0 {
		t.Fatalf("expected target lsn echoed back, got %s", got)
	}
}

func TestWaitForLSNTimesOutWithSegmentMissingReason(t *testing.T) {
	dir := t.TempDir()
	w := New(Options{
		Timeline: 1,
		Dir:      dir,
		Timeout:  1100 * time.Millisecond,
		Scanner:  &fakeScanner{found: false},
	})
	_, err := w.WaitForLSN(context.Background(), 0)
	if err == nil {
		t.Fatal("expected timeout error")
	}
	we, ok := err.(*WaitError)
	if !ok {
		t.Fatalf("expected *WaitError, got %T", err)
	}
	if we.Reason != ReasonSegmentMissing {
		t.Fatalf("expected ReasonSegmentMissing, got %v", we.Reason)
	}
}

func TestWaitForLSNTimesOutWithLSNNotReachedReason(t *testing.T) {
	dir := t.TempDir()
	segName := SegmentName(1, 0, false)
	if err := os.WriteFile(filepath.Join(dir, segName), []byte("x"), 0600); err != nil {
		t.Fatal(err)
	}

	w := New(Options{
		Timeline: 1,
		Dir:      dir,
		Timeout:  1100 * time.Millisecond,
		Scanner:  &fakeScanner{found: false},
	})
	_, err := w.WaitForLSN(context.Background(), 0)
	we, ok := err.(*WaitError)
	if !ok {
		t.Fatalf("expected *WaitError, got %T (%v)", err, err)
	}
	if we.Reason != ReasonLSNNotReached {
		t.Fatalf("expected ReasonLSNNotReached, got %v", we.Reason)
	}
}

func TestWaitForLSNPrevSegmentSucceedsOnPresenceAlone(t *testing.T) {
	dir := t.TempDir()
	segName := SegmentName(1, 0, true)
	if err := os.WriteFile(filepath.Join(dir, segName), []byte("x"), 0600); err != nil {
		t.Fatal(err)
	}

	w := New(Options{
		Timeline:    1,
		Dir:         dir,
		Timeout:     2 * time.Second,
		PrevSegment: true,
		Scanner:     &fakeScanner{found: false}, // never consulted
	})
	if _, err := w.WaitForLSN(context.Background(), 0); err != nil {
		t.Fatalf("WaitForLSN: %v", err)
	}
}

func TestWaitForLSNReplicaFallbackReturnsLastValidLSN(t *testing.T) {
	dir := t.TempDir()
	segName := SegmentName(1, 0, false)
	if err := os.WriteFile(filepath.Join(dir, segName), []byte("x"), 0600); err != nil {
		t.Fatal(err)
	}

	w := New(Options{
		Timeline:  1,
		Dir:       dir,
		Timeout:   1200 * time.Millisecond,
		IsReplica: true,
		Scanner:   &fakeScanner{found: false, highest: 42},
	})
	got, err := w.WaitForLSN(context.Background(), 1000)
	if err != nil {
		t.Fatalf("expected replica fallback to succeed, got error: %v", err)
	}
	if got != 42 {
		t.Fatalf("expected fallback lsn 42, got %s", got)
	}
}
