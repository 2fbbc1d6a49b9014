package datafile

import (
	"context"
	"os"
	"testing"

	"github.com/spf13/afero"

	"dbbackup/internal/catalog"
	"dbbackup/internal/fio"
	"dbbackup/internal/pagecodec"
)

func makeValidPage(lsn uint64, fill byte) []byte {
	page := make([]byte, pagecodec.PageSize)
	// pd_lower/pd_upper/pd_special forming a syntactically valid header.
	putLE64(page[0:8], lsn)
	putLE16(page[12:14], 24)                      // pd_lower
	putLE16(page[14:16], pagecodec.PageSize-8)     // pd_upper
	putLE16(page[16:18], pagecodec.PageSize)       // pd_special
	putLE16(page[18:20], pagecodec.PageSize&0xFF00) // page-size/flags word
	for i := 24; i < pagecodec.PageSize-8; i++ {
		page[i] = fill
	}
	return page
}

func putLE16(b []byte, v uint16) { b[0] = byte(v); b[1] = byte(v >> 8) }
func putLE64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
}

func newTestFacade() fio.Facade {
	return fio.NewWithHosts(fio.NewLocalBackendFS(afero.NewMemMapFs()), fio.NewLocalBackendFS(afero.NewMemMapFs()))
}

func TestBackupFileFullModeCopiesAllBlocks(t *testing.T) {
	ctx := context.Background()
	fac := newTestFacade()

	src, err := fac.Open(ctx, fio.DbHost, "/pgdata/base/1/16384", os.O_WRONLY|os.O_CREATE, 0600)
	if err != nil {
		t.Fatal(err)
	}
	p0 := makeValidPage(100, 0xAA)
	p1 := makeValidPage(200, 0xBB)
	src.Write(p0)
	src.Write(p1)
	src.Close()

	entry := &catalog.FileEntry{IsDatafile: true, Segno: 0}
	opts := Options{Mode: catalog.ModeFull, CompressAlg: catalog.CompressNone, Strict: true}

	res, err := BackupFile(ctx, fac, entry, opts, "/pgdata/base/1/16384", "/backup/base/1/16384")
	if err != nil {
		t.Fatalf("BackupFile: %v", err)
	}
	if res.NBlocksRead != 2 {
		t.Fatalf("expected 2 blocks read, got %d", res.NBlocksRead)
	}
	if entry.NBlocks != 2 {
		t.Fatalf("expected entry.NBlocks=2, got %d", entry.NBlocks)
	}
}

func TestBackupFileDeltaSkipsOldPages(t *testing.T) {
	ctx := context.Background()
	fac := newTestFacade()

	src, _ := fac.Open(ctx, fio.DbHost, "/pgdata/base/1/16385", os.O_WRONLY|os.O_CREATE, 0600)
	src.Write(makeValidPage(50, 0xAA))  // below parent LSN: skip
	src.Write(makeValidPage(500, 0xBB)) // above parent LSN: keep
	src.Close()

	entry := &catalog.FileEntry{IsDatafile: true, Segno: 0}
	opts := Options{Mode: catalog.ModeDelta, ParentStartLSN: 100, CompressAlg: catalog.CompressNone, Strict: true}

	res, err := BackupFile(ctx, fac, entry, opts, "/pgdata/base/1/16385", "/backup/base/1/16385")
	if err != nil {
		t.Fatalf("BackupFile: %v", err)
	}
	if res.NBlocksRead != 1 || res.NBlocksSkip != 1 {
		t.Fatalf("expected 1 read + 1 skip, got read=%d skip=%d", res.NBlocksRead, res.NBlocksSkip)
	}
}

func TestBackupFilePageModeUsesBitmap(t *testing.T) {
	ctx := context.Background()
	fac := newTestFacade()

	src, _ := fac.Open(ctx, fio.DbHost, "/pgdata/base/1/16386", os.O_WRONLY|os.O_CREATE, 0600)
	for i := 0; i < 3; i++ {
		src.Write(makeValidPage(uint64(i), 0xCC))
	}
	src.Close()

	bitmap := catalog.NewBlockBitmap()
	bitmap.Add(1)
	entry := &catalog.FileEntry{IsDatafile: true, Segno: 0, PageMap: bitmap}
	opts := Options{Mode: catalog.ModePage, CompressAlg: catalog.CompressNone, Strict: true}

	res, err := BackupFile(ctx, fac, entry, opts, "/pgdata/base/1/16386", "/backup/base/1/16386")
	if err != nil {
		t.Fatalf("BackupFile: %v", err)
	}
	if res.NBlocksRead != 1 {
		t.Fatalf("expected 1 block read from bitmap, got %d", res.NBlocksRead)
	}
}

func TestBackupFileEmptyOutputDeleted(t *testing.T) {
	ctx := context.Background()
	fac := newTestFacade()

	src, _ := fac.Open(ctx, fio.DbHost, "/pgdata/base/1/16387", os.O_WRONLY|os.O_CREATE, 0600)
	src.Write(makeValidPage(50, 0xAA))
	src.Close()

	entry := &catalog.FileEntry{IsDatafile: true, Segno: 0}
	opts := Options{Mode: catalog.ModeDelta, ParentStartLSN: 1000, CompressAlg: catalog.CompressNone, Strict: true}

	res, err := BackupFile(ctx, fac, entry, opts, "/pgdata/base/1/16387", "/backup/base/1/16387")
	if err != nil {
		t.Fatalf("BackupFile: %v", err)
	}
	if !res.Deleted {
		t.Fatalf("expected empty backup file to be deleted")
	}
	if _, err := fac.Stat(ctx, fio.BackupHost, "/backup/base/1/16387"); err == nil {
		t.Fatalf("expected deleted backup file to be absent")
	}
}

func TestBackupRestoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	fac := newTestFacade()

	src, _ := fac.Open(ctx, fio.DbHost, "/pgdata/base/1/16388", os.O_WRONLY|os.O_CREATE, 0600)
	p0 := makeValidPage(10, 0x11)
	p1 := makeValidPage(20, 0x22)
	src.Write(p0)
	src.Write(p1)
	src.Close()

	entry := &catalog.FileEntry{IsDatafile: true, Segno: 0}
	opts := Options{Mode: catalog.ModeFull, CompressAlg: catalog.CompressNone, Strict: true}
	if _, err := BackupFile(ctx, fac, entry, opts, "/pgdata/base/1/16388", "/backup/base/1/16388"); err != nil {
		t.Fatalf("BackupFile: %v", err)
	}

	restoreOpts := RestoreOptions{CompressAlg: catalog.CompressNone, FinalBlockCount: -1}
	if err := RestoreFile(ctx, fac, "/backup/base/1/16388", "/restore/base/1/16388", restoreOpts); err != nil {
		t.Fatalf("RestoreFile: %v", err)
	}

	out, err := fac.Open(ctx, fio.DbHost, "/restore/base/1/16388", os.O_RDONLY, 0)
	if err != nil {
		t.Fatal(err)
	}
	defer out.Close()
	got0 := make([]byte, pagecodec.PageSize)
	got1 := make([]byte, pagecodec.PageSize)
	if _, err := out.Pread(got0, 0); err != nil {
		t.Fatal(err)
	}
	if _, err := out.Pread(got1, pagecodec.PageSize); err != nil {
		t.Fatal(err)
	}
	if string(got0) != string(p0) || string(got1) != string(p1) {
		t.Fatalf("restored pages do not match originals")
	}
}
