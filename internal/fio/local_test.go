package fio

import (
	"context"
	"os"
	"testing"

	"github.com/spf13/afero"
)

func TestLocalBackendReadWrite(t *testing.T) {
	ctx := context.Background()
	b := NewLocalBackendFS(afero.NewMemMapFs())

	f, err := b.open(ctx, "/data/seg1", os.O_RDWR|os.O_CREATE, 0640)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.Write([]byte("hello world")); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}

	f2, err := b.open(ctx, "/data/seg1", os.O_RDONLY, 0)
	if err != nil {
		t.Fatal(err)
	}
	defer f2.Close()
	buf := make([]byte, 5)
	n, err := f2.Pread(buf, 6)
	if err != nil {
		t.Fatal(err)
	}
	if n != 5 || string(buf) != "world" {
		t.Fatalf("expected positioned read to return %q, got %q", "world", buf[:n])
	}
}

func TestLocalBackendMkdirOpendirUnlink(t *testing.T) {
	ctx := context.Background()
	b := NewLocalBackendFS(afero.NewMemMapFs())

	if err := b.mkdir(ctx, "/base/sub", 0750); err != nil {
		t.Fatal(err)
	}
	f, err := b.open(ctx, "/base/sub/file.txt", os.O_RDWR|os.O_CREATE, 0640)
	if err != nil {
		t.Fatal(err)
	}
	f.Close()

	entries, err := b.opendir(ctx, "/base/sub")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name != "file.txt" {
		t.Fatalf("unexpected directory listing: %+v", entries)
	}

	if err := b.unlink(ctx, "/base/sub/file.txt"); err != nil {
		t.Fatal(err)
	}
	if err := b.unlink(ctx, "/base/sub/file.txt"); err != nil {
		t.Fatalf("second unlink of a missing file should be a no-op, got %v", err)
	}
}

func TestLocalBackendRename(t *testing.T) {
	ctx := context.Background()
	b := NewLocalBackendFS(afero.NewMemMapFs())

	f, _ := b.open(ctx, "/a", os.O_RDWR|os.O_CREATE, 0640)
	f.Write([]byte("x"))
	f.Close()

	if err := b.rename(ctx, "/a", "/b"); err != nil {
		t.Fatal(err)
	}
	if _, err := b.stat(ctx, "/b"); err != nil {
		t.Fatalf("expected renamed file to exist at new path: %v", err)
	}
	if _, err := b.stat(ctx, "/a"); err == nil {
		t.Fatal("expected old path to be gone after rename")
	}
}

func TestSendPagesCopiesAcrossPaths(t *testing.T) {
	ctx := context.Background()
	backend := NewLocalBackendFS(afero.NewMemMapFs())
	facade := &multiFacade{backupHost: backend, dbHost: backend}

	f, _ := facade.Open(ctx, BackupHost, "/src", os.O_RDWR|os.O_CREATE, 0640)
	f.Write(make([]byte, 100))
	f.Write([]byte("PAYLOAD!!!"))
	f.Close()

	if err := facade.SendPages(ctx, BackupHost, "/src", 100, 10, BackupHost, "/dst"); err != nil {
		t.Fatal(err)
	}

	got, err := facade.Open(ctx, BackupHost, "/dst", os.O_RDONLY, 0)
	if err != nil {
		t.Fatal(err)
	}
	defer got.Close()
	buf := make([]byte, 10)
	n, err := got.Pread(buf, 100)
	if err != nil {
		t.Fatal(err)
	}
	if string(buf[:n]) != "PAYLOAD!!!" {
		t.Fatalf("expected copied payload at matching offset, got %q", buf[:n])
	}
}
