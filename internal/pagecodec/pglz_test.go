package pagecodec

import (
	"bytes"
	"math/rand"
	"testing"
)

func TestPglzRoundTripRepetitive(t *testing.T) {
	src := bytes.Repeat([]byte("the quick brown fox jumps over the lazy dog. "), 100)
	dst := make([]byte, len(src)*2)
	n, ok := PglzCompress(src, dst)
	if !ok {
		t.Fatal("expected repetitive input to compress")
	}
	if n >= len(src) {
		t.Fatalf("expected compressed size smaller than input: got %d vs %d", n, len(src))
	}

	out := make([]byte, len(src))
	written, err := PglzDecompress(dst[:n], out, len(src))
	if err != nil {
		t.Fatalf("decompress: %v", err)
	}
	if written != len(src) || !bytes.Equal(out, src) {
		t.Fatal("round trip mismatch")
	}
}

func TestPglzRandomDataDoesNotCompress(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	src := make([]byte, 8192)
	r.Read(src)
	dst := make([]byte, len(src)*2)
	if _, ok := PglzCompress(src, dst); ok {
		t.Log("random data happened to compress; not necessarily a bug, but unusual")
	}
}

func TestPglzRoundTripPageLike(t *testing.T) {
	// Simulate an 8K page: mostly-zero tail after a populated header/tuple area.
	src := make([]byte, PageSize)
	for i := 0; i < 2000; i++ {
		src[i] = byte(i % 251)
	}
	dst := make([]byte, PageSize*2)
	n, ok := PglzCompress(src, dst)
	if !ok {
		t.Fatal("expected mostly-zero page to compress")
	}
	out := make([]byte, PageSize)
	written, err := PglzDecompress(dst[:n], out, PageSize)
	if err != nil {
		t.Fatalf("decompress: %v", err)
	}
	if written != PageSize || !bytes.Equal(out, src) {
		t.Fatal("round trip mismatch for page-like input")
	}
}
