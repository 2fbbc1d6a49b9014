package pagecodec

import (
	"bytes"
	"io"
	"testing"

	"dbbackup/internal/catalog"
)

func TestFrameRoundTripUncompressed(t *testing.T) {
	page := make([]byte, PageSize)
	for i := range page {
		page[i] = byte(i)
	}
	var buf bytes.Buffer
	var crc uint32
	hdr, payload := BuildFrame(3, page, catalog.CompressNone, 0)
	if err := WriteFrame(&buf, hdr, payload, &crc); err != nil {
		t.Fatal(err)
	}

	gotHdr, gotPayload, err := ReadFrame(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if gotHdr.Block != 3 || gotHdr.CompressedSize != PageSize {
		t.Fatalf("unexpected header: %+v", gotHdr)
	}
	if !bytes.Equal(gotPayload, page) {
		t.Fatal("payload mismatch")
	}
}

func TestFrameRoundTripCompressed(t *testing.T) {
	page := make([]byte, PageSize)
	for i := 0; i < 500; i++ {
		page[i] = byte(i % 17)
	}
	var buf bytes.Buffer
	var crc uint32
	hdr, payload := BuildFrame(9, page, catalog.CompressPglz, 0)
	if hdr.CompressedSize >= PageSize {
		t.Fatal("expected a mostly-zero page to compress below PageSize")
	}
	if err := WriteFrame(&buf, hdr, payload, &crc); err != nil {
		t.Fatal(err)
	}

	gotHdr, gotPayload, err := ReadFrame(&buf)
	if err != nil {
		t.Fatal(err)
	}
	out := make([]byte, PageSize)
	n, err := Decompress(catalog.CompressPglz, gotPayload, out, PageSize)
	if err != nil {
		t.Fatal(err)
	}
	if n != PageSize || !bytes.Equal(out, page) {
		t.Fatal("decompressed payload does not match original page")
	}
	_ = gotHdr
}

func TestFrameTruncatedSentinel(t *testing.T) {
	var buf bytes.Buffer
	var crc uint32
	hdr := Header{Block: 4, CompressedSize: PageIsTruncated}
	if err := WriteFrame(&buf, hdr, nil, &crc); err != nil {
		t.Fatal(err)
	}

	gotHdr, payload, err := ReadFrame(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if gotHdr.CompressedSize != PageIsTruncated || payload != nil {
		t.Fatalf("expected truncated sentinel with nil payload, got %+v %v", gotHdr, payload)
	}
}

func TestReadFrameEOFOnAllZeroHeader(t *testing.T) {
	var buf bytes.Buffer
	buf.Write(make([]byte, frameHeaderSize))
	_, _, err := ReadFrame(&buf)
	if err != io.EOF {
		t.Fatalf("expected io.EOF, got %v", err)
	}
}

func TestFramePaddingIsMaxAligned(t *testing.T) {
	var buf bytes.Buffer
	var crc uint32
	hdr := Header{Block: 1, CompressedSize: 5}
	if err := WriteFrame(&buf, hdr, []byte{1, 2, 3, 4, 5}, &crc); err != nil {
		t.Fatal(err)
	}
	// header (8) + aligned payload (8, since alignUp(5)==8)
	if buf.Len() != frameHeaderSize+8 {
		t.Fatalf("expected frame length %d, got %d", frameHeaderSize+8, buf.Len())
	}
}
