package pagecodec

import "testing"

func validPageBytes() []byte {
	page := make([]byte, PageSize)
	// lsn = 0x1234 (little endian, 8 bytes)
	page[0] = 0x34
	page[1] = 0x12
	// checksum left 0
	// flags = 0
	// lower = 24, upper = 8000, special = 8192
	putLE16(page[12:14], 24)
	putLE16(page[14:16], 8000)
	putLE16(page[16:18], PageSize)
	// pagesize/version word: size masked into top byte per 256-byte units
	putLE16(page[18:20], uint16(PageSize))
	return page
}

func putLE16(b []byte, v uint16) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
}

func TestValidAcceptsWellFormedHeader(t *testing.T) {
	page := validPageBytes()
	lsn, ok := Valid(page)
	if !ok {
		t.Fatal("expected well-formed page header to validate")
	}
	if lsn != 0x1234 {
		t.Fatalf("expected lsn 0x1234, got %x", lsn)
	}
}

func TestValidRejectsBadOrdering(t *testing.T) {
	page := validPageBytes()
	putLE16(page[12:14], 9000) // lower > upper
	if _, ok := Valid(page); ok {
		t.Fatal("expected lower > upper to be rejected")
	}
}

func TestValidRejectsWrongSize(t *testing.T) {
	page := validPageBytes()[:100]
	if _, ok := Valid(page); ok {
		t.Fatal("expected short buffer to be rejected")
	}
}

func TestValidRejectsUnalignedSpecial(t *testing.T) {
	page := validPageBytes()
	putLE16(page[16:18], 8191) // not maxalign'd
	putLE16(page[14:16], 8191)
	if _, ok := Valid(page); ok {
		t.Fatal("expected unaligned pd_special to be rejected")
	}
}

func TestIsZeroed(t *testing.T) {
	page := make([]byte, PageSize)
	if !IsZeroed(page) {
		t.Fatal("expected all-zero buffer to be zeroed")
	}
	page[100] = 1
	if IsZeroed(page) {
		t.Fatal("expected non-zero buffer to not be zeroed")
	}
}

func TestSetAndStoredChecksum(t *testing.T) {
	page := validPageBytes()
	SetChecksum(page, 0xBEEF)
	if got := StoredChecksum(page); got != 0xBEEF {
		t.Fatalf("expected checksum 0xBEEF, got %x", got)
	}
}
