package pagecodec

import "testing"

func TestChecksumRoundTrip(t *testing.T) {
	page := make([]byte, PageSize)
	for i := range page {
		page[i] = byte(i * 7)
	}
	sum := Checksum(page, 42)
	SetChecksum(page, sum)
	if !VerifyChecksum(page, 42) {
		t.Fatal("expected checksum to verify after being stored")
	}
}

func TestChecksumDependsOnBlockNumber(t *testing.T) {
	page := make([]byte, PageSize)
	for i := range page {
		page[i] = byte(i * 3)
	}
	a := Checksum(page, 1)
	b := Checksum(page, 2)
	if a == b {
		t.Fatal("expected checksum to depend on absolute block number")
	}
}

func TestChecksumIgnoresStoredChecksumField(t *testing.T) {
	page := make([]byte, PageSize)
	for i := range page {
		page[i] = byte(i * 11)
	}
	sum1 := Checksum(page, 7)
	SetChecksum(page, 0xFFFF)
	sum2 := Checksum(page, 7)
	if sum1 != sum2 {
		t.Fatal("expected checksum to mask out the existing stored checksum before computing")
	}
}

func TestVerifyChecksumFailsOnCorruption(t *testing.T) {
	page := make([]byte, PageSize)
	for i := range page {
		page[i] = byte(i)
	}
	sum := Checksum(page, 5)
	SetChecksum(page, sum)
	page[1000] ^= 0xFF
	if VerifyChecksum(page, 5) {
		t.Fatal("expected corrupted page to fail checksum verification")
	}
}
