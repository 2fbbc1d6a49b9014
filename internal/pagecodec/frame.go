package pagecodec

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"

	"dbbackup/internal/catalog"
)

// Sentinel values for Header.CompressedSize, taking the place of a
// real byte count.
const (
	// PageIsTruncated marks a frame that records only that a block was
	// found truncated (beyond current EOF) at backup time; restore must
	// ftruncate the target file at this block.
	PageIsTruncated int32 = -2
	// SkipCurrentPage marks a block the engine decided not to copy at
	// all (DELTA mode, page-LSN below the parent's start-LSN); no frame
	// is ever written for it, but callers use the sentinel internally
	// to short-circuit compress_and_backup_page-equivalent logic.
	SkipCurrentPage int32 = -3
	// PageIsCorrupted is returned by the read-retry loop, never written
	// to a frame: it signals a permanently unreadable block.
	PageIsCorrupted int32 = -4
)

// frameHeaderSize is block (4 bytes, uint32) + compressed-size
// (4 bytes, int32).
const frameHeaderSize = 8

// Header is the fixed-size prefix written before each kept block's
// payload in a backed-up data file.
type Header struct {
	Block          uint32
	CompressedSize int32
}

// WriteFrame appends hdr and, unless hdr signals truncation, payload
// (MAXALIGN-padded) to w, updating crc over every byte written.
func WriteFrame(w io.Writer, hdr Header, payload []byte, crc *uint32) error {
	var buf [frameHeaderSize]byte
	binary.LittleEndian.PutUint32(buf[0:4], hdr.Block)
	binary.LittleEndian.PutUint32(buf[4:8], uint32(hdr.CompressedSize))

	if _, err := w.Write(buf[:]); err != nil {
		return fmt.Errorf("pagecodec: write frame header: %w", err)
	}
	*crc = crc32.Update(*crc, crc32.IEEETable, buf[:])

	if hdr.CompressedSize == PageIsTruncated || hdr.CompressedSize < 0 {
		return nil
	}

	padded := alignUp(int(hdr.CompressedSize))
	if padded > len(payload) {
		padding := make([]byte, padded-len(payload))
		if _, err := w.Write(payload); err != nil {
			return fmt.Errorf("pagecodec: write frame payload: %w", err)
		}
		*crc = crc32.Update(*crc, crc32.IEEETable, payload)
		if _, err := w.Write(padding); err != nil {
			return fmt.Errorf("pagecodec: write frame padding: %w", err)
		}
		*crc = crc32.Update(*crc, crc32.IEEETable, padding)
		return nil
	}

	if _, err := w.Write(payload[:hdr.CompressedSize]); err != nil {
		return fmt.Errorf("pagecodec: write frame payload: %w", err)
	}
	*crc = crc32.Update(*crc, crc32.IEEETable, payload[:hdr.CompressedSize])
	return nil
}

// ReadFrame reads one Header plus its (unpadded) payload from r. A
// zero block number with zero compressed-size (an all-zero header at
// EOF) is reported via io.EOF.
func ReadFrame(r io.Reader) (Header, []byte, error) {
	var buf [frameHeaderSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return Header{}, nil, err
	}
	hdr := Header{
		Block:          binary.LittleEndian.Uint32(buf[0:4]),
		CompressedSize: int32(binary.LittleEndian.Uint32(buf[4:8])),
	}
	if hdr.Block == 0 && hdr.CompressedSize == 0 {
		return hdr, nil, io.EOF
	}
	if hdr.CompressedSize == PageIsTruncated || hdr.CompressedSize < 0 {
		return hdr, nil, nil
	}

	padded := alignUp(int(hdr.CompressedSize))
	payload := make([]byte, padded)
	if _, err := io.ReadFull(r, payload); err != nil {
		return hdr, nil, fmt.Errorf("pagecodec: read frame payload: %w", err)
	}
	return hdr, payload[:hdr.CompressedSize], nil
}

func alignUp(n int) int {
	return (n + maxAlign - 1) &^ (maxAlign - 1)
}

// BuildFrame runs the full backup-side pipeline for one kept block:
// compress (unless alg is CompressNone), and on compression
// failure or a non-shrinking result fall back to storing the raw page.
func BuildFrame(block uint32, page []byte, alg catalog.CompressAlg, level int) (Header, []byte) {
	if alg == catalog.CompressNone {
		return Header{Block: block, CompressedSize: PageSize}, page
	}

	dst := make([]byte, PageSize*2)
	n, msg := Compress(alg, level, page, dst)
	if n <= 0 || n >= PageSize {
		_ = msg
		return Header{Block: block, CompressedSize: PageSize}, page
	}
	return Header{Block: block, CompressedSize: int32(n)}, dst[:n]
}
