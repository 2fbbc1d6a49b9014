package pagecodec

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"

	"dbbackup/internal/catalog"
)

// legacyZlibMagic is the first byte of a zlib stream (CMF byte 0x78 for
// the default 32K window). Backups written before format version 2.0.23
// stored no explicit "was this compressed" flag for size-equal-to-page
// frames, so decompression on those must probe this byte.
const legacyZlibMagic = 0x78

// Compress writes the compressed form of src into dst using alg at the
// given level (level is ignored by pglz, which has none) and returns
// the number of bytes written, or (-1, message) on failure. Callers
// must not invoke this for CompressNone.
func Compress(alg catalog.CompressAlg, level int, src, dst []byte) (int, string) {
	switch alg {
	case catalog.CompressZlib:
		var buf bytes.Buffer
		w, err := zlib.NewWriterLevel(&buf, clampZlibLevel(level))
		if err != nil {
			return -1, err.Error()
		}
		if _, err := w.Write(src); err != nil {
			return -1, err.Error()
		}
		if err := w.Close(); err != nil {
			return -1, err.Error()
		}
		if buf.Len() > len(dst) {
			return -1, "zlib output exceeds destination buffer"
		}
		copy(dst, buf.Bytes())
		return buf.Len(), ""

	case catalog.CompressPglz:
		n, ok := PglzCompress(src, dst)
		if !ok {
			return -1, "" // not an error: just not compressible; caller stores raw
		}
		return n, ""

	case catalog.CompressZstd:
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(clampZstdLevel(level))))
		if err != nil {
			return -1, err.Error()
		}
		out := enc.EncodeAll(src, nil)
		enc.Close()
		if len(out) > len(dst) {
			return -1, "zstd output exceeds destination buffer"
		}
		copy(dst, out)
		return len(out), ""

	default:
		return -1, fmt.Sprintf("unsupported compression algorithm %q", alg)
	}
}

// Decompress writes the decompressed form of src (compressedSize bytes)
// into dst and returns the number of bytes written. rawLen is the
// expected uncompressed length (PageSize for page frames).
func Decompress(alg catalog.CompressAlg, src []byte, dst []byte, rawLen int) (int, error) {
	switch alg {
	case catalog.CompressZlib:
		r, err := zlib.NewReader(bytes.NewReader(src))
		if err != nil {
			return 0, err
		}
		defer r.Close()
		n, err := io.ReadFull(r, dst[:rawLen])
		if err != nil && err != io.ErrUnexpectedEOF {
			return n, err
		}
		return n, nil

	case catalog.CompressPglz:
		return PglzDecompress(src, dst, rawLen)

	case catalog.CompressZstd:
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return 0, err
		}
		defer dec.Close()
		out, err := dec.DecodeAll(src, make([]byte, 0, rawLen))
		if err != nil {
			return 0, err
		}
		copy(dst, out)
		return len(out), nil

	default:
		return 0, fmt.Errorf("pagecodec: unsupported compression algorithm %q", alg)
	}
}

// DecompressLegacySizeEqualRaw handles the pre-2.0.23 quirk: a frame
// whose recorded compressed-size equals rawLen might be either an
// uncompressed page or a zlib stream that happened to not shrink below
// page size. Probe the first byte for the zlib magic to decide.
func DecompressLegacySizeEqualRaw(src []byte, dst []byte, rawLen int) (int, error) {
	if len(src) > 0 && src[0] == legacyZlibMagic {
		if n, err := Decompress(catalog.CompressZlib, src, dst, rawLen); err == nil {
			return n, nil
		}
	}
	copy(dst[:rawLen], src[:rawLen])
	return rawLen, nil
}

func clampZlibLevel(level int) int {
	if level < zlib.NoCompression || level > zlib.BestCompression {
		return zlib.DefaultCompression
	}
	return level
}

func clampZstdLevel(level int) int {
	if level < 1 {
		return 3
	}
	if level > 22 {
		return 22
	}
	return level
}
