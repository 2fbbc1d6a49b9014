package pagecodec

const (
	nSums    = 32
	fnvPrime = 709607
)

// checksumBaseOffsets seeds the 32 partial sums; these are the fixed
// constants of the page checksum algorithm, chosen for good avalanche
// behavior and otherwise arbitrary.
var checksumBaseOffsets = [nSums]uint32{
	0x5B1F36E9, 0xB8525960, 0x02AB50AA, 0x1DE66D2A,
	0x79FF467A, 0x9BB9F8A3, 0x217E7CD2, 0x83E13D2C,
	0xF8D4474F, 0xE39EB339, 0x42C6AE16, 0x993216FA,
	0x7B093B5D, 0x98DAFF3C, 0xF718902A, 0x0B1C9CDB,
	0xE58F764B, 0x187636BC, 0x5D7B3BB1, 0xE73DE7DE,
	0x92BEC979, 0xCCA6C0B2, 0x304A0979, 0x85AA43D4,
	0x783125BB, 0x6CA8EAA2, 0xE407EAC6, 0x4B5CFC3E,
	0x9FBF8C76, 0x15CA20BE, 0xF2CA9FD3, 0x9A9F0D8B,
}

func checksumComp(x uint32) uint32 {
	return (x<<1 | x>>31) * fnvPrime
}

// blockChecksum runs the N_SUMS-way FNV mix over one 8 KiB page.
func blockChecksum(page []byte) uint32 {
	var sums [nSums]uint32
	copy(sums[:], checksumBaseOffsets[:])

	const wordsPerStride = nSums // 32 uint32 words = 128 bytes per stride
	strides := len(page) / (4 * wordsPerStride)

	for i := 0; i < strides; i++ {
		base := i * 4 * wordsPerStride
		for j := 0; j < nSums; j++ {
			off := base + j*4
			word := le32(page[off : off+4])
			sums[j] = checksumComp(sums[j] + word)
		}
	}

	var result uint32
	for _, s := range sums {
		result ^= s
	}
	return result
}

// Checksum computes the page checksum for page at its absolute block
// number (segment-number × segment-blocks + block-in-segment). The
// stored checksum field is masked out of the computation and restored
// verbatim in the caller's buffer.
func Checksum(page []byte, absoluteBlock uint32) uint16 {
	saved := StoredChecksum(page)
	SetChecksum(page, 0)
	sum := blockChecksum(page)
	SetChecksum(page, saved)

	sum ^= absoluteBlock
	return uint16(sum%65535) + 1
}

// VerifyChecksum reports whether page's stored checksum matches the
// computed value for absoluteBlock.
func VerifyChecksum(page []byte, absoluteBlock uint32) bool {
	return StoredChecksum(page) == Checksum(page, absoluteBlock)
}
