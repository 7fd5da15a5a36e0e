package bloom

import "math"

// Sizing constants. 9.6 bits per entry with 7 hash rounds gives roughly a 1%
// false-positive rate; the clamp keeps the bit-vector usable from tiny test
// stores up to the multi-billion-row ceiling without unbounded allocation.
const (
	bitsPerEntry = 9.6
	hashCount    = 7
	minBits      = 1 << 16
	maxBits      = 1 << 34
)

// size computes the bit count for an expected number of entries:
// max(minBits, min(maxBits, ceil(n*bitsPerEntry))).
func size(n uint64) (m uint64, k uint8) {
	m = uint64(math.Ceil(float64(n) * bitsPerEntry))
	if m < minBits {
		m = minBits
	}
	if m > maxBits {
		m = maxBits
	}
	return m, hashCount
}
