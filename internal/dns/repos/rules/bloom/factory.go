package bloom

import (
	bitsbloom "github.com/bits-and-blooms/bloom/v3"

	"github.com/nullroute/nr-dns/internal/dns/repos/rules"
)

// factory implements rules.BloomFactory using the internal sizing formula.
type factory struct{}

// NewFactory returns a BloomFactory that sizes filters from the expected
// exact-block row count.
func NewFactory() rules.BloomFactory { return factory{} }

// New constructs a BloomFilter sized for the expected number of entries.
func (factory) New(expected uint64) rules.BloomFilter {
	m, k := size(expected)
	return &filter{bf: bitsbloom.New(uint(m), uint(k))}
}
