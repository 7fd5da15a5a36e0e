package bloom

import (
	"sync"

	bitsbloom "github.com/bits-and-blooms/bloom/v3"

	"github.com/nullroute/nr-dns/internal/dns/repos/rules"
)

// filter wraps a bits-and-blooms BloomFilter. Add is serialized under a mutex
// for the one-shot load; MightContain reads the finished bit-vector without
// locking. The load must complete before the first MightContain, which the
// engine's init ordering guarantees.
type filter struct {
	mu sync.Mutex
	bf *bitsbloom.BloomFilter
}

// NewFilter constructs a BloomFilter with an explicit bit count and hash count.
func NewFilter(m uint64, k uint8) rules.BloomFilter {
	return &filter{bf: bitsbloom.New(uint(m), uint(k))}
}

func (f *filter) Add(key []byte) {
	f.mu.Lock()
	f.bf.Add(key)
	f.mu.Unlock()
}

func (f *filter) MightContain(key []byte) bool {
	return f.bf.Test(key)
}
