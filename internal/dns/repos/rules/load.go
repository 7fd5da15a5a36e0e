package rules

import "github.com/nullroute/nr-dns/internal/dns/common/log"

// BuildBloom sizes a bloom filter from the block_exact row count and loads
// every exact row into it. The returned filter is never mutated again;
// callers may read it without synchronization.
func BuildBloom(store Store, factory BloomFactory, logger log.Logger) (BloomFilter, error) {
	n, err := store.CountExact()
	if err != nil {
		return nil, err
	}
	bf := factory.New(n)
	var loaded uint64
	err = store.IterateExact(func(name string) error {
		bf.Add([]byte(name))
		loaded++
		return nil
	})
	if err != nil {
		return nil, err
	}
	logger.Info(map[string]any{
		"expected": n,
		"loaded":   loaded,
	}, "bloom filter built from exact block table")
	return bf, nil
}
