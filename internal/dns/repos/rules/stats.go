package rules

// CacheStats reports lightweight decision-cache metrics.
// All fields are best-effort snapshots and may be updated concurrently.
type CacheStats struct {
	Capacity  int    // configured capacity (0 for disabled cache)
	Size      int    // current number of entries
	Hits      uint64 // total cache hits since construction
	Misses    uint64 // total cache misses since construction
	Evictions uint64 // total evictions since construction
}

// HitRate returns hits/(hits+misses), 0 when no lookups have happened.
func (s CacheStats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// StoreStats reports per-table row counts and optional-feature state.
// Values are read from the store in cheap read-only queries.
type StoreStats struct {
	RegexRows    uint64
	ExactRows    uint64
	WildcardRows uint64
	AllowRows    uint64
	BlockRows    uint64
	PoolSize     int
	AliasEnabled bool
	RewriteV4    bool
	RewriteV6    bool
}
