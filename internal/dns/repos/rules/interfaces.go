package rules

import "github.com/nullroute/nr-dns/internal/dns/domain"

// SuffixTable identifies one of the suffix-matched rule tables.
type SuffixTable uint8

const (
	// SuffixBlockWildcard matches as suffix, forwards to the blocker upstream.
	SuffixBlockWildcard SuffixTable = iota
	// SuffixDNSAllow is the suffix-matched whitelist.
	SuffixDNSAllow
	// SuffixDNSBlock is the suffix-matched blacklist.
	SuffixDNSBlock
)

// TableName returns the persistent table the identifier refers to.
func (t SuffixTable) TableName() string {
	switch t {
	case SuffixBlockWildcard:
		return "block_wildcard"
	case SuffixDNSAllow:
		return "fqdn_dns_allow"
	case SuffixDNSBlock:
		return "fqdn_dns_block"
	default:
		return "unknown"
	}
}

// Store is the engine's read-only view over the persistent rule tables.
// Implementations serve each call on one pooled handle; handles are never
// shared between concurrent calls.
type Store interface {
	// ExactBlock reports whether name has a row in block_exact.
	ExactBlock(name string) (bool, error)

	// LongestSuffix returns the longest of the given suffixes present in the
	// table, ok=false when none match. Suffixes are most- to least-specific.
	LongestSuffix(table SuffixTable, suffixes []string) (string, bool, error)

	// CountExact returns the block_exact row count, used to size the bloom filter.
	CountExact() (uint64, error)

	// IterateExact streams every block_exact domain to fn.
	IterateExact(fn func(name string) error) error

	// IteratePatterns streams every block_regex pattern to fn in insertion order.
	IteratePatterns(fn func(pattern string) error) error

	// Alias returns the alias target for an exact source match.
	// ok=false when the feature is disabled or no row matches.
	Alias(name string) (string, bool, error)

	// RewriteV4 and RewriteV6 return the configured replacement for a source
	// address in textual form. ok=false when disabled or unmatched.
	RewriteV4(src string) (string, bool, error)
	RewriteV6(src string) (string, bool, error)

	// Stats reads cheap per-table counts and feature flags.
	Stats() StoreStats

	Close() error
}

// DecisionCache caches routing decisions by canonical name.
type DecisionCache interface {
	Get(name string) (domain.Decision, bool)
	Put(name string, d domain.Decision)
	Len() int
	Purge()
	Stats() CacheStats
}

// BloomFilter is the minimal membership interface the cascade needs.
// After the one-shot load completes, MightContain must be safe without locks.
type BloomFilter interface {
	Add(key []byte)
	MightContain(key []byte) bool
}

// BloomFactory constructs bloom filters sized for an expected row count.
type BloomFactory interface {
	New(expected uint64) BloomFilter
}

// PatternMatcher evaluates the compiled block_regex patterns against a name.
// Match returns the first matching pattern's text.
type PatternMatcher interface {
	Match(name string) (pattern string, ok bool)
}

// Repository sequences the classification cascade and owns cache policy.
type Repository interface {
	// Decide maps a domain name to its routing decision. Deterministic for a
	// fixed store; every terminal outcome (including none) is cached.
	Decide(name string) domain.Decision
	CacheStats() CacheStats
}
