package rules

import (
	"github.com/nullroute/nr-dns/internal/dns/common/log"
	"github.com/nullroute/nr-dns/internal/dns/common/utils"
	"github.com/nullroute/nr-dns/internal/dns/domain"
)

// Source identities recorded on decisions, matching the table that matched.
const (
	SourceBlockRegex = "block_regex"
	SourceBlockExact = "block_exact"
)

// repository implements Repository by sequencing the fixed-priority cascade
// over the pattern cache, bloom-gated exact table, and the three suffix
// tables, fronted by the decision cache. Runtime query errors degrade to a
// miss for that step; the cascade continues.
type repository struct {
	store    Store
	cache    DecisionCache
	bloom    BloomFilter
	patterns PatternMatcher
	logger   log.Logger
}

// RepositoryOptions carries the collaborators for NewRepository.
// Bloom may be nil, in which case the exact step always consults the store.
type RepositoryOptions struct {
	Store    Store
	Cache    DecisionCache
	Bloom    BloomFilter
	Patterns PatternMatcher
	Logger   log.Logger
}

// NewRepository constructs the cascade repository.
func NewRepository(opts RepositoryOptions) Repository {
	logger := opts.Logger
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	return &repository{
		store:    opts.Store,
		cache:    opts.Cache,
		bloom:    opts.Bloom,
		patterns: opts.Patterns,
		logger:   logger,
	}
}

// Decide returns the routing decision for name. Every terminal outcome of the
// cascade, including none, is cached so negative lookups amortize the full
// cascade cost.
func (r *repository) Decide(name string) domain.Decision {
	cn := utils.CanonicalName(name)
	if !utils.ValidName(cn) {
		return domain.EmptyDecision()
	}
	if d, ok := r.cache.Get(cn); ok {
		return d
	}
	d := r.classify(cn)
	r.cache.Put(cn, d)
	return d
}

// classify runs the six priority steps in order; the first match wins.
func (r *repository) classify(cn string) domain.Decision {
	// 1) Regex patterns.
	if pat, ok := r.patterns.Match(cn); ok {
		return domain.TerminateDecision(pat, SourceBlockRegex)
	}

	// 2) Exact block, gated by the bloom filter. A negative bloom answer
	// guarantees absence, so the store is skipped entirely.
	if r.bloom == nil || r.bloom.MightContain([]byte(cn)) {
		hit, err := r.store.ExactBlock(cn)
		if err != nil {
			r.logger.Error(map[string]any{"name": cn, "error": err}, "exact block lookup failed")
		} else if hit {
			return domain.TerminateDecision(cn, SourceBlockExact)
		}
	}

	// Steps 3-5 share one suffix enumeration.
	var buf [utils.MaxSuffixDepth]string
	suffixes := utils.AppendSuffixes(buf[:0], cn)

	// 3) Wildcard block.
	if row, ok := r.lookupSuffix(SuffixBlockWildcard, suffixes); ok {
		return domain.BlockDecision(row, SuffixBlockWildcard.TableName())
	}

	// 4) DNS allow.
	if row, ok := r.lookupSuffix(SuffixDNSAllow, suffixes); ok {
		return domain.AllowDecision(row, SuffixDNSAllow.TableName())
	}

	// 5) DNS block.
	if row, ok := r.lookupSuffix(SuffixDNSBlock, suffixes); ok {
		return domain.BlockDecision(row, SuffixDNSBlock.TableName())
	}

	// 6) No match.
	return domain.EmptyDecision()
}

// lookupSuffix queries one suffix table, treating errors as a miss.
func (r *repository) lookupSuffix(table SuffixTable, suffixes []string) (string, bool) {
	row, ok, err := r.store.LongestSuffix(table, suffixes)
	if err != nil {
		r.logger.Error(map[string]any{
			"table": table.TableName(),
			"error": err,
		}, "suffix lookup failed")
		return "", false
	}
	return row, ok
}

// CacheStats exposes decision-cache counters.
func (r *repository) CacheStats() CacheStats {
	return r.cache.Stats()
}

var _ Repository = (*repository)(nil)
