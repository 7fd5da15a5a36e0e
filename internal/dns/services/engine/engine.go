// Package engine exposes the classification engine consumed by the
// surrounding resolver: decision lookup, alias expansion, post-resolution
// address rewriting, and reply-address selection.
package engine

import (
	"fmt"
	"sync"

	"github.com/nullroute/nr-dns/internal/dns/common/clock"
	"github.com/nullroute/nr-dns/internal/dns/common/log"
	"github.com/nullroute/nr-dns/internal/dns/domain"
	"github.com/nullroute/nr-dns/internal/dns/repos/rules"
)

// Engine is the façade the resolver's query path calls into. It is
// constructed once at startup and shared by every in-flight query; all
// methods are safe for concurrent use.
type Engine struct {
	classifier Classifier
	aliases    AliasStore
	rewrites   RewriteStore
	addrs      domain.AddressSets
	logger     log.Logger
	clock      clock.Clock

	startedAt int64 // unix seconds, for the teardown stats line
	closeOnce sync.Once
}

// Options carries the collaborators for New.
type Options struct {
	Classifier Classifier
	Aliases    AliasStore
	Rewrites   RewriteStore
	Addresses  domain.AddressSets
	Logger     log.Logger
	Clock      clock.Clock
}

// New wires the engine. The address sets are validated here and never
// reassigned afterwards; callers may rely on SelectAddress being stable.
func New(opts Options) (*Engine, error) {
	if opts.Classifier == nil {
		return nil, fmt.Errorf("engine requires a classifier")
	}
	if err := opts.Addresses.Validate(); err != nil {
		return nil, fmt.Errorf("invalid address sets: %w", err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Engine{
		classifier: opts.Classifier,
		aliases:    opts.Aliases,
		rewrites:   opts.Rewrites,
		addrs:      opts.Addresses,
		logger:     logger,
		clock:      clk,
		startedAt:  clk.Now().Unix(),
	}, nil
}

// Classify resolves a queried name to its routing decision. Idempotent for a
// fixed store; the result is cached by the underlying repository.
func (e *Engine) Classify(name string) domain.Decision {
	return e.classifier.Decide(name)
}

// SelectAddress picks the reply address for a decision. The first element of
// the relevant configured set is used; ok is false when the set is empty or
// the decision carries no address semantics.
func (e *Engine) SelectAddress(d domain.Decision, v6 bool) (domain.Endpoint, bool) {
	switch d.Kind {
	case domain.DecisionTerminate:
		set := e.addrs.TerminateV4
		if v6 {
			set = e.addrs.TerminateV6
		}
		if len(set) == 0 {
			return domain.Endpoint{}, false
		}
		return domain.Endpoint{Addr: set[0]}, true
	case domain.DecisionDNSBlock:
		if len(e.addrs.DNSBlock) == 0 {
			return domain.Endpoint{}, false
		}
		return e.addrs.DNSBlock[0], true
	case domain.DecisionDNSAllow:
		if len(e.addrs.DNSAllow) == 0 {
			return domain.Endpoint{}, false
		}
		return e.addrs.DNSAllow[0], true
	default:
		return domain.Endpoint{}, false
	}
}

// AddressSets returns the configured sets for callers that rotate through
// more than the first element.
func (e *Engine) AddressSets() domain.AddressSets { return e.addrs }

// CacheStats exposes the decision-cache counters.
func (e *Engine) CacheStats() rules.CacheStats { return e.classifier.CacheStats() }

// Close logs the cache hit-rate statistics once. The store and caches are
// owned by the caller that built them; Close does not reach into them.
func (e *Engine) Close() {
	e.closeOnce.Do(func() {
		stats := e.classifier.CacheStats()
		e.logger.Info(map[string]any{
			"uptime_s":  e.clock.Now().Unix() - e.startedAt,
			"hits":      stats.Hits,
			"misses":    stats.Misses,
			"evictions": stats.Evictions,
			"hit_rate":  stats.HitRate(),
			"size":      stats.Size,
		}, "classification engine stopped")
	})
}
