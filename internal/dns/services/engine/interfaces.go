package engine

import (
	"github.com/nullroute/nr-dns/internal/dns/domain"
	"github.com/nullroute/nr-dns/internal/dns/repos/rules"
)

// Classifier maps a domain name to a routing decision. The production
// implementation is the rules repository cascade.
type Classifier interface {
	Decide(name string) domain.Decision
	CacheStats() rules.CacheStats
}

// AliasStore serves exact-source alias rows.
type AliasStore interface {
	Alias(name string) (string, bool, error)
}

// RewriteStore serves post-resolution address substitution rows. Sources and
// targets travel in textual form; the engine owns parsing and validation.
type RewriteStore interface {
	RewriteV4(src string) (string, bool, error)
	RewriteV6(src string) (string, bool, error)
}
