package domain

import (
	"fmt"
	"net/netip"
)

// DecisionKind identifies how a query should be routed once classified.
//
// none      - no rule matched; the query passes through unchanged
// terminate - answer locally with a sinkhole address
// dns_block - forward to the configured blocker upstream
// dns_allow - forward to the configured allow upstream
// rewrite   - substitute answer addresses after upstream resolution
type DecisionKind uint8

const (
	// DecisionNone routes the query to the normal upstream unchanged.
	DecisionNone DecisionKind = iota
	// DecisionTerminate answers locally with a sinkhole address.
	DecisionTerminate
	// DecisionDNSBlock forwards the query to the blocker upstream.
	DecisionDNSBlock
	// DecisionDNSAllow forwards the query to the allow upstream.
	DecisionDNSAllow
	// DecisionRewrite substitutes answer addresses post-resolution.
	DecisionRewrite
)

// String returns a stable string representation of the decision kind.
func (k DecisionKind) String() string {
	switch k {
	case DecisionNone:
		return "none"
	case DecisionTerminate:
		return "terminate"
	case DecisionDNSBlock:
		return "dns_block"
	case DecisionDNSAllow:
		return "dns_allow"
	case DecisionRewrite:
		return "rewrite"
	default:
		return fmt.Sprintf("DecisionKind(%d)", k)
	}
}

// Decision is the routing outcome for a classified domain.
// Pure value type, safe to copy and cache.
//
// MatchedRule holds the rule row or pattern that produced the decision and
// Source identifies the table it came from, so a forwarder can distinguish
// wildcard blocks from fqdn blocks if its upstreams ever diverge.
type Decision struct {
	Kind        DecisionKind
	MatchedRule string // rule row or pattern text that matched
	Source      string // table identity, e.g. "block_exact"

	// Rewrite payload; only set when Kind == DecisionRewrite.
	RewriteV4 netip.Addr
	RewriteV6 netip.Addr
}

// EmptyDecision returns a pass-through decision.
func EmptyDecision() Decision { return Decision{Kind: DecisionNone} }

// TerminateDecision returns a terminate decision for the given rule and table.
func TerminateDecision(rule, source string) Decision {
	return Decision{Kind: DecisionTerminate, MatchedRule: rule, Source: source}
}

// BlockDecision returns a forward-to-blocker decision.
func BlockDecision(rule, source string) Decision {
	return Decision{Kind: DecisionDNSBlock, MatchedRule: rule, Source: source}
}

// AllowDecision returns a forward-to-allow decision.
func AllowDecision(rule, source string) Decision {
	return Decision{Kind: DecisionDNSAllow, MatchedRule: rule, Source: source}
}

// IsTerminal reports whether the decision resolves the query without the
// normal upstream (terminate or one of the forced forwards).
func (d Decision) IsTerminal() bool {
	return d.Kind == DecisionTerminate || d.Kind == DecisionDNSBlock || d.Kind == DecisionDNSAllow
}
