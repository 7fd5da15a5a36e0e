package engine

import (
	"net/netip"

	"github.com/nullroute/nr-dns/internal/dns/domain"
)

// RewriteV4 returns the configured replacement for an IPv4 answer address.
// Rewrite is best-effort: on lookup error or an unparseable target the
// original address stands and ok is false.
func (e *Engine) RewriteV4(addr netip.Addr) (netip.Addr, bool) {
	if e.rewrites == nil || !addr.Is4() {
		return addr, false
	}
	target, ok, err := e.rewrites.RewriteV4(addr.String())
	if err != nil {
		e.logger.Error(map[string]any{"source": addr, "error": err}, "v4 rewrite lookup failed")
		return addr, false
	}
	if !ok {
		return addr, false
	}
	parsed, perr := netip.ParseAddr(target)
	if perr != nil || !parsed.Is4() {
		e.logger.Warn(map[string]any{
			"source": addr,
			"target": target,
		}, "ignoring malformed v4 rewrite target")
		return addr, false
	}
	return parsed, true
}

// RewriteV6 returns the configured replacement for an IPv6 answer address.
func (e *Engine) RewriteV6(addr netip.Addr) (netip.Addr, bool) {
	if e.rewrites == nil || !addr.Is6() || addr.Is4In6() {
		return addr, false
	}
	target, ok, err := e.rewrites.RewriteV6(addr.String())
	if err != nil {
		e.logger.Error(map[string]any{"source": addr, "error": err}, "v6 rewrite lookup failed")
		return addr, false
	}
	if !ok {
		return addr, false
	}
	parsed, perr := netip.ParseAddr(target)
	if perr != nil || !parsed.Is6() || parsed.Is4In6() {
		e.logger.Warn(map[string]any{
			"source": addr,
			"target": target,
		}, "ignoring malformed v6 rewrite target")
		return addr, false
	}
	return parsed, true
}

// RewriteAnswers applies the rewrite maps to a resolved answer set in place
// and reports how many records changed. The caller re-encodes the wire bytes
// from the rewritten records, so the cached record and the outgoing packet
// stay consistent.
func (e *Engine) RewriteAnswers(answers []domain.Answer) int {
	rewritten := 0
	for i := range answers {
		var next netip.Addr
		var ok bool
		if answers[i].IsV6() {
			next, ok = e.RewriteV6(answers[i].Addr)
		} else {
			next, ok = e.RewriteV4(answers[i].Addr)
		}
		if ok && next != answers[i].Addr {
			answers[i].Addr = next
			rewritten++
		}
	}
	return rewritten
}
