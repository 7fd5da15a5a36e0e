package engine

import (
	"github.com/nullroute/nr-dns/internal/dns/common/utils"
)

// Alias resolves a query name through the alias table: an exact-source match
// first, then the parent domain with the query's leading label(s) preserved:
//
//	domain_alias(example.com -> target.com)
//	Alias("sub.example.com") = "sub.target.com"
//
// The returned string is a fresh value the caller may hold without any
// lifetime obligation. ok is false when no alias applies, the feature is
// disabled, or the preserved name would exceed the DNS length bound.
func (e *Engine) Alias(name string) (string, bool) {
	if e.aliases == nil {
		return "", false
	}
	cn := utils.CanonicalName(name)
	if !utils.ValidName(cn) {
		return "", false
	}

	// 1) Exact source.
	target, ok, err := e.aliases.Alias(cn)
	if err != nil {
		e.logger.Error(map[string]any{"name": cn, "error": err}, "alias lookup failed")
		return "", false
	}
	if ok {
		return target, true
	}

	// 2) Parent domain, carrying the subdomain prefix over to the target.
	parent, ok := utils.ParentDomain(cn)
	if !ok {
		return "", false
	}
	target, ok, err = e.aliases.Alias(parent)
	if err != nil {
		e.logger.Error(map[string]any{"name": parent, "error": err}, "alias parent lookup failed")
		return "", false
	}
	if !ok {
		return "", false
	}

	prefix := cn[:len(cn)-len(parent)] // leading label(s), dot included
	if len(prefix)+len(target) > utils.MaxNameLength {
		e.logger.Warn(map[string]any{
			"name":   cn,
			"target": target,
		}, "alias target too long after prefix preservation")
		return "", false
	}
	return prefix + target, true
}
