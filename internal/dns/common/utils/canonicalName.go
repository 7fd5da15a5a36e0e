package utils

import "strings"

// MaxNameLength is the maximum accepted length of a domain name in octets.
const MaxNameLength = 255

// CanonicalName returns a DNS name in the engine's canonical form:
// - Lowercased (ASCII case folding)
// - Trimmed of surrounding whitespace
// - Without a trailing dot
//
// The persistent rule tables store bare names, so canonical form here is the
// bare form, unlike wire-format names which carry the root dot.
func CanonicalName(name string) string {
	name = strings.TrimSpace(name)
	name = strings.ToLower(name)
	name = strings.TrimSuffix(name, ".")
	return name
}

// ValidName reports whether a canonical name is non-empty and within the
// DNS length bound. Oversize names are rejected rather than truncated so a
// malformed query can never alias a legitimate rule row.
func ValidName(name string) bool {
	return name != "" && len(name) <= MaxNameLength
}
