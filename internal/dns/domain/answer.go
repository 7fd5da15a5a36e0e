package domain

import "net/netip"

// Answer is the engine's view of a single A or AAAA record in a resolved
// response. The surrounding resolver owns the full record; the engine only
// needs the owner name and the address it may rewrite. Re-encoding the wire
// bytes from the rewritten record is the caller's job, which keeps the cached
// record and the outgoing packet consistent by construction.
type Answer struct {
	Name string
	Addr netip.Addr
}

// IsV6 reports whether the answer carries an IPv6 address.
func (a Answer) IsV6() bool { return a.Addr.Is6() && !a.Addr.Is4In6() }
