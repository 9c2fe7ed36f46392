// Copyright (c) tracesim authors
// SPDX-License-Identifier: BSD-3-Clause

// Package addrx wraps netip with the address/prefix semantics the route
// engine needs: family-aware comparisons, a canonical "default" prefix, and
// the fleet-wide public-address predicate.
package addrx

import (
	"fmt"
	"net/netip"

	"go4.org/netipx"
)

// Prefix is a destination match target: a host address, a CIDR prefix, or
// the zero-length "default" prefix for its family.
type Prefix struct {
	p        netip.Prefix
	isHost   bool
	isDefault bool
}

// ParseAddr parses a bare host address.
func ParseAddr(s string) (netip.Addr, error) {
	a, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("addrx: invalid address %q: %w", s, err)
	}
	return a, nil
}

// ParseDestination parses a route destination: "default", "default6",
// a bare host address, or a CIDR.
func ParseDestination(s string, v6Default bool) (Prefix, error) {
	switch s {
	case "default", "0.0.0.0/0":
		return Prefix{p: netip.PrefixFrom(netip.IPv4Unspecified(), 0), isDefault: true}, nil
	case "default6", "::/0":
		return Prefix{p: netip.PrefixFrom(netip.IPv6Unspecified(), 0), isDefault: true}, nil
	}
	if pfx, err := netip.ParsePrefix(s); err == nil {
		return Prefix{p: pfx}, nil
	}
	a, err := netip.ParseAddr(s)
	if err != nil {
		return Prefix{}, fmt.Errorf("addrx: invalid destination %q: %w", s, err)
	}
	return Prefix{p: netip.PrefixFrom(a, a.BitLen()), isHost: true}, nil
}

// IsDefault reports whether this is the zero-length default route for its family.
func (p Prefix) IsDefault() bool { return p.isDefault }

// Bits is the prefix length.
func (p Prefix) Bits() int { return p.p.Bits() }

// Is4 reports whether this prefix belongs to the IPv4 family.
func (p Prefix) Is4() bool { return p.p.Addr().Is4() }

// Matches reports whether addr is contained in the prefix and, if so, the
// prefix length to use for longest-prefix-match comparisons.
func (p Prefix) Matches(addr netip.Addr) (bool, int) {
	if p.isDefault {
		if p.p.Addr().Is4() != addr.Is4() {
			return false, 0
		}
		return true, 0
	}
	if p.p.Addr().Is4() != addr.Is4() {
		return false, 0
	}
	if p.isHost {
		if p.p.Addr() == addr {
			return true, addr.BitLen()
		}
		return false, 0
	}
	if p.p.Contains(addr) {
		return true, p.p.Bits()
	}
	return false, 0
}

func (p Prefix) String() string {
	if p.isDefault {
		if p.p.Addr().Is4() {
			return "default"
		}
		return "default6"
	}
	if p.isHost {
		return p.p.Addr().String()
	}
	return p.p.String()
}

var privateSet = mustBuildPrivateSet()

func mustBuildPrivateSet() *netipx.IPSet {
	var b netipx.IPSetBuilder
	for _, cidr := range []string{
		"10.0.0.0/8",
		"172.16.0.0/12",
		"192.168.0.0/16",
		"127.0.0.0/8",
		"169.254.0.0/16",
		"224.0.0.0/4",
		"240.0.0.0/4",
		"0.0.0.0/8",
	} {
		b.AddPrefix(netip.MustParsePrefix(cidr))
	}
	set, err := b.IPSet()
	if err != nil {
		panic(fmt.Sprintf("addrx: building private range set: %v", err))
	}
	return set
}

// IsPublic reports whether addr is a globally routable public address. IPv6 addresses are
// always non-public, per spec.
func IsPublic(a netip.Addr) bool {
	if !a.Is4() {
		return false
	}
	return !privateSet.Contains(a)
}
