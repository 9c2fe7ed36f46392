// Copyright (c) tracesim authors
// SPDX-License-Identifier: BSD-3-Clause

// Package route implements the per-router longest-prefix-match route table
// over the immutable Route value.
package route

import (
	"fmt"
	"net/netip"

	"github.com/netfleet/tracesim/internal/addrx"
)

// Protocol is the routing protocol that installed a route.
type Protocol string

const (
	ProtoKernel Protocol = "kernel"
	ProtoBoot   Protocol = "boot"
	ProtoStatic Protocol = "static"
	ProtoBGP    Protocol = "bgp"
	ProtoOSPF   Protocol = "ospf"
	ProtoRIP    Protocol = "rip"
	ProtoDHCP   Protocol = "dhcp"
)

// Scope is the route's reachability scope.
type Scope string

const (
	ScopeGlobal Scope = "global"
	ScopeLink   Scope = "link"
	ScopeHost   Scope = "host"
	ScopeSite   Scope = "site"
)

// Type classifies what kind of forwarding entry a route is.
type Type string

const (
	TypeUnicast     Type = "unicast"
	TypeLocal       Type = "local"
	TypeBroadcast   Type = "broadcast"
	TypeMulticast   Type = "multicast"
	TypeBlackhole   Type = "blackhole"
	TypeUnreachable Type = "unreachable"
	TypeProhibit    Type = "prohibit"
)

// Route is an immutable route table entry. Construct with New;
// the zero value is not valid.
type Route struct {
	Dest          addrx.Prefix
	OutIface      string
	Gateway       netip.Addr
	HasGateway    bool
	PrefSrc       netip.Addr
	HasPrefSrc    bool
	Metric        int
	Protocol      Protocol
	Scope         Scope
	Type          Type
	Table         string
	Flags         []string
	insertionSeq  int
}

// Params groups the constructor inputs for a Route.
type Params struct {
	Dest       string // "default", host address, or CIDR
	OutIface   string
	Gateway    string // optional
	PrefSrc    string // optional
	Metric     int
	Protocol   Protocol
	Scope      Scope
	Type       Type
	Table      string
	Flags      []string
}

// New validates and constructs a Route. OutIface is required; a malformed
// Dest, Gateway, or PrefSrc is rejected.
func New(p Params, insertionSeq int) (Route, error) {
	if p.OutIface == "" {
		return Route{}, fmt.Errorf("route: outgoing interface is required")
	}
	dest, err := addrx.ParseDestination(p.Dest, false)
	if err != nil {
		return Route{}, fmt.Errorf("route: destination: %w", err)
	}
	r := Route{
		Dest:         dest,
		OutIface:     p.OutIface,
		Metric:       p.Metric,
		Protocol:     p.Protocol,
		Scope:        p.Scope,
		Type:         p.Type,
		Table:        p.Table,
		Flags:        append([]string(nil), p.Flags...),
		insertionSeq: insertionSeq,
	}
	if r.Table == "" {
		r.Table = "main"
	}
	if p.Gateway != "" {
		gw, err := addrx.ParseAddr(p.Gateway)
		if err != nil {
			return Route{}, fmt.Errorf("route: gateway: %w", err)
		}
		r.Gateway, r.HasGateway = gw, true
	}
	if p.PrefSrc != "" {
		ps, err := addrx.ParseAddr(p.PrefSrc)
		if err != nil {
			return Route{}, fmt.Errorf("route: preferred source: %w", err)
		}
		r.PrefSrc, r.HasPrefSrc = ps, true
	}
	return r, nil
}

// discarded reports whether this route type is excluded from matching
// entirely.
func (r Route) discarded() bool {
	switch r.Type {
	case TypeBlackhole, TypeUnreachable, TypeProhibit:
		return true
	default:
		return false
	}
}

// Matches reports whether addr falls within the route's prefix, and the
// prefix length to use for longest-prefix-match tie-breaking.
func (r Route) Matches(addr netip.Addr) (bool, int) {
	if r.discarded() {
		return false, 0
	}
	return r.Dest.Matches(addr)
}

// Table is an ordered, immutable set of routes for one router's "main" table
// (or any single table — multi-table support hooks in via policy.SelectTable).
type Table struct {
	routes []Route
}

// NewTable builds a route table, preserving insertion order for tie-breaking.
func NewTable(routes []Route) *Table {
	return &Table{routes: append([]Route(nil), routes...)}
}

// Routes returns the table's routes in insertion order.
func (t *Table) Routes() []Route { return t.routes }

// BestRoute selects the match with the greatest prefix
// length; ties broken by lower metric, then by insertion order.
func (t *Table) BestRoute(dst netip.Addr) (Route, bool) {
	var best Route
	found := false
	bestLen := -1
	for _, r := range t.routes {
		ok, plen := r.Matches(dst)
		if !ok {
			continue
		}
		switch {
		case !found:
			best, bestLen, found = r, plen, true
		case plen > bestLen:
			best, bestLen = r, plen
		case plen == bestLen && r.Metric < best.Metric:
			best = r
		case plen == bestLen && r.Metric == best.Metric && r.insertionSeq < best.insertionSeq:
			best = r
		}
	}
	return best, found
}
