// Copyright (c) tracesim authors
// SPDX-License-Identifier: BSD-3-Clause

// Package routermodel holds a single router's routes, policy rules,
// interface maps, and metadata, and answers the ownership/reachability
// questions the simulator needs.
package routermodel

import (
	"net/netip"

	"github.com/netfleet/tracesim/internal/addrx"
	"github.com/netfleet/tracesim/internal/policy"
	"github.com/netfleet/tracesim/internal/route"
)

// RouterType classifies a router's position in the fleet.
type RouterType string

const (
	TypeGateway RouterType = "gateway"
	TypeCore    RouterType = "core"
	TypeAccess  RouterType = "access"
	TypeNone    RouterType = "none"
)

// Metadata carries the router facts fields that affect core behavior
// plus the descriptive ones that don't.
type Metadata struct {
	IsLinux           bool
	Type              RouterType
	Location          string
	Role              string
	Vendor            string
	Manageable        bool
	AnsibleController bool
}

// Router is one fleet member: immutable after load.
type Router struct {
	Name     string
	Routes   *route.Table
	Rules    *policy.Table
	Meta     Metadata
	primary  map[string]netip.Addr   // iface -> single preferred-source address
	full     map[string][]netip.Addr // iface -> ordered unique addresses
	order    []string                // interface load order, for deterministic iteration
}

// New builds a Router from its parsed facts. primary and full must already
// be deduplicated/ordered by the caller (fleet loader). ifaceOrder is the
// interface order the loader chose: name order for the parsed interface map
// and for route-derived interfaces, file order for the flat interface list.
func New(name string, routes *route.Table, rules *policy.Table, meta Metadata, primary map[string]netip.Addr, full map[string][]netip.Addr, ifaceOrder []string) *Router {
	return &Router{Name: name, Routes: routes, Rules: rules, Meta: meta, primary: primary, full: full, order: append([]string(nil), ifaceOrder...)}
}

// InterfaceAddress returns the primary (preferred-source) address of an
// interface, if any.
func (r *Router) InterfaceAddress(iface string) (netip.Addr, bool) {
	a, ok := r.primary[iface]
	return a, ok
}

// AllAddresses returns every address this router owns, across interfaces.
func (r *Router) AllAddresses() []netip.Addr {
	var out []netip.Addr
	for _, addrs := range r.full {
		out = append(out, addrs...)
	}
	return out
}

// PrimaryAddresses returns a copy of the interface->preferred-source map.
func (r *Router) PrimaryAddresses() map[string]netip.Addr {
	out := make(map[string]netip.Addr, len(r.primary))
	for k, v := range r.primary {
		out[k] = v
	}
	return out
}

// Ifaces returns every interface name known to this router, in the load
// order recorded by New.
func (r *Router) Ifaces() []string {
	if len(r.order) > 0 {
		return append([]string(nil), r.order...)
	}
	out := make([]string, 0, len(r.full))
	for iface := range r.full {
		out = append(out, iface)
	}
	return out
}

// Owns reports whether addr appears in this router's full interface map.
func (r *Router) Owns(addr netip.Addr) bool {
	_, ok := r.InterfaceOwning(addr)
	return ok
}

// InterfaceOwning returns the interface that carries addr as one of its own
// addresses, if any.
func (r *Router) InterfaceOwning(addr netip.Addr) (string, bool) {
	for _, iface := range r.Ifaces() {
		for _, a := range r.full[iface] {
			if a == addr {
				return iface, true
			}
		}
	}
	return "", false
}

// connectedRoutes returns this router's kernel/link-scope routes: the
// "directly attached" connected networks (GLOSSARY).
func (r *Router) connectedRoutes() []route.Route {
	var out []route.Route
	for _, rt := range r.Routes.Routes() {
		if rt.Protocol == route.ProtoKernel && rt.Scope == route.ScopeLink {
			out = append(out, rt)
		}
	}
	return out
}

// OnConnectedNetwork reports whether addr falls within one of this router's
// directly attached (kernel/link) prefixes.
func (r *Router) OnConnectedNetwork(addr netip.Addr) bool {
	for _, rt := range r.connectedRoutes() {
		if ok, _ := rt.Dest.Matches(addr); ok {
			return true
		}
	}
	return false
}

// IsDestinationReachable reports (reachable, ownedByThisRouter) for peerAddr.
func (r *Router) IsDestinationReachable(addr netip.Addr) (reachable, owned bool) {
	if r.Owns(addr) {
		return true, true
	}
	if r.OnConnectedNetwork(addr) {
		return true, false
	}
	if r.Meta.Type == TypeGateway && addrx.IsPublic(addr) {
		return true, false
	}
	return false, false
}

// IncomingInterfaceFor returns the interface whose connected kernel/link
// prefix contains peerAddr, if any.
func (r *Router) IncomingInterfaceFor(peerAddr netip.Addr) (string, bool) {
	for _, rt := range r.connectedRoutes() {
		if ok, _ := rt.Dest.Matches(peerAddr); ok {
			return rt.OutIface, true
		}
	}
	return "", false
}

// PublicInterface returns the first interface carrying a public address,
// falling back to eth0 if present — used by the gateway-internet exception.
func (r *Router) PublicInterface() (string, bool) {
	// Deterministic order: the facts loader's map iteration isn't ordered,
	// so we walk the explicit load-order slice instead.
	for _, iface := range r.Ifaces() {
		for _, a := range r.full[iface] {
			if addrx.IsPublic(a) {
				return iface, true
			}
		}
	}
	if _, ok := r.full["eth0"]; ok {
		return "eth0", true
	}
	return "", false
}
