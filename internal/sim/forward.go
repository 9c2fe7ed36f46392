// Copyright (c) tracesim authors
// SPDX-License-Identifier: BSD-3-Clause

// Package sim implements the hop-by-hop forward path simulator:
// the hardest piece of the core, reconstructing the router-by-router path a
// packet would take using only route tables and interface ownership. The
// routers' policy rules are not consulted.
package sim

import (
	"fmt"
	"net/netip"

	"github.com/netfleet/tracesim/internal/addrx"
	"github.com/netfleet/tracesim/internal/fleet"
	"github.com/netfleet/tracesim/internal/hop"
	"github.com/netfleet/tracesim/internal/outcome"
	"github.com/netfleet/tracesim/internal/routermodel"
)

// MaxHops bounds the main loop.
const MaxHops = 30

// Result is the forward simulator's output: either a successful Path, or an
// Outcome describing why it couldn't be built. AllowPartial controls
// whether a "* * *" terminal marker counts as success.
type Result struct {
	Path    hop.Path
	Outcome outcome.Outcome
}

// Options configures one forward-simulation request.
type Options struct {
	AllowPartial bool
}

// Simulate runs the forward path simulation end to end.
func Simulate(idx *fleet.Index, src, dst netip.Addr, opts Options) Result {
	srcRouterName, srcOwned := findOwningOrConnectedRouter(idx, src)
	if srcRouterName == "" {
		return Result{Outcome: outcome.Wrap(outcome.NotFound, fmt.Errorf("no router owns or connects to %s", src), "src="+src.String())}
	}
	srcRouter := idx.Routers[srcRouterName]

	// Single-router shortcut: source and destination owned by
	// the same router.
	if srcOwned {
		if dstRouterName, ok := idx.RouterOwning(dst); ok && dstRouterName == srcRouterName {
			srcIface, _ := srcRouter.InterfaceOwning(src)
			dstIface, _ := srcRouter.InterfaceOwning(dst)
			p := hop.Path{Hops: []hop.Record{{
				Seq:           1,
				Name:          fmt.Sprintf("%s -> %s", srcRouterName, srcRouterName),
				Address:       fmt.Sprintf("%s -> %s", src, dst),
				IncomingIface: fmt.Sprintf("%s -> %s", srcIface, dstIface),
				IsRouterOwned: true,
				DataSource:    "simulated",
			}}}
			return Result{Path: p, Outcome: outcome.New(outcome.OK)}
		}
	}

	srcIface := srcInterface(srcRouter, src, srcOwned)

	p := hop.Path{}
	if srcOwned {
		p.Hops = append(p.Hops, hop.Record{Seq: 1, Name: srcRouterName, Address: src.String(), IncomingIface: srcIface, IsRouterOwned: true, DataSource: "simulated"})
	} else {
		p.Hops = append(p.Hops,
			hop.Record{Seq: 1, Name: "source", Address: src.String(), IncomingIface: srcIface, IsRouterOwned: false, ConnectedRouter: srcRouterName, DataSource: "simulated"},
			hop.Record{Seq: 2, Name: srcRouterName, Address: src.String(), IncomingIface: srcIface, IsRouterOwned: true, DataSource: "simulated"},
		)
	}

	visited := map[string]bool{srcRouterName: true}
	cur := srcRouterName

	for hops := 0; hops < MaxHops; hops++ {
		router := idx.Routers[cur]
		lastIdx := len(p.Hops) - 1

		reachable, owned := router.IsDestinationReachable(dst)
		if reachable {
			if owned {
				iface, _ := router.InterfaceOwning(dst)
				p.Hops[lastIdx].OutgoingIface = iface
				renumberSeq(&p)
				return Result{Path: p, Outcome: outcome.New(outcome.OK)}
			}
			iface := outgoingIfaceFor(router, dst)
			p.Hops[lastIdx].OutgoingIface = iface
			p.Hops = append(p.Hops, hop.Record{
				Seq: lastIdx + 2, Name: "destination", Address: dst.String(),
				IncomingIface: iface, IsRouterOwned: false, ConnectedRouter: cur, DataSource: "simulated",
			})
			renumberSeq(&p)
			return Result{Path: p, Outcome: outcome.New(outcome.OK)}
		}

		nextRouterName, nextIface, hasRoute := nextHop(idx, router, dst)
		if !hasRoute {
			if router.Meta.Type == routermodel.TypeGateway && addrx.IsPublic(dst) {
				iface, ok := router.PublicInterface()
				if ok {
					p.Hops[lastIdx].OutgoingIface = iface
					p.Hops = append(p.Hops, hop.Record{
						Seq: lastIdx + 2, Name: "destination", Address: dst.String(),
						IncomingIface: iface, IsRouterOwned: false, ConnectedRouter: cur, DataSource: "simulated",
					})
					renumberSeq(&p)
					return Result{Path: p, Outcome: outcome.New(outcome.OK)}
				}
			}
			p.Hops = append(p.Hops, hop.Record{Seq: lastIdx + 2, Name: hop.UnreachableName, Address: hop.UnreachableName, DataSource: "simulated"})
			renumberSeq(&p)
			if opts.AllowPartial {
				return Result{Path: p, Outcome: outcome.New(outcome.OK)}
			}
			return Result{Path: p, Outcome: outcome.Wrap(outcome.NoPath, fmt.Errorf("no route for %s at %s", dst, cur), "router="+cur)}
		}

		if visited[nextRouterName] {
			p.Hops = append(p.Hops, hop.Record{
				Seq:     lastIdx + 2,
				Name:    nextRouterName,
				Address: nextRouterAddrHint(idx, nextRouterName) + hop.LoopMarker,
			})
			renumberSeq(&p)
			return Result{Path: p, Outcome: outcome.Wrap(outcome.NoPath, fmt.Errorf("loop detected at %s", nextRouterName), "router="+nextRouterName)}
		}

		p.Hops[lastIdx].OutgoingIface = nextIface

		nextRouter := idx.Routers[nextRouterName]
		curOutAddr, _ := router.InterfaceAddress(nextIface)
		peerIface, ok := nextRouter.IncomingInterfaceFor(curOutAddr)
		if !ok {
			peerIface = nextIface
		}
		nextAddr := nextRouterName
		if a, ok := nextRouter.InterfaceAddress(peerIface); ok {
			nextAddr = a.String()
		}
		p.Hops = append(p.Hops, hop.Record{
			Seq: lastIdx + 2, Name: nextRouterName, Address: nextAddr,
			IncomingIface: peerIface, IsRouterOwned: true, DataSource: "simulated",
		})
		visited[nextRouterName] = true
		cur = nextRouterName
	}

	p.Hops = append(p.Hops, hop.Record{Seq: len(p.Hops) + 1, Name: hop.UnreachableName, Address: hop.UnreachableName, DataSource: "simulated"})
	renumberSeq(&p)
	return Result{Path: p, Outcome: outcome.Wrap(outcome.NoPath, fmt.Errorf("hop limit (%d) exhausted", MaxHops), "")}
}

// renumberSeq assigns contiguous seq values, preserving the loop
// marker quirk: when the last entry is a loop marker, it takes the seq of
// the hop before it instead of the next number.
func renumberSeq(p *hop.Path) {
	isLoopHop := len(p.Hops) > 0 && hasLoopSuffix(p.Hops[len(p.Hops)-1].Address)
	for i := range p.Hops {
		if isLoopHop && i == len(p.Hops)-1 {
			p.Hops[i].Seq = p.Hops[i-1].Seq // the marker reuses the preceding hop's seq
			continue
		}
		p.Hops[i].Seq = i + 1
	}
}

func hasLoopSuffix(addr string) bool {
	return len(addr) >= len(hop.LoopMarker) && addr[len(addr)-len(hop.LoopMarker):] == hop.LoopMarker
}

func findOwningOrConnectedRouter(idx *fleet.Index, addr netip.Addr) (name string, owned bool) {
	if n, ok := idx.RouterOwning(addr); ok {
		return n, true
	}
	for _, n := range idx.Names() {
		if idx.Routers[n].OnConnectedNetwork(addr) {
			return n, false
		}
	}
	return "", false
}

func srcInterface(r *routermodel.Router, src netip.Addr, owned bool) string {
	if owned {
		iface, _ := r.InterfaceOwning(src)
		return iface
	}
	iface, _ := r.IncomingInterfaceFor(src)
	return iface
}

// outgoingIfaceFor returns the interface the router would use to forward
// toward dst, consulting best_route; falls back to the public interface for
// the gateway-internet exception when no route exists but dst is public.
func outgoingIfaceFor(r *routermodel.Router, dst netip.Addr) string {
	if rt, ok := r.Routes.BestRoute(dst); ok {
		return rt.OutIface
	}
	if r.Meta.Type == routermodel.TypeGateway && addrx.IsPublic(dst) {
		if iface, ok := r.PublicInterface(); ok {
			return iface
		}
	}
	return ""
}

// nextHop consults best_route; maps a gateway to
// its owning router, or scan for a router owning dst directly when the
// route carries no gateway.
func nextHop(idx *fleet.Index, r *routermodel.Router, dst netip.Addr) (routerName, iface string, ok bool) {
	rt, found := r.Routes.BestRoute(dst)
	if !found {
		return "", "", false
	}
	if rt.HasGateway {
		if name, ok := idx.RouterOwning(rt.Gateway); ok {
			return name, rt.OutIface, true
		}
		// Gateway address isn't in the fleet; nothing more we can do with it.
		return "", "", false
	}
	// No gateway: the route only names an outgoing interface. Scan other
	// routers for one that owns dst directly.
	for _, name := range idx.Names() {
		if idx.Routers[name].Owns(dst) {
			return name, rt.OutIface, true
		}
	}
	return "", "", false
}

func nextRouterAddrHint(idx *fleet.Index, routerName string) string {
	r := idx.Routers[routerName]
	for _, addr := range r.AllAddresses() {
		return addr.String()
	}
	return routerName
}
