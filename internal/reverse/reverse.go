// Copyright (c) tracesim authors
// SPDX-License-Identifier: BSD-3-Clause

// Package reverse implements the bidirectional reverse-path tracer: when
// forward simulation stalls at a non-Linux hop, splice a live trace from
// the controller to the destination with a live trace from the last
// indexable Linux router back to the original source.
package reverse

import (
	"context"
	"fmt"
	"net/netip"

	"github.com/netfleet/tracesim/internal/fleet"
	"github.com/netfleet/tracesim/internal/hop"
	"github.com/netfleet/tracesim/internal/mtr"
	"github.com/netfleet/tracesim/internal/outcome"
	"github.com/netfleet/tracesim/internal/transport"
)

// TraceFunc runs one live hop-report trace "from" a named router (or the
// literal name "controller") to dst, returning normalized hops. Concrete
// wiring (dialing, nested-vs-direct transport, mtr.Run) lives at the
// composition root; this indirection is what lets step 1 and step 2 share
// one splicing algorithm and be exercised without a real network.
type TraceFunc func(ctx context.Context, from string, dst netip.Addr) ([]mtr.Hop, error)

// Tracer runs the three-step protocol against one fleet index.
type Tracer struct {
	Index *fleet.Index
	Trace TraceFunc
	Probe transport.RouterProbe // optional; powers the step-8 interface pass
}

// Run executes the full protocol for (src, dst), given the controller's own
// resolved address and name.
func (t *Tracer) Run(ctx context.Context, src, dst netip.Addr, controllerAddr netip.Addr, controllerName string) (hop.Path, outcome.Outcome) {
	step1, err := t.Trace(ctx, "controller", dst)
	if err != nil {
		return hop.Path{}, outcome.Wrap(outcome.NoPath, err, "reverse step 1: controller to destination")
	}
	path1 := t.buildStep1Path(controllerAddr, controllerName, step1)

	lRecord, lAddr, found := lastLinuxHop(path1, t.Index)
	if !found {
		// No Linux router identified anywhere in step 1: degrade to the
		// trivial two-hop path rather than failing the whole request.
		p := trivialPath(src, dst, lastHopRTT(path1))
		return p, outcome.New(outcome.OK)
	}

	step2, err := t.Trace(ctx, lRecord.Name, src)
	if err != nil {
		return hop.Path{}, outcome.Wrap(outcome.NotFound, err, "reverse step 2: "+lRecord.Name+" to source")
	}

	path2, srcRTT, oc := t.buildStep2Path(step2, lRecord, lAddr, src)
	if oc.Code != outcome.OK {
		return hop.Path{}, oc
	}

	final := spliceStep3(src, dst, srcRTT, path1, path2, lRecord, t.Index)
	if t.Probe != nil {
		runInterfaceProbe(ctx, t.Probe, final, src, dst)
	}
	return final, outcome.New(outcome.OK)
}

// buildStep1Path wraps the controller as hop 1 and annotates every live hop
// with is_router_owned from the fleet index.
func (t *Tracer) buildStep1Path(controllerAddr netip.Addr, controllerName string, hops []mtr.Hop) hop.Path {
	p := hop.Path{Hops: []hop.Record{{
		Seq: 1, Name: controllerName, Address: controllerAddr.String(),
		IsRouterOwned: true, DataSource: "mtr",
	}}}
	for _, h := range hops {
		p.Hops = append(p.Hops, convertHop(h, t.Index, len(p.Hops)+1))
	}
	return p
}

// buildStep2Path implements the three sub-cases of the last-Linux-router trace. It
// returns the converted hops plus the measured RTT to the original source
// (0 if unmeasured), since that figure gets attached to the final path's
// source hop rather than surviving as a standalone record (step 3 always
// re-derives source/L from the original addresses and path1, see splice).
func (t *Tracer) buildStep2Path(hops []mtr.Hop, l hop.Record, lAddr netip.Addr, src netip.Addr) (hop.Path, float64, outcome.Outcome) {
	hasLinux := false
	var srcRTT float64
	for _, h := range hops {
		if h.HasAddr && t.Index.IsLinuxRouter(h.Address, h.Hostname) {
			hasLinux = true
		}
		if h.HasAddr && h.Address == src {
			srcRTT = h.RTTMillis
		}
	}

	if hasLinux {
		p := hop.Path{}
		for _, h := range hops {
			p.Hops = append(p.Hops, convertHop(h, t.Index, len(p.Hops)+1))
		}
		return p, srcRTT, outcome.New(outcome.OK)
	}

	// None of the probed hops are Linux: fall back to a minimal (L, src)
	// path if src itself shows up among the raw hops, else fail.
	for _, h := range hops {
		if h.HasAddr && h.Address == src {
			p := hop.Path{Hops: []hop.Record{
				{Seq: 1, Name: l.Name, Address: lAddr.String(), IsRouterOwned: true, DataSource: "mtr"},
				{Seq: 2, Name: "source", Address: src.String(), RTTMillis: h.RTTMillis, DataSource: "mtr"},
			}}
			return p, h.RTTMillis, outcome.New(outcome.OK)
		}
	}
	return hop.Path{}, 0, outcome.Wrap(outcome.NotFound, fmt.Errorf("original source %s not found among step-2 hops from %s", src, l.Name), "")
}

// spliceStep3 implements the splice sub-steps 1-7. Step 8 (interface
// probing) is layered on afterward since it needs the spliced path.
//
// L itself is excluded from the reversed step-2 hops, not just the source
// address: step 3.3 reintroduces L by matching path1 through the fleet
// index rather than string equality, specifically so a step-2 probe that
// names L differently (FQDN vs short form) doesn't produce a duplicate
// adjacent hop. Carrying both would also violate the no-repeated-router
// path invariant.
func spliceStep3(src, dst netip.Addr, srcRTT float64, path1, path2 hop.Path, l hop.Record, idx *fleet.Index) hop.Path {
	final := hop.Path{}
	srcHop := hop.Record{Name: "source", Address: src.String(), DataSource: "simulated"}
	if srcRTT > 0 {
		srcHop.RTTMillis = srcRTT
	}
	final.Hops = append(final.Hops, srcHop)

	lOwner, lOwned := idx.RouterOwning(mustParseAddr(l.Address))
	for i := len(path2.Hops) - 1; i >= 0; i-- {
		h := path2.Hops[i]
		if h.Address == src.String() {
			continue
		}
		if addr, err := netip.ParseAddr(h.Address); err == nil && lOwned {
			if owner, ok := idx.RouterOwning(addr); ok && owner == lOwner {
				continue
			}
		}
		final.Hops = append(final.Hops, h)
	}

	// The hop in path1 corresponding to L, matched via the fleet index
	// (not string equality) so FQDN/short-form naming doesn't matter.
	if lp1, ok := findByFleetIdentity(path1, l, idx); ok {
		final.Hops = append(final.Hops, lp1)
	} else {
		final.Hops = append(final.Hops, l)
	}

	dstRecord := hop.Record{Name: "destination", Address: dst.String(), DataSource: "simulated"}
	if rtt := lastHopRTT(path1); rtt > 0 {
		dstRecord.RTTMillis = rtt
	}
	final.Hops = append(final.Hops, dstRecord)

	// Filter interior non-Linux hops; L is never filtered even though it
	// would otherwise qualify.
	filtered := make([]hop.Record, 0, len(final.Hops))
	for i, h := range final.Hops {
		if i == 0 || i == len(final.Hops)-1 || h.Name == l.Name {
			filtered = append(filtered, h)
			continue
		}
		if addr, err := netip.ParseAddr(h.Address); err == nil && idx.IsLinuxRouter(addr, h.Name) {
			filtered = append(filtered, h)
		}
	}
	final.Hops = filtered

	final.Renumber()
	final.LinkPrevNext()
	return final
}

func trivialPath(src, dst netip.Addr, dstRTT float64) hop.Path {
	p := hop.Path{Hops: []hop.Record{
		{Seq: 1, Name: "source", Address: src.String(), DataSource: "simulated"},
		{Seq: 2, Name: "destination", Address: dst.String(), RTTMillis: dstRTT, DataSource: "simulated"},
	}}
	p.LinkPrevNext()
	return p
}

func mustParseAddr(s string) netip.Addr {
	a, _ := netip.ParseAddr(s)
	return a
}

func lastHopRTT(p hop.Path) float64 {
	if len(p.Hops) == 0 {
		return 0
	}
	return p.Hops[len(p.Hops)-1].RTTMillis
}

func convertHop(h mtr.Hop, idx *fleet.Index, seq int) hop.Record {
	r := hop.Record{Seq: seq, RTTMillis: h.RTTMillis, DataSource: "mtr"}
	switch {
	case !h.HasAddr:
		r.Name = hop.UnreachableName
		r.Address = hop.UnreachableName
		return r
	case h.Hostname != "":
		r.Name = h.Hostname
	default:
		r.Name = h.Address.String()
	}
	r.Address = h.Address.String()
	if name, ok := idx.RouterOwning(h.Address); ok {
		r.IsRouterOwned = true
		r.Name = name
	}
	return r
}

// lastLinuxHop scans path1 in reverse for the last hop indexing to a Linux
// router.
func lastLinuxHop(path1 hop.Path, idx *fleet.Index) (hop.Record, netip.Addr, bool) {
	for i := len(path1.Hops) - 1; i >= 0; i-- {
		h := path1.Hops[i]
		addr, err := netip.ParseAddr(h.Address)
		if err != nil {
			continue
		}
		if idx.IsLinuxRouter(addr, h.Name) {
			return h, addr, true
		}
	}
	return hop.Record{}, netip.Addr{}, false
}

// findByFleetIdentity locates the path1 hop corresponding to l by fleet
// ownership rather than string equality of names.
func findByFleetIdentity(path1 hop.Path, l hop.Record, idx *fleet.Index) (hop.Record, bool) {
	lAddr, err := netip.ParseAddr(l.Address)
	if err != nil {
		return hop.Record{}, false
	}
	lOwner, ok := idx.RouterOwning(lAddr)
	if !ok {
		return hop.Record{}, false
	}
	for _, h := range path1.Hops {
		addr, err := netip.ParseAddr(h.Address)
		if err != nil {
			continue
		}
		if owner, ok := idx.RouterOwning(addr); ok && owner == lOwner {
			return h, true
		}
	}
	return hop.Record{}, false
}

// runInterfaceProbe probes, for each interior router,
// hop, issue "ip route get <src>" and "ip route get <dst>" to learn the
// incoming/outgoing interface.
func runInterfaceProbe(ctx context.Context, probe transport.RouterProbe, p hop.Path, src, dst netip.Addr) {
	for i := 1; i < len(p.Hops)-1; i++ {
		h := &p.Hops[i]
		if iface, ok := probe.GetInterface(ctx, h.Name, src); ok {
			h.IncomingIface = iface
		}
		if iface, ok := probe.GetInterface(ctx, h.Name, dst); ok {
			h.OutgoingIface = iface
		}
	}
}
