// Copyright (c) tracesim authors
// SPDX-License-Identifier: BSD-3-Clause

// Package hop defines the tagged hop record and Path types: a single
// tagged record standing in for what would otherwise be several
// differently-shaped tuples. Optional fields are represented as
// pointers/bools rather than varying tuple arity.
package hop

import (
	"fmt"
	"strings"
)

// LoopMarker is the address suffix appended when loop detection fires.
// The numbering choice — this marker reuses the offending hop's seq
// rather than incrementing — is a deliberate choice; it is not a bug to "fix".
const LoopMarker = " (loop detected)"

// UnreachableName is the hop name used for a failed/unmeasured probe hop.
const UnreachableName = "* * *"

// Record is one step of a Path. Every duck-typed tuple shape from the
// original 7/8/9-element records collapses into this one struct; unset
// optional fields are the zero value.
type Record struct {
	Seq            int
	Name           string
	Address        string
	IncomingIface  string
	IsRouterOwned  bool
	PrevHopName    string
	NextHopName    string
	OutgoingIface  string
	RTTMillis      float64 // 0 means "not measured"
	ConnectedRouter string // set on source/destination pseudo-hops sitting on a router's connected network
	DataSource     string // "simulated" or "mtr"; empty when the formatter shouldn't tag provenance
}

// IsFailureMarker reports whether this record is the "* * *" unreachable
// marker (as opposed to a real or pseudo hop).
func (r Record) IsFailureMarker() bool { return r.Name == UnreachableName }

// Path is an ordered sequence of hop records.
type Path struct {
	Hops []Record
}

// MaxSeq returns the highest Seq value present, or 0 for an empty path.
func (p Path) MaxSeq() int {
	max := 0
	for _, h := range p.Hops {
		if h.Seq > max {
			max = h.Seq
		}
	}
	return max
}

// HasFailureMarker reports whether any hop is the "* * *" marker.
func (p Path) HasFailureMarker() bool {
	for _, h := range p.Hops {
		if h.IsFailureMarker() {
			return true
		}
	}
	return false
}

// isPseudoOrMarker reports whether a hop is a source/destination pseudo-hop,
// the legacy single-router shortcut, or a failure marker — i.e. not a "real"
// router hop.
func isPseudoOrMarker(h Record) bool {
	return h.Name == "source" || h.Name == "destination" || strings.Contains(h.Name, " -> ") || h.IsFailureMarker()
}

// LastRouterHop returns the last hop that names an actual router — skipping
// source/destination pseudo-hops, the single-router shortcut, and failure
// markers.
func (p Path) LastRouterHop() (Record, bool) {
	for i := len(p.Hops) - 1; i >= 0; i-- {
		h := p.Hops[i]
		if isPseudoOrMarker(h) {
			continue
		}
		return h, true
	}
	return Record{}, false
}

// Renumber reassigns contiguous 1-based Seq values in place, preserving
// order. Used by the reverse tracer after splicing.
func (p *Path) Renumber() {
	for i := range p.Hops {
		p.Hops[i].Seq = i + 1
	}
}

// LinkPrevNext populates PrevHopName (forward pass) and NextHopName
// (reverse pass) for every hop.
func (p *Path) LinkPrevNext() {
	for i := 1; i < len(p.Hops); i++ {
		p.Hops[i].PrevHopName = p.Hops[i-1].Name
	}
	for i := len(p.Hops) - 2; i >= 0; i-- {
		p.Hops[i].NextHopName = p.Hops[i+1].Name
	}
}

// CheckInvariants validates the path invariants: contiguous seq, and no
// router name repeats except via the explicit loop marker. A loop-marker hop
// may reuse the seq of the hop before it.
func (p Path) CheckInvariants() error {
	seen := make(map[string]bool, len(p.Hops))
	for i, h := range p.Hops {
		addr := h.Address
		isLoopHop := len(addr) >= len(LoopMarker) && addr[len(addr)-len(LoopMarker):] == LoopMarker
		if i > 0 && h.Seq != p.Hops[i-1].Seq+1 && !(isLoopHop && h.Seq == p.Hops[i-1].Seq) {
			return fmt.Errorf("hop: non-contiguous seq at index %d: %d follows %d", i, h.Seq, p.Hops[i-1].Seq)
		}
		if isPseudoOrMarker(h) {
			continue
		}
		if isLoopHop {
			continue
		}
		name := h.Name
		if seen[name] {
			return fmt.Errorf("hop: router %q repeats without a loop marker", name)
		}
		seen[name] = true
	}
	return nil
}
