// Copyright (c) tracesim authors
// SPDX-License-Identifier: BSD-3-Clause

package hop

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestRenumberAndLinkPrevNext(t *testing.T) {
	p := Path{Hops: []Record{
		{Seq: 5, Name: "source"},
		{Seq: 9, Name: "r1", IsRouterOwned: true},
		{Seq: 10, Name: "destination"},
	}}
	p.Renumber()
	p.LinkPrevNext()

	want := []Record{
		{Seq: 1, Name: "source", NextHopName: "r1"},
		{Seq: 2, Name: "r1", IsRouterOwned: true, PrevHopName: "source", NextHopName: "destination"},
		{Seq: 3, Name: "destination", PrevHopName: "r1"},
	}
	if diff := cmp.Diff(want, p.Hops); diff != "" {
		t.Errorf("Hops mismatch (-want +got):\n%s", diff)
	}
}

func TestCheckInvariantsRejectsRepeatedRouterWithoutLoopMarker(t *testing.T) {
	p := Path{Hops: []Record{
		{Seq: 1, Name: "r1"},
		{Seq: 2, Name: "r2"},
		{Seq: 3, Name: "r1"},
	}}
	if err := p.CheckInvariants(); err == nil {
		t.Fatal("expected an error for a repeated router name")
	}
}

func TestCheckInvariantsAllowsLoopMarker(t *testing.T) {
	p := Path{Hops: []Record{
		{Seq: 1, Name: "r1"},
		{Seq: 2, Name: "r2"},
		{Seq: 2, Name: "r1", Address: "10.0.0.1" + LoopMarker},
	}}
	if err := p.CheckInvariants(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLastRouterHopSkipsPseudoHopsAndMarkers(t *testing.T) {
	p := Path{Hops: []Record{
		{Seq: 1, Name: "source"},
		{Seq: 2, Name: "r1"},
		{Seq: 3, Name: UnreachableName},
	}}
	got, ok := p.LastRouterHop()
	if !ok || got.Name != "r1" {
		t.Fatalf("LastRouterHop = (%+v, %v), want r1", got, ok)
	}
}
