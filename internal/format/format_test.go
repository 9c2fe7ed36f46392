// Copyright (c) tracesim authors
// SPDX-License-Identifier: BSD-3-Clause

package format

import (
	"strings"
	"testing"

	"github.com/netfleet/tracesim/internal/hop"
)

func samplePath() hop.Path {
	p := hop.Path{Hops: []hop.Record{
		{Seq: 1, Name: "source", Address: "10.1.1.10", IncomingIface: "eth0", ConnectedRouter: "r1", DataSource: "simulated"},
		{Seq: 2, Name: "r1", Address: "10.1.1.1", IncomingIface: "eth0", OutgoingIface: "eth1", IsRouterOwned: true, DataSource: "simulated"},
		{Seq: 3, Name: "r2", Address: "10.100.0.2", IncomingIface: "eth0", OutgoingIface: "eth1", IsRouterOwned: true, RTTMillis: 1.2, DataSource: "mtr"},
		{Seq: 4, Name: "destination", Address: "10.2.1.10", IncomingIface: "eth1", ConnectedRouter: "r2", DataSource: "simulated"},
	}}
	p.LinkPrevNext()
	return p
}

func TestTextRendersEveryHop(t *testing.T) {
	out := Text(samplePath())
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if len(lines) != 4 {
		t.Fatalf("got %d lines, want 4:\n%s", len(lines), out)
	}
	if !strings.Contains(lines[0], "source") || !strings.Contains(lines[0], "via eth0") || !strings.Contains(lines[0], "on r1") {
		t.Errorf("source line = %q", lines[0])
	}
	if !strings.Contains(lines[1], "r1") || !strings.Contains(lines[1], "from eth0 to eth1") {
		t.Errorf("r1 line = %q", lines[1])
	}
	if !strings.Contains(lines[2], "1.2ms") {
		t.Errorf("r2 line missing rtt: %q", lines[2])
	}
	if !strings.Contains(lines[3], "destination") || !strings.Contains(lines[3], "on r2") {
		t.Errorf("destination line = %q", lines[3])
	}
}

func TestTextFailureMarker(t *testing.T) {
	p := hop.Path{Hops: []hop.Record{
		{Seq: 1, Name: "source", Address: "10.1.1.10"},
		{Seq: 2, Name: hop.UnreachableName, Address: hop.UnreachableName},
	}}
	out := Text(p)
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if lines[1] != "  2  * * *" {
		t.Errorf("marker line = %q", lines[1])
	}
}

func TestJSONOmitsRTTForSimulatedHops(t *testing.T) {
	data, err := JSON(samplePath())
	if err != nil {
		t.Fatal(err)
	}
	doc, err := ParseDocument(data)
	if err != nil {
		t.Fatal(err)
	}
	if !doc.Success {
		t.Fatal("success = false, want true")
	}
	if len(doc.Path) != 4 {
		t.Fatalf("got %d hops, want 4", len(doc.Path))
	}
	if doc.Path[1].RTT != nil {
		t.Errorf("simulated hop has rtt = %v, want omitted", *doc.Path[1].RTT)
	}
	if doc.Path[2].RTT == nil || *doc.Path[2].RTT != 1.2 {
		t.Errorf("mtr hop rtt = %v, want 1.2", doc.Path[2].RTT)
	}
	if doc.Path[0].PrevHopName != "" || doc.Path[0].NextHopName != "r1" {
		t.Errorf("source hop linkage = prev:%q next:%q", doc.Path[0].PrevHopName, doc.Path[0].NextHopName)
	}
}

func TestJSONFailureDocument(t *testing.T) {
	data, err := JSONFailure()
	if err != nil {
		t.Fatal(err)
	}
	doc, err := ParseDocument(data)
	if err != nil {
		t.Fatal(err)
	}
	if doc.Success {
		t.Error("success = true, want false")
	}
	if len(doc.Path) != 0 {
		t.Errorf("path = %v, want empty", doc.Path)
	}
}

// Round-trip: a path rendered to JSON and parsed back preserves every hop's
// name/seq/address.
func TestRoundTripFormatting(t *testing.T) {
	p := samplePath()
	data, err := JSON(p)
	if err != nil {
		t.Fatal(err)
	}
	doc, err := ParseDocument(data)
	if err != nil {
		t.Fatal(err)
	}
	if len(doc.Path) != len(p.Hops) {
		t.Fatalf("got %d hops, want %d", len(doc.Path), len(p.Hops))
	}
	for i, h := range p.Hops {
		w := doc.Path[i]
		if w.Seq != h.Seq || w.Name != h.Name || w.Address != h.Address {
			t.Errorf("hop[%d]: got {%d %q %q}, want {%d %q %q}", i, w.Seq, w.Name, w.Address, h.Seq, h.Name, h.Address)
		}
	}
}
