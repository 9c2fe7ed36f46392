// Copyright (c) tracesim authors
// SPDX-License-Identifier: BSD-3-Clause

package reverse

import (
	"context"
	"fmt"
	"net/netip"
	"os"
	"path/filepath"
	"testing"

	"github.com/netfleet/tracesim/internal/fleet"
	"github.com/netfleet/tracesim/internal/mtr"
	"github.com/netfleet/tracesim/internal/outcome"
)

func loadFixture(t *testing.T, files map[string]string) *fleet.Index {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	res, err := fleet.Load(dir, nil)
	if err != nil {
		t.Fatalf("fleet.Load: %v", err)
	}
	return res.Index
}

const linuxRouterFacts = `
routing:
  tables: []
metadata:
  is_linux: true
network:
  interfaces:
    parsed:
      eth0:
        addresses: [{family: inet, address: %s/32}]
`

const nonLinuxRouterFacts = `
routing:
  tables: []
metadata:
  is_linux: false
network:
  interfaces:
    parsed:
      eth0:
        addresses: [{family: inet, address: %s/32}]
`

// E6 — reverse trace splice with mocked transport.
func TestE6ReverseTraceSplice(t *testing.T) {
	ctrlAddr := netip.MustParseAddr("192.0.2.1")
	xAddr := netip.MustParseAddr("192.0.2.2")
	lAddr := netip.MustParseAddr("192.0.2.3")
	yAddr := netip.MustParseAddr("192.0.2.4")
	src := netip.MustParseAddr("198.51.100.10")
	dst := netip.MustParseAddr("203.0.113.10")

	idx := loadFixture(t, map[string]string{
		"ctrl.yaml": fmt.Sprintf(linuxRouterFacts, ctrlAddr),
		"x.yaml":    fmt.Sprintf(nonLinuxRouterFacts, xAddr),
		"l.yaml":    fmt.Sprintf(linuxRouterFacts, lAddr),
	})

	step1 := []mtr.Hop{
		{HopNum: 1, Address: xAddr, HasAddr: true, Hostname: "x", RTTMillis: 1.0},
		{HopNum: 2, Address: lAddr, HasAddr: true, Hostname: "l", RTTMillis: 2.0},
		{HopNum: 3, Address: dst, HasAddr: true, RTTMillis: 5.0},
	}
	step2 := []mtr.Hop{
		{HopNum: 1, Address: lAddr, HasAddr: true, Hostname: "l", RTTMillis: 0.1},
		{HopNum: 2, Address: yAddr, HasAddr: true, Hostname: "y", RTTMillis: 3.0},
		{HopNum: 3, Address: src, HasAddr: true, RTTMillis: 4.0},
	}

	tr := &Tracer{
		Index: idx,
		Trace: func(ctx context.Context, from string, to netip.Addr) ([]mtr.Hop, error) {
			if from == "controller" {
				return step1, nil
			}
			return step2, nil
		},
	}

	path, oc := tr.Run(context.Background(), src, dst, ctrlAddr, "ctrl")
	if oc.Code != outcome.OK {
		t.Fatalf("outcome = %v (%s)", oc.Code, oc.Message)
	}
	if err := path.CheckInvariants(); err != nil {
		t.Fatal(err)
	}
	if len(path.Hops) != 3 {
		t.Fatalf("got %d hops, want 3: %+v", len(path.Hops), path.Hops)
	}
	if path.Hops[0].Address != src.String() {
		t.Errorf("first hop address = %q, want %q", path.Hops[0].Address, src)
	}
	if path.Hops[len(path.Hops)-1].Address != dst.String() {
		t.Errorf("last hop address = %q, want %q", path.Hops[len(path.Hops)-1].Address, dst)
	}
	if path.Hops[1].Name != "l" {
		t.Errorf("middle hop name = %q, want the last Linux router %q", path.Hops[1].Name, "l")
	}
	for i, h := range path.Hops {
		if i > 0 && h.PrevHopName != path.Hops[i-1].Name {
			t.Errorf("hop[%d].PrevHopName = %q, want %q", i, h.PrevHopName, path.Hops[i-1].Name)
		}
		if i < len(path.Hops)-1 && h.NextHopName != path.Hops[i+1].Name {
			t.Errorf("hop[%d].NextHopName = %q, want %q", i, h.NextHopName, path.Hops[i+1].Name)
		}
	}
	if path.Hops[len(path.Hops)-1].RTTMillis != 5.0 {
		t.Errorf("destination rtt = %v, want 5.0 (preserved from step 1)", path.Hops[len(path.Hops)-1].RTTMillis)
	}
}

// No Linux router anywhere in step 1: degrade to the trivial path.
func TestNoLinuxRouterDegradesToTrivialPath(t *testing.T) {
	ctrlAddr := netip.MustParseAddr("192.0.2.1")
	xAddr := netip.MustParseAddr("192.0.2.2")
	src := netip.MustParseAddr("198.51.100.10")
	dst := netip.MustParseAddr("203.0.113.10")

	idx := loadFixture(t, map[string]string{
		"ctrl.yaml": fmt.Sprintf(nonLinuxRouterFacts, ctrlAddr),
		"x.yaml":    fmt.Sprintf(nonLinuxRouterFacts, xAddr),
	})

	tr := &Tracer{
		Index: idx,
		Trace: func(ctx context.Context, from string, to netip.Addr) ([]mtr.Hop, error) {
			return []mtr.Hop{{HopNum: 1, Address: xAddr, HasAddr: true, RTTMillis: 1.0}}, nil
		},
	}

	path, oc := tr.Run(context.Background(), src, dst, ctrlAddr, "ctrl")
	if oc.Code != outcome.OK {
		t.Fatalf("outcome = %v (%s)", oc.Code, oc.Message)
	}
	if len(path.Hops) != 2 {
		t.Fatalf("got %d hops, want 2 (trivial path): %+v", len(path.Hops), path.Hops)
	}
	if path.Hops[0].Name != "source" || path.Hops[1].Name != "destination" {
		t.Fatalf("unexpected trivial path: %+v", path.Hops)
	}
}

// Step-2 probe has no Linux hops and the source isn't among them: not_found.
func TestStep2NoLinuxAndSourceMissingFails(t *testing.T) {
	ctrlAddr := netip.MustParseAddr("192.0.2.1")
	lAddr := netip.MustParseAddr("192.0.2.3")
	yAddr := netip.MustParseAddr("192.0.2.4")
	src := netip.MustParseAddr("198.51.100.10")
	dst := netip.MustParseAddr("203.0.113.10")

	idx := loadFixture(t, map[string]string{
		"ctrl.yaml": fmt.Sprintf(linuxRouterFacts, ctrlAddr),
		"l.yaml":    fmt.Sprintf(linuxRouterFacts, lAddr),
	})

	tr := &Tracer{
		Index: idx,
		Trace: func(ctx context.Context, from string, to netip.Addr) ([]mtr.Hop, error) {
			if from == "controller" {
				return []mtr.Hop{{HopNum: 1, Address: lAddr, HasAddr: true, RTTMillis: 1.0}}, nil
			}
			return []mtr.Hop{{HopNum: 1, Address: yAddr, HasAddr: true, Hostname: "y", RTTMillis: 2.0}}, nil
		},
	}

	_, oc := tr.Run(context.Background(), src, dst, ctrlAddr, "ctrl")
	if oc.Code != outcome.NotFound {
		t.Fatalf("outcome = %v, want not_found", oc.Code)
	}
}
