// Copyright (c) tracesim authors
// SPDX-License-Identifier: BSD-3-Clause

package routermodel

import (
	"net/netip"
	"testing"

	"github.com/netfleet/tracesim/internal/policy"
	"github.com/netfleet/tracesim/internal/route"
)

func newTestRouter(t *testing.T, meta Metadata) *Router {
	t.Helper()
	r1, err := route.New(route.Params{Dest: "10.1.1.0/24", OutIface: "eth0", Protocol: route.ProtoKernel, Scope: route.ScopeLink, Type: route.TypeUnicast}, 0)
	if err != nil {
		t.Fatal(err)
	}
	rt := route.NewTable([]route.Route{r1})
	full := map[string][]netip.Addr{"eth0": {netip.MustParseAddr("10.1.1.1")}}
	primary := map[string]netip.Addr{"eth0": netip.MustParseAddr("10.1.1.1")}
	return New("r1", rt, policy.NewTable(nil), meta, primary, full, []string{"eth0"})
}

func TestIsDestinationReachableOwned(t *testing.T) {
	r := newTestRouter(t, Metadata{})
	reachable, owned := r.IsDestinationReachable(netip.MustParseAddr("10.1.1.1"))
	if !reachable || !owned {
		t.Fatalf("expected owned+reachable, got reachable=%v owned=%v", reachable, owned)
	}
}

func TestIsDestinationReachableConnected(t *testing.T) {
	r := newTestRouter(t, Metadata{})
	reachable, owned := r.IsDestinationReachable(netip.MustParseAddr("10.1.1.50"))
	if !reachable || owned {
		t.Fatalf("expected connected+not-owned, got reachable=%v owned=%v", reachable, owned)
	}
}

func TestIsDestinationReachableGatewayPublic(t *testing.T) {
	r := newTestRouter(t, Metadata{Type: TypeGateway})
	reachable, owned := r.IsDestinationReachable(netip.MustParseAddr("8.8.8.8"))
	if !reachable || owned {
		t.Fatalf("expected gateway-public reachable, got reachable=%v owned=%v", reachable, owned)
	}

	nonGateway := newTestRouter(t, Metadata{})
	reachable, _ = nonGateway.IsDestinationReachable(netip.MustParseAddr("8.8.8.8"))
	if reachable {
		t.Fatal("non-gateway router should not reach a public address with no route")
	}
}

func TestIncomingInterfaceFor(t *testing.T) {
	r := newTestRouter(t, Metadata{})
	iface, ok := r.IncomingInterfaceFor(netip.MustParseAddr("10.1.1.99"))
	if !ok || iface != "eth0" {
		t.Fatalf("IncomingInterfaceFor = (%q, %v), want (eth0, true)", iface, ok)
	}
	if _, ok := r.IncomingInterfaceFor(netip.MustParseAddr("172.20.0.1")); ok {
		t.Fatal("expected no match for an address outside every connected network")
	}
}
