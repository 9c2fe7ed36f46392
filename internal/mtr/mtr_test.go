// Copyright (c) tracesim authors
// SPDX-License-Identifier: BSD-3-Clause

package mtr

import (
	"net/netip"
	"testing"
)

func TestParseReport(t *testing.T) {
	out := " 1.|-- 10.1.1.1   0.0%     1    1.2   1.2   1.2   1.2   0.0\n" +
		" 2.|-- 10.2.1.1   0.0%     1    3.4   3.4   3.4   3.4   0.0\n" +
		" 3.|-- ???       100.0%    1    0.0   0.0   0.0   0.0   0.0\n"
	hops, err := parseReport(out)
	if err != nil {
		t.Fatal(err)
	}
	if len(hops) != 3 {
		t.Fatalf("got %d hops, want 3", len(hops))
	}
	if hops[0].Address != netip.MustParseAddr("10.1.1.1") || hops[0].RTTMillis != 1.2 {
		t.Errorf("hop 1 = %+v", hops[0])
	}
	if hops[2].HasAddr {
		t.Error("hop 3 (???) should have HasAddr=false")
	}
}

func TestParseUserCSV(t *testing.T) {
	out := "# generated by mtr\n1,10.1.1.1,1.2,0\n2,10.2.1.1,3.4,0\n3,*,0,1\n"
	hops, err := parseUserCSV(out)
	if err != nil {
		t.Fatal(err)
	}
	if len(hops) != 3 {
		t.Fatalf("got %d hops, want 3", len(hops))
	}
	if hops[1].Address != netip.MustParseAddr("10.2.1.1") {
		t.Errorf("hop 2 address = %v", hops[1].Address)
	}
	if hops[2].LossPct != 100 {
		t.Errorf("hop 3 (status_code=1) should carry full loss, got %v", hops[2].LossPct)
	}
}

func TestLinuxFilter(t *testing.T) {
	hops := []Hop{
		{HopNum: 1, Address: netip.MustParseAddr("10.1.1.1"), HasAddr: true},
		{HopNum: 2, Address: netip.MustParseAddr("10.2.1.1"), HasAddr: true},
		{HopNum: 3, HasAddr: false},
	}
	isLinux := func(addr netip.Addr, hostname string) bool {
		return addr == netip.MustParseAddr("10.1.1.1")
	}
	got := LinuxFilter(hops, isLinux)
	if len(got) != 1 || got[0].HopNum != 1 {
		t.Fatalf("LinuxFilter = %+v, want just hop 1", got)
	}
}
