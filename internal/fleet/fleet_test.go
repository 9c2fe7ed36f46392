// Copyright (c) tracesim authors
// SPDX-License-Identifier: BSD-3-Clause

package fleet

import (
	"net/netip"
	"os"
	"path/filepath"
	"testing"
)

const r1Facts = `
routing:
  tables:
    - dest: "10.1.1.0/24"
      dev: eth0
      protocol: kernel
      scope: link
      type: unicast
    - dest: default
      dev: eth1
      gateway: 10.100.0.2
      protocol: static
      type: unicast
metadata:
  is_linux: true
  type: none
  ansible_controller: true
network:
  interfaces:
    parsed:
      eth0:
        addresses:
          - family: inet
            address: 10.1.1.1/24
      eth1:
        addresses:
          - family: inet
            address: 10.100.0.1/24
`

const r2Facts = `
routing:
  tables:
    - dest: "10.2.1.0/24"
      dev: eth1
      protocol: kernel
      scope: link
      type: unicast
metadata:
  is_linux: false
  type: none
network:
  interfaces:
    parsed:
      eth0:
        addresses:
          - family: inet
            address: 10.100.0.2/24
      eth1:
        addresses:
          - family: inet
            address: 10.2.1.1/24
`

func writeFactsDir(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func TestLoadBuildsIndicesAndRouterNames(t *testing.T) {
	dir := writeFactsDir(t, map[string]string{"r1.yaml": r1Facts, "r2.yaml": r2Facts})
	res, err := Load(dir, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	idx := res.Index
	if len(idx.Routers) != 2 {
		t.Fatalf("got %d routers, want 2", len(idx.Routers))
	}
	if _, ok := idx.Routers["r1"]; !ok {
		t.Error("expected router named r1 (file base name without extension)")
	}
	owner, ok := idx.RouterOwning(netip.MustParseAddr("10.1.1.1"))
	if !ok || owner != "r1" {
		t.Errorf("RouterOwning(10.1.1.1) = (%q, %v), want (r1, true)", owner, ok)
	}
	owner, ok = idx.RouterOwning(netip.MustParseAddr("10.2.1.1"))
	if !ok || owner != "r2" {
		t.Errorf("RouterOwning(10.2.1.1) = (%q, %v), want (r2, true)", owner, ok)
	}
}

func TestLoadFailsOnEmptyDirectory(t *testing.T) {
	dir := t.TempDir()
	if _, err := Load(dir, nil); err == nil {
		t.Fatal("expected an error for a facts directory with zero routers")
	}
}

func TestLoadToleratesMalformedRoutingSection(t *testing.T) {
	bad := `
routing:
  tables:
    parsing_error: "could not collect routes"
  rules: []
metadata:
  is_linux: true
network:
  interfaces:
    parsed:
      eth0:
        addresses:
          - family: inet
            address: 192.0.2.1/24
`
	dir := writeFactsDir(t, map[string]string{"broken.yaml": bad})
	res, err := Load(dir, nil)
	if err != nil {
		t.Fatalf("Load should tolerate a malformed routing section, got: %v", err)
	}
	if res.Warnings == nil || res.Warnings.Len() == 0 {
		t.Error("expected a warning about the malformed routing.tables section")
	}
	r := res.Index.Routers["broken"]
	if len(r.Routes.Routes()) != 0 {
		t.Errorf("expected zero routes for a malformed section, got %d", len(r.Routes.Routes()))
	}
}

func TestLoadFailsFastOnAddressCollision(t *testing.T) {
	dup := `
routing:
  tables: []
metadata:
  is_linux: true
network:
  interfaces:
    parsed:
      eth0:
        addresses:
          - family: inet
            address: 10.1.1.1/24
`
	dir := writeFactsDir(t, map[string]string{"a.yaml": dup, "b.yaml": dup})
	if _, err := Load(dir, nil); err == nil {
		t.Fatal("expected a fail-fast error for a colliding address")
	}
}

func TestControllerPrefersAnsibleControllerEth0(t *testing.T) {
	dir := writeFactsDir(t, map[string]string{"r1.yaml": r1Facts, "r2.yaml": r2Facts})
	res, err := Load(dir, nil)
	if err != nil {
		t.Fatal(err)
	}
	addr, name, ok := res.Index.Controller("")
	if !ok || name != "r1" || addr != netip.MustParseAddr("10.1.1.1") {
		t.Fatalf("Controller() = (%v, %q, %v), want (10.1.1.1, r1, true)", addr, name, ok)
	}
}

func TestControllerUsesConfiguredAddress(t *testing.T) {
	dir := writeFactsDir(t, map[string]string{"r1.yaml": r1Facts, "r2.yaml": r2Facts})
	res, err := Load(dir, nil)
	if err != nil {
		t.Fatal(err)
	}
	addr, name, ok := res.Index.Controller("10.2.1.1")
	if !ok || name != "r2" {
		t.Fatalf("Controller(configured) = (%v, %q, %v)", addr, name, ok)
	}
}

func TestIsLinuxRouterByIndexAndByHostnameFallback(t *testing.T) {
	dir := writeFactsDir(t, map[string]string{"r1.yaml": r1Facts, "r2.yaml": r2Facts})
	res, err := Load(dir, nil)
	if err != nil {
		t.Fatal(err)
	}
	idx := res.Index
	if !idx.IsLinuxRouter(netip.MustParseAddr("10.1.1.1"), "") {
		t.Error("r1 is marked is_linux: true")
	}
	if idx.IsLinuxRouter(netip.MustParseAddr("10.2.1.1"), "") {
		t.Error("r2 is marked is_linux: false")
	}
	unknown := netip.MustParseAddr("203.0.113.9")
	if !idx.IsLinuxRouter(unknown, "r1.example.com") {
		t.Error("expected hostname short-form fallback to match r1")
	}
}
