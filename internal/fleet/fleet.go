// Copyright (c) tracesim authors
// SPDX-License-Identifier: BSD-3-Clause

// Package fleet loads every router's facts snapshot from a directory and
// builds the fleet-wide IP→router indices.
package fleet

import (
	"context"
	"fmt"
	"net/netip"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hashicorp/go-multierror"

	"github.com/netfleet/tracesim/internal/routermodel"
)

// Index is the loaded, immutable fleet: every router plus the two global
// IP→router maps.
type Index struct {
	Routers        map[string]*routermodel.Router
	names          []string // load order, for deterministic controller fallback
	PrimaryIPToRouter map[netip.Addr]string
	AnyIPToRouter     map[netip.Addr]string
	resolver       *Resolver
}

// LoadResult carries the built Index plus any non-fatal per-file warnings
// (malformed sections are logged, not fatal).
type LoadResult struct {
	Index    *Index
	Warnings *multierror.Error
}

// Load reads every file in dir as one router's facts. Returns an error only
// when the directory yields zero usable routers; per-file/per-section
// problems are collected as warnings instead.
func Load(dir string, resolver *Resolver) (*LoadResult, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("fleet: reading facts directory %q: %w", dir, err)
	}

	idx := &Index{
		Routers:           make(map[string]*routermodel.Router),
		PrimaryIPToRouter: make(map[netip.Addr]string),
		AnyIPToRouter:     make(map[netip.Addr]string),
		resolver:          resolver,
	}
	var warnings *multierror.Error

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		full := filepath.Join(dir, name)
		info, err := os.Stat(full)
		if err != nil || info.IsDir() {
			continue
		}
		data, err := os.ReadFile(full)
		if err != nil {
			warnings = multierror.Append(warnings, fmt.Errorf("fleet: reading %s: %w", full, err))
			continue
		}
		routerName := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
		r, err := parseFacts(routerName, data, func(format string, args ...any) {
			warnings = multierror.Append(warnings, fmt.Errorf(format, args...))
		})
		if err != nil {
			warnings = multierror.Append(warnings, err)
			continue
		}
		idx.Routers[routerName] = r
		idx.names = append(idx.names, routerName)
	}

	if len(idx.Routers) == 0 {
		return nil, fmt.Errorf("fleet: facts directory %q yielded zero routers", dir)
	}

	if err := idx.buildIndices(); err != nil {
		return nil, err
	}

	return &LoadResult{Index: idx, Warnings: warnings}, nil
}

// buildIndices constructs PrimaryIPToRouter and AnyIPToRouter, failing fast
// on any address collision between two routers.
func (idx *Index) buildIndices() error {
	for _, name := range idx.names {
		r := idx.Routers[name]
		for _, addr := range r.PrimaryAddresses() {
			if owner, exists := idx.PrimaryIPToRouter[addr]; exists && owner != name {
				return fmt.Errorf("fleet: address %s claimed by both %s and %s (primary)", addr, owner, name)
			}
			idx.PrimaryIPToRouter[addr] = name
		}
		for _, addr := range r.AllAddresses() {
			if owner, exists := idx.AnyIPToRouter[addr]; exists && owner != name {
				return fmt.Errorf("fleet: address %s claimed by both %s and %s", addr, owner, name)
			}
			idx.AnyIPToRouter[addr] = name
		}
	}
	return nil
}

// Resolve tries, in order: owning router name, else reverse DNS, else
// the address itself as a string.
func (idx *Index) Resolve(ctx context.Context, addr netip.Addr) string {
	if name, ok := idx.AnyIPToRouter[addr]; ok {
		return name
	}
	if idx.resolver != nil {
		if host, ok := idx.resolver.PTR(ctx, addr); ok {
			return host
		}
	}
	return addr.String()
}

// Names returns every router name in deterministic (load) order.
func (idx *Index) Names() []string { return append([]string(nil), idx.names...) }

// RouterOwning returns the router name owning addr via either index, for
// callers that need the owned/unowned distinction without a DNS fallback.
func (idx *Index) RouterOwning(addr netip.Addr) (string, bool) {
	name, ok := idx.AnyIPToRouter[addr]
	return name, ok
}

// Controller selection: configured address
// wins; otherwise the first ansible_controller router, preferring eth0, then
// eth1, then any remaining interface. An interface's address is its
// preferred-source address, else its first address from the interface facts.
func (idx *Index) Controller(configuredAddr string) (addr netip.Addr, routerName string, ok bool) {
	if configuredAddr != "" {
		a, err := netip.ParseAddr(configuredAddr)
		if err == nil {
			name, _ := idx.RouterOwning(a)
			return a, name, true
		}
	}
	for _, name := range idx.names {
		r := idx.Routers[name]
		if !r.Meta.AnsibleController {
			continue
		}
		ifaceAddr := func(iface string) (netip.Addr, bool) {
			if a, ok := r.InterfaceAddress(iface); ok {
				return a, true
			}
			for _, a := range r.AllAddresses() {
				if owner, _ := r.InterfaceOwning(a); owner == iface {
					return a, true
				}
			}
			return netip.Addr{}, false
		}
		for _, iface := range []string{"eth0", "eth1"} {
			if a, ok := ifaceAddr(iface); ok {
				return a, name, true
			}
		}
		for _, iface := range r.Ifaces() {
			if a, ok := ifaceAddr(iface); ok {
				return a, name, true
			}
		}
	}
	return netip.Addr{}, "", false
}

// IsLinuxRouter reports whether a hop is a known Linux router: the indexed
// router's is_linux flag, else a case-insensitive short-hostname match
// against known router names.
func (idx *Index) IsLinuxRouter(addr netip.Addr, hostname string) bool {
	if name, ok := idx.RouterOwning(addr); ok {
		return idx.Routers[name].Meta.IsLinux
	}
	short := strings.ToLower(ShortName(hostname))
	if short == "" {
		return false
	}
	for _, name := range idx.names {
		if strings.ToLower(ShortName(name)) == short {
			return idx.Routers[name].Meta.IsLinux
		}
	}
	return false
}
