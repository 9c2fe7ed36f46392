// Copyright (c) tracesim authors
// SPDX-License-Identifier: BSD-3-Clause

package fleet

import (
	"encoding/json"
	"net/netip"
	"sort"

	"github.com/netfleet/tracesim/internal/route"
)

// buildInterfaceMaps derives the primary (iface -> single preferred-source
// address) and full (iface -> ordered unique addresses) maps.
// The primary map comes from routes carrying a preferred source; the full
// map comes from the collected interface facts, falling back to the
// primary addresses when no interface facts were supplied.
func buildInterfaceMaps(routes []route.Route, net *rawNetworkFacts, warn func(string, ...any), routerName string) (primary map[string]netip.Addr, full map[string][]netip.Addr, order []string) {
	primary = make(map[string]netip.Addr)
	for _, r := range routes {
		if r.HasPrefSrc {
			if _, exists := primary[r.OutIface]; !exists {
				primary[r.OutIface] = r.PrefSrc
			}
		}
	}

	full = make(map[string][]netip.Addr)
	if net != nil && len(net.Interfaces) > 0 {
		order = decodeInterfaceFacts(net.Interfaces, full, warn, routerName)
	}
	if len(full) == 0 {
		// No collected interface facts: fall back to primary addresses so
		// ownership checks still work off routing-table-derived sources.
		for iface := range primary {
			order = append(order, iface)
		}
		sort.Strings(order)
		for _, iface := range order {
			full[iface] = []netip.Addr{primary[iface]}
		}
	}
	return primary, full, order
}

func decodeInterfaceFacts(raw json.RawMessage, full map[string][]netip.Addr, warn func(string, ...any), routerName string) (order []string) {
	var parsed parsedInterfaces
	if err := json.Unmarshal(raw, &parsed); err == nil && len(parsed.Parsed) > 0 {
		names := make([]string, 0, len(parsed.Parsed))
		for iface := range parsed.Parsed {
			names = append(names, iface)
		}
		sort.Strings(names)
		for _, iface := range names {
			entry := parsed.Parsed[iface]
			var addrs []netip.Addr
			for _, a := range entry.Addresses {
				if a.Family != "" && a.Family != "inet" {
					continue // only inet (IPv4) entries contribute
				}
				addr, err := parseMaybeCIDRHost(a.Address)
				if err != nil {
					warn("fleet: %s: interface %s has an unparsable address %q, skipping", routerName, iface, a.Address)
					continue
				}
				addrs = appendUnique(addrs, addr)
			}
			if len(addrs) > 0 {
				full[iface] = addrs
				order = append(order, iface)
			}
		}
		return order
	}

	var flat []flatInterfaceEntry
	if err := json.Unmarshal(raw, &flat); err == nil {
		for _, e := range flat {
			if e.PrefSrc == "" {
				continue
			}
			addr, err := parseMaybeCIDRHost(e.PrefSrc)
			if err != nil {
				warn("fleet: %s: interface %s has an unparsable prefsrc %q, skipping", routerName, e.Dev, e.PrefSrc)
				continue
			}
			if _, ok := full[e.Dev]; !ok {
				order = append(order, e.Dev)
			}
			full[e.Dev] = appendUnique(full[e.Dev], addr)
		}
	}
	return order
}

func parseMaybeCIDRHost(s string) (netip.Addr, error) {
	if pfx, err := netip.ParsePrefix(s); err == nil {
		return pfx.Addr(), nil
	}
	return netip.ParseAddr(s)
}

func appendUnique(addrs []netip.Addr, a netip.Addr) []netip.Addr {
	for _, existing := range addrs {
		if existing == a {
			return addrs
		}
	}
	return append(addrs, a)
}
