// Copyright (c) tracesim authors
// SPDX-License-Identifier: BSD-3-Clause

package fleet

import (
	"encoding/json"
	"fmt"
	"net/netip"

	"sigs.k8s.io/yaml"

	"github.com/netfleet/tracesim/internal/policy"
	"github.com/netfleet/tracesim/internal/route"
	"github.com/netfleet/tracesim/internal/routermodel"
)

// rawFacts is the on-disk shape of one router's snapshot. Fields
// are left as json.RawMessage where the section might instead be the
// `{parsing_error: ...}` error shape collectors emit.
type rawFacts struct {
	Routing struct {
		Tables json.RawMessage `json:"tables"`
		Rules  json.RawMessage `json:"rules"`
	} `json:"routing"`
	Metadata *rawMetadata    `json:"metadata"`
	Network  *rawNetworkFacts `json:"network"`
}

type rawMetadata struct {
	IsLinux           *bool  `json:"is_linux"`
	Type              string `json:"type"`
	Location          string `json:"location"`
	Role              string `json:"role"`
	Vendor            string `json:"vendor"`
	Manageable        bool   `json:"manageable"`
	AnsibleController bool   `json:"ansible_controller"`
}

type rawNetworkFacts struct {
	Interfaces json.RawMessage `json:"interfaces"`
}

type rawRoute struct {
	Dest     string   `json:"dest"`
	Dev      string   `json:"dev"`
	Gateway  string   `json:"gateway"`
	PrefSrc  string   `json:"prefsrc"`
	Metric   int      `json:"metric"`
	Protocol string   `json:"protocol"`
	Scope    string   `json:"scope"`
	Type     string   `json:"type"`
	Table    string   `json:"table"`
	Flags    []string `json:"flags"`
}

type rawRule struct {
	Priority int               `json:"priority"`
	From     string            `json:"from"`
	To       string            `json:"to"`
	IIF      string            `json:"iif"`
	OIF      string            `json:"oif"`
	Action   string            `json:"action"`
	Table    string            `json:"table"`
	Selector map[string]string `json:"selector"`
}

// interfaceAddrEntry is one address inside the `parsed` interface-map shape.
type interfaceAddrEntry struct {
	Family  string `json:"family"`
	Address string `json:"address"`
}

type parsedInterfaces struct {
	Parsed map[string]struct {
		Addresses []interfaceAddrEntry `json:"addresses"`
	} `json:"parsed"`
}

// flatInterfaceEntry is the alternate flat-sequence interface shape.
type flatInterfaceEntry struct {
	Dev     string `json:"dev"`
	PrefSrc string `json:"prefsrc"`
}

// hasParsingError reports whether a raw section is the
// `{parsing_error: ...}` shape instead of a sequence.
func hasParsingError(raw json.RawMessage) bool {
	if len(raw) == 0 {
		return false
	}
	var probe struct {
		ParsingError *string `json:"parsing_error"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return false
	}
	return probe.ParsingError != nil
}

// parseFacts decodes one router's raw facts bytes (YAML or JSON — YAML is a
// superset for our purposes) into routes, rules, metadata, and interface
// maps. Malformed routing sections are reported via warn but do not fail
// the whole router.
func parseFacts(name string, data []byte, warn func(format string, args ...any)) (*routermodel.Router, error) {
	var rf rawFacts
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("fleet: %s: %w", name, err)
	}

	routes := decodeRoutes(name, rf.Routing.Tables, warn)
	rules := decodeRules(name, rf.Routing.Rules, warn)

	meta := routermodel.Metadata{IsLinux: true}
	if rf.Metadata != nil {
		if rf.Metadata.IsLinux != nil {
			meta.IsLinux = *rf.Metadata.IsLinux
		}
		if rf.Metadata.Type != "" {
			meta.Type = routermodel.RouterType(rf.Metadata.Type)
		} else {
			meta.Type = routermodel.TypeNone
		}
		meta.Location = rf.Metadata.Location
		meta.Role = rf.Metadata.Role
		meta.Vendor = rf.Metadata.Vendor
		meta.Manageable = rf.Metadata.Manageable
		meta.AnsibleController = rf.Metadata.AnsibleController
	} else {
		meta.Type = routermodel.TypeNone
	}

	primary, full, order := buildInterfaceMaps(routes, rf.Network, warn, name)

	return routermodel.New(name, route.NewTable(routes), policy.NewTable(rules), meta, primary, full, order), nil
}

func decodeRoutes(name string, raw json.RawMessage, warn func(string, ...any)) []route.Route {
	if len(raw) == 0 {
		return nil
	}
	if hasParsingError(raw) {
		warn("fleet: %s: routing.tables carries a parsing_error, treating as empty", name)
		return nil
	}
	var entries []rawRoute
	if err := json.Unmarshal(raw, &entries); err != nil {
		warn("fleet: %s: routing.tables malformed (%v), treating as empty", name, err)
		return nil
	}
	out := make([]route.Route, 0, len(entries))
	for i, e := range entries {
		r, err := route.New(route.Params{
			Dest:     e.Dest,
			OutIface: e.Dev,
			Gateway:  e.Gateway,
			PrefSrc:  e.PrefSrc,
			Metric:   e.Metric,
			Protocol: route.Protocol(e.Protocol),
			Scope:    route.Scope(e.Scope),
			Type:     routeTypeOrDefault(e.Type),
			Table:    e.Table,
			Flags:    e.Flags,
		}, i)
		if err != nil {
			warn("fleet: %s: route %d malformed (%v), skipping", name, i, err)
			continue
		}
		out = append(out, r)
	}
	return out
}

func routeTypeOrDefault(t string) route.Type {
	if t == "" {
		return route.TypeUnicast
	}
	return route.Type(t)
}

func decodeRules(name string, raw json.RawMessage, warn func(string, ...any)) []policy.Rule {
	if len(raw) == 0 {
		return nil
	}
	if hasParsingError(raw) {
		warn("fleet: %s: routing.rules carries a parsing_error, treating as empty", name)
		return nil
	}
	var entries []rawRule
	if err := json.Unmarshal(raw, &entries); err != nil {
		warn("fleet: %s: routing.rules malformed (%v), treating as empty", name, err)
		return nil
	}
	out := make([]policy.Rule, 0, len(entries))
	for _, e := range entries {
		sel := policy.Selector{IIF: e.IIF, OIF: e.OIF}
		if e.From != "" {
			if pfx, err := parseSelectorPrefix(e.From); err != nil {
				warn("fleet: %s: rule priority %d: from %q malformed (%v), ignoring", name, e.Priority, e.From, err)
			} else {
				sel.From, sel.HasFrom = pfx, true
			}
		}
		if e.To != "" {
			if pfx, err := parseSelectorPrefix(e.To); err != nil {
				warn("fleet: %s: rule priority %d: to %q malformed (%v), ignoring", name, e.Priority, e.To, err)
			} else {
				sel.To, sel.HasTo = pfx, true
			}
		}
		out = append(out, policy.Rule{
			Priority: e.Priority,
			Selector: sel,
			Action:   policy.Action(e.Action),
			Table:    e.Table,
		})
	}
	return out
}

// parseSelectorPrefix parses a rule selector's from/to value: "all" or a
// default CIDR means "match every address in that family", a CIDR matches
// its range, and a bare host address is treated as a /32 or /128.
func parseSelectorPrefix(s string) (netip.Prefix, error) {
	switch s {
	case "all", "0.0.0.0/0":
		return netip.PrefixFrom(netip.IPv4Unspecified(), 0), nil
	case "::/0":
		return netip.PrefixFrom(netip.IPv6Unspecified(), 0), nil
	}
	if pfx, err := netip.ParsePrefix(s); err == nil {
		return pfx, nil
	}
	a, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Prefix{}, fmt.Errorf("invalid prefix %q: %w", s, err)
	}
	return netip.PrefixFrom(a, a.BitLen()), nil
}
