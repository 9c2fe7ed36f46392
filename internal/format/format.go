// Copyright (c) tracesim authors
// SPDX-License-Identifier: BSD-3-Clause

// Package format renders a hop.Path as either the text form or the
// structured "traceroute_path" document. A single canonical
// schema (wireHop/Document) replaces ad hoc, reflection-driven
// map-building at each call site.
package format

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/netfleet/tracesim/internal/hop"
)

// Text renders p as the line-per-hop text form.
func Text(p hop.Path) string {
	var b strings.Builder
	for _, h := range p.Hops {
		b.WriteString(textLine(h))
		b.WriteByte('\n')
	}
	return b.String()
}

func textLine(h hop.Record) string {
	if h.IsFailureMarker() {
		return fmt.Sprintf(" %2d  %s", h.Seq, h.Address)
	}
	if strings.Contains(h.Name, " -> ") {
		// Legacy single-router shortcut surface.
		return fmt.Sprintf(" %2d  %s (%s) %s", h.Seq, h.Name, h.Address, h.IncomingIface)
	}
	if h.Name == "source" || h.Name == "destination" {
		return fmt.Sprintf(" %2d  %s", h.Seq, pseudoHopDesc(h))
	}
	return fmt.Sprintf(" %2d  %s", h.Seq, routerHopDesc(h))
}

func pseudoHopDesc(h hop.Record) string {
	var b strings.Builder
	b.WriteString(h.Name)
	if h.IsRouterOwned {
		fmt.Fprintf(&b, " on %s", h.IncomingIface)
	} else {
		fmt.Fprintf(&b, " via %s", h.IncomingIface)
	}
	if h.ConnectedRouter != "" {
		fmt.Fprintf(&b, " on %s", h.ConnectedRouter)
	}
	appendRTT(&b, h.RTTMillis)
	return b.String()
}

func routerHopDesc(h hop.Record) string {
	var b strings.Builder
	b.WriteString(h.Name)
	switch {
	case h.IncomingIface != "" && h.OutgoingIface != "":
		fmt.Fprintf(&b, " from %s to %s", h.IncomingIface, h.OutgoingIface)
	case h.OutgoingIface != "":
		fmt.Fprintf(&b, " on %s", h.OutgoingIface)
	case h.IncomingIface != "":
		fmt.Fprintf(&b, " on %s", h.IncomingIface)
	}
	appendRTT(&b, h.RTTMillis)
	return b.String()
}

// appendRTT appends " {rtt:.1f}ms" only when rtt > 0 — a zero RTT silently
// hides the field.
func appendRTT(b *strings.Builder, rtt float64) {
	if rtt > 0 {
		fmt.Fprintf(b, " %.1fms", rtt)
	}
}

// wireHop is the canonical JSON shape of one hop record.
type wireHop struct {
	Seq             int     `json:"seq"`
	Name            string  `json:"name"`
	Address         string  `json:"address"`
	IncomingIface   string  `json:"incoming_iface,omitempty"`
	IsRouterOwned   bool    `json:"is_router_owned"`
	PrevHopName     string  `json:"prev_hop_name,omitempty"`
	NextHopName     string  `json:"next_hop_name,omitempty"`
	OutgoingIface   string  `json:"outgoing_iface,omitempty"`
	RTT             *float64 `json:"rtt,omitempty"`
	ConnectedRouter string  `json:"connected_router,omitempty"`
	DataSource      string  `json:"data_source,omitempty"`
}

// Document is the top-level structured output.
type Document struct {
	Success bool      `json:"success"`
	Path    []wireHop `json:"traceroute_path"`
}

func toWire(h hop.Record) wireHop {
	w := wireHop{
		Seq: h.Seq, Name: h.Name, Address: h.Address,
		IncomingIface: h.IncomingIface, IsRouterOwned: h.IsRouterOwned,
		PrevHopName: h.PrevHopName, NextHopName: h.NextHopName,
		OutgoingIface: h.OutgoingIface, ConnectedRouter: h.ConnectedRouter,
		DataSource: h.DataSource,
	}
	// Numeric rtt is omitted for purely simulated hops.
	if h.RTTMillis > 0 && h.DataSource != "simulated" {
		rtt := h.RTTMillis
		w.RTT = &rtt
	}
	return w
}

// JSON renders the structured document for a successful path.
func JSON(p hop.Path) ([]byte, error) {
	doc := Document{Success: true}
	for _, h := range p.Hops {
		doc.Path = append(doc.Path, toWire(h))
	}
	if doc.Path == nil {
		doc.Path = []wireHop{}
	}
	return json.Marshal(doc)
}

// JSONFailure renders the failure document: success=false, empty path.
func JSONFailure() ([]byte, error) {
	return json.Marshal(Document{Success: false, Path: []wireHop{}})
}

// ParseDocument parses a structured document back into wire hops, used by
// the round-trip-formatting test.
func ParseDocument(data []byte) (Document, error) {
	var doc Document
	err := json.Unmarshal(data, &doc)
	return doc, err
}
