// Copyright (c) tracesim authors
// SPDX-License-Identifier: BSD-3-Clause

// Package policy models ip-rule-style policy routing. The
// core path algorithm only ever exercises lookup→main; the rest of this
// machinery is wired through for multi-table facts files while keeping
// single-table semantics unchanged for fleets that don't use them.
package policy

import (
	"net/netip"

	"golang.org/x/exp/slices"
)

// Action is what a matching rule does with a lookup.
type Action string

const (
	ActionLookup      Action = "lookup"
	ActionBlackhole   Action = "blackhole"
	ActionUnreachable Action = "unreachable"
)

// Selector is the match predicate for a rule: from/to/iif/oif, any of which
// may be absent (zero value means "don't care").
type Selector struct {
	From netip.Prefix
	HasFrom bool
	To   netip.Prefix
	HasTo bool
	IIF  string
	OIF  string
}

// Rule is one entry of the policy routing table, ordered by Priority.
type Rule struct {
	Priority int
	Selector Selector
	Action   Action
	Table    string // target table when Action == ActionLookup
}

// Table is an ordered rule set, sorted ascending by priority.
type Table struct {
	rules []Rule
}

// NewTable sorts rules by priority ascending (stable, so same-priority rules
// keep their facts-file order) and returns a Table.
func NewTable(rules []Rule) *Table {
	rs := append([]Rule(nil), rules...)
	slices.SortStableFunc(rs, func(a, b Rule) bool { return a.Priority < b.Priority })
	return &Table{rules: rs}
}

func (t *Table) Rules() []Rule { return t.rules }

// SelectTable returns the target table name for the first rule whose
// selector matches (src, dst, iif, oif), defaulting to "main" when no rule
// matches or the table carries none. Only lookup actions are considered
// actionable by the current core; blackhole/unreachable rules are reported
// so a future caller can honor them without changing today's behavior.
func (t *Table) SelectTable(src, dst netip.Addr, iif, oif string) (table string, action Action) {
	for _, r := range t.rules {
		if !selectorMatches(r.Selector, src, dst, iif, oif) {
			continue
		}
		if r.Action == ActionLookup {
			tbl := r.Table
			if tbl == "" {
				tbl = "main"
			}
			return tbl, ActionLookup
		}
		return "", r.Action
	}
	return "main", ActionLookup
}

func selectorMatches(s Selector, src, dst netip.Addr, iif, oif string) bool {
	if s.HasFrom && !s.From.Contains(src) {
		return false
	}
	if s.HasTo && !s.To.Contains(dst) {
		return false
	}
	if s.IIF != "" && s.IIF != iif {
		return false
	}
	if s.OIF != "" && s.OIF != oif {
		return false
	}
	return true
}
