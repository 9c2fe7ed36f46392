// Copyright (c) tracesim authors
// SPDX-License-Identifier: BSD-3-Clause

// Package mtr adapts a live hop-reporting tool: it builds the
// structured command, runs it over a transport.Conn, parses either of the
// two supported output shapes, and filters hops down to known Linux
// routers via a fleet index.
package mtr

import (
	"bufio"
	"context"
	"fmt"
	"net/netip"
	"regexp"
	"strconv"
	"strings"

	"github.com/netfleet/tracesim/internal/transport"
)

// Mode selects which invocation form to use.
type Mode string

const (
	ModeReport Mode = "report" // "--report --no-dns -c 1 -m 30 <dst>", tabular
	ModeUser   Mode = "user"   // CSV: hop,address,rtt_ms,status_code
)

// Hop is one normalized probe result.
type Hop struct {
	HopNum   int
	Address  netip.Addr
	HasAddr  bool
	Hostname string
	RTTMillis float64
	LossPct  float64
}

// Resolver is the narrow reverse-lookup dependency mtr needs; satisfied by
// *fleet.Resolver.
type Resolver interface {
	PTR(ctx context.Context, addr netip.Addr) (string, bool)
}

// Adapter invokes the live-trace tool and parses its output.
type Adapter struct {
	ToolName string // default "mtr"
	Resolver Resolver
}

func (a *Adapter) toolName() string {
	if a.ToolName == "" {
		return "mtr"
	}
	return a.ToolName
}

// BuildCommand constructs the structured invocation for dst in the given
// mode.
func (a *Adapter) BuildCommand(mode Mode, dst string) transport.Command {
	switch mode {
	case ModeUser:
		return transport.Command{Program: a.toolName(), Args: []string{"--csv", "--no-dns", "-c", "1", "-m", "30", dst}}
	default:
		return transport.Command{Program: a.toolName(), Args: []string{"--report", "--no-dns", "-c", "1", "-m", "30", dst}}
	}
}

// Run executes the live trace over conn and returns normalized hops.
// Execution is bounded by transport.WallClockTimeout; a timeout
// or a non-zero exit both fail the call.
func (a *Adapter) Run(ctx context.Context, conn transport.Conn, mode Mode, dst string) ([]Hop, error) {
	ctx, cancel := context.WithTimeout(ctx, transport.WallClockTimeout)
	defer cancel()

	cmd := a.BuildCommand(mode, dst)
	res, err := conn.Run(ctx, cmd)
	if err != nil {
		return nil, fmt.Errorf("mtr: running %s: %w", cmd, err)
	}
	if res.ExitCode != 0 {
		return nil, fmt.Errorf("mtr: %s exited %d: %s", cmd, res.ExitCode, res.Stderr)
	}

	var hops []Hop
	switch mode {
	case ModeUser:
		hops, err = parseUserCSV(res.Stdout)
	default:
		hops, err = parseReport(res.Stdout)
	}
	if err != nil {
		return nil, err
	}

	for i := range hops {
		if hops[i].HasAddr && hops[i].Hostname == "" && a.Resolver != nil {
			if host, ok := a.Resolver.PTR(ctx, hops[i].Address); ok {
				hops[i].Hostname = host
			}
		}
	}
	return hops, nil
}

var reportLine = regexp.MustCompile(`^\s*(\d+)\.(?:\|--)?\s+(\S+)\s+([\d.]+)%\s+(\d+)\s+([\d.]+)`)

// parseReport parses mtr --report tabular lines: "hop. |-- address loss% sent last ...".
func parseReport(output string) ([]Hop, error) {
	var hops []Hop
	sc := bufio.NewScanner(strings.NewReader(output))
	for sc.Scan() {
		line := sc.Text()
		m := reportLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		num, _ := strconv.Atoi(m[1])
		loss, _ := strconv.ParseFloat(m[3], 64)
		last, _ := strconv.ParseFloat(m[5], 64)
		h := Hop{HopNum: num, LossPct: loss, RTTMillis: last}
		if m[2] == "???" {
			h.HasAddr = false
		} else if addr, err := netip.ParseAddr(m[2]); err == nil {
			h.Address, h.HasAddr = addr, true
		} else {
			h.Hostname = m[2]
		}
		hops = append(hops, h)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("mtr: parsing report output: %w", err)
	}
	return hops, nil
}

// parseUserCSV parses "hop,address,rtt_ms,status_code" lines, tolerating one
// leading "#"-prefixed comment line.
func parseUserCSV(output string) ([]Hop, error) {
	var hops []Hop
	sc := bufio.NewScanner(strings.NewReader(output))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Split(line, ",")
		if len(fields) != 4 {
			continue
		}
		num, err := strconv.Atoi(strings.TrimSpace(fields[0]))
		if err != nil {
			continue
		}
		rtt, _ := strconv.ParseFloat(strings.TrimSpace(fields[2]), 64)
		status, err := strconv.Atoi(strings.TrimSpace(fields[3]))
		if err != nil {
			continue
		}
		h := Hop{HopNum: num, RTTMillis: rtt}
		if status != 0 {
			h.LossPct = 100
		}
		addrStr := strings.TrimSpace(fields[1])
		if addr, err := netip.ParseAddr(addrStr); err == nil {
			h.Address, h.HasAddr = addr, true
		} else if addrStr != "" {
			h.Hostname = addrStr
		}
		hops = append(hops, h)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("mtr: parsing CSV output: %w", err)
	}
	return hops, nil
}

// LinuxFilter narrows a hop list to the subset whose addresses resolve to a
// known Linux router. isLinux is typically
// (*fleet.Index).IsLinuxRouter.
func LinuxFilter(hops []Hop, isLinux func(addr netip.Addr, hostname string) bool) []Hop {
	var out []Hop
	for _, h := range hops {
		if !h.HasAddr {
			continue
		}
		if isLinux(h.Address, h.Hostname) {
			out = append(out, h)
		}
	}
	return out
}
