// Copyright (c) tracesim authors
// SPDX-License-Identifier: BSD-3-Clause

package transport

import (
	"context"
	"net/netip"
	"regexp"
)

// RouterProbe isolates the brittle `ip route get` side channel behind one
// method, so it can be mocked in tests.
type RouterProbe interface {
	GetInterface(ctx context.Context, router string, addr netip.Addr) (iface string, ok bool)
}

var devPattern = regexp.MustCompile(`\bdev\s+(\S+)`)

// SSHRouterProbe implements RouterProbe by running `ip route get <addr>` on
// each router via an already-open Conn.
type SSHRouterProbe struct {
	Conns map[string]Conn // router name -> open connection
}

func (p *SSHRouterProbe) GetInterface(ctx context.Context, router string, addr netip.Addr) (string, bool) {
	conn, ok := p.Conns[router]
	if !ok {
		return "", false
	}
	ctx, cancel := context.WithTimeout(ctx, InterfaceProbeTimeout)
	defer cancel()
	res, err := conn.Run(ctx, Command{Program: "ip", Args: []string{"route", "get", addr.String()}})
	if err != nil || res.ExitCode != 0 {
		return "", false
	}
	m := devPattern.FindStringSubmatch(res.Stdout)
	if m == nil {
		return "", false
	}
	return m[1], true
}
