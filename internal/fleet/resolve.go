// Copyright (c) tracesim authors
// SPDX-License-Identifier: BSD-3-Clause

package fleet

import (
	"context"
	"fmt"
	"net/netip"
	"strings"
	"time"

	"github.com/miekg/dns"
)

// ReverseLookupTimeout bounds a single PTR query (5s reverse
// name-lookup timeout).
const ReverseLookupTimeout = 5 * time.Second

// Resolver issues PTR queries directly against the system's configured
// resolvers, rather than going through net.LookupAddr, so the deadline in
// ctx is honored uniformly.
type Resolver struct {
	client  *dns.Client
	servers []string
}

// NewResolver loads /etc/resolv.conf-style resolver configuration. A
// resolver with no configured servers is valid but every lookup will fail.
func NewResolver(resolvConfPath string) *Resolver {
	r := &Resolver{client: &dns.Client{Timeout: ReverseLookupTimeout}}
	cfg, err := dns.ClientConfigFromFile(resolvConfPath)
	if err == nil {
		for _, s := range cfg.Servers {
			r.servers = append(r.servers, fmt.Sprintf("%s:%s", s, cfg.Port))
		}
	}
	return r
}

// PTR performs a reverse DNS lookup for addr, returning the first hostname
// found, or ("", false) on any failure or empty answer.
func (r *Resolver) PTR(ctx context.Context, addr netip.Addr) (string, bool) {
	if len(r.servers) == 0 {
		return "", false
	}
	arpa, err := dns.ReverseAddr(addr.String())
	if err != nil {
		return "", false
	}
	msg := new(dns.Msg)
	msg.SetQuestion(arpa, dns.TypePTR)

	deadline, ok := ctx.Deadline()
	if !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, ReverseLookupTimeout)
		defer cancel()
		deadline, _ = ctx.Deadline()
	}
	client := *r.client
	if d := time.Until(deadline); d > 0 && d < client.Timeout {
		client.Timeout = d
	}

	for _, server := range r.servers {
		in, _, err := client.Exchange(msg, server)
		if err != nil || in == nil {
			continue
		}
		for _, ans := range in.Answer {
			if ptr, ok := ans.(*dns.PTR); ok {
				return strings.TrimSuffix(ptr.Ptr, "."), true
			}
		}
	}
	return "", false
}

// ShortName returns the hostname up to its first dot, for the
// case-insensitive short-form comparisons against known router names.
func ShortName(hostname string) string {
	if i := strings.IndexByte(hostname, '.'); i >= 0 {
		return hostname[:i]
	}
	return hostname
}
