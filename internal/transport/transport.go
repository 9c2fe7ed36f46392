// Copyright (c) tracesim authors
// SPDX-License-Identifier: BSD-3-Clause

// Package transport represents remote command invocation as a structured
// value (program + arguments + per-option map) instead of concatenated
// shell strings, and executes it over SSH, directly or nested through a
// controller hop.
package transport

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"os/exec"
	"time"

	"golang.org/x/crypto/ssh"
)

// Command is a structured invocation: a program and its arguments. Render
// happens once, at the transport boundary, so direct and nested execution
// stay symmetric.
type Command struct {
	Program string
	Args    []string
}

func (c Command) String() string {
	s := c.Program
	for _, a := range c.Args {
		s += " " + a
	}
	return s
}

// ProfileMode selects how a connection authenticates.
type ProfileMode string

const (
	ModeStandard ProfileMode = "standard" // batch, non-interactive
	ModeUser     ProfileMode = "user"     // explicit identity + key
)

// Profile is a named connection configuration.
type Profile struct {
	Mode     ProfileMode
	User     string
	KeyPath  string // private key file, "user" mode
	Options  map[string]string
}

// Target names a host to connect to, by address, for one transport hop.
type Target struct {
	Host string // address or hostname
	Port int    // default 22 if zero
}

func (t Target) addr() string {
	port := t.Port
	if port == 0 {
		port = 22
	}
	return net.JoinHostPort(t.Host, fmt.Sprintf("%d", port))
}

// WallClockTimeout bounds a single live-trace command invocation.
const WallClockTimeout = 60 * time.Second

// InterfaceProbeTimeout bounds a single `ip route get` probe.
const InterfaceProbeTimeout = 10 * time.Second

// Result is the outcome of one command invocation.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Dialer opens connections. SSHDialer dials over SSH; LocalDialer runs
// commands on this host.
type Dialer interface {
	Dial(ctx context.Context, target Target, profile Profile) (Conn, error)
}

// Conn is an open SSH connection capable of running one command at a time.
type Conn interface {
	Run(ctx context.Context, cmd Command) (Result, error)
	// Dial opens a further TCP stream through this connection, for nesting
	// a second SSH client inside it.
	Dial(network, addr string) (net.Conn, error)
	Close() error
}

func clientConfig(profile Profile, timeout time.Duration) (*ssh.ClientConfig, error) {
	cfg := &ssh.ClientConfig{
		User:            profile.User,
		Timeout:         timeout,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), // facts-collection LAN, not a hardening boundary
	}
	switch profile.Mode {
	case ModeUser:
		signer, err := loadSigner(profile.KeyPath)
		if err != nil {
			return nil, fmt.Errorf("transport: loading key for user profile: %w", err)
		}
		cfg.Auth = []ssh.AuthMethod{ssh.PublicKeys(signer)}
	default: // ModeStandard
		if agentAuth, ok := agentAuthMethod(); ok {
			cfg.Auth = []ssh.AuthMethod{agentAuth}
		}
	}
	return cfg, nil
}

// SSHDialer is the production Dialer, direct-dialing TCP then handshaking.
type SSHDialer struct{}

func (SSHDialer) Dial(ctx context.Context, target Target, profile Profile) (Conn, error) {
	cfg, err := clientConfig(profile, WallClockTimeout)
	if err != nil {
		return nil, err
	}
	var d net.Dialer
	netConn, err := d.DialContext(ctx, "tcp", target.addr())
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w", target.addr(), err)
	}
	c, chans, reqs, err := ssh.NewClientConn(netConn, target.addr(), cfg)
	if err != nil {
		return nil, fmt.Errorf("transport: handshake %s: %w", target.addr(), err)
	}
	return &sshConn{client: ssh.NewClient(c, chans, reqs)}, nil
}

type sshConn struct {
	client *ssh.Client
}

func (c *sshConn) Run(ctx context.Context, cmd Command) (Result, error) {
	sess, err := c.client.NewSession()
	if err != nil {
		return Result{}, fmt.Errorf("transport: new session: %w", err)
	}
	defer sess.Close()

	var stdout, stderr bytes.Buffer
	sess.Stdout = &stdout
	sess.Stderr = &stderr

	done := make(chan error, 1)
	go func() { done <- sess.Run(cmd.String()) }()

	select {
	case <-ctx.Done():
		sess.Signal(ssh.SIGKILL)
		return Result{}, fmt.Errorf("transport: %s: %w", cmd, ctx.Err())
	case err := <-done:
		exitCode := 0
		if ee, ok := err.(*ssh.ExitError); ok {
			exitCode = ee.ExitStatus()
			err = nil
		}
		return Result{Stdout: stdout.String(), Stderr: stderr.String(), ExitCode: exitCode}, err
	}
}

func (c *sshConn) Dial(network, addr string) (net.Conn, error) {
	return c.client.Dial(network, addr)
}

func (c *sshConn) Close() error { return c.client.Close() }

// LocalDialer runs commands in-process via os/exec instead of over SSH. It
// ignores target and profile: selecting it at all is the caller's signal
// that the command already belongs on this host (tracesim is running on
// the controller and the target is the controller's own address, or a
// loopback address).
type LocalDialer struct{}

func (LocalDialer) Dial(ctx context.Context, target Target, profile Profile) (Conn, error) {
	return LocalConn{}, nil
}

// LocalConn runs a Command as a child process of tracesim itself.
type LocalConn struct{}

func (LocalConn) Run(ctx context.Context, cmd Command) (Result, error) {
	c := exec.CommandContext(ctx, cmd.Program, cmd.Args...)
	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr

	err := c.Run()
	exitCode := 0
	if ee, ok := err.(*exec.ExitError); ok {
		exitCode = ee.ExitCode()
		err = nil
	}
	return Result{Stdout: stdout.String(), Stderr: stderr.String(), ExitCode: exitCode}, err
}

// Dial refuses to nest: a local connection has no SSH session to tunnel
// a further hop through.
func (LocalConn) Dial(network, addr string) (net.Conn, error) {
	return nil, fmt.Errorf("transport: local connection cannot nest a further hop to %s", addr)
}

func (LocalConn) Close() error { return nil }

// Nested dials target through an already-open controller connection, then
// performs the inner SSH handshake over that stream — the
// off-controller path (outer connection to controller, inner to router).
func Nested(ctx context.Context, controller Conn, target Target, profile Profile) (Conn, error) {
	cfg, err := clientConfig(profile, WallClockTimeout)
	if err != nil {
		return nil, err
	}
	netConn, err := controller.Dial("tcp", target.addr())
	if err != nil {
		return nil, fmt.Errorf("transport: nested dial %s via controller: %w", target.addr(), err)
	}
	c, chans, reqs, err := ssh.NewClientConn(netConn, target.addr(), cfg)
	if err != nil {
		return nil, fmt.Errorf("transport: nested handshake %s: %w", target.addr(), err)
	}
	return &sshConn{client: ssh.NewClient(c, chans, reqs)}, nil
}
