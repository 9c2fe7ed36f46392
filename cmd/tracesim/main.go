// Copyright (c) tracesim authors
// SPDX-License-Identifier: BSD-3-Clause

// Command tracesim is the reference front-end for the fleet path simulator:
// it resolves configuration, loads a fleet snapshot, runs the forward
// simulator (falling back to a live reverse trace when enabled), and prints
// the result as text or a structured document.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/netip"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/peterbourgon/ff/v3"

	"github.com/netfleet/tracesim/internal/config"
	"github.com/netfleet/tracesim/internal/fleet"
	"github.com/netfleet/tracesim/internal/format"
	"github.com/netfleet/tracesim/internal/hop"
	"github.com/netfleet/tracesim/internal/logging"
	"github.com/netfleet/tracesim/internal/metrics"
	"github.com/netfleet/tracesim/internal/mtr"
	"github.com/netfleet/tracesim/internal/outcome"
	"github.com/netfleet/tracesim/internal/reverse"
	"github.com/netfleet/tracesim/internal/sim"
	"github.com/netfleet/tracesim/internal/transport"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("tracesim", flag.ContinueOnError)
	src := fs.String("s", "", "source address")
	dst := fs.String("d", "", "destination address")
	jsonOut := fs.Bool("j", false, "structured (traceroute_path) output")
	quiet := fs.Bool("q", false, "suppress output, exit code only")
	verbose := fs.Int("v", 0, "verbosity (0-3)")
	noMTR := fs.Bool("no-mtr", false, "disable live-trace fallback")
	forwardOnly := fs.Bool("forward-trace", false, "disable reverse trace even if enabled")
	softwareSim := fs.Bool("software-sim", false, "forbid any live-trace invocation")
	controllerIP := fs.String("controller-ip", "", "address used as the reverse-trace controller")
	tsimFacts := fs.String("tsim-facts", "", "directory holding router snapshots")

	if err := ff.Parse(fs, args, ff.WithEnvVarPrefix("TRACESIM")); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return outcome.Configuration.ExitCode()
	}

	overrides := config.Overrides{VerboseLevel: verbose}
	if *tsimFacts != "" {
		overrides.TsimFacts = tsimFacts
	}
	if *controllerIP != "" {
		overrides.ControllerIP = controllerIP
	}
	if *noMTR {
		v := false
		overrides.EnableMTRFallback = &v
	}
	if *forwardOnly {
		v := true
		overrides.ForceForwardTrace = &v
	}
	if *softwareSim {
		v := true
		overrides.SoftwareSimOnly = &v
	}

	cfg, err := config.Resolve(overrides)
	if err != nil {
		return reportFailure(outcome.Wrap(outcome.Configuration, err, "loading configuration"), *jsonOut, *quiet)
	}

	log := logging.New(cfg.VerboseLevel, uuid.NewString()).With("cmd")
	defer log.Sync()

	if *src == "" || *dst == "" {
		return reportFailure(outcome.New(outcome.InvalidInput), *jsonOut, *quiet)
	}
	srcAddr, err := netip.ParseAddr(*src)
	if err != nil {
		return reportFailure(outcome.Wrap(outcome.InvalidInput, err, "parsing -s"), *jsonOut, *quiet)
	}
	dstAddr, err := netip.ParseAddr(*dst)
	if err != nil {
		return reportFailure(outcome.Wrap(outcome.InvalidInput, err, "parsing -d"), *jsonOut, *quiet)
	}
	if cfg.TsimFacts == "" {
		return reportFailure(outcome.New(outcome.Configuration), *jsonOut, *quiet)
	}

	res, err := fleet.Load(cfg.TsimFacts, fleet.NewResolver("/etc/resolv.conf"))
	if err != nil {
		return reportFailure(outcome.Wrap(outcome.Configuration, err, "loading fleet"), *jsonOut, *quiet)
	}
	for _, w := range res.Warnings.WrappedErrors() {
		log.Warn(w.Error())
	}
	idx := res.Index
	reg := metrics.New()

	simResult := sim.Simulate(idx, srcAddr, dstAddr, sim.Options{})
	reg.SimulationsTotal.WithLabelValues(string(simResult.Outcome.Code)).Inc()
	final := simResult

	canLiveTrace := !cfg.SoftwareSimOnly && cfg.EnableMTRFallback && !*forwardOnly
	if simResult.Outcome.Code != outcome.OK && canLiveTrace && cfg.EnableReverseTrace {
		ctrlAddr, ctrlName, ok := idx.Controller(cfg.ControllerIP)
		if ok {
			tracer := &reverse.Tracer{Index: idx, Trace: buildTraceFunc(idx, cfg, reg)}
			start := time.Now()
			path, oc := tracer.Run(context.Background(), srcAddr, dstAddr, ctrlAddr, ctrlName)
			reg.ReverseStepDuration.WithLabelValues("total").Observe(time.Since(start).Seconds())
			final = sim.Result{Path: path, Outcome: oc}
		}
	}

	log.Info("simulation complete", logging.OutcomeCode(string(final.Outcome.Code)))
	return reportResult(final, *jsonOut, *quiet)
}

// buildTraceFunc wires a reverse.TraceFunc over real transport. Whether
// tracesim itself is running on the controller (cfg.AnsibleController, a
// property of this process's host) — not whether the target router happens
// to be flagged as the fleet's controller (r.Meta.AnsibleController, used
// only for controller *selection* in fleet.Controller) — decides whether a
// target can be reached directly or must be nested through the controller:
//
//   - on the controller, reaching the controller's own address or a
//     loopback address runs the command locally instead of over SSH;
//   - on the controller, every other router is dialed directly;
//   - off the controller, the controller itself is dialed directly using
//     its own SSH profile;
//   - off the controller, every other router is reached by nesting a
//     second SSH hop through the controller.
func buildTraceFunc(idx *fleet.Index, cfg config.RuntimeConfig, reg *metrics.Registry) reverse.TraceFunc {
	dialer := transport.SSHDialer{}
	local := transport.LocalDialer{}
	profile := transport.Profile{Mode: transport.ProfileMode(cfg.SSHConfig.Mode), User: cfg.SSHConfig.User, KeyPath: cfg.SSHConfig.KeyPath, Options: cfg.SSHConfig.Options}
	ctrlProfile := transport.Profile{Mode: transport.ProfileMode(cfg.SSHControllerConfig.Mode), User: cfg.SSHControllerConfig.User, KeyPath: cfg.SSHControllerConfig.KeyPath, Options: cfg.SSHControllerConfig.Options}

	return func(ctx context.Context, from string, to netip.Addr) ([]mtr.Hop, error) {
		start := time.Now()
		hops, err := dialAndTrace(ctx, idx, cfg, dialer, local, profile, ctrlProfile, from, to)
		elapsed := time.Since(start).Seconds()

		result := "success"
		if err != nil {
			result = "error"
		}
		reg.LiveTraceTotal.WithLabelValues(string(mtr.ModeReport), result).Inc()
		reg.LiveTraceDuration.Observe(elapsed)

		step := "step2"
		if from == "controller" {
			step = "step1"
		}
		reg.ReverseStepDuration.WithLabelValues(step).Observe(elapsed)

		return hops, err
	}
}

func dialAndTrace(ctx context.Context, idx *fleet.Index, cfg config.RuntimeConfig, dialer transport.SSHDialer, local transport.LocalDialer, profile, ctrlProfile transport.Profile, from string, to netip.Addr) ([]mtr.Hop, error) {
	ctrlAddr, _, cok := idx.Controller(cfg.ControllerIP)

	var addr netip.Addr
	targetIsController := false
	if from == "controller" {
		if !cok {
			return nil, fmt.Errorf("no controller configured")
		}
		addr, targetIsController = ctrlAddr, true
	} else {
		r, ok := idx.Routers[from]
		if !ok {
			return nil, fmt.Errorf("unknown router %q", from)
		}
		for _, a := range r.AllAddresses() {
			addr = a
			break
		}
		targetIsController = cok && addr == ctrlAddr
	}

	var conn transport.Conn
	var err error
	switch {
	case cfg.AnsibleController && (addr.IsLoopback() || targetIsController):
		conn, err = local.Dial(ctx, transport.Target{Host: addr.String()}, profile)
	case cfg.AnsibleController:
		conn, err = dialer.Dial(ctx, transport.Target{Host: addr.String()}, profile)
	case targetIsController:
		conn, err = dialer.Dial(ctx, transport.Target{Host: addr.String()}, ctrlProfile)
	default:
		if !cok {
			return nil, fmt.Errorf("no controller configured")
		}
		var ctrlConn transport.Conn
		ctrlConn, err = dialer.Dial(ctx, transport.Target{Host: ctrlAddr.String()}, ctrlProfile)
		if err != nil {
			return nil, err
		}
		conn, err = transport.Nested(ctx, ctrlConn, transport.Target{Host: addr.String()}, profile)
	}
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	adapter := &mtr.Adapter{Resolver: fleet.NewResolver("/etc/resolv.conf")}
	return adapter.Run(ctx, conn, mtr.ModeReport, to.String())
}

func reportResult(res sim.Result, jsonOut, quiet bool) int {
	if !quiet {
		if res.Outcome.Code == outcome.OK {
			printPath(res.Path, jsonOut)
		} else {
			printFailure(res.Outcome, jsonOut)
		}
	}
	return res.Outcome.Code.ExitCode()
}

func reportFailure(oc outcome.Outcome, jsonOut, quiet bool) int {
	if !quiet {
		printFailure(oc, jsonOut)
	}
	return oc.Code.ExitCode()
}

func printPath(p hop.Path, jsonOut bool) {
	if jsonOut {
		data, err := format.JSON(p)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return
		}
		fmt.Println(string(data))
		return
	}
	out := os.Stdout
	if isatty.IsTerminal(os.Stdout.Fd()) {
		out = colorable.NewColorableStdout()
	}
	fmt.Fprint(out, format.Text(p))
}

func printFailure(oc outcome.Outcome, jsonOut bool) {
	if jsonOut {
		data, _ := format.JSONFailure()
		fmt.Println(string(data))
		return
	}
	out := os.Stderr
	if isatty.IsTerminal(os.Stderr.Fd()) {
		out = colorable.NewColorableStderr()
	}
	fmt.Fprintln(out, oc.Error())
	for _, s := range oc.Suggestions {
		fmt.Fprintln(out, "  - "+s)
	}
}
