// Copyright (c) tracesim authors
// SPDX-License-Identifier: BSD-3-Clause

// Package metrics exposes prometheus counters/histograms for the core on a
// private registry, so embedding callers choose whether and how to publish
// them rather than fighting over prometheus.DefaultRegisterer.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is a private prometheus.Registry owning every metric this
// package defines; callers wire it into an HTTP handler themselves.
type Registry struct {
	reg *prometheus.Registry

	SimulationsTotal   *prometheus.CounterVec
	LiveTraceTotal     *prometheus.CounterVec
	LiveTraceDuration  prometheus.Histogram
	ReverseStepDuration *prometheus.HistogramVec
}

// New constructs and registers every metric on a fresh private registry.
func New() *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		reg: reg,
		SimulationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tracesim",
			Name:      "simulations_total",
			Help:      "Forward simulations run, labeled by outcome code.",
		}, []string{"outcome"}),
		LiveTraceTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tracesim",
			Name:      "live_trace_total",
			Help:      "Live-trace adapter invocations, labeled by mode and result.",
		}, []string{"mode", "result"}),
		LiveTraceDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "tracesim",
			Name:      "live_trace_duration_seconds",
			Help:      "Wall-clock duration of a single live-trace command.",
			Buckets:   prometheus.DefBuckets,
		}),
		ReverseStepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "tracesim",
			Name:      "reverse_trace_step_duration_seconds",
			Help:      "Duration of each reverse-tracer step, labeled by step number.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"step"}),
	}

	reg.MustRegister(r.SimulationsTotal, r.LiveTraceTotal, r.LiveTraceDuration, r.ReverseStepDuration)
	return r
}

// Gatherer exposes the private registry for an HTTP /metrics handler.
func (r *Registry) Gatherer() prometheus.Gatherer { return r.reg }
