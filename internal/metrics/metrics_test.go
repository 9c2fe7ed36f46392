// Copyright (c) tracesim authors
// SPDX-License-Identifier: BSD-3-Clause

package metrics

import "testing"

func TestNewRegistersWithoutPanicking(t *testing.T) {
	r := New()
	r.SimulationsTotal.WithLabelValues("ok").Inc()
	r.LiveTraceTotal.WithLabelValues("report", "success").Inc()
	r.LiveTraceDuration.Observe(0.5)
	r.ReverseStepDuration.WithLabelValues("step1").Observe(1.2)

	mfs, err := r.Gatherer().Gather()
	if err != nil {
		t.Fatal(err)
	}
	if len(mfs) == 0 {
		t.Fatal("no metric families gathered")
	}
}
