// Copyright (c) tracesim authors
// SPDX-License-Identifier: BSD-3-Clause

package logging

import (
	"errors"
	"testing"
)

func TestNewNeverReturnsNil(t *testing.T) {
	for v := 0; v <= 3; v++ {
		l := New(v, "req-1")
		if l == nil {
			t.Fatalf("New(%d, ...) = nil", v)
		}
		l.Info("test event")
		l.Warn("test warning")
		l.Error("test failure", errors.New("boom"))
	}
}

func TestWithAttachesComponent(t *testing.T) {
	l := New(1, "req-2").With("fleet")
	if l == nil {
		t.Fatal("With returned nil")
	}
}
