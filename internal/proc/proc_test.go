// Galvanic - Distributed Test Orchestration Substrate
// Copyright 2026 Henry C. (hclerval)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/hclerval/galvanic

package proc

import (
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hclerval/galvanic/internal/logging"
)

func init() {
	logging.SetLogger(logging.NewTestLogger(io.Discard))
}

func waitDone(t *testing.T, h *Handle, timeout time.Duration) ExitStatus {
	t.Helper()
	select {
	case <-h.Done():
		return h.Status()
	case <-time.After(timeout):
		t.Fatal("child did not exit in time")
		return ExitStatus{}
	}
}

func TestSpawnCleanExit(t *testing.T) {
	var gotExit atomic.Bool
	h, err := Spawn(Options{
		ID:     "t1",
		Binary: "/bin/sh",
		Args:   []string{"-c", "echo hello; exit 0"},
		OnExit: func(s ExitStatus) { gotExit.Store(true) },
	})
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}

	status := waitDone(t, h, 5*time.Second)
	if !status.Clean() {
		t.Fatalf("status = %+v, want clean exit", status)
	}
	if h.Alive() {
		t.Fatal("Alive = true after exit")
	}
	if !gotExit.Load() {
		t.Fatal("OnExit callback not invoked")
	}
}

func TestSpawnNonZeroExit(t *testing.T) {
	h, err := Spawn(Options{
		ID:     "t2",
		Binary: "/bin/sh",
		Args:   []string{"-c", "exit 7"},
	})
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}

	status := waitDone(t, h, 5*time.Second)
	if status.Code != 7 {
		t.Fatalf("Code = %d, want 7", status.Code)
	}
	if status.Clean() {
		t.Fatal("Clean = true for non-zero exit")
	}
}

func TestSpawnMissingBinary(t *testing.T) {
	if _, err := Spawn(Options{ID: "t3", Binary: "/no/such/binary"}); err == nil {
		t.Fatal("Spawn succeeded for a missing binary")
	}
	if _, err := Spawn(Options{ID: "t4"}); err == nil {
		t.Fatal("Spawn succeeded with empty binary path")
	}
}

func TestKillEscalation(t *testing.T) {
	// The child traps SIGTERM and keeps running, forcing SIGKILL.
	h, err := Spawn(Options{
		ID:     "t5",
		Binary: "/bin/sh",
		Args:   []string{"-c", `trap "" TERM; sleep 60`},
	})
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}

	// Give the shell a moment to install the trap.
	time.Sleep(100 * time.Millisecond)
	h.Kill(200 * time.Millisecond)

	status := waitDone(t, h, 5*time.Second)
	if status.Signal != "killed" {
		t.Fatalf("Signal = %q, want %q", status.Signal, "killed")
	}
}

func TestKillTermHonored(t *testing.T) {
	h, err := Spawn(Options{
		ID:     "t6",
		Binary: "/bin/sleep",
		Args:   []string{"60"},
	})
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}

	h.Kill(5 * time.Second)
	status := waitDone(t, h, 5*time.Second)
	if status.Signal != "terminated" {
		t.Fatalf("Signal = %q, want %q", status.Signal, "terminated")
	}

	// A second Kill on a dead child is a no-op.
	h.Kill(time.Millisecond)
}

func TestEnvPassedToChild(t *testing.T) {
	h, err := Spawn(Options{
		ID:     "t7",
		Binary: "/bin/sh",
		Args:   []string{"-c", `test "$GALVANIC_TEST_VAR" = "42"`},
		Env:    []string{"GALVANIC_TEST_VAR=42"},
	})
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}

	status := waitDone(t, h, 5*time.Second)
	if !status.Clean() {
		t.Fatalf("env var not visible to child: %+v", status)
	}
}
