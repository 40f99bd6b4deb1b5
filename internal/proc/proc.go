// Galvanic - Distributed Test Orchestration Substrate
// Copyright 2026 Henry C. (hclerval)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/hclerval/galvanic

// Package proc spawns and supervises child OS processes.
//
// Each child gets a line-oriented stdio relay that forwards output to the
// structured log with the child id as a field, so a misbehaving child cannot
// buffer unboundedly. Kill escalates SIGTERM to SIGKILL after a grace period
// and never blocks the caller.
package proc

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/hclerval/galvanic/internal/logging"
)

// maxLogLine caps relayed stdio lines; longer lines are truncated rather
// than buffered.
const maxLogLine = 16 * 1024

// ExitStatus describes how a child terminated.
type ExitStatus struct {
	// Code is the exit code, or -1 when the child died from a signal.
	Code int

	// Signal is the terminating signal name, empty for clean exits.
	Signal string

	// Err is the wait error for failures other than a non-zero exit.
	Err error
}

// Clean reports a zero exit without a signal.
func (s ExitStatus) Clean() bool {
	return s.Code == 0 && s.Signal == ""
}

// Options configures a child process spawn.
type Options struct {
	// ID labels every relayed log line and the exit event.
	ID string

	// Binary is the executable path.
	Binary string

	// Args are passed verbatim.
	Args []string

	// Env is appended to the parent environment.
	Env []string

	// Dir is the working directory; empty inherits the parent's.
	Dir string

	// OnExit, if set, is invoked exactly once from the wait goroutine
	// after the child terminates.
	OnExit func(ExitStatus)
}

// Handle owns a running child process.
type Handle struct {
	id  string
	cmd *exec.Cmd

	done chan struct{}

	mu     sync.Mutex
	status ExitStatus
	killed bool
}

// Spawn starts the child and wires its stdout/stderr to the structured log.
func Spawn(opts Options) (*Handle, error) {
	if opts.Binary == "" {
		return nil, errors.New("binary path is required")
	}

	cmd := exec.Command(opts.Binary, opts.Args...)
	cmd.Dir = opts.Dir
	if len(opts.Env) > 0 {
		cmd.Env = append(cmd.Environ(), opts.Env...)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", opts.Binary, err)
	}

	h := &Handle{
		id:   opts.ID,
		cmd:  cmd,
		done: make(chan struct{}),
	}

	var relays sync.WaitGroup
	relays.Add(2)
	go h.relay(stdout, "stdout", &relays)
	go h.relay(stderr, "stderr", &relays)

	go h.wait(&relays, opts.OnExit)

	logging.Info().
		Str("child", opts.ID).
		Str("binary", opts.Binary).
		Int("pid", cmd.Process.Pid).
		Msg("child process spawned")
	return h, nil
}

// relay forwards one stdio stream to the log, line by line.
func (h *Handle) relay(r io.Reader, stream string, wg *sync.WaitGroup) {
	defer wg.Done()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 4096), maxLogLine)
	for scanner.Scan() {
		logging.Info().
			Str("child", h.id).
			Str("stream", stream).
			Msg(scanner.Text())
	}
	// Scanner errors here are almost always the pipe closing on exit.
}

// wait reaps the child, records its status, and fires the exit callback.
func (h *Handle) wait(relays *sync.WaitGroup, onExit func(ExitStatus)) {
	relays.Wait()
	err := h.cmd.Wait()

	status := ExitStatus{}
	var exitErr *exec.ExitError
	switch {
	case err == nil:
		status.Code = 0
	case errors.As(err, &exitErr):
		status.Code = exitErr.ExitCode()
		if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
			status.Signal = ws.Signal().String()
		}
	default:
		status.Code = -1
		status.Err = err
	}

	h.mu.Lock()
	h.status = status
	h.mu.Unlock()
	close(h.done)

	logging.Info().
		Str("child", h.id).
		Int("code", status.Code).
		Str("signal", status.Signal).
		Msg("child process exited")

	if onExit != nil {
		onExit(status)
	}
}

// PID returns the child's process id.
func (h *Handle) PID() int {
	return h.cmd.Process.Pid
}

// Done is closed once the child has been reaped.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Alive reports whether the child has not yet been reaped.
func (h *Handle) Alive() bool {
	select {
	case <-h.done:
		return false
	default:
		return true
	}
}

// Status returns the exit status. Only meaningful once Done is closed.
func (h *Handle) Status() ExitStatus {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.status
}

// Kill asks the child to terminate: SIGTERM immediately, SIGKILL once the
// grace period elapses without an exit. It returns without waiting; watch
// Done for the actual exit.
func (h *Handle) Kill(grace time.Duration) {
	h.mu.Lock()
	already := h.killed
	h.killed = true
	h.mu.Unlock()
	if already || !h.Alive() {
		return
	}

	if err := h.cmd.Process.Signal(syscall.SIGTERM); err != nil {
		logging.Debug().Str("child", h.id).Err(err).Msg("SIGTERM failed, child likely gone")
		return
	}

	go func() {
		select {
		case <-h.done:
		case <-time.After(grace):
			logging.Warn().
				Str("child", h.id).
				Dur("grace", grace).
				Msg("child ignored SIGTERM, escalating to SIGKILL")
			_ = h.cmd.Process.Kill()
		}
	}()
}
