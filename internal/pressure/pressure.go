// Galvanic - Distributed Test Orchestration Substrate
// Copyright 2026 Henry C. (hclerval)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/hclerval/galvanic

// Package pressure tracks process memory pressure from resident set size.
//
// RSS is canonical rather than heap statistics: it is comparable across
// runtimes and is what the OS actually charges the process for. On Linux the
// sampler reads VmRSS from /proc/self/status; elsewhere it falls back to the
// Go runtime's accounting.
package pressure

import (
	"bufio"
	"os"
	"runtime"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/hclerval/galvanic/internal/metrics"
)

// Level is the current memory pressure classification.
type Level int32

const (
	// LevelNormal means RSS is below the warning threshold.
	LevelNormal Level = iota
	// LevelWarning sheds large frames (router drops frames > 1 KiB).
	LevelWarning
	// LevelCritical refuses new connections and fails readiness.
	LevelCritical
)

// String returns the lowercase level name.
func (l Level) String() string {
	switch l {
	case LevelWarning:
		return "warning"
	case LevelCritical:
		return "critical"
	default:
		return "normal"
	}
}

// Monitor samples RSS and classifies it against fixed thresholds.
type Monitor struct {
	warnBytes int64
	critBytes int64

	level atomic.Int32
	rss   atomic.Int64

	// readRSS is swappable in tests.
	readRSS func() (int64, error)
}

// NewMonitor creates a monitor with thresholds in megabytes. Non-positive
// thresholds disable the respective level.
func NewMonitor(warningMB, criticalMB int) *Monitor {
	return &Monitor{
		warnBytes: int64(warningMB) * 1024 * 1024,
		critBytes: int64(criticalMB) * 1024 * 1024,
		readRSS:   processRSS,
	}
}

// Sample reads the current RSS, updates the cached level and gauges, and
// returns the classification. A read failure leaves the previous level in
// place.
func (m *Monitor) Sample() (Level, error) {
	rss, err := m.readRSS()
	if err != nil {
		return m.Level(), err
	}
	m.rss.Store(rss)

	level := LevelNormal
	switch {
	case m.critBytes > 0 && rss >= m.critBytes:
		level = LevelCritical
	case m.warnBytes > 0 && rss >= m.warnBytes:
		level = LevelWarning
	}
	m.level.Store(int32(level))

	metrics.ProcessRSSBytes.Set(float64(rss))
	metrics.MemoryPressureLevel.Set(float64(level))
	return level, nil
}

// Level returns the classification from the most recent sample.
func (m *Monitor) Level() Level {
	return Level(m.level.Load())
}

// RSSBytes returns the resident set size from the most recent sample.
func (m *Monitor) RSSBytes() int64 {
	return m.rss.Load()
}

// processRSS reads the resident set size of the current process.
func processRSS() (int64, error) {
	if runtime.GOOS == "linux" {
		if rss, err := linuxRSS(); err == nil {
			return rss, nil
		}
	}
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	//nolint:gosec // G115: Sys fits int64 for any realistic process
	return int64(ms.Sys), nil
}

// linuxRSS parses VmRSS from /proc/self/status (value is in kB).
func linuxRSS() (int64, error) {
	f, err := os.Open("/proc/self/status")
	if err != nil {
		return 0, err
	}
	defer func() { _ = f.Close() }()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "VmRSS:") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			break
		}
		kb, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			return 0, err
		}
		return kb * 1024, nil
	}
	if err := scanner.Err(); err != nil {
		return 0, err
	}
	return 0, os.ErrNotExist
}
