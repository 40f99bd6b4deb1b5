// Galvanic - Distributed Test Orchestration Substrate
// Copyright 2026 Henry C. (hclerval)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/hclerval/galvanic

// Package doctor manages the hub's supervisor child processes.
//
// Each child is spawned with a unique id, a reserved TCP port from a
// monotonic pool, and the hub URL in its environment. The manager tracks
// status and activity per child, relays its stdio to the structured log,
// and broadcasts a death notice when a child exits.
package doctor

import (
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/hclerval/galvanic/internal/logging"
	"github.com/hclerval/galvanic/internal/metrics"
	"github.com/hclerval/galvanic/internal/models"
	"github.com/hclerval/galvanic/internal/proc"
)

// Status is a child's lifecycle phase.
type Status string

const (
	StatusSpawning Status = "spawning"
	StatusIdle     Status = "idle"
	StatusBusy     Status = "busy"
	StatusDying    Status = "dying"
)

// ErrMaxChildren rejects spawns beyond the configured ceiling.
var ErrMaxChildren = fmt.Errorf("doctor limit reached")

// Config sizes the child pool.
type Config struct {
	// MaxChildren caps concurrently running supervisor children.
	MaxChildren int

	// Binary is the supervisor executable; Args are prepended to every
	// spawn.
	Binary string
	Args   []string

	// BasePort seeds the monotonic port pool.
	BasePort int

	// HubURL is handed to every child via DOCTOR_HUB_URL.
	HubURL string

	// KillGrace is the SIGTERM-to-SIGKILL escalation window.
	KillGrace time.Duration
}

// Hub is the slice of the routing core the manager needs: broadcasting
// death notices and answering control requests.
type Hub interface {
	Broadcast(msg *models.Message, exclude models.ComponentID)
	Reply(connID string, msg *models.Message)
}

// Info is a point-in-time view of one child for doctor.list and /doctors.
type Info struct {
	ID             string    `json:"id"`
	PID            int       `json:"pid"`
	Port           int       `json:"port"`
	Status         Status    `json:"status"`
	Specialization string    `json:"specialization,omitempty"`
	PlansCompleted int       `json:"plansCompleted"`
	PlansFailed    int       `json:"plansFailed"`
	Igors          []string  `json:"igors"`
	SpawnedAt      time.Time `json:"spawnedAt"`
	LastActivity   time.Time `json:"lastActivity"`
}

type child struct {
	id             string
	port           int
	handle         *proc.Handle
	status         Status
	specialization string
	plansCompleted int
	plansFailed    int
	igors          map[string]bool
	spawnedAt      time.Time
	lastActivity   time.Time
	killedAt       time.Time
}

// spawnFunc matches proc.Spawn; tests substitute a stub binary by leaving
// it in place and pointing Config.Binary elsewhere.
type spawnFunc func(proc.Options) (*proc.Handle, error)

// Manager owns the supervisor children.
type Manager struct {
	cfg   Config
	hub   Hub
	spawn spawnFunc

	mu       sync.Mutex
	children map[string]*child
	nextSeq  int
	nextPort int
}

// NewManager creates an empty child pool.
func NewManager(cfg Config, hub Hub) *Manager {
	if cfg.KillGrace <= 0 {
		cfg.KillGrace = 5 * time.Second
	}
	return &Manager{
		cfg:      cfg,
		hub:      hub,
		spawn:    proc.Spawn,
		children: make(map[string]*child),
		nextPort: cfg.BasePort,
	}
}

// Spawn starts one supervisor child. The config map is flattened into the
// child environment as DOCTOR_CFG_<KEY>=<value>.
func (m *Manager) Spawn(specialization string, config map[string]string) (Info, error) {
	m.mu.Lock()
	if m.cfg.MaxChildren > 0 && len(m.children) >= m.cfg.MaxChildren {
		m.mu.Unlock()
		metrics.DoctorSpawns.WithLabelValues("limit").Inc()
		return Info{}, fmt.Errorf("%w (%d running)", ErrMaxChildren, m.cfg.MaxChildren)
	}
	m.nextSeq++
	id := fmt.Sprintf("doctor-%d", m.nextSeq)
	port := m.nextPort
	m.nextPort++
	m.mu.Unlock()

	env := []string{
		"DOCTOR_ID=" + id,
		"DOCTOR_PORT=" + strconv.Itoa(port),
		"DOCTOR_HUB_URL=" + m.cfg.HubURL,
	}
	if specialization != "" {
		env = append(env, "DOCTOR_SPECIALIZATION="+specialization)
	}
	for k, v := range config {
		env = append(env, "DOCTOR_CFG_"+k+"="+v)
	}

	handle, err := m.spawn(proc.Options{
		ID:     id,
		Binary: m.cfg.Binary,
		Args:   m.cfg.Args,
		Env:    env,
		OnExit: func(status proc.ExitStatus) { m.handleExit(id, status) },
	})
	if err != nil {
		metrics.DoctorSpawns.WithLabelValues("exec_failed").Inc()
		return Info{}, fmt.Errorf("spawn %s: %w", id, err)
	}

	now := time.Now()
	c := &child{
		id:             id,
		port:           port,
		handle:         handle,
		status:         StatusSpawning,
		specialization: specialization,
		igors:          make(map[string]bool),
		spawnedAt:      now,
		lastActivity:   now,
	}

	m.mu.Lock()
	m.children[id] = c
	total := len(m.children)
	m.mu.Unlock()

	metrics.DoctorSpawns.WithLabelValues("ok").Inc()
	metrics.DoctorChildren.Set(float64(total))
	logging.Info().
		Str("doctor", id).
		Int("port", port).
		Str("specialization", specialization).
		Msg("supervisor child spawned")
	return c.info(), nil
}

// handleExit runs on the child's wait goroutine: mark dying, broadcast the
// death notice, drop the record.
func (m *Manager) handleExit(id string, status proc.ExitStatus) {
	m.mu.Lock()
	c, ok := m.children[id]
	var igors []string
	var killed bool
	if ok {
		c.status = StatusDying
		igors = c.igorIDs()
		killed = !c.killedAt.IsZero()
		delete(m.children, id)
	}
	total := len(m.children)
	m.mu.Unlock()
	if !ok {
		return
	}

	switch {
	case killed:
		metrics.DoctorDeaths.WithLabelValues("killed").Inc()
		metrics.DoctorShutdownDuration.Observe(time.Since(c.killedAt).Seconds())
	case status.Clean():
		metrics.DoctorDeaths.WithLabelValues("clean").Inc()
	default:
		metrics.DoctorDeaths.WithLabelValues("crash").Inc()
	}
	metrics.DoctorChildren.Set(float64(total))

	logging.Warn().
		Str("doctor", id).
		Int("code", status.Code).
		Str("signal", status.Signal).
		Strs("igors", igors).
		Msg("supervisor child died")

	m.hub.Broadcast(models.NewMessage("bridge", models.Broadcast, models.TypeDoctorDied,
		map[string]interface{}{
			"doctorId": id,
			"exitCode": status.Code,
			"signal":   status.Signal,
			"igors":    igors,
		}), "")
}

// Kill terminates a child: SIGTERM, grace, SIGKILL. Returns immediately;
// the exit path broadcasts the death notice.
func (m *Manager) Kill(id, reason string) error {
	m.mu.Lock()
	c, ok := m.children[id]
	if ok {
		c.status = StatusDying
		c.killedAt = time.Now()
	}
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("no such doctor: %s", id)
	}

	logging.Info().Str("doctor", id).Str("reason", reason).Msg("killing supervisor child")
	c.handle.Kill(m.cfg.KillGrace)
	return nil
}

// KillAll terminates every child. Returns the number signaled.
func (m *Manager) KillAll(reason string) int {
	infos := m.List()
	for _, info := range infos {
		_ = m.Kill(info.ID, reason)
	}
	return len(infos)
}

// Get returns the view of one child.
func (m *Manager) Get(id string) (Info, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.children[id]
	if !ok {
		return Info{}, false
	}
	return c.info(), true
}

// List returns views of all children sorted by id.
func (m *Manager) List() []Info {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Info, 0, len(m.children))
	for _, c := range m.children {
		out = append(out, c.info())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len returns the number of live children.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.children)
}

// MarkReady transitions a spawning child to idle when its doctor.ready
// arrives.
func (m *Manager) MarkReady(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.children[id]; ok && c.status == StatusSpawning {
		c.status = StatusIdle
		c.lastActivity = time.Now()
	}
}

// UpdateStatus applies a child's self-reported state: status, plan
// counters, and spawned worker-face ids.
func (m *Manager) UpdateStatus(id string, status Status, plansCompleted, plansFailed int, igors []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.children[id]
	if !ok {
		return
	}
	if status == StatusIdle || status == StatusBusy {
		c.status = status
	}
	if plansCompleted > c.plansCompleted {
		c.plansCompleted = plansCompleted
	}
	if plansFailed > c.plansFailed {
		c.plansFailed = plansFailed
	}
	for _, igor := range igors {
		c.igors[igor] = true
	}
	c.lastActivity = time.Now()
}

func (c *child) info() Info {
	return Info{
		ID:             c.id,
		PID:            c.handle.PID(),
		Port:           c.port,
		Status:         c.status,
		Specialization: c.specialization,
		PlansCompleted: c.plansCompleted,
		PlansFailed:    c.plansFailed,
		Igors:          c.igorIDs(),
		SpawnedAt:      c.spawnedAt,
		LastActivity:   c.lastActivity,
	}
}

func (c *child) igorIDs() []string {
	ids := make([]string, 0, len(c.igors))
	for id := range c.igors {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
