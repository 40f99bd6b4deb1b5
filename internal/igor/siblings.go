// Galvanic - Distributed Test Orchestration Substrate
// Copyright 2026 Henry C. (hclerval)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/hclerval/galvanic

package igor

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hclerval/galvanic/internal/logging"
	"github.com/hclerval/galvanic/internal/models"
	"github.com/hclerval/galvanic/internal/proc"
)

// ErrMaxSiblings rejects spawns past the sibling limit.
var ErrMaxSiblings = errors.New("sibling limit reached")

// ErrSiblingNotFound names an unknown sibling id.
var ErrSiblingNotFound = errors.New("no such sibling")

// RouteSpec describes the traffic slice a sibling worker face owns.
type RouteSpec struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Conditions []string `json:"conditions,omitempty"`
}

// SiblingInfo is one route worker's externally visible state.
type SiblingInfo struct {
	ID        string    `json:"id"`
	PID       int       `json:"pid"`
	Port      int       `json:"port"`
	Route     RouteSpec `json:"route"`
	SpawnedAt time.Time `json:"spawnedAt"`
}

// SiblingConfig configures route-specialized worker spawning.
type SiblingConfig struct {
	// Binary and Args launch one sibling worker face.
	Binary string
	Args   []string

	// HubURL is handed to each sibling.
	HubURL string

	// BasePort is where reserved sibling ports start.
	BasePort int

	// MaxSiblings caps concurrent siblings.
	MaxSiblings int

	// KillGrace is the SIGTERM-to-SIGKILL window.
	KillGrace time.Duration
}

type sibling struct {
	info   SiblingInfo
	handle *proc.Handle
}

// Siblings spawns worker-face processes specialized to a route. Each gets
// a reserved port and its route identity through the environment; stdio is
// re-logged by the process layer and exits are broadcast.
type Siblings struct {
	cfg  SiblingConfig
	send Sender

	spawnFunc func(proc.Options) (*proc.Handle, error)

	mu       sync.Mutex
	nextSeq  int
	nextPort int
	workers  map[string]*sibling
}

// NewSiblings creates an empty sibling spawner.
func NewSiblings(cfg SiblingConfig, send Sender) *Siblings {
	if cfg.MaxSiblings <= 0 {
		cfg.MaxSiblings = 8
	}
	if cfg.BasePort <= 0 {
		cfg.BasePort = 9200
	}
	if cfg.KillGrace <= 0 {
		cfg.KillGrace = 5 * time.Second
	}
	return &Siblings{
		cfg:       cfg,
		send:      send,
		spawnFunc: proc.Spawn,
		nextPort:  cfg.BasePort,
		workers:   make(map[string]*sibling),
	}
}

// Spawn starts one sibling for the route.
func (s *Siblings) Spawn(route RouteSpec) (SiblingInfo, error) {
	if route.ID == "" {
		return SiblingInfo{}, errors.New("route id is required")
	}

	s.mu.Lock()
	if len(s.workers) >= s.cfg.MaxSiblings {
		s.mu.Unlock()
		return SiblingInfo{}, ErrMaxSiblings
	}
	s.nextSeq++
	id := fmt.Sprintf("igor-%s-%d", route.ID, s.nextSeq)
	port := s.nextPort
	s.nextPort++
	s.mu.Unlock()

	env := []string{
		"IGOR_ID=" + id,
		"IGOR_PORT=" + strconv.Itoa(port),
		"IGOR_HUB_URL=" + s.cfg.HubURL,
		"IGOR_ROUTE_ID=" + route.ID,
		"IGOR_ROUTE_NAME=" + route.Name,
	}
	if len(route.Conditions) > 0 {
		env = append(env, "IGOR_ROUTE_CONDITIONS="+strings.Join(route.Conditions, ","))
	}

	handle, err := s.spawnFunc(proc.Options{
		ID:     id,
		Binary: s.cfg.Binary,
		Args:   s.cfg.Args,
		Env:    env,
		OnExit: func(status proc.ExitStatus) { s.handleExit(id, status) },
	})
	if err != nil {
		return SiblingInfo{}, fmt.Errorf("spawn sibling: %w", err)
	}

	w := &sibling{
		info: SiblingInfo{
			ID:        id,
			PID:       handle.PID(),
			Port:      port,
			Route:     route,
			SpawnedAt: time.Now(),
		},
		handle: handle,
	}
	s.mu.Lock()
	s.workers[id] = w
	s.mu.Unlock()

	logging.Info().
		Str("sibling", id).
		Str("route", route.ID).
		Int("port", port).
		Msg("route worker spawned")
	return w.info, nil
}

func (s *Siblings) handleExit(id string, status proc.ExitStatus) {
	s.mu.Lock()
	w, ok := s.workers[id]
	if !ok {
		s.mu.Unlock()
		return
	}
	delete(s.workers, id)
	route := w.info.Route.ID
	s.mu.Unlock()

	exited := models.NewMessage("", models.Broadcast, models.TypeWorkerExited, map[string]interface{}{
		"kind":     "igor",
		"id":       id,
		"route":    route,
		"exitCode": status.Code,
		"signal":   status.Signal,
	})
	if err := s.send.Send(exited); err != nil {
		logging.Warn().Err(err).Str("sibling", id).Msg("worker.exited broadcast failed")
	}
}

// Kill terminates one sibling.
func (s *Siblings) Kill(id string) error {
	s.mu.Lock()
	w, ok := s.workers[id]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrSiblingNotFound, id)
	}
	logging.Info().Str("sibling", id).Msg("killing route worker")
	w.handle.Kill(s.cfg.KillGrace)
	return nil
}

// List returns all siblings sorted by id.
func (s *Siblings) List() []SiblingInfo {
	s.mu.Lock()
	out := make([]SiblingInfo, 0, len(s.workers))
	for _, w := range s.workers {
		out = append(out, w.info)
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len returns the number of live siblings.
func (s *Siblings) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.workers)
}

// AttachSiblings wires igor.spawn requests to the spawner.
func (s *Siblings) AttachSiblings(c *Client, e *Engine) {
	c.On(models.TypeIgorSpawn, func(msg *models.Message) {
		route := RouteSpec{}
		route.ID, _ = msg.Payload["routeId"].(string)
		route.Name, _ = msg.Payload["routeName"].(string)
		if raw, ok := msg.Payload["conditions"].([]interface{}); ok {
			for _, item := range raw {
				if cond, ok := item.(string); ok {
					route.Conditions = append(route.Conditions, cond)
				}
			}
		}

		info, err := s.Spawn(route)
		if err != nil {
			e.reply(msg, models.TypeIgorSpawnFailed, map[string]interface{}{"error": err.Error()})
			return
		}
		e.reply(msg, models.TypeIgorSpawned, map[string]interface{}{"igor": info})
	})
}
