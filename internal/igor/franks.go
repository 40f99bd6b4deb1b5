// Galvanic - Distributed Test Orchestration Substrate
// Copyright 2026 Henry C. (hclerval)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/hclerval/galvanic

package igor

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hclerval/galvanic/internal/logging"
	"github.com/hclerval/galvanic/internal/metrics"
	"github.com/hclerval/galvanic/internal/models"
	"github.com/hclerval/galvanic/internal/proc"
)

// ErrMaxFranks rejects spawns past the pool limit.
var ErrMaxFranks = errors.New("frank limit reached")

// ErrFrankNotFound names an unknown executor id.
var ErrFrankNotFound = errors.New("no such frank")

// FrankInfo is one executor's externally visible state.
type FrankInfo struct {
	ID           string    `json:"id"`
	PID          int       `json:"pid"`
	Capabilities []string  `json:"capabilities,omitempty"`
	Busy         bool      `json:"busy"`
	CurrentTask  string    `json:"currentTask,omitempty"`
	TasksDone    int       `json:"tasksDone"`
	SpawnedAt    time.Time `json:"spawnedAt"`
}

// Task is one queued unit of executor work.
type Task struct {
	ID         string                 `json:"id"`
	Tool       string                 `json:"tool"`
	Params     map[string]interface{} `json:"params,omitempty"`
	EnqueuedAt time.Time              `json:"enqueuedAt"`
}

// PoolConfig configures the executor pool.
type PoolConfig struct {
	// Binary and Args launch one executor process.
	Binary string
	Args   []string

	// HubURL is handed to each executor so it can register itself.
	HubURL string

	// MaxFranks caps concurrent executors.
	MaxFranks int

	// KillGrace is the SIGTERM-to-SIGKILL window.
	KillGrace time.Duration
}

type frank struct {
	info   FrankInfo
	handle *proc.Handle
}

// Pool owns the transient executor processes and the FIFO task queue that
// drains whenever an executor frees up.
type Pool struct {
	cfg  PoolConfig
	send Sender

	// spawnFunc is swapped in tests.
	spawnFunc func(proc.Options) (*proc.Handle, error)

	mu       sync.Mutex
	nextSeq  int
	spawning int // slots reserved by in-flight Spawn calls
	franks   map[string]*frank
	queue    []Task
}

// NewPool creates an empty pool.
func NewPool(cfg PoolConfig, send Sender) *Pool {
	if cfg.MaxFranks <= 0 {
		cfg.MaxFranks = 4
	}
	if cfg.KillGrace <= 0 {
		cfg.KillGrace = 5 * time.Second
	}
	return &Pool{
		cfg:       cfg,
		send:      send,
		spawnFunc: proc.Spawn,
		franks:    make(map[string]*frank),
	}
}

// Spawn starts one executor tagged with its capabilities.
func (p *Pool) Spawn(capabilities []string) (FrankInfo, error) {
	// Reserve the slot before releasing the lock, or concurrent Spawn
	// calls could all pass the cap check and overshoot MaxFranks.
	p.mu.Lock()
	if len(p.franks)+p.spawning >= p.cfg.MaxFranks {
		p.mu.Unlock()
		return FrankInfo{}, ErrMaxFranks
	}
	p.spawning++
	p.nextSeq++
	id := fmt.Sprintf("frank-%d", p.nextSeq)
	p.mu.Unlock()

	env := []string{
		"FRANK_ID=" + id,
		"FRANK_HUB_URL=" + p.cfg.HubURL,
	}
	if len(capabilities) > 0 {
		env = append(env, "FRANK_CAPABILITIES="+strings.Join(capabilities, ","))
	}

	handle, err := p.spawnFunc(proc.Options{
		ID:     id,
		Binary: p.cfg.Binary,
		Args:   p.cfg.Args,
		Env:    env,
		OnExit: func(status proc.ExitStatus) { p.handleExit(id, status) },
	})
	if err != nil {
		p.mu.Lock()
		p.spawning--
		p.mu.Unlock()
		return FrankInfo{}, fmt.Errorf("spawn frank: %w", err)
	}

	f := &frank{
		info: FrankInfo{
			ID:           id,
			PID:          handle.PID(),
			Capabilities: capabilities,
			SpawnedAt:    time.Now(),
		},
		handle: handle,
	}
	info := f.info
	p.mu.Lock()
	p.spawning--
	p.franks[id] = f
	n := len(p.franks)
	p.mu.Unlock()

	metrics.FranksActive.Set(float64(n))
	logging.Info().Str("frank", id).Strs("capabilities", capabilities).Msg("executor spawned")
	p.drain()
	return info, nil
}

// handleExit broadcasts the death, re-queues any in-flight task, and drops
// the executor.
func (p *Pool) handleExit(id string, status proc.ExitStatus) {
	p.mu.Lock()
	f, ok := p.franks[id]
	if !ok {
		p.mu.Unlock()
		return
	}
	delete(p.franks, id)
	n := len(p.franks)
	var orphaned string
	if f.info.Busy && f.info.CurrentTask != "" {
		orphaned = f.info.CurrentTask
	}
	p.mu.Unlock()

	metrics.FranksActive.Set(float64(n))

	exited := models.NewMessage("", models.Broadcast, models.TypeWorkerExited, map[string]interface{}{
		"kind":     "frank",
		"id":       id,
		"exitCode": status.Code,
		"signal":   status.Signal,
	})
	if err := p.send.Send(exited); err != nil {
		logging.Warn().Err(err).Str("frank", id).Msg("worker.exited broadcast failed")
	}

	if orphaned != "" {
		logging.Warn().Str("frank", id).Str("task", orphaned).Msg("executor died with task in flight")
	}
	p.drain()
}

// Submit enqueues a task and immediately drains. Returns the task id.
func (p *Pool) Submit(tool string, params map[string]interface{}) string {
	task := Task{
		ID:         uuid.NewString(),
		Tool:       tool,
		Params:     params,
		EnqueuedAt: time.Now(),
	}
	p.mu.Lock()
	p.queue = append(p.queue, task)
	depth := len(p.queue)
	p.mu.Unlock()

	metrics.PlanQueueDepth.Set(float64(depth))
	p.drain()
	return task.ID
}

// drain assigns queued tasks to idle capable executors, FIFO.
func (p *Pool) drain() {
	for {
		p.mu.Lock()
		var assigned *Task
		var target *frank
		for i := range p.queue {
			if f := p.idleCapableLocked(p.queue[i].Tool); f != nil {
				task := p.queue[i]
				p.queue = append(p.queue[:i], p.queue[i+1:]...)
				f.info.Busy = true
				f.info.CurrentTask = task.ID
				assigned, target = &task, f
				break
			}
		}
		depth := len(p.queue)
		p.mu.Unlock()

		metrics.PlanQueueDepth.Set(float64(depth))
		if assigned == nil {
			return
		}
		p.dispatchTask(target.info.ID, *assigned)
	}
}

// idleCapableLocked finds an idle executor able to run the tool. Untagged
// executors accept anything.
func (p *Pool) idleCapableLocked(tool string) *frank {
	for _, f := range p.franks {
		if f.info.Busy {
			continue
		}
		if len(f.info.Capabilities) == 0 {
			return f
		}
		for _, tag := range f.info.Capabilities {
			if tag == tool {
				return f
			}
		}
	}
	return nil
}

func (p *Pool) dispatchTask(frankID string, task Task) {
	payload := map[string]interface{}{
		"tool":   task.Tool,
		"taskId": task.ID,
	}
	for k, v := range task.Params {
		payload[k] = v
	}
	msg := models.NewMessage("", models.ComponentID(frankID), models.TypeToolInvoke, payload)
	if err := p.send.Send(msg); err != nil {
		logging.Warn().Err(err).Str("frank", frankID).Str("task", task.ID).Msg("task dispatch failed")
		p.taskFinished(frankID)
	}
}

// Execute dispatches one task straight to a named executor, bypassing the
// queue. The executor must exist and be idle.
func (p *Pool) Execute(id, tool string, params map[string]interface{}) (string, error) {
	p.mu.Lock()
	f, ok := p.franks[id]
	if !ok {
		p.mu.Unlock()
		return "", fmt.Errorf("%w: %s", ErrFrankNotFound, id)
	}
	if f.info.Busy {
		p.mu.Unlock()
		return "", fmt.Errorf("frank %s is busy with task %s", id, f.info.CurrentTask)
	}
	task := Task{
		ID:         uuid.NewString(),
		Tool:       tool,
		Params:     params,
		EnqueuedAt: time.Now(),
	}
	f.info.Busy = true
	f.info.CurrentTask = task.ID
	p.mu.Unlock()

	p.dispatchTask(id, task)
	return task.ID, nil
}

// HandleResult marks the executor that carried the task idle again and
// drains the queue.
func (p *Pool) HandleResult(msg *models.Message) {
	taskID, _ := msg.Payload["taskId"].(string)
	if taskID == "" {
		return
	}
	p.mu.Lock()
	var frankID string
	for id, f := range p.franks {
		if f.info.CurrentTask == taskID {
			frankID = id
			break
		}
	}
	p.mu.Unlock()
	if frankID == "" {
		return
	}
	p.taskFinished(frankID)
}

func (p *Pool) taskFinished(frankID string) {
	p.mu.Lock()
	if f, ok := p.franks[frankID]; ok {
		f.info.Busy = false
		f.info.CurrentTask = ""
		f.info.TasksDone++
	}
	p.mu.Unlock()
	p.drain()
}

// Kill terminates one executor.
func (p *Pool) Kill(id string) error {
	p.mu.Lock()
	f, ok := p.franks[id]
	p.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrFrankNotFound, id)
	}
	logging.Info().Str("frank", id).Msg("killing executor")
	f.handle.Kill(p.cfg.KillGrace)
	return nil
}

// KillAll terminates every executor and returns how many were signalled.
func (p *Pool) KillAll() int {
	p.mu.Lock()
	targets := make([]*frank, 0, len(p.franks))
	for _, f := range p.franks {
		targets = append(targets, f)
	}
	p.mu.Unlock()

	for _, f := range targets {
		f.handle.Kill(p.cfg.KillGrace)
	}
	return len(targets)
}

// Get returns one executor's state.
func (p *Pool) Get(id string) (FrankInfo, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	f, ok := p.franks[id]
	if !ok {
		return FrankInfo{}, false
	}
	return f.info, true
}

// List returns all executors sorted by id.
func (p *Pool) List() []FrankInfo {
	p.mu.Lock()
	out := make([]FrankInfo, 0, len(p.franks))
	for _, f := range p.franks {
		out = append(out, f.info)
	}
	p.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Queue returns a copy of the waiting tasks, oldest first.
func (p *Pool) Queue() []Task {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Task, len(p.queue))
	copy(out, p.queue)
	return out
}

// Len returns the number of live executors.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.franks)
}

// AttachPool routes tool.invoked frames: engine-correlated responses first,
// then pool task completions.
func (p *Pool) AttachPool(c *Client, e *Engine) {
	c.On(models.TypeToolInvoked, func(msg *models.Message) {
		if e != nil && e.pending.Resolve(msg) {
			return
		}
		p.HandleResult(msg)
	})
}
