// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Hydroplant Master Controller - central controller for a multi-floor
hydroponics installation.

Copyright (C) 2025  offish

This program is free software licensed under the terms of the GNU AGPL v3 or later.

See https://www.gnu.org/licenses/ for license details.
*/

// Package autonomy runs the cooperative job scheduler: periodic interval
// checks that may enqueue jobs, and a single-job FIFO run loop that advances
// one step of the head job per tick.
package autonomy

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/offish/hydroplant-controller/internal/entity"
	"github.com/offish/hydroplant-controller/internal/job"
	"github.com/offish/hydroplant-controller/internal/payload"
)

// Publisher publishes a command to the bus. Replaces the
// callback/closure wiring of the original implementation with a narrow,
// explicit function type (see SPEC_FULL §5 / REDESIGN FLAGS).
type Publisher func(topic string, data payload.Payload)

// TopologyReader is the read-only slice of Topology the scheduler needs:
// resolving a step's target entity and enumerating actuators by type for
// interval checks. Depending on an interface rather than the concrete
// *topology.Topology keeps the router/scheduler boundary a pair of
// interfaces instead of shared mutable fields.
type TopologyReader interface {
	FindByUniqueID(uniqueID string) *entity.Entity
	ActuatorsByType(t entity.Type) []*entity.Entity
}

// DayWindow bounds the hours during which LED actuators should be lit.
// Both comparisons are strict: Start < hour < End.
type DayWindow struct {
	StartHour int
	EndHour   int
}

// DefaultDayWindow matches the source's "correct" intent (7 < hour < 21);
// see spec.md §9 Open Questions.
var DefaultDayWindow = DayWindow{StartHour: 7, EndHour: 21}

const (
	plantInformationUniqueID = "floor_1/plant_information_node/plant_information"
	plantMoverUniqueID       = "floor_1/plant_mover_node/plant_mover"

	inspectionStepDeadline = 240 * time.Second
	inspectionStepWait     = 10 * time.Second

	movementStepDeadline = 240 * time.Second
)

// Config holds the scheduler's tunables.
type Config struct {
	TickInterval         time.Duration
	IntervalCheckTimeout time.Duration
	DayWindow            DayWindow
}

// DefaultConfig returns the scheduler defaults used in the absence of
// explicit configuration.
func DefaultConfig() Config {
	return Config{
		TickInterval:         time.Second,
		IntervalCheckTimeout: 60 * time.Second,
		DayWindow:            DefaultDayWindow,
	}
}

// Scheduler is the cooperative autonomy run loop.
type Scheduler struct {
	cfg       Config
	topo      TopologyReader
	publish   Publisher
	queue     *job.Queue
	now       func() time.Time
	localHour func(time.Time) int

	enabled atomic.Bool

	mu                sync.Mutex
	lastIntervalCheck time.Time
	inspectionQueued  bool
	movementQueued    bool
}

// New constructs a Scheduler. It starts enabled, matching the original
// implementation's default.
func New(cfg Config, topo TopologyReader, publish Publisher) *Scheduler {
	s := &Scheduler{
		cfg:       cfg,
		topo:      topo,
		publish:   publish,
		queue:     job.NewQueue(),
		now:       time.Now,
		localHour: func(t time.Time) int { return t.Local().Hour() },
	}
	s.enabled.Store(true)
	return s
}

// Enable turns the scheduler on.
func (s *Scheduler) Enable() { s.enabled.Store(true) }

// Disable turns the scheduler off; the run loop keeps ticking but skips
// interval checks and job advancement while disabled.
func (s *Scheduler) Disable() { s.enabled.Store(false) }

// Toggle sets the enabled state from a gui_command/autonomy payload value.
func (s *Scheduler) Toggle(on bool) {
	if on {
		s.Enable()
	} else {
		s.Disable()
	}
}

// IsEnabled reports the current enabled state.
func (s *Scheduler) IsEnabled() bool {
	return s.enabled.Load()
}

// Run drives the tick loop until ctx is canceled.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.tick()
		}
	}
}

// tick performs one scheduler iteration: interval checks (if due) followed
// by advancing the head job.
func (s *Scheduler) tick() {
	now := s.now()

	if !s.IsEnabled() {
		return
	}

	s.mu.Lock()
	due := now.Sub(s.lastIntervalCheck) >= s.cfg.IntervalCheckTimeout
	if due {
		s.lastIntervalCheck = now
	}
	s.mu.Unlock()

	if due {
		s.runIntervalChecks(now)
	}

	s.Advance()
}

func (s *Scheduler) runIntervalChecks(now time.Time) {
	s.lightingCheck(now)
	s.inspectionCheck()
	s.movementCheck()
	s.waterCheck()
}

// lightingCheck enqueues a one-step job per LED actuator whose desired value
// (lit during the configured day window) differs from its current value.
func (s *Scheduler) lightingCheck(now time.Time) {
	hour := s.localHour(now)
	desired := 0
	if hour > s.cfg.DayWindow.StartHour && hour < s.cfg.DayWindow.EndHour {
		desired = 1
	}

	for _, led := range s.topo.ActuatorsByType(entity.TypeLED) {
		_, data := led.BuildCommand(payload.Payload{"value": desired})
		step := job.NewStep(led.Command, data, 0, 0)
		s.AddJob([]*job.Step{step})
	}
}

// inspectionCheck enqueues the plant-information inspection sweep once per
// session, if the target logic controller is present.
func (s *Scheduler) inspectionCheck() {
	s.mu.Lock()
	if s.inspectionQueued {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	e := s.topo.FindByUniqueID(plantInformationUniqueID)
	if e == nil {
		return
	}

	var steps []*job.Step
	for pos := 5; pos <= 8; pos++ {
		_, data := e.BuildCommand(payload.Payload{"to": pos})
		steps = append(steps, job.NewStep(e.Command, data, inspectionStepWait, inspectionStepDeadline))
	}

	s.AddJob(steps)

	s.mu.Lock()
	s.inspectionQueued = true
	s.mu.Unlock()
}

// movementCheck enqueues the fixed plant-mover migration program once per
// session, if the target logic controller is present.
func (s *Scheduler) movementCheck() {
	s.mu.Lock()
	if s.movementQueued {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	e := s.topo.FindByUniqueID(plantMoverUniqueID)
	if e == nil {
		return
	}

	program := [][2]int{{5, 9}, {6, 10}, {7, 11}, {8, 12}}
	var steps []*job.Step
	for _, leg := range program {
		from, to := leg[0], leg[1]
		_, data := e.BuildCommand(payload.Payload{"command": "goto", "from": from, "to": to})
		steps = append(steps, job.NewStep(e.Command, data, 0, movementStepDeadline))
	}

	s.AddJob(steps)

	s.mu.Lock()
	s.movementQueued = true
	s.mu.Unlock()
}

// waterCheck is a reserved placeholder; no autonomy decision currently
// consumes water-related measurements (spec.md §4.5, §9 Open Questions).
func (s *Scheduler) waterCheck() {}

// AddJob filters candidate steps (dropping any whose target entity already
// has the requested value, and any whose canonical key is already queued),
// then enqueues the remainder as a new job.
func (s *Scheduler) AddJob(steps []*job.Step) {
	existing := s.queue.QueuedStepKeys()

	var filtered []*job.Step
	for _, step := range steps {
		e := s.resolveTarget(step)
		if e != nil && e.Value != nil && step.Data.ValueEquals(e.Value) {
			continue
		}

		key := step.CanonicalKey()
		if _, dup := existing[key]; dup {
			continue
		}
		existing[key] = struct{}{}

		filtered = append(filtered, step)
	}

	if len(filtered) == 0 {
		return
	}

	s.queue.Enqueue(job.NewJob(filtered))
}

func (s *Scheduler) resolveTarget(step *job.Step) *entity.Entity {
	floor := step.Data.String("floor")
	stage := step.Data.String("stage")
	node := step.Data.String("device_id")
	part := step.Data.String("id")

	id := floor + "/"
	if stage != "" {
		id += stage + "/"
	}
	id += node + "/" + part

	return s.topo.FindByUniqueID(id)
}

// Advance progresses the head job by exactly one action per call: a kill
// check, a promotion, a publish, a deadline check, or a step completion.
func (s *Scheduler) Advance() {
	if !s.IsEnabled() {
		return
	}

	head := s.queue.Head()
	if head == nil {
		return
	}

	switch head.State {
	case job.Killed, job.Done:
		s.queue.RemoveHead()
		return
	case job.Queued:
		head.SetState(job.Pending)
		return
	}

	if head.State != job.Pending {
		return
	}

	if head.DoneWithSteps() {
		head.SetState(job.Done)
		return
	}

	step := head.CurrentStep()

	if !step.HasSent {
		s.publish(step.Topic, step.Data)
		step.MarkSent()
		return
	}

	if step.DeadlineExceeded() {
		head.SetState(job.Killed)
		return
	}

	e := s.resolveTarget(step)
	if !s.awaitedValueHolds(step, e) {
		return
	}

	if step.Wait > 0 {
		time.Sleep(step.Wait)
	}
	head.Advance()
}

// awaitedValueHolds implements the per-kind awaited-value predicate.
func (s *Scheduler) awaitedValueHolds(step *job.Step, e *entity.Entity) bool {
	if e == nil {
		return false
	}

	switch e.Type {
	case entity.TypePlantMover:
		to, hasTo := step.Data.Float("to")
		stage, hasStage := e.Data.Float("stage")
		return hasTo && hasStage && to == stage
	case entity.TypePlantInformation:
		to, hasTo := step.Data.Float("to")
		entityTo, entityHas := e.Data.Float("to")
		return hasTo && entityHas && to == entityTo
	default:
		if _, ok := step.Data["value"]; !ok {
			return false
		}
		return step.Data.ValueEquals(e.Value)
	}
}

// QueueLen exposes the number of jobs currently queued, for diagnostics.
func (s *Scheduler) QueueLen() int {
	return s.queue.Len()
}
