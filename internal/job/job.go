// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Hydroplant Master Controller - central controller for a multi-floor
hydroponics installation.

Copyright (C) 2025  offish

This program is free software licensed under the terms of the GNU AGPL v3 or later.

See https://www.gnu.org/licenses/ for license details.
*/

// Package job models a single published command (Step) and a FIFO-ordered
// bundle of them (Job).
package job

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/google/uuid"

	"github.com/offish/hydroplant-controller/internal/payload"
)

// State is a Job's position in its lifecycle.
type State int

const (
	Unchecked State = iota
	Queued
	Pending
	Done
	Killed
)

// Priority is informational only; the scheduler always runs jobs FIFO.
type Priority int

const (
	PriorityDefault Priority = iota
	PriorityMedium
	PriorityHigh
)

// DefaultDeadline is the per-step deadline used when a step does not specify
// one (§5: "Timeouts are per-step (deadline, default 60 s)").
const DefaultDeadline = 60 * time.Second

// Step is one pending publish on the bus plus the data needed to judge its
// confirmation.
type Step struct {
	Topic    string
	Data     payload.Payload
	Wait     time.Duration // post-success settle delay
	Deadline time.Duration // relative to Timestamp

	Timestamp time.Time
	TimeSent  time.Time
	HasSent   bool

	now func() time.Time
}

// NewStep constructs a Step with an explicit deadline. If deadline is zero,
// DefaultDeadline is used.
func NewStep(topic string, data payload.Payload, wait, deadline time.Duration) *Step {
	if deadline == 0 {
		deadline = DefaultDeadline
	}
	return &Step{
		Topic:     topic,
		Data:      data,
		Wait:      wait,
		Deadline:  deadline,
		Timestamp: time.Now(),
		now:       time.Now,
	}
}

// MarkSent records that the step's command was published.
func (s *Step) MarkSent() {
	s.HasSent = true
	s.TimeSent = s.clock()()
}

func (s *Step) clock() func() time.Time {
	if s.now != nil {
		return s.now
	}
	return time.Now
}

// DeadlineExceeded reports whether now is at or past Timestamp+Deadline.
func (s *Step) DeadlineExceeded() bool {
	return !s.clock()().Before(s.Timestamp.Add(s.Deadline))
}

// CanonicalKey returns a stable (topic, data) encoding used to detect
// duplicate/redundant steps across queued jobs.
func (s *Step) CanonicalKey() string {
	sum := sha256.Sum256([]byte(s.Topic + "\x00" + s.Data.Canonical()))
	return hex.EncodeToString(sum[:])
}

// Job is an ordered list of Steps treated as a unit by the scheduler.
type Job struct {
	ID       string
	Steps    []*Step
	AtStep   int
	State    State
	Priority Priority
	Created  time.Time
}

// NewJob wraps steps into a new Job in the UNCHECKED state.
func NewJob(steps []*Step) *Job {
	return &Job{
		ID:      uuid.NewString(),
		Steps:   steps,
		State:   Unchecked,
		Created: time.Now(),
	}
}

// CurrentStep returns the step at AtStep, or nil if the job has completed
// all of its steps.
func (j *Job) CurrentStep() *Step {
	if j.AtStep >= len(j.Steps) {
		return nil
	}
	return j.Steps[j.AtStep]
}

// Advance moves the cursor to the next step.
func (j *Job) Advance() {
	j.AtStep++
}

// DoneWithSteps reports whether every step has been advanced past.
func (j *Job) DoneWithSteps() bool {
	return j.AtStep == len(j.Steps)
}

// SetState transitions the job to the given state.
func (j *Job) SetState(s State) {
	j.State = s
}

// Queue is an ordered, FIFO sequence of Jobs; only the head job is actively
// progressed.
type Queue struct {
	jobs []*Job
}

// NewQueue returns an empty job queue.
func NewQueue() *Queue {
	return &Queue{}
}

// Enqueue appends job to the tail of the queue and marks it Queued.
func (q *Queue) Enqueue(j *Job) {
	j.SetState(Queued)
	q.jobs = append(q.jobs, j)
}

// Head returns the first job in the queue, or nil if empty.
func (q *Queue) Head() *Job {
	if len(q.jobs) == 0 {
		return nil
	}
	return q.jobs[0]
}

// RemoveHead drops the first job in the queue.
func (q *Queue) RemoveHead() {
	if len(q.jobs) == 0 {
		return
	}
	q.jobs = q.jobs[1:]
}

// QueuedStepKeys returns the canonical keys of every step belonging to a job
// that is not PENDING (i.e. still eligible for dedup comparison).
func (q *Queue) QueuedStepKeys() map[string]struct{} {
	keys := make(map[string]struct{})
	for _, j := range q.jobs {
		if j.State == Pending {
			continue
		}
		for _, s := range j.Steps {
			keys[s.CanonicalKey()] = struct{}{}
		}
	}
	return keys
}

// Len returns the number of jobs currently queued.
func (q *Queue) Len() int {
	return len(q.jobs)
}
