// SPDX-License-Identifier: AGPL-3.0-or-later

package job

import (
	"testing"
	"time"

	"github.com/offish/hydroplant-controller/internal/payload"
)

func TestCanonicalKeyStableAcrossPayloadOrder(t *testing.T) {
	a := NewStep("t", payload.Payload{"value": 1, "id": "LED"}, 0, 0)
	b := NewStep("t", payload.Payload{"id": "LED", "value": 1}, 0, 0)
	if a.CanonicalKey() != b.CanonicalKey() {
		t.Error("expected identical canonical keys regardless of map insertion order")
	}
}

func TestCanonicalKeyDiffersOnTopicOrData(t *testing.T) {
	a := NewStep("t1", payload.Payload{"value": 1}, 0, 0)
	b := NewStep("t2", payload.Payload{"value": 1}, 0, 0)
	if a.CanonicalKey() == b.CanonicalKey() {
		t.Error("expected different keys for different topics")
	}

	c := NewStep("t1", payload.Payload{"value": 2}, 0, 0)
	if a.CanonicalKey() == c.CanonicalKey() {
		t.Error("expected different keys for different data")
	}
}

func TestDeadlineExceeded_Boundary(t *testing.T) {
	base := time.Now()
	s := NewStep("t", payload.Payload{"value": 1}, 0, 5*time.Second)
	s.Timestamp = base

	s.now = func() time.Time { return base.Add(4999 * time.Millisecond) }
	if s.DeadlineExceeded() {
		t.Error("expected not exceeded just before the deadline")
	}

	s.now = func() time.Time { return base.Add(5 * time.Second) }
	if !s.DeadlineExceeded() {
		t.Error("expected exceeded exactly at the deadline boundary")
	}
}

func TestMarkSent(t *testing.T) {
	s := NewStep("t", payload.Payload{}, 0, 0)
	if s.HasSent {
		t.Fatal("expected not sent initially")
	}
	s.MarkSent()
	if !s.HasSent {
		t.Error("expected has_sent after MarkSent")
	}
	if s.TimeSent.IsZero() {
		t.Error("expected TimeSent to be set")
	}
}

func TestJobAdvanceAndDone(t *testing.T) {
	j := NewJob([]*Step{NewStep("t1", payload.Payload{}, 0, 0), NewStep("t2", payload.Payload{}, 0, 0)})
	if j.DoneWithSteps() {
		t.Fatal("expected not done with two pending steps")
	}
	if j.CurrentStep().Topic != "t1" {
		t.Errorf("expected current step t1")
	}

	j.Advance()
	if j.CurrentStep().Topic != "t2" {
		t.Errorf("expected current step t2")
	}

	j.Advance()
	if !j.DoneWithSteps() {
		t.Error("expected done after advancing past all steps")
	}
	if j.CurrentStep() != nil {
		t.Error("expected nil current step once done")
	}
}

func TestQueueFIFO(t *testing.T) {
	q := NewQueue()
	j1 := NewJob([]*Step{NewStep("t1", payload.Payload{}, 0, 0)})
	j2 := NewJob([]*Step{NewStep("t2", payload.Payload{}, 0, 0)})

	q.Enqueue(j1)
	q.Enqueue(j2)

	if q.Head() != j1 {
		t.Fatal("expected j1 at head")
	}
	if j1.State != Queued {
		t.Errorf("expected Queued state, got %v", j1.State)
	}

	q.RemoveHead()
	if q.Head() != j2 {
		t.Fatal("expected j2 at head after removing j1")
	}
	if q.Len() != 1 {
		t.Errorf("expected queue length 1, got %d", q.Len())
	}
}

func TestQueuedStepKeysExcludesPending(t *testing.T) {
	q := NewQueue()
	step := NewStep("t1", payload.Payload{"value": 1}, 0, 0)
	j1 := NewJob([]*Step{step})
	q.Enqueue(j1)
	j1.SetState(Pending)

	keys := q.QueuedStepKeys()
	if _, ok := keys[step.CanonicalKey()]; ok {
		t.Error("expected pending job's steps excluded from dedup key set")
	}
}
