// SPDX-License-Identifier: AGPL-3.0-or-later

package autonomy

import (
	"testing"
	"time"

	"github.com/offish/hydroplant-controller/internal/entity"
	"github.com/offish/hydroplant-controller/internal/job"
	"github.com/offish/hydroplant-controller/internal/payload"
)

type fakeTopology struct {
	byID   map[string]*entity.Entity
	byType map[entity.Type][]*entity.Entity
}

func newFakeTopology() *fakeTopology {
	return &fakeTopology{byID: map[string]*entity.Entity{}, byType: map[entity.Type][]*entity.Entity{}}
}

func (f *fakeTopology) add(e *entity.Entity) {
	f.byID[e.UniqueID] = e
	f.byType[e.Type] = append(f.byType[e.Type], e)
}

func (f *fakeTopology) FindByUniqueID(uniqueID string) *entity.Entity {
	return f.byID[uniqueID]
}

func (f *fakeTopology) ActuatorsByType(t entity.Type) []*entity.Entity {
	return f.byType[t]
}

func newLED(uniqueID string) *entity.Entity {
	e := entity.New(uniqueID, entity.KindActuator)
	return e
}

func TestLightingCheck_TurnsOnDuringDayWindow(t *testing.T) {
	topo := newFakeTopology()
	led := newLED("floor_1/stage_1/climate_node/led")
	led.SetData(payload.Payload{"value": 0})
	topo.add(led)

	var published []payload.Payload
	s := New(DefaultConfig(), topo, func(topic string, data payload.Payload) {
		published = append(published, data)
	})
	s.now = func() time.Time { return time.Date(2026, 7, 29, 10, 0, 0, 0, time.UTC) }
	s.localHour = func(tm time.Time) int { return tm.UTC().Hour() }

	s.lightingCheck(s.now())

	if s.QueueLen() != 1 {
		t.Fatalf("expected one job queued for a LED needing to turn on, got %d", s.QueueLen())
	}
}

func TestLightingCheck_SkipsWhenAlreadyCorrect(t *testing.T) {
	topo := newFakeTopology()
	led := newLED("floor_1/stage_1/climate_node/led")
	led.SetData(payload.Payload{"value": 1})
	topo.add(led)

	s := New(DefaultConfig(), topo, func(topic string, data payload.Payload) {})
	s.localHour = func(tm time.Time) int { return 10 }

	s.lightingCheck(time.Now())

	if s.QueueLen() != 0 {
		t.Errorf("expected no job queued when LED already matches desired value, got %d", s.QueueLen())
	}
}

func TestLightingCheck_BoundaryHoursAreOff(t *testing.T) {
	topo := newFakeTopology()
	led := newLED("floor_1/stage_1/climate_node/led")
	led.SetData(payload.Payload{"value": 0})
	topo.add(led)

	s := New(DefaultConfig(), topo, func(topic string, data payload.Payload) {})

	s.localHour = func(tm time.Time) int { return 7 }
	s.lightingCheck(time.Now())
	if s.QueueLen() != 0 {
		t.Errorf("expected hour 7 (boundary) to stay off, got queue len %d", s.QueueLen())
	}

	s.localHour = func(tm time.Time) int { return 21 }
	s.lightingCheck(time.Now())
	if s.QueueLen() != 0 {
		t.Errorf("expected hour 21 (boundary) to stay off, got queue len %d", s.QueueLen())
	}
}

func TestAddJob_DropsDuplicateCanonicalKey(t *testing.T) {
	topo := newFakeTopology()
	s := New(DefaultConfig(), topo, func(topic string, data payload.Payload) {})

	step := job.NewStep("t", payload.Payload{"value": 1, "id": "x"}, 0, 0)
	s.AddJob([]*job.Step{step})
	if s.QueueLen() != 1 {
		t.Fatalf("expected first job to be queued, got %d", s.QueueLen())
	}

	dup := job.NewStep("t", payload.Payload{"id": "x", "value": 1}, 0, 0)
	s.AddJob([]*job.Step{dup})
	if s.QueueLen() != 1 {
		t.Errorf("expected duplicate canonical key to be dropped, got queue len %d", s.QueueLen())
	}
}

func TestAdvance_PublishesThenAwaitsConfirmation(t *testing.T) {
	topo := newFakeTopology()
	led := newLED("floor_1/stage_1/climate_node/led")
	led.SetData(payload.Payload{"value": 0})
	topo.add(led)

	var published []string
	s := New(DefaultConfig(), topo, func(topic string, data payload.Payload) {
		published = append(published, topic)
	})

	_, data := led.BuildCommand(payload.Payload{"value": 1})
	s.queue.Enqueue(job.NewJob([]*job.Step{job.NewStep(led.Command, data, 0, time.Minute)}))

	s.Advance() // Queued -> Pending
	if s.queue.Head().State != job.Pending {
		t.Fatalf("expected job promoted to Pending")
	}

	s.Advance() // publish
	if len(published) != 1 {
		t.Fatalf("expected one publish, got %d", len(published))
	}

	s.Advance() // awaited value not yet observed: no-op
	if s.QueueLen() != 1 {
		t.Fatalf("expected job to remain queued awaiting confirmation")
	}

	led.SetData(payload.Payload{"value": 1})
	s.Advance() // awaited value now holds: advance past last step
	if !s.queue.Head().DoneWithSteps() {
		t.Fatalf("expected job done after awaited value observed")
	}

	s.Advance() // all steps confirmed -> Done
	if s.queue.Head().State != job.Done {
		t.Fatalf("expected job marked Done, got %v", s.queue.Head().State)
	}

	s.Advance() // Done -> removed
	if s.QueueLen() != 0 {
		t.Errorf("expected job removed from queue once done, got %d", s.QueueLen())
	}
}

func TestAdvance_KillsOnDeadlineExceeded(t *testing.T) {
	topo := newFakeTopology()
	led := newLED("floor_1/stage_1/climate_node/led")
	led.SetData(payload.Payload{"value": 0})
	topo.add(led)

	s := New(DefaultConfig(), topo, func(topic string, data payload.Payload) {})

	_, data := led.BuildCommand(payload.Payload{"value": 1})
	step := job.NewStep(led.Command, data, 0, 5*time.Second)
	s.queue.Enqueue(job.NewJob([]*job.Step{step}))

	s.Advance() // Queued -> Pending
	s.Advance() // publish

	step.Timestamp = time.Now().Add(-10 * time.Second)

	s.Advance() // deadline exceeded -> Killed
	if s.queue.Head().State != job.Killed {
		t.Fatalf("expected job killed after deadline exceeded, got %v", s.queue.Head().State)
	}

	s.Advance() // Killed -> removed
	if s.QueueLen() != 0 {
		t.Errorf("expected killed job removed from queue, got %d", s.QueueLen())
	}
}

func TestToggle_DisablesAdvancement(t *testing.T) {
	topo := newFakeTopology()
	led := newLED("floor_1/stage_1/climate_node/led")
	topo.add(led)

	var published int
	s := New(DefaultConfig(), topo, func(topic string, data payload.Payload) { published++ })

	_, data := led.BuildCommand(payload.Payload{"value": 1})
	s.queue.Enqueue(job.NewJob([]*job.Step{job.NewStep(led.Command, data, 0, 0)}))

	s.Toggle(false)
	s.Advance()
	s.Advance()
	if published != 0 {
		t.Errorf("expected no publish while autonomy disabled, got %d", published)
	}

	s.Toggle(true)
	s.Advance() // Queued -> Pending
	s.Advance() // publish
	if published != 1 {
		t.Errorf("expected publish once re-enabled, got %d", published)
	}
}

func TestAwaitedValueHolds_PlantMover(t *testing.T) {
	mover := entity.New("floor_1/plant_mover_node/plant_mover", entity.KindLogicController)
	mover.SetData(payload.Payload{"stage": 9})

	step := job.NewStep(mover.Command, payload.Payload{"to": 9}, 0, 0)

	s := &Scheduler{}
	if !s.awaitedValueHolds(step, mover) {
		t.Error("expected awaited value to hold once mover reports the target stage")
	}

	step2 := job.NewStep(mover.Command, payload.Payload{"to": 10}, 0, 0)
	if s.awaitedValueHolds(step2, mover) {
		t.Error("expected awaited value to not hold for a mismatched stage")
	}

	step3 := job.NewStep(mover.Command, payload.Payload{"to": 9}, 0, 0)
	freshMover := entity.New("floor_1/plant_mover_node/plant_mover", entity.KindLogicController)
	if s.awaitedValueHolds(step3, freshMover) {
		t.Error("expected awaited value to not hold before any receipt has reported a stage")
	}
}

func TestAwaitedValueHolds_PlantInformation(t *testing.T) {
	info := entity.New("floor_1/plant_information_node/plant_information", entity.KindLogicController)
	info.SetData(payload.Payload{"to": 6})

	step := job.NewStep(info.Command, payload.Payload{"to": 6}, 0, 0)

	s := &Scheduler{}
	if !s.awaitedValueHolds(step, info) {
		t.Error("expected awaited value to hold once plant information reports the target position")
	}
}
