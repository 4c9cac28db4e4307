// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Hydroplant Master Controller - central controller for a multi-floor
hydroponics installation.

Copyright (C) 2025  offish

This program is free software licensed under the terms of the GNU AGPL v3 or later.

See https://www.gnu.org/licenses/ for license details.
*/

// Package topology is the authoritative model of Floors -> Stages ->
// Actuators/LogicControllers, built from device announcements.
package topology

import (
	"errors"
	"sort"
	"sync"

	"github.com/offish/hydroplant-controller/internal/entity"
	"github.com/offish/hydroplant-controller/internal/topics"
)

// ErrUnknownEntity is returned by lookups that find no matching entity.
var ErrUnknownEntity = errors.New("topology: unknown entity")

// FloorNames and StageNames are fixed at startup: three floors, each with
// three stages.
var (
	FloorNames = []string{"floor_1", "floor_2", "floor_3"}
	StageNames = []string{"stage_1", "stage_2", "stage_3"}
)

// Stage owns a mutable collection of Actuator entities.
type Stage struct {
	Name      string
	actuators []*entity.Entity
}

// Floor owns an ordered collection of Stages and a mutable collection of
// LogicController entities.
type Floor struct {
	Name            string
	Stages          []*Stage
	logicController []*entity.Entity
}

func newFloor(name string) *Floor {
	stages := make([]*Stage, len(StageNames))
	for i, sn := range StageNames {
		stages[i] = &Stage{Name: sn}
	}
	return &Floor{Name: name, Stages: stages}
}

func (f *Floor) stageByName(name string) *Stage {
	for _, s := range f.Stages {
		if s.Name == name {
			return s
		}
	}
	return nil
}

// Topology is a tree of Floors -> Stages -> Entities, with a single mutex
// guarding all mutation and read traversal (§5: one mutex is sufficient
// given a low bus rate and O(entities) critical sections).
type Topology struct {
	mu     sync.Mutex
	floors []*Floor
}

// New builds a Topology with the fixed floor/stage set.
func New() *Topology {
	floors := make([]*Floor, len(FloorNames))
	for i, name := range FloorNames {
		floors[i] = newFloor(name)
	}
	return &Topology{floors: floors}
}

func (t *Topology) floorByName(name string) *Floor {
	for _, f := range t.floors {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// AddLogicController attaches a new LogicController entity to the floor
// parsed out of uniqueID. It is a no-op if the unique_id already exists.
func (t *Topology) AddLogicController(uniqueID string) *entity.Entity {
	t.mu.Lock()
	defer t.mu.Unlock()

	if e := t.findByUniqueIDLocked(uniqueID); e != nil {
		return e
	}

	floor := t.floorByName(topics.FloorOf(uniqueID))
	if floor == nil {
		return nil
	}

	e := entity.New(uniqueID, entity.KindLogicController)
	floor.logicController = append(floor.logicController, e)
	return e
}

// AddActuator attaches a new Actuator entity to the stage parsed out of
// uniqueID. It is a no-op if the unique_id already exists.
func (t *Topology) AddActuator(uniqueID string) *entity.Entity {
	t.mu.Lock()
	defer t.mu.Unlock()

	if e := t.findByUniqueIDLocked(uniqueID); e != nil {
		return e
	}

	floor := t.floorByName(topics.FloorOf(uniqueID))
	if floor == nil {
		return nil
	}
	stage := floor.stageByName(topics.StageOf(uniqueID))
	if stage == nil {
		return nil
	}

	e := entity.New(uniqueID, entity.KindActuator)
	stage.actuators = append(stage.actuators, e)
	return e
}

// RemoveByNode removes every entity whose Node matches nodeID, optionally
// restricted to one floor, and returns the bus topics that should be
// unsubscribed. Each floor's actuator/logic-controller slices are scanned on
// a snapshot copy so removal during one sweep is safe.
func (t *Topology) RemoveByNode(nodeID string, floorName string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	var unsubscribe []string

	for _, floor := range t.floors {
		if floorName != "" && floorName != floor.Name {
			continue
		}

		snapshot := append([]*entity.Entity(nil), floor.logicController...)
		for _, e := range snapshot {
			if e.Node != nodeID {
				continue
			}
			unsubscribe = append(unsubscribe, e.SubscribeTopics()...)
			floor.logicController = removeEntity(floor.logicController, e)
		}

		for _, stage := range floor.Stages {
			snapshot := append([]*entity.Entity(nil), stage.actuators...)
			for _, e := range snapshot {
				if e.Node != nodeID {
					continue
				}
				unsubscribe = append(unsubscribe, e.SubscribeTopics()...)
				stage.actuators = removeEntity(stage.actuators, e)
			}
		}
	}

	return unsubscribe
}

func removeEntity(list []*entity.Entity, target *entity.Entity) []*entity.Entity {
	out := list[:0:0]
	for _, e := range list {
		if e != target {
			out = append(out, e)
		}
	}
	return out
}

// FindByUniqueID returns the entity with the given unique_id, or nil.
func (t *Topology) FindByUniqueID(uniqueID string) *entity.Entity {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.findByUniqueIDLocked(uniqueID)
}

func (t *Topology) findByUniqueIDLocked(uniqueID string) *entity.Entity {
	for _, floor := range t.floors {
		for _, lc := range floor.logicController {
			if lc.UniqueID == uniqueID {
				return lc
			}
		}
		for _, stage := range floor.Stages {
			for _, a := range stage.actuators {
				if a.UniqueID == uniqueID {
					return a
				}
			}
		}
	}
	return nil
}

// FindByTopic resolves an entity from any of its topics (command, receipt,
// or gui_command), stripping a trailing /receipt first.
func (t *Topology) FindByTopic(topic string) (*entity.Entity, error) {
	topic = topics.StripReceipt(topic)

	uniqueID, err := topics.UniqueIDOf(topic)
	if err != nil {
		return nil, err
	}

	e := t.FindByUniqueID(uniqueID)
	if e == nil {
		return nil, ErrUnknownEntity
	}
	return e, nil
}

// GUITopics returns every entity's gui_command topic, in floor/stage
// insertion order.
func (t *Topology) GUITopics() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []string
	for _, floor := range t.floors {
		for _, lc := range floor.logicController {
			out = append(out, lc.GUICommand)
		}
		for _, stage := range floor.Stages {
			for _, a := range stage.actuators {
				out = append(out, a.GUICommand)
			}
		}
	}
	return out
}

// GUISyncSnapshot returns gui_command -> value for every entity, including
// logic controllers.
func (t *Topology) GUISyncSnapshot() map[string]any {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make(map[string]any)
	for _, floor := range t.floors {
		for _, lc := range floor.logicController {
			out[lc.GUICommand] = lc.Value
		}
		for _, stage := range floor.Stages {
			for _, a := range stage.actuators {
				out[a.GUICommand] = a.Value
			}
		}
	}
	return out
}

// StateSnapshot returns unique_id -> value for every actuator (used for
// persistence and restoration). Logic controllers are excluded, matching the
// original get_state() semantics.
func (t *Topology) StateSnapshot() map[string]any {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make(map[string]any)
	for _, floor := range t.floors {
		for _, stage := range floor.Stages {
			for _, a := range stage.actuators {
				out[a.UniqueID] = a.Value
			}
		}
	}
	return out
}

// Announcement mirrors the device-announcement payload shape: it always
// targets exactly one floor.
type Announcement struct {
	DeviceID         string
	Floor            string
	LogicControllers []string
	Stages           map[string]AnnouncedStage
}

// AnnouncedStage lists the actuators (and, unused by the core, sensors)
// a device announces for one stage.
type AnnouncedStage struct {
	Actuators []string
	Sensors   []string
}

// ApplyAnnouncement creates entities for every logic controller and actuator
// named in ann that is not already known, attached to the floor ann.Floor
// names, and returns the unique_ids that were newly created: logic
// controllers first, in announcement order, then actuators by stage name in
// sorted order. A device can only be on one floor. Entities the topology already
// knows about (a repeat announcement from a device that never disconnected)
// are left untouched and are not included in the result, since callers use it
// to decide what to (re)subscribe and restore.
func (t *Topology) ApplyAnnouncement(ann Announcement) []string {
	var uniqueIDs []string

	for _, lc := range ann.LogicControllers {
		uniqueID := ann.Floor + "/" + ann.DeviceID + "/" + lc
		if t.FindByUniqueID(uniqueID) != nil {
			continue
		}
		if e := t.AddLogicController(uniqueID); e != nil {
			uniqueIDs = append(uniqueIDs, uniqueID)
		}
	}

	stageNames := make([]string, 0, len(ann.Stages))
	for name := range ann.Stages {
		stageNames = append(stageNames, name)
	}
	sort.Strings(stageNames)

	for _, stageName := range stageNames {
		stage := ann.Stages[stageName]
		for _, actuator := range stage.Actuators {
			uniqueID := ann.Floor + "/" + stageName + "/" + ann.DeviceID + "/" + actuator
			if t.FindByUniqueID(uniqueID) != nil {
				continue
			}
			if e := t.AddActuator(uniqueID); e != nil {
				uniqueIDs = append(uniqueIDs, uniqueID)
			}
		}
		// Sensors are announced but not modeled as Entities: no autonomy
		// decision or GUI command targets a sensor (spec.md §1).
	}

	return uniqueIDs
}

// ActuatorsByType returns every actuator across all floors/stages whose
// derived type matches ty, in floor/stage order.
func (t *Topology) ActuatorsByType(ty entity.Type) []*entity.Entity {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []*entity.Entity
	for _, floor := range t.floors {
		for _, stage := range floor.Stages {
			for _, a := range stage.actuators {
				if a.Type == ty {
					out = append(out, a)
				}
			}
		}
	}
	return out
}

// SubscribeTopicsFor returns the subscribe topics for each unique_id in ids
// that currently resolves to a live entity.
func (t *Topology) SubscribeTopicsFor(ids []string) []string {
	var out []string
	for _, id := range ids {
		if e := t.FindByUniqueID(id); e != nil {
			out = append(out, e.SubscribeTopics()...)
		}
	}
	return out
}
