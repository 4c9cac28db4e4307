// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Hydroplant Master Controller - central controller for a multi-floor
hydroponics installation.

Copyright (C) 2025  offish

This program is free software licensed under the terms of the GNU AGPL v3 or later.

See https://www.gnu.org/licenses/ for license details.
*/

// Package entity models a single actuator or logic-controller endpoint.
//
// The original implementation modeled Entity/LogicController/Actuator as a
// three-level inheritance chain where the subclasses added nothing over the
// base. Per the redesign, this collapses to one struct with a Kind tag (its
// role) and a Type (its device kind); behavior that used to depend on
// dynamic dispatch (the autonomy awaited-value predicate) now switches on
// Type directly.
package entity

import (
	"strings"

	"github.com/offish/hydroplant-controller/internal/payload"
	"github.com/offish/hydroplant-controller/internal/topics"
)

// Kind is the role an Entity plays in the topology: LogicController entities
// attach to a Floor, Actuator entities attach to a Stage.
type Kind int

const (
	KindActuator Kind = iota
	KindLogicController
)

// Type is the closed set of device kinds derived from an entity's part_id.
type Type int

const (
	TypeUnknown Type = iota
	TypePlantMover
	TypePlantInformation
	TypeWaterController
	TypeLED
	TypeStepper
	TypeWaterPump
	TypeWaterPumpNut
	TypeValve
	TypeValveFlush
	TypeNPK
	TypeNutritionController
	TypePHRegulator
	TypeECRegulator
	TypeWaterCirc
)

var typeByPartID = map[string]Type{
	"plant_mover":          TypePlantMover,
	"plant_information":    TypePlantInformation,
	"water_controller":     TypeWaterController,
	"led":                  TypeLED,
	"stepper":              TypeStepper,
	"water_pump":           TypeWaterPump,
	"water_pump_nut":       TypeWaterPumpNut,
	"valve":                TypeValve,
	"valve_flush":          TypeValveFlush,
	"npk":                  TypeNPK,
	"nutrition_controller": TypeNutritionController,
	"ph_regulator":         TypePHRegulator,
	"ec_regulator":         TypeECRegulator,
	"water_circ":           TypeWaterCirc,
}

// TypeFromPartID derives a Type from a part_id, case-insensitively.
func TypeFromPartID(partID string) Type {
	if t, ok := typeByPartID[strings.ToLower(partID)]; ok {
		return t
	}
	return TypeUnknown
}

// Entity is one actuator or logic-controller endpoint.
type Entity struct {
	UniqueID string
	Kind     Kind
	Type     Type

	Floor string
	Stage string // empty for logic controllers
	Node  string
	Part  string

	Command    string
	Receipt    string
	GUICommand string

	Data  payload.Payload
	Value any
}

// New constructs an Entity from a unique_id of the form
// floor_X/[stage_Y/]node_id/part_id.
func New(uniqueID string, kind Kind) *Entity {
	node := topics.NodeOf(uniqueID)
	part := topics.PartOf(uniqueID)
	floor := topics.FloorOf(uniqueID)
	stage := ""
	if kind == KindActuator {
		stage = topics.StageOf(uniqueID)
	}

	return &Entity{
		UniqueID:   uniqueID,
		Kind:       kind,
		Type:       TypeFromPartID(part),
		Floor:      floor,
		Stage:      stage,
		Node:       node,
		Part:       part,
		Command:    topics.CommandPrefix + uniqueID,
		Receipt:    topics.CommandPrefix + uniqueID + "/receipt",
		GUICommand: topics.GUICommandPrefix + uniqueID,
		Data:       payload.Payload{},
	}
}

// BuildCommand merges kwargs with the entity's addressing fields and returns
// the command topic plus the resulting payload.
func (e *Entity) BuildCommand(kwargs payload.Payload) (string, payload.Payload) {
	data := kwargs.Clone()
	data["device_id"] = e.Node
	data["id"] = e.Part
	data["floor"] = e.Floor
	data["stage"] = e.Stage
	return e.Command, data
}

// SetData stores the observed payload and extracts its convenience scalar.
func (e *Entity) SetData(p payload.Payload) {
	e.Data = p
	e.Value = p.Value()
}

// SubscribeTopics returns the topics this entity's presence requires a
// subscription to.
func (e *Entity) SubscribeTopics() []string {
	return []string{e.GUICommand, e.Receipt}
}

// MatchesType reports whether the entity is of the requested Type.
func (e *Entity) MatchesType(t Type) bool {
	return e.Type == t
}
