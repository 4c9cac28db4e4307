// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Hydroplant Master Controller - central controller for a multi-floor
hydroponics installation.

Copyright (C) 2025  offish

This program is free software licensed under the terms of the GNU AGPL v3 or later.

See https://www.gnu.org/licenses/ for license details.
*/

// Package buslog publishes human-facing log messages to the GUI over the
// bus, distinct from the process's own zerolog diagnostic output. The
// original implementation routed both through one global logger; here the
// GUI-facing sink is an explicit dependency injected into whatever needs it
// (see REDESIGN FLAGS).
package buslog

import (
	"github.com/offish/hydroplant-controller/internal/payload"
	"github.com/offish/hydroplant-controller/internal/topics"
)

// Level mirrors the original implementation's integer log levels.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarning
	LevelError
)

const (
	masterControllerDeviceID = "master_controller"
	masterControllerFloor    = "floor_100"
)

// Publisher is the narrow bus-publish capability Sink needs.
type Publisher func(topic string, data payload.Payload)

// Sink publishes log messages to the gui/log topic.
type Sink struct {
	publish Publisher
}

// New constructs a Sink that publishes through publish.
func New(publish Publisher) *Sink {
	return &Sink{publish: publish}
}

// Log publishes one message at the given level, attributed to the master
// controller itself.
func (s *Sink) Log(level Level, message string) {
	s.publish(topics.GUILog, payload.Payload{
		"level":     int(level),
		"message":   message,
		"device_id": masterControllerDeviceID,
		"floor":     masterControllerFloor,
	})
}

// Info is a convenience wrapper for the common case.
func (s *Sink) Info(message string) { s.Log(LevelInfo, message) }

// Warning is a convenience wrapper for the common case.
func (s *Sink) Warning(message string) { s.Log(LevelWarning, message) }
