// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Hydroplant Master Controller - central controller for a multi-floor
hydroponics installation.

Copyright (C) 2025  offish

This program is free software licensed under the terms of the GNU AGPL v3 or later.

See https://www.gnu.org/licenses/ for license details.
*/

// Package router is the controller shell: it owns the bus subscription set
// and dispatches every inbound message to the right handler (device
// announcements, GUI commands, receipts, disconnects, the readiness probe).
package router

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/offish/hydroplant-controller/internal/bus"
	"github.com/offish/hydroplant-controller/internal/buslog"
	"github.com/offish/hydroplant-controller/internal/measurement"
	"github.com/offish/hydroplant-controller/internal/payload"
	"github.com/offish/hydroplant-controller/internal/state"
	"github.com/offish/hydroplant-controller/internal/topics"
	"github.com/offish/hydroplant-controller/internal/topology"
	"github.com/offish/hydroplant-controller/pkg/config"
)

// Router dispatches inbound bus messages against the topology, autonomy
// scheduler, state store, and GUI log sink.
type Router struct {
	bus       bus.Client
	topo      *topology.Topology
	autonomy  autonomyToggle
	state     *state.Store
	measure   *measurement.Sink
	log       *buslog.Sink
	diag      zerolog.Logger
	reconnect config.ReconnectMode
}

// autonomyToggle is the minimal slice of *autonomy.Scheduler the router uses
// directly. Expressed as an interface to avoid a hard dependency cycle and
// to keep the router's contract with the scheduler explicit.
type autonomyToggle interface {
	Toggle(on bool)
}

// New constructs a Router. state and measure may be nil (persistence
// disabled, e.g. in tests).
func New(busClient bus.Client, topo *topology.Topology, autonomy autonomyToggle, st *state.Store, measure *measurement.Sink, log *buslog.Sink, diag zerolog.Logger, reconnect config.ReconnectMode) *Router {
	return &Router{
		bus:       busClient,
		topo:      topo,
		autonomy:  autonomy,
		state:     st,
		measure:   measure,
		log:       log,
		diag:      diag,
		reconnect: reconnect,
	}
}

// Start subscribes to the fixed control topics and registers the message
// handler. It then announces readiness so already-running devices can
// re-present themselves.
func (r *Router) Start(ctx context.Context) error {
	r.bus.SetHandler(r.handle)

	if err := r.bus.Subscribe(ctx, topics.Device, topics.Autonomy, topics.IsReady, topics.DisconnectDevices, topics.Log); err != nil {
		return fmt.Errorf("router: subscribing to control topics: %w", err)
	}

	if err := r.bus.Publish(ctx, topics.Ready, nil); err != nil {
		return fmt.Errorf("router: announcing readiness: %w", err)
	}

	return nil
}

// handle is the bus.Handler entry point. A panic while processing one
// message is contained to that message so a malformed payload can never take
// the whole controller down.
func (r *Router) handle(msg bus.Message) {
	defer func() {
		if rec := recover(); rec != nil {
			r.diag.Error().Interface("panic", rec).Str("topic", msg.Topic).Msg("recovered from panic handling bus message")
		}
	}()

	data := payload.Parse(msg.Payload)
	r.diag.Debug().Str("topic", msg.Topic).Interface("data", data).Msg("received message")

	if r.log != nil {
		r.log.Log(buslog.LevelDebug, "received a message!")
	}

	switch topics.Classify(msg.Topic) {
	case topics.ReadyProbe:
		r.onReadyProbe()
	case topics.DisconnectDevice:
		r.onDisconnect(data)
	case topics.DeviceAnnounce:
		r.onDeviceAnnounce(data)
	case topics.AutonomyToggle:
		r.onGUICommand(msg.Topic, data)
	case topics.GUICommand:
		r.onGUICommand(msg.Topic, data)
	case topics.Receipt:
		r.onReceipt(msg.Topic, data)
	case topics.Measurement:
		r.onMeasurement(msg.Topic, data)
	}
}

func (r *Router) publish(topic string, data payload.Payload) {
	ctx := context.Background()

	var raw []byte
	var err error
	if data != nil {
		raw, err = json.Marshal(data.WithoutTransportKeys())
		if err != nil {
			r.diag.Error().Err(err).Str("topic", topic).Msg("encoding outbound payload")
			return
		}
	}

	if err := r.bus.Publish(ctx, topic, raw); err != nil {
		r.diag.Error().Err(err).Str("topic", topic).Msg("publishing")
	}
}

func (r *Router) onReadyProbe() {
	r.publish(topics.Ready, nil)
}

func (r *Router) onDisconnect(data payload.Payload) {
	nodeID := data.String("device_id")
	floorName := data.String("floor")

	r.diag.Warn().Str("node_id", nodeID).Msg("device disconnected")
	if r.log != nil {
		r.log.Warning(fmt.Sprintf("%s disconnected", nodeID))
	}

	unsubscribe := r.topo.RemoveByNode(nodeID, floorName)
	if len(unsubscribe) > 0 {
		_ = r.bus.Unsubscribe(context.Background(), unsubscribe...)
	}

	r.publishTopologySync()
}

func (r *Router) onDeviceAnnounce(data payload.Payload) {
	nodeID := data.String("device_id")
	if nodeID == "gui" {
		r.diag.Info().Msg("gui connected")
		r.publishTopologySync()
		return
	}

	ann, err := decodeAnnouncement(nodeID, data)
	if err != nil {
		r.diag.Error().Err(err).Msg("malformed device announcement")
		return
	}

	uniqueIDs := r.topo.ApplyAnnouncement(ann)
	subscribe := r.topo.SubscribeTopicsFor(uniqueIDs)
	if len(subscribe) > 0 {
		_ = r.bus.Subscribe(context.Background(), subscribe...)
	}

	r.restoreLastStates(uniqueIDs)
	r.publishTopologySync()
}

func (r *Router) restoreLastStates(uniqueIDs []string) {
	if r.reconnect == config.ReconnectOff || r.state == nil {
		return
	}

	previous, err := r.state.LoadAll(context.Background())
	if err != nil {
		r.diag.Error().Err(err).Msg("loading persisted state for restore")
		return
	}

	for _, uniqueID := range uniqueIDs {
		value, ok := previous[uniqueID]
		if !ok {
			continue
		}

		e := r.topo.FindByUniqueID(uniqueID)
		if e == nil {
			continue
		}

		restored := value
		if r.reconnect == config.ReconnectRestoreZero {
			restored = 0
		}

		topic, cmd := e.BuildCommand(payload.Payload{"value": restored})
		r.publish(topic, cmd)
	}
}

func (r *Router) onGUICommand(topic string, data payload.Payload) {
	if topic == topics.Autonomy {
		on := truthy(data.Value())
		r.autonomy.Toggle(on)

		if r.log != nil {
			if on {
				r.log.Info("Autonomy turned on")
			} else {
				r.log.Warning("Autonomy turned off")
			}
		}
		return
	}

	uniqueID, err := topics.UniqueIDOf(topic)
	if err != nil {
		r.diag.Error().Err(err).Str("topic", topic).Msg("malformed gui_command topic")
		return
	}

	e := r.topo.FindByUniqueID(uniqueID)
	if e == nil {
		r.diag.Warn().Str("unique_id", uniqueID).Msg("gui_command for unknown entity")
		return
	}

	cmdTopic, cmdData := e.BuildCommand(data)
	r.publish(cmdTopic, cmdData)
}

func (r *Router) onReceipt(topic string, data payload.Payload) {
	e, err := r.topo.FindByTopic(topic)
	if err != nil {
		r.diag.Warn().Str("topic", topic).Msg("receipt for unknown entity")
		return
	}

	e.SetData(data)
	if e.Value == nil {
		return
	}

	if r.state != nil {
		if err := r.state.ReplaceAll(context.Background(), r.topo.StateSnapshot()); err != nil {
			r.diag.Error().Err(err).Msg("persisting state snapshot")
		}
	}

	r.publishTopologySync()
}

func (r *Router) onMeasurement(topic string, data payload.Payload) {
	if r.measure == nil {
		return
	}

	nodeID := topics.NodeOf(topic)
	sensorID := topics.PartOf(topic)
	if err := r.measure.Add(context.Background(), nodeID, sensorID, data); err != nil {
		r.diag.Error().Err(err).Str("topic", topic).Msg("persisting measurement")
	}
}

func (r *Router) publishTopologySync() {
	r.publish(topics.GUITopics, payload.Payload{"topics": r.topo.GUITopics()})
	r.publish(topics.GUISync, r.topo.GUISyncSnapshot())
}

// decodeAnnouncement extracts a topology.Announcement from a raw device
// announcement payload. The floor name is whichever top-level key contains
// "floor"; everything else under it other than "logic_controllers" is
// treated as a stage name.
func decodeAnnouncement(deviceID string, data payload.Payload) (topology.Announcement, error) {
	var floorName string
	var floorData map[string]any

	for key, value := range data {
		if !containsFloor(key) {
			continue
		}
		nested, ok := value.(map[string]any)
		if !ok {
			return topology.Announcement{}, fmt.Errorf("router: floor key %q is not an object", key)
		}
		floorName = key
		floorData = nested
		break
	}

	if floorName == "" {
		return topology.Announcement{}, fmt.Errorf("router: announcement has no floor key")
	}

	ann := topology.Announcement{
		DeviceID: deviceID,
		Floor:    floorName,
		Stages:   map[string]topology.AnnouncedStage{},
	}

	for key, value := range floorData {
		if key == "logic_controllers" {
			ann.LogicControllers = toStringSlice(value)
			continue
		}

		stage, ok := value.(map[string]any)
		if !ok {
			continue
		}
		ann.Stages[key] = topology.AnnouncedStage{
			Actuators: toStringSlice(stage["actuators"]),
			Sensors:   toStringSlice(stage["sensors"]),
		}
	}

	return ann, nil
}

// truthy mirrors Python's bool() coercion for the scalar types a JSON
// payload can carry, matching the original autonomy-toggle check.
func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case float64:
		return t != 0
	case int:
		return t != 0
	case string:
		return t != ""
	default:
		return true
	}
}

func containsFloor(key string) bool {
	for i := 0; i+len("floor") <= len(key); i++ {
		if key[i:i+len("floor")] == "floor" {
			return true
		}
	}
	return false
}

func toStringSlice(v any) []string {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
