// SPDX-License-Identifier: AGPL-3.0-or-later

package topics

import (
	"errors"
	"testing"
)

func TestFloorOf(t *testing.T) {
	cases := map[string]string{
		"hydroplant/command/floor_1/stage_1/climate_node/LED": "floor_1",
		"hydroplant/device": "",
		"floor_2/plant_mover_node/plant_mover": "floor_2",
	}
	for in, want := range cases {
		if got := FloorOf(in); got != want {
			t.Errorf("FloorOf(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestStageOf(t *testing.T) {
	if got := StageOf("floor_1/stage_2/climate_node/LED"); got != "stage_2" {
		t.Errorf("StageOf = %q, want stage_2", got)
	}
	if got := StageOf("floor_1/plant_information_node/plant_information"); got != "" {
		t.Errorf("StageOf = %q, want empty", got)
	}
}

func TestNodeAndPartOf(t *testing.T) {
	topic := "floor_1/stage_1/climate_node/LED"
	if got := NodeOf(topic); got != "climate_node" {
		t.Errorf("NodeOf = %q, want climate_node", got)
	}
	if got := PartOf(topic); got != "LED" {
		t.Errorf("PartOf = %q, want LED", got)
	}
}

func TestUniqueIDOf_Actuator(t *testing.T) {
	got, err := UniqueIDOf("hydroplant/command/floor_1/stage_1/climate_node/LED")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "floor_1/stage_1/climate_node/LED" {
		t.Errorf("got %q", got)
	}
}

func TestUniqueIDOf_LogicController(t *testing.T) {
	got, err := UniqueIDOf("hydroplant/gui_command/floor_1/plant_information_node/plant_information")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "floor_1/plant_information_node/plant_information" {
		t.Errorf("got %q", got)
	}
}

func TestUniqueIDOf_RoundTrip(t *testing.T) {
	uid := "floor_2/stage_3/water_node/VALVE"
	command := CommandPrefix + uid
	got, err := UniqueIDOf(command)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != uid {
		t.Errorf("round trip mismatch: got %q want %q", got, uid)
	}
}

func TestUniqueIDOf_Malformed(t *testing.T) {
	_, err := UniqueIDOf("hydroplant/device")
	if !errors.Is(err, ErrMalformedTopic) {
		t.Fatalf("expected ErrMalformedTopic, got %v", err)
	}
}

func TestIsReceipt(t *testing.T) {
	if !IsReceipt("hydroplant/command/floor_1/stage_1/climate_node/LED/receipt") {
		t.Error("expected receipt match")
	}
	if IsReceipt("hydroplant/command/floor_1/stage_1/climate_node/LED/receiptor") {
		t.Error("receipt must match as a suffix, not an infix")
	}
}

func TestStripReceipt(t *testing.T) {
	got := StripReceipt("hydroplant/command/floor_1/stage_1/climate_node/LED/receipt")
	if got != "hydroplant/command/floor_1/stage_1/climate_node/LED" {
		t.Errorf("got %q", got)
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		topic string
		want  Class
	}{
		{Device, DeviceAnnounce},
		{Autonomy, AutonomyToggle},
		{GUICommandPrefix + "floor_1/stage_1/climate_node/LED", GUICommand},
		{CommandPrefix + "floor_1/stage_1/climate_node/LED/receipt", Receipt},
		{DisconnectDevices, DisconnectDevice},
		{DisconnectMaster, DisconnectMasterController},
		{IsReady, ReadyProbe},
		{Log, LogMessage},
		{"hydroplant/measurement/ec", Measurement},
		{"hydroplant/unknown", Other},
	}
	for _, c := range cases {
		if got := Classify(c.topic); got != c.want {
			t.Errorf("Classify(%q) = %v, want %v", c.topic, got, c.want)
		}
	}
}
