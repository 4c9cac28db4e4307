// SPDX-License-Identifier: AGPL-3.0-or-later

package buslog

import (
	"testing"

	"github.com/offish/hydroplant-controller/internal/payload"
	"github.com/offish/hydroplant-controller/internal/topics"
)

func TestSink_Log(t *testing.T) {
	var gotTopic string
	var gotData payload.Payload

	s := New(func(topic string, data payload.Payload) {
		gotTopic = topic
		gotData = data
	})

	s.Info("autonomy turned on")

	if gotTopic != topics.GUILog {
		t.Errorf("expected topic %q, got %q", topics.GUILog, gotTopic)
	}
	if gotData["message"] != "autonomy turned on" {
		t.Errorf("expected message in payload, got %+v", gotData)
	}
	if gotData["level"] != int(LevelInfo) {
		t.Errorf("expected level %d, got %v", LevelInfo, gotData["level"])
	}
	if gotData["device_id"] != masterControllerDeviceID {
		t.Errorf("expected device_id %q, got %v", masterControllerDeviceID, gotData["device_id"])
	}
}
