// SPDX-License-Identifier: AGPL-3.0-or-later

//go:build integration

package measurement

import (
	"context"
	"os"
	"testing"

	"github.com/offish/hydroplant-controller/internal/payload"
)

func TestSink_Add(t *testing.T) {
	dsn := os.Getenv("HYDROPLANT_TEST_DSN")
	if dsn == "" {
		t.Skip("HYDROPLANT_TEST_DSN not set")
	}

	ctx := context.Background()
	sink, err := Open(ctx, dsn)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer sink.Close()

	if err := sink.Add(ctx, "climate_node", "ec", payload.Payload{"value": 3.332362}); err != nil {
		t.Fatalf("Add: %v", err)
	}
}
