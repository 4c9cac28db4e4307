// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Hydroplant Master Controller - central controller for a multi-floor
hydroponics installation.

Copyright (C) 2025  offish

This program is free software licensed under the terms of the GNU AGPL v3 or later.

See https://www.gnu.org/licenses/ for license details.
*/

// Package measurement persists sensor readings published on the
// hydroplant/measurement/* topics. It is write-only: no autonomy decision in
// this core currently reads measurements back (see the scheduler's water
// interval check, which is a reserved no-op).
package measurement

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/offish/hydroplant-controller/internal/payload"
)

const createTableSQL = `
CREATE TABLE IF NOT EXISTS hydroplant_measurements (
	id         BIGSERIAL PRIMARY KEY,
	node_id    TEXT NOT NULL,
	sensor_id  TEXT NOT NULL,
	data       JSONB NOT NULL,
	recorded_at TIMESTAMPTZ NOT NULL
)`

// Sink writes measurement readings to Postgres.
type Sink struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// Open connects to Postgres at dsn and ensures the measurements table
// exists.
func Open(ctx context.Context, dsn string) (*Sink, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("measurement: connecting: %w", err)
	}

	if _, err := pool.Exec(ctx, createTableSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("measurement: ensuring schema: %w", err)
	}

	return &Sink{pool: pool, now: time.Now}, nil
}

// Close releases the underlying connection pool.
func (s *Sink) Close() {
	s.pool.Close()
}

// Add records a single sensor reading. node_id, sensor_id, and the current
// time are stored in their own columns next to the payload, which is saved
// with its transport-only keys removed.
func (s *Sink) Add(ctx context.Context, nodeID, sensorID string, data payload.Payload) error {
	raw, err := json.Marshal(data.WithoutTransportKeys())
	if err != nil {
		return fmt.Errorf("measurement: encoding data: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO hydroplant_measurements (node_id, sensor_id, data, recorded_at) VALUES ($1, $2, $3, $4)`,
		nodeID, sensorID, raw, s.now(),
	)
	if err != nil {
		return fmt.Errorf("measurement: inserting: %w", err)
	}
	return nil
}
