// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Hydroplant Master Controller - central controller for a multi-floor
hydroponics installation.

Copyright (C) 2025  offish

This program is free software licensed under the terms of the GNU AGPL v3 or later.

See https://www.gnu.org/licenses/ for license details.
*/

// Package state persists actuator state across restarts in Postgres, opaque
// to the rest of the core: callers only ever see unique_id -> value.
package state

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// createTableSQL is run once at startup; hydroplant_state is a simple
// key-value table keyed by an entity's unique_id.
const createTableSQL = `
CREATE TABLE IF NOT EXISTS hydroplant_state (
	unique_id TEXT PRIMARY KEY,
	value     JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// Store persists and restores the topology's actuator state.
type Store struct {
	pool *pgxpool.Pool
}

// Open connects to Postgres at dsn and ensures the state table exists.
func Open(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("state: connecting: %w", err)
	}

	if _, err := pool.Exec(ctx, createTableSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("state: ensuring schema: %w", err)
	}

	return &Store{pool: pool}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// LoadAll returns every persisted unique_id -> value pair.
func (s *Store) LoadAll(ctx context.Context) (map[string]any, error) {
	rows, err := s.pool.Query(ctx, `SELECT unique_id, value FROM hydroplant_state`)
	if err != nil {
		return nil, fmt.Errorf("state: loading: %w", err)
	}
	defer rows.Close()

	out := make(map[string]any)
	for rows.Next() {
		var uniqueID string
		var raw []byte
		if err := rows.Scan(&uniqueID, &raw); err != nil {
			return nil, fmt.Errorf("state: scanning row: %w", err)
		}

		var value any
		if err := json.Unmarshal(raw, &value); err != nil {
			return nil, fmt.Errorf("state: decoding value for %s: %w", uniqueID, err)
		}
		out[uniqueID] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("state: iterating rows: %w", err)
	}

	return out, nil
}

// ReplaceAll overwrites the persisted state with snapshot, in one transaction.
func (s *Store) ReplaceAll(ctx context.Context, snapshot map[string]any) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("state: beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM hydroplant_state`); err != nil {
		return fmt.Errorf("state: clearing table: %w", err)
	}

	for uniqueID, value := range snapshot {
		raw, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("state: encoding value for %s: %w", uniqueID, err)
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO hydroplant_state (unique_id, value) VALUES ($1, $2)`,
			uniqueID, raw,
		); err != nil {
			return fmt.Errorf("state: writing %s: %w", uniqueID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("state: committing transaction: %w", err)
	}
	return nil
}
