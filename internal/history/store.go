// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package history keeps a bounded per-camera log of playback state transitions.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ManuGH/livewatch/internal/persistence/sqlite"
)

// Event is one recorded transition.
type Event struct {
	CameraID   string    `json:"camera_id"`
	Generation uint64    `json:"generation"`
	State      string    `json:"state"`
	Attempt    int       `json:"attempt"`
	Message    string    `json:"message,omitempty"`
	At         time.Time `json:"at"`
}

const schema = `
CREATE TABLE IF NOT EXISTS transitions (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	camera_id   TEXT    NOT NULL,
	generation  INTEGER NOT NULL,
	state       TEXT    NOT NULL,
	attempt     INTEGER NOT NULL,
	message     TEXT    NOT NULL DEFAULT '',
	at_unix_ms  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_transitions_camera ON transitions (camera_id, id);
`

// Store persists events in SQLite.
type Store struct {
	db        *sql.DB
	retention int
}

// Open opens or creates the database at path. Each camera keeps at most
// retention events.
func Open(ctx context.Context, path string, retention int) (*Store, error) {
	if retention < 1 {
		return nil, errors.New("history: retention must be at least 1")
	}
	db, err := sqlite.Open(ctx, path, sqlite.DefaultConfig())
	if err != nil {
		return nil, err
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("history: migrate: %w", err)
	}
	return &Store{db: db, retention: retention}, nil
}

// Record appends ev and prunes the camera's history to the retention count.
func (s *Store) Record(ctx context.Context, ev Event) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("history: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO transitions (camera_id, generation, state, attempt, message, at_unix_ms) VALUES (?, ?, ?, ?, ?, ?)`,
		ev.CameraID, int64(ev.Generation), ev.State, ev.Attempt, ev.Message, ev.At.UnixMilli(),
	); err != nil {
		return fmt.Errorf("history: insert: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM transitions WHERE camera_id = ? AND id NOT IN (
			SELECT id FROM transitions WHERE camera_id = ? ORDER BY id DESC LIMIT ?)`,
		ev.CameraID, ev.CameraID, s.retention,
	); err != nil {
		return fmt.Errorf("history: prune: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("history: commit: %w", err)
	}
	return nil
}

// Recent returns up to limit events for cameraID, newest first.
func (s *Store) Recent(ctx context.Context, cameraID string, limit int) ([]Event, error) {
	if limit <= 0 || limit > s.retention {
		limit = s.retention
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT camera_id, generation, state, attempt, message, at_unix_ms
		   FROM transitions WHERE camera_id = ? ORDER BY id DESC LIMIT ?`,
		cameraID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("history: query: %w", err)
	}
	defer rows.Close()

	out := make([]Event, 0, limit)
	for rows.Next() {
		var (
			ev  Event
			gen int64
			ms  int64
		)
		if err := rows.Scan(&ev.CameraID, &gen, &ev.State, &ev.Attempt, &ev.Message, &ms); err != nil {
			return nil, fmt.Errorf("history: scan: %w", err)
		}
		ev.Generation = uint64(gen)
		ev.At = time.UnixMilli(ms).UTC()
		out = append(out, ev)
	}
	return out, rows.Err()
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
