// Package sqlite persists world-state snapshots and planned trajectories
// for offline replay and debugging. A nil *Store disables persistence
// entirely with zero overhead; every method is safe to call on it.
package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/robocin/framework/internal/geom"
	"github.com/robocin/framework/internal/vision/tracker"
)

type dbHandle struct {
	*sql.DB
}

// Store logs world-state snapshots and trajectory samples to a SQLite
// database (§9 "persisted state").
type Store struct {
	db *dbHandle
}

// Open opens (creating if necessary) the SQLite database at path and
// applies any pending embedded migrations.
func Open(path string) (*Store, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage/sqlite: open %q: %w", path, err)
	}
	handle := &dbHandle{DB: sqlDB}
	if err := migrateUp(handle); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return &Store{db: handle}, nil
}

// Close closes the underlying database connection. Safe to call on a nil
// *Store.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// LogWorldState persists a fused snapshot. It implements
// tracker.StateSink. Errors are not returned (matching the sink
// interface); they are the caller's problem only insofar as the write is
// best-effort telemetry, not the control path.
func (s *Store) LogWorldState(snap tracker.Snapshot) {
	if s == nil || s.db == nil {
		return
	}
	yellowJSON, _ := json.Marshal(snap.Yellow)
	blueJSON, _ := json.Marshal(snap.Blue)
	ballJSON, _ := json.Marshal(snap.Ball)

	_, _ = s.db.Exec(
		`INSERT INTO world_state_log (ts_unix_nano, yellow_json, blue_json, ball_json, ball_tracked) VALUES (?, ?, ?, ?, ?)`,
		snap.Time.UnixNano(), string(yellowJSON), string(blueJSON), string(ballJSON), boolToInt(snap.BallTracked),
	)
}

// LogTrajectory persists a planned trajectory's sampled waypoints for a
// single robot, for offline visualization.
func (s *Store) LogTrajectory(team string, robotID int, ts time.Time, points []geom.Vec2) error {
	if s == nil || s.db == nil {
		return nil
	}
	pointsJSON, err := json.Marshal(points)
	if err != nil {
		return fmt.Errorf("storage/sqlite: marshal trajectory points: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO trajectory_log (ts_unix_nano, team, robot_id, points_json) VALUES (?, ?, ?, ?)`,
		ts.UnixNano(), team, robotID, string(pointsJSON),
	)
	if err != nil {
		return fmt.Errorf("storage/sqlite: insert trajectory log: %w", err)
	}
	return nil
}

// RecentWorldStates returns the most recently logged snapshots' raw
// timestamps, newest first, for debug tooling.
func (s *Store) RecentWorldStates(limit int) ([]time.Time, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	rows, err := s.db.Query(`SELECT ts_unix_nano FROM world_state_log ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("storage/sqlite: query recent world states: %w", err)
	}
	defer rows.Close()

	var out []time.Time
	for rows.Next() {
		var nanos int64
		if err := rows.Scan(&nanos); err != nil {
			return nil, fmt.Errorf("storage/sqlite: scan world state row: %w", err)
		}
		out = append(out, time.Unix(0, nanos))
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
