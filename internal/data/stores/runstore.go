package stores

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/liftoffhq/liftoff/internal/data/db"
	"github.com/liftoffhq/liftoff/internal/liftoff/provision"
)

// defaultRunListLimit caps `liftoff runs` output when no limit is given.
const defaultRunListLimit = 20

// RunStore persists provisioning run history in SQLite.
type RunStore struct {
	db *db.DB
}

var _ provision.RunStore = (*RunStore)(nil)

// NewRunStore creates a new SQLite-backed run history store.
func NewRunStore(db *db.DB) *RunStore {
	return &RunStore{db: db}
}

// Insert records one finished run.
func (s *RunStore) Insert(ctx context.Context, run provision.RunRecord) error {
	leaks := run.Leaks
	if leaks == nil {
		leaks = []string{}
	}
	leaksJSON, err := json.Marshal(leaks)
	if err != nil {
		return fmt.Errorf("run insert %q marshal leaks: %w", run.ID, err)
	}

	_, err = s.db.Conn().ExecContext(ctx, `
		INSERT INTO runs (
			id, project, workspace, status, error,
			items_created, items_reused, labels_created, relations_created, orphans_moved,
			leaks, started_at, finished_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Project, run.Workspace, run.Status, run.Error,
		run.Counts.ItemsCreated, run.Counts.ItemsReused, run.Counts.LabelsCreated,
		run.Counts.Relations, run.Counts.OrphansMoved,
		string(leaksJSON), run.StartedAt.UnixNano(), run.FinishedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("run insert %q: %w", run.ID, err)
	}

	return nil
}

// List returns the most recent runs, newest first.
func (s *RunStore) List(ctx context.Context, limit int) ([]provision.RunRecord, error) {
	if limit <= 0 {
		limit = defaultRunListLimit
	}

	rows, err := s.db.Conn().QueryContext(ctx, `
		SELECT
			id, project, workspace, status, error,
			items_created, items_reused, labels_created, relations_created, orphans_moved,
			leaks, started_at, finished_at
		FROM runs
		ORDER BY started_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("run list: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []provision.RunRecord
	for rows.Next() {
		var (
			run        provision.RunRecord
			leaksJSON  string
			startedAt  int64
			finishedAt int64
		)
		err := rows.Scan(
			&run.ID, &run.Project, &run.Workspace, &run.Status, &run.Error,
			&run.Counts.ItemsCreated, &run.Counts.ItemsReused, &run.Counts.LabelsCreated,
			&run.Counts.Relations, &run.Counts.OrphansMoved,
			&leaksJSON, &startedAt, &finishedAt)
		if err != nil {
			return nil, fmt.Errorf("run list scan: %w", err)
		}

		if err := json.Unmarshal([]byte(leaksJSON), &run.Leaks); err != nil {
			return nil, fmt.Errorf("run list %q unmarshal leaks: %w", run.ID, err)
		}
		run.StartedAt = time.Unix(0, startedAt)
		run.FinishedAt = time.Unix(0, finishedAt)

		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("run list: %w", err)
	}

	return runs, nil
}
