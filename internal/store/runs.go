package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const runColumns = "id, recipe_id, owner_id, status, output_path, output_bytes, completed_at, created_at, updated_at"

// CreateRun inserts a fresh run container for a recipe execution.
func (s *Store) CreateRun(ctx context.Context, recipeID, ownerID int64) (*Run, error) {
	timestamp := nowStamp()
	res, err := s.db.ExecContext(
		ctx,
		`INSERT INTO runs (recipe_id, owner_id, status, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?)`,
		recipeID,
		ownerID,
		RunStatusPending,
		timestamp,
		timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetRun(ctx, id)
}

// GetRun fetches a run by identifier. Returns nil when absent.
func (s *Store) GetRun(ctx context.Context, id int64) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return run, nil
}

// ListRuns returns the most recent runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+runColumns+` FROM runs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// UpdateRunStatus moves a run through its lifecycle.
func (s *Store) UpdateRunStatus(ctx context.Context, id int64, status RunStatus) error {
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE runs SET status = ?, updated_at = ? WHERE id = ?`,
		status,
		nowStamp(),
		id,
	)
	if err != nil {
		return fmt.Errorf("update run status: %w", err)
	}
	return nil
}

// UpdateRunOutput records the encoded artifact and optionally the terminal
// status plus completion time.
func (s *Store) UpdateRunOutput(ctx context.Context, id int64, status RunStatus, outputPath string, outputBytes int64, completedAt *time.Time) error {
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE runs
         SET status = ?, output_path = ?, output_bytes = ?, completed_at = ?, updated_at = ?
         WHERE id = ?`,
		status,
		nullableString(outputPath),
		outputBytes,
		nullableTime(completedAt),
		nowStamp(),
		id,
	)
	if err != nil {
		return fmt.Errorf("update run output: %w", err)
	}
	return nil
}

func scanRun(scanner interface{ Scan(dest ...any) error }) (*Run, error) {
	var (
		id           int64
		recipeID     int64
		ownerID      int64
		status       string
		outputPath   sql.NullString
		outputBytes  sql.NullInt64
		completedRaw sql.NullString
		createdRaw   string
		updatedRaw   string
	)

	if err := scanner.Scan(
		&id,
		&recipeID,
		&ownerID,
		&status,
		&outputPath,
		&outputBytes,
		&completedRaw,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	run := &Run{
		ID:          id,
		RecipeID:    recipeID,
		OwnerID:     ownerID,
		Status:      RunStatus(status),
		OutputPath:  outputPath.String,
		OutputBytes: outputBytes.Int64,
	}
	run.CompletedAt = timePtrFromNull(completedRaw)
	if created, err := parseTimeString(createdRaw); err == nil {
		run.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		run.UpdatedAt = updated
	}
	return run, nil
}
