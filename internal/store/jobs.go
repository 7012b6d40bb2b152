package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const jobColumns = "id, handle, kind, run_id, owner_id, queue, status, progress, payload_json, result_json, error_message, claimed_by, claimed_at, completed_at, created_at, updated_at"

// CreateJob inserts a dispatchable unit of work with a fresh opaque handle.
// Jobs are born started; workers claim them by queue through the gateway.
func (s *Store) CreateJob(ctx context.Context, job *Job) (*Job, error) {
	if job == nil {
		return nil, errors.New("job is nil")
	}
	if job.Kind != JobKindAcquire && job.Kind != JobKindEncode {
		return nil, fmt.Errorf("unknown job kind %q", job.Kind)
	}
	if job.Queue == "" {
		return nil, errors.New("job queue required")
	}
	handle := job.Handle
	if handle == "" {
		handle = uuid.NewString()
	}
	timestamp := nowStamp()
	res, err := s.db.ExecContext(
		ctx,
		`INSERT INTO jobs (
            handle, kind, run_id, owner_id, queue, status, progress,
            payload_json, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		handle,
		job.Kind,
		job.RunID,
		job.OwnerID,
		job.Queue,
		JobStatusStarted,
		0,
		nullableString(job.PayloadJSON),
		timestamp,
		timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetJob(ctx, id)
}

// GetJob fetches a job by identifier. Returns nil when absent.
func (s *Store) GetJob(ctx context.Context, id int64) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// GetJobByHandle fetches a job by its opaque dispatch handle. Returns nil
// when the handle is unknown.
func (s *Store) GetJobByHandle(ctx context.Context, handle string) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE handle = ?`, handle)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job by handle: %w", err)
	}
	return job, nil
}

// JobsByRun returns a run's jobs in dispatch order.
func (s *Store) JobsByRun(ctx context.Context, runID int64) ([]*Job, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("jobs by run: %w", err)
	}
	defer rows.Close()
	return collectJobs(rows)
}

// ListJobs returns the most recent jobs, newest first.
func (s *Store) ListJobs(ctx context.Context, limit int) ([]*Job, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+jobColumns+` FROM jobs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()
	return collectJobs(rows)
}

// JobUpdate carries a partial progress report from a worker. Result fragments
// are merged into the stored result object key by key so interim reports can
// accumulate.
type JobUpdate struct {
	Status         *JobStatus
	Progress       *int
	ResultFragment map[string]any
	ErrorMessage   *string
}

// UpdateJob applies a worker progress report to a job. Progress is clamped to
// 0-100 and a terminal status stamps completed_at exactly once.
func (s *Store) UpdateJob(ctx context.Context, handle string, update JobUpdate) (*Job, error) {
	job, err := s.GetJobByHandle(ctx, handle)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, nil
	}

	status := job.Status
	if update.Status != nil {
		status = *update.Status
	}
	progress := job.Progress
	if update.Progress != nil {
		progress = *update.Progress
		if progress < 0 {
			progress = 0
		}
		if progress > 100 {
			progress = 100
		}
	}
	errorMessage := job.ErrorMessage
	if update.ErrorMessage != nil {
		errorMessage = *update.ErrorMessage
	}
	resultJSON, err := mergeResultJSON(job.ResultJSON, update.ResultFragment)
	if err != nil {
		return nil, err
	}

	completedAt := job.CompletedAt
	if status.IsTerminal() && completedAt == nil {
		now := time.Now().UTC()
		completedAt = &now
	}

	_, err = s.db.ExecContext(
		ctx,
		`UPDATE jobs
         SET status = ?, progress = ?, result_json = ?, error_message = ?, completed_at = ?, updated_at = ?
         WHERE handle = ?`,
		status,
		progress,
		nullableString(resultJSON),
		nullableString(errorMessage),
		nullableTime(completedAt),
		nowStamp(),
		handle,
	)
	if err != nil {
		return nil, fmt.Errorf("update job: %w", err)
	}
	return s.GetJobByHandle(ctx, handle)
}

// ClaimNextJob hands the oldest unclaimed job on a queue to a worker. The
// claim is a single conditional update so concurrent workers never receive
// the same job. Returns nil when the queue is empty.
func (s *Store) ClaimNextJob(ctx context.Context, queue, workerID string) (*Job, error) {
	if queue == "" {
		return nil, errors.New("queue required")
	}
	if workerID == "" {
		return nil, errors.New("worker id required")
	}
	for {
		row := s.db.QueryRowContext(
			ctx,
			`SELECT id FROM jobs
             WHERE queue = ? AND status = ? AND claimed_by IS NULL
             ORDER BY id LIMIT 1`,
			queue,
			JobStatusStarted,
		)
		var id int64
		err := row.Scan(&id)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("next unclaimed job: %w", err)
		}

		res, err := s.db.ExecContext(
			ctx,
			`UPDATE jobs SET claimed_by = ?, claimed_at = ?, updated_at = ?
             WHERE id = ? AND claimed_by IS NULL`,
			workerID,
			nowStamp(),
			nowStamp(),
			id,
		)
		if err != nil {
			return nil, fmt.Errorf("claim job: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("rows affected: %w", err)
		}
		if affected == 0 {
			// Lost the race for this row; try the next candidate.
			continue
		}
		return s.GetJob(ctx, id)
	}
}

func mergeResultJSON(existing string, fragment map[string]any) (string, error) {
	if len(fragment) == 0 {
		return existing, nil
	}
	merged := map[string]any{}
	if existing != "" {
		if err := json.Unmarshal([]byte(existing), &merged); err != nil {
			return "", fmt.Errorf("decode stored job result: %w", err)
		}
	}
	for key, value := range fragment {
		merged[key] = value
	}
	encoded, err := json.Marshal(merged)
	if err != nil {
		return "", fmt.Errorf("encode job result: %w", err)
	}
	return string(encoded), nil
}

func collectJobs(rows *sql.Rows) ([]*Job, error) {
	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func scanJob(scanner interface{ Scan(dest ...any) error }) (*Job, error) {
	var (
		id           int64
		handle       string
		kind         string
		runID        int64
		ownerID      int64
		queue        string
		status       string
		progress     sql.NullInt64
		payloadJSON  sql.NullString
		resultJSON   sql.NullString
		errorMessage sql.NullString
		claimedBy    sql.NullString
		claimedRaw   sql.NullString
		completedRaw sql.NullString
		createdRaw   string
		updatedRaw   string
	)

	if err := scanner.Scan(
		&id,
		&handle,
		&kind,
		&runID,
		&ownerID,
		&queue,
		&status,
		&progress,
		&payloadJSON,
		&resultJSON,
		&errorMessage,
		&claimedBy,
		&claimedRaw,
		&completedRaw,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	job := &Job{
		ID:           id,
		Handle:       handle,
		Kind:         JobKind(kind),
		RunID:        runID,
		OwnerID:      ownerID,
		Queue:        queue,
		Status:       JobStatus(status),
		Progress:     int(progress.Int64),
		PayloadJSON:  payloadJSON.String,
		ResultJSON:   resultJSON.String,
		ErrorMessage: errorMessage.String,
		ClaimedBy:    claimedBy.String,
	}
	job.ClaimedAt = timePtrFromNull(claimedRaw)
	job.CompletedAt = timePtrFromNull(completedRaw)
	if created, err := parseTimeString(createdRaw); err == nil {
		job.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		job.UpdatedAt = updated
	}
	return job, nil
}
