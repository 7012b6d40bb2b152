package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const scheduleColumns = "id, recipe_id, schedule_type, time_of_day, weekday, month_day, run_at, timezone, enabled, next_trigger_at, last_triggered_at, created_at, updated_at"

// CreateSchedule inserts a recurrence rule bound to a recipe.
func (s *Store) CreateSchedule(ctx context.Context, sched *Schedule) (*Schedule, error) {
	if sched == nil {
		return nil, errors.New("schedule is nil")
	}
	if _, ok := ParseScheduleType(string(sched.Type)); !ok {
		return nil, fmt.Errorf("unknown schedule type %q", sched.Type)
	}
	// One-shots carry their instant in run_at; time_of_day only drives the
	// recurring types.
	if sched.Type != ScheduleOnce {
		if _, err := time.Parse("15:04", sched.TimeOfDay); err != nil {
			return nil, fmt.Errorf("time of day %q: %w", sched.TimeOfDay, err)
		}
	}
	if sched.Type == ScheduleWeekly && (sched.Weekday < 0 || sched.Weekday > 6) {
		return nil, fmt.Errorf("weekday %d out of range", sched.Weekday)
	}
	if sched.Type == ScheduleMonthly && (sched.MonthDay < 1 || sched.MonthDay > 31) {
		return nil, fmt.Errorf("month day %d out of range", sched.MonthDay)
	}
	if sched.Type == ScheduleOnce && sched.RunAt == nil {
		return nil, errors.New("one-shot schedule requires a run time")
	}
	tz := sched.Timezone
	if tz == "" {
		tz = "UTC"
	}

	timestamp := nowStamp()
	res, err := s.db.ExecContext(
		ctx,
		`INSERT INTO schedules (
            recipe_id, schedule_type, time_of_day, weekday, month_day, run_at, timezone,
            enabled, next_trigger_at, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sched.RecipeID,
		sched.Type,
		sched.TimeOfDay,
		sched.Weekday,
		sched.MonthDay,
		nullableTime(sched.RunAt),
		tz,
		boolToInt(sched.Enabled),
		nullableTime(sched.NextTriggerAt),
		timestamp,
		timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert schedule: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetSchedule(ctx, id)
}

// GetSchedule fetches a schedule by identifier. Returns nil when absent.
func (s *Store) GetSchedule(ctx context.Context, id int64) (*Schedule, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+scheduleColumns+` FROM schedules WHERE id = ?`, id)
	sched, err := scanSchedule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get schedule: %w", err)
	}
	return sched, nil
}

// EnabledSchedules returns enabled schedules in ascending id order, the order
// the due-task scanner walks them in.
func (s *Store) EnabledSchedules(ctx context.Context) ([]*Schedule, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+scheduleColumns+` FROM schedules WHERE enabled = 1 ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list enabled schedules: %w", err)
	}
	defer rows.Close()

	var schedules []*Schedule
	for rows.Next() {
		sched, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		schedules = append(schedules, sched)
	}
	return schedules, rows.Err()
}

// ListSchedules returns all schedules in id order.
func (s *Store) ListSchedules(ctx context.Context) ([]*Schedule, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+scheduleColumns+` FROM schedules ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list schedules: %w", err)
	}
	defer rows.Close()

	var schedules []*Schedule
	for rows.Next() {
		sched, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		schedules = append(schedules, sched)
	}
	return schedules, rows.Err()
}

// UpdateSchedule persists trigger bookkeeping and the enabled flag.
func (s *Store) UpdateSchedule(ctx context.Context, sched *Schedule) error {
	if sched == nil {
		return errors.New("schedule is nil")
	}
	sched.UpdatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE schedules
         SET enabled = ?, next_trigger_at = ?, last_triggered_at = ?, updated_at = ?
         WHERE id = ?`,
		boolToInt(sched.Enabled),
		nullableTime(sched.NextTriggerAt),
		nullableTime(sched.LastTriggeredAt),
		sched.UpdatedAt.Format(time.RFC3339Nano),
		sched.ID,
	)
	if err != nil {
		return fmt.Errorf("update schedule: %w", err)
	}
	return nil
}

// SetScheduleEnabled flips the enabled flag; disabling clears the next
// trigger so a later re-enable recomputes it.
func (s *Store) SetScheduleEnabled(ctx context.Context, id int64, enabled bool) error {
	query := `UPDATE schedules SET enabled = ?, updated_at = ? WHERE id = ?`
	if !enabled {
		query = `UPDATE schedules SET enabled = ?, next_trigger_at = NULL, updated_at = ? WHERE id = ?`
	}
	_, err := s.db.ExecContext(ctx, query, boolToInt(enabled), nowStamp(), id)
	if err != nil {
		return fmt.Errorf("set schedule enabled: %w", err)
	}
	return nil
}

// ClaimScheduleTrigger advances a due schedule's trigger bookkeeping. The
// update only applies while the stored next trigger still matches the value
// the caller observed, so two scanners racing over the same occurrence fire
// it exactly once.
func (s *Store) ClaimScheduleTrigger(ctx context.Context, id int64, observed time.Time, next *time.Time, firedAt time.Time) (bool, error) {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE schedules
         SET next_trigger_at = ?, last_triggered_at = ?, updated_at = ?
         WHERE id = ? AND next_trigger_at = ?`,
		nullableTime(next),
		firedAt.UTC().Format(time.RFC3339Nano),
		nowStamp(),
		id,
		observed.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return false, fmt.Errorf("claim schedule trigger: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim schedule trigger: %w", err)
	}
	return affected > 0, nil
}

// CountEnabledSchedulesForOwner returns the owner's live schedule count for
// tier admission.
func (s *Store) CountEnabledSchedulesForOwner(ctx context.Context, ownerID int64) (int64, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT COUNT(1) FROM schedules s JOIN recipes r ON r.id = s.recipe_id
         WHERE s.enabled = 1 AND r.owner_id = ?`,
		ownerID,
	)
	var count int64
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("count enabled schedules: %w", err)
	}
	return count, nil
}

func scanSchedule(scanner interface{ Scan(dest ...any) error }) (*Schedule, error) {
	var (
		id           int64
		recipeID     int64
		scheduleType string
		timeOfDay    string
		weekday      sql.NullInt64
		monthDay     sql.NullInt64
		runRaw       sql.NullString
		timezone     string
		enabled      sql.NullInt64
		nextRaw      sql.NullString
		lastRaw      sql.NullString
		createdRaw   string
		updatedRaw   string
	)

	if err := scanner.Scan(
		&id,
		&recipeID,
		&scheduleType,
		&timeOfDay,
		&weekday,
		&monthDay,
		&runRaw,
		&timezone,
		&enabled,
		&nextRaw,
		&lastRaw,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	sched := &Schedule{
		ID:        id,
		RecipeID:  recipeID,
		Type:      ScheduleType(scheduleType),
		TimeOfDay: timeOfDay,
		Weekday:   int(weekday.Int64),
		MonthDay:  int(monthDay.Int64),
		Timezone:  timezone,
	}
	if enabled.Valid {
		sched.Enabled = enabled.Int64 != 0
	}
	sched.RunAt = timePtrFromNull(runRaw)
	sched.NextTriggerAt = timePtrFromNull(nextRaw)
	sched.LastTriggeredAt = timePtrFromNull(lastRaw)
	if created, err := parseTimeString(createdRaw); err == nil {
		sched.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		sched.UpdatedAt = updated
	}
	return sched, nil
}
