package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"clipforge/internal/quota"
)

// TierLimits returns the quota limits for an owner. Owners without a tier
// row run unlimited.
func (s *Store) TierLimits(ctx context.Context, ownerID int64) (quota.Limits, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT storage_bytes, render_seconds, max_schedules FROM tiers WHERE owner_id = ?`,
		ownerID,
	)
	var limits quota.Limits
	err := row.Scan(&limits.StorageBytes, &limits.RenderSecondsPerM, &limits.MaxSchedules)
	if errors.Is(err, sql.ErrNoRows) {
		return quota.Limits{
			StorageBytes:      quota.Unlimited,
			RenderSecondsPerM: quota.Unlimited,
			MaxSchedules:      quota.Unlimited,
		}, nil
	}
	if err != nil {
		return quota.Limits{}, fmt.Errorf("tier limits: %w", err)
	}
	return limits, nil
}

// SetTierLimits installs or replaces an owner's quota tier.
func (s *Store) SetTierLimits(ctx context.Context, ownerID int64, limits quota.Limits) error {
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO tiers (owner_id, storage_bytes, render_seconds, max_schedules)
         VALUES (?, ?, ?, ?)
         ON CONFLICT(owner_id) DO UPDATE SET
             storage_bytes = excluded.storage_bytes,
             render_seconds = excluded.render_seconds,
             max_schedules = excluded.max_schedules`,
		ownerID,
		limits.StorageBytes,
		limits.RenderSecondsPerM,
		limits.MaxSchedules,
	)
	if err != nil {
		return fmt.Errorf("set tier limits: %w", err)
	}
	return nil
}

// RecordRenderUsage appends encoded output seconds to the owner's monthly
// ledger. Period is "2006-01" in UTC.
func (s *Store) RecordRenderUsage(ctx context.Context, ownerID, runID int64, seconds int64, period string) error {
	if period == "" {
		return errors.New("usage period required")
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO render_usage (owner_id, run_id, seconds, period, created_at)
         VALUES (?, ?, ?, ?, ?)`,
		ownerID,
		runID,
		seconds,
		period,
		nowStamp(),
	)
	if err != nil {
		return fmt.Errorf("record render usage: %w", err)
	}
	return nil
}

// RenderSecondsUsed sums the owner's ledger entries for one period.
func (s *Store) RenderSecondsUsed(ctx context.Context, ownerID int64, period string) (int64, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT COALESCE(SUM(seconds), 0) FROM render_usage WHERE owner_id = ? AND period = ?`,
		ownerID,
		period,
	)
	var total int64
	if err := row.Scan(&total); err != nil {
		return 0, fmt.Errorf("render seconds used: %w", err)
	}
	return total, nil
}
