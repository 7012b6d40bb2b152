package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const clipColumns = "id, run_id, owner_id, source_url, title, creator, identity_key, media_id, downloaded, duration_seconds, created_at, updated_at"

// CreateClip inserts one source item into a run.
func (s *Store) CreateClip(ctx context.Context, clip *Clip) (*Clip, error) {
	if clip == nil {
		return nil, errors.New("clip is nil")
	}
	if clip.SourceURL == "" {
		return nil, errors.New("clip source url required")
	}
	if clip.IdentityKey == "" {
		return nil, errors.New("clip identity key required")
	}
	timestamp := nowStamp()
	res, err := s.db.ExecContext(
		ctx,
		`INSERT INTO clips (
            run_id, owner_id, source_url, title, creator, identity_key,
            media_id, downloaded, duration_seconds, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		clip.RunID,
		clip.OwnerID,
		clip.SourceURL,
		nullableString(clip.Title),
		nullableString(clip.Creator),
		clip.IdentityKey,
		clip.MediaID,
		boolToInt(clip.Downloaded),
		clip.DurationSeconds,
		timestamp,
		timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert clip: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetClip(ctx, id)
}

// GetClip fetches a clip by identifier. Returns nil when absent.
func (s *Store) GetClip(ctx context.Context, id int64) (*Clip, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+clipColumns+` FROM clips WHERE id = ?`, id)
	clip, err := scanClip(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get clip: %w", err)
	}
	return clip, nil
}

// ClipsByRun returns a run's clips in creation order.
func (s *Store) ClipsByRun(ctx context.Context, runID int64) ([]*Clip, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+clipColumns+` FROM clips WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("clips by run: %w", err)
	}
	defer rows.Close()

	var clips []*Clip
	for rows.Next() {
		clip, err := scanClip(rows)
		if err != nil {
			return nil, err
		}
		clips = append(clips, clip)
	}
	return clips, rows.Err()
}

// MarkClipAcquired records the acquisition outcome reported by a worker.
func (s *Store) MarkClipAcquired(ctx context.Context, id int64, downloaded bool, mediaID *int64, durationSeconds float64) (bool, error) {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE clips SET downloaded = ?, media_id = ?, duration_seconds = ?, updated_at = ? WHERE id = ?`,
		boolToInt(downloaded),
		mediaID,
		durationSeconds,
		nowStamp(),
		id,
	)
	if err != nil {
		return false, fmt.Errorf("mark clip acquired: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

func scanClip(scanner interface{ Scan(dest ...any) error }) (*Clip, error) {
	var (
		id          int64
		runID       int64
		ownerID     int64
		sourceURL   string
		title       sql.NullString
		creator     sql.NullString
		identityKey string
		mediaID     sql.NullInt64
		downloaded  sql.NullInt64
		duration    sql.NullFloat64
		createdRaw  string
		updatedRaw  string
	)

	if err := scanner.Scan(
		&id,
		&runID,
		&ownerID,
		&sourceURL,
		&title,
		&creator,
		&identityKey,
		&mediaID,
		&downloaded,
		&duration,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	clip := &Clip{
		ID:              id,
		RunID:           runID,
		OwnerID:         ownerID,
		SourceURL:       sourceURL,
		Title:           title.String,
		Creator:         creator.String,
		IdentityKey:     identityKey,
		DurationSeconds: duration.Float64,
	}
	if mediaID.Valid {
		value := mediaID.Int64
		clip.MediaID = &value
	}
	if downloaded.Valid {
		clip.Downloaded = downloaded.Int64 != 0
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		clip.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		clip.UpdatedAt = updated
	}
	return clip, nil
}
