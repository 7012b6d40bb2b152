package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const mediaColumns = "id, owner_id, kind, storage_path, size_bytes, duration_seconds, identity_key, source_url, created_at"

// CreateMedia inserts a produced artifact record.
func (s *Store) CreateMedia(ctx context.Context, media *Media) (*Media, error) {
	if media == nil {
		return nil, errors.New("media is nil")
	}
	if media.StoragePath == "" {
		return nil, errors.New("media storage path required")
	}
	res, err := s.db.ExecContext(
		ctx,
		`INSERT INTO media (
            owner_id, kind, storage_path, size_bytes, duration_seconds,
            identity_key, source_url, created_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		media.OwnerID,
		media.Kind,
		media.StoragePath,
		media.SizeBytes,
		media.DurationSeconds,
		nullableString(media.IdentityKey),
		nullableString(media.SourceURL),
		nowStamp(),
	)
	if err != nil {
		return nil, fmt.Errorf("insert media: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetMedia(ctx, id)
}

// GetMedia fetches a media record by identifier. Returns nil when absent.
func (s *Store) GetMedia(ctx context.Context, id int64) (*Media, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+mediaColumns+` FROM media WHERE id = ?`, id)
	media, err := scanMedia(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get media: %w", err)
	}
	return media, nil
}

// FindMediaByIdentity returns the newest media record matching an owner and
// reuse identity key. Callers must still verify the backing file exists
// before reporting the record as reusable.
func (s *Store) FindMediaByIdentity(ctx context.Context, ownerID int64, identityKey string) (*Media, error) {
	if identityKey == "" {
		return nil, nil
	}
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+mediaColumns+` FROM media WHERE owner_id = ? AND identity_key = ? ORDER BY id DESC LIMIT 1`,
		ownerID,
		identityKey,
	)
	media, err := scanMedia(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find media by identity: %w", err)
	}
	return media, nil
}

// RecentClipsForOwner returns the owner's newest clip-kind media, filtered by
// optional duration bounds and title substrings; used by the library
// fallback when a live source listing is empty.
func (s *Store) RecentClipsForOwner(ctx context.Context, ownerID int64, limit int, minDuration, maxDuration float64, includeTags, excludeTags []string) ([]*Media, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+mediaColumns+` FROM media WHERE owner_id = ? AND kind = ? ORDER BY id DESC`,
		ownerID,
		MediaKindClip,
	)
	if err != nil {
		return nil, fmt.Errorf("recent clips: %w", err)
	}
	defer rows.Close()

	var selected []*Media
	for rows.Next() {
		media, err := scanMedia(rows)
		if err != nil {
			return nil, err
		}
		if minDuration > 0 && media.DurationSeconds < minDuration {
			continue
		}
		if maxDuration > 0 && media.DurationSeconds > maxDuration {
			continue
		}
		if !matchesTags(media.StoragePath, media.SourceURL, includeTags, excludeTags) {
			continue
		}
		selected = append(selected, media)
		if len(selected) >= limit {
			break
		}
	}
	return selected, rows.Err()
}

// StorageBytesUsed sums the owner's stored artifact sizes.
func (s *Store) StorageBytesUsed(ctx context.Context, ownerID int64) (int64, error) {
	row := s.db.QueryRowContext(ctx, `SELECT COALESCE(SUM(size_bytes), 0) FROM media WHERE owner_id = ?`, ownerID)
	var total int64
	if err := row.Scan(&total); err != nil {
		return 0, fmt.Errorf("storage bytes used: %w", err)
	}
	return total, nil
}

func matchesTags(storagePath, sourceURL string, includeTags, excludeTags []string) bool {
	haystack := storagePath + " " + sourceURL
	for _, tag := range excludeTags {
		if tag != "" && containsFold(haystack, tag) {
			return false
		}
	}
	if len(includeTags) == 0 {
		return true
	}
	for _, tag := range includeTags {
		if tag != "" && containsFold(haystack, tag) {
			return true
		}
	}
	return false
}

func scanMedia(scanner interface{ Scan(dest ...any) error }) (*Media, error) {
	var (
		id          int64
		ownerID     int64
		kind        string
		storagePath string
		sizeBytes   sql.NullInt64
		duration    sql.NullFloat64
		identityKey sql.NullString
		sourceURL   sql.NullString
		createdRaw  string
	)

	if err := scanner.Scan(
		&id,
		&ownerID,
		&kind,
		&storagePath,
		&sizeBytes,
		&duration,
		&identityKey,
		&sourceURL,
		&createdRaw,
	); err != nil {
		return nil, err
	}

	media := &Media{
		ID:              id,
		OwnerID:         ownerID,
		Kind:            MediaKind(kind),
		StoragePath:     storagePath,
		SizeBytes:       sizeBytes.Int64,
		DurationSeconds: duration.Float64,
		IdentityKey:     identityKey.String,
		SourceURL:       sourceURL.String,
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		media.CreatedAt = created
	}
	return media, nil
}
