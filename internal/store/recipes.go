package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const recipeColumns = "id, owner_id, name, source_json, output_json, clip_limit, library_fallback, min_duration, max_duration, include_tags, exclude_tags, last_run_at, created_at, updated_at"

// CreateRecipe inserts a new compilation recipe for an owner.
func (s *Store) CreateRecipe(ctx context.Context, recipe *Recipe) (*Recipe, error) {
	if recipe == nil {
		return nil, errors.New("recipe is nil")
	}
	if err := recipe.Source.Validate(); err != nil {
		return nil, fmt.Errorf("create recipe: %w", err)
	}
	name := normalizeName(recipe.Name)
	if name == "" {
		return nil, errors.New("recipe name required")
	}
	sourceJSON, err := marshalSource(recipe.Source)
	if err != nil {
		return nil, err
	}
	output := recipe.Output
	if output == (OutputSettings{}) {
		output = DefaultOutputSettings()
	}
	outputJSON, err := marshalOutput(output)
	if err != nil {
		return nil, err
	}
	clipLimit := recipe.ClipLimit
	if clipLimit <= 0 {
		clipLimit = 10
	}

	timestamp := nowStamp()
	res, err := s.db.ExecContext(
		ctx,
		`INSERT INTO recipes (
            owner_id, name, source_json, output_json, clip_limit, library_fallback,
            min_duration, max_duration, include_tags, exclude_tags, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		recipe.OwnerID,
		name,
		sourceJSON,
		outputJSON,
		clipLimit,
		boolToInt(recipe.LibraryFallback),
		nullableFloat(recipe.MinDuration),
		nullableFloat(recipe.MaxDuration),
		nullableString(joinTags(recipe.IncludeTags)),
		nullableString(joinTags(recipe.ExcludeTags)),
		timestamp,
		timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert recipe: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetRecipe(ctx, id)
}

// GetRecipe fetches a recipe by identifier. Returns nil when absent.
func (s *Store) GetRecipe(ctx context.Context, id int64) (*Recipe, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+recipeColumns+` FROM recipes WHERE id = ?`, id)
	recipe, err := scanRecipe(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get recipe: %w", err)
	}
	return recipe, nil
}

// ListRecipes returns all recipes, optionally restricted to one owner.
func (s *Store) ListRecipes(ctx context.Context, ownerID int64) ([]*Recipe, error) {
	query := `SELECT ` + recipeColumns + ` FROM recipes ORDER BY id`
	args := []any{}
	if ownerID > 0 {
		query = `SELECT ` + recipeColumns + ` FROM recipes WHERE owner_id = ? ORDER BY id`
		args = append(args, ownerID)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list recipes: %w", err)
	}
	defer rows.Close()

	var recipes []*Recipe
	for rows.Next() {
		recipe, err := scanRecipe(rows)
		if err != nil {
			return nil, err
		}
		recipes = append(recipes, recipe)
	}
	return recipes, rows.Err()
}

// TouchRecipeLastRun stamps the recipe's last run time.
func (s *Store) TouchRecipeLastRun(ctx context.Context, id int64, at time.Time) error {
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE recipes SET last_run_at = ?, updated_at = ? WHERE id = ?`,
		at.UTC().Format(time.RFC3339Nano),
		nowStamp(),
		id,
	)
	if err != nil {
		return fmt.Errorf("touch recipe last run: %w", err)
	}
	return nil
}

func scanRecipe(scanner interface{ Scan(dest ...any) error }) (*Recipe, error) {
	var (
		id          int64
		ownerID     int64
		name        string
		sourceJSON  string
		outputJSON  string
		clipLimit   int
		fallback    sql.NullInt64
		minDur      sql.NullFloat64
		maxDur      sql.NullFloat64
		includeTags sql.NullString
		excludeTags sql.NullString
		lastRunRaw  sql.NullString
		createdRaw  string
		updatedRaw  string
	)

	if err := scanner.Scan(
		&id,
		&ownerID,
		&name,
		&sourceJSON,
		&outputJSON,
		&clipLimit,
		&fallback,
		&minDur,
		&maxDur,
		&includeTags,
		&excludeTags,
		&lastRunRaw,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	source, err := unmarshalSource(sourceJSON)
	if err != nil {
		return nil, fmt.Errorf("recipe %d: %w", id, err)
	}
	output, err := unmarshalOutput(outputJSON)
	if err != nil {
		return nil, fmt.Errorf("recipe %d: %w", id, err)
	}

	recipe := &Recipe{
		ID:          id,
		OwnerID:     ownerID,
		Name:        name,
		Source:      source,
		Output:      output,
		ClipLimit:   clipLimit,
		MinDuration: minDur.Float64,
		MaxDuration: maxDur.Float64,
		IncludeTags: splitTags(includeTags.String),
		ExcludeTags: splitTags(excludeTags.String),
	}
	if fallback.Valid {
		recipe.LibraryFallback = fallback.Int64 != 0
	}
	recipe.LastRunAt = timePtrFromNull(lastRunRaw)
	if created, err := parseTimeString(createdRaw); err == nil {
		recipe.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		recipe.UpdatedAt = updated
	}
	return recipe, nil
}
