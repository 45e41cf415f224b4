package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/Clark-Hu/watchlist-api/internal/domain"
)

// TitlesRepository provides persistence helpers for watchlist titles.
// The rating aggregate columns are written only under the title lock,
// see Repository.WithTitleLock.
type TitlesRepository struct {
	db querier
}

const codeForeignKeyViolation = "23503"

const titleColumns = `
    t.id,
    t.title,
    t.storyline,
    t.platform_id,
    p.name,
    t.active,
    t.average_rating,
    t.number_of_rating,
    t.created_at,
    t.updated_at
`

// TitleParams bundles the writable title metadata.
type TitleParams struct {
	Name       string
	Storyline  string
	PlatformID string
	Active     bool
}

// Create inserts a new title with an empty aggregate.
func (r *TitlesRepository) Create(ctx context.Context, params TitleParams) (domain.Title, error) {
	id := uuid.NewString()
	_, err := r.db.Exec(ctx, `
        INSERT INTO titles (id, title, storyline, platform_id, active)
        VALUES ($1,$2,$3,$4,$5)
    `, id, params.Name, params.Storyline, params.PlatformID, params.Active)
	if err != nil {
		return domain.Title{}, platformMissing(err, params.PlatformID)
	}
	return r.GetByID(ctx, id)
}

// GetByID fetches a title by its identifier.
func (r *TitlesRepository) GetByID(ctx context.Context, id string) (domain.Title, error) {
	titles, err := listTitles(ctx, r.db, `t.id = $1`, id)
	if err != nil {
		return domain.Title{}, err
	}
	if len(titles) == 0 {
		return domain.Title{}, fmt.Errorf("title %s: %w", id, ErrNotFound)
	}
	return titles[0], nil
}

// UpdateMetadata replaces the descriptive fields of a title. The aggregate
// is left untouched.
func (r *TitlesRepository) UpdateMetadata(ctx context.Context, id string, params TitleParams) (domain.Title, error) {
	tag, err := r.db.Exec(ctx, `
        UPDATE titles
        SET title = $2, storyline = $3, platform_id = $4, active = $5, updated_at = now()
        WHERE id = $1
    `, id, params.Name, params.Storyline, params.PlatformID, params.Active)
	if err != nil {
		return domain.Title{}, platformMissing(err, params.PlatformID)
	}
	if tag.RowsAffected() == 0 {
		return domain.Title{}, fmt.Errorf("title %s: %w", id, ErrNotFound)
	}
	return r.GetByID(ctx, id)
}

// Delete removes a title; its reviews cascade.
func (r *TitlesRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM titles WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("title %s: %w", id, ErrNotFound)
	}
	return nil
}

func listTitles(ctx context.Context, db querier, where string, args ...any) ([]domain.Title, error) {
	query := fmt.Sprintf(`
        SELECT %s
        FROM titles t
        JOIN stream_platforms p ON p.id = t.platform_id
        WHERE %s
        ORDER BY t.created_at DESC, t.id DESC
    `, titleColumns, where)
	rows, err := db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	titles := make([]domain.Title, 0)
	for rows.Next() {
		title, err := scanTitle(rows)
		if err != nil {
			return nil, err
		}
		titles = append(titles, title)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return titles, nil
}

func scanTitle(row pgx.Row) (domain.Title, error) {
	var t domain.Title
	err := row.Scan(
		&t.ID,
		&t.Name,
		&t.Storyline,
		&t.PlatformID,
		&t.PlatformName,
		&t.Active,
		&t.AverageRating,
		&t.NumberOfRating,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		return domain.Title{}, err
	}
	return t, nil
}

func platformMissing(err error, platformID string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == codeForeignKeyViolation {
		return fmt.Errorf("platform %s: %w", platformID, ErrNotFound)
	}
	return err
}
