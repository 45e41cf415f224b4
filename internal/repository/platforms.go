package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/Clark-Hu/watchlist-api/internal/domain"
)

// PlatformsRepository provides persistence helpers for streaming platforms.
type PlatformsRepository struct {
	db querier
}

const platformColumns = `id, name, about, website, created_at, updated_at`

// PlatformParams bundles the writable platform fields.
type PlatformParams struct {
	Name    string
	About   string
	Website string
}

// Create inserts a new platform row and returns the stored entity.
func (r *PlatformsRepository) Create(ctx context.Context, params PlatformParams) (domain.Platform, error) {
	query := fmt.Sprintf(`
        INSERT INTO stream_platforms (id, name, about, website)
        VALUES ($1,$2,$3,$4)
        RETURNING %s
    `, platformColumns)
	row := r.db.QueryRow(ctx, query, uuid.NewString(), params.Name, params.About, params.Website)
	return scanPlatform(row)
}

// GetByID fetches a platform together with the titles it hosts.
func (r *PlatformsRepository) GetByID(ctx context.Context, id string) (domain.Platform, error) {
	query := fmt.Sprintf(`SELECT %s FROM stream_platforms WHERE id = $1`, platformColumns)
	platform, err := scanPlatform(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return domain.Platform{}, notFound(err, "platform", id)
	}

	titles, err := listTitles(ctx, r.db, `t.platform_id = $1`, id)
	if err != nil {
		return domain.Platform{}, err
	}
	platform.Titles = titles
	return platform, nil
}

// List returns every platform ordered by name. Titles are not loaded.
func (r *PlatformsRepository) List(ctx context.Context) ([]domain.Platform, error) {
	query := fmt.Sprintf(`SELECT %s FROM stream_platforms ORDER BY name, id`, platformColumns)
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	platforms := make([]domain.Platform, 0)
	for rows.Next() {
		p, err := scanPlatform(rows)
		if err != nil {
			return nil, err
		}
		platforms = append(platforms, p)
	}
	return platforms, rows.Err()
}

// Update replaces the writable fields of a platform.
func (r *PlatformsRepository) Update(ctx context.Context, id string, params PlatformParams) (domain.Platform, error) {
	query := fmt.Sprintf(`
        UPDATE stream_platforms
        SET name = $2, about = $3, website = $4, updated_at = now()
        WHERE id = $1
        RETURNING %s
    `, platformColumns)
	platform, err := scanPlatform(r.db.QueryRow(ctx, query, id, params.Name, params.About, params.Website))
	if err != nil {
		return domain.Platform{}, notFound(err, "platform", id)
	}
	return platform, nil
}

// Delete removes a platform; its titles and their reviews cascade.
func (r *PlatformsRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM stream_platforms WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("platform %s: %w", id, ErrNotFound)
	}
	return nil
}

func scanPlatform(row pgx.Row) (domain.Platform, error) {
	var p domain.Platform
	err := row.Scan(&p.ID, &p.Name, &p.About, &p.Website, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return domain.Platform{}, err
	}
	return p, nil
}
