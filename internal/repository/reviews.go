package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/Clark-Hu/watchlist-api/internal/domain"
)

// ReviewsRepository provides persistence helpers for reviews. Writes that
// affect a title's aggregate go through Repository.WithTitleLock, which
// binds a ReviewsRepository to the locking transaction.
type ReviewsRepository struct {
	db querier
}

const reviewColumns = `id, user_id, title_id, rating, description, active, created_at, updated_at`

// Exists reports whether userID already has a review on titleID.
func (r *ReviewsRepository) Exists(ctx context.Context, titleID, userID string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `
        SELECT EXISTS (SELECT 1 FROM reviews WHERE title_id = $1 AND user_id = $2)
    `, titleID, userID).Scan(&exists)
	return exists, err
}

// GetByID fetches a review.
func (r *ReviewsRepository) GetByID(ctx context.Context, id string) (domain.Review, error) {
	query := fmt.Sprintf(`SELECT %s FROM reviews WHERE id = $1`, reviewColumns)
	review, err := scanReview(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return domain.Review{}, notFound(err, "review", id)
	}
	return review, nil
}

// ListByTitle returns the reviews of titleID that match filter, newest first.
// An unknown title yields ErrNotFound rather than an empty list.
func (r *ReviewsRepository) ListByTitle(ctx context.Context, titleID string, filter domain.ReviewFilter) ([]domain.Review, error) {
	var known bool
	if err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM titles WHERE id = $1)`, titleID).Scan(&known); err != nil {
		return nil, err
	}
	if !known {
		return nil, fmt.Errorf("title %s: %w", titleID, ErrNotFound)
	}

	clauses := []string{"title_id = $1"}
	args := []any{titleID}
	if filter.UserID != nil {
		args = append(args, *filter.UserID)
		clauses = append(clauses, fmt.Sprintf("user_id = $%d", len(args)))
	}
	if filter.Active != nil {
		args = append(args, *filter.Active)
		clauses = append(clauses, fmt.Sprintf("active = $%d", len(args)))
	}

	query := fmt.Sprintf(`
        SELECT %s FROM reviews
        WHERE %s
        ORDER BY created_at DESC, id DESC
    `, reviewColumns, strings.Join(clauses, " AND "))
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	reviews := make([]domain.Review, 0)
	for rows.Next() {
		review, err := scanReview(rows)
		if err != nil {
			return nil, err
		}
		reviews = append(reviews, review)
	}
	return reviews, rows.Err()
}

// Insert stores a new review row.
func (r *ReviewsRepository) Insert(ctx context.Context, review domain.Review) (domain.Review, error) {
	query := fmt.Sprintf(`
        INSERT INTO reviews (id, user_id, title_id, rating, description, active, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
        RETURNING %s
    `, reviewColumns)
	row := r.db.QueryRow(ctx, query,
		review.ID,
		review.UserID,
		review.TitleID,
		review.Rating,
		review.Description,
		review.Active,
		review.CreatedAt,
		review.UpdatedAt,
	)
	return scanReview(row)
}

// Update persists rating, description, active and updated_at.
func (r *ReviewsRepository) Update(ctx context.Context, review domain.Review) (domain.Review, error) {
	query := fmt.Sprintf(`
        UPDATE reviews
        SET rating = $2, description = $3, active = $4, updated_at = $5
        WHERE id = $1
        RETURNING %s
    `, reviewColumns)
	row := r.db.QueryRow(ctx, query, review.ID, review.Rating, review.Description, review.Active, review.UpdatedAt)
	updated, err := scanReview(row)
	if err != nil {
		return domain.Review{}, notFound(err, "review", review.ID)
	}
	return updated, nil
}

// Delete removes a review row.
func (r *ReviewsRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM reviews WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("review %s: %w", id, ErrNotFound)
	}
	return nil
}

func scanReview(row pgx.Row) (domain.Review, error) {
	var (
		rv     domain.Review
		rating int16
	)
	err := row.Scan(
		&rv.ID,
		&rv.UserID,
		&rv.TitleID,
		&rating,
		&rv.Description,
		&rv.Active,
		&rv.CreatedAt,
		&rv.UpdatedAt,
	)
	if err != nil {
		return domain.Review{}, err
	}
	rv.Rating = int(rating)
	rv.CreatedAt = rv.CreatedAt.UTC()
	rv.UpdatedAt = rv.UpdatedAt.UTC()
	return rv, nil
}
