package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/Clark-Hu/watchlist-api/internal/domain"
	"github.com/Clark-Hu/watchlist-api/internal/rating"
)

var _ rating.Store = (*Repository)(nil)

// ReviewExists reports whether userID already reviewed titleID. It takes no
// locks.
func (r *Repository) ReviewExists(ctx context.Context, titleID, userID string) (bool, error) {
	return r.Reviews.Exists(ctx, titleID, userID)
}

// GetReview fetches a review outside any transaction.
func (r *Repository) GetReview(ctx context.Context, id string) (domain.Review, error) {
	return r.Reviews.GetByID(ctx, id)
}

// ListReviews returns the reviews of a title matching filter.
func (r *Repository) ListReviews(ctx context.Context, titleID string, filter domain.ReviewFilter) ([]domain.Review, error) {
	return r.Reviews.ListByTitle(ctx, titleID, filter)
}

// WithTitleLock opens a transaction, takes the row lock on the title with
// SELECT ... FOR UPDATE and hands fn a view bound to that transaction.
// Concurrent callers for the same title queue on the lock; LockTimeout bounds
// the wait.
func (r *Repository) WithTitleLock(ctx context.Context, titleID string, fn func(ctx context.Context, tx rating.TitleTx) error) error {
	return r.withTx(ctx, func(tx pgx.Tx) error {
		if r.lockTimeout > 0 {
			// SET does not accept bind parameters.
			stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", r.lockTimeout.Milliseconds())
			if _, err := tx.Exec(ctx, stmt); err != nil {
				return err
			}
		}

		var agg domain.Aggregate
		err := tx.QueryRow(ctx, `
            SELECT rating_sum, number_of_rating
            FROM titles
            WHERE id = $1
            FOR UPDATE
        `, titleID).Scan(&agg.Sum, &agg.Count)
		if err != nil {
			return notFound(err, "title", titleID)
		}

		return fn(ctx, &titleTx{
			tx:      tx,
			titleID: titleID,
			agg:     agg,
			reviews: &ReviewsRepository{db: tx},
		})
	})
}

// titleTx is the rating.TitleTx handed out by WithTitleLock.
type titleTx struct {
	tx      pgx.Tx
	titleID string
	agg     domain.Aggregate
	reviews *ReviewsRepository
}

func (t *titleTx) Aggregate() domain.Aggregate { return t.agg }

func (t *titleTx) SetAggregate(ctx context.Context, agg domain.Aggregate) error {
	_, err := t.tx.Exec(ctx, `
        UPDATE titles
        SET rating_sum = $2, number_of_rating = $3, average_rating = $4, updated_at = now()
        WHERE id = $1
    `, t.titleID, agg.Sum, agg.Count, agg.Average())
	if err != nil {
		return err
	}
	t.agg = agg
	return nil
}

func (t *titleTx) ReviewExists(ctx context.Context, userID string) (bool, error) {
	return t.reviews.Exists(ctx, t.titleID, userID)
}

func (t *titleTx) GetReview(ctx context.Context, id string) (domain.Review, error) {
	review, err := t.reviews.GetByID(ctx, id)
	if err != nil {
		return domain.Review{}, err
	}
	if review.TitleID != t.titleID {
		return domain.Review{}, fmt.Errorf("review %s on title %s: %w", id, t.titleID, ErrNotFound)
	}
	return review, nil
}

func (t *titleTx) InsertReview(ctx context.Context, review domain.Review) (domain.Review, error) {
	review.TitleID = t.titleID
	return t.reviews.Insert(ctx, review)
}

func (t *titleTx) UpdateReview(ctx context.Context, review domain.Review) (domain.Review, error) {
	return t.reviews.Update(ctx, review)
}

func (t *titleTx) DeleteReview(ctx context.Context, id string) error {
	return t.reviews.Delete(ctx, id)
}
