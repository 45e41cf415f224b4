package rating

import (
	"context"

	"github.com/Clark-Hu/watchlist-api/internal/domain"
)

// Store is the persistence boundary the review service relies on.
// Missing entities are reported as domain.ErrNotFound and retryable lock or
// serialization failures as domain.ErrConflict.
type Store interface {
	// ReviewExists reports whether userID already reviewed titleID.
	ReviewExists(ctx context.Context, titleID, userID string) (bool, error)
	GetReview(ctx context.Context, id string) (domain.Review, error)
	// ListReviews fails with domain.ErrNotFound when the title is unknown.
	ListReviews(ctx context.Context, titleID string, filter domain.ReviewFilter) ([]domain.Review, error)
	// WithTitleLock runs fn in a transaction that holds an exclusive lock on
	// the title row. fn's writes commit together when it returns nil and are
	// discarded otherwise.
	WithTitleLock(ctx context.Context, titleID string, fn func(ctx context.Context, tx TitleTx) error) error
}

// TitleTx is the view of one locked title handed to WithTitleLock callbacks.
type TitleTx interface {
	Aggregate() domain.Aggregate
	SetAggregate(ctx context.Context, agg domain.Aggregate) error
	ReviewExists(ctx context.Context, userID string) (bool, error)
	GetReview(ctx context.Context, id string) (domain.Review, error)
	InsertReview(ctx context.Context, review domain.Review) (domain.Review, error)
	UpdateReview(ctx context.Context, review domain.Review) (domain.Review, error)
	DeleteReview(ctx context.Context, id string) error
}
