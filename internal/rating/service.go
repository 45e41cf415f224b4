// Package rating owns review writes and the per-title rating aggregate.
//
// Every write that changes a title's aggregate runs inside Store.WithTitleLock,
// so the read-modify-write of (rating_sum, number_of_rating) is serialized per
// title and commits together with the review row it accounts for.
package rating

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Clark-Hu/watchlist-api/internal/domain"
	"github.com/Clark-Hu/watchlist-api/internal/metrics"
	"github.com/Clark-Hu/watchlist-api/internal/validation"
)

const (
	defaultMaxRetries   = 3
	defaultRetryBackoff = 20 * time.Millisecond
)

// Options tunes a Service. Zero values fall back to defaults.
type Options struct {
	// MaxRetries bounds how many times a conflicting transaction is re-run.
	// Negative disables retries.
	MaxRetries   int
	RetryBackoff time.Duration
	Logger       *zerolog.Logger
	Now          func() time.Time
	NewID        func() string
}

// Service implements review creation, update and deletion on top of a Store.
type Service struct {
	store      Store
	maxRetries int
	backoff    time.Duration
	logger     zerolog.Logger
	now        func() time.Time
	newID      func() string
}

// SubmitParams is the input of SubmitReview.
type SubmitParams struct {
	TitleID     string  `json:"title_id" validate:"required"`
	UserID      string  `json:"user_id" validate:"required"`
	Rating      int     `json:"rating" validate:"required,min=1,max=5"`
	Description *string `json:"description" validate:"omitempty,max=200"`
}

// UpdateParams is the input of UpdateReview. Nil fields are left unchanged.
type UpdateParams struct {
	ReviewID    string  `json:"review_id" validate:"required"`
	UserID      string  `json:"user_id" validate:"required"`
	Rating      *int    `json:"rating" validate:"omitempty,min=1,max=5"`
	Description *string `json:"description" validate:"omitempty,max=200"`
	Active      *bool   `json:"active"`
}

// NewService constructs a Service backed by store.
func NewService(store Store, opts Options) *Service {
	s := &Service{
		store:      store,
		maxRetries: opts.MaxRetries,
		backoff:    opts.RetryBackoff,
		logger:     zerolog.Nop(),
		now:        opts.Now,
		newID:      opts.NewID,
	}
	if s.maxRetries == 0 {
		s.maxRetries = defaultMaxRetries
	} else if s.maxRetries < 0 {
		s.maxRetries = 0
	}
	if s.backoff <= 0 {
		s.backoff = defaultRetryBackoff
	}
	if opts.Logger != nil {
		s.logger = opts.Logger.With().Str("component", "rating").Logger()
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	if s.newID == nil {
		s.newID = func() string { return uuid.NewString() }
	}
	return s
}

// Exists reports whether userID has already reviewed titleID. It never writes.
func (s *Service) Exists(ctx context.Context, titleID, userID string) (bool, error) {
	return s.store.ReviewExists(ctx, titleID, userID)
}

// GetReview returns a single review.
func (s *Service) GetReview(ctx context.Context, id string) (domain.Review, error) {
	return s.store.GetReview(ctx, id)
}

// ListReviews returns a title's reviews matching filter.
func (s *Service) ListReviews(ctx context.Context, titleID string, filter domain.ReviewFilter) ([]domain.Review, error) {
	return s.store.ListReviews(ctx, titleID, filter)
}

// SubmitReview records a new review and folds its rating into the title's
// aggregate. A user may review a title only once; a second attempt fails with
// ErrDuplicateReview and leaves the aggregate untouched.
func (s *Service) SubmitReview(ctx context.Context, params SubmitParams) (domain.Review, error) {
	start := time.Now()
	review, err := s.submitReview(ctx, params)
	s.observe("submit", err, start)
	return review, err
}

func (s *Service) submitReview(ctx context.Context, params SubmitParams) (domain.Review, error) {
	if err := validation.Struct(params); err != nil {
		return domain.Review{}, err
	}

	// Lock-free fast path; repeated under the title lock below.
	exists, err := s.store.ReviewExists(ctx, params.TitleID, params.UserID)
	if err != nil {
		return domain.Review{}, fmt.Errorf("check existing review: %w", err)
	}
	if exists {
		return domain.Review{}, ErrDuplicateReview
	}

	var created domain.Review
	err = s.withRetry(ctx, "submit", func() error {
		return s.store.WithTitleLock(ctx, params.TitleID, func(ctx context.Context, tx TitleTx) error {
			exists, err := tx.ReviewExists(ctx, params.UserID)
			if err != nil {
				return fmt.Errorf("check existing review: %w", err)
			}
			if exists {
				return ErrDuplicateReview
			}

			if err := tx.SetAggregate(ctx, tx.Aggregate().Add(params.Rating)); err != nil {
				return fmt.Errorf("update aggregate: %w", err)
			}

			now := s.now()
			created, err = tx.InsertReview(ctx, domain.Review{
				ID:          s.newID(),
				UserID:      params.UserID,
				TitleID:     params.TitleID,
				Rating:      params.Rating,
				Description: params.Description,
				Active:      true,
				CreatedAt:   now,
				UpdatedAt:   now,
			})
			if err != nil {
				return fmt.Errorf("insert review: %w", err)
			}
			return nil
		})
	})
	if err != nil {
		return domain.Review{}, err
	}

	s.logger.Info().
		Str("title_id", created.TitleID).
		Str("user_id", created.UserID).
		Str("review_id", created.ID).
		Int("rating", created.Rating).
		Msg("review submitted")
	return created, nil
}

// UpdateReview changes the author's own review. Rating and active changes are
// reflected in the title aggregate in the same transaction.
func (s *Service) UpdateReview(ctx context.Context, params UpdateParams) (domain.Review, error) {
	start := time.Now()
	review, err := s.updateReview(ctx, params)
	s.observe("update", err, start)
	return review, err
}

func (s *Service) updateReview(ctx context.Context, params UpdateParams) (domain.Review, error) {
	if err := validation.Struct(params); err != nil {
		return domain.Review{}, err
	}

	current, err := s.store.GetReview(ctx, params.ReviewID)
	if err != nil {
		return domain.Review{}, err
	}
	if current.UserID != params.UserID {
		return domain.Review{}, ErrForbidden
	}

	var updated domain.Review
	err = s.withRetry(ctx, "update", func() error {
		return s.store.WithTitleLock(ctx, current.TitleID, func(ctx context.Context, tx TitleTx) error {
			before, err := tx.GetReview(ctx, params.ReviewID)
			if err != nil {
				return err
			}
			if before.UserID != params.UserID {
				return ErrForbidden
			}

			after := before
			if params.Rating != nil {
				after.Rating = *params.Rating
			}
			if params.Description != nil {
				after.Description = params.Description
			}
			if params.Active != nil {
				after.Active = *params.Active
			}
			after.UpdatedAt = s.now()

			agg := adjustAggregate(tx.Aggregate(), before, after)
			if agg != tx.Aggregate() {
				if err := tx.SetAggregate(ctx, agg); err != nil {
					return fmt.Errorf("update aggregate: %w", err)
				}
			}

			updated, err = tx.UpdateReview(ctx, after)
			if err != nil {
				return fmt.Errorf("update review: %w", err)
			}
			return nil
		})
	})
	if err != nil {
		return domain.Review{}, err
	}
	return updated, nil
}

// DeleteReview removes the author's own review and its contribution to the
// aggregate.
func (s *Service) DeleteReview(ctx context.Context, reviewID, userID string) error {
	start := time.Now()
	err := s.deleteReview(ctx, reviewID, userID)
	s.observe("delete", err, start)
	return err
}

func (s *Service) deleteReview(ctx context.Context, reviewID, userID string) error {
	current, err := s.store.GetReview(ctx, reviewID)
	if err != nil {
		return err
	}
	if current.UserID != userID {
		return ErrForbidden
	}

	return s.withRetry(ctx, "delete", func() error {
		return s.store.WithTitleLock(ctx, current.TitleID, func(ctx context.Context, tx TitleTx) error {
			review, err := tx.GetReview(ctx, reviewID)
			if err != nil {
				return err
			}
			if review.Active {
				if err := tx.SetAggregate(ctx, tx.Aggregate().Remove(review.Rating)); err != nil {
					return fmt.Errorf("update aggregate: %w", err)
				}
			}
			if err := tx.DeleteReview(ctx, reviewID); err != nil {
				return fmt.Errorf("delete review: %w", err)
			}
			return nil
		})
	})
}

// adjustAggregate accounts for a review moving from before to after. Only
// active reviews contribute to the aggregate.
func adjustAggregate(agg domain.Aggregate, before, after domain.Review) domain.Aggregate {
	switch {
	case before.Active && after.Active:
		if before.Rating == after.Rating {
			return agg
		}
		return agg.Replace(before.Rating, after.Rating)
	case before.Active:
		return agg.Remove(before.Rating)
	case after.Active:
		return agg.Add(after.Rating)
	default:
		return agg
	}
}

// withRetry re-runs fn while it fails with domain.ErrConflict, backing off
// between attempts, and gives up with ErrConcurrency after maxRetries.
func (s *Service) withRetry(ctx context.Context, op string, fn func() error) error {
	backoff := s.backoff
	for attempt := 1; ; attempt++ {
		err := fn()
		if err == nil || !errors.Is(err, domain.ErrConflict) {
			return err
		}
		if attempt > s.maxRetries {
			s.logger.Warn().Err(err).Str("operation", op).Int("attempts", attempt).Msg("giving up after conflicts")
			return fmt.Errorf("%w: %w", ErrConcurrency, err)
		}

		metrics.ReviewConflictRetries.WithLabelValues(op).Inc()
		s.logger.Debug().Err(err).Str("operation", op).Int("attempt", attempt).Msg("retrying after conflict")

		wait := backoff + time.Duration(rand.Int63n(int64(backoff/2+1)))
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		backoff *= 2
	}
}

func (s *Service) observe(op string, err error, start time.Time) {
	result := outcome(err)
	metrics.ObserveReviewOperation(op, result, time.Since(start))
	if result == "error" {
		s.logger.Error().Err(err).Str("operation", op).Msg("review write failed")
	}
}
