// Package memory provides an in-process review store with the same locking
// and rollback semantics as the Postgres repository.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/Clark-Hu/watchlist-api/internal/domain"
	"github.com/Clark-Hu/watchlist-api/internal/rating"
)

// Store is an in-memory rating.Store. A per-title mutex plays the role of
// the row lock.
type Store struct {
	sync.RWMutex
	titles  map[string]*titleState
	reviews map[string]domain.Review

	conflicts  int
	failInsert error
}

type titleState struct {
	lock sync.Mutex
	agg  domain.Aggregate
}

var _ rating.Store = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		titles:  map[string]*titleState{},
		reviews: map[string]domain.Review{},
	}
}

// AddTitle registers a title with an empty aggregate.
func (s *Store) AddTitle(id string) {
	s.Lock()
	defer s.Unlock()
	s.titles[id] = &titleState{}
}

// DeleteTitle removes a title and, like the foreign key cascade, its reviews.
func (s *Store) DeleteTitle(id string) {
	s.Lock()
	defer s.Unlock()
	delete(s.titles, id)
	for rid, r := range s.reviews {
		if r.TitleID == id {
			delete(s.reviews, rid)
		}
	}
}

// Aggregate returns the committed aggregate of a title.
func (s *Store) Aggregate(titleID string) (domain.Aggregate, bool) {
	s.RLock()
	st, ok := s.titles[titleID]
	s.RUnlock()
	if !ok {
		return domain.Aggregate{}, false
	}
	st.lock.Lock()
	defer st.lock.Unlock()
	return st.agg, true
}

// InjectConflicts makes the next n WithTitleLock calls fail with
// domain.ErrConflict before running their callback.
func (s *Store) InjectConflicts(n int) {
	s.Lock()
	defer s.Unlock()
	s.conflicts = n
}

// FailNextInsert makes the next InsertReview inside a transaction return err.
func (s *Store) FailNextInsert(err error) {
	s.Lock()
	defer s.Unlock()
	s.failInsert = err
}

// ReviewExists implements rating.Store.
func (s *Store) ReviewExists(_ context.Context, titleID, userID string) (bool, error) {
	s.RLock()
	defer s.RUnlock()
	return s.existsLocked(titleID, userID), nil
}

func (s *Store) existsLocked(titleID, userID string) bool {
	for _, r := range s.reviews {
		if r.TitleID == titleID && r.UserID == userID {
			return true
		}
	}
	return false
}

// GetReview implements rating.Store.
func (s *Store) GetReview(_ context.Context, id string) (domain.Review, error) {
	s.RLock()
	defer s.RUnlock()
	r, ok := s.reviews[id]
	if !ok {
		return domain.Review{}, fmt.Errorf("review %s: %w", id, domain.ErrNotFound)
	}
	return r, nil
}

// ListReviews implements rating.Store, newest first.
func (s *Store) ListReviews(_ context.Context, titleID string, filter domain.ReviewFilter) ([]domain.Review, error) {
	s.RLock()
	defer s.RUnlock()
	if _, ok := s.titles[titleID]; !ok {
		return nil, fmt.Errorf("title %s: %w", titleID, domain.ErrNotFound)
	}
	out := make([]domain.Review, 0)
	for _, r := range s.reviews {
		if r.TitleID == titleID && filter.Matches(r) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// WithTitleLock implements rating.Store. Writes made through tx are staged
// and applied only when fn returns nil.
func (s *Store) WithTitleLock(ctx context.Context, titleID string, fn func(context.Context, rating.TitleTx) error) error {
	s.Lock()
	if s.conflicts > 0 {
		s.conflicts--
		s.Unlock()
		return fmt.Errorf("memory: lock title %s: %w", titleID, domain.ErrConflict)
	}
	st, ok := s.titles[titleID]
	s.Unlock()
	if !ok {
		return fmt.Errorf("title %s: %w", titleID, domain.ErrNotFound)
	}

	st.lock.Lock()
	defer st.lock.Unlock()

	tx := &titleTx{store: s, titleID: titleID, agg: st.agg, staged: map[string]*domain.Review{}}
	if err := fn(ctx, tx); err != nil {
		return err
	}

	s.Lock()
	defer s.Unlock()
	st.agg = tx.agg
	for id, r := range tx.staged {
		if r == nil {
			delete(s.reviews, id)
			continue
		}
		s.reviews[id] = *r
	}
	return nil
}

type titleTx struct {
	store   *Store
	titleID string
	agg     domain.Aggregate
	// nil marks a staged delete
	staged map[string]*domain.Review
}

func (tx *titleTx) Aggregate() domain.Aggregate { return tx.agg }

func (tx *titleTx) SetAggregate(_ context.Context, agg domain.Aggregate) error {
	tx.agg = agg
	return nil
}

func (tx *titleTx) ReviewExists(_ context.Context, userID string) (bool, error) {
	for _, r := range tx.staged {
		if r != nil && r.UserID == userID {
			return true, nil
		}
	}
	tx.store.RLock()
	defer tx.store.RUnlock()
	for id, r := range tx.store.reviews {
		if r.TitleID != tx.titleID || r.UserID != userID {
			continue
		}
		if staged, ok := tx.staged[id]; ok && staged == nil {
			continue
		}
		return true, nil
	}
	return false, nil
}

func (tx *titleTx) GetReview(_ context.Context, id string) (domain.Review, error) {
	if r, ok := tx.staged[id]; ok {
		if r == nil {
			return domain.Review{}, fmt.Errorf("review %s: %w", id, domain.ErrNotFound)
		}
		return *r, nil
	}
	tx.store.RLock()
	defer tx.store.RUnlock()
	r, ok := tx.store.reviews[id]
	if !ok || r.TitleID != tx.titleID {
		return domain.Review{}, fmt.Errorf("review %s: %w", id, domain.ErrNotFound)
	}
	return r, nil
}

func (tx *titleTx) InsertReview(_ context.Context, review domain.Review) (domain.Review, error) {
	tx.store.Lock()
	failure := tx.store.failInsert
	tx.store.failInsert = nil
	tx.store.Unlock()
	if failure != nil {
		return domain.Review{}, failure
	}

	review.TitleID = tx.titleID
	tx.staged[review.ID] = &review
	return review, nil
}

func (tx *titleTx) UpdateReview(ctx context.Context, review domain.Review) (domain.Review, error) {
	if _, err := tx.GetReview(ctx, review.ID); err != nil {
		return domain.Review{}, err
	}
	tx.staged[review.ID] = &review
	return review, nil
}

func (tx *titleTx) DeleteReview(ctx context.Context, id string) error {
	if _, err := tx.GetReview(ctx, id); err != nil {
		return err
	}
	tx.staged[id] = nil
	return nil
}
