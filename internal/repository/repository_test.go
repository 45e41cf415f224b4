package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Clark-Hu/watchlist-api/internal/domain"
	"github.com/Clark-Hu/watchlist-api/internal/rating"
	"github.com/Clark-Hu/watchlist-api/internal/testdb"
)

type testEnv struct {
	ctx        context.Context
	repository *Repository
}

func newTestEnv(tb testing.TB, opts Options) *testEnv {
	tb.Helper()
	pool := testdb.Start(tb, "watchlist_test")
	return &testEnv{
		ctx:        context.Background(),
		repository: NewWithPool(pool, opts),
	}
}

func (e *testEnv) service(opts rating.Options) *rating.Service {
	if opts.RetryBackoff == 0 {
		opts.RetryBackoff = time.Millisecond
	}
	return rating.NewService(e.repository, opts)
}

func mustCreatePlatform(tb testing.TB, env *testEnv, name string) domain.Platform {
	tb.Helper()
	platform, err := env.repository.Platforms.Create(env.ctx, PlatformParams{
		Name:    name,
		About:   "Streaming service",
		Website: "https://example.com",
	})
	if err != nil {
		tb.Fatalf("create platform %q: %v", name, err)
	}
	return platform
}

func mustCreateTitle(tb testing.TB, env *testEnv, platformID, name string) domain.Title {
	tb.Helper()
	title, err := env.repository.Titles.Create(env.ctx, TitleParams{
		Name:       name,
		Storyline:  "Something happens.",
		PlatformID: platformID,
		Active:     true,
	})
	if err != nil {
		tb.Fatalf("create title %q: %v", name, err)
	}
	return title
}

func strPtr(s string) *string { return &s }

func TestPlatformsRepository_CRUD(t *testing.T) {
	env := newTestEnv(t, Options{})

	platform := mustCreatePlatform(t, env, "Netflix")
	if platform.ID == "" {
		t.Fatalf("expected generated id")
	}
	titleA := mustCreateTitle(t, env, platform.ID, "Title A")
	mustCreateTitle(t, env, platform.ID, "Title B")

	got, err := env.repository.Platforms.GetByID(env.ctx, platform.ID)
	require.NoError(t, err)
	require.Len(t, got.Titles, 2)
	assert.Equal(t, "Title B", got.Titles[0].Name, "newest title first")
	assert.Equal(t, "Netflix", got.Titles[1].PlatformName)

	updated, err := env.repository.Platforms.Update(env.ctx, platform.ID, PlatformParams{
		Name:    "Netflix EU",
		About:   "Regional",
		Website: "https://netflix.example.eu",
	})
	require.NoError(t, err)
	assert.Equal(t, "Netflix EU", updated.Name)
	assert.False(t, updated.UpdatedAt.Before(platform.UpdatedAt))

	all, err := env.repository.Platforms.List(env.ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	require.NoError(t, env.repository.Platforms.Delete(env.ctx, platform.ID))
	_, err = env.repository.Titles.GetByID(env.ctx, titleA.ID)
	assert.ErrorIs(t, err, ErrNotFound, "titles cascade with their platform")

	_, err = env.repository.Platforms.GetByID(env.ctx, platform.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, env.repository.Platforms.Delete(env.ctx, platform.ID), ErrNotFound)
	_, err = env.repository.Platforms.Update(env.ctx, "missing", PlatformParams{Name: "x", About: "x", Website: "https://x.io"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTitlesRepository_CreateUpdateDelete(t *testing.T) {
	env := newTestEnv(t, Options{})

	platform := mustCreatePlatform(t, env, "Prime")
	title := mustCreateTitle(t, env, platform.ID, "Heat")
	assert.Equal(t, 0.0, title.AverageRating)
	assert.Equal(t, int64(0), title.NumberOfRating)
	assert.True(t, title.Active)

	_, err := env.repository.Titles.Create(env.ctx, TitleParams{Name: "Orphan", Storyline: "x", PlatformID: "missing"})
	assert.ErrorIs(t, err, ErrNotFound)

	svc := env.service(rating.Options{})
	_, err = svc.SubmitReview(env.ctx, rating.SubmitParams{TitleID: title.ID, UserID: "u1", Rating: 4})
	require.NoError(t, err)

	updated, err := env.repository.Titles.UpdateMetadata(env.ctx, title.ID, TitleParams{
		Name:       "Heat (1995)",
		Storyline:  "Cops and robbers.",
		PlatformID: platform.ID,
		Active:     false,
	})
	require.NoError(t, err)
	assert.Equal(t, "Heat (1995)", updated.Name)
	assert.False(t, updated.Active)
	assert.Equal(t, 4.0, updated.AverageRating, "metadata update keeps the aggregate")
	assert.Equal(t, int64(1), updated.NumberOfRating)

	_, err = env.repository.Titles.UpdateMetadata(env.ctx, "missing", TitleParams{Name: "x", Storyline: "x", PlatformID: platform.ID})
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, env.repository.Titles.Delete(env.ctx, title.ID))
	_, err = env.repository.Reviews.ListByTitle(env.ctx, title.ID, domain.ReviewFilter{})
	assert.ErrorIs(t, err, ErrNotFound)
	exists, err := env.repository.ReviewExists(env.ctx, title.ID, "u1")
	require.NoError(t, err)
	assert.False(t, exists, "reviews cascade with their title")
	assert.ErrorIs(t, env.repository.Titles.Delete(env.ctx, title.ID), ErrNotFound)
}

func TestReviewService_Scenario(t *testing.T) {
	env := newTestEnv(t, Options{LockTimeout: time.Second})
	platform := mustCreatePlatform(t, env, "Hulu")
	title := mustCreateTitle(t, env, platform.ID, "Fresh")
	svc := env.service(rating.Options{})

	exists, err := svc.Exists(env.ctx, title.ID, "A")
	require.NoError(t, err)
	assert.False(t, exists)

	reviewA, err := svc.SubmitReview(env.ctx, rating.SubmitParams{
		TitleID:     title.ID,
		UserID:      "A",
		Rating:      4,
		Description: strPtr("Great pacing"),
	})
	require.NoError(t, err)

	want := domain.Review{
		ID:          reviewA.ID,
		UserID:      "A",
		TitleID:     title.ID,
		Rating:      4,
		Description: strPtr("Great pacing"),
		Active:      true,
	}
	stored, err := env.repository.GetReview(env.ctx, reviewA.ID)
	require.NoError(t, err)
	if diff := cmp.Diff(want, stored, cmpopts.IgnoreFields(domain.Review{}, "CreatedAt", "UpdatedAt")); diff != "" {
		t.Fatalf("stored review mismatch (-want +got):\n%s", diff)
	}

	got, err := env.repository.Titles.GetByID(env.ctx, title.ID)
	require.NoError(t, err)
	assert.Equal(t, 4.0, got.AverageRating)
	assert.Equal(t, int64(1), got.NumberOfRating)

	_, err = svc.SubmitReview(env.ctx, rating.SubmitParams{TitleID: title.ID, UserID: "B", Rating: 2})
	require.NoError(t, err)
	got, err = env.repository.Titles.GetByID(env.ctx, title.ID)
	require.NoError(t, err)
	assert.Equal(t, 3.0, got.AverageRating)
	assert.Equal(t, int64(2), got.NumberOfRating)

	_, err = svc.SubmitReview(env.ctx, rating.SubmitParams{TitleID: title.ID, UserID: "A", Rating: 5})
	require.ErrorIs(t, err, rating.ErrDuplicateReview)
	assert.EqualError(t, err, "You have already reviewed this watchlist.")
	got, err = env.repository.Titles.GetByID(env.ctx, title.ID)
	require.NoError(t, err)
	assert.Equal(t, 3.0, got.AverageRating)
	assert.Equal(t, int64(2), got.NumberOfRating)

	_, err = svc.SubmitReview(env.ctx, rating.SubmitParams{TitleID: "missing", UserID: "A", Rating: 3})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestReviewService_ConcurrentDistinctUsers(t *testing.T) {
	env := newTestEnv(t, Options{LockTimeout: 5 * time.Second})
	platform := mustCreatePlatform(t, env, "Disney")
	title := mustCreateTitle(t, env, platform.ID, "Crowded")
	svc := env.service(rating.Options{MaxRetries: 10})

	const workers = 40
	var (
		wg  sync.WaitGroup
		sum int64
	)
	for i := 0; i < workers; i++ {
		value := i%5 + 1
		sum += int64(value)
		wg.Add(1)
		go func(user string, value int) {
			defer wg.Done()
			_, err := svc.SubmitReview(env.ctx, rating.SubmitParams{TitleID: title.ID, UserID: user, Rating: value})
			if err != nil {
				t.Errorf("submit for %s: %v", user, err)
			}
		}(fmt.Sprintf("user-%d", i), value)
	}
	wg.Wait()

	got, err := env.repository.Titles.GetByID(env.ctx, title.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(workers), got.NumberOfRating)
	assert.InDelta(t, float64(sum)/workers, got.AverageRating, 1e-9)

	reviews, err := svc.ListReviews(env.ctx, title.ID, domain.ReviewFilter{})
	require.NoError(t, err)
	assert.Len(t, reviews, workers)
}

func TestReviewService_ConcurrentSameUser(t *testing.T) {
	env := newTestEnv(t, Options{LockTimeout: 5 * time.Second})
	platform := mustCreatePlatform(t, env, "Max")
	title := mustCreateTitle(t, env, platform.ID, "Contested")
	svc := env.service(rating.Options{MaxRetries: 10})

	const attempts = 12
	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		created    int
		duplicates int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.SubmitReview(env.ctx, rating.SubmitParams{TitleID: title.ID, UserID: "same", Rating: 5})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				created++
			case errors.Is(err, rating.ErrDuplicateReview):
				duplicates++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, created)
	assert.Equal(t, attempts-1, duplicates)

	got, err := env.repository.Titles.GetByID(env.ctx, title.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.NumberOfRating)
	assert.Equal(t, 5.0, got.AverageRating)
}

func TestReviewService_InsertFailureRollsBackAggregate(t *testing.T) {
	env := newTestEnv(t, Options{})
	platform := mustCreatePlatform(t, env, "Apple")
	title := mustCreateTitle(t, env, platform.ID, "Fragile")
	svc := env.service(rating.Options{})

	_, err := svc.SubmitReview(env.ctx, rating.SubmitParams{TitleID: title.ID, UserID: "ok", Rating: 2})
	require.NoError(t, err)

	_, err = env.repository.pool.Exec(env.ctx, `
        CREATE FUNCTION reject_saboteur() RETURNS trigger AS $$
        BEGIN
            IF NEW.user_id = 'saboteur' THEN
                RAISE EXCEPTION 'review rejected';
            END IF;
            RETURN NEW;
        END
        $$ LANGUAGE plpgsql
    `)
	require.NoError(t, err)
	_, err = env.repository.pool.Exec(env.ctx, `
        CREATE TRIGGER reviews_reject_saboteur BEFORE INSERT ON reviews
        FOR EACH ROW EXECUTE FUNCTION reject_saboteur()
    `)
	require.NoError(t, err)

	_, err = svc.SubmitReview(env.ctx, rating.SubmitParams{TitleID: title.ID, UserID: "saboteur", Rating: 5})
	require.Error(t, err)
	assert.NotErrorIs(t, err, rating.ErrConcurrency)

	got, err := env.repository.Titles.GetByID(env.ctx, title.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.NumberOfRating, "aggregate write rolled back with the failed insert")
	assert.Equal(t, 2.0, got.AverageRating)

	exists, err := svc.Exists(env.ctx, title.ID, "saboteur")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestWithTitleLock_CallbackErrorRollsBack(t *testing.T) {
	env := newTestEnv(t, Options{})
	platform := mustCreatePlatform(t, env, "Peacock")
	title := mustCreateTitle(t, env, platform.ID, "Undone")

	boom := errors.New("boom")
	err := env.repository.WithTitleLock(env.ctx, title.ID, func(ctx context.Context, tx rating.TitleTx) error {
		if err := tx.SetAggregate(ctx, tx.Aggregate().Add(5)); err != nil {
			return err
		}
		if _, err := tx.InsertReview(ctx, domain.Review{
			ID:        "r-1",
			UserID:    "u",
			Rating:    5,
			Active:    true,
			CreatedAt: time.Now().UTC(),
			UpdatedAt: time.Now().UTC(),
		}); err != nil {
			return err
		}
		assert.Equal(t, domain.Aggregate{Sum: 5, Count: 1}, tx.Aggregate())
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := env.repository.Titles.GetByID(env.ctx, title.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), got.NumberOfRating)
	_, err = env.repository.GetReview(env.ctx, "r-1")
	assert.ErrorIs(t, err, ErrNotFound)

	err = env.repository.WithTitleLock(env.ctx, "missing", func(context.Context, rating.TitleTx) error {
		t.Fatal("callback must not run for unknown title")
		return nil
	})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestWithTitleLock_LockTimeoutIsConflict(t *testing.T) {
	env := newTestEnv(t, Options{LockTimeout: 50 * time.Millisecond})
	platform := mustCreatePlatform(t, env, "Paramount")
	title := mustCreateTitle(t, env, platform.ID, "Busy")

	holder, err := env.repository.pool.Begin(env.ctx)
	require.NoError(t, err)
	defer holder.Rollback(env.ctx)
	_, err = holder.Exec(env.ctx, `SELECT 1 FROM titles WHERE id = $1 FOR UPDATE`, title.ID)
	require.NoError(t, err)

	err = env.repository.WithTitleLock(env.ctx, title.ID, func(context.Context, rating.TitleTx) error {
		return nil
	})
	require.ErrorIs(t, err, domain.ErrConflict)

	svc := env.service(rating.Options{MaxRetries: 1})
	_, err = svc.SubmitReview(env.ctx, rating.SubmitParams{TitleID: title.ID, UserID: "late", Rating: 3})
	require.ErrorIs(t, err, rating.ErrConcurrency)

	require.NoError(t, holder.Rollback(env.ctx))
	_, err = svc.SubmitReview(env.ctx, rating.SubmitParams{TitleID: title.ID, UserID: "late", Rating: 3})
	require.NoError(t, err)
}

func TestReviewService_UpdateAndDeleteAdjustAggregate(t *testing.T) {
	env := newTestEnv(t, Options{})
	platform := mustCreatePlatform(t, env, "Crunchyroll")
	title := mustCreateTitle(t, env, platform.ID, "Shifting")
	svc := env.service(rating.Options{})

	first, err := svc.SubmitReview(env.ctx, rating.SubmitParams{TitleID: title.ID, UserID: "a", Rating: 4})
	require.NoError(t, err)
	_, err = svc.SubmitReview(env.ctx, rating.SubmitParams{TitleID: title.ID, UserID: "b", Rating: 2})
	require.NoError(t, err)

	five := 5
	updated, err := svc.UpdateReview(env.ctx, rating.UpdateParams{ReviewID: first.ID, UserID: "a", Rating: &five})
	require.NoError(t, err)
	assert.Equal(t, 5, updated.Rating)
	assertAggregate(t, env, title.ID, 3.5, 2)

	inactive := false
	_, err = svc.UpdateReview(env.ctx, rating.UpdateParams{ReviewID: first.ID, UserID: "a", Active: &inactive})
	require.NoError(t, err)
	assertAggregate(t, env, title.ID, 2.0, 1)

	activeOnly := true
	listed, err := svc.ListReviews(env.ctx, title.ID, domain.ReviewFilter{Active: &activeOnly})
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, "b", listed[0].UserID)

	user := "a"
	listed, err = svc.ListReviews(env.ctx, title.ID, domain.ReviewFilter{UserID: &user})
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.False(t, listed[0].Active)

	_, err = svc.UpdateReview(env.ctx, rating.UpdateParams{ReviewID: first.ID, UserID: "b", Rating: &five})
	assert.ErrorIs(t, err, rating.ErrForbidden)
	assert.ErrorIs(t, svc.DeleteReview(env.ctx, first.ID, "b"), rating.ErrForbidden)

	require.NoError(t, svc.DeleteReview(env.ctx, first.ID, "a"))
	assertAggregate(t, env, title.ID, 2.0, 1)

	_, err = svc.GetReview(env.ctx, first.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func assertAggregate(t *testing.T, env *testEnv, titleID string, average float64, count int64) {
	t.Helper()
	got, err := env.repository.Titles.GetByID(env.ctx, titleID)
	require.NoError(t, err)
	assert.InDelta(t, average, got.AverageRating, 1e-9)
	assert.Equal(t, count, got.NumberOfRating)
}

func BenchmarkTitlesRepositoryCreate(b *testing.B) {
	env := newTestEnv(b, Options{})
	platform := mustCreatePlatform(b, env, "Bench")

	for i := 0; i < b.N; i++ {
		mustCreateTitle(b, env, platform.ID, fmt.Sprintf("Bench %d", i))
	}
}

func BenchmarkReviewServiceSubmit(b *testing.B) {
	env := newTestEnv(b, Options{})
	platform := mustCreatePlatform(b, env, "Bench")
	title := mustCreateTitle(b, env, platform.ID, "Bench Title")
	svc := env.service(rating.Options{})

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, err := svc.SubmitReview(env.ctx, rating.SubmitParams{
			TitleID: title.ID,
			UserID:  fmt.Sprintf("bench-%d", i),
			Rating:  i%5 + 1,
		})
		if err != nil {
			b.Fatalf("submit: %v", err)
		}
	}
}
