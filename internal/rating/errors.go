package rating

import (
	"errors"

	"github.com/Clark-Hu/watchlist-api/internal/domain"
	"github.com/Clark-Hu/watchlist-api/internal/validation"
)

var (
	// ErrDuplicateReview is returned when the user already reviewed the title.
	ErrDuplicateReview = errors.New("You have already reviewed this watchlist.")

	// ErrConcurrency is returned once conflict retries are exhausted. It also
	// matches domain.ErrConflict.
	ErrConcurrency = errors.New("review: too many concurrent updates, try again")

	// ErrForbidden is returned when a user modifies someone else's review.
	ErrForbidden = errors.New("review: only the author may modify this review")
)

func outcome(err error) string {
	var verr *validation.Error
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &verr):
		return "invalid"
	case errors.Is(err, ErrDuplicateReview):
		return "duplicate"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrConcurrency):
		return "conflict"
	default:
		return "error"
	}
}
