package httpserver

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Clark-Hu/watchlist-api/internal/auth"
	"github.com/Clark-Hu/watchlist-api/internal/domain"
	"github.com/Clark-Hu/watchlist-api/internal/rating"
	"github.com/Clark-Hu/watchlist-api/internal/validation"
)

type reviewCreateRequest struct {
	Rating      int     `json:"rating"`
	Description *string `json:"description"`
}

type reviewUpdateRequest struct {
	Rating      *int    `json:"rating"`
	Description *string `json:"description"`
	Active      *bool   `json:"active"`
}

type reviewResponse struct {
	ID          string    `json:"id"`
	UserRef     string    `json:"user_ref"`
	TitleRef    string    `json:"title_ref"`
	Rating      int       `json:"rating"`
	Description *string   `json:"description"`
	Active      bool      `json:"active"`
	Created     time.Time `json:"created"`
	Updated     time.Time `json:"updated"`
}

func (s *Server) handleCreateReview(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserID(r.Context())
	if !ok {
		unauthorized(w, r)
		return
	}

	var req reviewCreateRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		respondDecodeError(w, r, err)
		return
	}

	review, err := s.reviews.SubmitReview(r.Context(), rating.SubmitParams{
		TitleID:     chi.URLParam(r, "titleID"),
		UserID:      userID,
		Rating:      req.Rating,
		Description: normalizeStringPtr(req.Description),
	})
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusCreated, toReviewResponse(review))
}

func (s *Server) handleListReviews(w http.ResponseWriter, r *http.Request) {
	filter, err := buildReviewFilter(r.URL.Query())
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	reviews, err := s.reviews.ListReviews(r.Context(), chi.URLParam(r, "titleID"), filter)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	items := make([]reviewResponse, 0, len(reviews))
	for _, review := range reviews {
		items = append(items, toReviewResponse(review))
	}
	respondJSON(w, r, http.StatusOK, items)
}

func (s *Server) handleGetReview(w http.ResponseWriter, r *http.Request) {
	review, err := s.reviews.GetReview(r.Context(), chi.URLParam(r, "reviewID"))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, toReviewResponse(review))
}

func (s *Server) handleUpdateReview(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserID(r.Context())
	if !ok {
		unauthorized(w, r)
		return
	}

	var req reviewUpdateRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		respondDecodeError(w, r, err)
		return
	}

	review, err := s.reviews.UpdateReview(r.Context(), rating.UpdateParams{
		ReviewID:    chi.URLParam(r, "reviewID"),
		UserID:      userID,
		Rating:      req.Rating,
		Description: req.Description,
		Active:      req.Active,
	})
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, toReviewResponse(review))
}

func (s *Server) handleDeleteReview(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserID(r.Context())
	if !ok {
		unauthorized(w, r)
		return
	}

	if err := s.reviews.DeleteReview(r.Context(), chi.URLParam(r, "reviewID"), userID); err != nil {
		respondServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// buildReviewFilter reads the optional user and active query parameters.
func buildReviewFilter(query url.Values) (domain.ReviewFilter, error) {
	var filter domain.ReviewFilter
	if user := strings.TrimSpace(query.Get("user")); user != "" {
		filter.UserID = &user
	}
	if raw := strings.TrimSpace(query.Get("active")); raw != "" {
		active, err := strconv.ParseBool(raw)
		if err != nil {
			return domain.ReviewFilter{}, validation.New("active", fmt.Sprintf("active must be a boolean, got %q", raw))
		}
		filter.Active = &active
	}
	return filter, nil
}

func normalizeStringPtr(ptr *string) *string {
	if ptr == nil {
		return nil
	}
	val := strings.TrimSpace(*ptr)
	if val == "" {
		return nil
	}
	return &val
}

func toReviewResponse(review domain.Review) reviewResponse {
	return reviewResponse{
		ID:          review.ID,
		UserRef:     review.UserID,
		TitleRef:    review.TitleID,
		Rating:      review.Rating,
		Description: review.Description,
		Active:      review.Active,
		Created:     review.CreatedAt,
		Updated:     review.UpdatedAt,
	}
}
