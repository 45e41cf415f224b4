package httpserver

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Clark-Hu/watchlist-api/internal/domain"
	"github.com/Clark-Hu/watchlist-api/internal/repository"
	"github.com/Clark-Hu/watchlist-api/internal/validation"
)

type titleRequest struct {
	Title       string `json:"title" validate:"required,max=50"`
	Storyline   string `json:"storyline" validate:"required,max=200"`
	PlatformRef string `json:"platform_ref" validate:"required"`
	Active      *bool  `json:"active"`
}

type titleResponse struct {
	ID             string    `json:"id"`
	Title          string    `json:"title"`
	Storyline      string    `json:"storyline"`
	PlatformRef    string    `json:"platform_ref"`
	Platform       string    `json:"platform"`
	Active         bool      `json:"active"`
	AverageRating  float64   `json:"average_rating"`
	NumberOfRating int64     `json:"number_of_rating"`
	Created        time.Time `json:"created"`
}

func (req *titleRequest) params() (repository.TitleParams, error) {
	req.Title = strings.TrimSpace(req.Title)
	req.Storyline = strings.TrimSpace(req.Storyline)
	if err := validation.Struct(req); err != nil {
		return repository.TitleParams{}, err
	}
	active := true
	if req.Active != nil {
		active = *req.Active
	}
	return repository.TitleParams{
		Name:       req.Title,
		Storyline:  req.Storyline,
		PlatformID: req.PlatformRef,
		Active:     active,
	}, nil
}

func (s *Server) handleCreateTitle(w http.ResponseWriter, r *http.Request) {
	var req titleRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		respondDecodeError(w, r, err)
		return
	}
	params, err := req.params()
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	title, err := s.repo.Titles.Create(r.Context(), params)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusCreated, toTitleResponse(title))
}

func (s *Server) handleGetTitle(w http.ResponseWriter, r *http.Request) {
	title, err := s.repo.Titles.GetByID(r.Context(), chi.URLParam(r, "titleID"))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, toTitleResponse(title))
}

// handleUpdateTitle replaces title metadata. The rating aggregate is not
// writable through this endpoint.
func (s *Server) handleUpdateTitle(w http.ResponseWriter, r *http.Request) {
	var req titleRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		respondDecodeError(w, r, err)
		return
	}
	params, err := req.params()
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	title, err := s.repo.Titles.UpdateMetadata(r.Context(), chi.URLParam(r, "titleID"), params)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, toTitleResponse(title))
}

func (s *Server) handleDeleteTitle(w http.ResponseWriter, r *http.Request) {
	if err := s.repo.Titles.Delete(r.Context(), chi.URLParam(r, "titleID")); err != nil {
		respondServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func toTitleResponse(t domain.Title) titleResponse {
	return titleResponse{
		ID:             t.ID,
		Title:          t.Name,
		Storyline:      t.Storyline,
		PlatformRef:    t.PlatformID,
		Platform:       t.PlatformName,
		Active:         t.Active,
		AverageRating:  t.AverageRating,
		NumberOfRating: t.NumberOfRating,
		Created:        t.CreatedAt,
	}
}
