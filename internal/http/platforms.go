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

type platformRequest struct {
	Name    string `json:"name" validate:"required,max=30"`
	About   string `json:"about" validate:"required,max=150"`
	Website string `json:"website" validate:"required,url,max=100"`
}

type platformResponse struct {
	ID      string          `json:"id"`
	Name    string          `json:"name"`
	About   string          `json:"about"`
	Website string          `json:"website"`
	Titles  []titleResponse `json:"titles"`
	Created time.Time       `json:"created"`
	Updated time.Time       `json:"updated"`
}

func (req *platformRequest) params() (repository.PlatformParams, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.About = strings.TrimSpace(req.About)
	req.Website = strings.TrimSpace(req.Website)
	if err := validation.Struct(req); err != nil {
		return repository.PlatformParams{}, err
	}
	return repository.PlatformParams{Name: req.Name, About: req.About, Website: req.Website}, nil
}

func (s *Server) handleCreatePlatform(w http.ResponseWriter, r *http.Request) {
	var req platformRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		respondDecodeError(w, r, err)
		return
	}
	params, err := req.params()
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	platform, err := s.repo.Platforms.Create(r.Context(), params)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusCreated, toPlatformResponse(platform))
}

func (s *Server) handleGetPlatform(w http.ResponseWriter, r *http.Request) {
	platform, err := s.repo.Platforms.GetByID(r.Context(), chi.URLParam(r, "platformID"))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, toPlatformResponse(platform))
}

func (s *Server) handleUpdatePlatform(w http.ResponseWriter, r *http.Request) {
	var req platformRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		respondDecodeError(w, r, err)
		return
	}
	params, err := req.params()
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	platform, err := s.repo.Platforms.Update(r.Context(), chi.URLParam(r, "platformID"), params)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, toPlatformResponse(platform))
}

func (s *Server) handleDeletePlatform(w http.ResponseWriter, r *http.Request) {
	if err := s.repo.Platforms.Delete(r.Context(), chi.URLParam(r, "platformID")); err != nil {
		respondServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func toPlatformResponse(p domain.Platform) platformResponse {
	titles := make([]titleResponse, 0, len(p.Titles))
	for _, t := range p.Titles {
		titles = append(titles, toTitleResponse(t))
	}
	return platformResponse{
		ID:      p.ID,
		Name:    p.Name,
		About:   p.About,
		Website: p.Website,
		Titles:  titles,
		Created: p.CreatedAt,
		Updated: p.UpdatedAt,
	}
}
