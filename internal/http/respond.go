package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog/hlog"

	"github.com/Clark-Hu/watchlist-api/internal/domain"
	"github.com/Clark-Hu/watchlist-api/internal/rating"
	"github.com/Clark-Hu/watchlist-api/internal/validation"
)

const maxRequestBody = 1 << 20 // 1 MiB

type errorResponse struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

type fieldErrorResponse struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, r *http.Request, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			hlog.FromRequest(r).Error().Err(err).Msg("failed to encode response")
		}
	}
}

func respondError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	respondJSON(w, r, status, errorResponse{
		Code:    code,
		Message: message,
	})
}

func respondDecodeError(w http.ResponseWriter, r *http.Request, err error) {
	var syntaxError *json.SyntaxError
	var typeError *json.UnmarshalTypeError
	var maxBytesError *http.MaxBytesError
	switch {
	case errors.As(err, &syntaxError):
		respondError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "Malformed JSON payload")
	case errors.As(err, &typeError):
		respondError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", fmt.Sprintf("Invalid value for field %s", typeError.Field))
	case errors.As(err, &maxBytesError):
		respondError(w, r, http.StatusRequestEntityTooLarge, "VALIDATION_ERROR", "Request body too large")
	case errors.Is(err, io.EOF):
		respondError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "Request body cannot be empty")
	default:
		respondError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "Unable to parse request body")
	}
}

// respondServiceError maps core and repository errors onto HTTP responses.
func respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *validation.Error
	switch {
	case errors.As(err, &verr):
		details := make([]fieldErrorResponse, 0, len(verr.Fields))
		for _, f := range verr.Fields {
			details = append(details, fieldErrorResponse{Field: f.Field, Message: f.Message})
		}
		respondJSON(w, r, http.StatusBadRequest, errorResponse{
			Code:    "VALIDATION_ERROR",
			Message: verr.Error(),
			Details: details,
		})
	case errors.Is(err, rating.ErrDuplicateReview):
		respondError(w, r, http.StatusBadRequest, "DUPLICATE_REVIEW", rating.ErrDuplicateReview.Error())
	case errors.Is(err, domain.ErrNotFound):
		respondError(w, r, http.StatusNotFound, "NOT_FOUND", "Resource not found")
	case errors.Is(err, rating.ErrForbidden):
		respondError(w, r, http.StatusForbidden, "FORBIDDEN", "Only the author may modify this review")
	case errors.Is(err, rating.ErrConcurrency):
		w.Header().Set("Retry-After", "1")
		respondError(w, r, http.StatusServiceUnavailable, "CONCURRENCY_CONFLICT", "Too many concurrent updates, try again")
	default:
		hlog.FromRequest(r).Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		respondError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
	}
}

func unauthorized(w http.ResponseWriter, r *http.Request) {
	respondError(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "Missing or invalid bearer token")
}

func rateLimited(w http.ResponseWriter, r *http.Request) {
	respondError(w, r, http.StatusTooManyRequests, "RATE_LIMITED", "Too many requests")
}
