package controller

import (
	"encoding/json"
	"errors"
	"net/http"

	appErrors "github.com/unclebandit/mailleopard-backend/internal/errors"
	"github.com/unclebandit/mailleopard-backend/internal/logger"
)

// Problem is an RFC 7807 error body.
type Problem struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func WriteProblem(w http.ResponseWriter, status int, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(Problem{
		Type:   "about:blank",
		Title:  http.StatusText(status),
		Status: status,
		Detail: detail,
	})
}

// WriteError maps domain errors onto HTTP statuses. Anything unknown is a 500
// and its text is only logged.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	var notFound *appErrors.ErrCampaignNotFound
	var notDispatchable *appErrors.ErrCampaignNotDispatchable
	var badFilters *appErrors.ErrInvalidAudienceFilters
	var noContent *appErrors.ErrCampaignHasNoContent

	switch {
	case errors.As(err, &notFound):
		WriteProblem(w, http.StatusNotFound, err.Error())
	case errors.As(err, &notDispatchable):
		WriteProblem(w, http.StatusConflict, err.Error())
	case errors.As(err, &badFilters), errors.As(err, &noContent):
		WriteProblem(w, http.StatusUnprocessableEntity, err.Error())
	default:
		logger.From(r.Context()).Error("request failed", logger.String("path", r.URL.Path), logger.Err(err))
		WriteProblem(w, http.StatusInternalServerError, "internal error")
	}
}
