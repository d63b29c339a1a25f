package handler

import (
	"html/template"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/unclebandit/mailleopard-backend/internal/logger"
	"github.com/unclebandit/mailleopard-backend/internal/model"
	"github.com/unclebandit/mailleopard-backend/internal/repository"
	"github.com/unclebandit/mailleopard-backend/internal/service"
)

var unsubscribePage = template.Must(template.New("unsubscribe").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>{{.Title}}</title></head>
<body style="font-family:Arial,sans-serif;text-align:center;padding:48px;">
<h1>{{.Title}}</h1>
<p>{{.Message}}</p>
{{if .Confirm}}<form method="post"><button type="submit">Unsubscribe</button></form>{{end}}
</body>
</html>`))

type pageData struct {
	Title   string
	Message string
	Confirm bool
}

// UnsubscribeHandler serves the link embedded in every campaign message.
type UnsubscribeHandler struct {
	Recipients repository.RecipientRepositoryInterface
	Recorder   service.EventApplier
}

func renderPage(w http.ResponseWriter, r *http.Request, status int, data pageData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := unsubscribePage.Execute(w, data); err != nil {
		logger.From(r.Context()).Warn("render unsubscribe page", logger.Err(err))
	}
}

// Confirm handles GET /unsubscribe/{token}. It changes nothing, so link
// scanners that prefetch URLs cannot unsubscribe anyone.
func (h *UnsubscribeHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	renderPage(w, r, http.StatusOK, pageData{
		Title:   "Unsubscribe",
		Message: "Click below to stop receiving these emails.",
		Confirm: true,
	})
}

// Unsubscribe handles POST /unsubscribe/{token}, including one-click
// List-Unsubscribe requests. Unknown or spent tokens get the same answer.
func (h *UnsubscribeHandler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	done := pageData{Title: "Unsubscribed", Message: "You will no longer receive these emails."}

	rec, err := h.Recipients.GetByUnsubscribeToken(r.Context(), token)
	if err != nil {
		logger.From(r.Context()).Error("unsubscribe lookup failed", logger.Err(err))
		renderPage(w, r, http.StatusInternalServerError, pageData{Title: "Something went wrong", Message: "Please try again later."})
		return
	}
	if rec == nil {
		renderPage(w, r, http.StatusOK, done)
		return
	}

	eventCtx := map[string]any{
		"reason":     "Unsubscribed via link.",
		"ip":         r.RemoteAddr,
		"user_agent": r.UserAgent(),
	}
	if err := h.Recorder.Apply(r.Context(), rec.CampaignID, rec.ID, model.EventUnsubscribe, eventCtx, nil); err != nil {
		renderPage(w, r, http.StatusInternalServerError, pageData{Title: "Something went wrong", Message: "Please try again later."})
		return
	}
	renderPage(w, r, http.StatusOK, done)
}
