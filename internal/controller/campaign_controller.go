// internal/controller/campaign_controller.go
package controller

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/unclebandit/mailleopard-backend/internal/model"
	"github.com/unclebandit/mailleopard-backend/internal/service"
)

type CampaignController struct {
	CampaignService *service.CampaignService
}

func campaignID(r *http.Request) (int, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	return id, err == nil && id > 0
}

// decodeOptional decodes a JSON body into v. An empty body is allowed.
func decodeOptional(r *http.Request, v any) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func (c *CampaignController) Dispatch(w http.ResponseWriter, r *http.Request) {
	id, ok := campaignID(r)
	if !ok {
		WriteProblem(w, http.StatusBadRequest, "invalid campaign id")
		return
	}

	var body struct {
		DryRun    bool   `json:"dry_run"`
		ActorID   int    `json:"actor_id"`
		ActorName string `json:"actor_name"`
	}
	if err := decodeOptional(r, &body); err != nil {
		WriteProblem(w, http.StatusBadRequest, "invalid body")
		return
	}
	if q := r.URL.Query().Get("dry_run"); q != "" {
		body.DryRun, _ = strconv.ParseBool(q)
	}

	summary, err := c.CampaignService.Dispatch(r.Context(), id, body.DryRun, model.Actor{ID: body.ActorID, Name: body.ActorName})
	if err != nil {
		WriteError(w, r, err)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"campaign_id": id,
		"summary":     summary,
	})
}

func (c *CampaignController) PersonalizedPreview(w http.ResponseWriter, r *http.Request) {
	id, ok := campaignID(r)
	if !ok {
		WriteProblem(w, http.StatusBadRequest, "invalid campaign id")
		return
	}

	var body struct {
		Email        string  `json:"email"`
		FirstName    string  `json:"first_name"`
		LastName     string  `json:"last_name"`
		OverrideHTML *string `json:"override_html"`
	}
	if err := decodeOptional(r, &body); err != nil {
		WriteProblem(w, http.StatusBadRequest, "invalid body")
		return
	}

	preview, err := c.CampaignService.Preview(r.Context(), id,
		model.ManualEntry{Email: body.Email, FirstName: body.FirstName, LastName: body.LastName},
		body.OverrideHTML)
	if err != nil {
		WriteError(w, r, err)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"campaign_id": id,
		"subject":     preview.Subject,
		"html":        preview.HTML,
	})
}

func (c *CampaignController) ListCampaigns(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
	audienceType := r.URL.Query().Get("audience_type")
	status := r.URL.Query().Get("status")

	campaigns, pagination, err := c.CampaignService.ListCampaigns(r.Context(), page, pageSize, audienceType, status)
	if err != nil {
		WriteError(w, r, err)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"data":       campaigns,
		"pagination": pagination, // page, page_size, total_count, total_pages
	})
}
