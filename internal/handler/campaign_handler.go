// internal/handler/campaign_handler.go
package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/unclebandit/mailleopard-backend/internal/controller"
	"github.com/unclebandit/mailleopard-backend/internal/service"
)

// CampaignHandler serves read-only campaign views.
type CampaignHandler struct {
	Service *service.CampaignService
}

// GetCampaignHandlerWithStats returns the campaign with live metrics.
func (h *CampaignHandler) GetCampaignHandlerWithStats(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id <= 0 {
		controller.WriteProblem(w, http.StatusBadRequest, "invalid campaign id")
		return
	}

	details, err := h.Service.GetCampaignDetailsWithStats(r.Context(), id)
	if err != nil {
		controller.WriteError(w, r, err)
		return
	}
	controller.WriteJSON(w, http.StatusOK, details)
}
