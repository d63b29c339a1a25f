package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/unclebandit/mailleopard-backend/internal/controller"
)

// Routes bundles everything the HTTP surface needs.
type Routes struct {
	Logger      *zap.Logger
	Campaigns   *controller.CampaignController
	Details     *CampaignHandler
	Webhooks    *WebhookHandler
	Unsubscribe *UnsubscribeHandler
	Health      *Health
	// Gatherer backs /metrics. Nil means the default registry.
	Gatherer prometheus.Gatherer
}

func NewRouter(rt Routes) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(RequestLogger(rt.Logger))

	// Campaign routes
	r.Get("/campaigns", rt.Campaigns.ListCampaigns)
	r.Get("/campaigns/{id}", rt.Details.GetCampaignHandlerWithStats)
	r.Post("/campaigns/{id}/dispatch", rt.Campaigns.Dispatch)
	r.Post("/campaigns/{id}/preview", rt.Campaigns.PersonalizedPreview)

	r.Post("/webhooks/email-events", rt.Webhooks.EmailEvents)
	r.Get("/unsubscribe/{token}", rt.Unsubscribe.Confirm)
	r.Post("/unsubscribe/{token}", rt.Unsubscribe.Unsubscribe)

	r.Method(http.MethodGet, "/healthz", rt.Health)
	gatherer := rt.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	return r
}
