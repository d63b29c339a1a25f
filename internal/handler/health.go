package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/unclebandit/mailleopard-backend/internal/controller"
)

// Pinger is satisfied by *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Health answers GET /healthz. With a nil DB only liveness is reported.
type Health struct {
	DB Pinger
}

func (h *Health) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.DB != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.DB.PingContext(ctx); err != nil {
			controller.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "database": err.Error()})
			return
		}
	}
	controller.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
