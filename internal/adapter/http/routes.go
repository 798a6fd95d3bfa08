package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nexocrm/agentgate/internal/middleware"
)

// MountRoutes registers all API routes on the given chi router. Actor
// identity is required on every /api/v1 route; health and the event
// stream stay open.
func MountRoutes(r chi.Router, h *Handlers) {
	r.Get("/healthz", h.Health)
	r.Get("/ws", h.hub.HandleWS)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.ActorHeaders)

		r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"version":"0.1.0"}`))
		})

		r.Post("/actions/invoke", h.InvokeTool)
		r.Get("/actions/pending", h.ListPendingActions)
		r.Post("/actions/rollback", h.RollbackAction)
		r.Get("/actions/{id}", h.GetAction)
		r.Get("/actions/{id}/preview", h.GetActionPreview)
		r.Post("/actions/{id}/approve", h.ApproveAction)
		r.Post("/actions/{id}/reject", h.RejectAction)

		r.Get("/stats", h.GetStats)
	})
}
