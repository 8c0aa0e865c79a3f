package messaging

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// RegisterRoutes mounts the messaging API behind bearer auth. stream may be
// nil when realtime delivery is disabled.
func RegisterRoutes(r chi.Router, h *Handler, jwtSecret string, stream http.Handler) {
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(jwtSecret))

		r.Get("/api/messages", h.ListInbox)
		if stream != nil {
			r.Method(http.MethodGet, "/api/events", stream)
		}
		r.Get("/api/messages/{counterpartId}", h.ListConversation)
		r.Post("/api/messages", h.Send)
		r.Delete("/api/messages/{messageId}", h.DeleteMessage)
		r.Delete("/api/conversations/{counterpartId}", h.ClearConversation)
	})
}
