package session

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Routes returns the checkout session router
func (h *Handler) Routes(apiKeyMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()

	// All routes require merchant authentication
	r.Use(apiKeyMiddleware)

	r.Post("/sessions", h.Create)
	r.Get("/sessions/{id}", h.Get)
	r.Post("/sessions/{id}/cancel", h.Cancel)
	r.Post("/sessions/{id}/status", h.CheckStatus)

	return r
}

// BridgeRoute returns the WebSocket bridge handler. The bridge authenticates
// with its session token in the query string, not the merchant API key.
func (h *Handler) BridgeRoute() http.HandlerFunc {
	return h.Bridge
}
