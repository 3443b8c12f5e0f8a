package transaction

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Routes returns the transaction router
func (h *Handler) Routes(apiKeyMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()

	r.Use(apiKeyMiddleware)

	r.Get("/", h.List)
	r.Get("/{merchantOrderId}", h.Get)
	r.Post("/{merchantOrderId}/refresh", h.Refresh)

	return r
}
