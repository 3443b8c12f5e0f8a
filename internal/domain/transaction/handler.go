package transaction

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/gurutvapay/checkout-api/internal/pkg/response"
)

// Handler handles transaction HTTP requests
type Handler struct {
	service *Service
}

// NewHandler creates transaction handler
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// List handles GET /transactions
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	limit := 50
	offset := 0
	if l := r.URL.Query().Get("limit"); l != "" {
		if v, err := strconv.Atoi(l); err == nil && v > 0 && v <= 100 {
			limit = v
		}
	}
	if o := r.URL.Query().Get("offset"); o != "" {
		if v, err := strconv.Atoi(o); err == nil && v >= 0 {
			offset = v
		}
	}

	transactions, err := h.service.List(r.Context(), limit, offset)
	if err != nil {
		response.InternalError(w)
		return
	}

	items := make([]*TransactionResponse, len(transactions))
	for i, t := range transactions {
		items[i] = TransactionResponseFromEntity(t)
	}

	response.OK(w, items)
}

// Get handles GET /transactions/{merchantOrderId}
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	merchantOrderID := chi.URLParam(r, "merchantOrderId")
	if merchantOrderID == "" {
		response.BadRequest(w, "Missing merchant order ID")
		return
	}

	t, err := h.service.Get(r.Context(), merchantOrderID)
	if err != nil {
		switch err {
		case ErrTransactionNotFound:
			response.NotFound(w, "Transaction not found")
		default:
			response.InternalError(w)
		}
		return
	}

	response.OK(w, TransactionResponseFromEntity(t))
}

// Refresh handles POST /transactions/{merchantOrderId}/refresh
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	merchantOrderID := chi.URLParam(r, "merchantOrderId")
	if merchantOrderID == "" {
		response.BadRequest(w, "Missing merchant order ID")
		return
	}

	t, err := h.service.Refresh(r.Context(), merchantOrderID)
	if err != nil {
		switch err {
		case ErrTransactionNotFound:
			response.NotFound(w, "Transaction not found")
		default:
			response.Error(w, http.StatusBadGateway, "gateway_error", "Status check failed")
		}
		return
	}

	response.OK(w, TransactionResponseFromEntity(t))
}
