package handler

import (
	"net/http"

	"github.com/Dan9191/cuotificador/internal/service"
)

// Quote prices a purchase against local rates
func (h *Handler) Quote(w http.ResponseWriter, r *http.Request) {
	var req service.QuoteRequest
	if !h.decode(w, r, &req) {
		return
	}
	q, err := h.svc.Quote(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, q)
}

// LiveQuote prices a point-of-sale purchase against the provider when possible
func (h *Handler) LiveQuote(w http.ResponseWriter, r *http.Request) {
	var req service.QuoteRequest
	if !h.decode(w, r, &req) {
		return
	}
	q, err := h.svc.LiveQuote(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, q)
}

// PlanOptions lists a quote per installment count offered for a bank and card
func (h *Handler) PlanOptions(w http.ResponseWriter, r *http.Request) {
	bankID, err := queryInt64(r, "bank_id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	cardID, err := queryInt64(r, "card_id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	amount, err := queryDecimal(r, "amount")
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	quotes, err := h.svc.PlanOptions(r.Context(), bankID, cardID, amount, r.URL.Query().Get("strategy"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, quotes)
}
