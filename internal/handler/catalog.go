package handler

import (
	"net/http"

	"github.com/Dan9191/cuotificador/internal/models"
)

type bankRequest struct {
	Name        string                 `json:"name"`
	Code        string                 `json:"code"`
	APIEnabled  bool                   `json:"api_enabled"`
	Provider    string                 `json:"provider"`
	Credentials *models.APICredentials `json:"credentials,omitempty"`
}

func (b bankRequest) bank(id int64) *models.Bank {
	return &models.Bank{
		ID:             id,
		Name:           b.Name,
		Code:           b.Code,
		APIEnabled:     b.APIEnabled,
		Provider:       b.Provider,
		APICredentials: b.Credentials,
	}
}

func (h *Handler) ListBanks(w http.ResponseWriter, r *http.Request) {
	banks, err := h.svc.ListBanks(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, banks)
}

func (h *Handler) GetBank(w http.ResponseWriter, r *http.Request) {
	bank, err := h.svc.GetBank(r.Context(), pathID(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, bank)
}

func (h *Handler) CreateBank(w http.ResponseWriter, r *http.Request) {
	var req bankRequest
	if !h.decode(w, r, &req) {
		return
	}
	bank := req.bank(0)
	if err := h.svc.CreateBank(r.Context(), bank); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, bank)
}

func (h *Handler) UpdateBank(w http.ResponseWriter, r *http.Request) {
	var req bankRequest
	if !h.decode(w, r, &req) {
		return
	}
	bank := req.bank(pathID(r, "id"))
	if err := h.svc.UpdateBank(r.Context(), bank); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, bank)
}

func (h *Handler) ListCards(w http.ResponseWriter, r *http.Request) {
	cards, err := h.svc.ListCards(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, cards)
}

func (h *Handler) GetCard(w http.ResponseWriter, r *http.Request) {
	card, err := h.svc.GetCard(r.Context(), pathID(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, card)
}

func (h *Handler) CreateCard(w http.ResponseWriter, r *http.Request) {
	var card models.Card
	if !h.decode(w, r, &card) {
		return
	}
	card.ID = 0
	if err := h.svc.CreateCard(r.Context(), &card); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, card)
}

func (h *Handler) UpdateCard(w http.ResponseWriter, r *http.Request) {
	var card models.Card
	if !h.decode(w, r, &card) {
		return
	}
	card.ID = pathID(r, "id")
	if err := h.svc.UpdateCard(r.Context(), &card); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, card)
}

// SyncAll reconciles every bank with its provider
func (h *Handler) SyncAll(w http.ResponseWriter, r *http.Request) {
	report, err := h.svc.SyncAll(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, report)
}

// SyncBank reconciles one bank
func (h *Handler) SyncBank(w http.ResponseWriter, r *http.Request) {
	result, err := h.svc.SyncBank(r.Context(), pathID(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}
