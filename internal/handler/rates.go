package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/Dan9191/cuotificador/internal/importer"
	"github.com/Dan9191/cuotificador/internal/models"
	"github.com/Dan9191/cuotificador/internal/service"
)

// ListRates returns stored entries, optionally filtered by bank_id and card_id
func (h *Handler) ListRates(w http.ResponseWriter, r *http.Request) {
	var filter service.RateFilter
	if r.URL.Query().Has("bank_id") {
		id, err := queryInt64(r, "bank_id")
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		filter.BankID = &id
	}
	if r.URL.Query().Has("card_id") {
		id, err := queryInt64(r, "card_id")
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		filter.CardID = &id
	}
	h.writeJSON(w, http.StatusOK, h.svc.ListRates(r.Context(), filter))
}

// CreateRate adds an entry and rejects duplicates
func (h *Handler) CreateRate(w http.ResponseWriter, r *http.Request) {
	var entry models.RateEntry
	if !h.decode(w, r, &entry) {
		return
	}
	saved, err := h.svc.CreateRate(r.Context(), entry)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, saved)
}

// SaveRate adds an entry or updates the one with the same key
func (h *Handler) SaveRate(w http.ResponseWriter, r *http.Request) {
	var entry models.RateEntry
	if !h.decode(w, r, &entry) {
		return
	}
	saved, err := h.svc.SaveRate(r.Context(), entry)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, saved)
}

type rateUpdate struct {
	Rate           decimal.Decimal `json:"rate"`
	FixedSurcharge decimal.Decimal `json:"fixed_surcharge"`
}

// UpdateRate changes the figures of an entry
func (h *Handler) UpdateRate(w http.ResponseWriter, r *http.Request) {
	var body rateUpdate
	if !h.decode(w, r, &body) {
		return
	}
	saved, err := h.svc.UpdateRate(r.Context(), pathID(r, "id"), body.Rate, body.FixedSurcharge)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, saved)
}

// RemoveRate deletes an entry
func (h *Handler) RemoveRate(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.RemoveRate(r.Context(), pathID(r, "id")); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ReplaceRates replaces every entry of a bank and card
func (h *Handler) ReplaceRates(w http.ResponseWriter, r *http.Request) {
	var entries []models.RateEntry
	if !h.decode(w, r, &entries) {
		return
	}
	bankID, cardID := pathID(r, "bankID"), pathID(r, "cardID")
	if err := h.svc.ReplaceRates(r.Context(), bankID, cardID, entries); err != nil {
		h.writeError(w, r, err)
		return
	}
	bank, card := bankID, cardID
	h.writeJSON(w, http.StatusOK, h.svc.ListRates(r.Context(), service.RateFilter{BankID: &bank, CardID: &card}))
}

type resolution struct {
	Rate           decimal.Decimal   `json:"rate"`
	FixedSurcharge decimal.Decimal   `json:"fixed_surcharge"`
	Tier           string            `json:"tier"`
	Entry          *models.RateEntry `json:"entry,omitempty"`
}

// ResolveRate returns the configured rate for a combination without the default ladder
func (h *Handler) ResolveRate(w http.ResponseWriter, r *http.Request) {
	var key models.RateKey
	var err error
	if key.BankID, err = queryInt64(r, "bank_id"); err != nil {
		h.writeError(w, r, err)
		return
	}
	if key.CardID, err = queryInt64(r, "card_id"); err != nil {
		h.writeError(w, r, err)
		return
	}
	n, err := queryInt64(r, "installments")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	key.Installments = int(n)

	res, err := h.svc.ResolveConfigured(r.Context(), key)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, resolution{
		Rate:           res.Rate,
		FixedSurcharge: res.FixedSurcharge,
		Tier:           string(res.Tier),
		Entry:          res.Entry,
	})
}

// ImportRates reads a CSV or XML body. Partially rejected imports answer 207
// with the summary.
func (h *Handler) ImportRates(w http.ResponseWriter, r *http.Request) {
	summary, err := h.svc.ImportRates(r.Context(), requestFormat(r), r.Body)
	switch {
	case errors.Is(err, models.ErrPartialImportFailure):
		h.writeJSON(w, http.StatusMultiStatus, summary)
	case err != nil:
		h.writeError(w, r, err)
	default:
		h.writeJSON(w, http.StatusOK, summary)
	}
}

// ExportRates writes every entry as CSV, XML or JSON
func (h *Handler) ExportRates(w http.ResponseWriter, r *http.Request) {
	rows, err := h.svc.ExportRates(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	format := requestFormat(r)
	switch format {
	case importer.FormatCSV:
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", `attachment; filename="rates.csv"`)
		err = importer.WriteCSV(w, rows)
	case importer.FormatXML:
		w.Header().Set("Content-Type", "application/xml; charset=utf-8")
		w.Header().Set("Content-Disposition", `attachment; filename="rates.xml"`)
		err = importer.WriteXML(w, rows)
	case "json":
		h.writeJSON(w, http.StatusOK, rows)
	default:
		h.writeError(w, r, fmt.Errorf("%w: unsupported export format %q", models.ErrInvalidInput, format))
	}
	if err != nil {
		h.log.Errorf("Error writing %s export: %v", format, err)
	}
}

// requestFormat takes ?format= first, then the content type. CSV is the default.
func requestFormat(r *http.Request) string {
	if f := r.URL.Query().Get("format"); f != "" {
		return strings.ToLower(f)
	}
	ct := r.Header.Get("Content-Type")
	if r.Method == http.MethodGet {
		ct = r.Header.Get("Accept")
	}
	switch {
	case strings.Contains(ct, "xml"):
		return importer.FormatXML
	case strings.Contains(ct, "json") && r.Method == http.MethodGet:
		return "json"
	default:
		return importer.FormatCSV
	}
}
