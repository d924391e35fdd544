package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/Dan9191/cuotificador/internal/models"
	"github.com/Dan9191/cuotificador/internal/service"
)

type Handler struct {
	svc *service.Service
	log *logrus.Logger
}

func NewHandler(svc *service.Service, log *logrus.Logger) *Handler {
	return &Handler{svc: svc, log: log}
}

// Routes registers every endpoint on r
func (h *Handler) Routes(r *mux.Router) {
	r.HandleFunc("/quotes", h.Quote).Methods(http.MethodPost)
	r.HandleFunc("/quotes/live", h.LiveQuote).Methods(http.MethodPost)
	r.HandleFunc("/plans", h.PlanOptions).Methods(http.MethodGet)

	r.HandleFunc("/rates", h.ListRates).Methods(http.MethodGet)
	r.HandleFunc("/rates", h.CreateRate).Methods(http.MethodPost)
	r.HandleFunc("/rates", h.SaveRate).Methods(http.MethodPut)
	r.HandleFunc("/rates/resolve", h.ResolveRate).Methods(http.MethodGet)
	r.HandleFunc("/rates/import", h.ImportRates).Methods(http.MethodPost)
	r.HandleFunc("/rates/export", h.ExportRates).Methods(http.MethodGet)
	r.HandleFunc("/rates/{id:[0-9]+}", h.UpdateRate).Methods(http.MethodPut)
	r.HandleFunc("/rates/{id:[0-9]+}", h.RemoveRate).Methods(http.MethodDelete)

	r.HandleFunc("/banks", h.ListBanks).Methods(http.MethodGet)
	r.HandleFunc("/banks", h.CreateBank).Methods(http.MethodPost)
	r.HandleFunc("/banks/{id:[0-9]+}", h.GetBank).Methods(http.MethodGet)
	r.HandleFunc("/banks/{id:[0-9]+}", h.UpdateBank).Methods(http.MethodPut)
	r.HandleFunc("/banks/{bankID:[0-9]+}/cards/{cardID:[0-9]+}/rates", h.ReplaceRates).Methods(http.MethodPut)
	r.HandleFunc("/banks/{id:[0-9]+}/sync", h.SyncBank).Methods(http.MethodPost)

	r.HandleFunc("/cards", h.ListCards).Methods(http.MethodGet)
	r.HandleFunc("/cards", h.CreateCard).Methods(http.MethodPost)
	r.HandleFunc("/cards/{id:[0-9]+}", h.GetCard).Methods(http.MethodGet)
	r.HandleFunc("/cards/{id:[0-9]+}", h.UpdateCard).Methods(http.MethodPut)

	r.HandleFunc("/sync", h.SyncAll).Methods(http.MethodPost)
}

// writeJSON encodes into a buffer first so a failed encode never leaves a half-written body
func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		h.log.Errorf("Error encoding response: %v", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := buf.WriteTo(w); err != nil {
		h.log.Warnf("Error writing response: %v", err)
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

// writeError maps domain errors to status codes
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.log.WithField("path", r.URL.Path).Errorf("Request failed: %v", err)
	} else {
		h.log.WithField("path", r.URL.Path).Debugf("Request rejected: %v", err)
	}
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal server error"
	}
	h.writeJSON(w, status, errorResponse{Error: msg})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrInvalidAmount),
		errors.Is(err, models.ErrInvalidInstallmentCount),
		errors.Is(err, models.ErrInvalidRate),
		errors.Is(err, models.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, models.ErrNotFound), errors.Is(err, models.ErrNotConfigured):
		return http.StatusNotFound
	case errors.Is(err, models.ErrDuplicateConflict):
		return http.StatusConflict
	case errors.Is(err, models.ErrExternalProvider):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		h.log.Debugf("Error decoding request body: %v", err)
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return false
	}
	return true
}

func pathID(r *http.Request, name string) int64 {
	// Routes only match digits
	id, _ := strconv.ParseInt(mux.Vars(r)[name], 10, 64)
	return id
}

func queryInt64(r *http.Request, name string) (int64, error) {
	raw := r.URL.Query().Get(name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, &paramError{name: name, value: raw}
	}
	return id, nil
}

func queryDecimal(r *http.Request, name string) (decimal.Decimal, error) {
	raw := r.URL.Query().Get(name)
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, &paramError{name: name, value: raw}
	}
	return d, nil
}

type paramError struct {
	name, value string
}

func (e *paramError) Error() string {
	return "invalid query parameter " + e.name + "=" + strconv.Quote(e.value)
}

func (e *paramError) Unwrap() error { return models.ErrInvalidInput }
