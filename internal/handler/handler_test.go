package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dan9191/cuotificador/internal/middleware"
	"github.com/Dan9191/cuotificador/internal/models"
	"github.com/Dan9191/cuotificador/internal/permissions"
	"github.com/Dan9191/cuotificador/internal/quote"
	"github.com/Dan9191/cuotificador/internal/rates"
	"github.com/Dan9191/cuotificador/internal/reconciler"
	"github.com/Dan9191/cuotificador/internal/repository"
	"github.com/Dan9191/cuotificador/internal/service"
	"github.com/Dan9191/cuotificador/internal/utils"
)

const secret = "handler-test"

type testServer struct {
	router http.Handler
	repo   *repository.Repository
}

func newTestServer(t *testing.T) testServer {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)

	db, err := repository.Open(repository.DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, repository.Migrate(db, repository.DriverSQLite))
	key, err := utils.DeriveKey(secret)
	require.NoError(t, err)
	repo := repository.NewRepository(db, key)

	table := rates.NewTable(repo)
	require.NoError(t, table.Reload(context.Background()))
	resolver := rates.NewResolver(table, rates.DefaultLadder)
	quoter := quote.NewQuoter(resolver, nil)
	rec := reconciler.New(repo, table, quoter, map[string]reconciler.Provider{}, nil, log)
	svc := service.NewService(repo, table, resolver, quoter, rec, permissions.NewGate(permissions.DefaultRolePolicy()), nil, log)

	r := mux.NewRouter()
	r.Use(middleware.AuthMiddleware(secret, log))
	NewHandler(svc, log).Routes(r)
	return testServer{router: r, repo: repo}
}

func (s testServer) do(t *testing.T, role, method, target, contentType, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if role != "" {
		token, err := middleware.IssueToken(secret, permissions.Principal{Subject: "1", Role: role}, time.Hour)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func seed(t *testing.T, s testServer) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.repo.CreateBank(ctx, &models.Bank{Name: "Banco Galicia", Code: "GAL"}))
	require.NoError(t, s.repo.CreateCard(ctx, &models.Card{Name: "Visa", Code: "VISA", Type: models.CardTypeCredit}))
}

func TestQuoteFlow(t *testing.T) {
	s := newTestServer(t)
	seed(t, s)

	rec := s.do(t, "admin", http.MethodPost, "/rates", "application/json",
		`{"bank_id":1,"card_id":1,"installments":6,"rate":"25","fixed_surcharge":"0"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = s.do(t, "admin", http.MethodPost, "/rates", "application/json",
		`{"bank_id":1,"card_id":1,"installments":6,"rate":"30","fixed_surcharge":"0"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(t, "", http.MethodPost, "/quotes", "application/json",
		`{"bank_id":1,"card_id":1,"installments":6,"amount":100000}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	q := decodeBody[models.Quote](t, rec)
	assert.True(t, q.TotalWithInterest.Equal(decimal.NewFromInt(112500)))
	assert.True(t, q.PerInstallment.Equal(decimal.NewFromInt(18750)))
	assert.Equal(t, "exact", q.Tier)

	rec = s.do(t, "", http.MethodPost, "/quotes/live", "application/json",
		`{"bank_id":1,"card_id":1,"installments":6,"amount":100000}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.QuoteSourceLocal, decodeBody[models.Quote](t, rec).Source)

	rec = s.do(t, "", http.MethodGet, "/plans?bank_id=1&card_id=1&amount=1000", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]models.Quote](t, rec), 1)

	rec = s.do(t, "", http.MethodGet, "/rates/resolve?bank_id=1&card_id=1&installments=12", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code, "configuration path has no ladder")
}

func TestErrorStatuses(t *testing.T) {
	s := newTestServer(t)
	seed(t, s)

	tests := []struct {
		name   string
		role   string
		method string
		target string
		body   string
		want   int
	}{
		{"zero amount", "", http.MethodPost, "/quotes", `{"bank_id":1,"card_id":1,"installments":3,"amount":0}`, http.StatusBadRequest},
		{"zero installments", "", http.MethodPost, "/quotes", `{"bank_id":1,"card_id":1,"installments":0,"amount":10}`, http.StatusBadRequest},
		{"bad body", "", http.MethodPost, "/quotes", `{`, http.StatusBadRequest},
		{"bad query", "", http.MethodGet, "/plans?bank_id=x&card_id=1&amount=1", "", http.StatusBadRequest},
		{"cashier creates rate", "cashier", http.MethodPost, "/rates", `{"bank_id":1,"card_id":1,"installments":3,"rate":"1"}`, http.StatusForbidden},
		{"anonymous sync", "", http.MethodPost, "/sync", "", http.StatusForbidden},
		{"negative rate", "admin", http.MethodPost, "/rates", `{"bank_id":1,"card_id":1,"installments":3,"rate":"-1"}`, http.StatusBadRequest},
		{"missing rate", "admin", http.MethodDelete, "/rates/42", "", http.StatusNotFound},
		{"missing bank", "", http.MethodGet, "/banks/9", "", http.StatusNotFound},
		{"supervisor creates bank", "supervisor", http.MethodPost, "/banks", `{"name":"HSBC","code":"HSBC"}`, http.StatusForbidden},
		{"duplicate bank", "admin", http.MethodPost, "/banks", `{"name":"Otro","code":"gal"}`, http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, tt.role, tt.method, tt.target, "application/json", tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}

	req := httptest.NewRequest(http.MethodGet, "/rates", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestImportExport(t *testing.T) {
	s := newTestServer(t)
	seed(t, s)

	csv := "bank_code,card_code,installments,rate,fixed_surcharge\nBNA,VISA,3,10,0\nGAL,VISA,3,12,0\n*,VISA,6,20,50\n"
	rec := s.do(t, "supervisor", http.MethodPost, "/rates/import", "text/csv", csv)
	require.Equal(t, http.StatusMultiStatus, rec.Code, rec.Body.String())
	summary := decodeBody[models.ImportSummary](t, rec)
	assert.Equal(t, 2, summary.ImportedCount)
	assert.Equal(t, 1, summary.ErrorCount)
	assert.Equal(t, 1, summary.ErrorDetails[0].Row)

	rec = s.do(t, "supervisor", http.MethodGet, "/rates/export?format=csv", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "*,,VISA,Visa,6,20,50", lines[1])
	assert.Equal(t, "GAL,Banco Galicia,VISA,Visa,3,12,0", lines[2])

	rec = s.do(t, "supervisor", http.MethodGet, "/rates/export?format=xml", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "<bank_name>Banco Galicia</bank_name>")

	rec = s.do(t, "supervisor", http.MethodPost, "/rates/import?format=xml", "", "<rates/>")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestBankAndReplaceRates(t *testing.T) {
	s := newTestServer(t)
	seed(t, s)

	rec := s.do(t, "admin", http.MethodPost, "/banks", "application/json",
		`{"name":"Banco Nación","code":"NAC","api_enabled":true,"provider":"payway","credentials":{"api_key":"k","api_secret":"s"}}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "api_secret")
	bank := decodeBody[models.Bank](t, rec)

	rec = s.do(t, "admin", http.MethodPut, "/banks/2/cards/1/rates", "application/json",
		`[{"installments":3,"rate":"10"},{"installments":6,"rate":"18"}]`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Len(t, decodeBody[[]models.RateEntry](t, rec), 2)
	assert.Equal(t, int64(2), bank.ID)

	rec = s.do(t, "admin", http.MethodPost, "/banks/2/sync", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	result := decodeBody[models.BankSyncResult](t, rec)
	assert.False(t, result.Success, "no payway client configured")
	assert.NotEmpty(t, result.Error)

	rec = s.do(t, "admin", http.MethodGet, "/rates?bank_id=2", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]models.RateEntry](t, rec), 2, "failed sync leaves rates intact")
}
