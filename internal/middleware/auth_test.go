package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dan9191/cuotificador/internal/permissions"
)

func TestIssueAndParseToken(t *testing.T) {
	p := permissions.Principal{Subject: "42", Role: "cashier", Capabilities: []permissions.Capability{permissions.SyncExternal}}
	raw, err := IssueToken("secret", p, time.Hour)
	require.NoError(t, err)

	got, err := ParseToken("secret", raw)
	require.NoError(t, err)
	assert.Equal(t, p, got)

	_, err = ParseToken("other", raw)
	assert.Error(t, err)

	expired, err := IssueToken("secret", p, -time.Minute)
	require.NoError(t, err)
	_, err = ParseToken("secret", expired)
	assert.Error(t, err)
}

func TestAuthMiddleware(t *testing.T) {
	var seen *permissions.Principal
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if p, ok := permissions.PrincipalFrom(r.Context()); ok {
			seen = &p
		}
		w.WriteHeader(http.StatusNoContent)
	})
	h := AuthMiddleware("secret", logrus.New())(next)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/quotes", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Nil(t, seen)

	raw, err := IssueToken("secret", permissions.Principal{Subject: "1", Role: "admin"}, time.Hour)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/quotes", nil)
	req.Header.Set("Authorization", "Bearer "+raw)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	require.NotNil(t, seen)
	assert.Equal(t, "admin", seen.Role)

	req = httptest.NewRequest(http.MethodGet, "/quotes", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
