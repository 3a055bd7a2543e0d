package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/isdelr/neuroscan-be/internal/models"
	"gotest.tools/v3/assert"
)

func TestGenerateAndValidate(t *testing.T) {
	issuer := NewIssuer("test-secret", time.Hour)
	token, err := issuer.Generate(models.User{ID: 12, Account: "acct"})
	assert.NilError(t, err)

	claims, err := issuer.Validate(token)
	assert.NilError(t, err)
	assert.Equal(t, claims.UserID, int64(12))
	assert.Equal(t, claims.Account, "acct")

	_, err = NewIssuer("other-secret", time.Hour).Validate(token)
	assert.ErrorContains(t, err, "signature")
}

func TestExpiredTokenRejected(t *testing.T) {
	issuer := NewIssuer("s", -time.Minute)
	token, err := issuer.Generate(models.User{ID: 1})
	assert.NilError(t, err)
	_, err = issuer.Validate(token)
	assert.ErrorContains(t, err, "expired")
}

func TestGenerateWithoutSecret(t *testing.T) {
	_, err := NewIssuer("", time.Hour).Generate(models.User{ID: 1})
	assert.ErrorContains(t, err, "not configured")
}

func TestMiddleware(t *testing.T) {
	issuer := NewIssuer("secret", time.Hour)
	token, err := issuer.Generate(models.User{ID: 5})
	assert.NilError(t, err)

	var permitted5, permitted6 bool
	h := issuer.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		permitted5 = Permits(r.Context(), 5)
		permitted6 = Permits(r.Context(), 6)
	}))

	// No token: trusted.
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, rec.Code, http.StatusOK)
	assert.Assert(t, permitted5 && permitted6)

	// Valid token: bound to its user.
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, rec.Code, http.StatusOK)
	assert.Assert(t, permitted5)
	assert.Assert(t, !permitted6)

	// Forged token: rejected.
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer not.a.token")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, rec.Code, http.StatusUnauthorized)
}
