package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signed(t *testing.T, secret string, claims jwt.RegisteredClaims) string {
	t.Helper()
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return raw
}

func echoUser() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(UserID(r.Context())))
	})
}

func TestUserAuth(t *testing.T) {
	h := UserAuth("s3cret", "commshub")(echoUser())
	future := jwt.NewNumericDate(time.Now().Add(time.Hour))

	tests := []struct {
		name   string
		header string
		status int
		body   string
	}{
		{name: "valid", header: "Bearer " + signed(t, "s3cret", jwt.RegisteredClaims{Subject: "u1", Issuer: "commshub", ExpiresAt: future}), status: http.StatusOK, body: "u1"},
		{name: "missing", header: "", status: http.StatusUnauthorized},
		{name: "wrong secret", header: "Bearer " + signed(t, "other", jwt.RegisteredClaims{Subject: "u1", Issuer: "commshub", ExpiresAt: future}), status: http.StatusUnauthorized},
		{name: "wrong issuer", header: "Bearer " + signed(t, "s3cret", jwt.RegisteredClaims{Subject: "u1", Issuer: "someone", ExpiresAt: future}), status: http.StatusUnauthorized},
		{name: "expired", header: "Bearer " + signed(t, "s3cret", jwt.RegisteredClaims{Subject: "u1", Issuer: "commshub", ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute))}), status: http.StatusUnauthorized},
		{name: "no expiry", header: "Bearer " + signed(t, "s3cret", jwt.RegisteredClaims{Subject: "u1", Issuer: "commshub"}), status: http.StatusUnauthorized},
		{name: "no subject", header: "Bearer " + signed(t, "s3cret", jwt.RegisteredClaims{Issuer: "commshub", ExpiresAt: future}), status: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/drive/status", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tt.status, rec.Code)
			if tt.body != "" {
				assert.Equal(t, tt.body, rec.Body.String())
			}
		})
	}
}

func TestUserAuth_DevHeader(t *testing.T) {
	h := UserAuth("", "")(echoUser())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(DevUserHeader, "dev-user")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "dev-user", rec.Body.String())

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
