package google

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pysugar/commshub/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewOAuthConfig(t *testing.T) {
	cfg := NewOAuthConfig(config.GoogleConfig{ClientID: " id ", ClientSecret: "secret"}, "https://hr.example.com/auth/google/callback")
	assert.Equal(t, "id", cfg.ClientID)
	assert.Equal(t, Scopes, cfg.Scopes)
	assert.True(t, IsConfigured(cfg))

	custom := NewOAuthConfig(config.GoogleConfig{Scopes: []string{"drive"}}, "")
	assert.Equal(t, []string{"drive"}, custom.Scopes)
	assert.False(t, IsConfigured(custom))
	assert.False(t, IsConfigured(nil))
}

func TestConsentOptions(t *testing.T) {
	cfg := NewOAuthConfig(config.GoogleConfig{ClientID: "id", ClientSecret: "s"}, "")

	public, err := url.Parse(cfg.AuthCodeURL("st", ConsentOptions("https://hr.example.com/cb")...))
	require.NoError(t, err)
	q := public.Query()
	assert.Equal(t, "offline", q.Get("access_type"))
	assert.Equal(t, "consent", q.Get("prompt"))
	assert.Empty(t, q.Get("device_id"))

	private, err := url.Parse(cfg.AuthCodeURL("st", ConsentOptions("http://192.168.1.20:8080/cb")...))
	require.NoError(t, err)
	assert.Len(t, private.Query().Get("device_id"), 32)
	assert.Equal(t, DeviceName, private.Query().Get("device_name"))

	local, err := url.Parse(cfg.AuthCodeURL("st", ConsentOptions("http://localhost:8080/cb")...))
	require.NoError(t, err)
	assert.Empty(t, local.Query().Get("device_id"))
}

func TestFetchUserInfo(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Test") == "fail" {
			http.Error(w, "nope", http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`{"id":"123","email":"ana@example.com","name":"Ana"}`))
	}))
	defer srv.Close()

	info, err := FetchUserInfo(context.Background(), srv.Client(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, &Identity{ID: "123", Email: "ana@example.com", Name: "Ana"}, info)

	failing := &http.Client{Transport: headerTransport{"X-Test", "fail", http.DefaultTransport}}
	_, err = FetchUserInfo(context.Background(), failing, srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

type headerTransport struct {
	key, value string
	next       http.RoundTripper
}

func (h headerTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	r = r.Clone(r.Context())
	r.Header.Set(h.key, h.value)
	return h.next.RoundTrip(r)
}

func TestIdentityFromIDToken(t *testing.T) {
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   "google-sub",
		"email": "bo@example.com",
		"name":  "Bo",
	})
	raw, err := tok.SignedString([]byte("unused"))
	require.NoError(t, err)

	info, err := IdentityFromIDToken(raw)
	require.NoError(t, err)
	assert.Equal(t, "google-sub", info.ID)
	assert.Equal(t, "bo@example.com", info.Email)
	assert.Equal(t, "Bo", info.Name)

	_, err = IdentityFromIDToken("")
	assert.Error(t, err)
	_, err = IdentityFromIDToken("not.a.jwt")
	assert.Error(t, err)
}
