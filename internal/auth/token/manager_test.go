package token

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pysugar/commshub/internal/db"
	"github.com/pysugar/commshub/internal/db/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

// memStore is an in-memory CredentialStore.
type memStore struct {
	mu     sync.Mutex
	creds  map[string]models.Credential
	states map[string]models.OAuthState
	saves  int
	getErr error
}

func newMemStore() *memStore {
	return &memStore{creds: map[string]models.Credential{}, states: map[string]models.OAuthState{}}
}

func key(userID, provider string) string { return userID + "|" + provider }

func (s *memStore) GetCredential(_ context.Context, userID, provider string) (*models.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	c, ok := s.creds[key(userID, provider)]
	if !ok {
		return nil, db.ErrNotFound
	}
	return &c, nil
}

func (s *memStore) SaveCredential(_ context.Context, cred *models.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cred.ID == "" {
		cred.ID = "cred-" + cred.UserID
	}
	s.creds[key(cred.UserID, cred.Provider)] = *cred
	s.saves++
	return nil
}

func (s *memStore) SaveState(_ context.Context, st *models.OAuthState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[key(st.UserID, st.Provider)] = *st
	return nil
}

func (s *memStore) ConsumeState(_ context.Context, userID, provider string) (*models.OAuthState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[key(userID, provider)]
	if !ok {
		return nil, db.ErrNotFound
	}
	delete(s.states, key(userID, provider))
	return &st, nil
}

func (s *memStore) FindStateOwner(_ context.Context, state, provider string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, st := range s.states {
		if st.State == state && st.Provider == provider {
			return st.UserID, nil
		}
	}
	return "", db.ErrNotFound
}

func (s *memStore) HasPendingState(_ context.Context, userID, provider string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[key(userID, provider)]
	return ok && st.ExpiresAt.After(now), nil
}

func (s *memStore) cred(t *testing.T, userID string) models.Credential {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.creds[key(userID, models.ProviderGoogleDrive)]
	require.True(t, ok, "credential for %s not stored", userID)
	return c
}

// fakeGoogle serves token, userinfo and revoke endpoints.
type fakeGoogle struct {
	srv          *httptest.Server
	exchanges    atomic.Int32
	refreshes    atomic.Int32
	revokes      atomic.Int32
	refreshDelay time.Duration
	refreshError string // OAuth error code returned by refresh, if set
	exchangeFail bool
	omitRefresh  bool
	userInfoFail bool
}

func newFakeGoogle(t *testing.T) *fakeGoogle {
	t.Helper()
	g := &fakeGoogle{}
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		w.Header().Set("Content-Type", "application/json")
		switch r.Form.Get("grant_type") {
		case "authorization_code":
			g.exchanges.Add(1)
			if g.exchangeFail || r.Form.Get("code") != "good-code" {
				w.WriteHeader(http.StatusBadRequest)
				w.Write([]byte(`{"error":"invalid_grant","error_description":"Malformed auth code."}`))
				return
			}
			resp := map[string]any{
				"access_token": "access-1",
				"token_type":   "Bearer",
				"expires_in":   3600,
				"scope":        "openid https://www.googleapis.com/auth/drive.file",
			}
			if !g.omitRefresh {
				resp["refresh_token"] = "refresh-1"
			}
			json.NewEncoder(w).Encode(resp)
		case "refresh_token":
			n := g.refreshes.Add(1)
			if g.refreshDelay > 0 {
				time.Sleep(g.refreshDelay)
			}
			if g.refreshError != "" {
				w.WriteHeader(http.StatusBadRequest)
				json.NewEncoder(w).Encode(map[string]string{"error": g.refreshError})
				return
			}
			json.NewEncoder(w).Encode(map[string]any{
				"access_token": "refreshed-" + string(rune('0'+n)),
				"token_type":   "Bearer",
				"expires_in":   3600,
			})
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		if g.userInfoFail {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"id":"g-123","email":"ana@example.com","name":"Ana"}`))
	})
	mux.HandleFunc("/revoke", func(w http.ResponseWriter, r *http.Request) {
		g.revokes.Add(1)
		w.WriteHeader(http.StatusOK)
	})
	g.srv = httptest.NewServer(mux)
	t.Cleanup(g.srv.Close)
	return g
}

func newTestManager(t *testing.T, store CredentialStore, g *fakeGoogle, opts ...Option) *Manager {
	t.Helper()
	cfg := &oauth2.Config{
		ClientID:     "client",
		ClientSecret: "secret",
		RedirectURL:  "http://localhost/auth/google/callback",
		Scopes:       []string{"openid"},
		Endpoint: oauth2.Endpoint{
			AuthURL:   g.srv.URL + "/auth",
			TokenURL:  g.srv.URL + "/token",
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
	base := []Option{
		WithHTTPClient(g.srv.Client()),
		WithUserInfoURL(g.srv.URL + "/userinfo"),
		WithRevokeURL(g.srv.URL + "/revoke"),
	}
	return NewManager(store, cfg, append(base, opts...)...)
}

func connect(t *testing.T, m *Manager, userID string) *models.Credential {
	t.Helper()
	ctx := context.Background()
	_, state, err := m.GenerateAuthorizationURL(ctx, userID)
	require.NoError(t, err)
	cred, err := m.CompleteAuthorization(ctx, "good-code", state, userID)
	require.NoError(t, err)
	return cred
}

func TestGenerateAuthorizationURL(t *testing.T) {
	store := newMemStore()
	m := newTestManager(t, store, newFakeGoogle(t))

	authURL, state, err := m.GenerateAuthorizationURL(context.Background(), "u1")
	require.NoError(t, err)
	require.NotEmpty(t, state)

	u, err := url.Parse(authURL)
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, state, q.Get("state"))
	assert.Equal(t, "offline", q.Get("access_type"))
	assert.Equal(t, "consent", q.Get("prompt"))
	assert.Equal(t, "client", q.Get("client_id"))

	owner, err := m.StateOwner(context.Background(), state)
	require.NoError(t, err)
	assert.Equal(t, "u1", owner)

	info := m.GetConnectionInfo(context.Background(), "u1")
	assert.Equal(t, models.SyncPending, info.SyncStatus)
	assert.False(t, info.Connected)
}

func TestGenerateAuthorizationURL_Unconfigured(t *testing.T) {
	store := newMemStore()
	m := NewManager(store, &oauth2.Config{ClientID: "only-id"})

	_, _, err := m.GenerateAuthorizationURL(context.Background(), "u1")
	assert.ErrorIs(t, err, ErrConfiguration)
	assert.Empty(t, store.states, "no state persisted without a client")

	_, err = m.CompleteAuthorization(context.Background(), "code", "state", "u1")
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestCompleteAuthorization_Success(t *testing.T) {
	store := newMemStore()
	g := newFakeGoogle(t)
	m := newTestManager(t, store, g)

	cred := connect(t, m, "u1")
	assert.True(t, cred.IsConnected)
	assert.Equal(t, models.SyncSuccess, cred.SyncStatus)
	assert.Equal(t, "access-1", cred.AccessToken)
	assert.Equal(t, "refresh-1", cred.RefreshToken)
	assert.Equal(t, "ana@example.com", cred.ProviderEmail)
	assert.Equal(t, "g-123", cred.ProviderUserID)
	assert.Equal(t, []string{"openid", "https://www.googleapis.com/auth/drive.file"}, cred.Scopes)
	assert.NotNil(t, cred.LastSyncAt)

	// The state is single use.
	_, err := m.CompleteAuthorization(context.Background(), "good-code", "anything", "u1")
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.Equal(t, int32(1), g.exchanges.Load())
}

func TestCompleteAuthorization_ReconnectKeepsRowAndRefreshToken(t *testing.T) {
	store := newMemStore()
	g := newFakeGoogle(t)
	m := newTestManager(t, store, g)

	first := connect(t, m, "u1")
	g.omitRefresh = true
	second := connect(t, m, "u1")

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "refresh-1", second.RefreshToken)
	assert.Len(t, store.creds, 1)
}

func TestCompleteAuthorization_StateMismatch(t *testing.T) {
	store := newMemStore()
	g := newFakeGoogle(t)
	m := newTestManager(t, store, g)
	ctx := context.Background()

	_, _, err := m.GenerateAuthorizationURL(ctx, "u1")
	require.NoError(t, err)
	_, err = m.CompleteAuthorization(ctx, "good-code", "forged", "u1")
	assert.ErrorIs(t, err, ErrInvalidState)

	// Another user's valid state does not work for u1 either.
	_, otherState, err := m.GenerateAuthorizationURL(ctx, "u2")
	require.NoError(t, err)
	_, err = m.CompleteAuthorization(ctx, "good-code", otherState, "u1")
	assert.ErrorIs(t, err, ErrInvalidState)

	_, err = m.CompleteAuthorization(ctx, "good-code", "", "u3")
	assert.ErrorIs(t, err, ErrInvalidState)

	assert.Empty(t, store.creds, "no credential persisted on state mismatch")
	assert.Zero(t, g.exchanges.Load())
}

func TestCompleteAuthorization_ExpiredState(t *testing.T) {
	store := newMemStore()
	now := time.Now()
	clock := func() time.Time { return now }
	m := newTestManager(t, store, newFakeGoogle(t), WithClock(clock), WithStateTTL(time.Minute))

	_, state, err := m.GenerateAuthorizationURL(context.Background(), "u1")
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	_, err = m.CompleteAuthorization(context.Background(), "good-code", state, "u1")
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.Empty(t, store.creds)
}

func TestCompleteAuthorization_ExchangeRejected(t *testing.T) {
	store := newMemStore()
	m := newTestManager(t, store, newFakeGoogle(t))

	_, state, err := m.GenerateAuthorizationURL(context.Background(), "u1")
	require.NoError(t, err)
	_, err = m.CompleteAuthorization(context.Background(), "bad-code", state, "u1")
	assert.ErrorIs(t, err, ErrProviderExchange)
	assert.Empty(t, store.creds)
}

func TestCompleteAuthorization_IdentityFallbackNeverFails(t *testing.T) {
	store := newMemStore()
	g := newFakeGoogle(t)
	g.userInfoFail = true
	m := newTestManager(t, store, g)

	cred := connect(t, m, "u1")
	assert.True(t, cred.IsConnected)
	assert.Empty(t, cred.ProviderEmail)
}

func TestGetValidAccessToken_WithinMarginNoNetwork(t *testing.T) {
	store := newMemStore()
	g := newFakeGoogle(t)
	m := newTestManager(t, store, g)
	connect(t, m, "u1")

	first, err := m.GetValidAccessToken(context.Background(), "u1")
	require.NoError(t, err)
	second, err := m.GetValidAccessToken(context.Background(), "u1")
	require.NoError(t, err)

	assert.Equal(t, "access-1", first)
	assert.Equal(t, first, second)
	assert.Zero(t, g.refreshes.Load())
}

func TestGetValidAccessToken_RefreshesOnceAfterExpiry(t *testing.T) {
	store := newMemStore()
	g := newFakeGoogle(t)
	m := newTestManager(t, store, g)
	connect(t, m, "u1")

	c := store.cred(t, "u1")
	c.ExpiresAt = time.Now().Add(RefreshMargin - time.Second)
	require.NoError(t, store.SaveCredential(context.Background(), &c))

	tok, err := m.GetValidAccessToken(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "refreshed-1", tok)
	assert.Equal(t, int32(1), g.refreshes.Load())

	stored := store.cred(t, "u1")
	assert.Equal(t, "refreshed-1", stored.AccessToken)
	assert.Equal(t, "refresh-1", stored.RefreshToken, "refresh token retained when provider omits it")
	assert.True(t, stored.ExpiresAt.After(time.Now().Add(RefreshMargin)))
	assert.Equal(t, models.SyncSuccess, stored.SyncStatus)

	again, err := m.GetValidAccessToken(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, tok, again)
	assert.Equal(t, int32(1), g.refreshes.Load())
}

func TestGetValidAccessToken_ConcurrentRefreshIsShared(t *testing.T) {
	store := newMemStore()
	g := newFakeGoogle(t)
	g.refreshDelay = 100 * time.Millisecond
	m := newTestManager(t, store, g)
	connect(t, m, "u1")

	c := store.cred(t, "u1")
	c.ExpiresAt = time.Now().Add(-time.Minute)
	require.NoError(t, store.SaveCredential(context.Background(), &c))

	var wg sync.WaitGroup
	tokens := make([]string, 5)
	for i := range tokens {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tok, err := m.GetValidAccessToken(context.Background(), "u1")
			assert.NoError(t, err)
			tokens[i] = tok
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), g.refreshes.Load())
	for _, tok := range tokens {
		assert.Equal(t, "refreshed-1", tok)
	}
}

func TestGetValidAccessToken_PermanentRefreshFailure(t *testing.T) {
	store := newMemStore()
	g := newFakeGoogle(t)
	g.refreshError = "invalid_grant"
	m := newTestManager(t, store, g)
	connect(t, m, "u1")

	c := store.cred(t, "u1")
	c.ExpiresAt = time.Now().Add(-time.Minute)
	require.NoError(t, store.SaveCredential(context.Background(), &c))

	_, err := m.GetValidAccessToken(context.Background(), "u1")
	assert.ErrorIs(t, err, ErrRefresh)

	stored := store.cred(t, "u1")
	assert.False(t, stored.IsConnected)
	assert.Equal(t, models.SyncError, stored.SyncStatus)
	assert.Contains(t, stored.LastError, "invalid_grant")

	_, err = m.GetValidAccessToken(context.Background(), "u1")
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestGetValidAccessToken_TransientRefreshFailure(t *testing.T) {
	store := newMemStore()
	g := newFakeGoogle(t)
	g.refreshError = "temporarily_unavailable"
	m := newTestManager(t, store, g)
	connect(t, m, "u1")

	c := store.cred(t, "u1")
	c.ExpiresAt = time.Now().Add(-time.Minute)
	require.NoError(t, store.SaveCredential(context.Background(), &c))

	_, err := m.GetValidAccessToken(context.Background(), "u1")
	assert.ErrorIs(t, err, ErrRefresh)

	stored := store.cred(t, "u1")
	assert.True(t, stored.IsConnected)
	assert.Equal(t, models.SyncError, stored.SyncStatus)

	info := m.GetConnectionInfo(context.Background(), "u1")
	assert.Equal(t, models.SyncError, info.SyncStatus)
	assert.NotEmpty(t, info.LastError)
}

func TestGetValidAccessToken_NoCredential(t *testing.T) {
	m := newTestManager(t, newMemStore(), newFakeGoogle(t))
	_, err := m.GetValidAccessToken(context.Background(), "nobody")
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestForceRefresh(t *testing.T) {
	store := newMemStore()
	g := newFakeGoogle(t)
	m := newTestManager(t, store, g)
	connect(t, m, "u1")

	tok, err := m.ForceRefresh(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "refreshed-1", tok)
	assert.Equal(t, int32(1), g.refreshes.Load())
}

func TestDisconnect(t *testing.T) {
	store := newMemStore()
	g := newFakeGoogle(t)
	m := newTestManager(t, store, g)
	ctx := context.Background()
	connect(t, m, "u1")

	require.NoError(t, m.Disconnect(ctx, "u1"))
	stored := store.cred(t, "u1")
	assert.False(t, stored.IsConnected)
	assert.Equal(t, models.SyncDisconnected, stored.SyncStatus)
	assert.Empty(t, stored.AccessToken)
	assert.Empty(t, stored.RefreshToken)
	assert.Equal(t, "ana@example.com", stored.ProviderEmail, "row is kept, not deleted")
	assert.Equal(t, int32(1), g.revokes.Load())

	_, err := m.GetValidAccessToken(ctx, "u1")
	assert.ErrorIs(t, err, ErrNotConnected)

	// Second disconnect is a no-op.
	savesBefore := store.saves
	require.NoError(t, m.Disconnect(ctx, "u1"))
	assert.Equal(t, savesBefore, store.saves)
	assert.Equal(t, int32(1), g.revokes.Load())
	assert.False(t, store.cred(t, "u1").IsConnected)

	// Unknown users disconnect cleanly too.
	assert.NoError(t, m.Disconnect(ctx, "nobody"))
}

func TestDisconnect_RevokeFailureIsNotFatal(t *testing.T) {
	store := newMemStore()
	g := newFakeGoogle(t)
	m := newTestManager(t, store, g, WithRevokeURL("http://127.0.0.1:1/revoke"))
	connect(t, m, "u1")

	require.NoError(t, m.Disconnect(context.Background(), "u1"))
	assert.Equal(t, models.SyncDisconnected, store.cred(t, "u1").SyncStatus)
}

func TestReconnectAfterDisconnectShowsPending(t *testing.T) {
	store := newMemStore()
	m := newTestManager(t, store, newFakeGoogle(t))
	ctx := context.Background()
	connect(t, m, "u1")
	require.NoError(t, m.Disconnect(ctx, "u1"))

	_, _, err := m.GenerateAuthorizationURL(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, models.SyncPending, m.GetConnectionInfo(ctx, "u1").SyncStatus)
}

func TestGetConnectionInfo_NeverFails(t *testing.T) {
	store := newMemStore()
	m := newTestManager(t, store, newFakeGoogle(t))

	info := m.GetConnectionInfo(context.Background(), "nobody")
	assert.False(t, info.Connected)
	assert.Equal(t, models.SyncNotConnected, info.SyncStatus)

	store.getErr = errors.New("database is locked")
	info = m.GetConnectionInfo(context.Background(), "u1")
	assert.False(t, info.Connected)
	assert.Equal(t, models.SyncNotConnected, info.SyncStatus)
}

func TestRecordSuccessAndFailure(t *testing.T) {
	store := newMemStore()
	m := newTestManager(t, store, newFakeGoogle(t))
	ctx := context.Background()
	connect(t, m, "u1")

	m.RecordFailure(ctx, "u1", errors.New("drive returned 403"))
	stored := store.cred(t, "u1")
	assert.Equal(t, models.SyncError, stored.SyncStatus)
	assert.Equal(t, "drive returned 403", stored.LastError)
	assert.True(t, stored.IsConnected)

	m.RecordSuccess(ctx, "u1")
	stored = store.cred(t, "u1")
	assert.Equal(t, models.SyncSuccess, stored.SyncStatus)
	assert.Empty(t, stored.LastError)

	// Unknown users are ignored.
	m.RecordFailure(ctx, "nobody", errors.New("x"))
	m.RecordSuccess(ctx, "nobody")
}

func TestIsPermanentRefreshError(t *testing.T) {
	tests := []struct {
		name      string
		errText   string
		permanent bool
	}{
		{name: "invalid grant", errText: "oauth2: cannot fetch token: 400 Bad Request {\"error\":\"invalid_grant\"}", permanent: true},
		{name: "revoked", errText: "token has been expired or revoked", permanent: true},
		{name: "timeout", errText: "context deadline exceeded", permanent: false},
		{name: "temporary", errText: "temporarily_unavailable", permanent: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := isPermanentRefreshError(assertErr(tt.errText))
			if got != tt.permanent {
				t.Fatalf("expected %v, got %v", tt.permanent, got)
			}
		})
	}
}

type assertErr string

func (e assertErr) Error() string { return string(e) }
