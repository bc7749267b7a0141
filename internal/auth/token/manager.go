// Package token owns the OAuth grant of each user: authorization, code
// exchange, refresh, revocation and the sync status shown on the dashboard.
package token

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pysugar/commshub/internal/auth/google"
	"github.com/pysugar/commshub/internal/db"
	"github.com/pysugar/commshub/internal/db/models"
	"github.com/pysugar/commshub/internal/logging"
	"github.com/pysugar/commshub/internal/util"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

// RefreshMargin is how long before expiry a stored access token stops being handed out.
const RefreshMargin = 5 * time.Minute

// Manager handles the token lifecycle for one provider.
type Manager struct {
	store       CredentialStore
	oauth       *oauth2.Config
	provider    string
	httpClient  *http.Client
	now         func() time.Time
	userInfoURL string
	revokeURL   string
	stateTTL    time.Duration
	consentOpts []oauth2.AuthCodeOption
	logger      *logging.Logger

	refreshes singleflight.Group
}

// Option configures a Manager.
type Option func(*Manager)

// WithHTTPClient sets the client used for token, userinfo and revoke calls.
func WithHTTPClient(c *http.Client) Option {
	return func(m *Manager) { m.httpClient = c }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithUserInfoURL overrides the identity endpoint.
func WithUserInfoURL(u string) Option {
	return func(m *Manager) { m.userInfoURL = u }
}

// WithRevokeURL overrides the revocation endpoint.
func WithRevokeURL(u string) Option {
	return func(m *Manager) { m.revokeURL = u }
}

// WithStateTTL sets how long an issued state can be redeemed.
func WithStateTTL(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.stateTTL = d
		}
	}
}

// WithConsentOptions replaces the auth code options added to consent URLs.
func WithConsentOptions(opts ...oauth2.AuthCodeOption) Option {
	return func(m *Manager) { m.consentOpts = opts }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithProvider sets the provider key credentials are stored under.
func WithProvider(p string) Option {
	return func(m *Manager) { m.provider = p }
}

// NewManager creates a token manager over store using the given OAuth client.
func NewManager(store CredentialStore, oauthConfig *oauth2.Config, opts ...Option) *Manager {
	m := &Manager{
		store:       store,
		oauth:       oauthConfig,
		provider:    models.ProviderGoogleDrive,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		now:         time.Now,
		userInfoURL: google.UserInfoURL,
		revokeURL:   google.RevokeURL,
		stateTTL:    10 * time.Minute,
		consentOpts: []oauth2.AuthCodeOption{oauth2.AccessTypeOffline, oauth2.ApprovalForce},
		logger:      logging.NewSilentLogger(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Provider returns the provider key this manager serves.
func (m *Manager) Provider() string {
	return m.provider
}

func (m *Manager) oauthContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, m.httpClient)
}

// GenerateAuthorizationURL issues a consent URL and persists its state for userID.
func (m *Manager) GenerateAuthorizationURL(ctx context.Context, userID string) (authURL, state string, err error) {
	if !google.IsConfigured(m.oauth) {
		return "", "", ErrConfiguration
	}

	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", "", fmt.Errorf("failed to generate state: %w", err)
	}
	state = hex.EncodeToString(b)

	now := m.now()
	err = m.store.SaveState(ctx, &models.OAuthState{
		UserID:    userID,
		Provider:  m.provider,
		State:     state,
		ExpiresAt: now.Add(m.stateTTL),
		CreatedAt: now,
	})
	if err != nil {
		return "", "", err
	}

	// A disconnected or never-finished credential shows as pending until the callback lands.
	cred, err := m.store.GetCredential(ctx, userID, m.provider)
	if err == nil && !cred.IsConnected && cred.SyncStatus != models.SyncPending {
		cred.SyncStatus = models.SyncPending
		if err := m.store.SaveCredential(ctx, cred); err != nil {
			m.logger.Warn().Err(err).Str("user_id", userID).Msg("failed to mark credential pending")
		}
	}

	return m.oauth.AuthCodeURL(state, m.consentOpts...), state, nil
}

// StateOwner resolves which user an unconsumed state was issued to. The OAuth
// callback only carries code and state, so the server uses this to find the user.
func (m *Manager) StateOwner(ctx context.Context, state string) (string, error) {
	if state == "" {
		return "", ErrInvalidState
	}
	userID, err := m.store.FindStateOwner(ctx, state, m.provider)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return "", ErrInvalidState
		}
		return "", err
	}
	return userID, nil
}

// CompleteAuthorization validates state for userID, exchanges code and upserts
// the credential. The stored state is consumed whether or not it matches.
func (m *Manager) CompleteAuthorization(ctx context.Context, code, state, userID string) (*models.Credential, error) {
	if !google.IsConfigured(m.oauth) {
		return nil, ErrConfiguration
	}

	issued, err := m.store.ConsumeState(ctx, userID, m.provider)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, ErrInvalidState
		}
		return nil, err
	}
	if state == "" || subtle.ConstantTimeCompare([]byte(issued.State), []byte(state)) != 1 {
		return nil, ErrInvalidState
	}
	if !m.now().Before(issued.ExpiresAt) {
		return nil, fmt.Errorf("%w: state expired", ErrInvalidState)
	}

	existing, err := m.store.GetCredential(ctx, userID, m.provider)
	if err != nil && !errors.Is(err, db.ErrNotFound) {
		return nil, err
	}

	octx := m.oauthContext(ctx)
	tok, err := m.oauth.Exchange(octx, code)
	if err != nil {
		if existing != nil {
			m.markFailure(ctx, existing, err)
		}
		m.logger.Warn().Err(err).Str("user_id", userID).Msg("authorization code exchange failed")
		return nil, fmt.Errorf("%w: %v", ErrProviderExchange, err)
	}

	identity := m.fetchIdentity(octx, tok)

	now := m.now()
	cred := &models.Credential{
		UserID:              userID,
		Provider:            m.provider,
		ProviderUserID:      identity.ID,
		ProviderEmail:       identity.Email,
		ProviderDisplayName: identity.Name,
		AccessToken:         tok.AccessToken,
		RefreshToken:        tok.RefreshToken,
		ExpiresAt:           tok.Expiry,
		Scopes:              grantedScopes(tok, m.oauth.Scopes),
		IsConnected:         true,
		SyncStatus:          models.SyncSuccess,
		LastSyncAt:          &now,
	}
	if existing != nil {
		cred.ID = existing.ID
		cred.CreatedAt = existing.CreatedAt
		// Google omits the refresh token when consent was granted before.
		if cred.RefreshToken == "" {
			cred.RefreshToken = existing.RefreshToken
		}
	}
	if cred.ExpiresAt.IsZero() {
		cred.ExpiresAt = now.Add(time.Hour)
	}

	if err := m.store.SaveCredential(ctx, cred); err != nil {
		return nil, err
	}
	m.logger.Info().
		Str("user_id", userID).
		Str("email", cred.ProviderEmail).
		Bool("has_refresh_token", cred.RefreshToken != "").
		Msg("provider connected")
	return cred, nil
}

// fetchIdentity asks the userinfo endpoint and falls back to id_token claims.
// Missing identity never fails an authorization.
func (m *Manager) fetchIdentity(ctx context.Context, tok *oauth2.Token) google.Identity {
	client := m.oauth.Client(ctx, tok)
	info, err := google.FetchUserInfo(ctx, client, m.userInfoURL)
	if err == nil {
		return *info
	}
	m.logger.Warn().Err(err).Msg("userinfo lookup failed, trying id_token")

	raw, _ := tok.Extra("id_token").(string)
	info, idErr := google.IdentityFromIDToken(raw)
	if idErr != nil {
		m.logger.Warn().Err(idErr).Msg("no identity claims available")
		return google.Identity{}
	}
	return *info
}

func grantedScopes(tok *oauth2.Token, requested []string) []string {
	if s, ok := tok.Extra("scope").(string); ok && strings.TrimSpace(s) != "" {
		return strings.Fields(s)
	}
	return append([]string(nil), requested...)
}

// GetValidAccessToken returns an access token valid for at least RefreshMargin,
// refreshing it first when needed.
func (m *Manager) GetValidAccessToken(ctx context.Context, userID string) (string, error) {
	cred, err := m.connectedCredential(ctx, userID)
	if err != nil {
		return "", err
	}
	if cred.AccessToken != "" && cred.ExpiresAt.After(m.now().Add(RefreshMargin)) {
		return cred.AccessToken, nil
	}
	return m.refresh(ctx, userID)
}

// ForceRefresh refreshes regardless of the stored expiry. The gateway calls it
// once when the provider answers 401 to a token that looked valid.
func (m *Manager) ForceRefresh(ctx context.Context, userID string) (string, error) {
	if _, err := m.connectedCredential(ctx, userID); err != nil {
		return "", err
	}
	return m.refresh(ctx, userID)
}

func (m *Manager) connectedCredential(ctx context.Context, userID string) (*models.Credential, error) {
	cred, err := m.store.GetCredential(ctx, userID, m.provider)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, ErrNotConnected
		}
		return nil, err
	}
	if !cred.IsConnected {
		return nil, ErrNotConnected
	}
	return cred, nil
}

// refresh runs at most one provider refresh per user at a time; concurrent
// callers share its result.
func (m *Manager) refresh(ctx context.Context, userID string) (string, error) {
	v, err, shared := m.refreshes.Do(userID, func() (any, error) {
		return m.refreshOnce(context.WithoutCancel(ctx), userID)
	})
	if shared {
		m.logger.Debug().Str("user_id", userID).Msg("joined in-flight token refresh")
	}
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (m *Manager) refreshOnce(ctx context.Context, userID string) (string, error) {
	cred, err := m.connectedCredential(ctx, userID)
	if err != nil {
		return "", err
	}
	if cred.RefreshToken == "" {
		err := errors.New("no refresh token stored, reconnect required")
		m.markFailure(ctx, cred, err)
		return "", fmt.Errorf("%w: %v", ErrRefresh, err)
	}

	src := m.oauth.TokenSource(m.oauthContext(ctx), &oauth2.Token{RefreshToken: cred.RefreshToken})
	newToken, err := src.Token()
	if err != nil {
		if isPermanentRefreshError(err) {
			// The grant is gone; the user has to go through consent again.
			cred.IsConnected = false
			m.logger.Warn().Str("user_id", userID).Msg("refresh token rejected, credential disconnected")
		} else {
			m.logger.Warn().Err(err).Str("user_id", userID).Msg("transient refresh failure")
		}
		m.markFailure(ctx, cred, err)
		return "", fmt.Errorf("%w: %v", ErrRefresh, err)
	}

	now := m.now()
	cred.AccessToken = newToken.AccessToken
	cred.ExpiresAt = newToken.Expiry
	if cred.ExpiresAt.IsZero() {
		cred.ExpiresAt = now.Add(time.Hour)
	}
	if newToken.RefreshToken != "" && newToken.RefreshToken != cred.RefreshToken {
		m.logger.Info().Str("user_id", userID).Msg("rotating refresh token")
		cred.RefreshToken = newToken.RefreshToken
	}
	cred.SyncStatus = models.SyncSuccess
	cred.LastSyncAt = &now
	cred.LastError = ""
	if err := m.store.SaveCredential(ctx, cred); err != nil {
		return "", err
	}

	m.logger.Debug().
		Str("user_id", userID).
		Str("token", util.MaskToken(cred.AccessToken)).
		Time("expires_at", cred.ExpiresAt).
		Msg("refreshed access token")
	return cred.AccessToken, nil
}

// Disconnect marks the credential disconnected and clears its tokens.
// Revocation at the provider is attempted but never fails the call.
func (m *Manager) Disconnect(ctx context.Context, userID string) error {
	cred, err := m.store.GetCredential(ctx, userID, m.provider)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil
		}
		return err
	}
	if !cred.IsConnected && cred.SyncStatus == models.SyncDisconnected {
		return nil
	}

	revoke := cred.RefreshToken
	if revoke == "" {
		revoke = cred.AccessToken
	}
	if revoke != "" {
		if err := m.revoke(ctx, revoke); err != nil {
			m.logger.Warn().Err(err).Str("user_id", userID).Msg("token revocation failed")
		}
	}

	cred.AccessToken = ""
	cred.RefreshToken = ""
	cred.IsConnected = false
	cred.SyncStatus = models.SyncDisconnected
	cred.LastError = ""
	if err := m.store.SaveCredential(ctx, cred); err != nil {
		return err
	}
	m.logger.Info().Str("user_id", userID).Msg("provider disconnected")
	return nil
}

func (m *Manager) revoke(ctx context.Context, tok string) error {
	form := url.Values{"token": {tok}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.revokeURL, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := m.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("revoke returned %d", resp.StatusCode)
	}
	return nil
}

// ConnectionInfo is the dashboard view of a user's connection.
type ConnectionInfo struct {
	Connected      bool              `json:"connected"`
	Provider       string            `json:"provider"`
	ProviderUserID string            `json:"provider_user_id,omitempty"`
	Email          string            `json:"email,omitempty"`
	DisplayName    string            `json:"display_name,omitempty"`
	Scopes         []string          `json:"scopes,omitempty"`
	SyncStatus     models.SyncStatus `json:"sync_status"`
	LastSyncAt     *time.Time        `json:"last_sync_at,omitempty"`
	LastError      string            `json:"last_error,omitempty"`
}

// GetConnectionInfo never fails; lookup errors read as not connected.
func (m *Manager) GetConnectionInfo(ctx context.Context, userID string) ConnectionInfo {
	info := ConnectionInfo{Provider: m.provider, SyncStatus: models.SyncNotConnected}

	cred, err := m.store.GetCredential(ctx, userID, m.provider)
	if err != nil {
		if !errors.Is(err, db.ErrNotFound) {
			m.logger.Warn().Err(err).Str("user_id", userID).Msg("connection lookup failed")
			return info
		}
		if pending, err := m.store.HasPendingState(ctx, userID, m.provider, m.now()); err == nil && pending {
			info.SyncStatus = models.SyncPending
		}
		return info
	}

	info.Connected = cred.IsConnected
	info.ProviderUserID = cred.ProviderUserID
	info.Email = cred.ProviderEmail
	info.DisplayName = cred.ProviderDisplayName
	info.Scopes = cred.Scopes
	info.SyncStatus = cred.SyncStatus
	info.LastSyncAt = cred.LastSyncAt
	info.LastError = cred.LastError
	if info.SyncStatus == "" {
		info.SyncStatus = models.SyncNotConnected
	}
	return info
}

// RecordSuccess marks a successful provider call.
func (m *Manager) RecordSuccess(ctx context.Context, userID string) {
	cred, err := m.store.GetCredential(ctx, userID, m.provider)
	if err != nil {
		return
	}
	now := m.now()
	cred.SyncStatus = models.SyncSuccess
	cred.LastSyncAt = &now
	cred.LastError = ""
	if err := m.store.SaveCredential(ctx, cred); err != nil {
		m.logger.Warn().Err(err).Str("user_id", userID).Msg("failed to record sync success")
	}
}

// RecordFailure marks a failed provider call and keeps its message for diagnostics.
func (m *Manager) RecordFailure(ctx context.Context, userID string, cause error) {
	cred, err := m.store.GetCredential(ctx, userID, m.provider)
	if err != nil {
		return
	}
	m.markFailure(ctx, cred, cause)
}

func (m *Manager) markFailure(ctx context.Context, cred *models.Credential, cause error) {
	msg := ""
	if cause != nil {
		msg = util.TruncateLog(cause.Error(), util.DefaultErrorMaxLen)
	}
	cred.SyncStatus = models.SyncError
	cred.LastError = msg
	if err := m.store.SaveCredential(ctx, cred); err != nil {
		m.logger.Warn().Err(err).Str("user_id", cred.UserID).Msg("failed to record sync error")
	}
}

func isPermanentRefreshError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	permanentMarkers := []string{
		"invalid_grant",
		"invalid_client",
		"unauthorized_client",
		"token has been expired or revoked",
		"revoked",
	}
	for _, marker := range permanentMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
