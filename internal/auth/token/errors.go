package token

import "errors"

var (
	// ErrConfiguration means the OAuth client id or secret is missing.
	ErrConfiguration = errors.New("oauth client is not configured")
	// ErrInvalidState means the callback state is missing, expired or does not
	// match the one issued to the user.
	ErrInvalidState = errors.New("invalid oauth state")
	// ErrProviderExchange means the token endpoint rejected the authorization code.
	ErrProviderExchange = errors.New("provider rejected authorization code")
	// ErrRefresh means the provider rejected a refresh.
	ErrRefresh = errors.New("token refresh failed")
	// ErrNotConnected means the user has no active credential.
	ErrNotConnected = errors.New("provider not connected")
)
