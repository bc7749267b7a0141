// Package google builds the OAuth client used for per-user Google Drive access
// and reads identity claims from Google's token responses.
package google

import (
	"strings"

	"github.com/pysugar/commshub/internal/config"
	"golang.org/x/oauth2"
	googleOAuth "golang.org/x/oauth2/google"
)

// Scopes requested when none are configured: per-file Drive access plus the
// identity claims shown on the connection card.
var Scopes = []string{
	"openid",
	"https://www.googleapis.com/auth/drive.file",
	"https://www.googleapis.com/auth/userinfo.email",
	"https://www.googleapis.com/auth/userinfo.profile",
}

const (
	// UserInfoURL returns the signed-in user's identity claims.
	UserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"
	// RevokeURL invalidates an access or refresh token.
	RevokeURL = "https://oauth2.googleapis.com/revoke"
)

// NewOAuthConfig returns the OAuth2 config for the Drive integration.
func NewOAuthConfig(cfg config.GoogleConfig, redirectURL string) *oauth2.Config {
	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = Scopes
	}
	return &oauth2.Config{
		ClientID:     strings.TrimSpace(cfg.ClientID),
		ClientSecret: strings.TrimSpace(cfg.ClientSecret),
		RedirectURL:  redirectURL,
		Scopes:       scopes,
		Endpoint:     googleOAuth.Endpoint,
	}
}

// IsConfigured reports whether both client credentials are present.
func IsConfigured(c *oauth2.Config) bool {
	return c != nil && c.ClientID != "" && c.ClientSecret != ""
}
