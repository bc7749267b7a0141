package handlers

import (
	"errors"
	"fmt"
	"html"
	"net/http"

	"github.com/pysugar/commshub/internal/auth/token"
	"github.com/pysugar/commshub/internal/logging"
	"github.com/pysugar/commshub/internal/server/middleware"
)

// ConnectHandler issues a consent URL for the current user. With ?redirect=1
// the browser is sent straight to Google.
func ConnectHandler(tokenMgr *token.Manager, logger *logging.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := middleware.UserID(r.Context())
		authURL, state, err := tokenMgr.GenerateAuthorizationURL(r.Context(), userID)
		if err != nil {
			logger.WithContext(r.Context()).Error().Err(err).Str("user_id", userID).Msg("failed to start authorization")
			writeError(w, statusFor(err), err.Error())
			return
		}
		if r.URL.Query().Get("redirect") == "1" {
			http.Redirect(w, r, authURL, http.StatusTemporaryRedirect)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"url": authURL, "state": state})
	}
}

// CallbackHandler processes the OAuth callback from Google. The user is
// resolved from the state issued by ConnectHandler.
func CallbackHandler(tokenMgr *token.Manager, logger *logging.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := logger.WithContext(r.Context())
		q := r.URL.Query()

		if e := q.Get("error"); e != "" {
			log.Info().Str("error", e).Msg("authorization declined")
			callbackPage(w, http.StatusBadRequest, "Google Drive was not connected", "Google returned: "+e)
			return
		}

		state := q.Get("state")
		userID, err := tokenMgr.StateOwner(r.Context(), state)
		if err != nil {
			log.Warn().Err(err).Msg("callback with unknown state")
			callbackPage(w, statusFor(err), "Google Drive was not connected", "The authorization link is invalid or was already used.")
			return
		}

		cred, err := tokenMgr.CompleteAuthorization(r.Context(), q.Get("code"), state, userID)
		if err != nil {
			log.Warn().Err(err).Str("user_id", userID).Msg("authorization failed")
			msg := "The authorization could not be completed."
			if errors.Is(err, token.ErrInvalidState) {
				msg = "The authorization link is invalid or has expired."
			}
			callbackPage(w, statusFor(err), "Google Drive was not connected", msg)
			return
		}

		callbackPage(w, http.StatusOK, "Google Drive connected", "Connected as "+cred.ProviderEmail)
	}
}

func callbackPage(w http.ResponseWriter, status int, title, detail string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	fmt.Fprintf(w, `<!DOCTYPE html>
<html lang="en">
<head>
	<meta charset="UTF-8">
	<meta http-equiv="refresh" content="3;url=/">
	<title>%s</title>
</head>
<body>
	<h1>%s</h1>
	<p>%s</p>
	<p>Returning to the dashboard...</p>
</body>
</html>`, html.EscapeString(title), html.EscapeString(title), html.EscapeString(detail))
}

// StatusHandler returns the connection card for the current user.
func StatusHandler(tokenMgr *token.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, tokenMgr.GetConnectionInfo(r.Context(), middleware.UserID(r.Context())))
	}
}

// DisconnectHandler disconnects the current user.
func DisconnectHandler(tokenMgr *token.Manager, logger *logging.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := middleware.UserID(r.Context())
		if err := tokenMgr.Disconnect(r.Context(), userID); err != nil {
			logger.WithContext(r.Context()).Error().Err(err).Str("user_id", userID).Msg("disconnect failed")
			writeError(w, statusFor(err), err.Error())
			return
		}
		writeJSON(w, http.StatusOK, tokenMgr.GetConnectionInfo(r.Context(), userID))
	}
}
