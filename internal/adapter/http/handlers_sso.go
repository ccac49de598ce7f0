package adapthttp

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"io"
	"net/http"

	"github.com/coreos/go-oidc/v3/oidc"

	"journal/internal/app"
)

const stateCookie = "oauth_state"

// stateSource supplies the entropy for OAuth state values.
var stateSource io.Reader = rand.Reader

func (s *Server) handleSSOLogin(w http.ResponseWriter, r *http.Request) {
	if !s.oidcConfig.Enabled {
		writeError(w, http.StatusNotFound, errors.New("sso disabled"))
		return
	}
	state, err := generateState()
	if err != nil {
		s.logger.Error(err, "generate sso state")
		writeError(w, http.StatusInternalServerError, errInternal)
		return
	}
	s.setStateCookie(w, state, 300)
	http.Redirect(w, r, s.oidcConfig.OAuth2Config.AuthCodeURL(state), http.StatusFound)
}

// handleSSOCallback completes the code flow. It shares the login quota so
// the callback cannot be used to bypass password throttling.
func (s *Server) handleSSOCallback(w http.ResponseWriter, r *http.Request) {
	if !s.oidcConfig.Enabled {
		writeError(w, http.StatusNotFound, errors.New("sso disabled"))
		return
	}

	caller := clientIP(r)
	d := s.guard.Throttle(s.guard.LoginOperation(), caller)
	setQuotaHeaders(w, d, s.clock.Now())
	if !d.Admitted {
		writeThrottled(w, errTooManyAttempts, d)
		return
	}

	state, err := r.Cookie(stateCookie)
	if err != nil || state.Value == "" || r.URL.Query().Get("state") != state.Value {
		writeError(w, http.StatusBadRequest, errors.New("invalid state"))
		return
	}
	s.setStateCookie(w, "", -1)

	token, err := s.oidcConfig.OAuth2Config.Exchange(r.Context(), r.URL.Query().Get("code"))
	if err != nil {
		s.logger.Error(err, "sso token exchange", "caller", caller)
		writeError(w, http.StatusBadGateway, errors.New("failed to exchange token"))
		return
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok {
		writeError(w, http.StatusBadGateway, errors.New("no id_token"))
		return
	}

	verifier := s.oidcConfig.Provider.Verifier(&oidc.Config{ClientID: s.oidcConfig.OAuth2Config.ClientID})
	idToken, err := verifier.Verify(r.Context(), rawIDToken)
	if err != nil {
		writeError(w, http.StatusUnauthorized, errors.New("failed to verify token"))
		return
	}

	var claims struct {
		Email         string `json:"email"`
		EmailVerified *bool  `json:"email_verified"`
	}
	if err := idToken.Claims(&claims); err != nil || claims.Email == "" {
		writeError(w, http.StatusUnauthorized, errors.New("missing email claim"))
		return
	}
	if claims.EmailVerified != nil && !*claims.EmailVerified {
		writeError(w, http.StatusUnauthorized, errors.New("email not verified"))
		return
	}

	sess, err := s.auth.LoginWithUser(r.Context(), claims.Email)
	switch {
	case errors.Is(err, app.ErrInvalidCredentials):
		writeError(w, http.StatusForbidden, errors.New("no author account for this identity"))
		return
	case err != nil:
		s.logger.Error(err, "sso login failed", "caller", caller)
		writeError(w, http.StatusInternalServerError, errInternal)
		return
	}

	s.setSessionCookie(w, sess)
	http.Redirect(w, r, "/", http.StatusFound)
}

// setStateCookie sets or, with a negative maxAge, clears the state cookie.
func (s *Server) setStateCookie(w http.ResponseWriter, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.secureCookies,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   maxAge,
	})
}

func generateState() (string, error) {
	b := make([]byte, 16)
	if _, err := io.ReadFull(stateSource, b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
