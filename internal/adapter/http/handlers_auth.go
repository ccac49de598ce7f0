// Package adapthttp implements the HTTP adapter for the application.
package adapthttp

import (
	"errors"
	"net/http"

	"journal/internal/app"
	"journal/internal/domain"
)

// maxLoginBodyBytes caps the credentials payload.
const maxLoginBodyBytes = 4 << 10

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	// A malformed or oversized body still counts against the quota and is
	// reported as missing credentials.
	r.Body = http.MaxBytesReader(w, r.Body, maxLoginBodyBytes)
	_ = parseJSON(r, &req)

	caller := clientIP(r)
	out, err := s.guard.Login(r.Context(), caller, req.Email, req.Password)
	setQuotaHeaders(w, out.Quota, s.clock.Now())

	switch {
	case errors.Is(err, app.ErrThrottled):
		writeThrottled(w, errTooManyAttempts, out.Quota)
		return
	case errors.Is(err, app.ErrCredentialsRequired):
		writeError(w, http.StatusBadRequest, err)
		return
	case errors.Is(err, app.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, err)
		return
	case err != nil:
		s.logger.Error(err, "login failed", "caller", caller)
		writeError(w, http.StatusInternalServerError, errInternal)
		return
	}

	s.setSessionCookie(w, out.Session)
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.auth.DestroySession(r.Context(), sessionToken(r)); err != nil {
		s.logger.Error(err, "destroy session")
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   s.secureCookies,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	ok, err := s.auth.IsAuthenticated(r.Context(), sessionToken(r))
	if err != nil {
		s.logger.Error(err, "session lookup failed")
		writeError(w, http.StatusInternalServerError, errInternal)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"authenticated": ok})
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"sso_enabled": s.oidcConfig.Enabled,
	})
}

func (s *Server) setSessionCookie(w http.ResponseWriter, sess *domain.Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    sess.Token,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.secureCookies,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(s.auth.SessionTTL().Seconds()),
	})
}
