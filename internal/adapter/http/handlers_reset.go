package adapthttp

import (
	"errors"
	"log"
	"net/http"

	"trustcore/internal/app"
)

// linkErrorMessage is the only thing clients learn about a bad reset link.
const linkErrorMessage = "invalid or expired link"

func isLinkError(err error) bool {
	return errors.Is(err, app.ErrTokenInvalid) || errors.Is(err, app.ErrTokenUsed) || errors.Is(err, app.ErrTokenExpired)
}

func (s *Server) handleResetRequest(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email  string `json:"email"`
		Locale string `json:"locale"`
	}
	if err := parseJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	if !s.allow(w, r, app.PolicyAuth, app.IPKey(ClientIP(r))) {
		return
	}

	email := app.NormalizeEmail(req.Email)
	if !app.ValidEmail(email) {
		writeError(w, http.StatusBadRequest, app.ErrInvalidEmail.Error())
		return
	}

	if !s.allow(w, r, app.PolicyPasswordReset, app.EmailKey(email)) {
		return
	}

	if err := s.recovery.RequestReset(r.Context(), email, req.Locale); err != nil {
		if errors.Is(err, app.ErrInvalidEmail) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		log.Printf("password reset: request: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleResetVerify(w http.ResponseWriter, r *http.Request) {
	_, err := s.recovery.VerifyToken(r.Context(), r.URL.Query().Get("token"))
	if isLinkError(err) {
		writeJSON(w, http.StatusBadRequest, map[string]any{"valid": false, "error": linkErrorMessage})
		return
	}
	if err != nil {
		log.Printf("password reset: verify: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"valid": true})
}

func (s *Server) handleResetConfirm(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token    string `json:"token"`
		Password string `json:"password"`
	}
	if err := parseJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	if !s.allow(w, r, app.PolicyAuth, app.IPKey(ClientIP(r))) {
		return
	}

	err := s.recovery.RedeemToken(r.Context(), req.Token, req.Password)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
	case isLinkError(err):
		writeError(w, http.StatusBadRequest, linkErrorMessage)
	case errors.Is(err, app.ErrWeakPassword):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		log.Printf("password reset: confirm: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
