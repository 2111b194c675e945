package adapthttp

import (
	"errors"
	"log"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"trustcore/internal/app"
)

func (s *Server) handleRateLimitReset(w http.ResponseWriter, r *http.Request) {
	policy := chi.URLParam(r, "policy")
	key, err := url.PathUnescape(chi.URLParam(r, "key"))
	if err != nil || key == "" {
		writeError(w, http.StatusBadRequest, "invalid key")
		return
	}

	if err := s.limits.Reset(r.Context(), policy, key); err != nil {
		if errors.Is(err, app.ErrUnknownPolicy) {
			writeError(w, http.StatusNotFound, "unknown policy")
			return
		}
		log.Printf("admin: reset %s/%s: %v", policy, redactKey(key), err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	log.Printf("admin: cleared %s limit for %s", policy, redactKey(key))
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}
