package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/hazyhaar/lexdoc/audit"
	"github.com/hazyhaar/lexdoc/auth"
	"github.com/hazyhaar/lexdoc/horosafe"
	"github.com/hazyhaar/lexdoc/kit"
	"github.com/hazyhaar/lexdoc/metrics"
	"github.com/hazyhaar/lexdoc/shield"
)

// maxLoginBody caps the login JSON.
const maxLoginBody = 64 << 10

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string `json:"token"`
}

// handleLogin checks the posted credentials and returns the account token.
func (s *server) handleLogin(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	body, err := horosafe.LimitedReadAll(r.Body, maxLoginBody)
	var req loginRequest
	if err == nil {
		err = json.Unmarshal(body, &req)
	}
	if err != nil {
		s.metrics.IncLogin(metrics.OutcomeMalformed)
		writeJSONError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	tok, err := s.verifier.Login(req.Username, req.Password)

	ctx := kit.WithUser(r.Context(), req.Username)
	entry := audit.NewEntry(ctx, audit.OpLogin, err, time.Since(start))
	if errors.Is(err, auth.ErrInvalidCredentials) {
		entry.Status = audit.StatusDenied
	}
	s.audit.LogAsync(entry)

	switch {
	case errors.Is(err, auth.ErrMissingCredentials):
		s.metrics.IncLogin(metrics.OutcomeMalformed)
		writeJSONError(w, http.StatusBadRequest, "Username and password required")
	case err != nil:
		s.metrics.IncLogin(metrics.OutcomeInvalid)
		shield.GetLogger(r.Context()).Warn("login denied", "username", req.Username)
		writeJSONError(w, http.StatusUnauthorized, "Invalid credentials")
	default:
		s.metrics.IncLogin(metrics.OutcomeSuccess)
		writeJSON(w, http.StatusOK, loginResponse{Token: tok})
	}
}
