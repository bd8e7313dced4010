package api

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/nerrad567/casement-core/internal/auth"
)

// credentialsRequest is the request body for register and login.
type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// adminLoginRequest is the request body for POST /auth/admin/login.
type adminLoginRequest struct {
	Secret string `json:"secret"`
}

// revokeRequest is the request body for POST /auth/revoke.
type revokeRequest struct {
	TokenHash string `json:"token_hash"`
}

// tokenResponse is the response body for successful credential issuance.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"` // seconds
}

// handleRegister creates a user account and issues its first credential.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if s.gate == nil || s.users == nil {
		writeUnavailable(w, "credential store unavailable")
		return
	}

	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if !auth.IsValidUsername(req.Username) {
		writeBadRequest(w, "username must be 1-64 characters: letters, digits, dot, hyphen, underscore")
		return
	}
	if req.Password == "" {
		writeBadRequest(w, "password is required")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		s.logger.Error("password hashing failed", "error", err)
		writeInternalError(w, "failed to create account")
		return
	}

	user := &auth.User{Username: req.Username, PasswordHash: hash}
	if err := s.users.Create(r.Context(), user); err != nil {
		if errors.Is(err, auth.ErrUsernameExists) {
			writeConflict(w, "username already taken")
			return
		}
		s.logger.Error("user creation failed", "error", err)
		writeInternalError(w, "failed to create account")
		return
	}

	s.logger.Info("user registered", "user_id", user.ID, "username", user.Username)
	s.issueToken(w, r, user.ID, auth.TokenTypeAccess, s.accessTTL())
}

// handleLogin authenticates a user and issues an access credential.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if s.gate == nil || s.users == nil {
		writeUnavailable(w, "credential store unavailable")
		return
	}

	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	user, err := s.users.GetByUsername(r.Context(), req.Username)
	if err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			writeUnauthorized(w, "invalid credentials")
			return
		}
		s.logger.Error("user lookup failed", "error", err)
		writeInternalError(w, "login failed")
		return
	}

	ok, err := auth.VerifyPassword(req.Password, user.PasswordHash)
	if err != nil {
		s.logger.Error("password verification failed", "user_id", user.ID, "error", err)
		writeInternalError(w, "login failed")
		return
	}
	if !ok {
		writeUnauthorized(w, "invalid credentials")
		return
	}

	s.issueToken(w, r, user.ID, auth.TokenTypeAccess, s.accessTTL())
}

// handleAdminLogin exchanges the shared administrative secret for an
// admin credential. Admin credentials carry no owning user; the embedded
// device authenticates with one.
func (s *Server) handleAdminLogin(w http.ResponseWriter, r *http.Request) {
	if s.gate == nil {
		writeUnavailable(w, "credential store unavailable")
		return
	}
	if s.secCfg.Admin.Secret == "" {
		writeUnauthorized(w, "administrative login is not configured")
		return
	}

	var req adminLoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if subtle.ConstantTimeCompare([]byte(req.Secret), []byte(s.secCfg.Admin.Secret)) != 1 {
		writeUnauthorized(w, "invalid credentials")
		return
	}

	s.issueToken(w, r, "", auth.TokenTypeAdmin, s.adminTTL())
}

// handleRevoke flags a credential hash as revoked. Administrative
// credentials only.
//
// Idempotent: revoking an unknown or already-revoked hash
// still answers 204.
func (s *Server) handleRevoke(w http.ResponseWriter, r *http.Request) {
	identity := identityFrom(r)
	if identity == nil || identity.TokenType != auth.TokenTypeAdmin {
		writeForbidden(w, "administrative credential required")
		return
	}

	var req revokeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.TokenHash == "" {
		writeBadRequest(w, "token_hash is required")
		return
	}

	if err := s.gate.Revoke(r.Context(), req.TokenHash); err != nil {
		s.logger.Error("revocation failed", "error", err)
		writeInternalError(w, "revocation failed")
		return
	}

	s.logger.Info("credential revoked", "token_type", identity.TokenType)

	w.WriteHeader(http.StatusNoContent)
}

// issueToken runs issuance through the gate and writes the response.
func (s *Server) issueToken(w http.ResponseWriter, r *http.Request, ownerID string, tokenType auth.TokenType, ttl time.Duration) {
	raw, _, err := s.gate.Issue(r.Context(), ownerID, tokenType, ttl)
	if err != nil {
		s.logger.Error("credential issuance failed", "token_type", tokenType, "error", err)
		writeInternalError(w, "failed to issue credential")
		return
	}

	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken: raw,
		TokenType:   "Bearer",
		ExpiresIn:   int(ttl.Seconds()),
	})
}

func (s *Server) accessTTL() time.Duration {
	return time.Duration(s.secCfg.JWT.AccessTokenTTL) * time.Minute
}

func (s *Server) adminTTL() time.Duration {
	return time.Duration(s.secCfg.JWT.AdminTokenTTL) * time.Minute
}
