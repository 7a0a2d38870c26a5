package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/ehealthwave/platform/pkg/common/logger"
	"github.com/ehealthwave/platform/pkg/common/models"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

// HTTPHandler exposes the federated login flow: providers authenticate
// against their hospital IdP, then exchange the authorization code for
// a platform JWT here.
type HTTPHandler struct {
	oidc *OIDCAuthenticator
	jwt  *JWTManager
}

func NewHTTPHandler(oidc *OIDCAuthenticator, jwt *JWTManager) *HTTPHandler {
	return &HTTPHandler{oidc: oidc, jwt: jwt}
}

func (h *HTTPHandler) Register(router *mux.Router) {
	router.HandleFunc("/auth/login", h.handleLogin).Methods(http.MethodGet)
	router.HandleFunc("/auth/callback", h.handleCallback).Methods(http.MethodGet)
}

func (h *HTTPHandler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if h.oidc == nil {
		http.Error(w, "federated login not configured", http.StatusServiceUnavailable)
		return
	}
	state := uuid.NewString()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"url":   h.oidc.AuthCodeURL(state),
		"state": state,
	})
}

func (h *HTTPHandler) handleCallback(w http.ResponseWriter, r *http.Request) {
	if h.oidc == nil {
		http.Error(w, "federated login not configured", http.StatusServiceUnavailable)
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		http.Error(w, "missing authorization code", http.StatusBadRequest)
		return
	}

	token, err := h.oidc.Exchange(r.Context(), code)
	if err != nil {
		logger.Log.WithError(err).Warn("OIDC code exchange failed")
		http.Error(w, "authorization failed", http.StatusUnauthorized)
		return
	}

	provider, err := providerFromIDToken(token.Extra("id_token"))
	if err != nil {
		logger.Log.WithError(err).Warn("could not read identity from IdP token")
		http.Error(w, "authorization failed", http.StatusUnauthorized)
		return
	}

	sessionToken, err := h.jwt.IssueToken(provider)
	if err != nil {
		logger.Log.WithError(err).Error("failed issuing session token")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"token":    sessionToken,
		"provider": provider,
	})
}

// providerFromIDToken maps the IdP's id_token claims onto a platform
// provider. The token arrived over the TLS code-exchange channel
// directly from the IdP, which is what vouches for it.
func providerFromIDToken(raw interface{}) (models.Provider, error) {
	idToken, ok := raw.(string)
	if !ok || idToken == "" {
		return models.Provider{}, errors.New("IdP response has no id_token")
	}
	parts := strings.Split(idToken, ".")
	if len(parts) != 3 {
		return models.Provider{}, errors.New("malformed id_token")
	}

	var claims struct {
		Subject string `json:"sub"`
		Email   string `json:"email"`
		Role    string `json:"role"`
		OrgID   string `json:"org_id"`
	}
	if err := decodeSegment(parts[1], &claims); err != nil {
		return models.Provider{}, err
	}
	if claims.Subject == "" {
		return models.Provider{}, errors.New("id_token missing subject")
	}

	providerID, err := uuid.Parse(claims.Subject)
	if err != nil {
		// Deterministic ID for IdPs whose subjects are not UUIDs.
		providerID = uuid.NewSHA1(uuid.NameSpaceURL, []byte(claims.Subject))
	}
	orgID, err := uuid.Parse(claims.OrgID)
	if err != nil {
		orgID = uuid.Nil
	}
	role := claims.Role
	if role == "" {
		role = "doctor"
	}

	return models.Provider{
		ID:             providerID,
		OrganizationID: orgID,
		Role:           role,
		Email:          claims.Email,
	}, nil
}
