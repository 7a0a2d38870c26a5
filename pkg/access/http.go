package access

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/ehealthwave/platform/pkg/common/logger"
	"github.com/ehealthwave/platform/pkg/middleware"
	"github.com/gorilla/mux"
)

type HTTPHandler struct {
	service       *Service
	pinValidity   time.Duration
	tokenValidity time.Duration
}

func NewHTTPHandler(service *Service, pinValidity, tokenValidity time.Duration) *HTTPHandler {
	return &HTTPHandler{
		service:       service,
		pinValidity:   pinValidity,
		tokenValidity: tokenValidity,
	}
}

func (h *HTTPHandler) Register(router *mux.Router) {
	router.HandleFunc("/emergency/pin", h.handleIssuePin).Methods(http.MethodPost)
	router.HandleFunc("/emergency/validate-pin", h.handleValidatePin).Methods(http.MethodPost)
	router.HandleFunc("/emergency/active/{patientId}", h.handleActiveEmergency).Methods(http.MethodGet)
	router.HandleFunc("/emergency/revoke", h.handleRevokePins).Methods(http.MethodPost)
	router.HandleFunc("/emergency/sms", h.handleSendSMS).Methods(http.MethodPost)
	router.HandleFunc("/emergency/notify", h.handleNotifyProviders).Methods(http.MethodPost)
	router.HandleFunc("/emergency/location", h.handleUpdateLocation).Methods(http.MethodPost)

	router.HandleFunc("/tokens", h.handleIssueToken).Methods(http.MethodPost)
	router.HandleFunc("/tokens/validate", h.handleValidateToken).Methods(http.MethodPost)
	router.HandleFunc("/tokens/use", h.handleUseToken).Methods(http.MethodPost)
	router.HandleFunc("/tokens/active/{patientId}", h.handleActiveTokens).Methods(http.MethodGet)
	router.HandleFunc("/tokens/revoke", h.handleRevokeTokens).Methods(http.MethodPost)

	router.HandleFunc("/access/status", h.handleStatus).Methods(http.MethodPost)
	router.HandleFunc("/access/revoke", h.handleRevokeGrant).Methods(http.MethodPost)
}

type locationRequest struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type issuePinRequest struct {
	PatientID       string           `json:"patientId"`
	ValidityMinutes int              `json:"validityMinutes"`
	Location        *locationRequest `json:"location"`
}

func (h *HTTPHandler) handleIssuePin(w http.ResponseWriter, r *http.Request) {
	var req issuePinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	// The default applies only when the field is absent; explicit values,
	// including negatives, go through so the service can reject them.
	validity := h.pinValidity
	if req.ValidityMinutes != 0 {
		validity = time.Duration(req.ValidityMinutes) * time.Minute
	}
	var loc *Location
	if req.Location != nil {
		loc = &Location{Latitude: req.Location.Latitude, Longitude: req.Location.Longitude}
	}

	grant, err := h.service.IssueEmergencyPin(r.Context(), req.PatientID, validity, loc)
	if err != nil {
		h.writeError(w, err, "failed to issue emergency pin")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"pin":       grant.Secret,
		"patientId": grant.SubjectID,
		"expiresAt": grant.ExpiresAt,
	})
}

type validatePinRequest struct {
	Pin        string `json:"pin"`
	PatientID  string `json:"patientId"`
	ProviderID string `json:"providerId"`
}

func (h *HTTPHandler) handleValidatePin(w http.ResponseWriter, r *http.Request) {
	var req validatePinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	// Authenticated callers redeem as themselves, whatever the body says.
	if claims := middleware.ProviderFromContext(r.Context()); claims != nil {
		req.ProviderID = claims.ProviderID.String()
	}

	result, err := h.service.RedeemEmergencyPin(r.Context(), req.Pin, req.PatientID, req.ProviderID)
	if err != nil {
		h.writeError(w, err, "failed to validate emergency pin")
		return
	}

	if !result.Granted {
		status := http.StatusUnauthorized
		if result.Reason == ReasonRateLimited {
			status = http.StatusTooManyRequests
		}
		writeJSON(w, status, map[string]interface{}{
			"granted": false,
			"reason":  result.Reason,
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"granted": true,
		"records": result.Records,
	})
}

func (h *HTTPHandler) handleActiveEmergency(w http.ResponseWriter, r *http.Request) {
	patientID := mux.Vars(r)["patientId"]

	grants, err := h.service.ActiveEmergencyAccess(r.Context(), patientID)
	if err != nil {
		h.writeError(w, err, "failed to list active emergency access")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"active": grants})
}

type subjectRequest struct {
	PatientID string `json:"patientId"`
}

func (h *HTTPHandler) handleRevokePins(w http.ResponseWriter, r *http.Request) {
	var req subjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	count, err := h.service.RevokeEmergencyPins(r.Context(), req.PatientID)
	if err != nil {
		h.writeError(w, err, "failed to revoke emergency pins")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"revoked": count})
}

type sendSMSRequest struct {
	PatientID string   `json:"patientId"`
	Pin       string   `json:"pin"`
	Contacts  []string `json:"contacts"`
}

func (h *HTTPHandler) handleSendSMS(w http.ResponseWriter, r *http.Request) {
	var req sendSMSRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	sent, err := h.service.SendEmergencySMS(r.Context(), req.PatientID, req.Pin, req.Contacts)
	if err != nil {
		h.writeError(w, err, "failed to send emergency sms")
		return
	}
	if !sent {
		http.Error(w, "no matching emergency pin", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"sent": true})
}

type notifyRequest struct {
	PatientID string                 `json:"patientId"`
	Details   map[string]interface{} `json:"details"`
}

func (h *HTTPHandler) handleNotifyProviders(w http.ResponseWriter, r *http.Request) {
	var req notifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	notified, err := h.service.NotifyProviders(r.Context(), req.PatientID, req.Details)
	if err != nil {
		h.writeError(w, err, "failed to notify providers")
		return
	}
	if !notified {
		http.Error(w, "no eligible emergency access found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"notified": true})
}

type updateLocationRequest struct {
	PatientID string          `json:"patientId"`
	Pin       string          `json:"pin"`
	Location  locationRequest `json:"location"`
}

func (h *HTTPHandler) handleUpdateLocation(w http.ResponseWriter, r *http.Request) {
	var req updateLocationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	updated, err := h.service.UpdateLocation(r.Context(), req.PatientID, req.Pin, Location{
		Latitude:  req.Location.Latitude,
		Longitude: req.Location.Longitude,
	})
	if err != nil {
		h.writeError(w, err, "failed to update location")
		return
	}
	if !updated {
		http.Error(w, "no matching emergency pin", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"updated": true})
}

type issueTokenRequest struct {
	PatientID       string `json:"patientId"`
	ValidityMinutes int    `json:"validityMinutes"`
	AccessLevel     string `json:"accessLevel"`
	DataScope       string `json:"dataScope"`
}

func (h *HTTPHandler) handleIssueToken(w http.ResponseWriter, r *http.Request) {
	var req issueTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	validity := h.tokenValidity
	if req.ValidityMinutes != 0 {
		validity = time.Duration(req.ValidityMinutes) * time.Minute
	}
	if req.AccessLevel == "" {
		req.AccessLevel = AccessLevelRead
	}
	if req.DataScope == "" {
		req.DataScope = ScopeEmergency
	}

	grant, err := h.service.IssueSharingToken(r.Context(), req.PatientID, validity, req.AccessLevel, req.DataScope)
	if err != nil {
		h.writeError(w, err, "failed to issue sharing token")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"token":       grant.Secret,
		"display":     FormatToken(grant.Secret),
		"patientId":   grant.SubjectID,
		"accessLevel": grant.AccessLevel,
		"dataScope":   grant.DataScope,
		"expiresAt":   grant.ExpiresAt,
	})
}

type validateTokenRequest struct {
	Token     string `json:"token"`
	PatientID string `json:"patientId"`
}

func (h *HTTPHandler) handleValidateToken(w http.ResponseWriter, r *http.Request) {
	var req validateTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	valid, err := h.service.ValidateSharingToken(r.Context(), req.Token, req.PatientID)
	if err != nil {
		h.writeError(w, err, "failed to validate sharing token")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"valid": valid})
}

type useTokenRequest struct {
	Token      string `json:"token"`
	ProviderID string `json:"providerId"`
}

func (h *HTTPHandler) handleUseToken(w http.ResponseWriter, r *http.Request) {
	var req useTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if claims := middleware.ProviderFromContext(r.Context()); claims != nil {
		req.ProviderID = claims.ProviderID.String()
	}

	used, err := h.service.UseToken(r.Context(), req.Token, req.ProviderID)
	if err != nil {
		h.writeError(w, err, "failed to use sharing token")
		return
	}
	if !used {
		http.Error(w, "token invalid or expired", http.StatusUnauthorized)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"used": true})
}

func (h *HTTPHandler) handleActiveTokens(w http.ResponseWriter, r *http.Request) {
	patientID := mux.Vars(r)["patientId"]

	grants, err := h.service.ActiveTokens(r.Context(), patientID)
	if err != nil {
		h.writeError(w, err, "failed to list active tokens")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"tokens": grants})
}

func (h *HTTPHandler) handleRevokeTokens(w http.ResponseWriter, r *http.Request) {
	var req subjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	count, err := h.service.RevokeAllTokens(r.Context(), req.PatientID)
	if err != nil {
		h.writeError(w, err, "failed to revoke sharing tokens")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"revoked": count})
}

type secretRequest struct {
	Secret string `json:"secret"`
}

func (h *HTTPHandler) handleStatus(w http.ResponseWriter, r *http.Request) {
	var req secretRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	result, err := h.service.Status(r.Context(), req.Secret)
	if err != nil {
		h.writeError(w, err, "failed to read grant status")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *HTTPHandler) handleRevokeGrant(w http.ResponseWriter, r *http.Request) {
	var req secretRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	revoked, err := h.service.RevokeGrant(r.Context(), req.Secret)
	if err != nil {
		h.writeError(w, err, "failed to revoke grant")
		return
	}
	if !revoked {
		http.Error(w, "grant not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"revoked": true})
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, err error, msg string) {
	if IsValidationError(err) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	logger.Log.WithError(err).Error(msg)
	http.Error(w, "internal error", http.StatusInternalServerError)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
