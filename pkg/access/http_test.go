package access

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
)

func newTestRouter(t *testing.T) (*mux.Router, *testEnv) {
	t.Helper()
	env := newTestEnv(t)
	router := mux.NewRouter()
	NewHTTPHandler(env.svc, time.Hour, 30*time.Minute).Register(router)
	return router, env
}

func doJSON(t *testing.T, router *mux.Router, method, path string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var decoded map[string]interface{}
	if rec.Body.Len() > 0 {
		json.Unmarshal(rec.Body.Bytes(), &decoded)
	}
	return rec, decoded
}

func TestHTTPPinFlow(t *testing.T) {
	router, _ := newTestRouter(t)

	rec, body := doJSON(t, router, http.MethodPost, "/emergency/pin", map[string]interface{}{
		"patientId": "PAT001",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	pin, _ := body["pin"].(string)
	if len(pin) != 6 {
		t.Fatalf("expected 6-digit pin in response, got %q", pin)
	}

	rec, body = doJSON(t, router, http.MethodPost, "/emergency/validate-pin", map[string]interface{}{
		"pin":        pin,
		"patientId":  "PAT001",
		"providerId": "provider_1",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if granted, _ := body["granted"].(bool); !granted {
		t.Fatalf("expected access granted, body %v", body)
	}
	if records, ok := body["records"].([]interface{}); !ok || len(records) == 0 {
		t.Fatal("expected records in granted response")
	}

	rec, body = doJSON(t, router, http.MethodPost, "/emergency/validate-pin", map[string]interface{}{
		"pin":        pin,
		"patientId":  "PAT001",
		"providerId": "provider_2",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 on reuse, got %d", rec.Code)
	}
	if reason, _ := body["reason"].(string); reason != ReasonInvalidOrExpired {
		t.Fatalf("unexpected reason %q", reason)
	}
}

func TestHTTPValidateRejectsBadPayload(t *testing.T) {
	router, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/emergency/validate-pin", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}

	rec, _ = doJSON(t, router, http.MethodPost, "/emergency/validate-pin", map[string]interface{}{
		"pin": "123456",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing fields, got %d", rec.Code)
	}
}

func TestHTTPIssueRejectsNegativeValidity(t *testing.T) {
	router, _ := newTestRouter(t)

	for _, path := range []string{"/emergency/pin", "/tokens"} {
		rec, _ := doJSON(t, router, http.MethodPost, path, map[string]interface{}{
			"patientId":       "PAT001",
			"validityMinutes": -5,
		})
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400 for negative validity, got %d", path, rec.Code)
		}
	}
}

func TestHTTPTokenFlow(t *testing.T) {
	router, _ := newTestRouter(t)

	rec, body := doJSON(t, router, http.MethodPost, "/tokens", map[string]interface{}{
		"patientId":   "PAT001",
		"accessLevel": "read",
		"dataScope":   "emergency",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	token, _ := body["token"].(string)
	if len(token) != 12 {
		t.Fatalf("expected 12-char token, got %q", token)
	}
	if display, _ := body["display"].(string); display != FormatToken(token) {
		t.Fatalf("unexpected display format %q", display)
	}

	rec, body = doJSON(t, router, http.MethodPost, "/tokens/validate", map[string]interface{}{
		"token":     token,
		"patientId": "PAT001",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if valid, _ := body["valid"].(bool); !valid {
		t.Fatal("expected token valid")
	}

	rec, _ = doJSON(t, router, http.MethodPost, "/tokens/use", map[string]interface{}{
		"token":      token,
		"providerId": "provider_1",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	rec, body = doJSON(t, router, http.MethodPost, "/tokens/revoke", map[string]interface{}{
		"patientId": "PAT001",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if revoked, _ := body["revoked"].(float64); revoked != 1 {
		t.Fatalf("expected 1 revoked, got %v", body["revoked"])
	}

	rec, body = doJSON(t, router, http.MethodPost, "/tokens/validate", map[string]interface{}{
		"token":     token,
		"patientId": "PAT001",
	})
	if valid, _ := body["valid"].(bool); valid {
		t.Fatal("expected revoked token invalid")
	}
}

func TestHTTPStatusAndRevoke(t *testing.T) {
	router, env := newTestRouter(t)

	grant, err := env.svc.IssueSharingToken(context.Background(), "PAT001", time.Hour, AccessLevelRead, ScopeFull)
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}

	rec, body := doJSON(t, router, http.MethodPost, "/access/status", map[string]interface{}{
		"secret": grant.Secret,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if status, _ := body["status"].(string); status != StatusActive {
		t.Fatalf("expected active, got %q", status)
	}

	rec, _ = doJSON(t, router, http.MethodPost, "/access/revoke", map[string]interface{}{
		"secret": grant.Secret,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	rec, body = doJSON(t, router, http.MethodPost, "/access/status", map[string]interface{}{
		"secret": grant.Secret,
	})
	if status, _ := body["status"].(string); status != StatusInactive {
		t.Fatalf("expected inactive, got %q", status)
	}

	rec, _ = doJSON(t, router, http.MethodPost, "/access/revoke", map[string]interface{}{
		"secret": "unknown",
	})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown secret, got %d", rec.Code)
	}
}

func TestHTTPActiveListing(t *testing.T) {
	router, env := newTestRouter(t)

	for i := 0; i < 2; i++ {
		if _, err := env.svc.IssueEmergencyPin(context.Background(), "PAT001", time.Hour, nil); err != nil {
			t.Fatalf("issue failed: %v", err)
		}
	}

	rec, body := doJSON(t, router, http.MethodGet, "/emergency/active/PAT001", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	active, ok := body["active"].([]interface{})
	if !ok || len(active) != 2 {
		t.Fatalf("expected 2 active grants, got %v", body["active"])
	}
	first, _ := active[0].(map[string]interface{})
	if secret, _ := first["secret"].(string); secret != "" {
		t.Fatal("listing must not expose pins")
	}
}

func TestHTTPRateLimitedRedeem(t *testing.T) {
	router, env := newTestRouter(t)

	if _, err := env.svc.IssueEmergencyPin(context.Background(), "PAT001", time.Hour, nil); err != nil {
		t.Fatalf("issue failed: %v", err)
	}

	var rec *httptest.ResponseRecorder
	for i := 0; i < 6; i++ {
		rec, _ = doJSON(t, router, http.MethodPost, "/emergency/validate-pin", map[string]interface{}{
			"pin":        fmt.Sprintf("%06d", i),
			"patientId":  "PAT001",
			"providerId": "provider_1",
		})
	}
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after repeated failures, got %d", rec.Code)
	}
}
