package notify

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRenderSubstitutesVariables(t *testing.T) {
	catalog := DefaultCatalog()

	message, err := catalog.Render(TypeSMS, "en", map[string]string{
		"patientId":  "PAT001",
		"pin":        "123456",
		"expiration": "2025-06-01T13:00:00Z",
	})
	if err != nil {
		t.Fatalf("render failed: %v", err)
	}
	if !strings.Contains(message, "PAT001") || !strings.Contains(message, "123456") {
		t.Fatalf("expected variables substituted, got %q", message)
	}
	if strings.Contains(message, "{") {
		t.Fatalf("unresolved placeholder in %q", message)
	}
}

func TestRenderLanguageFallback(t *testing.T) {
	catalog := DefaultCatalog()
	vars := map[string]string{"patientId": "PAT001", "timestamp": "now"}

	spanish, err := catalog.Render(TypeEmergencyAlert, "es", vars)
	if err != nil {
		t.Fatalf("render failed: %v", err)
	}
	if !strings.Contains(spanish, "ALERTA") {
		t.Fatalf("expected Spanish template, got %q", spanish)
	}

	// No French template exists; English is the fallback.
	french, err := catalog.Render(TypeEmergencyAlert, "fr", vars)
	if err != nil {
		t.Fatalf("render failed: %v", err)
	}
	if !strings.Contains(french, "EMERGENCY ALERT") {
		t.Fatalf("expected English fallback, got %q", french)
	}
}

func TestRenderMissingVariable(t *testing.T) {
	catalog := DefaultCatalog()

	if _, err := catalog.Render(TypeSMS, "en", map[string]string{"patientId": "PAT001"}); err == nil {
		t.Fatal("expected error for missing variables")
	}
	if _, err := catalog.Render("unknown_type", "en", nil); err == nil {
		t.Fatal("expected error for unknown notification type")
	}
}

func TestLoadCatalogFromYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "templates.yaml")
	content := `templates:
  sms_en:
    type: sms
    language: en
    template: "PIN {pin} for {patientId}"
    variables: [pin, patientId]
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write fixture: %v", err)
	}

	catalog, err := LoadCatalog(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	message, err := catalog.Render(TypeSMS, "en", map[string]string{"pin": "654321", "patientId": "PAT007"})
	if err != nil {
		t.Fatalf("render failed: %v", err)
	}
	if message != "PIN 654321 for PAT007" {
		t.Fatalf("unexpected message %q", message)
	}
}

func TestLoadCatalogDefaults(t *testing.T) {
	catalog, err := LoadCatalog("")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(catalog.Templates) == 0 {
		t.Fatal("expected built-in templates")
	}
}
