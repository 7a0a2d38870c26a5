package notify

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	TypeEmergencyAlert = "emergency_alert"
	TypeAccessGranted  = "access_granted"
	TypeSMS            = "sms"
	TypeSystemAlert    = "system_alert"
)

type Template struct {
	Type      string   `yaml:"type" json:"type"`
	Language  string   `yaml:"language" json:"language"`
	Template  string   `yaml:"template" json:"template"`
	Variables []string `yaml:"variables" json:"variables"`
}

type Catalog struct {
	Templates map[string]Template `yaml:"templates" json:"templates"`
}

// LoadCatalog reads a template catalog from YAML, falling back to the
// built-in defaults when no path is configured.
func LoadCatalog(path string) (Catalog, error) {
	if path == "" {
		return DefaultCatalog(), nil
	}
	content, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return DefaultCatalog(), err
	}

	var cat Catalog
	if err := yaml.Unmarshal(content, &cat); err != nil {
		return Catalog{}, err
	}
	if len(cat.Templates) == 0 {
		return Catalog{}, errors.New("no notification templates configured")
	}
	return cat, nil
}

// Render fills a template's {variable} placeholders. Falls back to the
// English template when the requested language has none.
func (c Catalog) Render(notificationType, language string, vars map[string]string) (string, error) {
	tmpl, ok := c.Templates[notificationType+"_"+language]
	if !ok {
		tmpl, ok = c.Templates[notificationType+"_en"]
	}
	if !ok {
		return "", fmt.Errorf("no template for notification type %q", notificationType)
	}

	message := tmpl.Template
	for _, name := range tmpl.Variables {
		value, ok := vars[name]
		if !ok {
			return "", fmt.Errorf("missing template variable %q", name)
		}
		message = strings.ReplaceAll(message, "{"+name+"}", value)
	}
	return message, nil
}

func DefaultCatalog() Catalog {
	return Catalog{Templates: map[string]Template{
		"emergency_alert_en": {
			Type:      TypeEmergencyAlert,
			Language:  "en",
			Template:  "EMERGENCY ALERT\nPatient ID: {patientId}\nTime: {timestamp}\nEmergency access requested. Please verify immediately.",
			Variables: []string{"patientId", "timestamp"},
		},
		"emergency_alert_es": {
			Type:      TypeEmergencyAlert,
			Language:  "es",
			Template:  "ALERTA DE EMERGENCIA\nID del Paciente: {patientId}\nHora: {timestamp}\nSe ha solicitado acceso de emergencia. Por favor verifique inmediatamente.",
			Variables: []string{"patientId", "timestamp"},
		},
		"access_granted_en": {
			Type:      TypeAccessGranted,
			Language:  "en",
			Template:  "{accessType} ACCESS GRANTED\nPatient ID: {patientId}\nTime: {timestamp}\nExpires: {expiration}\nAccess granted for {purpose}.",
			Variables: []string{"accessType", "patientId", "timestamp", "expiration", "purpose"},
		},
		"sms_en": {
			Type:      TypeSMS,
			Language:  "en",
			Template:  "Emergency access PIN for patient {patientId}: {pin}\nValid until {expiration}. Do not share.",
			Variables: []string{"patientId", "pin", "expiration"},
		},
	}}
}
