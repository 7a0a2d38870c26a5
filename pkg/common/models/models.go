package models

import (
	"time"

	"github.com/google/uuid"
)

// Event Bus models
type Event struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"` // emergency_alert, access_granted, sms, system_alert
	Source    string                 `json:"source"`
	Data      map[string]interface{} `json:"data"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]string      `json:"metadata,omitempty"`
}

// Provider is the authenticated caller on the redemption side
// (doctor, paramedic, hospital system).
type Provider struct {
	ID             uuid.UUID `json:"id"`
	OrganizationID uuid.UUID `json:"organization_id"`
	Role           string    `json:"role"` // doctor, paramedic, admin
	Email          string    `json:"email"`
}

// Notification delivery tracking
type Notification struct {
	ID          string                 `json:"id"`
	Type        string                 `json:"type"`
	SubjectID   string                 `json:"subject_id"`
	PhoneNumber string                 `json:"phone_number,omitempty"`
	Message     string                 `json:"message"`
	Status      string                 `json:"status"` // sent, delivered, failed
	Language    string                 `json:"language"`
	Timestamp   time.Time              `json:"timestamp"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

const (
	NotificationStatusSent      = "sent"
	NotificationStatusDelivered = "delivered"
	NotificationStatusFailed    = "failed"
)
