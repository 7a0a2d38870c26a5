package access

import (
	"time"

	"gorm.io/datatypes"
)

const (
	KindEmergencyPin = "emergency_pin"
	KindSharingToken = "sharing_token"
)

const (
	AccessLevelRead  = "read"
	AccessLevelWrite = "write"
)

const (
	ScopeFull      = "full"
	ScopeLimited   = "limited"
	ScopeEmergency = "emergency"
)

// Grant statuses reported by Status, in precedence order.
const (
	StatusNotFound = "not_found"
	StatusExpired  = "expired"
	StatusInactive = "inactive"
	StatusActive   = "active"
)

// Ledger event types written by the access services.
const (
	EventPinGenerated     = "EMERGENCY_PIN_GENERATED"
	EventTokenGenerated   = "BLUETOOTH_TOKEN_GENERATED"
	EventAccessGranted    = "EMERGENCY_ACCESS_GRANTED"
	EventTokenUsed        = "SHARING_TOKEN_USED"
	EventGrantRevoked     = "GRANT_REVOKED"
	EventPinsRevoked      = "EMERGENCY_PIN_REVOKED"
	EventTokensRevoked    = "TOKEN_REVOKED"
	EventSMSSent          = "EMERGENCY_SMS_SENT"
	EventNotificationSent = "EMERGENCY_NOTIFICATION_SENT"
	EventLocationUpdated  = "EMERGENCY_LOCATION_UPDATED"
)

// Location is a lat/long snapshot captured when a PIN is issued from a
// patient's device in the field.
type Location struct {
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Accuracy  float64   `json:"accuracy,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Grant is a time-boxed authorization for access to a subject's records.
// Two kinds share the lifecycle: emergency PINs (6-digit, single-use,
// provider-redeemed) and sharing tokens (12-char, reusable until expiry
// or revocation). Grants are deactivated, never deleted.
type Grant struct {
	ID        string    `json:"id" gorm:"primaryKey;column:id"`
	Kind      string    `json:"kind" gorm:"index;column:kind"`
	SubjectID string    `json:"subject_id" gorm:"index;column:subject_id"`
	Secret    string    `json:"secret,omitempty" gorm:"index;column:secret"`
	CreatedAt time.Time `json:"created_at" gorm:"column:created_at"`
	ExpiresAt time.Time `json:"expires_at" gorm:"column:expires_at"`
	IsActive  bool      `json:"is_active" gorm:"column:is_active"`

	UsedBy string     `json:"used_by,omitempty" gorm:"column:used_by"`
	UsedAt *time.Time `json:"used_at,omitempty" gorm:"column:used_at"`

	// emergency PIN fields
	Location          *Location                  `json:"location,omitempty" gorm:"serializer:json;column:location"`
	NotificationSent  bool                       `json:"notification_sent,omitempty" gorm:"column:notification_sent"`
	SMSSent           bool                       `json:"sms_sent,omitempty" gorm:"column:sms_sent"`
	EmergencyContacts datatypes.JSONSlice[string] `json:"emergency_contacts,omitempty" gorm:"column:emergency_contacts"`

	// sharing token fields
	AccessLevel string `json:"access_level,omitempty" gorm:"column:access_level"`
	DataScope   string `json:"data_scope,omitempty" gorm:"column:data_scope"`
}

func (Grant) TableName() string {
	return "access_grants"
}

func (g *Grant) Expired(now time.Time) bool {
	return !g.ExpiresAt.After(now)
}

// Spent reports whether a single-use grant has been redeemed. A set
// used_by marker counts as spent even while is_active is still true.
func (g *Grant) Spent() bool {
	return g.UsedBy != ""
}

// Redacted strips the secret for listings shown back to the subject.
func (g Grant) Redacted() Grant {
	g.Secret = ""
	return g
}

// RedeemResult is the outcome of an emergency PIN redemption.
type RedeemResult struct {
	Granted bool                     `json:"granted"`
	Records []map[string]interface{} `json:"records,omitempty"`
	Reason  string                   `json:"reason,omitempty"`
}

const (
	ReasonInvalidOrExpired = "invalid_or_expired"
	ReasonRateLimited      = "too_many_attempts"
)

// StatusResult reports a grant's current state without consuming it.
type StatusResult struct {
	Status    string     `json:"status"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}
