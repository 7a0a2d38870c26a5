package records

import (
	"context"
	"time"
)

// PatientRecord is one entry in a patient's medical history as returned
// to a provider after a successful emergency redemption.
type PatientRecord struct {
	ID         string                 `json:"id"`
	Type       string                 `json:"type"` // consultation, prescription, lab_results
	Timestamp  time.Time              `json:"timestamp"`
	Data       map[string]interface{} `json:"data"`
	HospitalID string                 `json:"hospital_id,omitempty"`
}

type Medication struct {
	Name         string `json:"name"`
	Dosage       string `json:"dosage"`
	Frequency    string `json:"frequency"`
	Duration     string `json:"duration"`
	Instructions string `json:"instructions"`
}

// Store supplies the payload returned on successful PIN redemption. The
// record system proper is an external collaborator; this service only
// reads through it.
type Store interface {
	RecordsFor(ctx context.Context, subjectID string) ([]PatientRecord, error)
}
