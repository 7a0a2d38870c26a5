package records

import (
	"context"
	"time"
)

// DemoStore returns a seeded record history for any subject. Stands in
// for the hospital record system in development and tests.
type DemoStore struct{}

func NewDemoStore() *DemoStore {
	return &DemoStore{}
}

func (s *DemoStore) RecordsFor(ctx context.Context, subjectID string) ([]PatientRecord, error) {
	now := time.Now().UTC()
	day := 24 * time.Hour

	warfarin := Medication{Name: "Warfarin", Dosage: "5mg", Frequency: "Once daily", Duration: "30 days", Instructions: "Take with food"}
	aspirin := Medication{Name: "Aspirin", Dosage: "81mg", Frequency: "Once daily", Duration: "30 days", Instructions: "Take with water"}

	return []PatientRecord{
		{
			ID:        "REC001",
			Type:      "consultation",
			Timestamp: now.Add(-7 * day),
			Data: map[string]interface{}{
				"symptoms":       []string{"Chest pain", "Shortness of breath"},
				"diagnosis":      "Hypertension",
				"treatment_plan": "Start medication and lifestyle changes",
				"doctor":         "Dr. Smith",
			},
			HospitalID: "HOSP001",
		},
		{
			ID:        "REC002",
			Type:      "prescription",
			Timestamp: now.Add(-6 * day),
			Data: map[string]interface{}{
				"medications": []Medication{warfarin},
				"doctor":      "Dr. Smith",
				"pharmacy":    "City Pharmacy",
			},
			HospitalID: "HOSP001",
		},
		{
			ID:        "REC003",
			Type:      "prescription",
			Timestamp: now.Add(-5 * day),
			Data: map[string]interface{}{
				"medications": []Medication{aspirin},
				"doctor":      "Dr. Smith",
				"pharmacy":    "City Pharmacy",
			},
			HospitalID: "HOSP001",
		},
		{
			ID:        "REC004",
			Type:      "lab_results",
			Timestamp: now.Add(-4 * day),
			Data: map[string]interface{}{
				"test_name": "Complete Blood Count",
				"results": map[string]string{
					"WBC":        "7.5 x 10^9/L",
					"RBC":        "4.8 x 10^12/L",
					"Hemoglobin": "14.2 g/dL",
				},
				"lab": "Central Diagnostics",
			},
			HospitalID: "HOSP002",
		},
	}, nil
}
