package models

import "time"

// MissedDoseLogEntry is the append-only record of a dose that transitioned
// to missed. The log id reuses the schedule item id and is scoped to the
// item's day, which makes the append idempotent: one entry per item, ever.
type MissedDoseLogEntry struct {
	LogID          string    `json:"log_id"`
	ElderID        int64     `json:"elder_id"`
	Day            string    `json:"day"`
	MedicineID     string    `json:"medicine_id"`
	Name           string    `json:"name"`
	Amount         string    `json:"amount"`
	MissedDoseTime time.Time `json:"missed_dose_time"` // the original scheduled instant
	LoggedAt       time.Time `json:"logged_at"`
}
