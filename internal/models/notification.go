package models

import "time"

// Notification types.
const (
	NotificationMissedDose = "missed_dose"
)

// Notification is one delivered alert to one caretaker. Side effect of
// the notifier, not part of the dose state machine.
type Notification struct {
	NotificationID string    `json:"notification_id"`
	ElderID        int64     `json:"elder_id"`
	CaretakerID    int64     `json:"caretaker_id"`
	Type           string    `json:"type"`
	Message        string    `json:"message"`
	Read           bool      `json:"read"`
	CreatedAt      time.Time `json:"created_at"`
}
