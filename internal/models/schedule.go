package models

import (
	"strings"
	"time"
)

// Dose statuses. hasnt_arrived and in_snooze_duration are time-driven;
// taken and missed are terminal and never overwritten.
const (
	StatusHasntArrived = "hasnt_arrived"
	StatusInSnooze     = "in_snooze_duration"
	StatusMissed       = "missed"
	StatusTaken        = "taken"
)

// SnoozeWindow is the grace period after the scheduled instant during
// which a dose is not yet missed.
const SnoozeWindow = 30 * time.Minute

// DayKey is the canonical YYYY-MM-DD key for a schedule day.
const DayKey = "2006-01-02"

// ScheduleDay groups the dose instances of one elder on one calendar date.
// Created lazily the first time a date is processed.
type ScheduleDay struct {
	ElderID   int64     `json:"elder_id"`
	Day       string    `json:"day"` // YYYY-MM-DD
	CreatedAt time.Time `json:"created_at"`
}

// ScheduleItem is one scheduled occurrence of one medicine at one time on
// one date. Name, type and amount are snapshots of the medicine at
// creation time.
type ScheduleItem struct {
	ItemID        string    `json:"item_id"` // deterministic, see ItemID
	ElderID       int64     `json:"elder_id"`
	Day           string    `json:"day"`
	MedicineID    string    `json:"medicine_id"`
	Name          string    `json:"name"`
	Type          string    `json:"type"`
	Amount        string    `json:"amount"`
	TimeOfDay     string    `json:"time"` // HH:MM
	BaseTimestamp time.Time `json:"base_timestamp"` // exact scheduled instant

	Status           string     `json:"status"`
	TakenAt          *time.Time `json:"taken_at,omitempty"`
	MissedLoggedAt   *time.Time `json:"missed_logged_at,omitempty"`
	MissedNotified   bool       `json:"missed_notified"`
	MissedNotifiedAt *time.Time `json:"missed_notified_at,omitempty"`
	RemindedAt       *time.Time `json:"reminded_at,omitempty"` // elder reminder announcement, best-effort

	CreatedAt time.Time `json:"created_at"`
}

// Terminal reports whether the item reached a state no trigger may
// overwrite.
func (i *ScheduleItem) Terminal() bool {
	return i.Status == StatusTaken || i.Status == StatusMissed
}

// ItemID derives the deterministic item id from the medicine id and time
// of day, so regenerating a day can never duplicate an instance. The same
// id doubles as the missed-dose log id.
func ItemID(medicineID, timeOfDay string) string {
	return sanitizeID(medicineID) + "|" + sanitizeID(strings.ReplaceAll(timeOfDay, ":", "-"))
}

// sanitizeID restricts a fragment to [A-Za-z0-9_-]; anything else becomes
// an underscore so ids stay stable and key-safe.
func sanitizeID(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}
