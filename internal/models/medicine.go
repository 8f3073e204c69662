package models

import (
	"fmt"
	"sort"
	"time"
)

// Medicine is a catalog entry: what is taken and at which times of day.
// Schedule items snapshot its fields at creation, so later edits never
// rewrite history.
type Medicine struct {
	MedicineID     string     `json:"medicine_id"`
	ElderID        int64      `json:"elder_id"`
	Name           string     `json:"name"`
	Type           string     `json:"type"`   // tablet, capsule, liquid...
	Amount         string     `json:"amount"` // free text, e.g. "100mg", "1 tablet"
	Times          []string   `json:"times"`  // HH:MM, deduplicated, order-insensitive
	StartDate      *time.Time `json:"start_date"` // active period, inclusive calendar dates
	EndDate        *time.Time `json:"end_date"`
	RecurrenceRule string     `json:"recurrence_rule"` // optional RFC 5545 RRULE restricting active dates
	ForceEnded     bool       `json:"force_ended"`
	ForceEndedAt   *time.Time `json:"force_ended_at"`
	ForceEndedBy   int64      `json:"force_ended_by"`
	ForceEndReason string     `json:"force_end_reason"`
	CreatedAt      time.Time  `json:"created_at"`
}

// ActiveOn reports whether the medicine's active period covers the given
// calendar date. Recurrence rules are evaluated by the generator, not here.
func (m *Medicine) ActiveOn(date time.Time) bool {
	if m.ForceEnded {
		return false
	}
	day := civilDate(date)
	if m.StartDate != nil && day.Before(civilDate(*m.StartDate)) {
		return false
	}
	if m.EndDate != nil && day.After(civilDate(*m.EndDate)) {
		return false
	}
	return true
}

func civilDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// DoseTimes returns the medicine's times of day, deduplicated and sorted.
// Malformed entries are returned separately so the caller can skip them
// without aborting the whole sync.
func (m *Medicine) DoseTimes() (valid []string, malformed []string) {
	seen := make(map[string]bool)
	for _, raw := range m.Times {
		t, err := ParseTimeOfDay(raw)
		if err != nil {
			malformed = append(malformed, raw)
			continue
		}
		if seen[t] {
			continue
		}
		seen[t] = true
		valid = append(valid, t)
	}
	sort.Strings(valid)
	return valid, malformed
}

// ParseTimeOfDay validates an HH:MM string and returns it normalized to
// two-digit fields.
func ParseTimeOfDay(s string) (string, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return "", fmt.Errorf("invalid time of day %q: %w", s, err)
	}
	return t.Format("15:04"), nil
}

// DoseInstant combines a calendar date with an HH:MM time of day in the
// given location. The time of day must already be validated.
func DoseInstant(date time.Time, timeOfDay string, loc *time.Location) (time.Time, error) {
	t, err := time.Parse("15:04", timeOfDay)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time of day %q: %w", timeOfDay, err)
	}
	return time.Date(date.Year(), date.Month(), date.Day(), t.Hour(), t.Minute(), 0, 0, loc), nil
}
