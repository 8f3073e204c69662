package rrule

import (
	"fmt"
	"strings"
	"time"

	"github.com/teambition/rrule-go"
)

// Parse parses an RFC 5545 RRULE string anchored at dtstart's calendar
// date in the given location. Medicines only care about which dates
// occur, so the anchor is normalized to midnight.
func Parse(ruleStr string, dtstart time.Time, loc *time.Location) (*rrule.RRule, error) {
	ruleStr = strings.TrimPrefix(ruleStr, "RRULE:")

	opt, err := rrule.StrToROption(ruleStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse RRULE: %w", err)
	}

	opt.Dtstart = time.Date(dtstart.Year(), dtstart.Month(), dtstart.Day(), 0, 0, 0, 0, loc)
	return rrule.NewRRule(*opt)
}

// OccursOn reports whether the rule produces an occurrence on date's
// calendar day.
func OccursOn(ruleStr string, dtstart, date time.Time, loc *time.Location) (bool, error) {
	rule, err := Parse(ruleStr, dtstart, loc)
	if err != nil {
		return false, err
	}

	date = date.In(loc)
	dayStart := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, loc)
	next := rule.After(dayStart, true)
	if next.IsZero() {
		return false, nil
	}
	return next.Before(dayStart.AddDate(0, 0, 1)), nil
}

// IsRecurring checks if the RRULE string looks like a recurrence rule.
func IsRecurring(ruleStr string) bool {
	return ruleStr != "" && strings.Contains(strings.ToUpper(ruleStr), "FREQ=")
}
