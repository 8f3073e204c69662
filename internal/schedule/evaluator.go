package schedule

import (
	"time"

	"github.com/carebell/carebell/internal/models"
)

// Evaluate computes the time-driven status of a dose instance. Taken and
// missed are terminal: evaluation never reverses them, whatever the clock
// says. The boundaries are half-open: the scheduled instant itself is
// already inside the snooze window, and the instant the window closes is
// already missed.
func Evaluate(item *models.ScheduleItem, now time.Time) string {
	if item.Terminal() {
		return item.Status
	}
	return StatusAt(item.BaseTimestamp, now)
}

// StatusAt computes the time-driven status for a bare scheduled instant,
// used when an item is born and has no prior state to respect.
func StatusAt(base, now time.Time) string {
	switch {
	case now.Before(base):
		return models.StatusHasntArrived
	case now.Before(base.Add(models.SnoozeWindow)):
		return models.StatusInSnooze
	default:
		return models.StatusMissed
	}
}

// Unresolved filters items that are still pending, i.e. not taken and not
// missed.
func Unresolved(items []*models.ScheduleItem) []*models.ScheduleItem {
	var out []*models.ScheduleItem
	for _, item := range items {
		if !item.Terminal() {
			out = append(out, item)
		}
	}
	return out
}

// EarliestUnresolved returns the unresolved items sharing the earliest
// base timestamp. When data hygiene slips and several unresolved windows
// overlap, the closest-upcoming group is authoritative for display.
func EarliestUnresolved(items []*models.ScheduleItem) []*models.ScheduleItem {
	var earliest time.Time
	var group []*models.ScheduleItem
	for _, item := range Unresolved(items) {
		switch {
		case group == nil, item.BaseTimestamp.Before(earliest):
			earliest = item.BaseTimestamp
			group = []*models.ScheduleItem{item}
		case item.BaseTimestamp.Equal(earliest):
			group = append(group, item)
		}
	}
	return group
}
