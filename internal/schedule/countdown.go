package schedule

import (
	"time"

	"github.com/carebell/carebell/internal/models"
)

// Countdown modes.
const (
	ModeIdle         = "idle"
	ModePreDose      = "pre-dose"
	ModeIntakeWindow = "intake-window"
)

// Projection is what the rendering layer needs to draw the countdown for
// the nearest pending dose group. It is a snapshot: the renderer calls
// Project again on its next frame instead of mutating this.
type Projection struct {
	Mode   string
	Target time.Time // instant the countdown runs toward
	// TotalWindow is the full span the countdown covers: the remaining
	// wait at projection time in pre-dose mode, the fixed snooze window
	// in intake-window mode.
	TotalWindow time.Duration
	Items       []*models.ScheduleItem // the dose group being counted down
}

// Project maps the nearest unresolved dose group to a countdown target.
// Pure and side-effect-free; safe to call once per render tick.
func Project(items []*models.ScheduleItem, now time.Time) Projection {
	group := EarliestUnresolved(items)
	if len(group) == 0 {
		return Projection{Mode: ModeIdle}
	}
	base := group[0].BaseTimestamp
	if now.Before(base) {
		return Projection{
			Mode:        ModePreDose,
			Target:      base,
			TotalWindow: base.Sub(now),
			Items:       group,
		}
	}
	return Projection{
		Mode:        ModeIntakeWindow,
		Target:      base.Add(models.SnoozeWindow),
		TotalWindow: models.SnoozeWindow,
		Items:       group,
	}
}
