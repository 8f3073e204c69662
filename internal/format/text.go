// Package format builds the user-facing message texts. Everything here is
// pure so the wording can be tested without a Telegram connection.
package format

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/carebell/carebell/internal/models"
	"github.com/carebell/carebell/internal/schedule"
)

// GroupedAlert builds the caretaker alert for newly missed doses, grouped
// by scheduled instant: three medicines due at 08:00 read as one block,
// not three alerts.
func GroupedAlert(elderLabel string, items []*models.ScheduleItem) string {
	groups := groupByInstant(items)

	var sb strings.Builder
	if len(items) == 1 {
		sb.WriteString(fmt.Sprintf("🔔 Missed dose alert for %s\n", elderLabel))
	} else {
		sb.WriteString(fmt.Sprintf("🔔 Missed dose alert for %s (%d doses)\n", elderLabel, len(items)))
	}
	for _, g := range groups {
		sb.WriteString(fmt.Sprintf("\n⏰ %s\n", g.instant.Format("15:04")))
		for _, item := range g.items {
			sb.WriteString("• " + item.Name)
			if item.Amount != "" {
				sb.WriteString(" (" + item.Amount + ")")
			}
			sb.WriteString("\n")
		}
	}
	sb.WriteString("\nPlease check in with them.")
	return sb.String()
}

// DoseReminder builds the elder-facing reminder sent when a dose enters
// its intake window.
func DoseReminder(item *models.ScheduleItem) string {
	text := fmt.Sprintf("💊 Time for your medicine\n\n%s", item.Name)
	if item.Amount != "" {
		text += " — " + item.Amount
	}
	text += fmt.Sprintf("\nScheduled for %s", item.BaseTimestamp.Format("15:04"))
	text += fmt.Sprintf("\n\nYou have until %s to take it.",
		item.BaseTimestamp.Add(models.SnoozeWindow).Format("15:04"))
	return text
}

// ScheduleDay renders the elder's day view with per-dose status and a
// countdown line for the nearest pending group.
func ScheduleDay(items []*models.ScheduleItem, now time.Time) string {
	if len(items) == 0 {
		return "No medicines scheduled for today."
	}

	sorted := make([]*models.ScheduleItem, len(items))
	copy(sorted, items)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].BaseTimestamp.Equal(sorted[j].BaseTimestamp) {
			return sorted[i].Name < sorted[j].Name
		}
		return sorted[i].BaseTimestamp.Before(sorted[j].BaseTimestamp)
	})

	var sb strings.Builder
	sb.WriteString("📋 Today's medicines\n\n")
	for _, item := range sorted {
		sb.WriteString(fmt.Sprintf("%s %s %s", statusIcon(schedule.Evaluate(item, now)),
			item.BaseTimestamp.Format("15:04"), item.Name))
		if item.Amount != "" {
			sb.WriteString(" (" + item.Amount + ")")
		}
		sb.WriteString("\n")
	}

	if line := Countdown(schedule.Project(sorted, now), now); line != "" {
		sb.WriteString("\n" + line)
	}
	return sb.String()
}

// Countdown renders one line for a countdown projection, or "" when idle.
func Countdown(p schedule.Projection, now time.Time) string {
	switch p.Mode {
	case schedule.ModePreDose:
		return fmt.Sprintf("⏳ Next dose in %s (at %s)",
			humanDuration(p.Target.Sub(now)), p.Target.Format("15:04"))
	case schedule.ModeIntakeWindow:
		remaining := p.Target.Sub(now)
		if remaining < 0 {
			remaining = 0
		}
		return fmt.Sprintf("⏰ Take it now — %s left in the intake window", humanDuration(remaining))
	default:
		return ""
	}
}

// MissedLog renders recent missed-dose log entries for caretakers.
func MissedLog(entries []*models.MissedDoseLogEntry) string {
	if len(entries) == 0 {
		return "No missed doses on record. 🎉"
	}
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("📖 Missed doses (%d)\n\n", len(entries)))
	for _, e := range entries {
		sb.WriteString(fmt.Sprintf("• %s %s", e.MissedDoseTime.Format("01/02 15:04"), e.Name))
		if e.Amount != "" {
			sb.WriteString(" (" + e.Amount + ")")
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// MedicineList renders the catalog for caretaker review.
func MedicineList(meds []*models.Medicine) string {
	if len(meds) == 0 {
		return "No medicines registered. Use /medadd to add one."
	}
	var sb strings.Builder
	sb.WriteString("💊 Medicines\n\n")
	for _, m := range meds {
		status := ""
		if m.ForceEnded {
			status = " [ended]"
		}
		sb.WriteString(fmt.Sprintf("%s%s", m.Name, status))
		if m.Amount != "" {
			sb.WriteString(" — " + m.Amount)
		}
		times, _ := m.DoseTimes()
		if len(times) > 0 {
			sb.WriteString(" at " + strings.Join(times, ", "))
		}
		sb.WriteString(fmt.Sprintf("\n  id: %s\n", m.MedicineID))
	}
	return sb.String()
}

func statusIcon(status string) string {
	switch status {
	case models.StatusTaken:
		return "✅"
	case models.StatusMissed:
		return "❌"
	case models.StatusInSnooze:
		return "⏰"
	default:
		return "🕐"
	}
}

func humanDuration(d time.Duration) string {
	if d < time.Minute {
		return "less than a minute"
	}
	minutes := int(d.Minutes())
	if d < time.Hour {
		return fmt.Sprintf("%d min", minutes)
	}
	hours := minutes / 60
	mins := minutes % 60
	if mins == 0 {
		return fmt.Sprintf("%d h", hours)
	}
	return fmt.Sprintf("%d h %d min", hours, mins)
}

type instantGroup struct {
	instant time.Time
	items   []*models.ScheduleItem
}

func groupByInstant(items []*models.ScheduleItem) []instantGroup {
	byInstant := make(map[int64][]*models.ScheduleItem)
	for _, item := range items {
		key := item.BaseTimestamp.Unix()
		byInstant[key] = append(byInstant[key], item)
	}
	keys := make([]int64, 0, len(byInstant))
	for k := range byInstant {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	groups := make([]instantGroup, 0, len(keys))
	for _, k := range keys {
		group := byInstant[k]
		sort.Slice(group, func(i, j int) bool { return group[i].Name < group[j].Name })
		groups = append(groups, instantGroup{instant: group[0].BaseTimestamp, items: group})
	}
	return groups
}
