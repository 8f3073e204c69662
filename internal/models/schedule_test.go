package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestItemID_Deterministic(t *testing.T) {
	a := ItemID("med-123", "08:00")
	b := ItemID("med-123", "08:00")
	assert.Equal(t, a, b)
	assert.Equal(t, "med-123|08-00", a)
}

func TestItemID_DistinctPerTime(t *testing.T) {
	assert.NotEqual(t, ItemID("med-123", "08:00"), ItemID("med-123", "20:00"))
	assert.NotEqual(t, ItemID("med-123", "08:00"), ItemID("med-456", "08:00"))
}

func TestItemID_SanitizesUnsafeRunes(t *testing.T) {
	id := ItemID("med/123 é", "08:00")
	assert.Equal(t, "med_123__|08-00", id)
	for _, r := range id {
		valid := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9') || r == '_' || r == '-' || r == '|'
		assert.True(t, valid, "unexpected rune %q in id", r)
	}
}

func TestScheduleItem_Terminal(t *testing.T) {
	assert.False(t, (&ScheduleItem{Status: StatusHasntArrived}).Terminal())
	assert.False(t, (&ScheduleItem{Status: StatusInSnooze}).Terminal())
	assert.True(t, (&ScheduleItem{Status: StatusTaken}).Terminal())
	assert.True(t, (&ScheduleItem{Status: StatusMissed}).Terminal())
}

func TestMedicine_DoseTimes_DeduplicatesAndSorts(t *testing.T) {
	med := &Medicine{Times: []string{"20:00", "08:00", "08:00"}}
	valid, malformed := med.DoseTimes()
	assert.Equal(t, []string{"08:00", "20:00"}, valid)
	assert.Empty(t, malformed)
}

func TestMedicine_DoseTimes_ReportsMalformed(t *testing.T) {
	med := &Medicine{Times: []string{"08:00", "25:99", "noon"}}
	valid, malformed := med.DoseTimes()
	assert.Equal(t, []string{"08:00"}, valid)
	assert.Equal(t, []string{"25:99", "noon"}, malformed)
}

func TestMedicine_ActiveOn(t *testing.T) {
	start := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 3, 20, 0, 0, 0, 0, time.UTC)
	med := &Medicine{StartDate: &start, EndDate: &end}

	assert.False(t, med.ActiveOn(time.Date(2026, 3, 9, 23, 0, 0, 0, time.UTC)))
	assert.True(t, med.ActiveOn(time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)))
	assert.True(t, med.ActiveOn(time.Date(2026, 3, 20, 23, 59, 0, 0, time.UTC)), "end date is inclusive")
	assert.False(t, med.ActiveOn(time.Date(2026, 3, 21, 0, 0, 0, 0, time.UTC)))
}

func TestMedicine_ActiveOn_ForceEnded(t *testing.T) {
	med := &Medicine{ForceEnded: true}
	assert.False(t, med.ActiveOn(time.Now()))
}

func TestMedicine_ActiveOn_OpenPeriod(t *testing.T) {
	med := &Medicine{}
	assert.True(t, med.ActiveOn(time.Now()))
}

func TestDoseInstant(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Taipei")
	require.NoError(t, err)

	date := time.Date(2026, 3, 15, 13, 45, 0, 0, loc)
	instant, err := DoseInstant(date, "08:30", loc)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 15, 8, 30, 0, 0, loc), instant)
}

func TestParseTimeOfDay_Normalizes(t *testing.T) {
	tod, err := ParseTimeOfDay("8:05")
	require.NoError(t, err)
	assert.Equal(t, "08:05", tod)

	_, err = ParseTimeOfDay("24:00")
	assert.Error(t, err)
}
