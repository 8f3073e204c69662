package schedule

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carebell/carebell/internal/models"
)

// memStore is an in-memory stand-in for the Postgres repositories with
// the same atomicity contracts: create-if-absent and compare-and-set
// missed marking.
type memStore struct {
	mu    sync.Mutex
	meds  []*models.Medicine
	days  map[string]bool
	items map[string]*models.ScheduleItem
	logs  map[string]int
}

func newMemStore(meds ...*models.Medicine) *memStore {
	return &memStore{
		meds:  meds,
		days:  make(map[string]bool),
		items: make(map[string]*models.ScheduleItem),
		logs:  make(map[string]int),
	}
}

func itemKey(elderID int64, day, itemID string) string {
	return fmt.Sprintf("%d/%s/%s", elderID, day, itemID)
}

func (s *memStore) ListByElder(_ context.Context, elderID int64) ([]*models.Medicine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Medicine
	for _, m := range s.meds {
		if m.ElderID == elderID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *memStore) EnsureDay(_ context.Context, elderID int64, day string, _ time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := fmt.Sprintf("%d/%s", elderID, day)
	if s.days[key] {
		return false, nil
	}
	s.days[key] = true
	return true, nil
}

func (s *memStore) ListItems(_ context.Context, elderID int64, day string) ([]*models.ScheduleItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.ScheduleItem
	for _, item := range s.items {
		if item.ElderID == elderID && item.Day == day {
			copied := *item
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (s *memStore) CreateItemIfAbsent(_ context.Context, item *models.ScheduleItem) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := itemKey(item.ElderID, item.Day, item.ItemID)
	if _, exists := s.items[key]; exists {
		return false, nil
	}
	copied := *item
	s.items[key] = &copied
	return true, nil
}

func (s *memStore) MarkMissed(_ context.Context, elderID int64, day, itemID string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, exists := s.items[itemKey(elderID, day, itemID)]
	if !exists || item.Terminal() {
		return false, nil
	}
	item.Status = models.StatusMissed
	item.MissedLoggedAt = &now
	s.logs[itemKey(elderID, day, itemID)]++
	return true, nil
}

func (s *memStore) item(t *testing.T, elderID int64, day, itemID string) *models.ScheduleItem {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	item, exists := s.items[itemKey(elderID, day, itemID)]
	require.True(t, exists, "item %s not found", itemID)
	copied := *item
	return &copied
}

const elderID = int64(42)

func aspirin() *models.Medicine {
	return &models.Medicine{
		MedicineID: "asp-1",
		ElderID:    elderID,
		Name:       "Aspirin",
		Amount:     "100mg",
		Times:      []string{"08:00", "08:00", "20:00"},
	}
}

func newTestService(store *memStore) *Service {
	return NewService(store, store, time.UTC, zerolog.Nop())
}

func TestSync_GeneratesDedupedItems(t *testing.T) {
	store := newMemStore(aspirin())
	svc := newTestService(store)

	now := time.Date(2026, 3, 15, 7, 0, 0, 0, time.UTC)
	result, err := svc.Sync(context.Background(), elderID, now)
	require.NoError(t, err)
	assert.Empty(t, result.NewlyMissed)

	items, _ := store.ListItems(context.Background(), elderID, "2026-03-15")
	require.Len(t, items, 2, "duplicate 08:00 must collapse into one item")

	morning := store.item(t, elderID, "2026-03-15", models.ItemID("asp-1", "08:00"))
	assert.Equal(t, models.StatusHasntArrived, morning.Status)
	assert.Equal(t, time.Date(2026, 3, 15, 8, 0, 0, 0, time.UTC), morning.BaseTimestamp)
	assert.Equal(t, "Aspirin", morning.Name)
	assert.Equal(t, "100mg", morning.Amount)
}

func TestSync_Idempotent(t *testing.T) {
	store := newMemStore(aspirin())
	svc := newTestService(store)
	now := time.Date(2026, 3, 15, 7, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		_, err := svc.Sync(context.Background(), elderID, now)
		require.NoError(t, err)
	}

	items, _ := store.ListItems(context.Background(), elderID, "2026-03-15")
	assert.Len(t, items, 2)
}

func TestSync_BornMissedIsMarkedAndQueued(t *testing.T) {
	store := newMemStore(aspirin())
	svc := newTestService(store)

	// First pass of the day happens after the morning cutoff.
	now := time.Date(2026, 3, 15, 9, 0, 0, 0, time.UTC)
	result, err := svc.Sync(context.Background(), elderID, now)
	require.NoError(t, err)

	require.Len(t, result.NewlyMissed, 1)
	assert.Equal(t, models.ItemID("asp-1", "08:00"), result.NewlyMissed[0].ItemID)

	morning := store.item(t, elderID, "2026-03-15", models.ItemID("asp-1", "08:00"))
	assert.Equal(t, models.StatusMissed, morning.Status)
	assert.NotNil(t, morning.MissedLoggedAt)
	assert.Equal(t, 1, store.logs[itemKey(elderID, "2026-03-15", morning.ItemID)])

	evening := store.item(t, elderID, "2026-03-15", models.ItemID("asp-1", "20:00"))
	assert.Equal(t, models.StatusHasntArrived, evening.Status)

	// A later pass must not re-report the same miss.
	result, err = svc.Sync(context.Background(), elderID, now.Add(time.Minute))
	require.NoError(t, err)
	assert.Empty(t, result.NewlyMissed)
}

func TestSync_SweepFlipsOverdueItemsExactlyOnce(t *testing.T) {
	store := newMemStore(aspirin())
	svc := newTestService(store)

	_, err := svc.Sync(context.Background(), elderID, time.Date(2026, 3, 15, 7, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	// The clock moves past the morning cutoff.
	result, err := svc.Sync(context.Background(), elderID, time.Date(2026, 3, 15, 8, 30, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, result.NewlyMissed, 1)

	result, err = svc.Sync(context.Background(), elderID, time.Date(2026, 3, 15, 8, 31, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Empty(t, result.NewlyMissed)
	assert.Equal(t, 1, store.logs[itemKey(elderID, "2026-03-15", models.ItemID("asp-1", "08:00"))])
}

func TestSync_TakenIsNeverOverwritten(t *testing.T) {
	store := newMemStore(aspirin())
	svc := newTestService(store)

	_, err := svc.Sync(context.Background(), elderID, time.Date(2026, 3, 15, 8, 5, 0, 0, time.UTC))
	require.NoError(t, err)

	store.mu.Lock()
	item := store.items[itemKey(elderID, "2026-03-15", models.ItemID("asp-1", "08:00"))]
	item.Status = models.StatusTaken
	store.mu.Unlock()

	result, err := svc.Sync(context.Background(), elderID, time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Empty(t, result.NewlyMissed)
	assert.Equal(t, models.StatusTaken,
		store.item(t, elderID, "2026-03-15", models.ItemID("asp-1", "08:00")).Status)
}

func TestSync_PreviousDaySweep(t *testing.T) {
	store := newMemStore(aspirin())
	svc := newTestService(store)

	// The device was last seen yesterday evening, before the 20:00 dose.
	_, err := svc.Sync(context.Background(), elderID, time.Date(2026, 3, 14, 19, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	// First pass after midnight: yesterday's pending doses must not
	// escape detection.
	result, err := svc.Sync(context.Background(), elderID, time.Date(2026, 3, 15, 0, 10, 0, 0, time.UTC))
	require.NoError(t, err)

	ids := make(map[string]string)
	for _, item := range result.NewlyMissed {
		ids[item.Day] = item.ItemID
	}
	assert.Equal(t, models.ItemID("asp-1", "20:00"), ids["2026-03-14"])
	assert.Equal(t, models.StatusMissed,
		store.item(t, elderID, "2026-03-14", models.ItemID("asp-1", "20:00")).Status)
}

func TestSync_DueReminders(t *testing.T) {
	store := newMemStore(aspirin())
	svc := newTestService(store)

	now := time.Date(2026, 3, 15, 8, 10, 0, 0, time.UTC)
	result, err := svc.Sync(context.Background(), elderID, now)
	require.NoError(t, err)

	require.Len(t, result.DueReminders, 1)
	assert.Equal(t, models.ItemID("asp-1", "08:00"), result.DueReminders[0].ItemID)

	// Once announced, the item is not offered again.
	store.mu.Lock()
	reminded := now
	store.items[itemKey(elderID, "2026-03-15", models.ItemID("asp-1", "08:00"))].RemindedAt = &reminded
	store.mu.Unlock()

	result, err = svc.Sync(context.Background(), elderID, now.Add(time.Minute))
	require.NoError(t, err)
	assert.Empty(t, result.DueReminders)
}

func TestSync_SkipsInactiveMedicines(t *testing.T) {
	ended := aspirin()
	ended.MedicineID = "asp-ended"
	ended.ForceEnded = true

	past := aspirin()
	past.MedicineID = "asp-past"
	endDate := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	past.EndDate = &endDate

	store := newMemStore(ended, past)
	svc := newTestService(store)

	_, err := svc.Sync(context.Background(), elderID, time.Date(2026, 3, 15, 7, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	items, _ := store.ListItems(context.Background(), elderID, "2026-03-15")
	assert.Empty(t, items)
}

func TestSync_SkipsMalformedTimesOnly(t *testing.T) {
	med := aspirin()
	med.Times = []string{"08:00", "bogus"}
	store := newMemStore(med)
	svc := newTestService(store)

	_, err := svc.Sync(context.Background(), elderID, time.Date(2026, 3, 15, 7, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	items, _ := store.ListItems(context.Background(), elderID, "2026-03-15")
	assert.Len(t, items, 1)
}

func TestSync_RecurrenceRuleRestrictsDates(t *testing.T) {
	med := aspirin()
	med.Times = []string{"08:00"}
	med.RecurrenceRule = "FREQ=WEEKLY;BYDAY=MO"
	start := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC) // a Monday
	med.StartDate = &start

	store := newMemStore(med)
	svc := newTestService(store)

	// 2026-03-16 is a Monday, 2026-03-17 is not.
	_, err := svc.Sync(context.Background(), elderID, time.Date(2026, 3, 16, 7, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	items, _ := store.ListItems(context.Background(), elderID, "2026-03-16")
	assert.Len(t, items, 1)

	_, err = svc.Sync(context.Background(), elderID, time.Date(2026, 3, 17, 7, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	items, _ = store.ListItems(context.Background(), elderID, "2026-03-17")
	assert.Empty(t, items)
}

func TestMarkMissed_ConcurrentCallsFlipExactlyOnce(t *testing.T) {
	store := newMemStore(aspirin())
	svc := newTestService(store)

	_, err := svc.Sync(context.Background(), elderID, time.Date(2026, 3, 15, 8, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	itemID := models.ItemID("asp-1", "08:00")
	now := time.Date(2026, 3, 15, 8, 30, 0, 0, time.UTC)

	var wg sync.WaitGroup
	var flips int64
	var mu sync.Mutex
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			wasNew, err := store.MarkMissed(context.Background(), elderID, "2026-03-15", itemID, now)
			assert.NoError(t, err)
			if wasNew {
				mu.Lock()
				flips++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), flips)
	assert.Equal(t, 1, store.logs[itemKey(elderID, "2026-03-15", itemID)])
}
