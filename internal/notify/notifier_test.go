package notify

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carebell/carebell/internal/format"
	"github.com/carebell/carebell/internal/models"
)

type fakeStore struct {
	mu      sync.Mutex
	items   map[string]*models.ScheduleItem
	users   map[int64]*models.User
	links   map[int64][]*models.User
	records []*models.Notification
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		items: make(map[string]*models.ScheduleItem),
		users: make(map[int64]*models.User),
		links: make(map[int64][]*models.User),
	}
}

func (s *fakeStore) put(item *models.ScheduleItem) {
	copied := *item
	s.items[item.Day+"/"+item.ItemID] = &copied
}

func (s *fakeStore) GetItem(_ context.Context, _ int64, day, itemID string) (*models.ScheduleItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, exists := s.items[day+"/"+itemID]
	if !exists {
		return nil, nil
	}
	copied := *item
	return &copied, nil
}

func (s *fakeStore) SetMissedNotified(_ context.Context, _ int64, day, itemID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	item := s.items[day+"/"+itemID]
	item.MissedNotified = true
	item.MissedNotifiedAt = &at
	return nil
}

func (s *fakeStore) SetRemindedAt(_ context.Context, _ int64, day, itemID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[day+"/"+itemID].RemindedAt = &at
	return nil
}

func (s *fakeStore) GetByID(_ context.Context, userID int64) (*models.User, error) {
	return s.users[userID], nil
}

func (s *fakeStore) ListCaretakersForElder(_ context.Context, elderID int64) ([]*models.User, error) {
	return s.links[elderID], nil
}

func (s *fakeStore) Create(_ context.Context, n *models.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, n)
	return nil
}

type fakeMessenger struct {
	mu        sync.Mutex
	alerts    map[int64][]string
	reminders map[int64][]string
	fail      bool
}

func newFakeMessenger() *fakeMessenger {
	return &fakeMessenger{
		alerts:    make(map[int64][]string),
		reminders: make(map[int64][]string),
	}
}

func (m *fakeMessenger) SendGroupedAlert(chatID int64, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errors.New("telegram unavailable")
	}
	m.alerts[chatID] = append(m.alerts[chatID], text)
	return nil
}

func (m *fakeMessenger) SendDoseReminder(chatID int64, text string, _ *models.ScheduleItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errors.New("telegram unavailable")
	}
	m.reminders[chatID] = append(m.reminders[chatID], text)
	return nil
}

const (
	elderID     = int64(1)
	caretakerID = int64(2)
)

func missedItem(itemID, name, tod string) *models.ScheduleItem {
	base := time.Date(2026, 3, 15, 8, 0, 0, 0, time.UTC)
	return &models.ScheduleItem{
		ItemID:        itemID,
		ElderID:       elderID,
		Day:           "2026-03-15",
		Name:          name,
		Amount:        "1 pill",
		TimeOfDay:     tod,
		BaseTimestamp: base,
		Status:        models.StatusMissed,
	}
}

func newTestNotifier(store *fakeStore, messenger *fakeMessenger) *Notifier {
	return New(store, store, store, messenger, format.GroupedAlert, format.DoseReminder, zerolog.Nop())
}

func linkCaretaker(store *fakeStore) {
	store.users[elderID] = &models.User{UserID: elderID, DisplayName: "Grandma", Role: models.RoleElder}
	caretaker := &models.User{UserID: caretakerID, Role: models.RoleCaretaker, ElderIDs: []int64{elderID}}
	store.users[caretakerID] = caretaker
	store.links[elderID] = []*models.User{caretaker}
}

func TestNotifyMissed_GroupsIntoOneAlert(t *testing.T) {
	store := newFakeStore()
	linkCaretaker(store)
	first := missedItem("med-a|08-00", "Aspirin", "08:00")
	second := missedItem("med-b|08-00", "Metformin", "08:00")
	store.put(first)
	store.put(second)
	messenger := newFakeMessenger()
	n := newTestNotifier(store, messenger)

	err := n.NotifyMissed(context.Background(), elderID, []*models.ScheduleItem{first, second})
	require.NoError(t, err)

	require.Len(t, messenger.alerts[caretakerID], 1, "same-instant misses collapse into one alert")
	text := messenger.alerts[caretakerID][0]
	assert.True(t, strings.Contains(text, "Aspirin"), "alert lists every missed medicine: %q", text)
	assert.True(t, strings.Contains(text, "Metformin"), "alert lists every missed medicine: %q", text)
	assert.True(t, strings.Contains(text, "Grandma"), "alert names the elder: %q", text)

	require.Len(t, store.records, 1)
	assert.Equal(t, caretakerID, store.records[0].CaretakerID)
	assert.Equal(t, models.NotificationMissedDose, store.records[0].Type)
	assert.NotEmpty(t, store.records[0].NotificationID)

	for _, item := range []*models.ScheduleItem{first, second} {
		got, _ := store.GetItem(context.Background(), elderID, item.Day, item.ItemID)
		assert.True(t, got.MissedNotified, "item %s must be flagged", item.ItemID)
	}
}

func TestNotifyMissed_AlreadyNotifiedIsDropped(t *testing.T) {
	store := newFakeStore()
	linkCaretaker(store)
	item := missedItem("med-a|08-00", "Aspirin", "08:00")
	store.put(item)
	messenger := newFakeMessenger()
	n := newTestNotifier(store, messenger)

	require.NoError(t, n.NotifyMissed(context.Background(), elderID, []*models.ScheduleItem{item}))
	require.NoError(t, n.NotifyMissed(context.Background(), elderID, []*models.ScheduleItem{item}))

	assert.Len(t, messenger.alerts[caretakerID], 1, "a flagged item never re-alerts")
	assert.Len(t, store.records, 1)
}

func TestNotifyMissed_OneAlertPerCaretaker(t *testing.T) {
	store := newFakeStore()
	linkCaretaker(store)
	other := &models.User{UserID: 3, Role: models.RoleCaretaker, ElderIDs: []int64{elderID}}
	store.users[other.UserID] = other
	store.links[elderID] = append(store.links[elderID], other)

	item := missedItem("med-a|08-00", "Aspirin", "08:00")
	store.put(item)
	messenger := newFakeMessenger()
	n := newTestNotifier(store, messenger)

	require.NoError(t, n.NotifyMissed(context.Background(), elderID, []*models.ScheduleItem{item}))

	assert.Len(t, messenger.alerts[caretakerID], 1)
	assert.Len(t, messenger.alerts[other.UserID], 1)
	assert.Len(t, store.records, 2)
}

func TestNotifyMissed_FallsBackToElderLinks(t *testing.T) {
	store := newFakeStore()
	// No role-side link, only the elder record points at the caretaker.
	store.users[elderID] = &models.User{
		UserID: elderID, DisplayName: "Grandma", Role: models.RoleElder,
		CaretakerIDs: []int64{caretakerID},
	}
	store.users[caretakerID] = &models.User{UserID: caretakerID, Role: models.RoleCaretaker}

	item := missedItem("med-a|08-00", "Aspirin", "08:00")
	store.put(item)
	messenger := newFakeMessenger()
	n := newTestNotifier(store, messenger)

	require.NoError(t, n.NotifyMissed(context.Background(), elderID, []*models.ScheduleItem{item}))
	assert.Len(t, messenger.alerts[caretakerID], 1)
}

func TestNotifyMissed_NoCaretakerIsNotAnError(t *testing.T) {
	store := newFakeStore()
	store.users[elderID] = &models.User{UserID: elderID, Role: models.RoleElder}
	item := missedItem("med-a|08-00", "Aspirin", "08:00")
	store.put(item)
	messenger := newFakeMessenger()
	n := newTestNotifier(store, messenger)

	require.NoError(t, n.NotifyMissed(context.Background(), elderID, []*models.ScheduleItem{item}))
	assert.Empty(t, messenger.alerts)
	got, _ := store.GetItem(context.Background(), elderID, item.Day, item.ItemID)
	assert.False(t, got.MissedNotified, "flag stays unset so a later link still alerts")
}

func TestNotifyMissed_DeliveryFailureLeavesFlagUnset(t *testing.T) {
	store := newFakeStore()
	linkCaretaker(store)
	item := missedItem("med-a|08-00", "Aspirin", "08:00")
	store.put(item)
	messenger := newFakeMessenger()
	messenger.fail = true
	n := newTestNotifier(store, messenger)

	require.NoError(t, n.NotifyMissed(context.Background(), elderID, []*models.ScheduleItem{item}))
	got, _ := store.GetItem(context.Background(), elderID, item.Day, item.ItemID)
	assert.False(t, got.MissedNotified)
	assert.Empty(t, store.records)

	// Recovery: the next pass retries and succeeds.
	messenger.fail = false
	require.NoError(t, n.NotifyMissed(context.Background(), elderID, []*models.ScheduleItem{item}))
	got, _ = store.GetItem(context.Background(), elderID, item.Day, item.ItemID)
	assert.True(t, got.MissedNotified)
	assert.Len(t, messenger.alerts[caretakerID], 1)
}

func TestNotifyMissed_TakenInTheMeantimeIsSkipped(t *testing.T) {
	store := newFakeStore()
	linkCaretaker(store)
	item := missedItem("med-a|08-00", "Aspirin", "08:00")
	stored := *item
	stored.Status = models.StatusTaken
	store.put(&stored)
	messenger := newFakeMessenger()
	n := newTestNotifier(store, messenger)

	require.NoError(t, n.NotifyMissed(context.Background(), elderID, []*models.ScheduleItem{item}))
	assert.Empty(t, messenger.alerts)
}

func TestRemindElder_AnnouncesOnce(t *testing.T) {
	store := newFakeStore()
	item := missedItem("med-a|08-00", "Aspirin", "08:00")
	item.Status = models.StatusInSnooze
	store.put(item)
	messenger := newFakeMessenger()
	n := newTestNotifier(store, messenger)

	n.RemindElder(context.Background(), elderID, []*models.ScheduleItem{item})
	n.RemindElder(context.Background(), elderID, []*models.ScheduleItem{item})

	require.Len(t, messenger.reminders[elderID], 1)
	assert.True(t, strings.Contains(messenger.reminders[elderID][0], "Aspirin"))
	got, _ := store.GetItem(context.Background(), elderID, item.Day, item.ItemID)
	assert.NotNil(t, got.RemindedAt)
}

func TestRemindElder_FailureRetriesNextPass(t *testing.T) {
	store := newFakeStore()
	item := missedItem("med-a|08-00", "Aspirin", "08:00")
	item.Status = models.StatusInSnooze
	store.put(item)
	messenger := newFakeMessenger()
	messenger.fail = true
	n := newTestNotifier(store, messenger)

	n.RemindElder(context.Background(), elderID, []*models.ScheduleItem{item})
	got, _ := store.GetItem(context.Background(), elderID, item.Day, item.ItemID)
	assert.Nil(t, got.RemindedAt)

	messenger.fail = false
	n.RemindElder(context.Background(), elderID, []*models.ScheduleItem{item})
	assert.Len(t, messenger.reminders[elderID], 1)
}
