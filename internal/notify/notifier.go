// Package notify delivers missed-dose alerts to caretakers and dose
// reminders to the elder. Delivery is best-effort; domain state stays
// exact because the marker, not the notifier, owns the missed transition.
package notify

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/carebell/carebell/internal/models"
)

// ItemStore is the slice of schedule persistence the notifier touches:
// re-reading items before alerting and stamping the notified/reminded
// flags afterwards.
type ItemStore interface {
	GetItem(ctx context.Context, elderID int64, day, itemID string) (*models.ScheduleItem, error)
	SetMissedNotified(ctx context.Context, elderID int64, day, itemID string, at time.Time) error
	SetRemindedAt(ctx context.Context, elderID int64, day, itemID string, at time.Time) error
}

// UserStore resolves the elder and their caretakers.
type UserStore interface {
	GetByID(ctx context.Context, userID int64) (*models.User, error)
	ListCaretakersForElder(ctx context.Context, elderID int64) ([]*models.User, error)
}

// NotificationStore records delivered alerts.
type NotificationStore interface {
	Create(ctx context.Context, n *models.Notification) error
}

// Messenger is the outbound delivery surface. The bot layer implements it
// with Telegram; tests implement it in memory.
type Messenger interface {
	SendGroupedAlert(chatID int64, text string) error
	SendDoseReminder(chatID int64, text string, item *models.ScheduleItem) error
}

// AlertText builds the grouped caretaker alert body. Injected so the
// notifier stays free of presentation concerns.
type AlertText func(elderLabel string, items []*models.ScheduleItem) string

// ReminderText builds the elder reminder body.
type ReminderText func(item *models.ScheduleItem) string

type Notifier struct {
	items         ItemStore
	users         UserStore
	notifications NotificationStore
	messenger     Messenger
	alertText     AlertText
	reminderText  ReminderText
	log           zerolog.Logger
}

func New(items ItemStore, users UserStore, notifications NotificationStore, messenger Messenger,
	alertText AlertText, reminderText ReminderText, log zerolog.Logger) *Notifier {
	return &Notifier{
		items:         items,
		users:         users,
		notifications: notifications,
		messenger:     messenger,
		alertText:     alertText,
		reminderText:  reminderText,
		log:           log.With().Str("component", "notify").Logger(),
	}
}

// NotifyMissed sends one grouped alert per caretaker for the given newly
// missed items and flags each item so it is never re-alerted. Items that
// the store already shows as notified are dropped up front, which covers a
// crash between marker and notifier leaving a retry behind.
func (n *Notifier) NotifyMissed(ctx context.Context, elderID int64, missed []*models.ScheduleItem) error {
	items := n.unnotified(ctx, missed)
	if len(items) == 0 {
		return nil
	}

	elder, err := n.users.GetByID(ctx, elderID)
	if err != nil {
		return err
	}
	caretakers, err := n.resolveCaretakers(ctx, elder)
	if err != nil {
		return err
	}
	if len(caretakers) == 0 {
		n.log.Warn().Int64("elder", elderID).Int("items", len(items)).
			Msg("no caretaker resolvable, missed doses will not be alerted")
		return nil
	}

	message := n.alertText(elder.Label(), items)
	now := time.Now()
	delivered := 0
	for _, caretaker := range caretakers {
		if err := n.messenger.SendGroupedAlert(caretaker.UserID, message); err != nil {
			n.log.Error().Err(err).Int64("caretaker", caretaker.UserID).
				Msg("failed to deliver missed-dose alert")
			continue
		}
		delivered++
		record := &models.Notification{
			NotificationID: uuid.NewString(),
			ElderID:        elderID,
			CaretakerID:    caretaker.UserID,
			Type:           models.NotificationMissedDose,
			Message:        message,
			CreatedAt:      now,
		}
		if err := n.notifications.Create(ctx, record); err != nil {
			n.log.Error().Err(err).Int64("caretaker", caretaker.UserID).
				Msg("failed to record notification")
		}
	}

	// No delivery at all: leave the flags unset so the next pass retries.
	// At-least-once alerting is the policy at this boundary.
	if delivered == 0 {
		n.log.Warn().Int64("elder", elderID).Msg("missed-dose alert not delivered to any caretaker")
		return nil
	}

	for _, item := range items {
		if err := n.items.SetMissedNotified(ctx, elderID, item.Day, item.ItemID, now); err != nil {
			// A stale flag only risks one extra alert, never corrupts
			// dose state. Log and move on.
			n.log.Error().Err(err).Str("item", item.ItemID).
				Msg("failed to flag item as notified")
		}
	}
	n.log.Info().Int64("elder", elderID).Int("items", len(items)).Int("caretakers", delivered).
		Msg("missed-dose alert sent")
	return nil
}

// RemindElder announces doses entering their intake window to the elder,
// stamping each so it is announced once. Best-effort, same bias as the
// missed-notified flag.
func (n *Notifier) RemindElder(ctx context.Context, elderID int64, due []*models.ScheduleItem) {
	now := time.Now()
	for _, item := range due {
		current, err := n.items.GetItem(ctx, elderID, item.Day, item.ItemID)
		if err != nil || current == nil || current.RemindedAt != nil || current.Terminal() {
			continue
		}
		if err := n.messenger.SendDoseReminder(elderID, n.reminderText(item), item); err != nil {
			n.log.Error().Err(err).Str("item", item.ItemID).Msg("failed to send dose reminder")
			continue
		}
		if err := n.items.SetRemindedAt(ctx, elderID, item.Day, item.ItemID, now); err != nil {
			n.log.Error().Err(err).Str("item", item.ItemID).Msg("failed to stamp reminder")
		}
	}
}

// unnotified re-checks each candidate against the store and keeps only
// items still awaiting their alert.
func (n *Notifier) unnotified(ctx context.Context, missed []*models.ScheduleItem) []*models.ScheduleItem {
	var out []*models.ScheduleItem
	for _, item := range missed {
		current, err := n.items.GetItem(ctx, item.ElderID, item.Day, item.ItemID)
		if err != nil {
			n.log.Error().Err(err).Str("item", item.ItemID).Msg("failed to re-check item before alert")
			continue
		}
		if current == nil || current.MissedNotified || current.Status != models.StatusMissed {
			continue
		}
		out = append(out, current)
	}
	return out
}

// resolveCaretakers prefers caretakers whose record links to the elder and
// falls back to the elder's own caretaker-id list for older records.
func (n *Notifier) resolveCaretakers(ctx context.Context, elder *models.User) ([]*models.User, error) {
	caretakers, err := n.users.ListCaretakersForElder(ctx, elder.UserID)
	if err != nil {
		return nil, err
	}
	if len(caretakers) > 0 {
		return caretakers, nil
	}
	var fallback []*models.User
	for _, id := range elder.CaretakerIDs {
		caretaker, err := n.users.GetByID(ctx, id)
		if err != nil {
			n.log.Warn().Err(err).Int64("caretaker", id).Msg("failed to resolve linked caretaker")
			continue
		}
		if caretaker != nil {
			fallback = append(fallback, caretaker)
		}
	}
	return fallback, nil
}
