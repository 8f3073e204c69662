package handlers

import (
	"context"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/carebell/carebell/internal/format"
	"github.com/carebell/carebell/internal/models"
)

func (h *Handlers) handleToday(ctx context.Context, msg *tgbotapi.Message, user *models.User) {
	elderID, ok := h.elderFor(user)
	if !ok {
		h.sendMessage(msg.Chat.ID, "You are not linked to an elder yet.")
		return
	}
	// A user asking for the schedule is a resync trigger too: the view
	// should not show a dose as pending that the evaluator would already
	// call missed.
	h.requester.Request(ctx, elderID)

	now := time.Now().In(h.loc)
	items, err := h.repos.Schedule.ListItems(ctx, elderID, now.Format(models.DayKey))
	if err != nil {
		h.sendMessage(msg.Chat.ID, "Failed to load today's schedule, please try again")
		return
	}
	h.sendMessage(msg.Chat.ID, format.ScheduleDay(items, now))
}

func (h *Handlers) handleTaken(ctx context.Context, callback *tgbotapi.CallbackQuery, day, itemID string) {
	elderID := callback.From.ID
	taken, err := h.repos.Schedule.MarkTaken(ctx, elderID, day, itemID, time.Now())
	if err != nil {
		h.log.Error().Err(err).Str("item", itemID).Msg("failed to mark dose taken")
		h.answerCallbackWithAlert(callback.ID, "Something went wrong, please try again")
		return
	}
	if !taken {
		// Already taken, or the snooze window closed and the marker won.
		item, err := h.repos.Schedule.GetItem(ctx, elderID, day, itemID)
		if err == nil && item != nil && item.Status == models.StatusMissed {
			h.answerCallbackWithAlert(callback.ID, "This dose was already recorded as missed.")
		}
		return
	}
	h.requester.Request(ctx, elderID)
	if callback.Message != nil {
		h.editMessageText(callback.Message.Chat.ID, callback.Message.MessageID, callback.Message.Text+"\n\n✅ Taken, well done!")
	}
}

func (h *Handlers) handleMissedLog(ctx context.Context, msg *tgbotapi.Message, user *models.User) {
	elderID, ok := h.elderFor(user)
	if !ok {
		h.sendMessage(msg.Chat.ID, "You are not linked to an elder yet.")
		return
	}
	entries, err := h.repos.MissedLog.ListRecent(ctx, elderID, 30)
	if err != nil {
		h.sendMessage(msg.Chat.ID, "Failed to load the missed-dose log, please try again")
		return
	}
	h.sendMessage(msg.Chat.ID, format.MissedLog(entries))
}

func (h *Handlers) handleAlerts(ctx context.Context, msg *tgbotapi.Message, user *models.User) {
	if !user.IsCaretaker() {
		h.sendMessage(msg.Chat.ID, "Alerts are for caretakers. Register with /caretaker.")
		return
	}
	notifications, err := h.repos.Notification.ListRecentForCaretaker(ctx, user.UserID, 10)
	if err != nil {
		h.sendMessage(msg.Chat.ID, "Failed to load alerts, please try again")
		return
	}
	if len(notifications) == 0 {
		h.sendMessage(msg.Chat.ID, "No alerts yet.")
		return
	}
	for _, n := range notifications {
		prefix := "📬 "
		if !n.Read {
			prefix = "📪 "
		}
		h.sendMessage(msg.Chat.ID, prefix+n.CreatedAt.Format("01/02 15:04")+"\n"+n.Message)
		if !n.Read {
			if err := h.repos.Notification.MarkRead(ctx, n.NotificationID); err != nil {
				h.log.Warn().Err(err).Str("notification", n.NotificationID).Msg("failed to mark alert read")
			}
		}
	}
}
