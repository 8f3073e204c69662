package handlers

import (
	"context"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"

	"github.com/carebell/carebell/internal/format"
	"github.com/carebell/carebell/internal/models"
)

// handleMedicineAdd accepts either the structured form
// "name | amount | HH:MM,HH:MM [| start YYYY-MM-DD] [| end YYYY-MM-DD]"
// or free text, which goes through the AI parser.
func (h *Handlers) handleMedicineAdd(ctx context.Context, msg *tgbotapi.Message, user *models.User) {
	elderID, ok := h.elderFor(user)
	if !ok {
		h.sendMessage(msg.Chat.ID, "You are not linked to an elder yet. Use /link <elder id> first.")
		return
	}
	args := strings.TrimSpace(msg.CommandArguments())
	if args == "" {
		h.sendMessage(msg.Chat.ID, "Usage: /medadd <name> | <amount> | <HH:MM,HH:MM>\nor: /medadd Aspirin 100mg every morning at 8")
		return
	}

	med, err := h.parseStructured(args, elderID)
	if err != nil {
		if h.ai == nil {
			h.sendMessage(msg.Chat.ID, "Could not read that. Use: /medadd <name> | <amount> | <HH:MM,HH:MM>")
			return
		}
		med, err = h.parseWithAI(ctx, args, elderID)
		if err != nil {
			h.sendMessage(msg.Chat.ID, "Could not read that: "+err.Error())
			return
		}
	}

	if err := h.repos.Medicine.Create(ctx, med); err != nil {
		h.log.Error().Err(err).Msg("failed to create medicine")
		h.sendMessage(msg.Chat.ID, "Failed to save the medicine, please try again")
		return
	}
	h.requester.Request(ctx, elderID)

	times, _ := med.DoseTimes()
	reply := fmt.Sprintf("💊 Added %s", med.Name)
	if med.Amount != "" {
		reply += " (" + med.Amount + ")"
	}
	reply += " at " + strings.Join(times, ", ")
	if med.EndDate != nil {
		reply += " until " + med.EndDate.Format("2006-01-02")
	}
	h.sendMessage(msg.Chat.ID, reply)
}

func (h *Handlers) parseStructured(args string, elderID int64) (*models.Medicine, error) {
	parts := strings.Split(args, "|")
	if len(parts) < 3 {
		return nil, fmt.Errorf("expected name | amount | times")
	}
	med := &models.Medicine{
		MedicineID: uuid.NewString(),
		ElderID:    elderID,
		Name:       strings.TrimSpace(parts[0]),
		Amount:     strings.TrimSpace(parts[1]),
	}
	if med.Name == "" {
		return nil, fmt.Errorf("medicine name is empty")
	}
	for _, raw := range strings.Split(parts[2], ",") {
		tod, err := models.ParseTimeOfDay(strings.TrimSpace(raw))
		if err != nil {
			return nil, err
		}
		med.Times = append(med.Times, tod)
	}
	for _, extra := range parts[3:] {
		if err := h.parsePeriodField(med, strings.TrimSpace(extra)); err != nil {
			return nil, err
		}
	}
	return med, nil
}

func (h *Handlers) parsePeriodField(med *models.Medicine, field string) error {
	value := ""
	switch {
	case strings.HasPrefix(field, "start "):
		value = strings.TrimPrefix(field, "start ")
	case strings.HasPrefix(field, "end "):
		value = strings.TrimPrefix(field, "end ")
	default:
		return fmt.Errorf("unknown field %q", field)
	}
	date, err := time.ParseInLocation("2006-01-02", strings.TrimSpace(value), h.loc)
	if err != nil {
		return fmt.Errorf("invalid date in %q: %w", field, err)
	}
	if strings.HasPrefix(field, "start ") {
		med.StartDate = &date
	} else {
		med.EndDate = &date
	}
	return nil
}

func (h *Handlers) handleMedicineList(ctx context.Context, msg *tgbotapi.Message, user *models.User) {
	elderID, ok := h.elderFor(user)
	if !ok {
		h.sendMessage(msg.Chat.ID, "You are not linked to an elder yet.")
		return
	}
	meds, err := h.repos.Medicine.ListByElder(ctx, elderID)
	if err != nil {
		h.sendMessage(msg.Chat.ID, "Failed to load medicines, please try again")
		return
	}
	h.sendMessage(msg.Chat.ID, format.MedicineList(meds))
}

func (h *Handlers) handleMedicineEnd(ctx context.Context, msg *tgbotapi.Message, user *models.User) {
	elderID, ok := h.elderFor(user)
	if !ok {
		h.sendMessage(msg.Chat.ID, "You are not linked to an elder yet.")
		return
	}
	args := strings.SplitN(strings.TrimSpace(msg.CommandArguments()), " ", 2)
	if args[0] == "" {
		h.sendMessage(msg.Chat.ID, "Usage: /medend <medicine id> [reason]")
		return
	}
	reason := ""
	if len(args) == 2 {
		reason = strings.TrimSpace(args[1])
	}
	med, err := h.repos.Medicine.GetByID(ctx, elderID, args[0])
	if err != nil || med == nil {
		h.sendMessage(msg.Chat.ID, "No medicine with that id — see /meds for the list.")
		return
	}
	if err := h.repos.Medicine.ForceEnd(ctx, elderID, med.MedicineID, msg.From.ID, reason, time.Now()); err != nil {
		h.sendMessage(msg.Chat.ID, "Failed to stop the medicine, please try again")
		return
	}
	h.requester.Request(ctx, elderID)
	h.sendMessage(msg.Chat.ID, fmt.Sprintf("Stopped %s. Pending doses were removed; past history is kept.", med.Name))
}
