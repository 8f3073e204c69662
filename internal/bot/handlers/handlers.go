package handlers

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/carebell/carebell/internal/ai"
	"github.com/carebell/carebell/internal/models"
	"github.com/carebell/carebell/internal/repository"
)

type Repositories struct {
	User         *repository.UserRepository
	Medicine     *repository.MedicineRepository
	Schedule     *repository.ScheduleRepository
	MissedLog    *repository.MissedLogRepository
	Notification *repository.NotificationRepository
}

// Requester is the user-action trigger into the schedule coordinator.
type Requester interface {
	Request(ctx context.Context, elderID int64)
}

type Deps struct {
	Repos     *Repositories
	AI        *ai.Client // nil disables free-text medicine entry
	Requester Requester
	Location  *time.Location
}

type Handlers struct {
	api       *tgbotapi.BotAPI
	repos     *Repositories
	ai        *ai.Client
	requester Requester
	loc       *time.Location
	log       zerolog.Logger
}

func New(api *tgbotapi.BotAPI, deps *Deps, log zerolog.Logger) *Handlers {
	return &Handlers{
		api:       api,
		repos:     deps.Repos,
		ai:        deps.AI,
		requester: deps.Requester,
		loc:       deps.Location,
		log:       log.With().Str("component", "handlers").Logger(),
	}
}

func (h *Handlers) HandleCommand(ctx context.Context, msg *tgbotapi.Message) {
	user, err := h.repos.User.GetOrCreate(ctx, msg.From.ID, msg.From.UserName)
	if err != nil {
		h.log.Error().Err(err).Int64("user", msg.From.ID).Msg("failed to get/create user")
		return
	}

	switch msg.Command() {
	case "start":
		h.handleStart(msg)
	case "help":
		h.handleHelp(msg)
	case "elder":
		h.handleBecomeElder(ctx, msg)
	case "caretaker":
		h.handleBecomeCaretaker(ctx, msg)
	case "link":
		h.handleLink(ctx, msg, user)
	case "medadd":
		h.handleMedicineAdd(ctx, msg, user)
	case "meds":
		h.handleMedicineList(ctx, msg, user)
	case "medend":
		h.handleMedicineEnd(ctx, msg, user)
	case "today":
		h.handleToday(ctx, msg, user)
	case "missed":
		h.handleMissedLog(ctx, msg, user)
	case "alerts":
		h.handleAlerts(ctx, msg, user)
	default:
		h.sendMessage(msg.Chat.ID, "Unknown command, see /help")
	}
}

func (h *Handlers) HandleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if _, err := h.repos.User.GetOrCreate(ctx, msg.From.ID, msg.From.UserName); err != nil {
		h.log.Error().Err(err).Int64("user", msg.From.ID).Msg("failed to get/create user")
		return
	}
	h.sendMessage(msg.Chat.ID, "I work with commands — see /help. To add a medicine in plain words, use /medadd followed by the instruction.")
}

// HandleCallbackQuery handles the elder's "Taken" confirmation button.
func (h *Handlers) HandleCallbackQuery(ctx context.Context, callback *tgbotapi.CallbackQuery) {
	answer := tgbotapi.NewCallback(callback.ID, "")
	if _, err := h.api.Request(answer); err != nil {
		h.log.Warn().Err(err).Msg("failed to answer callback")
	}

	action, day, itemID, ok := parseCallbackData(callback.Data)
	if !ok || action != "take" {
		return
	}
	h.handleTaken(ctx, callback, day, itemID)
}

// TakenCallbackData builds the callback payload for the "Taken" button.
// Telegram caps callback data at 64 bytes; day plus deterministic item id
// fits because medicine ids are UUIDs.
func TakenCallbackData(item *models.ScheduleItem) string {
	return "take:" + item.Day + ":" + item.ItemID
}

func parseCallbackData(data string) (action, day, itemID string, ok bool) {
	parts := strings.SplitN(data, ":", 3)
	if len(parts) != 3 {
		return "", "", "", false
	}
	return parts[0], parts[1], parts[2], true
}

func (h *Handlers) handleStart(msg *tgbotapi.Message) {
	text := fmt.Sprintf(`👋 Hello %s!

I am CareBell. I remind an elder to take their medicines and alert caretakers when a dose is missed.

First tell me who you are:
/elder [name] — I will track your medicines
/caretaker [name] — you supervise an elder

Then a caretaker links to the elder with /link <elder telegram id> and registers medicines with /medadd.

See /help for everything else.`, msg.From.FirstName)
	h.sendMessage(msg.Chat.ID, text)
}

func (h *Handlers) handleHelp(msg *tgbotapi.Message) {
	h.sendMessage(msg.Chat.ID, `Commands:
/elder [name] — register as the elder
/caretaker [name] — register as a caretaker
/link <elder id> — link yourself to an elder (caretaker)
/medadd <name> | <amount> | <HH:MM,HH:MM> — add a medicine
/medadd <free text> — add a medicine described in plain words
/meds — list medicines
/medend <medicine id> [reason] — stop a medicine
/today — today's dose schedule
/missed — recent missed doses
/alerts — your recent alerts (caretaker)`)
}

func (h *Handlers) handleBecomeElder(ctx context.Context, msg *tgbotapi.Message) {
	name := strings.TrimSpace(msg.CommandArguments())
	if name == "" {
		name = msg.From.FirstName
	}
	if err := h.repos.User.SetRole(ctx, msg.From.ID, models.RoleElder, name); err != nil {
		h.sendMessage(msg.Chat.ID, "Failed to save, please try again")
		return
	}
	h.sendMessage(msg.Chat.ID, fmt.Sprintf("Registered as elder %s. Your id is %d — a caretaker links to you with /link %d.", name, msg.From.ID, msg.From.ID))
	h.requester.Request(ctx, msg.From.ID)
}

func (h *Handlers) handleBecomeCaretaker(ctx context.Context, msg *tgbotapi.Message) {
	name := strings.TrimSpace(msg.CommandArguments())
	if name == "" {
		name = msg.From.FirstName
	}
	if err := h.repos.User.SetRole(ctx, msg.From.ID, models.RoleCaretaker, name); err != nil {
		h.sendMessage(msg.Chat.ID, "Failed to save, please try again")
		return
	}
	h.sendMessage(msg.Chat.ID, fmt.Sprintf("Registered as caretaker %s. Link to an elder with /link <elder id>.", name))
}

func (h *Handlers) handleLink(ctx context.Context, msg *tgbotapi.Message, user *models.User) {
	if !user.IsCaretaker() {
		h.sendMessage(msg.Chat.ID, "Only caretakers link to an elder. Register first with /caretaker.")
		return
	}
	elderID, err := strconv.ParseInt(strings.TrimSpace(msg.CommandArguments()), 10, 64)
	if err != nil {
		h.sendMessage(msg.Chat.ID, "Usage: /link <elder telegram id>")
		return
	}
	elder, err := h.repos.User.GetByID(ctx, elderID)
	if err != nil || elder == nil || !elder.IsElder() {
		h.sendMessage(msg.Chat.ID, "No elder with that id. They need to run /elder first.")
		return
	}
	if err := h.repos.User.Link(ctx, msg.From.ID, elderID); err != nil {
		h.sendMessage(msg.Chat.ID, "Failed to link, please try again")
		return
	}
	h.sendMessage(msg.Chat.ID, fmt.Sprintf("Linked to %s. You will be alerted when they miss a dose.", elder.Label()))
}

// elderFor resolves which elder a command operates on: caretakers act on
// their linked elder, elders on themselves.
func (h *Handlers) elderFor(user *models.User) (int64, bool) {
	if user.IsCaretaker() {
		if len(user.ElderIDs) == 0 {
			return 0, false
		}
		return user.ElderIDs[0], true
	}
	return user.UserID, true
}

func (h *Handlers) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := h.api.Send(msg); err != nil {
		h.log.Warn().Err(err).Int64("chat", chatID).Msg("failed to send message")
	}
}

func (h *Handlers) answerCallbackWithAlert(callbackID string, text string) {
	answer := tgbotapi.NewCallbackWithAlert(callbackID, text)
	if _, err := h.api.Request(answer); err != nil {
		h.log.Warn().Err(err).Msg("failed to answer callback with alert")
	}
}

func (h *Handlers) editMessageText(chatID int64, messageID int, text string) {
	edit := tgbotapi.NewEditMessageText(chatID, messageID, text)
	if _, err := h.api.Send(edit); err != nil {
		h.log.Warn().Err(err).Msg("failed to edit message")
	}
}
