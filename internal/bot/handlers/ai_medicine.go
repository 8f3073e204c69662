package handlers

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/carebell/carebell/internal/models"
)

// parseWithAI turns a free-text medication instruction into a medicine
// via the structured-output parser, then validates everything locally.
// The model's output is a draft, not a trusted record.
func (h *Handlers) parseWithAI(ctx context.Context, text string, elderID int64) (*models.Medicine, error) {
	draft, err := h.ai.ParseMedicine(ctx, text, time.Now().In(h.loc))
	if err != nil {
		h.log.Error().Err(err).Msg("AI medicine parse failed")
		return nil, fmt.Errorf("the parser is unavailable right now")
	}
	if draft.Problem != "" {
		return nil, fmt.Errorf("%s", draft.Problem)
	}
	if draft.Name == "" || len(draft.Times) == 0 {
		return nil, fmt.Errorf("could not determine the medicine name or times")
	}

	med := &models.Medicine{
		MedicineID:     uuid.NewString(),
		ElderID:        elderID,
		Name:           draft.Name,
		Type:           draft.Type,
		Amount:         draft.Amount,
		RecurrenceRule: draft.RecurrenceRule,
	}
	for _, raw := range draft.Times {
		tod, err := models.ParseTimeOfDay(raw)
		if err != nil {
			return nil, fmt.Errorf("the parsed time %q is not valid", raw)
		}
		med.Times = append(med.Times, tod)
	}
	if draft.StartDate != "" {
		date, err := time.ParseInLocation("2006-01-02", draft.StartDate, h.loc)
		if err != nil {
			return nil, fmt.Errorf("the parsed start date %q is not valid", draft.StartDate)
		}
		med.StartDate = &date
	}
	if draft.EndDate != "" {
		date, err := time.ParseInLocation("2006-01-02", draft.EndDate, h.loc)
		if err != nil {
			return nil, fmt.Errorf("the parsed end date %q is not valid", draft.EndDate)
		}
		med.EndDate = &date
	}
	return med, nil
}
