package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sashabaranov/go-openai"
)

type Client struct {
	client *openai.Client
	model  string
}

func New(apiKey, baseURL, model string) *Client {
	config := openai.DefaultConfig(apiKey)
	config.BaseURL = baseURL

	return &Client{
		client: openai.NewClientWithConfig(config),
		model:  model,
	}
}

// MedicineDraft is the structured result of parsing a caretaker's free
// text like "Aspirin 100mg every morning at 8 and before bed until the
// end of the month".
type MedicineDraft struct {
	Name           string   `json:"name"`
	Type           string   `json:"type"`
	Amount         string   `json:"amount"`
	Times          []string `json:"times"` // HH:MM
	StartDate      string   `json:"start_date,omitempty"` // YYYY-MM-DD
	EndDate        string   `json:"end_date,omitempty"`
	RecurrenceRule string   `json:"recurrence_rule,omitempty"`
	Confidence     float64  `json:"confidence"`
	Problem        string   `json:"problem,omitempty"` // set when the text cannot be parsed into a medicine
}

const systemPromptTemplate = `You parse medication instructions written by a caretaker into a structured medicine definition.

Current date: %s

Rules:
- "times" are the times of day the medicine is taken, 24h HH:MM format. "morning" means 08:00, "noon" 12:00, "evening" 18:00, "before bed" 21:00 unless the text says otherwise.
- "amount" is the dose per intake as written (e.g. "100mg", "2 tablets").
- "type" is the form if mentioned: tablet, capsule, liquid, injection, drops. Empty if unknown.
- "start_date"/"end_date" only when the text states an active period; resolve relative phrases against the current date. Both inclusive.
- "recurrence_rule" only for non-daily patterns, as an RFC 5545 RRULE (e.g. every other day: FREQ=DAILY;INTERVAL=2). Leave empty for daily medicines.
- If the text is not a medication instruction or the name or times cannot be determined, set "problem" to a short explanation and leave the other fields empty.`

func systemPrompt(now time.Time) string {
	return fmt.Sprintf(systemPromptTemplate, now.Format("2006-01-02 (Monday)"))
}

// JSON Schema for structured output
var medicineSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"name": {"type": "string", "description": "Medicine name"},
		"type": {"type": "string", "description": "Form: tablet, capsule, liquid, injection, drops or empty"},
		"amount": {"type": "string", "description": "Dose per intake as written"},
		"times": {
			"type": "array",
			"items": {"type": "string", "pattern": "^[0-2][0-9]:[0-5][0-9]$"},
			"description": "Times of day in 24h HH:MM"
		},
		"start_date": {"type": "string", "description": "YYYY-MM-DD or empty"},
		"end_date": {"type": "string", "description": "YYYY-MM-DD or empty"},
		"recurrence_rule": {"type": "string", "description": "RFC 5545 RRULE for non-daily patterns, empty for daily"},
		"confidence": {"type": "number", "minimum": 0, "maximum": 1},
		"problem": {"type": "string", "description": "Why the text could not be parsed, empty on success"}
	},
	"required": ["name", "times", "confidence"],
	"additionalProperties": false
}`)

// ParseMedicine turns free text into a medicine draft.
func (c *Client) ParseMedicine(ctx context.Context, text string, now time.Time) (*MedicineDraft, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: systemPrompt(now),
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: text,
			},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   "medicine",
				Schema: medicineSchema,
				Strict: true,
			},
		},
		Temperature: 0.1,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to call AI API: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no response from AI")
	}

	draft := &MedicineDraft{}
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), draft); err != nil {
		return nil, fmt.Errorf("failed to parse AI response: %w", err)
	}
	return draft, nil
}
