package models

import "time"

// User roles. An elder is the person whose medication is tracked;
// caretakers supervise one or more elders.
const (
	RoleElder     = "elder"
	RoleCaretaker = "caretaker"
)

type User struct {
	UserID       int64     `json:"user_id"` // Telegram user id, also the chat id for direct messages
	UserName     string    `json:"user_name"`
	DisplayName  string    `json:"display_name"`
	Role         string    `json:"role"`
	ElderIDs     []int64   `json:"elder_ids"`     // set on caretakers: elders they supervise
	CaretakerIDs []int64   `json:"caretaker_ids"` // set on elders: legacy link direction, kept for fallback resolution
	CreatedAt    time.Time `json:"created_at"`
}

func (u *User) IsElder() bool {
	return u.Role == RoleElder
}

func (u *User) IsCaretaker() bool {
	return u.Role == RoleCaretaker
}

// Label returns the name used when talking about this user in messages.
func (u *User) Label() string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	if u.UserName != "" {
		return u.UserName
	}
	return "elder"
}
