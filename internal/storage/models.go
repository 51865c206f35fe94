package storage

import (
	"encoding/json"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Preferences is a user's saved search profile. Nil pointers mean "not set".
type Preferences struct {
	UserID    string    `json:"user_id" bson:"user_id"`
	Location  *string   `json:"location" bson:"location"`
	Interests []string  `json:"interests" bson:"interests"`
	BudgetMin *float64  `json:"budget_min" bson:"budget_min"`
	BudgetMax *float64  `json:"budget_max" bson:"budget_max"`
	UpdatedAt time.Time `json:"-" bson:"updated_at"`
}

// Message is one persisted conversation turn.
type Message struct {
	Role       string          `json:"role" bson:"role"`
	Content    string          `json:"content" bson:"content"`
	ToolCalls  json.RawMessage `json:"tool_calls,omitempty" bson:"tool_calls,omitempty"`
	ToolCallID string          `json:"tool_call_id,omitempty" bson:"tool_call_id,omitempty"`
}

// ChatHistory is a saved conversation.
type ChatHistory struct {
	ID        string    `json:"id" bson:"_id"`
	Title     string    `json:"title" bson:"title"`
	Messages  []Message `json:"messages" bson:"messages"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time `json:"updated_at" bson:"updated_at"`
}

// ChatHistorySummary is a ChatHistory without its messages.
type ChatHistorySummary struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	MessageCount int       `json:"message_count"`
}

type Job struct {
	ID          string
	Type        string
	PayloadJSON string
	Status      string // "pending", "running", "completed", "failed"
	Attempts    int
	MaxAttempts int
	RunAfter    time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastError   string
}
