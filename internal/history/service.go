package history

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/outing/internal/storage"
)

const (
	titleMaxRunes = 50
	defaultTitle  = "New Chat"
)

// Store is implemented by storage.Store and storage.MongoStore.
type Store interface {
	GetChatHistory(ctx context.Context, id string) (storage.ChatHistory, error)
	SaveChatHistory(ctx context.Context, h storage.ChatHistory) error
	ListChatHistories(ctx context.Context) ([]storage.ChatHistorySummary, error)
	DeleteChatHistory(ctx context.Context, id string) error
	ClearChatHistories(ctx context.Context) error
}

// Service manages saved conversations.
type Service struct {
	store Store
	now   func() time.Time
}

func NewService(store Store) *Service {
	return &Service{store: store, now: time.Now}
}

// List returns summaries, most recently updated first.
func (s *Service) List(ctx context.Context) ([]storage.ChatHistorySummary, error) {
	list, err := s.store.ListChatHistories(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing chat histories: %w", err)
	}
	return list, nil
}

// Get returns the history with its messages, or storage.ErrNotFound.
func (s *Service) Get(ctx context.Context, id string) (storage.ChatHistory, error) {
	return s.store.GetChatHistory(ctx, id)
}

// Save stores messages under id, generating a new id when id is empty.
// An existing history keeps its created_at.
func (s *Service) Save(ctx context.Context, id string, messages []storage.Message) (storage.ChatHistory, error) {
	if id == "" {
		id = uuid.NewString()
	}
	if messages == nil {
		messages = []storage.Message{}
	}

	now := s.now().UTC()
	h := storage.ChatHistory{
		ID:        id,
		Title:     Title(messages),
		Messages:  messages,
		CreatedAt: now,
		UpdatedAt: now,
	}

	existing, err := s.store.GetChatHistory(ctx, id)
	switch {
	case err == nil:
		h.CreatedAt = existing.CreatedAt
	case !errors.Is(err, storage.ErrNotFound):
		return storage.ChatHistory{}, fmt.Errorf("loading chat history %s: %w", id, err)
	}

	if err := s.store.SaveChatHistory(ctx, h); err != nil {
		return storage.ChatHistory{}, fmt.Errorf("saving chat history %s: %w", id, err)
	}
	return h, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	return s.store.DeleteChatHistory(ctx, id)
}

func (s *Service) Clear(ctx context.Context) error {
	if err := s.store.ClearChatHistories(ctx); err != nil {
		return fmt.Errorf("clearing chat histories: %w", err)
	}
	return nil
}

// Title is the first user message cut to 50 characters, with "..."
// appended when cut, or "New Chat" when there is no user message.
func Title(messages []storage.Message) string {
	for _, m := range messages {
		if m.Role != "user" {
			continue
		}
		r := []rune(m.Content)
		if len(r) > titleMaxRunes {
			return string(r[:titleMaxRunes]) + "..."
		}
		return m.Content
	}
	return defaultTitle
}
