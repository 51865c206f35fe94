//go:build integration

package storage

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
)

func openTestMongo(t *testing.T) *MongoStore {
	t.Helper()
	uri := os.Getenv("OUTING_TEST_MONGO_URI")
	if uri == "" {
		t.Skip("OUTING_TEST_MONGO_URI not set, skipping integration test")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	db := "outing_test_" + uuid.NewString()[:8]
	m, err := OpenMongo(ctx, uri, db)
	if err != nil {
		t.Skipf("MongoDB is not reachable: %v", err)
	}
	t.Cleanup(func() {
		m.client.Database(db).Drop(context.Background())
		m.Close()
	})
	return m
}

func TestMongoPreferences(t *testing.T) {
	m := openTestMongo(t)
	ctx := context.Background()

	if _, err := m.GetPreferences(ctx, "alice"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}

	loc := "Queens"
	if err := m.SavePreferences(ctx, Preferences{UserID: "alice", Location: &loc, Interests: []string{"food"}}); err != nil {
		t.Fatalf("SavePreferences: %v", err)
	}
	got, err := m.GetPreferences(ctx, "alice")
	if err != nil {
		t.Fatalf("GetPreferences: %v", err)
	}
	if got.Location == nil || *got.Location != "Queens" || len(got.Interests) != 1 {
		t.Errorf("got %+v", got)
	}

	ids, err := m.ListPreferenceUserIDs(ctx)
	if err != nil || len(ids) != 1 || ids[0] != "alice" {
		t.Errorf("ids = %v, err = %v", ids, err)
	}
}

func TestMongoChatHistory(t *testing.T) {
	m := openTestMongo(t)
	ctx := context.Background()
	created := time.Now().UTC().Truncate(time.Millisecond)

	h := ChatHistory{ID: "h1", Title: "t", Messages: sampleMessages(), CreatedAt: created, UpdatedAt: created}
	if err := m.SaveChatHistory(ctx, h); err != nil {
		t.Fatalf("SaveChatHistory: %v", err)
	}
	h.UpdatedAt = created.Add(time.Minute)
	h.CreatedAt = h.UpdatedAt
	if err := m.SaveChatHistory(ctx, h); err != nil {
		t.Fatalf("SaveChatHistory (update): %v", err)
	}

	got, err := m.GetChatHistory(ctx, "h1")
	if err != nil {
		t.Fatalf("GetChatHistory: %v", err)
	}
	if !got.CreatedAt.Equal(created) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, created)
	}
	if len(got.Messages) != 4 || got.Messages[2].ToolCallID != "c1" {
		t.Errorf("messages = %+v", got.Messages)
	}

	list, err := m.ListChatHistories(ctx)
	if err != nil || len(list) != 1 || list[0].MessageCount != 4 {
		t.Errorf("list = %+v, err = %v", list, err)
	}

	if err := m.DeleteChatHistory(ctx, "h1"); err != nil {
		t.Fatalf("DeleteChatHistory: %v", err)
	}
	if err := m.DeleteChatHistory(ctx, "h1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete = %v, want ErrNotFound", err)
	}
}
