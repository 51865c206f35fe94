package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	preferencesCollection = "user_preferences"
	historiesCollection   = "chat_histories"
	mongoCloseTimeout     = 5 * time.Second
)

// MongoStore keeps preferences and chat histories in MongoDB. It offers
// the same preference and history methods as Store.
type MongoStore struct {
	client    *mongo.Client
	prefs     *mongo.Collection
	histories *mongo.Collection
}

func OpenMongo(ctx context.Context, uri, database string) (*MongoStore, error) {
	if uri == "" {
		return nil, errors.New("mongo uri is required")
	}
	if database == "" {
		return nil, errors.New("mongo database name is required")
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connecting to mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("pinging mongo: %w", err)
	}
	db := client.Database(database)
	return &MongoStore{
		client:    client,
		prefs:     db.Collection(preferencesCollection),
		histories: db.Collection(historiesCollection),
	}, nil
}

func (m *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), mongoCloseTimeout)
	defer cancel()
	return m.client.Disconnect(ctx)
}

func (m *MongoStore) Ping(ctx context.Context) error {
	return m.client.Ping(ctx, nil)
}

// --- Preferences ---

func (m *MongoStore) GetPreferences(ctx context.Context, userID string) (Preferences, error) {
	var p Preferences
	err := m.prefs.FindOne(ctx, bson.M{"user_id": userID}).Decode(&p)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return Preferences{}, ErrNotFound
	}
	if err != nil {
		return Preferences{}, err
	}
	if p.Interests == nil {
		p.Interests = []string{}
	}
	return p, nil
}

func (m *MongoStore) SavePreferences(ctx context.Context, p Preferences) error {
	if p.Interests == nil {
		p.Interests = []string{}
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = time.Now().UTC()
	}
	_, err := m.prefs.ReplaceOne(ctx, bson.M{"user_id": p.UserID}, p, options.Replace().SetUpsert(true))
	return err
}

func (m *MongoStore) ListPreferenceUserIDs(ctx context.Context) ([]string, error) {
	opts := options.Find().SetSort(bson.D{{Key: "user_id", Value: 1}}).SetProjection(bson.M{"user_id": 1})
	cursor, err := m.prefs.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	ids := []string{}
	for cursor.Next(ctx) {
		var doc struct {
			UserID string `bson:"user_id"`
		}
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		ids = append(ids, doc.UserID)
	}
	return ids, cursor.Err()
}

// --- Chat histories ---

func (m *MongoStore) GetChatHistory(ctx context.Context, id string) (ChatHistory, error) {
	var h ChatHistory
	err := m.histories.FindOne(ctx, bson.M{"_id": id}).Decode(&h)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return ChatHistory{}, ErrNotFound
	}
	if err != nil {
		return ChatHistory{}, err
	}
	if h.Messages == nil {
		h.Messages = []Message{}
	}
	return h, nil
}

// SaveChatHistory upserts h. On update the stored created_at is kept.
func (m *MongoStore) SaveChatHistory(ctx context.Context, h ChatHistory) error {
	update := bson.M{
		"$set": bson.M{
			"title":      h.Title,
			"messages":   h.Messages,
			"updated_at": h.UpdatedAt,
		},
		"$setOnInsert": bson.M{"created_at": h.CreatedAt},
	}
	_, err := m.histories.UpdateByID(ctx, h.ID, update, options.Update().SetUpsert(true))
	return err
}

func (m *MongoStore) ListChatHistories(ctx context.Context) ([]ChatHistorySummary, error) {
	opts := options.Find().SetSort(bson.D{{Key: "updated_at", Value: -1}})
	cursor, err := m.histories.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	out := []ChatHistorySummary{}
	for cursor.Next(ctx) {
		var h ChatHistory
		if err := cursor.Decode(&h); err != nil {
			return nil, err
		}
		out = append(out, ChatHistorySummary{
			ID:           h.ID,
			Title:        h.Title,
			CreatedAt:    h.CreatedAt,
			UpdatedAt:    h.UpdatedAt,
			MessageCount: len(h.Messages),
		})
	}
	return out, cursor.Err()
}

func (m *MongoStore) DeleteChatHistory(ctx context.Context, id string) error {
	res, err := m.histories.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (m *MongoStore) ClearChatHistories(ctx context.Context) error {
	_, err := m.histories.DeleteMany(ctx, bson.M{})
	return err
}
