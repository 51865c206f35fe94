//go:build integration

package activities

import (
	"context"
	"os"
	"testing"
	"time"
)

func TestRedisCacheRoundTrip(t *testing.T) {
	url := os.Getenv("OUTING_TEST_REDIS_URL")
	if url == "" {
		t.Skip("OUTING_TEST_REDIS_URL not set, skipping integration test")
	}
	ctx := context.Background()

	c, err := NewRedisCache(ctx, url)
	if err != nil {
		t.Skipf("Redis is not reachable: %v", err)
	}
	c.key = "outing:test:" + time.Now().Format("150405.000000")
	t.Cleanup(func() {
		c.rdb.Del(context.Background(), c.key)
		c.Close()
	})

	snap, err := c.Load(ctx)
	if err != nil {
		t.Fatalf("Load (empty): %v", err)
	}
	if snap.LastUpdated != nil || len(snap.Activities) != 0 {
		t.Errorf("empty snapshot = %+v", snap)
	}

	at := time.Date(2025, 12, 23, 10, 0, 0, 0, time.UTC)
	if err := c.Save(ctx, fixture, at); err != nil {
		t.Fatalf("Save: %v", err)
	}
	snap, err = c.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if snap.LastUpdated == nil || !snap.LastUpdated.Equal(at) || len(snap.Activities) != len(fixture) {
		t.Errorf("snapshot = %+v", snap)
	}
}
