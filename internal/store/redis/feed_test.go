package redis

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/SAP-F-2025/session-engine/internal/models"
)

func testFeed(t *testing.T) (*Feed, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewFeed(client, logger), mr
}

func sampleEntries() []models.LeaderboardEntry {
	return []models.LeaderboardEntry{
		{Rank: 1, OwnerID: "alice", Score: 3, Percentage: 75, TimeTakenSeconds: 120, SubmittedAt: time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)},
		{Rank: 2, OwnerID: "bob", Score: 2, Percentage: 50, TimeTakenSeconds: 90, SubmittedAt: time.Date(2026, 8, 31, 12, 1, 0, 0, time.UTC)},
	}
}

func TestFeed_SubscribeReceivesUpdates(t *testing.T) {
	feed, _ := testFeed(t)
	ctx := context.Background()

	var mu sync.Mutex
	var got [][]models.LeaderboardEntry
	cancel, err := feed.Subscribe(ctx, "def-1", func(entries []models.LeaderboardEntry) {
		mu.Lock()
		got = append(got, entries)
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer cancel()

	if err := feed.Publish(ctx, "def-1", sampleEntries()); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		mu.Lock()
		n := len(got)
		mu.Unlock()
		if n >= 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("Update never arrived")
		}
		time.Sleep(5 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(got[0]) != 2 || got[0][0].OwnerID != "alice" || got[0][0].Rank != 1 {
		t.Errorf("Unexpected entries: %+v", got[0])
	}
}

func TestFeed_LateSubscriberGetsSnapshot(t *testing.T) {
	feed, _ := testFeed(t)
	ctx := context.Background()

	if err := feed.Publish(ctx, "def-1", sampleEntries()); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	// Snapshot delivery is synchronous inside Subscribe.
	var mu sync.Mutex
	var got []models.LeaderboardEntry
	cancel, err := feed.Subscribe(ctx, "def-1", func(entries []models.LeaderboardEntry) {
		mu.Lock()
		if got == nil {
			got = entries
		}
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer cancel()

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 2 {
		t.Fatalf("Expected snapshot with 2 entries, got %+v", got)
	}
	if got[1].OwnerID != "bob" || got[1].Percentage != 50 {
		t.Errorf("Unexpected snapshot entry: %+v", got[1])
	}
}

func TestFeed_ChannelsAreIsolatedPerDefinition(t *testing.T) {
	feed, _ := testFeed(t)
	ctx := context.Background()

	var count sync.Map
	cancel, err := feed.Subscribe(ctx, "def-other", func([]models.LeaderboardEntry) {
		count.Store("seen", true)
	})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer cancel()

	if err := feed.Publish(ctx, "def-1", sampleEntries()); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	time.Sleep(50 * time.Millisecond)
	if _, ok := count.Load("seen"); ok {
		t.Error("Subscriber of another definition must not receive the update")
	}
}

func TestFeed_CancelIsIdempotent(t *testing.T) {
	feed, _ := testFeed(t)

	cancel, err := feed.Subscribe(context.Background(), "def-1", func([]models.LeaderboardEntry) {})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	cancel()
	cancel()
}
