// Package redis carries leaderboard fan-out over Redis pub/sub so every
// engine instance sees the whole updated list on each new submission, plus a
// small cache for the latest snapshot so late subscribers get an immediate
// first update.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/SAP-F-2025/session-engine/internal/models"
)

const snapshotTTL = 24 * time.Hour

type Feed struct {
	client *redis.Client
	logger *slog.Logger
}

func NewFeed(client *redis.Client, logger *slog.Logger) *Feed {
	return &Feed{client: client, logger: logger}
}

func channelKey(definitionID string) string {
	return "session:leaderboard:" + definitionID
}

func snapshotKey(definitionID string) string {
	return "session:leaderboard:snapshot:" + definitionID
}

// Publish pushes the full entry list to all subscribers and caches it as the
// latest snapshot.
func (f *Feed) Publish(ctx context.Context, definitionID string, entries []models.LeaderboardEntry) error {
	payload, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("failed to marshal leaderboard: %w", err)
	}

	if err := f.client.Set(ctx, snapshotKey(definitionID), payload, snapshotTTL).Err(); err != nil {
		f.logger.Warn("Failed to cache leaderboard snapshot",
			"definition_id", definitionID,
			"error", err)
	}

	if err := f.client.Publish(ctx, channelKey(definitionID), payload).Err(); err != nil {
		return fmt.Errorf("failed to publish leaderboard: %w", err)
	}
	return nil
}

// Subscribe delivers the cached snapshot (if any) and then every published
// update until the returned cancel func is called. Cancel is idempotent.
func (f *Feed) Subscribe(ctx context.Context, definitionID string, onUpdate func([]models.LeaderboardEntry)) (func(), error) {
	pubsub := f.client.Subscribe(ctx, channelKey(definitionID))

	// Force the subscription before returning so no update is missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to leaderboard: %w", err)
	}

	if raw, err := f.client.Get(ctx, snapshotKey(definitionID)).Bytes(); err == nil {
		if entries, err := decodeEntries(raw); err == nil {
			onUpdate(entries)
		}
	}

	go func() {
		for msg := range pubsub.Channel() {
			entries, err := decodeEntries([]byte(msg.Payload))
			if err != nil {
				f.logger.Error("Failed to decode leaderboard update",
					"definition_id", definitionID,
					"error", err)
				continue
			}
			onUpdate(entries)
		}
	}()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			if err := pubsub.Close(); err != nil {
				f.logger.Warn("Failed to close leaderboard subscription",
					"definition_id", definitionID,
					"error", err)
			}
		})
	}
	return cancel, nil
}

func decodeEntries(raw []byte) ([]models.LeaderboardEntry, error) {
	var entries []models.LeaderboardEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}
