package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/spec-kit/portal-service/internal/domain"
)

// FeedEntry is one row of a recipient's in-app notification feed.
type FeedEntry struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Subject   string    `json:"subject"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// InAppStore is the read model the portal UI queries. Backed by a Redis
// list per recipient, newest first, capped at maxEntries.
type InAppStore struct {
	client     *redis.Client
	maxEntries int
}

// NewInAppStore builds the store.
func NewInAppStore(client *redis.Client, maxEntries int) *InAppStore {
	if maxEntries <= 0 {
		maxEntries = 100
	}
	return &InAppStore{client: client, maxEntries: maxEntries}
}

func feedKey(recipientID string) string {
	return fmt.Sprintf("notifications:%s", recipientID)
}

// Push appends a delivered record to the recipient's feed.
func (s *InAppStore) Push(ctx context.Context, record *domain.NotificationRecord) error {
	entry := FeedEntry{
		EventID:   record.EventID,
		EventType: record.EventType,
		Subject:   record.Subject,
		Body:      record.Body,
		CreatedAt: record.CreatedAt,
	}
	payload, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	key := feedKey(record.RecipientID)
	pipe := s.client.TxPipeline()
	pipe.LPush(ctx, key, payload)
	pipe.LTrim(ctx, key, 0, int64(s.maxEntries-1))
	_, err = pipe.Exec(ctx)
	return err
}

// Feed returns the recipient's notifications, newest first.
func (s *InAppStore) Feed(ctx context.Context, recipientID string, limit int) ([]FeedEntry, error) {
	if limit <= 0 || limit > s.maxEntries {
		limit = s.maxEntries
	}
	raw, err := s.client.LRange(ctx, feedKey(recipientID), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, err
	}

	entries := make([]FeedEntry, 0, len(raw))
	for _, item := range raw {
		var entry FeedEntry
		if err := json.Unmarshal([]byte(item), &entry); err != nil {
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
