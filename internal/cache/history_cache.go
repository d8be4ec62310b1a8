package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	redisv9 "github.com/redis/go-redis/v9"

	"pcbrecon/internal/model"
)

// HistoryCache keeps the most recent window of a project's chat messages,
// which is what the chat model is sent as context. Requests that reach
// further back than the window miss and go to the database.
//
// A short-lived dirty marker is set while writes are in flight so readers
// do not repopulate the entry with a stale tail.
type HistoryCache struct {
	client         *redisv9.Client
	window         int
	historyTTL     time.Duration
	dirtyMarkerTTL time.Duration
}

type historyEntry struct {
	// Total is the number of messages the project had when the entry was
	// written; Tail holds at most window of them, oldest first.
	Total int                 `json:"total"`
	Tail  []model.ChatMessage `json:"tail"`
}

func NewHistoryCache(client *redisv9.Client, window int, historyTTL, dirtyMarkerTTL time.Duration) *HistoryCache {
	if window <= 0 {
		window = 100
	}
	if historyTTL <= 0 {
		historyTTL = 60 * time.Second
	}
	if dirtyMarkerTTL <= 0 {
		dirtyMarkerTTL = 5 * time.Second
	}
	return &HistoryCache{
		client:         client,
		window:         window,
		historyTTL:     historyTTL,
		dirtyMarkerTTL: dirtyMarkerTTL,
	}
}

// GetHistory returns the last limit messages (all of them for limit <= 0).
// It reports a miss when nothing is cached or when the cached window is
// shorter than what was asked for.
func (c *HistoryCache) GetHistory(ctx context.Context, projectID uint, limit int) ([]model.ChatMessage, bool, error) {
	raw, err := c.client.Get(ctx, c.historyKey(projectID)).Bytes()
	if errors.Is(err, redisv9.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get history failed: %w", err)
	}

	var entry historyEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, false, fmt.Errorf("unmarshal cached history failed: %w", err)
	}

	want := entry.Total
	if limit > 0 && limit < want {
		want = limit
	}
	if want > len(entry.Tail) {
		return nil, false, nil
	}
	return entry.Tail[len(entry.Tail)-want:], true, nil
}

// SetHistory stores the tail of messages, which must be the project's
// complete history in chronological order.
func (c *HistoryCache) SetHistory(ctx context.Context, projectID uint, messages []model.ChatMessage) error {
	entry := historyEntry{Total: len(messages), Tail: messages}
	if len(messages) > c.window {
		entry.Tail = messages[len(messages)-c.window:]
	}
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal history cache failed: %w", err)
	}
	if err := c.client.Set(ctx, c.historyKey(projectID), payload, c.historyTTL).Err(); err != nil {
		return fmt.Errorf("redis set history failed: %w", err)
	}
	return nil
}

func (c *HistoryCache) DeleteHistory(ctx context.Context, projectID uint) error {
	if err := c.client.Del(ctx, c.historyKey(projectID)).Err(); err != nil {
		return fmt.Errorf("redis delete history failed: %w", err)
	}
	return nil
}

func (c *HistoryCache) MarkDirty(ctx context.Context, projectID uint) error {
	if err := c.client.Set(ctx, c.dirtyKey(projectID), "1", c.dirtyMarkerTTL).Err(); err != nil {
		return fmt.Errorf("redis set dirty marker failed: %w", err)
	}
	return nil
}

func (c *HistoryCache) IsDirty(ctx context.Context, projectID uint) (bool, error) {
	exists, err := c.client.Exists(ctx, c.dirtyKey(projectID)).Result()
	if err != nil {
		return false, fmt.Errorf("redis check dirty marker failed: %w", err)
	}
	return exists > 0, nil
}

func (c *HistoryCache) historyKey(projectID uint) string {
	return fmt.Sprintf("pcb:chat:history:%d", projectID)
}

func (c *HistoryCache) dirtyKey(projectID uint) string {
	return fmt.Sprintf("pcb:chat:history:dirty:%d", projectID)
}
