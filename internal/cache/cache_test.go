package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pcbrecon/internal/model"
)

func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	require.NoError(t, client.Ping(context.Background()).Err())

	t.Cleanup(func() {
		_ = client.Close()
		mr.Close()
	})
	return client, mr
}

func TestHistoryCache_RoundTripAndExpiry(t *testing.T) {
	client, mr := setupTestRedis(t)
	cache := NewHistoryCache(client, 10, time.Minute, 5*time.Second)
	ctx := context.Background()

	_, hit, err := cache.GetHistory(ctx, 7, 0)
	require.NoError(t, err)
	assert.False(t, hit)

	history := []model.ChatMessage{
		{ID: 1, ProjectID: 7, Sender: model.SenderBot, Message: "Welcome"},
		{ID: 2, ProjectID: 7, Sender: model.SenderUser, Message: "Where is the UART?"},
	}
	require.NoError(t, cache.SetHistory(ctx, 7, history))
	assert.True(t, mr.Exists("pcb:chat:history:7"))

	got, hit, err := cache.GetHistory(ctx, 7, 0)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, "Where is the UART?", got[1].Message)

	mr.FastForward(2 * time.Minute)
	_, hit, err = cache.GetHistory(ctx, 7, 0)
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestHistoryCache_KeepsRecentWindow(t *testing.T) {
	client, _ := setupTestRedis(t)
	cache := NewHistoryCache(client, 3, time.Minute, time.Second)
	ctx := context.Background()

	var history []model.ChatMessage
	for i := 1; i <= 5; i++ {
		history = append(history, model.ChatMessage{ID: uint(i), ProjectID: 4, Message: fmt.Sprintf("m%d", i)})
	}
	require.NoError(t, cache.SetHistory(ctx, 4, history))

	got, hit, err := cache.GetHistory(ctx, 4, 2)
	require.NoError(t, err)
	require.True(t, hit)
	assert.Equal(t, []string{"m4", "m5"}, []string{got[0].Message, got[1].Message})

	got, hit, err = cache.GetHistory(ctx, 4, 3)
	require.NoError(t, err)
	require.True(t, hit)
	assert.Equal(t, "m3", got[0].Message)

	// beyond the window, and the full history, have to come from the database
	_, hit, err = cache.GetHistory(ctx, 4, 4)
	require.NoError(t, err)
	assert.False(t, hit)
	_, hit, err = cache.GetHistory(ctx, 4, 0)
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestHistoryCache_ShortHistoryServesAnyLimit(t *testing.T) {
	client, _ := setupTestRedis(t)
	cache := NewHistoryCache(client, 3, time.Minute, time.Second)
	ctx := context.Background()

	require.NoError(t, cache.SetHistory(ctx, 5, []model.ChatMessage{{Message: "only"}}))
	got, hit, err := cache.GetHistory(ctx, 5, 50)
	require.NoError(t, err)
	require.True(t, hit)
	require.Len(t, got, 1)

	got, hit, err = cache.GetHistory(ctx, 5, 0)
	require.NoError(t, err)
	require.True(t, hit)
	assert.Equal(t, "only", got[0].Message)
}

func TestHistoryCache_DirtyMarker(t *testing.T) {
	client, mr := setupTestRedis(t)
	cache := NewHistoryCache(client, 0, 0, 0)
	ctx := context.Background()

	dirty, err := cache.IsDirty(ctx, 3)
	require.NoError(t, err)
	assert.False(t, dirty)

	require.NoError(t, cache.MarkDirty(ctx, 3))
	dirty, err = cache.IsDirty(ctx, 3)
	require.NoError(t, err)
	assert.True(t, dirty)

	mr.FastForward(6 * time.Second)
	dirty, err = cache.IsDirty(ctx, 3)
	require.NoError(t, err)
	assert.False(t, dirty)
}

func TestHistoryCache_Delete(t *testing.T) {
	client, _ := setupTestRedis(t)
	cache := NewHistoryCache(client, 10, time.Minute, time.Second)
	ctx := context.Background()

	require.NoError(t, cache.SetHistory(ctx, 1, []model.ChatMessage{{Message: "x"}}))
	require.NoError(t, cache.DeleteHistory(ctx, 1))
	_, hit, err := cache.GetHistory(ctx, 1, 0)
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestHistoryCache_CorruptEntry(t *testing.T) {
	client, mr := setupTestRedis(t)
	cache := NewHistoryCache(client, 10, time.Minute, time.Second)
	require.NoError(t, mr.Set("pcb:chat:history:9", "{not json"))

	_, _, err := cache.GetHistory(context.Background(), 9, 0)
	assert.ErrorContains(t, err, "unmarshal cached history failed")
}

func TestAnalysisCache(t *testing.T) {
	client, mr := setupTestRedis(t)
	cache := NewAnalysisCache(client, time.Hour)
	ctx := context.Background()

	_, hit, err := cache.GetAnalysis(ctx, "abc")
	require.NoError(t, err)
	assert.False(t, hit)

	require.NoError(t, cache.SetAnalysis(ctx, "abc", "**Board Overview**"))
	got, hit, err := cache.GetAnalysis(ctx, "abc")
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, "**Board Overview**", got)
	assert.Equal(t, time.Hour, mr.TTL("pcb:analysis:abc"))
}
