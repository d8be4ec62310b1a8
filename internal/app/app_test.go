package app

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"pcbrecon/internal/ai/aitest"
	"pcbrecon/internal/model"
	"pcbrecon/internal/platform/database"
	"pcbrecon/internal/repository"
)

var testModels = Models{Analysis: "vision", Chat: "chat", Text: "text"}

type testEnv struct {
	db       *gorm.DB
	projects *repository.ProjectRepository
	messages *repository.ChatMessageRepository
	llm      *aitest.FakeClient
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := database.New(context.Background(), "sqlite", "file::memory:")
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.Project{}, &model.ChatMessage{}))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return &testEnv{
		db:       db,
		projects: repository.NewProjectRepository(db),
		messages: repository.NewChatMessageRepository(db),
		llm:      aitest.NewFakeClient(),
	}
}

func newTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
		mr.Close()
	})
	return client, mr
}

func pngBytes(t *testing.T, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func (e *testEnv) seedProject(t *testing.T, analysis string) *model.Project {
	t.Helper()
	p := &model.Project{
		Name:      "gateway",
		ImagePath: "gateway.png",
		Image:     pngBytes(t, color.RGBA{G: 128, A: 255}),
		ImageMIME: "image/png",
		Analysis:  analysis,
	}
	require.NoError(t, e.projects.Create(p))
	return p
}
