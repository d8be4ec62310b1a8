package bootstrap

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pcbrecon/internal/config"
	"pcbrecon/internal/model"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("DB_PATH", filepath.Join(t.TempDir(), "test.db"))
	t.Setenv("DATABASE_URL", "")
	t.Setenv("REDIS_ADDR", "")
	t.Setenv("RABBITMQ_URL", "")
	t.Setenv("LLM_PROVIDER", "gemini")
	cfg, err := config.LoadFile("")
	require.NoError(t, err)
	return cfg
}

func TestNewWithConfig_Minimal(t *testing.T) {
	app, err := NewWithConfig(context.Background(), testConfig(t))
	require.NoError(t, err)
	defer app.Close()

	assert.NotNil(t, app.DB)
	assert.NotNil(t, app.LLM)
	assert.Nil(t, app.Redis)
	assert.Nil(t, app.HistoryCache)
	assert.Nil(t, app.Publisher)
	assert.Nil(t, app.MessageWorker)
	assert.True(t, app.DB.Migrator().HasTable(&model.Project{}))
	assert.True(t, app.DB.Migrator().HasTable(&model.ChatMessage{}))
}

func TestNewWithConfig_Redis(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	cfg := testConfig(t)
	cfg.Redis.Addr = mr.Addr()
	app, err := NewWithConfig(context.Background(), cfg)
	require.NoError(t, err)
	defer app.Close()

	assert.NotNil(t, app.Redis)
	assert.NotNil(t, app.HistoryCache)
	assert.NotNil(t, app.AnalysisCache)
}

func TestNewWithConfig_UnknownProvider(t *testing.T) {
	cfg := testConfig(t)
	cfg.LLM.Provider = "mystery"
	_, err := NewWithConfig(context.Background(), cfg)
	assert.Error(t, err)
}
