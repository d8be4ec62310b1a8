package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFile_Defaults(t *testing.T) {
	cfg, err := LoadFile(filepath.Join(t.TempDir(), "missing.toml"))
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "pcbrecon.db", cfg.DSN())
	assert.Equal(t, "gemini", cfg.LLM.Provider)
	assert.Equal(t, "0.0.0.0:8000", cfg.HTTPAddr())
	assert.Equal(t, 10, cfg.Scan.MaxClusters)
	assert.Contains(t, cfg.HTTP.CORSOrigins, "http://localhost:3000")
}

func TestLoadFile_TOMLThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[app]
port = 9090

[database]
driver = "mysql"
host = "db.internal"
port = 3307
user = "pcb"
password = "secret"
db = "boards"
params = "parseTime=true"

[llm]
provider = "openai"
chat_model = "gpt-4o"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv("LLM_CHAT_MODEL", "gpt-4o-mini")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example")

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.App.Port)
	assert.Equal(t, "pcb:secret@tcp(db.internal:3307)/boards?parseTime=true", cfg.DSN())
	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, "gpt-4o-mini", cfg.LLM.ChatModel)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.HTTP.CORSOrigins)
}

func TestLoadFile_DatabaseURL(t *testing.T) {
	tests := []struct {
		name   string
		url    string
		driver string
		dsn    string
	}{
		{"legacy postgres scheme", "postgres://u:p@h:5432/db", "postgres", "postgresql://u:p@h:5432/db"},
		{"postgresql scheme", "postgresql://u:p@h/db", "postgres", "postgresql://u:p@h/db"},
		{"relative sqlite", "sqlite:///./pcbrecon.db", "sqlite", "./pcbrecon.db"},
		{"mysql scheme", "mysql://u:p@tcp(h:3306)/db", "mysql", "u:p@tcp(h:3306)/db"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("DATABASE_URL", tt.url)
			cfg, err := LoadFile("")
			require.NoError(t, err)
			assert.Equal(t, tt.driver, cfg.Database.Driver)
			assert.Equal(t, tt.dsn, cfg.DSN())
		})
	}
}

func TestLoadFile_RejectsUnknownProvider(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "carrier-pigeon")
	_, err := LoadFile("")
	assert.ErrorContains(t, err, "unsupported llm provider")
}

func TestGetEnvAsInt_FallsBackOnGarbage(t *testing.T) {
	t.Setenv("SCAN_MAX_CLUSTERS", "many")
	assert.Equal(t, 7, getEnvAsInt("SCAN_MAX_CLUSTERS", 7))
}

func TestLoadFile_BaseURLFollowsProvider(t *testing.T) {
	tests := []struct {
		name     string
		provider string
		baseURL  string
		want     string
	}{
		{"gemini default", "gemini", "", "https://generativelanguage.googleapis.com/"},
		{"openai default", "openai", "", "https://api.openai.com/v1"},
		{"provider is case insensitive", "OpenAI", "", "https://api.openai.com/v1"},
		{"explicit url kept", "openai", "http://localhost:11434/v1", "http://localhost:11434/v1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("LLM_PROVIDER", tt.provider)
			t.Setenv("LLM_BASE_URL", tt.baseURL)
			cfg, err := LoadFile("")
			require.NoError(t, err)
			assert.Equal(t, tt.want, cfg.LLM.BaseURL)
		})
	}
}

func TestLoadFile_ShippedConfigWithOpenAIProvider(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "openai")
	cfg, err := LoadFile(filepath.Join("..", "..", "configs", "config.toml"))
	require.NoError(t, err)
	assert.Equal(t, "https://api.openai.com/v1", cfg.LLM.BaseURL)
}
