package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

type Config struct {
	App      AppConfig      `toml:"app"`
	HTTP     HTTPConfig     `toml:"http"`
	Database DatabaseConfig `toml:"database"`
	Redis    RedisConfig    `toml:"redis"`
	RabbitMQ RabbitMQConfig `toml:"rabbitmq"`
	LLM      LLMConfig      `toml:"llm"`
	Scan     ScanConfig     `toml:"scan"`
}

type AppConfig struct {
	Name    string `toml:"name"`
	Env     string `toml:"env"`
	Host    string `toml:"host"`
	Port    int    `toml:"port"`
	GinMode string `toml:"gin_mode"`
}

type HTTPConfig struct {
	CORSOrigins   []string `toml:"cors_origins"`
	MaxImageBytes int      `toml:"max_image_bytes"`
}

// DatabaseConfig selects a gorm dialect. URL wins over the per-field
// settings when set.
type DatabaseConfig struct {
	Driver   string `toml:"driver"`
	URL      string `toml:"url"`
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	DB       string `toml:"db"`
	Params   string `toml:"params"`
	Path     string `toml:"path"`
}

// RedisConfig is optional; an empty Addr disables caching.
type RedisConfig struct {
	Addr                   string `toml:"addr"`
	Password               string `toml:"password"`
	DB                     int    `toml:"db"`
	HistoryTTLSeconds      int    `toml:"history_ttl_seconds"`
	HistoryDirtyTTLSeconds int    `toml:"history_dirty_ttl_seconds"`
	AnalysisTTLSeconds     int    `toml:"analysis_ttl_seconds"`
}

// RabbitMQConfig is optional; an empty URL persists chat messages inline.
type RabbitMQConfig struct {
	URL                 string `toml:"url"`
	MessagePersistQueue string `toml:"message_persist_queue"`
}

type LLMConfig struct {
	Provider          string `toml:"provider"`
	BaseURL           string `toml:"base_url"`
	APIKey            string `toml:"api_key"`
	AnalysisModel     string `toml:"analysis_model"`
	ChatModel         string `toml:"chat_model"`
	TextModel         string `toml:"text_model"`
	MaxContextMessage int    `toml:"max_context_message"`
	TimeoutSeconds    int    `toml:"timeout_seconds"`
}

type ScanConfig struct {
	OutputDir         string `toml:"output_dir"`
	LogFile           string `toml:"log_file"`
	MaxClusters       int    `toml:"max_clusters"`
	SampleSize        int    `toml:"sample_size"`
	ONNXModelPath     string `toml:"onnx_model_path"`
	ONNXLabelsPath    string `toml:"onnx_labels_path"`
	ONNXSharedLibPath string `toml:"onnx_shared_lib_path"`
	ONNXTopK          int    `toml:"onnx_top_k"`
}

const (
	defaultGeminiBaseURL = "https://generativelanguage.googleapis.com/"
	defaultOpenAIBaseURL = "https://api.openai.com/v1"
)

func Load() (*Config, error) {
	return LoadFile(getEnv("CONFIG_FILE", "configs/config.toml"))
}

// LoadFile reads .env (if any), the TOML file at path (if it exists) and
// then applies environment overrides.
func LoadFile(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := defaultConfig()
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if _, err := toml.DecodeFile(path, cfg); err != nil {
				return nil, fmt.Errorf("decode config file failed: %w", err)
			}
		}
	}

	overrideByEnv(cfg)
	normalizeDatabase(&cfg.Database)
	resolveLLMBaseURL(&cfg.LLM)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite", "mysql", "postgres":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	switch c.LLM.Provider {
	case "gemini", "openai":
	default:
		return fmt.Errorf("unsupported llm provider %q", c.LLM.Provider)
	}
	if c.App.Port <= 0 {
		return fmt.Errorf("app port must be positive")
	}
	return nil
}

func (c *Config) HTTPAddr() string {
	return fmt.Sprintf("%s:%d", c.App.Host, c.App.Port)
}

// DSN returns the driver-specific connection string.
func (c *Config) DSN() string {
	db := c.Database
	if db.URL != "" {
		return db.URL
	}
	switch db.Driver {
	case "mysql":
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?%s",
			db.User,
			db.Password,
			db.Host,
			db.Port,
			db.DB,
			db.Params,
		)
	case "postgres":
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s %s",
			db.Host,
			db.Port,
			db.User,
			db.Password,
			db.DB,
			db.Params,
		)
	default:
		return db.Path
	}
}

func defaultConfig() *Config {
	return &Config{
		App: AppConfig{
			Name:    "pcbrecon",
			Env:     "dev",
			Host:    "0.0.0.0",
			Port:    8000,
			GinMode: "debug",
		},
		HTTP: HTTPConfig{
			CORSOrigins:   []string{"http://localhost:3000", "http://127.0.0.1:3000"},
			MaxImageBytes: 10 << 20,
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			Path:   "pcbrecon.db",
			Host:   "127.0.0.1",
			Port:   3306,
			User:   "root",
			DB:     "pcbrecon",
			Params: "parseTime=true&loc=UTC&charset=utf8mb4",
		},
		Redis: RedisConfig{
			HistoryTTLSeconds:      60,
			HistoryDirtyTTLSeconds: 5,
			AnalysisTTLSeconds:     24 * 60 * 60,
		},
		RabbitMQ: RabbitMQConfig{
			MessagePersistQueue: "pcb.chat.message.persist",
		},
		LLM: LLMConfig{
			Provider:          "gemini",
			AnalysisModel:     "gemini-2.0-flash",
			ChatModel:         "gemini-2.5-flash",
			TextModel:         "gemini-2.0-flash",
			MaxContextMessage: 100,
			TimeoutSeconds:    90,
		},
		Scan: ScanConfig{
			OutputDir:   "out",
			LogFile:     "analysis.log",
			MaxClusters: 10,
			SampleSize:  4000,
			ONNXTopK:    5,
		},
	}
}

func overrideByEnv(cfg *Config) {
	cfg.App.Name = getEnv("APP_NAME", cfg.App.Name)
	cfg.App.Env = getEnv("APP_ENV", cfg.App.Env)
	cfg.App.Host = getEnv("APP_HOST", cfg.App.Host)
	cfg.App.Port = getEnvAsInt("APP_PORT", cfg.App.Port)
	cfg.App.GinMode = getEnv("GIN_MODE", cfg.App.GinMode)

	if raw := getEnv("CORS_ORIGINS", ""); raw != "" {
		cfg.HTTP.CORSOrigins = splitList(raw)
	}
	cfg.HTTP.MaxImageBytes = getEnvAsInt("MAX_IMAGE_BYTES", cfg.HTTP.MaxImageBytes)

	cfg.Database.Driver = getEnv("DB_DRIVER", cfg.Database.Driver)
	cfg.Database.URL = getEnv("DATABASE_URL", cfg.Database.URL)
	cfg.Database.Host = getEnv("DB_HOST", cfg.Database.Host)
	cfg.Database.Port = getEnvAsInt("DB_PORT", cfg.Database.Port)
	cfg.Database.User = getEnv("DB_USER", cfg.Database.User)
	cfg.Database.Password = getEnv("DB_PASSWORD", cfg.Database.Password)
	cfg.Database.DB = getEnv("DB_NAME", cfg.Database.DB)
	cfg.Database.Params = getEnv("DB_PARAMS", cfg.Database.Params)
	cfg.Database.Path = getEnv("DB_PATH", cfg.Database.Path)

	cfg.Redis.Addr = getEnv("REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.DB = getEnvAsInt("REDIS_DB", cfg.Redis.DB)
	cfg.Redis.HistoryTTLSeconds = getEnvAsInt("REDIS_HISTORY_TTL_SECONDS", cfg.Redis.HistoryTTLSeconds)
	cfg.Redis.HistoryDirtyTTLSeconds = getEnvAsInt("REDIS_HISTORY_DIRTY_TTL_SECONDS", cfg.Redis.HistoryDirtyTTLSeconds)
	cfg.Redis.AnalysisTTLSeconds = getEnvAsInt("REDIS_ANALYSIS_TTL_SECONDS", cfg.Redis.AnalysisTTLSeconds)

	cfg.RabbitMQ.URL = getEnv("RABBITMQ_URL", cfg.RabbitMQ.URL)
	cfg.RabbitMQ.MessagePersistQueue = getEnv("RABBITMQ_MESSAGE_PERSIST_QUEUE", cfg.RabbitMQ.MessagePersistQueue)

	cfg.LLM.Provider = getEnv("LLM_PROVIDER", cfg.LLM.Provider)
	cfg.LLM.BaseURL = getEnv("LLM_BASE_URL", cfg.LLM.BaseURL)
	cfg.LLM.APIKey = getEnv("GEMINI_API_KEY", cfg.LLM.APIKey)
	cfg.LLM.APIKey = getEnv("LLM_API_KEY", cfg.LLM.APIKey)
	cfg.LLM.AnalysisModel = getEnv("LLM_ANALYSIS_MODEL", cfg.LLM.AnalysisModel)
	cfg.LLM.ChatModel = getEnv("LLM_CHAT_MODEL", cfg.LLM.ChatModel)
	cfg.LLM.TextModel = getEnv("LLM_TEXT_MODEL", cfg.LLM.TextModel)
	cfg.LLM.MaxContextMessage = getEnvAsInt("LLM_MAX_CONTEXT_MESSAGE", cfg.LLM.MaxContextMessage)
	cfg.LLM.TimeoutSeconds = getEnvAsInt("LLM_TIMEOUT_SECONDS", cfg.LLM.TimeoutSeconds)

	cfg.Scan.OutputDir = getEnv("SCAN_OUTPUT_DIR", cfg.Scan.OutputDir)
	cfg.Scan.LogFile = getEnv("SCAN_LOG_FILE", cfg.Scan.LogFile)
	cfg.Scan.MaxClusters = getEnvAsInt("SCAN_MAX_CLUSTERS", cfg.Scan.MaxClusters)
	cfg.Scan.SampleSize = getEnvAsInt("SCAN_SAMPLE_SIZE", cfg.Scan.SampleSize)
	cfg.Scan.ONNXModelPath = getEnv("SCAN_ONNX_MODEL", cfg.Scan.ONNXModelPath)
	cfg.Scan.ONNXLabelsPath = getEnv("SCAN_ONNX_LABELS", cfg.Scan.ONNXLabelsPath)
	cfg.Scan.ONNXSharedLibPath = getEnv("SCAN_ONNX_LIB", cfg.Scan.ONNXSharedLibPath)
	cfg.Scan.ONNXTopK = getEnvAsInt("SCAN_ONNX_TOP_K", cfg.Scan.ONNXTopK)
}

// normalizeDatabase infers the driver from DATABASE_URL-style values and
// rewrites the legacy postgres:// scheme.
func normalizeDatabase(db *DatabaseConfig) {
	url := strings.TrimSpace(db.URL)
	switch {
	case url == "":
	case strings.HasPrefix(url, "postgres://"):
		db.Driver = "postgres"
		url = "postgresql://" + strings.TrimPrefix(url, "postgres://")
	case strings.HasPrefix(url, "postgresql://"):
		db.Driver = "postgres"
	case strings.HasPrefix(url, "sqlite://"):
		db.Driver = "sqlite"
		url = strings.TrimPrefix(url, "sqlite://")
		// sqlite:///./x.db keeps a leading slash before the relative path
		if strings.HasPrefix(url, "/./") {
			url = url[1:]
		}
	case strings.HasPrefix(url, "mysql://"):
		db.Driver = "mysql"
		url = strings.TrimPrefix(url, "mysql://")
	}
	db.URL = url
	db.Driver = strings.ToLower(strings.TrimSpace(db.Driver))
}

// resolveLLMBaseURL fills the endpoint once the provider is known.
func resolveLLMBaseURL(llm *LLMConfig) {
	llm.Provider = strings.ToLower(strings.TrimSpace(llm.Provider))
	if strings.TrimSpace(llm.BaseURL) != "" {
		return
	}
	switch llm.Provider {
	case "openai":
		llm.BaseURL = defaultOpenAIBaseURL
	case "gemini":
		llm.BaseURL = defaultGeminiBaseURL
	}
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return parsed
}
