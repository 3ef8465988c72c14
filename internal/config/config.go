package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

const (
	DefaultModel             = "gemini-2.0-flash"
	DefaultEmbeddingModel    = "text-embedding-004"
	DefaultBaseURL           = "https://generativelanguage.googleapis.com/v1beta"
	DefaultMaxOutputTokens   = 155
	DefaultTemperature       = 0.7
	DefaultMaxToolIterations = 5
	DefaultRequestTimeoutSec = 60
	DefaultHost              = "0.0.0.0"
	DefaultPort              = 18650
	DefaultBufSize           = 100

	DefaultMemoryTopK      = 3
	DefaultLoreTopK        = 3
	DefaultMaxMessageChars = 4000

	DefaultChunkMinLength = 1000
	DefaultChunkMaxLength = 2000
	DefaultChunkOverlap   = 100

	DefaultBackfillSchedule  = "0 30 3 * * *"
	DefaultBackfillBatchSize = 32
)

type Config struct {
	Agent    AgentConfig    `json:"agent"`
	Provider ProviderConfig `json:"provider"`
	Channels ChannelsConfig `json:"channels"`
	Gateway  GatewayConfig  `json:"gateway"`
	Store    StoreConfig    `json:"store"`
	Memory   MemoryConfig   `json:"memory"`
	Lore     LoreConfig     `json:"lore"`
	Cron     CronConfig     `json:"cron"`
	Log      LogConfig      `json:"log"`
}

// AgentConfig bounds one conversation turn.
type AgentConfig struct {
	Model             string  `json:"model"`
	MaxOutputTokens   int     `json:"maxOutputTokens"`
	Temperature       float64 `json:"temperature"`
	MaxToolIterations int     `json:"maxToolIterations"`
	RequestTimeoutSec int     `json:"requestTimeoutSec"`
	MaxMessageChars   int     `json:"maxMessageChars"`
}

type ProviderConfig struct {
	APIKey  string `json:"apiKey"`
	BaseURL string `json:"baseUrl,omitempty"`
}

type ChannelsConfig struct {
	HTTP     HTTPConfig     `json:"http"`
	Telegram TelegramConfig `json:"telegram"`
}

type HTTPConfig struct {
	Enabled   bool     `json:"enabled"`
	AllowFrom []string `json:"allowFrom"`
}

// TelegramConfig maps a telegram bot onto one xenoprofile: every chat through
// this channel talks to the persona identified by ProfileID.
type TelegramConfig struct {
	Enabled   bool     `json:"enabled"`
	Token     string   `json:"token"`
	ProfileID string   `json:"profileId"`
	AllowFrom []string `json:"allowFrom"`
	Proxy     string   `json:"proxy,omitempty"`
}

type GatewayConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

type StoreConfig struct {
	DBPath string `json:"dbPath,omitempty"`
}

type MemoryConfig struct {
	TopK           int    `json:"topK"`
	EmbeddingModel string `json:"embeddingModel,omitempty"`
}

type LoreConfig struct {
	TopK           int `json:"topK"`
	ChunkMinLength int `json:"chunkMinLength"`
	ChunkMaxLength int `json:"chunkMaxLength"`
	ChunkOverlap   int `json:"chunkOverlap"`
}

type CronConfig struct {
	Enabled           bool   `json:"enabled"`
	BackfillSchedule  string `json:"backfillSchedule,omitempty"`
	BackfillBatchSize int    `json:"backfillBatchSize,omitempty"`
}

type LogConfig struct {
	Level string `json:"level,omitempty"`
	Dev   bool   `json:"dev,omitempty"`
}

func DefaultConfig() *Config {
	return &Config{
		Agent: AgentConfig{
			Model:             DefaultModel,
			MaxOutputTokens:   DefaultMaxOutputTokens,
			Temperature:       DefaultTemperature,
			MaxToolIterations: DefaultMaxToolIterations,
			RequestTimeoutSec: DefaultRequestTimeoutSec,
			MaxMessageChars:   DefaultMaxMessageChars,
		},
		Provider: ProviderConfig{
			BaseURL: DefaultBaseURL,
		},
		Channels: ChannelsConfig{
			HTTP: HTTPConfig{Enabled: true},
		},
		Gateway: GatewayConfig{
			Host: DefaultHost,
			Port: DefaultPort,
		},
		Memory: MemoryConfig{
			TopK:           DefaultMemoryTopK,
			EmbeddingModel: DefaultEmbeddingModel,
		},
		Lore: LoreConfig{
			TopK:           DefaultLoreTopK,
			ChunkMinLength: DefaultChunkMinLength,
			ChunkMaxLength: DefaultChunkMaxLength,
			ChunkOverlap:   DefaultChunkOverlap,
		},
		Cron: CronConfig{
			Enabled:           true,
			BackfillSchedule:  DefaultBackfillSchedule,
			BackfillBatchSize: DefaultBackfillBatchSize,
		},
	}
}

func ConfigDir() string {
	home := os.Getenv("HOME")
	if home == "" {
		home, _ = os.UserHomeDir()
	}
	return filepath.Join(home, ".xenochat")
}

func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.json")
}

// DBPath resolves the sqlite database location, defaulting under ConfigDir.
func (c *Config) DBPath() string {
	if c.Store.DBPath != "" {
		return c.Store.DBPath
	}
	return filepath.Join(ConfigDir(), "data", "xenochat.db")
}

func LoadConfig() (*Config, error) {
	return LoadConfigFrom(ConfigPath())
}

func LoadConfigFrom(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// Environment variable overrides
	if key := os.Getenv("XENOCHAT_API_KEY"); key != "" {
		cfg.Provider.APIKey = key
	}
	if key := os.Getenv("GOOGLE_GENAI_API_KEY"); key != "" && cfg.Provider.APIKey == "" {
		cfg.Provider.APIKey = key
	}
	if url := os.Getenv("XENOCHAT_BASE_URL"); url != "" {
		cfg.Provider.BaseURL = url
	}
	if token := os.Getenv("XENOCHAT_TELEGRAM_TOKEN"); token != "" {
		cfg.Channels.Telegram.Token = token
	}
	if dbPath := os.Getenv("XENOCHAT_DB_PATH"); dbPath != "" {
		cfg.Store.DBPath = dbPath
	}
	if port := os.Getenv("XENOCHAT_PORT"); port != "" {
		if parsed, err := strconv.Atoi(port); err == nil {
			cfg.Gateway.Port = parsed
		}
	}
	if level := os.Getenv("XENOCHAT_LOG_LEVEL"); level != "" {
		cfg.Log.Level = level
	}

	applyLimits(cfg)
	return cfg, nil
}

// applyLimits repairs out-of-range values instead of failing the load.
func applyLimits(cfg *Config) {
	def := DefaultConfig()

	if cfg.Agent.Model == "" {
		cfg.Agent.Model = def.Agent.Model
	}
	if cfg.Agent.MaxOutputTokens <= 0 {
		cfg.Agent.MaxOutputTokens = def.Agent.MaxOutputTokens
	}
	if cfg.Agent.MaxToolIterations <= 0 {
		cfg.Agent.MaxToolIterations = def.Agent.MaxToolIterations
	}
	if cfg.Agent.RequestTimeoutSec <= 0 {
		cfg.Agent.RequestTimeoutSec = def.Agent.RequestTimeoutSec
	}
	if cfg.Agent.MaxMessageChars <= 0 {
		cfg.Agent.MaxMessageChars = def.Agent.MaxMessageChars
	}
	if cfg.Provider.BaseURL == "" {
		cfg.Provider.BaseURL = def.Provider.BaseURL
	}
	if cfg.Memory.TopK <= 0 || cfg.Memory.TopK > 10 {
		cfg.Memory.TopK = def.Memory.TopK
	}
	if cfg.Memory.EmbeddingModel == "" {
		cfg.Memory.EmbeddingModel = def.Memory.EmbeddingModel
	}
	if cfg.Lore.TopK <= 0 || cfg.Lore.TopK > 10 {
		cfg.Lore.TopK = def.Lore.TopK
	}
	if cfg.Lore.ChunkMinLength <= 0 {
		cfg.Lore.ChunkMinLength = def.Lore.ChunkMinLength
	}
	if cfg.Lore.ChunkMaxLength <= cfg.Lore.ChunkMinLength {
		cfg.Lore.ChunkMaxLength = cfg.Lore.ChunkMinLength + def.Lore.ChunkMaxLength - def.Lore.ChunkMinLength
	}
	if cfg.Lore.ChunkOverlap < 0 {
		cfg.Lore.ChunkOverlap = def.Lore.ChunkOverlap
	}
	if cfg.Cron.BackfillSchedule == "" {
		cfg.Cron.BackfillSchedule = def.Cron.BackfillSchedule
	}
	if cfg.Cron.BackfillBatchSize <= 0 {
		cfg.Cron.BackfillBatchSize = def.Cron.BackfillBatchSize
	}
	if cfg.Gateway.Host == "" {
		cfg.Gateway.Host = def.Gateway.Host
	}
	if cfg.Gateway.Port <= 0 {
		cfg.Gateway.Port = def.Gateway.Port
	}
}

func SaveConfig(cfg *Config) error {
	dir := ConfigDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	return os.WriteFile(ConfigPath(), data, 0644)
}
