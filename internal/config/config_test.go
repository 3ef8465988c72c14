package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg == nil {
		t.Fatal("DefaultConfig returned nil")
	}
	if cfg.Agent.Model != DefaultModel {
		t.Errorf("model = %q, want %q", cfg.Agent.Model, DefaultModel)
	}
	if cfg.Agent.MaxOutputTokens != DefaultMaxOutputTokens {
		t.Errorf("maxOutputTokens = %d, want %d", cfg.Agent.MaxOutputTokens, DefaultMaxOutputTokens)
	}
	if cfg.Agent.MaxToolIterations != DefaultMaxToolIterations {
		t.Errorf("maxToolIterations = %d, want %d", cfg.Agent.MaxToolIterations, DefaultMaxToolIterations)
	}
	if cfg.Agent.MaxMessageChars != DefaultMaxMessageChars {
		t.Errorf("maxMessageChars = %d, want %d", cfg.Agent.MaxMessageChars, DefaultMaxMessageChars)
	}
	if cfg.Gateway.Host != DefaultHost {
		t.Errorf("host = %q, want %q", cfg.Gateway.Host, DefaultHost)
	}
	if cfg.Gateway.Port != DefaultPort {
		t.Errorf("port = %d, want %d", cfg.Gateway.Port, DefaultPort)
	}
	if !cfg.Channels.HTTP.Enabled {
		t.Error("http channel should be enabled by default")
	}
	if cfg.Lore.ChunkMinLength != DefaultChunkMinLength ||
		cfg.Lore.ChunkMaxLength != DefaultChunkMaxLength ||
		cfg.Lore.ChunkOverlap != DefaultChunkOverlap {
		t.Errorf("chunking defaults = %d/%d/%d", cfg.Lore.ChunkMinLength, cfg.Lore.ChunkMaxLength, cfg.Lore.ChunkOverlap)
	}
}

func TestLoadConfig_NoFile(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)
	t.Setenv("XENOCHAT_API_KEY", "")
	t.Setenv("GOOGLE_GENAI_API_KEY", "")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}
	if cfg.Agent.Model != DefaultModel {
		t.Errorf("expected default model %q, got %q", DefaultModel, cfg.Agent.Model)
	}
}

func TestLoadConfig_FromFile(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)
	t.Setenv("XENOCHAT_API_KEY", "")
	t.Setenv("GOOGLE_GENAI_API_KEY", "")

	cfgDir := filepath.Join(tmpDir, ".xenochat")
	os.MkdirAll(cfgDir, 0755)

	testCfg := map[string]any{
		"agent": map[string]any{
			"model":           "gemini-2.5-flash",
			"maxOutputTokens": 512,
		},
		"provider": map[string]any{
			"apiKey": "test-key",
		},
	}
	data, _ := json.MarshalIndent(testCfg, "", "  ")
	os.WriteFile(filepath.Join(cfgDir, "config.json"), data, 0644)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}
	if cfg.Agent.Model != "gemini-2.5-flash" {
		t.Errorf("model = %q, want gemini-2.5-flash", cfg.Agent.Model)
	}
	if cfg.Agent.MaxOutputTokens != 512 {
		t.Errorf("maxOutputTokens = %d, want 512", cfg.Agent.MaxOutputTokens)
	}
	if cfg.Provider.APIKey != "test-key" {
		t.Errorf("apiKey = %q, want test-key", cfg.Provider.APIKey)
	}
}

func TestLoadConfig_EnvPriority(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)

	// XENOCHAT_API_KEY takes priority over GOOGLE_GENAI_API_KEY
	t.Setenv("XENOCHAT_API_KEY", "xenochat-wins")
	t.Setenv("GOOGLE_GENAI_API_KEY", "genai-loses")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}
	if cfg.Provider.APIKey != "xenochat-wins" {
		t.Errorf("apiKey = %q, want xenochat-wins", cfg.Provider.APIKey)
	}
}

func TestLoadConfig_GenAIKeyFallback(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)
	t.Setenv("XENOCHAT_API_KEY", "")
	t.Setenv("GOOGLE_GENAI_API_KEY", "genai-key")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}
	if cfg.Provider.APIKey != "genai-key" {
		t.Errorf("apiKey = %q, want genai-key", cfg.Provider.APIKey)
	}
}

func TestLoadConfig_TelegramToken(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)
	t.Setenv("XENOCHAT_TELEGRAM_TOKEN", "test-telegram-token")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}
	if cfg.Channels.Telegram.Token != "test-telegram-token" {
		t.Errorf("telegram token = %q, want test-telegram-token", cfg.Channels.Telegram.Token)
	}
}

func TestLoadConfig_RepairsOutOfRangeValues(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)
	t.Setenv("XENOCHAT_API_KEY", "")
	t.Setenv("GOOGLE_GENAI_API_KEY", "")

	cfgDir := filepath.Join(tmpDir, ".xenochat")
	os.MkdirAll(cfgDir, 0755)

	testCfg := map[string]any{
		"memory": map[string]any{"topK": 50},
		"lore":   map[string]any{"topK": -1},
		"agent":  map[string]any{"maxToolIterations": 0},
	}
	data, _ := json.MarshalIndent(testCfg, "", "  ")
	os.WriteFile(filepath.Join(cfgDir, "config.json"), data, 0644)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}
	if cfg.Memory.TopK != DefaultMemoryTopK {
		t.Errorf("memory topK = %d, want %d", cfg.Memory.TopK, DefaultMemoryTopK)
	}
	if cfg.Lore.TopK != DefaultLoreTopK {
		t.Errorf("lore topK = %d, want %d", cfg.Lore.TopK, DefaultLoreTopK)
	}
	if cfg.Agent.MaxToolIterations != DefaultMaxToolIterations {
		t.Errorf("maxToolIterations = %d, want %d", cfg.Agent.MaxToolIterations, DefaultMaxToolIterations)
	}
}

func TestSaveConfig(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)

	cfg := DefaultConfig()
	cfg.Provider.APIKey = "test-key"

	if err := SaveConfig(cfg); err != nil {
		t.Fatalf("SaveConfig error: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(tmpDir, ".xenochat", "config.json"))
	if err != nil {
		t.Fatalf("read saved config: %v", err)
	}

	var loaded Config
	if err := json.Unmarshal(data, &loaded); err != nil {
		t.Fatalf("unmarshal saved config: %v", err)
	}
	if loaded.Provider.APIKey != "test-key" {
		t.Errorf("saved apiKey = %q, want test-key", loaded.Provider.APIKey)
	}
}

func TestLoadConfig_InvalidJSON(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)

	cfgDir := filepath.Join(tmpDir, ".xenochat")
	os.MkdirAll(cfgDir, 0755)
	os.WriteFile(filepath.Join(cfgDir, "config.json"), []byte("invalid json"), 0644)

	_, err := LoadConfig()
	if err == nil {
		t.Error("expected error for invalid JSON")
	}
}

func TestDBPath_Default(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)

	cfg := DefaultConfig()
	want := filepath.Join(tmpDir, ".xenochat", "data", "xenochat.db")
	if got := cfg.DBPath(); got != want {
		t.Errorf("DBPath = %q, want %q", got, want)
	}

	cfg.Store.DBPath = "/tmp/custom.db"
	if got := cfg.DBPath(); got != "/tmp/custom.db" {
		t.Errorf("DBPath = %q, want /tmp/custom.db", got)
	}
}
