package config

import (
	"os"
	"path/filepath"
	"testing"
)

// ========== 配置加载测试 ==========

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if got := cfg.Server.GetAddr(); got != "127.0.0.1:3417" {
		t.Errorf("GetAddr() = %q, want 127.0.0.1:3417", got)
	}
	if cfg.Session.IdleTimeout != 15 {
		t.Errorf("IdleTimeout = %d, want 15", cfg.Session.IdleTimeout)
	}
	if cfg.Session.CheckInterval != 10 {
		t.Errorf("CheckInterval = %d, want 10", cfg.Session.CheckInterval)
	}
	if cfg.Session.CacheSize != 50 {
		t.Errorf("CacheSize = %d, want 50", cfg.Session.CacheSize)
	}
	if cfg.Storage.DataDir != "saves" {
		t.Errorf("DataDir = %q, want saves", cfg.Storage.DataDir)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  port: 8080
ai:
  mainModel: deepseek-reasoner
  endpoints:
    deepseek-reasoner:
      baseURL: https://api.deepseek.com/v1
      apiKey: test-key
      timeout: 60
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Server.Port)
	}
	// 未覆盖的键保持默认值
	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("Host = %q, want default 127.0.0.1", cfg.Server.Host)
	}
	if cfg.AI.MainModel != "deepseek-reasoner" {
		t.Errorf("MainModel = %q, want deepseek-reasoner", cfg.AI.MainModel)
	}

	ep, err := cfg.AI.Endpoint("deepseek-reasoner")
	if err != nil {
		t.Fatalf("Endpoint() error = %v", err)
	}
	if ep.APIKey != "test-key" || ep.Timeout != 60 {
		t.Errorf("Endpoint = %+v, want apiKey test-key timeout 60", ep)
	}
}

func TestEndpointErrors(t *testing.T) {
	ai := &AIConfig{Endpoints: map[string]Endpoint{
		"no-url": {APIKey: "k"},
	}}

	if _, err := ai.Endpoint("unknown"); err == nil {
		t.Error("Endpoint(unknown) error = nil, want error")
	}
	if _, err := ai.Endpoint("no-url"); err == nil {
		t.Error("Endpoint(no-url) error = nil, want error")
	}
}

func TestStoragePaths(t *testing.T) {
	c := &StorageConfig{
		DataDir:      "saves",
		TitleDBFile:  "history_titles.db",
		SettingsFile: "settings.yaml",
	}
	if got := c.HistoriesDir(); got != filepath.Join("saves", "histories") {
		t.Errorf("HistoriesDir() = %q", got)
	}
	if got := c.TitleDBPath(); got != filepath.Join("saves", "history_titles.db") {
		t.Errorf("TitleDBPath() = %q", got)
	}
	if got := c.SettingsPath(); got != filepath.Join("saves", "settings.yaml") {
		t.Errorf("SettingsPath() = %q", got)
	}
}

// ========== 运行期设置测试 ==========

func TestSettingsRoundTrip(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	path := filepath.Join(t.TempDir(), "settings.yaml")

	// 文件不存在时回落到配置默认值
	s, err := LoadSettings(path, cfg)
	if err != nil {
		t.Fatalf("LoadSettings() error = %v", err)
	}
	if s.MainModel != cfg.AI.MainModel {
		t.Errorf("MainModel = %q, want default %q", s.MainModel, cfg.AI.MainModel)
	}

	s.MainModel = "deepseek-reasoner"
	s.Features["sticker"] = true
	if err := s.Save(path); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := LoadSettings(path, cfg)
	if err != nil {
		t.Fatalf("LoadSettings() after save error = %v", err)
	}
	if loaded.MainModel != "deepseek-reasoner" {
		t.Errorf("MainModel = %q, want deepseek-reasoner", loaded.MainModel)
	}
	if !loaded.Features["sticker"] {
		t.Errorf("Features = %v, want sticker enabled", loaded.Features)
	}
}
