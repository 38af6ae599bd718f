package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config 应用配置
type Config struct {
	App     AppConfig
	Server  ServerConfig
	Storage StorageConfig
	Session SessionConfig
	AI      AIConfig
}

// AppConfig 应用配置
type AppConfig struct {
	Name  string
	Debug bool
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Host         string
	Port         int
	Mode         string
	ReadTimeout  int
	WriteTimeout int
}

// StorageConfig 存储配置
type StorageConfig struct {
	DataDir      string // 数据根目录（对话分片、标题库、设置文件都在其下）
	TitleDBFile  string
	SettingsFile string
}

// SessionConfig 会话配置
type SessionConfig struct {
	IdleTimeout   int // 秒，超过该时长无心跳则落盘并驱逐
	CheckInterval int // 秒，看门狗轮询间隔
	CacheSize     int // 历史记录缓存容量
}

// AIConfig AI 配置
type AIConfig struct {
	MainModel    string
	VisionModel  string
	AssistModel  string
	SystemPrompt string
	Endpoints    map[string]Endpoint // 模型名 -> 接入点
}

// Endpoint 模型接入点
type Endpoint struct {
	BaseURL string
	APIKey  string
	Timeout int
}

// Load 加载配置
func Load(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	// 环境变量
	v.SetEnvPrefix("DESKMATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// GetAddr 获取服务器地址
func (c *ServerConfig) GetAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// HistoriesDir 对话分片根目录
func (c *StorageConfig) HistoriesDir() string {
	return filepath.Join(c.DataDir, "histories")
}

// TitleDBPath 标题库文件路径
func (c *StorageConfig) TitleDBPath() string {
	return filepath.Join(c.DataDir, c.TitleDBFile)
}

// SettingsPath 设置文件路径
func (c *StorageConfig) SettingsPath() string {
	return filepath.Join(c.DataDir, c.SettingsFile)
}

// Endpoint 查找模型的接入点
func (c *AIConfig) Endpoint(model string) (Endpoint, error) {
	ep, ok := c.Endpoints[model]
	if !ok {
		return Endpoint{}, fmt.Errorf("no endpoint configured for model: %s", model)
	}
	if ep.BaseURL == "" {
		return Endpoint{}, fmt.Errorf("endpoint for model %s has no base url", model)
	}
	return ep, nil
}

func setDefaults(v *viper.Viper) {
	// App
	v.SetDefault("app.name", "deskmate")
	v.SetDefault("app.debug", false)

	// Server
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 3417)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.readTimeout", 30)
	v.SetDefault("server.writeTimeout", 0) // 流式响应不能设写超时

	// Storage
	v.SetDefault("storage.dataDir", "saves")
	v.SetDefault("storage.titleDBFile", "history_titles.db")
	v.SetDefault("storage.settingsFile", "settings.yaml")

	// Session
	v.SetDefault("session.idleTimeout", 15)
	v.SetDefault("session.checkInterval", 10)
	v.SetDefault("session.cacheSize", 50)

	// AI
	v.SetDefault("ai.mainModel", "deepseek-chat")
	v.SetDefault("ai.visionModel", "qwen3-vl-plus")
	v.SetDefault("ai.assistModel", "deepseek-chat")
	v.SetDefault("ai.systemPrompt", "你是一位乐于助人的桌面助理，回答保持简洁。")
}
