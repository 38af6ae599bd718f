// Package testutil 提供测试辅助工具
package testutil

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/cloudwego/eino/schema"

	"github.com/yuunagi/deskmate/internal/database"
	"github.com/yuunagi/deskmate/internal/service/chat"
	"github.com/yuunagi/deskmate/internal/store"
)

// MockStreamer 按预设分块回放流式响应的假模型客户端
type MockStreamer struct {
	mu        sync.Mutex
	Chunks    []*schema.Message
	StreamErr error  // Stream 调用直接失败
	GenReply  string // Generate 的固定回复
	GenErr    error
	lastModel string
}

// Stream 实现 chat.Streamer
func (m *MockStreamer) Stream(_ context.Context, modelName string, _ []*schema.Message) (*schema.StreamReader[*schema.Message], error) {
	m.mu.Lock()
	m.lastModel = modelName
	m.mu.Unlock()

	if m.StreamErr != nil {
		return nil, m.StreamErr
	}
	return schema.StreamReaderFromArray(m.Chunks), nil
}

// Generate 实现 chat.Streamer
func (m *MockStreamer) Generate(_ context.Context, _ string, _ []*schema.Message) (*schema.Message, error) {
	if m.GenErr != nil {
		return nil, m.GenErr
	}
	return &schema.Message{Role: schema.Assistant, Content: m.GenReply}, nil
}

// LastModel 最近一次 Stream 调用的模型名
func (m *MockStreamer) LastModel() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastModel
}

// AnswerChunks 构造纯回答分块序列
func AnswerChunks(texts ...string) []*schema.Message {
	chunks := make([]*schema.Message, 0, len(texts))
	for _, t := range texts {
		chunks = append(chunks, &schema.Message{Role: schema.Assistant, Content: t})
	}
	return chunks
}

// NewHistoryStore 创建落在临时目录的历史存储
func NewHistoryStore(t *testing.T) *store.HistoryStore {
	t.Helper()
	dir := t.TempDir()
	db, err := database.New(filepath.Join(dir, "titles.db"), false)
	if err != nil {
		t.Fatalf("database.New() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return store.New(db, filepath.Join(dir, "histories"))
}

// NewChatManager 创建接好临时存储的会话管理器
func NewChatManager(t *testing.T, streamer chat.Streamer, cfg chat.ManagerConfig) *chat.Manager {
	t.Helper()
	if cfg.MainModel == "" {
		cfg.MainModel = "main"
	}
	if cfg.VisionModel == "" {
		cfg.VisionModel = "vision"
	}
	if cfg.AssistModel == "" {
		cfg.AssistModel = "assist"
	}
	return chat.NewManager(NewHistoryStore(t), streamer, cfg)
}
