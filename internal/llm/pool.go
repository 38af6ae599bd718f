// Package llm 管理按模型名缓存的聊天模型客户端
package llm

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cloudwego/eino-ext/components/model/openai"
	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/yuunagi/deskmate/internal/config"
)

// Pool 聊天模型客户端池
// 按模型名懒创建并复用 eino ChatModel，进程启动时构造一次，
// 取代散落的全局客户端注册表
type Pool struct {
	mu      sync.Mutex
	ai      *config.AIConfig
	clients map[string]einomodel.ToolCallingChatModel
}

// NewPool 创建客户端池
func NewPool(ai *config.AIConfig) *Pool {
	return &Pool{
		ai:      ai,
		clients: make(map[string]einomodel.ToolCallingChatModel),
	}
}

// client 获取或创建模型客户端
func (p *Pool) client(ctx context.Context, model string) (einomodel.ToolCallingChatModel, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if cm, ok := p.clients[model]; ok {
		return cm, nil
	}

	ep, err := p.ai.Endpoint(model)
	if err != nil {
		return nil, err
	}

	cfg := &openai.ChatModelConfig{
		APIKey:  ep.APIKey,
		BaseURL: ep.BaseURL,
		Model:   model,
	}
	if ep.Timeout > 0 {
		cfg.Timeout = time.Duration(ep.Timeout) * time.Second
	}

	cm, err := openai.NewChatModel(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model for %s: %w", model, err)
	}
	p.clients[model] = cm
	return cm, nil
}

// Stream 对指定模型发起流式补全
func (p *Pool) Stream(ctx context.Context, model string, messages []*schema.Message) (*schema.StreamReader[*schema.Message], error) {
	cm, err := p.client(ctx, model)
	if err != nil {
		return nil, err
	}
	return cm.Stream(ctx, messages)
}

// Generate 对指定模型发起非流式补全
func (p *Pool) Generate(ctx context.Context, model string, messages []*schema.Message) (*schema.Message, error) {
	cm, err := p.client(ctx, model)
	if err != nil {
		return nil, err
	}
	return cm.Generate(ctx, messages)
}
