package handler

import (
	"github.com/yuunagi/deskmate/internal/service/chat"
)

// Handlers 处理器集合
type Handlers struct {
	Chat   *ChatHandler
	System *SystemHandler
}

// NewHandlers 创建所有处理器
func NewHandlers(mgr *chat.Manager) *Handlers {
	return &Handlers{
		Chat:   NewChatHandler(mgr),
		System: NewSystemHandler(mgr),
	}
}
