// Package handler 提供 HTTP 处理器
package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/yuunagi/deskmate/internal/model"
	"github.com/yuunagi/deskmate/internal/service/chat"
	"github.com/yuunagi/deskmate/internal/store"
)

// ChatHandler 会话处理器
type ChatHandler struct {
	mgr *chat.Manager
}

// NewChatHandler 创建会话处理器
func NewChatHandler(mgr *chat.Manager) *ChatHandler {
	return &ChatHandler{mgr: mgr}
}

// GenerateRequest 补全请求
// ID 缺省时新建会话
type GenerateRequest struct {
	ID      *int64              `json:"id"`
	Content []model.ContentPart `json:"content" binding:"required"`
}

// Generate 发起一次补全，以 SSE 推送流式事件
// 新会话首帧携带分配的 id，结束帧之后流关闭
func (h *ChatHandler) Generate(c *gin.Context) {
	var req GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	for i := range req.Content {
		if err := req.Content[i].Validate(); err != nil {
			badRequest(c, err.Error())
			return
		}
	}

	_, eventCh, err := h.mgr.Generate(req.ID, req.Content)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			notFound(c, err.Error())
			return
		}
		errorResponse(c, err)
		return
	}

	// 设置 SSE 响应头
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("Transfer-Encoding", "chunked")

	// 客户端断开后继续读完事件流，保证日志与落盘不受影响
	clientGone := false
	for event := range eventCh {
		if clientGone {
			continue
		}
		select {
		case <-c.Request.Context().Done():
			clientGone = true
		default:
			c.SSEvent("", event)
			c.Writer.Flush()
		}
	}
}

// GetChat 查询接口，按参数分派
// id 查消息日志；below/above 查标题分页；都不给时查最新一页标题
func (h *ChatHandler) GetChat(c *gin.Context) {
	if raw := c.Query("id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			badRequest(c, "invalid id: "+raw)
			return
		}
		messages, err := h.mgr.History(id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				notFound(c, err.Error())
				return
			}
			errorResponse(c, err)
			return
		}
		if messages == nil {
			messages = []model.Message{}
		}
		success(c, messages)
		return
	}

	below, ok := optionalID(c, "below")
	if !ok {
		return
	}
	above, ok := optionalID(c, "above")
	if !ok {
		return
	}
	titles, err := h.mgr.ListTitles(below, above, 0)
	if err != nil {
		errorResponse(c, err)
		return
	}
	success(c, titles)
}

// optionalID 解析可选的 id 查询参数，解析失败时已写入响应
func optionalID(c *gin.Context, name string) (*int64, bool) {
	raw := c.Query(name)
	if raw == "" {
		return nil, true
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		badRequest(c, "invalid "+name+": "+raw)
		return nil, false
	}
	return &id, true
}

// SaveChat 显式落盘并驱逐会话
func (h *ChatHandler) SaveChat(c *gin.Context) {
	id, ok := queryID(c)
	if !ok {
		return
	}
	if err := h.mgr.Save(id); err != nil {
		errorResponse(c, err)
		return
	}
	success(c, nil)
}

// Alive 心跳，重置会话的闲置计时并返回驻留状态
func (h *ChatHandler) Alive(c *gin.Context) {
	id, ok := queryID(c)
	if !ok {
		return
	}
	h.mgr.Heartbeat(id)
	success(c, gin.H{"alive": h.mgr.Alive(id)})
}

// ArchiveAll 把所有活跃会话落盘
func (h *ChatHandler) ArchiveAll(c *gin.Context) {
	if err := h.mgr.ArchiveAll(); err != nil {
		errorResponse(c, err)
		return
	}
	success(c, nil)
}

// DeleteChat 删除会话及其标题
func (h *ChatHandler) DeleteChat(c *gin.Context) {
	id, ok := queryID(c)
	if !ok {
		return
	}
	if err := h.mgr.Delete(id); err != nil {
		errorResponse(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
