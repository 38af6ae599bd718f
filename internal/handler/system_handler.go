package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/yuunagi/deskmate/internal/service/chat"
)

// SystemHandler 系统处理器
type SystemHandler struct {
	mgr *chat.Manager
}

// NewSystemHandler 创建系统处理器
func NewSystemHandler(mgr *chat.Manager) *SystemHandler {
	return &SystemHandler{mgr: mgr}
}

// ConfigureRequest 模型选择更新请求，空字段保持不变
type ConfigureRequest struct {
	MainModel   string `json:"main_model"`
	VisionModel string `json:"vision_model"`
	AssistModel string `json:"assist_model"`
}

// Configure 更新进程级模型选择，只影响之后创建的会话
func (h *SystemHandler) Configure(c *gin.Context) {
	var req ConfigureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	h.mgr.Configure(req.MainModel, req.VisionModel, req.AssistModel)
	mainModel, visionModel, assistModel := h.mgr.Models()
	success(c, gin.H{
		"main_model":   mainModel,
		"vision_model": visionModel,
		"assist_model": assistModel,
	})
}
