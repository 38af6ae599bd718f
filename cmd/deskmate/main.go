package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yuunagi/deskmate/internal/config"
	"github.com/yuunagi/deskmate/internal/database"
	"github.com/yuunagi/deskmate/internal/handler"
	"github.com/yuunagi/deskmate/internal/llm"
	"github.com/yuunagi/deskmate/internal/router"
	"github.com/yuunagi/deskmate/internal/service/chat"
	"github.com/yuunagi/deskmate/internal/store"
)

func main() {
	// 加载配置
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 运行期设置（模型选择），退出时写回
	settings, err := config.LoadSettings(cfg.Storage.SettingsPath(), cfg)
	if err != nil {
		log.Fatalf("Failed to load settings: %v", err)
	}

	// 设置 Gin 模式
	gin.SetMode(cfg.Server.Mode)

	// 初始化标题库
	db, err := database.New(cfg.Storage.TitleDBPath(), cfg.App.Debug)
	if err != nil {
		log.Fatalf("Failed to init database: %v", err)
	}
	defer db.Close()

	log.Printf("Title database ready: %s", cfg.Storage.TitleDBPath())

	// 初始化各层
	historyStore := store.New(db, cfg.Storage.HistoriesDir())
	pool := llm.NewPool(&cfg.AI)
	mgr := chat.NewManager(historyStore, pool, chat.ManagerConfig{
		MainModel:     settings.MainModel,
		VisionModel:   settings.VisionModel,
		AssistModel:   settings.AssistModel,
		SystemPrompt:  cfg.AI.SystemPrompt,
		IdleTimeout:   time.Duration(cfg.Session.IdleTimeout) * time.Second,
		CheckInterval: time.Duration(cfg.Session.CheckInterval) * time.Second,
		CacheSize:     cfg.Session.CacheSize,
	})
	handlers := handler.NewHandlers(mgr)

	// 初始化路由
	r := router.SetupRouter(handlers)

	// 创建 HTTP 服务器
	srv := &http.Server{
		Addr:        cfg.Server.GetAddr(),
		Handler:     r,
		ReadTimeout: time.Duration(cfg.Server.ReadTimeout) * time.Second,
		// 不设写超时，流式响应可能持续很久
	}

	// 启动服务器
	go func() {
		log.Printf("Server starting on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// 等待中断信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	// 优雅关闭
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	// 所有活跃会话落盘，模型选择写回设置文件
	if err := mgr.ArchiveAll(); err != nil {
		log.Printf("Failed to archive sessions: %v", err)
	}
	settings.MainModel, settings.VisionModel, settings.AssistModel = mgr.Models()
	if err := settings.Save(cfg.Storage.SettingsPath()); err != nil {
		log.Printf("Failed to save settings: %v", err)
	}

	log.Println("Server exited")
}
