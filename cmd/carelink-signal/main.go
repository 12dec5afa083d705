package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"carelink-signal/internal/config"
	"carelink-signal/internal/httpapi"
	"carelink-signal/internal/logger"
	"carelink-signal/internal/service"
	"carelink-signal/internal/ws"

	"go.uber.org/zap"
)

func main() {
	// 1. 加载配置
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	// 2. 初始化日志
	log, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, "carelink-signal")
	if err != nil {
		panic(fmt.Sprintf("Failed to init logger: %v", err))
	}
	defer log.Sync()

	// 3. 创建服务
	signalService, err := service.NewSignalService(cfg, log)
	if err != nil {
		log.Fatal("Failed to create signal service",
			zap.Error(err),
		)
	}
	defer signalService.Stop()

	// 4. 创建上下文（支持优雅关闭）
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 5. 启动后台循环（presence 镜像刷新 + presence 事件消费）
	if err := signalService.Start(ctx); err != nil {
		log.Fatal("Failed to start signal service",
			zap.Error(err),
		)
	}

	// 6. HTTP / WebSocket 接入层
	router := httpapi.NewRouter(log)
	router.RegisterSignalRoutes(
		httpapi.NewAlertHandler(signalService, log),
		httpapi.NewMoodHandler(signalService, log),
		ws.NewHandler(signalService, log),
	)

	server := &http.Server{
		Addr:    cfg.HTTP.Addr,
		Handler: router,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening",
			zap.String("addr", cfg.HTTP.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrChan <- err
		}
	}()

	// 7. 等待信号（优雅关闭）
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		log.Info("Received signal, shutting down",
			zap.String("signal", sig.String()),
		)
	case err := <-serverErrChan:
		log.Fatal("HTTP server error",
			zap.Error(err),
		)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown failed",
			zap.Error(err),
		)
	}
	cancel()

	log.Info("Signal service stopped")
}
