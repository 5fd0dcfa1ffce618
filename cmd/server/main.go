package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ChatRelay/internal/server/config"
	"ChatRelay/internal/server/core"
	"ChatRelay/internal/server/transport"

	"go.uber.org/zap"
)

func main() {
	cfg := config.FromEnv()
	port := flag.Int("port", cfg.Port, "TCP 监听端口")
	httpAddr := flag.String("http", cfg.HTTPAddr, "WebSocket 网关地址，例如 :8080；为空则不启用")
	flag.Parse()

	cfg.Port = *port
	cfg.HTTPAddr = *httpAddr
	cfg = cfg.Sanitize()

	logger, err := newLogger(cfg)
	if err != nil {
		log.Fatalf("初始化日志失败: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	// 初始化 Hub
	hub := core.NewHub(logger, cfg.Options())

	// 创建 TCP 服务器
	server := transport.NewServer("0.0.0.0", cfg.Port, hub, logger)
	if err := server.Listen(); err != nil {
		logger.Fatal("服务器启动失败", zap.Error(err))
	}

	errCh := make(chan error, 2)
	go func() { errCh <- server.Serve() }()

	var gateway *transport.Gateway
	if cfg.HTTPAddr != "" {
		gateway = transport.NewGateway(cfg.HTTPAddr, cfg.WebSocketReadLimit(), hub, logger)
		go func() { errCh <- gateway.Start() }()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case <-ctx.Done():
		logger.Info("收到退出信号，正在关闭服务器")
	case err := <-errCh:
		if err != nil {
			logger.Error("监听器异常退出", zap.Error(err))
		}
	}

	if err := server.Close(); err != nil {
		logger.Warn("关闭 TCP 监听器失败", zap.Error(err))
	}
	if gateway != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := gateway.Shutdown(shutdownCtx); err != nil {
			logger.Warn("关闭 WebSocket 网关失败", zap.Error(err))
		}
		cancel()
	}
	if err := hub.Shutdown(5 * time.Second); err != nil {
		logger.Warn("Hub 未能在超时前关闭", zap.Error(err))
	}
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(cfg.Level())
	return zcfg.Build()
}
