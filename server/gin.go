// Package server 提供 HTTP 服务器的启动、优雅关闭与路由装配。
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/wyfcoding/optiongreeks/config"
	"github.com/wyfcoding/optiongreeks/logging"
)

const shutdownTimeout = 5 * time.Second

// GinServer 封装了标准的 `http.Server`，专门用于运行 Gin 引擎，并提供了优雅的启动和关闭功能。
type GinServer struct {
	server *http.Server
	addr   string
	logger *logging.Logger
}

// NewGinServer 创建一个新的Gin服务器实例。
func NewGinServer(engine *gin.Engine, addr string, logger *logging.Logger) *GinServer {
	return &GinServer{
		server: &http.Server{
			Addr:    addr,
			Handler: engine,
		},
		addr:   addr,
		logger: logger,
	}
}

// NewGinServerFromConfig 按 server.http 配置设置监听地址与各项超时。
func NewGinServerFromConfig(engine *gin.Engine, cfg config.ServerConfig, logger *logging.Logger) *GinServer {
	s := NewGinServer(engine, cfg.Addr(), logger)
	s.server.ReadTimeout = cfg.HTTP.ReadTimeout
	s.server.ReadHeaderTimeout = cfg.HTTP.ReadHeaderTimeout
	s.server.WriteTimeout = cfg.HTTP.WriteTimeout
	s.server.IdleTimeout = cfg.HTTP.IdleTimeout
	s.server.MaxHeaderBytes = cfg.HTTP.MaxHeaderBytes
	return s
}

// Addr 返回监听地址。
func (s *GinServer) Addr() string { return s.addr }

// Start 启动Gin HTTP服务器。
// 这是一个阻塞操作，它会监听上下文的取消事件以触发优雅关闭。
func (s *GinServer) Start(ctx context.Context) error {
	s.logger.Info("Starting Gin server", "addr", s.addr)

	errChan := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("Gin server stopping due to context cancellation.")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	case err := <-errChan:
		return err
	}
}

// Stop 优雅地停止Gin服务器。
// 它会等待现有请求在给定超时时间内完成。
func (s *GinServer) Stop(ctx context.Context) error {
	s.logger.Info("Stopping Gin server gracefully")
	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	return s.server.Shutdown(ctx)
}
