package web

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/lLiuRunze/mail-agent/internal/config"
	"github.com/lLiuRunze/mail-agent/internal/generator"
	"github.com/lLiuRunze/mail-agent/internal/history"
	"github.com/lLiuRunze/mail-agent/internal/logger"
	"github.com/lLiuRunze/mail-agent/internal/metrics"
	"github.com/lLiuRunze/mail-agent/internal/nlu"
)

// Server 对话式邮件助手的 HTTP 服务器
type Server struct {
	cfg      *config.Config
	gen      generator.Generator
	hist     history.Recorder
	metrics  *metrics.Exporter
	registry *Registry

	router *gin.Engine
	server *http.Server
}

// NewServer 创建服务器，gen 必填，hist 和 m 可为 nil
func NewServer(cfg *config.Config, gen generator.Generator, hist history.Recorder, m *metrics.Exporter) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		cfg:      cfg,
		gen:      gen,
		hist:     hist,
		metrics:  m,
		registry: NewRegistry(),
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(loggerMiddleware())

	router.GET("/health", healthHandler)
	router.POST("/api/login", s.loginHandler)

	api := router.Group("/api")
	api.Use(authMiddleware(cfg.Web.JWTSecret))

	api.GET("/check-auth", s.checkAuthHandler)
	api.POST("/logout", s.logoutHandler)

	// 对话入口
	api.POST("/chat", s.chatHandler)
	api.POST("/chat/confirm", s.confirmHandler)

	// 列表与单封操作
	api.GET("/emails", s.listEmailsHandler)
	api.GET("/emails/:id", s.getEmailHandler)
	api.POST("/emails/:id/reply", s.replyHandler)
	api.POST("/emails/:id/forward", s.forwardHandler)
	api.POST("/emails/:id/archive", s.archiveHandler)
	api.DELETE("/emails/:id", s.deleteHandler)
	api.PATCH("/emails/:id/mark", s.markHandler)
	api.POST("/emails/:id/summarize", s.summarizeHandler)
	api.POST("/emails/:id/analyze-priority", s.analyzePriorityHandler)
	api.POST("/emails/:id/generate-reply", s.generateReplyHandler)
	api.POST("/send-email", s.sendEmailHandler)

	// 批量操作
	api.POST("/emails/batch/archive", s.batchHandler(nlu.IntentBatchArchive))
	api.POST("/emails/batch/delete", s.batchHandler(nlu.IntentBatchDelete))
	api.POST("/emails/batch/forward", s.batchHandler(nlu.IntentBatchForward))
	api.POST("/emails/batch/mark", s.batchHandler(nlu.IntentBatchMark))
	api.POST("/emails/batch/summarize", s.batchHandler(nlu.IntentBatchSummarize))

	// 历史查询
	api.GET("/history", s.historyHandler)

	s.router = router
	return s
}

// Start 启动服务器，阻塞到服务器退出
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.Web.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      120 * time.Second, // 生成类请求耗时较长
		IdleTimeout:       60 * time.Second,
	}

	logger.Info().Int("port", s.cfg.Web.Port).Msg("邮件助手服务器启动")

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("服务器错误: %w", err)
	}
	return nil
}

// Stop 关停服务器并断开所有会话
func (s *Server) Stop(ctx context.Context) error {
	s.registry.CloseAll()

	if s.server == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("关闭服务器失败: %w", err)
	}
	logger.Info().Msg("邮件助手服务器已停止")
	return nil
}

// Router 暴露给测试
func (s *Server) Router() http.Handler {
	return s.router
}

// loggerMiddleware 日志中间件，为每个请求生成 trace id
func loggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		traceID := uuid.NewString()
		ctx := logger.WithTraceIDContext(c.Request.Context(), traceID)
		c.Request = c.Request.WithContext(ctx)
		c.Header("X-Trace-Id", traceID)

		c.Next()

		logger.Info().
			Str("trace_id", traceID).
			Int("status", c.Writer.Status()).
			Str("method", c.Request.Method).
			Str("path", path).
			Dur("latency", time.Since(start)).
			Str("ip", c.ClientIP()).
			Msg("HTTP 请求")
	}
}

// healthHandler 健康检查
func healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().Unix(),
	})
}
