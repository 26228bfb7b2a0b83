package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/lLiuRunze/mail-agent/internal/config"
	"github.com/lLiuRunze/mail-agent/internal/generator"
	"github.com/lLiuRunze/mail-agent/internal/history"
	"github.com/lLiuRunze/mail-agent/internal/logger"
	"github.com/lLiuRunze/mail-agent/internal/metrics"
	"github.com/lLiuRunze/mail-agent/internal/web"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	var (
		configPath = flag.String("c", "mail-agent.yml", "配置文件路径")
		version    = flag.Bool("version", false, "显示版本信息")
	)
	flag.Parse()

	if *version {
		fmt.Printf("mail-agent version %s (built %s)\n", Version, BuildTime)
		os.Exit(0)
	}

	// 加载配置
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	// 初始化日志
	logger.Init(logger.LogConfig{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	log.Info().
		Str("version", Version).
		Str("build_time", BuildTime).
		Msg("邮件助手启动")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 配置热更新：目前只支持日志级别
	if err := config.Watch(*configPath, func(updated *config.Config) error {
		logger.SetLevel(updated.Log.Level)
		return nil
	}); err != nil {
		log.Warn().Err(err).Msg("配置热更新不可用")
	}

	// 指标
	var exporter *metrics.Exporter
	if cfg.Metrics.Enabled {
		exporter = metrics.NewExporter()
		mux := http.NewServeMux()
		mux.Handle(cfg.Metrics.Path, exporter.Handler())

		metricsServer := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Metrics.Port),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			log.Info().Int("port", cfg.Metrics.Port).Str("path", cfg.Metrics.Path).Msg("指标服务器启动")
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error().Err(err).Msg("指标服务器错误")
			}
		}()
	}

	// 指令历史
	var hist history.Recorder
	if cfg.History.Enabled {
		recorder, err := history.NewSQLiteRecorder(cfg.History.DSN)
		if err != nil {
			log.Fatal().Err(err).Msg("初始化历史存储失败")
		}
		defer recorder.Close()
		hist = recorder
	}

	// 内容生成服务
	gen := generator.NewDeepSeekClient(cfg.Generator, exporter)

	// HTTP 服务器
	server := web.NewServer(cfg, gen, hist, exporter)
	go func() {
		if err := server.Start(ctx); err != nil {
			log.Error().Err(err).Msg("服务器启动失败")
			cancel()
		}
	}()

	// 等待信号
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		log.Info().Str("signal", sig.String()).Msg("收到退出信号")
	case <-ctx.Done():
		log.Info().Msg("上下文取消")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("关闭服务器失败")
	}

	log.Info().Msg("邮件助手已退出")
}
