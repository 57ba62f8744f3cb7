package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/qs3c/vendor_portal_server/config"
	"github.com/qs3c/vendor_portal_server/internal/database"
	"github.com/qs3c/vendor_portal_server/internal/pkg/email"
	"github.com/qs3c/vendor_portal_server/internal/pkg/logger"
	"github.com/qs3c/vendor_portal_server/internal/pkg/notify"
	"github.com/qs3c/vendor_portal_server/internal/pkg/queue"
	"github.com/qs3c/vendor_portal_server/internal/worker"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	// 加载配置
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	lg := logger.New(cfg.Log)
	slog.SetDefault(lg)

	// 初始化 Redis
	rdb, err := database.NewRedis(&cfg.Redis)
	if err != nil {
		lg.Error("failed to connect redis", "error", err)
		os.Exit(1)
	}
	lg.Info("redis connected")

	// 未配置 SMTP 时只打印通知
	var dispatcher notify.Dispatcher
	mailer := email.NewService(&cfg.Email)
	if mailer.Configured() {
		dispatcher = notify.NewEmailDispatcher(mailer, notify.BreakerSettings{}, lg)
	} else {
		lg.Warn("smtp not configured, notifications will only be logged")
		dispatcher = notify.NewLogDispatcher(lg)
	}

	notifications := queue.NewQueue(rdb, cfg.Queue.NotificationQueue)
	processor := worker.NewProcessor(notifications, dispatcher, rdb, cfg.Queue, lg)

	// 创建 context 用于优雅关闭
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	lg.Info("worker started", "queue", notifications.Name(), "max_workers", cfg.Queue.MaxWorkers)
	processor.Run(ctx, cfg.Queue.MaxWorkers, 5*time.Second)
	lg.Info("worker shutdown complete")
}
