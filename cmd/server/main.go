package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/qs3c/vendor_portal_server/config"
	"github.com/qs3c/vendor_portal_server/internal/api"
	"github.com/qs3c/vendor_portal_server/internal/api/handler"
	"github.com/qs3c/vendor_portal_server/internal/database"
	"github.com/qs3c/vendor_portal_server/internal/pkg/cron"
	"github.com/qs3c/vendor_portal_server/internal/pkg/logger"
	"github.com/qs3c/vendor_portal_server/internal/pkg/metrics"
	"github.com/qs3c/vendor_portal_server/internal/pkg/notify"
	"github.com/qs3c/vendor_portal_server/internal/pkg/oss"
	"github.com/qs3c/vendor_portal_server/internal/pkg/payment"
	"github.com/qs3c/vendor_portal_server/internal/pkg/pubsub"
	"github.com/qs3c/vendor_portal_server/internal/pkg/queue"
	"github.com/qs3c/vendor_portal_server/internal/pkg/staging"
	"github.com/qs3c/vendor_portal_server/internal/pkg/ws"
	"github.com/qs3c/vendor_portal_server/internal/repository"
	"github.com/qs3c/vendor_portal_server/internal/service"
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

	// 初始化数据库
	db, err := database.NewMySQL(&cfg.Database)
	if err != nil {
		lg.Error("failed to connect database", "error", err)
		os.Exit(1)
	}
	if err := database.Migrate(db); err != nil {
		lg.Error("failed to migrate database", "error", err)
		os.Exit(1)
	}
	lg.Info("database connected")

	// 初始化 Redis
	rdb, err := database.NewRedis(&cfg.Redis)
	if err != nil {
		lg.Error("failed to connect redis", "error", err)
		os.Exit(1)
	}
	lg.Info("redis connected")

	// 指标
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	rt := service.Runtime{Logger: lg, Metrics: metrics.New(registry)}

	// 文件存储：配置了 OSS 用阿里云，否则落盘
	storage, err := oss.NewStorage(&cfg.OSS)
	if err != nil {
		lg.Error("failed to init storage", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 通知走队列，由 worker 发送
	dispatcher := notify.NewQueueDispatcher(queue.NewQueue(rdb, cfg.Queue.NotificationQueue))

	// 状态推送：发布到 Redis，本进程订阅后转发给 websocket
	publisher := pubsub.NewPublisher(rdb)
	hub := ws.NewHub(lg)
	go func() {
		if err := pubsub.NewSubscriber(rdb).Subscribe(ctx, hub.RelayStatus); err != nil && !errors.Is(err, context.Canceled) {
			lg.Error("status subscriber stopped", "error", err)
		}
	}()

	ttl := time.Duration(cfg.Registration.StagingTTLMinutes) * time.Minute
	staged := staging.NewStore(rdb, cfg.Registration.StagingPrefix, ttl)
	orders := staging.NewStore(rdb, "payment_order:", ttl)
	gateway := payment.NewLocalGateway(cfg.Payment)

	// 初始化 Service
	repos := repository.NewRepositories(db)
	sections := service.NewSectionService(repos, cfg, rt)
	applications := service.NewApplicationService(repos, sections, publisher, cfg, rt)
	documents := service.NewDocumentService(repos, storage, cfg, rt)
	reminders := service.NewReminderService(repos, dispatcher, cfg, rt)
	subscriptions := service.NewSubscriptionService(repos, reminders, dispatcher, cfg, rt)
	reviews := service.NewReviewService(repos, applications, subscriptions, dispatcher, cfg, rt)
	registration := service.NewRegistrationService(repos, applications, gateway, staged, orders, cfg, rt)
	renewals := service.NewRenewalService(subscriptions, gateway, orders, cfg, rt)
	auth := service.NewAuthService(service.NewCredentialStore(cfg, repos.Users), cfg, rt)
	certificates := service.NewCertificateService(repos, subscriptions, rt)

	// 后台任务：提醒投递与每日状态刷新
	jobs := cron.NewService(reminders, subscriptions, time.Duration(cfg.Reminder.IntervalMinutes)*time.Minute, lg)
	jobs.Start()
	defer jobs.Stop()

	// 初始化 Router
	router := api.NewRouter(api.Handlers{
		Auth:         handler.NewAuthHandler(auth),
		Application:  handler.NewApplicationHandler(applications, registration, documents, cfg),
		Admin:        handler.NewAdminHandler(applications, documents, sections, reviews, subscriptions, jobs),
		Subscription: handler.NewSubscriptionHandler(subscriptions, renewals),
		Certificate:  handler.NewCertificateHandler(certificates),
		WebSocket:    handler.NewWebSocketHandler(hub, cfg.JWT.Secret, cfg.CORS.AllowedOrigins),
	}, cfg).WithMetrics(registry)
	if local, ok := storage.(*oss.LocalStorage); ok {
		router.WithLocalFiles(local.Root())
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router.Setup(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		lg.Info("server starting", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.Error("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	lg.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		lg.Error("server shutdown failed", "error", err)
	}
}
