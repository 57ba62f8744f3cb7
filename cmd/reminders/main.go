package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/qs3c/vendor_portal_server/config"
	"github.com/qs3c/vendor_portal_server/internal/database"
	"github.com/qs3c/vendor_portal_server/internal/pkg/cron"
	"github.com/qs3c/vendor_portal_server/internal/pkg/logger"
	"github.com/qs3c/vendor_portal_server/internal/pkg/notify"
	"github.com/qs3c/vendor_portal_server/internal/pkg/queue"
	"github.com/qs3c/vendor_portal_server/internal/repository"
	"github.com/qs3c/vendor_portal_server/internal/service"
)

var (
	dryRun = flag.Bool("dry-run", false, "List due reminders without sending or updating anything")
	asOf   = flag.String("as-of", "", "Run as if the current time were this value (YYYY-MM-DD or RFC3339)")
)

func main() {
	flag.Parse()

	// 加载配置
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	lg := logger.New(cfg.Log)
	slog.SetDefault(lg)

	now, err := parseAsOf(*asOf, time.Now())
	if err != nil {
		lg.Error("invalid -as-of", "value", *asOf, "error", err)
		os.Exit(2)
	}

	db, err := database.NewMySQL(&cfg.Database)
	if err != nil {
		lg.Error("failed to connect database", "error", err)
		os.Exit(1)
	}
	rdb, err := database.NewRedis(&cfg.Redis)
	if err != nil {
		lg.Error("failed to connect redis", "error", err)
		os.Exit(1)
	}

	rt := service.Runtime{Logger: lg, Clock: service.FixedClock(now)}
	repos := repository.NewRepositories(db)
	dispatcher := notify.NewQueueDispatcher(queue.NewQueue(rdb, cfg.Queue.NotificationQueue))
	reminders := service.NewReminderService(repos, dispatcher, cfg, rt)
	subscriptions := service.NewSubscriptionService(repos, reminders, dispatcher, cfg, rt)

	ctx := context.Background()
	lg.Info("reminder run", "as_of", now.Format(time.RFC3339), "dry_run", *dryRun)

	if *dryRun {
		count, err := listDue(ctx, reminders, now, os.Stdout)
		if err != nil {
			lg.Error("list due reminders failed", "error", err)
			os.Exit(1)
		}
		lg.Info("dry run complete, nothing was sent", "due", count)
		return
	}

	jobs := cron.NewService(reminders, subscriptions, 0, lg).WithClock(service.FixedClock(now))
	swept, batch, err := jobs.RunNow(ctx)
	if err != nil {
		lg.Error("reminder run failed", "error", err)
		os.Exit(1)
	}

	fmt.Println(strings.Repeat("=", 60))
	fmt.Printf("Subscriptions scanned:   %d (updated %d, expiry notices %d)\n", swept.Scanned, swept.Updated, swept.ExpiryScheduled)
	fmt.Printf("Checkpoints processed:   %d\n", batch.Processed)
	fmt.Printf("  sent %d, failed %d, retried %d, skipped %d, errors %d\n",
		batch.Sent, batch.Failed, batch.Retried, batch.Skipped, batch.Errors)
	fmt.Println(strings.Repeat("=", 60))
}

// parseAsOf 空串表示当前时间，日期按 UTC 零点处理
func parseAsOf(value string, fallback time.Time) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return fallback.UTC(), nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		return time.Time{}, fmt.Errorf("expected YYYY-MM-DD or RFC3339: %w", err)
	}
	return t.UTC(), nil
}

// listDue 打印到期的提醒节点，不修改任何状态
func listDue(ctx context.Context, reminders *service.ReminderService, now time.Time, w *os.File) (int, error) {
	count := 0
	for cp, err := range reminders.DueCheckpoints(ctx, now) {
		if err != nil {
			return count, err
		}
		count++
		fmt.Fprintf(w, "%-20s %-8s fire_at=%s expires_at=%s attempts=%d\n",
			cp.VendorID, cp.Kind,
			cp.FireAt.Format(time.RFC3339),
			cp.ExpiresAt.Format("2006-01-02"),
			cp.Attempts,
		)
	}
	return count, nil
}
