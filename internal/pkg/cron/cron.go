package cron

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/qs3c/vendor_portal_server/internal/service"
)

// ReminderProcessor 投递到期的续费提醒
type ReminderProcessor interface {
	ProcessDue(ctx context.Context, now time.Time) (service.BatchResult, error)
}

// StatusSweeper 持久化会员推导状态并登记过期通知
type StatusSweeper interface {
	SweepStatuses(ctx context.Context) (service.SweepResult, error)
}

type Service struct {
	reminders ReminderProcessor
	sweeper   StatusSweeper
	interval  time.Duration
	clock     func() time.Time
	logger    *slog.Logger

	stopOnce sync.Once
	stopChan chan struct{}
	wg       sync.WaitGroup
}

func NewService(reminders ReminderProcessor, sweeper StatusSweeper, interval time.Duration, logger *slog.Logger) *Service {
	if interval <= 0 {
		interval = time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		reminders: reminders,
		sweeper:   sweeper,
		interval:  interval,
		clock:     time.Now,
		logger:    logger,
		stopChan:  make(chan struct{}),
	}
}

// WithClock 替换时钟，补跑或测试时使用
func (s *Service) WithClock(clock func() time.Time) *Service {
	s.clock = clock
	return s
}

// Start 启动定时任务
func (s *Service) Start() {
	s.wg.Add(2)
	go s.runReminders()
	go s.runDailySweep()
	s.logger.Info("cron service started", "reminder_interval", s.interval.String())
}

// Stop 停止定时任务并等待正在执行的批次结束
func (s *Service) Stop() {
	s.stopOnce.Do(func() { close(s.stopChan) })
	s.wg.Wait()
	s.logger.Info("cron service stopped")
}

// runReminders 按固定间隔处理到期提醒
func (s *Service) runReminders() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.processReminders(context.Background())
		}
	}
}

// runDailySweep 每天 UTC 零点刷新会员状态
func (s *Service) runDailySweep() {
	defer s.wg.Done()
	now := s.clock().UTC()
	nextMidnight := time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, time.UTC)
	timer := time.NewTimer(nextMidnight.Sub(now))

	for {
		select {
		case <-s.stopChan:
			timer.Stop()
			return
		case <-timer.C:
			s.sweep(context.Background())
			timer.Reset(24 * time.Hour)
		}
	}
}

func (s *Service) processReminders(ctx context.Context) (service.BatchResult, error) {
	if s.reminders == nil {
		return service.BatchResult{}, nil
	}
	result, err := s.reminders.ProcessDue(ctx, s.clock())
	if err != nil {
		s.logger.Error("reminder batch failed", "error", err)
		return result, err
	}
	if result.Processed > 0 {
		s.logger.Info("reminder batch finished",
			"processed", result.Processed,
			"sent", result.Sent,
			"failed", result.Failed,
			"retried", result.Retried,
			"skipped", result.Skipped,
		)
	}
	return result, nil
}

func (s *Service) sweep(ctx context.Context) (service.SweepResult, error) {
	if s.sweeper == nil {
		return service.SweepResult{}, nil
	}
	result, err := s.sweeper.SweepStatuses(ctx)
	if err != nil {
		s.logger.Error("status sweep failed", "error", err)
		return result, err
	}
	s.logger.Info("status sweep finished",
		"scanned", result.Scanned,
		"updated", result.Updated,
		"expiry_scheduled", result.ExpiryScheduled,
	)
	return result, nil
}

// RunNow 立即执行一次状态刷新和提醒投递；先刷新，使新登记的过期通知在同一轮发出
func (s *Service) RunNow(ctx context.Context) (service.SweepResult, service.BatchResult, error) {
	swept, err := s.sweep(ctx)
	if err != nil {
		return swept, service.BatchResult{}, err
	}
	batch, err := s.processReminders(ctx)
	return swept, batch, err
}
