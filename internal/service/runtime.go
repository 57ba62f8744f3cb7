package service

import (
	"log/slog"
	"time"

	"github.com/qs3c/vendor_portal_server/internal/pkg/metrics"
)

// Runtime 各服务共享的运行时依赖，零值可用
type Runtime struct {
	Logger  *slog.Logger
	Metrics *metrics.Metrics
	Clock   func() time.Time
}

func (rt Runtime) now() time.Time {
	if rt.Clock != nil {
		return rt.Clock().UTC()
	}
	return time.Now().UTC()
}

func (rt Runtime) log() *slog.Logger {
	if rt.Logger != nil {
		return rt.Logger
	}
	return slog.Default()
}

// FixedClock 固定时间，用于测试和补跑任务
func FixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}
