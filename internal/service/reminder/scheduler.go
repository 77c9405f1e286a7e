package reminder

import (
	"context"
	"time"

	"go.uber.org/zap"

	"mailminder/pkg/trace"
)

// Scheduler 按固定周期触发扫描
type Scheduler struct {
	scanner  *Scanner
	interval time.Duration
	now      func() time.Time
	logger   *zap.Logger
}

func NewScheduler(scanner *Scanner, interval time.Duration, logger *zap.Logger) *Scheduler {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Scheduler{
		scanner:  scanner,
		interval: interval,
		now:      time.Now,
		logger:   logger,
	}
}

// Run 启动后立即扫描一次，之后每个周期扫描一次，直到 ctx 取消
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info("Reminder scheduler started", zap.Duration("interval", s.interval))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Reminder scheduler stopped")
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	ctx, traceID := trace.Ensure(ctx)
	if _, err := s.scanner.ScanAndDeliver(ctx, s.now()); err != nil && ctx.Err() == nil {
		s.logger.Error("Reminder scan failed", zap.String("trace_id", traceID), zap.Error(err))
	}
}
