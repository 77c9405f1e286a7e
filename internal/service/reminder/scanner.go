// Package reminder finds due reminders, sends them and marks them delivered.
package reminder

import (
	"context"
	"strconv"
	"time"

	"go.uber.org/zap"

	"mailminder/internal/model"
	"mailminder/internal/notifier"
	"mailminder/pkg/logger"
	"mailminder/pkg/metrics"
	"mailminder/pkg/util"
)

const guardScope = "reminder"

// Store 由 repository.MetadataRepository 实现
type Store interface {
	FindDueUndelivered(ctx context.Context, now time.Time) ([]model.DueReminder, error)
	MarkDelivered(ctx context.Context, d model.DueReminder, deliveredAt time.Time) (bool, error)
}

// SendGuard 防止多个 worker 同时发送同一条提醒
type SendGuard interface {
	AcquireOnce(ctx context.Context, scope, id string) bool
	Release(ctx context.Context, scope, id string)
}

// FailureCounter 记录单条提醒的连续发送失败次数
type FailureCounter interface {
	IncrementAndGet(ctx context.Context, key string) (int64, error)
	Reset(ctx context.Context, key string) error
}

type ScanResult struct {
	Due     int
	Sent    int
	Failed  int
	Skipped int
	Stale   int
}

type Scanner struct {
	store    Store
	notifier notifier.Notifier
	guard    SendGuard
	failures FailureCounter
	logger   *zap.Logger
}

type Option func(*Scanner)

func WithSendGuard(g SendGuard) Option {
	return func(s *Scanner) { s.guard = g }
}

func WithFailureCounter(c FailureCounter) Option {
	return func(s *Scanner) { s.failures = c }
}

func NewScanner(store Store, n notifier.Notifier, logger *zap.Logger, opts ...Option) *Scanner {
	s := &Scanner{
		store:    store,
		notifier: n,
		guard:    util.NewDeduper(nil, 0, logger),
		failures: util.NewRetryCounter(nil, 0),
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// guardID 按提醒时间和版本区分；标记送达与重新设置都会递增版本，
// 所以重新设置同一时间的提醒也会再次发送
func guardID(d model.DueReminder) string {
	id := strconv.FormatInt(d.ID, 10)
	if d.ReminderAt != nil {
		id += "@" + strconv.FormatInt(d.ReminderAt.Unix(), 10)
	}
	return id + "#v" + strconv.Itoa(d.Version)
}

// ScanAndDeliver 处理 now 时刻所有到期未发送的提醒。
// 只有查询失败才返回 error，单条失败记录日志后留到下一轮。
func (s *Scanner) ScanAndDeliver(ctx context.Context, now time.Time) (ScanResult, error) {
	start := time.Now()
	log := logger.WithTrace(ctx, s.logger)

	due, err := s.store.FindDueUndelivered(ctx, model.WallClock(now))
	if err != nil {
		return ScanResult{}, err
	}

	res := ScanResult{Due: len(due)}
	defer func() { metrics.ObserveReminderScan(res.Due, time.Since(start)) }()

	if len(due) == 0 {
		log.Debug("No due reminders")
		return res, nil
	}
	log.Info("Processing due reminders", zap.Int("count", len(due)))

	for _, d := range due {
		if ctx.Err() != nil {
			log.Warn("Scan interrupted, remaining reminders left for next tick",
				zap.Int("remaining", len(due)-res.Sent-res.Failed-res.Skipped-res.Stale),
			)
			break
		}
		switch s.deliver(ctx, log, d) {
		case statusSent:
			res.Sent++
		case statusFailed:
			res.Failed++
		case statusSkipped:
			res.Skipped++
		case statusStale:
			res.Stale++
		}
	}

	log.Info("Reminder scan finished",
		zap.Int("due", res.Due),
		zap.Int("sent", res.Sent),
		zap.Int("failed", res.Failed),
		zap.Int("skipped", res.Skipped),
		zap.Int("stale", res.Stale),
	)
	return res, nil
}

type status string

const (
	statusSent    status = "sent"
	statusFailed  status = "failed"
	statusSkipped status = "skipped"
	statusStale   status = "stale"
)

func (s *Scanner) deliver(ctx context.Context, log *zap.Logger, d model.DueReminder) status {
	log = log.With(
		zap.Int64("user_id", d.UserID),
		zap.String("message_id", d.MessageID),
		zap.Int64("metadata_id", d.ID),
	)
	id := guardID(d)
	retryKey := util.FormatRetryKey(guardScope, id)

	if !s.guard.AcquireOnce(ctx, guardScope, id) {
		metrics.IncrementReminderProcessed(string(statusSkipped))
		return statusSkipped
	}

	msg := Compose(d)
	if err := s.notifier.Send(ctx, msg.To, msg.Subject, msg.Body); err != nil {
		s.guard.Release(ctx, guardScope, id)
		s.logFailure(ctx, log, retryKey, "send", err)
		return statusFailed
	}

	flipped, err := s.store.MarkDelivered(ctx, d, model.WallClock(time.Now()))
	if err != nil {
		// 邮件已发出但未落库，下一轮会重发
		s.guard.Release(ctx, guardScope, id)
		s.logFailure(ctx, log, retryKey, "mark_delivered", err)
		return statusFailed
	}
	if !flipped {
		log.Warn("Reminder changed during delivery, leaving record untouched")
		metrics.IncrementReminderProcessed(string(statusStale))
		return statusStale
	}

	if err := s.failures.Reset(ctx, retryKey); err != nil {
		log.Debug("Failed to reset failure counter", zap.Error(err))
	}
	log.Info("Reminder delivered", zap.String("recipient", msg.To))
	metrics.IncrementReminderProcessed(string(statusSent))
	return statusSent
}

func (s *Scanner) logFailure(ctx context.Context, log *zap.Logger, retryKey, stage string, err error) {
	fields := []zap.Field{zap.String("stage", stage), zap.Error(err)}

	attempt, cerr := s.failures.IncrementAndGet(ctx, retryKey)
	if cerr == nil && attempt > 0 {
		fields = append(fields, zap.Int64("attempt", attempt))
	}
	retryable, class := util.IsRetryableError(err)
	fields = append(fields, zap.String("error_type", class), zap.Bool("retryable", retryable))

	log.Error("Reminder delivery failed, will retry next tick", fields...)
	metrics.IncrementReminderProcessed(string(statusFailed))
}
