package mqhandler

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	mqcontract "mailminder/contracts/mq"
	"mailminder/internal/model"
	"mailminder/pkg/logger"
)

// QueueReminderDeliveredLog 投递历史消费者的队列名
const QueueReminderDeliveredLog = "reminder.delivered.log.q"

const dedupScope = "reminder_delivered_log"

// LogStore 由 repository.NotificationLogRepository 实现
type LogStore interface {
	Insert(ctx context.Context, l *model.NotificationLog) (bool, error)
}

type Deduper interface {
	AcquireOnce(ctx context.Context, scope, id string) bool
	Release(ctx context.Context, scope, id string)
}

type ReminderDeliveredHandler struct {
	store   LogStore
	deduper Deduper
	logger  *zap.Logger
}

func NewReminderDeliveredHandler(store LogStore, deduper Deduper, logger *zap.Logger) *ReminderDeliveredHandler {
	return &ReminderDeliveredHandler{
		store:   store,
		deduper: deduper,
		logger:  logger,
	}
}

// HandleReminderDelivered writes one history row per event. Redelivered
// events are dropped by the Redis check first and by the event_id unique
// key second.
func (h *ReminderDeliveredHandler) HandleReminderDelivered(ctx context.Context, raw json.RawMessage) error {
	var p mqcontract.ReminderDeliveredPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		h.logger.Error("Failed to unmarshal reminder delivered payload", zap.Error(err))
		return err
	}
	if p.EventID == "" {
		return fmt.Errorf("reminder delivered event without event_id")
	}

	log := logger.WithTrace(ctx, h.logger).With(
		zap.String("event_id", p.EventID),
		zap.Int64("user_id", p.UserID),
		zap.String("message_id", p.MessageID),
	)

	if !h.deduper.AcquireOnce(ctx, dedupScope, p.EventID) {
		return nil
	}

	inserted, err := h.store.Insert(ctx, &model.NotificationLog{
		EventID:      p.EventID,
		UserID:       p.UserID,
		MetadataID:   p.MetadataID,
		MessageID:    p.MessageID,
		Recipient:    p.Recipient,
		Subject:      p.Subject,
		ScheduledFor: p.ScheduledFor,
		DeliveredAt:  p.DeliveredAt,
	})
	if err != nil {
		h.deduper.Release(ctx, dedupScope, p.EventID)
		log.Error("Failed to write delivery history", zap.Error(err))
		return err
	}

	if !inserted {
		log.Debug("Delivery history already recorded")
		return nil
	}
	log.Info("Delivery history recorded")
	return nil
}
