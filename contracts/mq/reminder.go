package mq

import "time"

const (
	RoutingKeyReminderDelivered = "reminder.delivered"
)

// ReminderDeliveredPayload 提醒送达后与 delivered 标记同一事务写入 outbox
type ReminderDeliveredPayload struct {
	EventID      string    `json:"event_id"`
	TraceID      string    `json:"trace_id,omitempty"`
	MetadataID   int64     `json:"metadata_id"`
	UserID       int64     `json:"user_id"`
	MessageID    string    `json:"message_id"`
	Recipient    string    `json:"recipient"`
	Subject      string    `json:"subject"`
	ScheduledFor time.Time `json:"scheduled_for"`
	DeliveredAt  time.Time `json:"delivered_at"`
}
