package model

import "time"

// NotificationLog 一次已送达提醒的历史记录
type NotificationLog struct {
	ID           int64     `json:"id"`
	EventID      string    `json:"event_id"`
	UserID       int64     `json:"user_id"`
	MetadataID   int64     `json:"metadata_id"`
	MessageID    string    `json:"message_id"`
	Recipient    string    `json:"recipient"`
	Subject      string    `json:"subject"`
	ScheduledFor time.Time `json:"scheduled_for"`
	DeliveredAt  time.Time `json:"delivered_at"`
	CreatedAt    time.Time `json:"created_at"`
}
