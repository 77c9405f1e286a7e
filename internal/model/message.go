package model

import "time"

// MessageSummary 邮件源返回的一封邮件的摘要
type MessageSummary struct {
	ID      string    `json:"id"`
	Subject string    `json:"subject"`
	Sender  string    `json:"sender"`
	Snippet string    `json:"snippet"`
	Date    time.Time `json:"date"`
}

// EnrichedMessage 邮件摘要叠加本地标注后的结果
type EnrichedMessage struct {
	MessageSummary
	Priority   Priority   `json:"priority"`
	ReminderAt *time.Time `json:"reminder_at,omitempty"`
	Notes      *string    `json:"notes,omitempty"`
}
