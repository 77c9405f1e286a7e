package model

import "time"

// EmailMetadata 用户对一封外部邮件的本地标注，(UserID, MessageID) 唯一
type EmailMetadata struct {
	ID          int64      `json:"id"`
	UserID      int64      `json:"user_id"`
	MessageID   string     `json:"message_id"`
	Priority    *Priority  `json:"priority,omitempty"`
	ReminderAt  *time.Time `json:"reminder_at,omitempty"`
	Notes       *string    `json:"notes,omitempty"`
	Subject     *string    `json:"subject,omitempty"`
	Sender      *string    `json:"sender,omitempty"`
	Delivered   bool       `json:"delivered"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`
	Version     int        `json:"version"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// IsNew 尚未持久化
func (m *EmailMetadata) IsNew() bool {
	return m.ID == 0
}

// DueReminder 扫描结果：到期记录及其所属用户的收件信息
type DueReminder struct {
	EmailMetadata
	UserEmail       string
	UserDisplayName *string
}
