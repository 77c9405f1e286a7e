package reminder

import (
	"strings"

	"mailminder/internal/model"
)

const subjectPrefix = "MailMinder Reminder: "

// Message 一封待发送的提醒邮件
type Message struct {
	To      string
	Subject string
	Body    string
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// Compose 生成提醒邮件；备注为空时省略备注行
func Compose(d model.DueReminder) Message {
	greeting := "there"
	if d.UserDisplayName != nil {
		greeting = *d.UserDisplayName
	}
	subject := deref(d.Subject)

	var b strings.Builder
	b.WriteString("Hi " + greeting + ",\n\n")
	b.WriteString("This is a reminder from MailMinder regarding your email:\n")
	b.WriteString("Subject: " + subject + "\n")
	b.WriteString("From: " + deref(d.Sender) + "\n")
	if notes := deref(d.Notes); notes != "" {
		b.WriteString("Your Notes: " + notes + "\n")
	}
	if d.ReminderAt != nil {
		date, clock := model.FormatReminderTime(*d.ReminderAt)
		b.WriteString("\nIt was scheduled for: " + date + " at " + clock)
	}
	b.WriteString("\n\nThanks,\nThe MailMinder Team")

	return Message{
		To:      d.UserEmail,
		Subject: subjectPrefix + subject,
		Body:    b.String(),
	}
}
