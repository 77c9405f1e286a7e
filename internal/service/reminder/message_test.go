package reminder

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"mailminder/internal/model"
)

func TestCompose(t *testing.T) {
	when := time.Date(2025, 3, 1, 8, 30, 0, 0, time.UTC)

	t.Run("with display name and notes", func(t *testing.T) {
		d := due(1, "ann@example.com", &when)
		d.UserDisplayName = strPtr("Ann")
		d.Notes = strPtr("pay before Friday")

		msg := Compose(d)
		assert.Equal(t, "ann@example.com", msg.To)
		assert.Equal(t, "MailMinder Reminder: Invoice", msg.Subject)
		assert.Equal(t, "Hi Ann,\n\n"+
			"This is a reminder from MailMinder regarding your email:\n"+
			"Subject: Invoice\n"+
			"From: billing@example.com\n"+
			"Your Notes: pay before Friday\n"+
			"\nIt was scheduled for: 2025-03-01 at 08:30"+
			"\n\nThanks,\nThe MailMinder Team", msg.Body)
	})

	t.Run("without name or notes", func(t *testing.T) {
		d := due(1, "ann@example.com", &when)
		d.Notes = strPtr("")

		msg := Compose(d)
		assert.Contains(t, msg.Body, "Hi there,")
		assert.NotContains(t, msg.Body, "Your Notes")
	})

	t.Run("missing subject", func(t *testing.T) {
		d := model.DueReminder{EmailMetadata: model.EmailMetadata{ReminderAt: &when}}
		assert.Equal(t, "MailMinder Reminder: ", Compose(d).Subject)
	})
}
