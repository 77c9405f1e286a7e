package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"mailminder/internal/model"
	"mailminder/pkg/otel"
)

type NotificationLogRepository struct {
	db *pgxpool.Pool
}

func NewNotificationLogRepository(db *pgxpool.Pool) *NotificationLogRepository {
	return &NotificationLogRepository{db: db}
}

// Insert records a delivery. Re-inserting the same event id is a no-op and
// reports inserted=false.
func (r *NotificationLogRepository) Insert(ctx context.Context, l *model.NotificationLog) (bool, error) {
	query := `
		INSERT INTO notifications_log
			(event_id, user_id, metadata_id, message_id, recipient, subject, scheduled_for, delivered_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (event_id) DO NOTHING
	`
	var inserted bool
	err := otel.Query(ctx, "insert", "notifications_log", query, func(ctx context.Context) error {
		tag, err := r.db.Exec(ctx, query,
			l.EventID, l.UserID, l.MetadataID, l.MessageID,
			l.Recipient, l.Subject, l.ScheduledFor, l.DeliveredAt,
		)
		inserted = tag.RowsAffected() == 1
		return err
	})
	if err != nil {
		return false, fmt.Errorf("insert notification log: %w", err)
	}
	return inserted, nil
}

// ListByUser returns the newest deliveries first.
func (r *NotificationLogRepository) ListByUser(ctx context.Context, userID int64, limit int) ([]model.NotificationLog, error) {
	query := `
		SELECT id, event_id, user_id, metadata_id, message_id, recipient, subject,
		       scheduled_for, delivered_at, created_at
		FROM notifications_log
		WHERE user_id = $1
		ORDER BY delivered_at DESC
		LIMIT $2
	`
	logs := []model.NotificationLog{}
	err := otel.Query(ctx, "select", "notifications_log", query, func(ctx context.Context) error {
		rows, err := r.db.Query(ctx, query, userID, limit)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var l model.NotificationLog
			if err := rows.Scan(
				&l.ID, &l.EventID, &l.UserID, &l.MetadataID, &l.MessageID, &l.Recipient,
				&l.Subject, &l.ScheduledFor, &l.DeliveredAt, &l.CreatedAt,
			); err != nil {
				return err
			}
			logs = append(logs, l)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("list notification log: %w", err)
	}
	return logs, nil
}
