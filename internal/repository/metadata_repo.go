package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	mqcontract "mailminder/contracts/mq"
	"mailminder/internal/model"
	"mailminder/pkg/otel"
	"mailminder/pkg/outbox"
	"mailminder/pkg/trace"
)

type MetadataRepository struct {
	db     *pgxpool.Pool
	outbox *outbox.Repository
	logger *zap.Logger
}

func NewMetadataRepository(db *pgxpool.Pool, outboxRepo *outbox.Repository, logger *zap.Logger) *MetadataRepository {
	return &MetadataRepository{
		db:     db,
		outbox: outboxRepo,
		logger: logger,
	}
}

const metadataColumns = `m.id, m.user_id, m.message_id, m.priority, m.reminder_at, m.notes,
	m.subject, m.sender, m.delivered, m.delivered_at, m.version, m.created_at, m.updated_at`

// scanMetadata reads metadataColumns followed by any extra destinations.
func scanMetadata(row pgx.Row, m *model.EmailMetadata, extra ...any) error {
	var priority *string
	dest := []any{
		&m.ID, &m.UserID, &m.MessageID, &priority, &m.ReminderAt, &m.Notes,
		&m.Subject, &m.Sender, &m.Delivered, &m.DeliveredAt, &m.Version, &m.CreatedAt, &m.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return err
	}
	m.Priority = nil
	if priority != nil {
		p := model.Priority(*priority)
		m.Priority = &p
	}
	return nil
}

func priorityParam(p *model.Priority) *string {
	if p == nil {
		return nil
	}
	s := string(*p)
	return &s
}

// FindByUserAndMessageID returns ErrNotFound when no record exists.
func (r *MetadataRepository) FindByUserAndMessageID(ctx context.Context, userID int64, messageID string) (*model.EmailMetadata, error) {
	query := `SELECT ` + metadataColumns + ` FROM email_metadata m WHERE m.user_id = $1 AND m.message_id = $2`

	var m model.EmailMetadata
	err := otel.Query(ctx, "select", "email_metadata", query, func(ctx context.Context) error {
		return scanMetadata(r.db.QueryRow(ctx, query, userID, messageID), &m)
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query metadata: %w", err)
	}
	return &m, nil
}

// FindByUser returns every record owned by userID, oldest first.
func (r *MetadataRepository) FindByUser(ctx context.Context, userID int64) ([]model.EmailMetadata, error) {
	query := `SELECT ` + metadataColumns + ` FROM email_metadata m WHERE m.user_id = $1 ORDER BY m.id`

	records := []model.EmailMetadata{}
	err := otel.Query(ctx, "select", "email_metadata", query, func(ctx context.Context) error {
		rows, err := r.db.Query(ctx, query, userID)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var m model.EmailMetadata
			if err := scanMetadata(rows, &m); err != nil {
				return err
			}
			records = append(records, m)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("list metadata: %w", err)
	}
	return records, nil
}

// FindDueUndelivered returns records whose reminder is at or before now and
// not yet delivered, with the owner's address.
func (r *MetadataRepository) FindDueUndelivered(ctx context.Context, now time.Time) ([]model.DueReminder, error) {
	query := `
		SELECT ` + metadataColumns + `, u.email, u.display_name
		FROM email_metadata m
		JOIN users u ON u.id = m.user_id
		WHERE m.reminder_at IS NOT NULL
		AND m.delivered = FALSE
		AND m.reminder_at <= $1
		ORDER BY m.reminder_at, m.id
	`

	due := []model.DueReminder{}
	err := otel.Query(ctx, "select_due", "email_metadata", query, func(ctx context.Context) error {
		rows, err := r.db.Query(ctx, query, now)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var d model.DueReminder
			if err := scanMetadata(rows, &d.EmailMetadata, &d.UserEmail, &d.UserDisplayName); err != nil {
				return err
			}
			due = append(due, d)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("query due reminders: %w", err)
	}
	return due, nil
}

// Save inserts a new record or updates an existing one.
// Insert loses a creation race with ErrDuplicate; update checks m.Version
// and returns ErrVersionConflict when the row moved on. On success m carries
// the stored ID, version and timestamps.
func (r *MetadataRepository) Save(ctx context.Context, m *model.EmailMetadata) error {
	if m.IsNew() {
		return r.insert(ctx, m)
	}
	return r.update(ctx, m)
}

func (r *MetadataRepository) insert(ctx context.Context, m *model.EmailMetadata) error {
	query := `
		INSERT INTO email_metadata
			(user_id, message_id, priority, reminder_at, notes, subject, sender, delivered)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (user_id, message_id) DO NOTHING
		RETURNING id, version, created_at, updated_at
	`
	err := otel.Query(ctx, "insert", "email_metadata", query, func(ctx context.Context) error {
		return r.db.QueryRow(ctx, query,
			m.UserID, m.MessageID, priorityParam(m.Priority), m.ReminderAt,
			m.Notes, m.Subject, m.Sender, m.Delivered,
		).Scan(&m.ID, &m.Version, &m.CreatedAt, &m.UpdatedAt)
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("insert metadata: %w", err)
	}

	r.logger.Debug("Metadata created",
		zap.Int64("user_id", m.UserID),
		zap.String("message_id", m.MessageID),
		zap.Int64("id", m.ID),
	)
	return nil
}

func (r *MetadataRepository) update(ctx context.Context, m *model.EmailMetadata) error {
	query := `
		UPDATE email_metadata
		SET priority = $3, reminder_at = $4, notes = $5, subject = $6, sender = $7,
		    delivered = $8, delivered_at = CASE WHEN $8 THEN delivered_at ELSE NULL END,
		    version = version + 1, updated_at = NOW()
		WHERE id = $1 AND version = $2
		RETURNING version, updated_at
	`
	err := otel.Query(ctx, "update", "email_metadata", query, func(ctx context.Context) error {
		return r.db.QueryRow(ctx, query,
			m.ID, m.Version, priorityParam(m.Priority), m.ReminderAt,
			m.Notes, m.Subject, m.Sender, m.Delivered,
		).Scan(&m.Version, &m.UpdatedAt)
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrVersionConflict
	}
	if err != nil {
		return fmt.Errorf("update metadata: %w", err)
	}
	if !m.Delivered {
		m.DeliveredAt = nil
	}
	return nil
}

// MarkDelivered flips delivered for d in one transaction together with a
// reminder.delivered outbox event. The flip only applies while the row is
// still undelivered with the same reminder time; otherwise it reports false
// and writes nothing.
func (r *MetadataRepository) MarkDelivered(ctx context.Context, d model.DueReminder, deliveredAt time.Time) (bool, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin mark delivered: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	query := `
		UPDATE email_metadata
		SET delivered = TRUE, delivered_at = $3, version = version + 1, updated_at = NOW()
		WHERE id = $1 AND delivered = FALSE AND reminder_at = $2
	`
	var flipped bool
	err = otel.Query(ctx, "mark_delivered", "email_metadata", query, func(ctx context.Context) error {
		tag, err := tx.Exec(ctx, query, d.ID, d.ReminderAt, deliveredAt)
		flipped = tag.RowsAffected() == 1
		return err
	})
	if err != nil {
		return false, fmt.Errorf("mark delivered: %w", err)
	}
	if !flipped {
		return false, nil
	}

	payload := mqcontract.ReminderDeliveredPayload{
		EventID:     uuid.NewString(),
		TraceID:     trace.FromContext(ctx),
		MetadataID:  d.ID,
		UserID:      d.UserID,
		MessageID:   d.MessageID,
		Recipient:   d.UserEmail,
		DeliveredAt: deliveredAt,
	}
	if d.Subject != nil {
		payload.Subject = *d.Subject
	}
	if d.ReminderAt != nil {
		payload.ScheduledFor = *d.ReminderAt
	}

	aggregateID := d.ID
	if err := outbox.InsertEventInTx(ctx, tx, r.outbox, "email_metadata", &aggregateID,
		mqcontract.RoutingKeyReminderDelivered, payload); err != nil {
		return false, err
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit mark delivered: %w", err)
	}
	return true, nil
}

// Delete removes one record owned by userID.
func (r *MetadataRepository) Delete(ctx context.Context, userID int64, messageID string) error {
	query := `DELETE FROM email_metadata WHERE user_id = $1 AND message_id = $2`
	var affected int64
	err := otel.Query(ctx, "delete", "email_metadata", query, func(ctx context.Context) error {
		tag, err := r.db.Exec(ctx, query, userID, messageID)
		affected = tag.RowsAffected()
		return err
	})
	if err != nil {
		return fmt.Errorf("delete metadata: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
