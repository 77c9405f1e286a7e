// Package metadata reconciles provider messages with the user's stored
// priority, reminder and notes.
package metadata

import (
	"context"
	"errors"
	"sort"
	"time"

	"go.uber.org/zap"

	"mailminder/internal/apperr"
	"mailminder/internal/model"
	"mailminder/internal/provider"
	"mailminder/internal/repository"
	"mailminder/pkg/logger"
)

// maxSaveAttempts bounds re-reads after a lost creation race or a stale version.
const maxSaveAttempts = 3

var errTooMuchContention = errors.New("metadata kept changing during update")

type UserStore interface {
	FindByID(ctx context.Context, id int64) (*model.User, error)
}

// Store is satisfied by repository.MetadataRepository.
type Store interface {
	FindByUserAndMessageID(ctx context.Context, userID int64, messageID string) (*model.EmailMetadata, error)
	FindByUser(ctx context.Context, userID int64) ([]model.EmailMetadata, error)
	Save(ctx context.Context, m *model.EmailMetadata) error
	Delete(ctx context.Context, userID int64, messageID string) error
}

type Service struct {
	users    UserStore
	store    Store
	provider provider.MessageProvider
	logger   *zap.Logger
	now      func() time.Time
}

func NewService(users UserStore, store Store, p provider.MessageProvider, logger *zap.Logger) *Service {
	return &Service{
		users:    users,
		store:    store,
		provider: p,
		logger:   logger,
		now:      time.Now,
	}
}

// PriorityInput subject and sender are only used when the record is created.
type PriorityInput struct {
	UserID    int64
	MessageID string
	Priority  string
	Subject   *string
	Sender    *string
}

// ScheduleInput ReminderAt is parsed with model.ParseReminderTime. A nil
// Notes clears stored notes.
type ScheduleInput struct {
	UserID     int64
	MessageID  string
	ReminderAt string
	Priority   string
	Notes      *string
	Subject    *string
	Sender     *string
}

// lookup is the outcome of reading one record: either found with a record,
// or absent.
type lookup struct {
	record *model.EmailMetadata
	found  bool
}

func (s *Service) lookup(ctx context.Context, userID int64, messageID string) (lookup, error) {
	rec, err := s.store.FindByUserAndMessageID(ctx, userID, messageID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return lookup{}, nil
	case err != nil:
		return lookup{}, err
	}
	return lookup{record: rec, found: true}, nil
}

func (s *Service) resolveUser(ctx context.Context, userID int64) (*model.User, error) {
	u, err := s.users.FindByID(ctx, userID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return nil, apperr.NotFound("user %d not found", userID)
	case err != nil:
		return nil, apperr.Internal(err, "load user")
	}
	return u, nil
}

// ListEnriched fetches the user's messages from the provider and merges them
// with stored metadata.
func (s *Service) ListEnriched(ctx context.Context, userID int64, creds provider.Credentials) ([]model.EnrichedMessage, error) {
	msgs, err := s.provider.Fetch(ctx, creds)
	if err != nil {
		if apperr.Is(err, apperr.KindUnauthenticated) {
			return nil, err
		}
		logger.WithTrace(ctx, s.logger).Error("Mail provider fetch failed",
			zap.Int64("user_id", userID),
			zap.String("provider", s.provider.Name()),
			zap.Error(err),
		)
		return nil, apperr.Unavailable(err, "mail provider unavailable")
	}
	return s.Merge(ctx, userID, msgs), nil
}

// Merge overlays stored metadata onto msgs. It never fails and never writes:
// any lookup problem returns the messages with priority none. Output order
// matches input order.
func (s *Service) Merge(ctx context.Context, userID int64, msgs []model.MessageSummary) []model.EnrichedMessage {
	log := logger.WithTrace(ctx, s.logger).With(zap.Int64("user_id", userID))

	out := make([]model.EnrichedMessage, len(msgs))
	for i, m := range msgs {
		out[i] = model.EnrichedMessage{MessageSummary: m, Priority: model.PriorityNone}
	}
	if len(msgs) == 0 {
		return out
	}

	if _, err := s.resolveUser(ctx, userID); err != nil {
		log.Warn("Returning messages without metadata: user unavailable", zap.Error(err))
		return out
	}

	records, err := s.store.FindByUser(ctx, userID)
	if err != nil {
		log.Error("Returning messages without metadata: metadata query failed", zap.Error(err))
		return out
	}

	byMessage := make(map[string]*model.EmailMetadata, len(records))
	for i := range records {
		if _, seen := byMessage[records[i].MessageID]; !seen {
			byMessage[records[i].MessageID] = &records[i]
		}
	}

	for i := range out {
		if out[i].ID == "" {
			log.Warn("Message without id, skipping metadata")
			continue
		}
		rec, ok := byMessage[out[i].ID]
		if !ok {
			continue
		}
		out[i].Priority = model.PriorityOrNone(rec.Priority)
		out[i].ReminderAt = rec.ReminderAt
		out[i].Notes = rec.Notes
		if rec.Subject != nil {
			out[i].Subject = *rec.Subject
		}
		if rec.Sender != nil {
			out[i].Sender = *rec.Sender
		}
	}
	return out
}

// SetPriority creates or updates the record's priority. Creating requires
// subject and sender; on update they are ignored.
func (s *Service) SetPriority(ctx context.Context, in PriorityInput) (*model.EmailMetadata, error) {
	if in.MessageID == "" {
		return nil, apperr.InvalidInput("message id is required")
	}
	priority, err := model.ParsePriority(in.Priority)
	if err != nil {
		return nil, apperr.InvalidInput("%s", err.Error())
	}
	if _, err := s.resolveUser(ctx, in.UserID); err != nil {
		return nil, err
	}

	create := func() (*model.EmailMetadata, error) {
		if in.Subject == nil || in.Sender == nil {
			return nil, apperr.InvalidInput("subject and sender are required for a message without metadata")
		}
		return newRecord(in.UserID, in.MessageID, in.Subject, in.Sender), nil
	}
	apply := func(rec *model.EmailMetadata) {
		rec.Priority = &priority
	}

	rec, err := s.upsert(ctx, in.UserID, in.MessageID, create, apply)
	if err != nil {
		return nil, err
	}

	logger.WithTrace(ctx, s.logger).Info("Priority set",
		zap.Int64("user_id", in.UserID),
		zap.String("message_id", in.MessageID),
		zap.String("priority", string(priority)),
	)
	return rec, nil
}

// SetScheduleAndPriority sets reminder time, priority and notes, and re-arms
// the reminder so it will be delivered again.
func (s *Service) SetScheduleAndPriority(ctx context.Context, in ScheduleInput) (*model.EmailMetadata, error) {
	if in.MessageID == "" {
		return nil, apperr.InvalidInput("message id is required")
	}
	reminderAt, err := model.ParseReminderTime(in.ReminderAt)
	if err != nil {
		return nil, apperr.InvalidInput("%s", err.Error())
	}
	priority, err := model.ParsePriority(in.Priority)
	if err != nil {
		return nil, apperr.InvalidInput("%s", err.Error())
	}
	if in.Subject == nil || in.Sender == nil {
		return nil, apperr.InvalidInput("subject and sender are required")
	}
	if _, err := s.resolveUser(ctx, in.UserID); err != nil {
		return nil, err
	}

	create := func() (*model.EmailMetadata, error) {
		return newRecord(in.UserID, in.MessageID, in.Subject, in.Sender), nil
	}
	apply := func(rec *model.EmailMetadata) {
		at := reminderAt
		rec.ReminderAt = &at
		rec.Priority = &priority
		rec.Notes = in.Notes
		rec.Delivered = false
		rec.DeliveredAt = nil
	}

	rec, err := s.upsert(ctx, in.UserID, in.MessageID, create, apply)
	if err != nil {
		return nil, err
	}

	logger.WithTrace(ctx, s.logger).Info("Reminder scheduled",
		zap.Int64("user_id", in.UserID),
		zap.String("message_id", in.MessageID),
		zap.Time("reminder_at", reminderAt),
		zap.String("priority", string(priority)),
	)
	return rec, nil
}

func newRecord(userID int64, messageID string, subject, sender *string) *model.EmailMetadata {
	subj, snd := *subject, *sender
	return &model.EmailMetadata{
		UserID:    userID,
		MessageID: messageID,
		Subject:   &subj,
		Sender:    &snd,
	}
}

// upsert reads the record, creates it when absent, applies the change and
// saves. Lost races re-read and try again.
func (s *Service) upsert(
	ctx context.Context,
	userID int64,
	messageID string,
	create func() (*model.EmailMetadata, error),
	apply func(*model.EmailMetadata),
) (*model.EmailMetadata, error) {
	for attempt := 1; attempt <= maxSaveAttempts; attempt++ {
		l, err := s.lookup(ctx, userID, messageID)
		if err != nil {
			return nil, apperr.Internal(err, "load metadata")
		}

		rec := l.record
		if !l.found {
			if rec, err = create(); err != nil {
				return nil, err
			}
		}
		apply(rec)

		err = s.store.Save(ctx, rec)
		switch {
		case err == nil:
			return rec, nil
		case errors.Is(err, repository.ErrDuplicate), errors.Is(err, repository.ErrVersionConflict):
			s.logger.Debug("Metadata changed concurrently, retrying",
				zap.Int64("user_id", userID),
				zap.String("message_id", messageID),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
		default:
			return nil, apperr.Internal(err, "save metadata")
		}
	}
	return nil, apperr.Internal(errTooMuchContention, "save metadata")
}

// ListUpcoming returns the user's reminders strictly after now, soonest first.
func (s *Service) ListUpcoming(ctx context.Context, userID int64) ([]model.EmailMetadata, error) {
	if _, err := s.resolveUser(ctx, userID); err != nil {
		return nil, err
	}

	records, err := s.store.FindByUser(ctx, userID)
	if err != nil {
		return nil, apperr.Internal(err, "list metadata")
	}

	now := model.WallClock(s.now())
	upcoming := make([]model.EmailMetadata, 0, len(records))
	for _, r := range records {
		if r.ReminderAt != nil && r.ReminderAt.After(now) {
			upcoming = append(upcoming, r)
		}
	}
	sort.SliceStable(upcoming, func(i, j int) bool {
		return upcoming[i].ReminderAt.Before(*upcoming[j].ReminderAt)
	})
	return upcoming, nil
}

// Get returns one record.
func (s *Service) Get(ctx context.Context, userID int64, messageID string) (*model.EmailMetadata, error) {
	l, err := s.lookup(ctx, userID, messageID)
	if err != nil {
		return nil, apperr.Internal(err, "load metadata")
	}
	if !l.found {
		return nil, apperr.NotFound("no metadata for message %s", messageID)
	}
	return l.record, nil
}

// Delete removes one record at the user's request.
func (s *Service) Delete(ctx context.Context, userID int64, messageID string) error {
	err := s.store.Delete(ctx, userID, messageID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return apperr.NotFound("no metadata for message %s", messageID)
	case err != nil:
		return apperr.Internal(err, "delete metadata")
	}

	logger.WithTrace(ctx, s.logger).Info("Metadata deleted",
		zap.Int64("user_id", userID),
		zap.String("message_id", messageID),
	)
	return nil
}
