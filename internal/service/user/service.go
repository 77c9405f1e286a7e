// Package user keeps local accounts in step with the external identity
// provider.
package user

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"mailminder/internal/apperr"
	"mailminder/internal/model"
	"mailminder/internal/repository"
)

// Store 由 repository.UserRepository 实现
type Store interface {
	FindByID(ctx context.Context, id int64) (*model.User, error)
	FindByExternalID(ctx context.Context, externalID string) (*model.User, error)
	FindByEmail(ctx context.Context, email string) (*model.User, error)
	Create(ctx context.Context, u *model.User) error
	Update(ctx context.Context, u *model.User) error
	Delete(ctx context.Context, id int64) error
}

type Service struct {
	store  Store
	logger *zap.Logger
}

func NewService(store Store, logger *zap.Logger) *Service {
	return &Service{store: store, logger: logger}
}

// find 把 ErrNotFound 转成 (nil, nil)
func find(u *model.User, err error) (*model.User, error) {
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	return u, err
}

// CreateOrUpdate 按外部 ID 查找账号，找不到时按邮箱关联，都没有则新建。
// displayName 为 nil 时保留原值。
func (s *Service) CreateOrUpdate(ctx context.Context, externalID, email string, displayName *string) (*model.User, error) {
	externalID = strings.TrimSpace(externalID)
	email = strings.TrimSpace(email)
	if externalID == "" {
		return nil, apperr.InvalidInput("external id is required")
	}
	if email == "" {
		return nil, apperr.InvalidInput("email is required")
	}

	u, err := find(s.store.FindByExternalID(ctx, externalID))
	if err != nil {
		return nil, apperr.Internal(err, "load user")
	}

	if u != nil {
		changed := false
		if displayName != nil && (u.DisplayName == nil || *u.DisplayName != *displayName) {
			u.DisplayName = displayName
			changed = true
		}
		if u.Email != email {
			owner, err := find(s.store.FindByEmail(ctx, email))
			if err != nil {
				return nil, apperr.Internal(err, "load user")
			}
			if owner != nil && owner.ExternalID != externalID {
				s.logger.Warn("Email already linked to another identity",
					zap.Int64("user_id", u.ID),
					zap.Int64("owner_id", owner.ID),
				)
				return nil, apperr.InvalidInput("email %s is already in use by another account", email)
			}
			u.Email = email
			changed = true
		}
		if !changed {
			return u, nil
		}
		if err := s.update(ctx, u); err != nil {
			return nil, err
		}
		return u, nil
	}

	u, err = find(s.store.FindByEmail(ctx, email))
	if err != nil {
		return nil, apperr.Internal(err, "load user")
	}
	if u != nil {
		s.logger.Info("Linking existing account to identity", zap.Int64("user_id", u.ID))
		u.ExternalID = externalID
		if displayName != nil {
			u.DisplayName = displayName
		}
		if err := s.update(ctx, u); err != nil {
			return nil, err
		}
		return u, nil
	}

	u = &model.User{ExternalID: externalID, Email: email, DisplayName: displayName}
	switch err := s.store.Create(ctx, u); {
	case errors.Is(err, repository.ErrDuplicate):
		return nil, apperr.InvalidInput("account for %s was created concurrently, retry", email)
	case err != nil:
		return nil, apperr.Internal(err, "create user")
	}
	return u, nil
}

func (s *Service) update(ctx context.Context, u *model.User) error {
	switch err := s.store.Update(ctx, u); {
	case errors.Is(err, repository.ErrDuplicate):
		return apperr.InvalidInput("email %s is already in use by another account", u.Email)
	case errors.Is(err, repository.ErrNotFound):
		return apperr.NotFound("user %d not found", u.ID)
	case err != nil:
		return apperr.Internal(err, "update user")
	}
	s.logger.Info("User updated", zap.Int64("user_id", u.ID))
	return nil
}

// Get 返回账号
func (s *Service) Get(ctx context.Context, id int64) (*model.User, error) {
	u, err := find(s.store.FindByID(ctx, id))
	if err != nil {
		return nil, apperr.Internal(err, "load user")
	}
	if u == nil {
		return nil, apperr.NotFound("user %d not found", id)
	}
	return u, nil
}

// Delete 删除账号，元数据与投递历史由外键级联删除
func (s *Service) Delete(ctx context.Context, id int64) error {
	switch err := s.store.Delete(ctx, id); {
	case errors.Is(err, repository.ErrNotFound):
		return apperr.NotFound("user %d not found", id)
	case err != nil:
		return apperr.Internal(err, "delete user")
	}
	return nil
}
