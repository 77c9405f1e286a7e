package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"mailminder/internal/model"
	"mailminder/pkg/otel"
)

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

type UserRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewUserRepository(db *pgxpool.Pool, logger *zap.Logger) *UserRepository {
	return &UserRepository{db: db, logger: logger}
}

const userColumns = `id, COALESCE(external_id, ''), email, display_name, created_at, updated_at`

func (r *UserRepository) findOne(ctx context.Context, where string, arg any) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE ` + where
	var u model.User
	err := otel.Query(ctx, "select", "users", query, func(ctx context.Context) error {
		return r.db.QueryRow(ctx, query, arg).Scan(
			&u.ID, &u.ExternalID, &u.Email, &u.DisplayName, &u.CreatedAt, &u.UpdatedAt,
		)
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query user: %w", err)
	}
	return &u, nil
}

// FindByID returns ErrNotFound when the user does not exist.
func (r *UserRepository) FindByID(ctx context.Context, id int64) (*model.User, error) {
	return r.findOne(ctx, "id = $1", id)
}

func (r *UserRepository) FindByExternalID(ctx context.Context, externalID string) (*model.User, error) {
	return r.findOne(ctx, "external_id = $1", externalID)
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.findOne(ctx, "email = $1", email)
}

// Create inserts u and fills ID and timestamps. A taken email or external id
// yields ErrDuplicate.
func (r *UserRepository) Create(ctx context.Context, u *model.User) error {
	query := `
		INSERT INTO users (external_id, email, display_name)
		VALUES (NULLIF($1, ''), $2, $3)
		RETURNING id, created_at, updated_at
	`
	err := otel.Query(ctx, "insert", "users", query, func(ctx context.Context) error {
		return r.db.QueryRow(ctx, query, u.ExternalID, u.Email, u.DisplayName).
			Scan(&u.ID, &u.CreatedAt, &u.UpdatedAt)
	})
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}

	r.logger.Info("User created", zap.Int64("user_id", u.ID))
	return nil
}

// Update overwrites external id, email and display name.
func (r *UserRepository) Update(ctx context.Context, u *model.User) error {
	query := `
		UPDATE users
		SET external_id = NULLIF($2, ''), email = $3, display_name = $4, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`
	err := otel.Query(ctx, "update", "users", query, func(ctx context.Context) error {
		return r.db.QueryRow(ctx, query, u.ID, u.ExternalID, u.Email, u.DisplayName).Scan(&u.UpdatedAt)
	})
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return ErrNotFound
	case isUniqueViolation(err):
		return ErrDuplicate
	case err != nil:
		return fmt.Errorf("update user: %w", err)
	}
	return nil
}

// Delete removes the user; metadata and history rows cascade.
func (r *UserRepository) Delete(ctx context.Context, id int64) error {
	query := `DELETE FROM users WHERE id = $1`
	var affected int64
	err := otel.Query(ctx, "delete", "users", query, func(ctx context.Context) error {
		tag, err := r.db.Exec(ctx, query, id)
		affected = tag.RowsAffected()
		return err
	})
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}

	r.logger.Info("User deleted", zap.Int64("user_id", id))
	return nil
}
