package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"mailminder/internal/model"
)

// UserService 由 user.Service 实现
type UserService interface {
	CreateOrUpdate(ctx context.Context, externalID, email string, displayName *string) (*model.User, error)
	Delete(ctx context.Context, id int64) error
}

type UserHandler struct {
	users  UserService
	logger *zap.Logger
}

func NewUserHandler(users UserService, logger *zap.Logger) *UserHandler {
	return &UserHandler{users: users, logger: logger}
}

type syncUserRequest struct {
	ExternalID  string  `json:"external_id"`
	Email       string  `json:"email"`
	DisplayName *string `json:"display_name"`
}

// Sync handles PUT /internal/users
func (h *UserHandler) Sync(c *gin.Context) {
	var req syncUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	u, err := h.users.CreateOrUpdate(c.Request.Context(), req.ExternalID, req.Email, req.DisplayName)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, u)
}

// DeleteMe handles DELETE /me
func (h *UserHandler) DeleteMe(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	if err := h.users.Delete(c.Request.Context(), userID); err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}
