package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"mailminder/internal/model"
	"mailminder/internal/provider"
	"mailminder/internal/service/metadata"
)

// 调用方通过请求头传入邮件服务的访问令牌
const (
	HeaderProviderToken = "X-Provider-Token"
	HeaderProviderUser  = "X-Provider-User"
)

// MetadataService 由 metadata.Service 实现
type MetadataService interface {
	ListEnriched(ctx context.Context, userID int64, creds provider.Credentials) ([]model.EnrichedMessage, error)
	SetPriority(ctx context.Context, in metadata.PriorityInput) (*model.EmailMetadata, error)
	SetScheduleAndPriority(ctx context.Context, in metadata.ScheduleInput) (*model.EmailMetadata, error)
	ListUpcoming(ctx context.Context, userID int64) ([]model.EmailMetadata, error)
	Get(ctx context.Context, userID int64, messageID string) (*model.EmailMetadata, error)
	Delete(ctx context.Context, userID int64, messageID string) error
}

type EmailHandler struct {
	metadata MetadataService
	logger   *zap.Logger
}

func NewEmailHandler(metadata MetadataService, logger *zap.Logger) *EmailHandler {
	return &EmailHandler{metadata: metadata, logger: logger}
}

type priorityRequest struct {
	Priority string  `json:"priority"`
	Subject  *string `json:"subject"`
	Sender   *string `json:"sender"`
}

type scheduleRequest struct {
	ReminderDateTime string  `json:"reminderDateTime"`
	Priority         string  `json:"priority"`
	Notes            *string `json:"notes"`
	Subject          *string `json:"subject"`
	Sender           *string `json:"sender"`
}

// GetEmails handles GET /emails
func (h *EmailHandler) GetEmails(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	token := c.GetHeader(HeaderProviderToken)
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing " + HeaderProviderToken + " header"})
		return
	}

	emails, err := h.metadata.ListEnriched(c.Request.Context(), userID, provider.Credentials{
		AccessToken: token,
		Username:    c.GetHeader(HeaderProviderUser),
	})
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"emails": emails})
}

// SetPriority handles POST /emails/:messageId/priority
func (h *EmailHandler) SetPriority(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	var req priorityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	rec, err := h.metadata.SetPriority(c.Request.Context(), metadata.PriorityInput{
		UserID:    userID,
		MessageID: c.Param("messageId"),
		Priority:  req.Priority,
		Subject:   req.Subject,
		Sender:    req.Sender,
	})
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, rec)
}

// SetSchedule handles POST /emails/:messageId/schedule
func (h *EmailHandler) SetSchedule(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	var req scheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	rec, err := h.metadata.SetScheduleAndPriority(c.Request.Context(), metadata.ScheduleInput{
		UserID:     userID,
		MessageID:  c.Param("messageId"),
		ReminderAt: req.ReminderDateTime,
		Priority:   req.Priority,
		Notes:      req.Notes,
		Subject:    req.Subject,
		Sender:     req.Sender,
	})
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, rec)
}

// GetMetadata handles GET /emails/:messageId/metadata
func (h *EmailHandler) GetMetadata(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	rec, err := h.metadata.Get(c.Request.Context(), userID, c.Param("messageId"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// DeleteMetadata handles DELETE /emails/:messageId/metadata
func (h *EmailHandler) DeleteMetadata(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	if err := h.metadata.Delete(c.Request.Context(), userID, c.Param("messageId")); err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}
