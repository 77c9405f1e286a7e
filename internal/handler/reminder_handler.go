package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"mailminder/internal/apperr"
	"mailminder/internal/model"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

// HistoryStore 由 repository.NotificationLogRepository 实现
type HistoryStore interface {
	ListByUser(ctx context.Context, userID int64, limit int) ([]model.NotificationLog, error)
}

type ReminderHandler struct {
	metadata MetadataService
	history  HistoryStore
	logger   *zap.Logger
}

func NewReminderHandler(metadata MetadataService, history HistoryStore, logger *zap.Logger) *ReminderHandler {
	return &ReminderHandler{metadata: metadata, history: history, logger: logger}
}

// Upcoming handles GET /reminders/upcoming
func (h *ReminderHandler) Upcoming(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	reminders, err := h.metadata.ListUpcoming(c.Request.Context(), userID)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reminders": reminders})
}

// History handles GET /reminders/history?limit=50
func (h *ReminderHandler) History(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultHistoryLimit)))
	if err != nil || limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	logs, err := h.history.ListByUser(c.Request.Context(), userID, limit)
	if err != nil {
		writeError(c, h.logger, apperr.Internal(err, "list delivery history"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"deliveries": logs, "limit": limit})
}
