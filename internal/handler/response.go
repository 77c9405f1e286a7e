package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"mailminder/internal/apperr"
	"mailminder/pkg/logger"
)

// ContextKeyUserID 与 ContextKeyRole 由认证中间件写入
const (
	ContextKeyUserID = "user_id"
	ContextKeyRole   = "role"
)

var statusByKind = map[apperr.Kind]int{
	apperr.KindNotFound:        http.StatusNotFound,
	apperr.KindInvalidInput:    http.StatusBadRequest,
	apperr.KindUnauthenticated: http.StatusUnauthorized,
	apperr.KindUnauthorized:    http.StatusForbidden,
	apperr.KindUnavailable:     http.StatusServiceUnavailable,
	apperr.KindInternal:        http.StatusInternalServerError,
}

// StatusOf 错误种类对应的 HTTP 状态码
func StatusOf(err error) int {
	return statusByKind[apperr.KindOf(err)]
}

// writeError 内部错误只返回通用消息，完整错误写日志
func writeError(c *gin.Context, log *zap.Logger, err error) {
	status := StatusOf(err)
	msg := "internal server error"

	var appErr *apperr.Error
	if status != http.StatusInternalServerError && errors.As(err, &appErr) {
		msg = appErr.Message
	}

	l := logger.WithTrace(c.Request.Context(), log).With(
		zap.String("path", c.FullPath()),
		zap.Int("status", status),
		zap.Error(err),
	)
	if uid, ok := currentUserID(c); ok {
		l = l.With(zap.Int64("user_id", uid))
	}
	if status >= http.StatusInternalServerError {
		l.Error("Request failed")
	} else {
		l.Info("Request rejected")
	}

	c.JSON(status, gin.H{"error": msg})
}

func currentUserID(c *gin.Context) (int64, bool) {
	v, ok := c.Get(ContextKeyUserID)
	if !ok {
		return 0, false
	}
	id, ok := v.(int64)
	return id, ok
}

// requireUser 取出当前用户，缺失时直接写 401
func requireUser(c *gin.Context) (int64, bool) {
	id, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return 0, false
	}
	return id, true
}
