package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"mailminder/internal/handler"
	"mailminder/pkg/otel"
	"mailminder/pkg/rbac"
)

// Pinger 就绪检查依赖，pgxpool.Pool 直接满足
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc 把普通函数适配为 Pinger
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

type Handlers struct {
	Email    *handler.EmailHandler
	Reminder *handler.ReminderHandler
	User     *handler.UserHandler
	Admin    *handler.AdminHandler
}

type Router struct {
	Engine *gin.Engine
}

// NewHealthRouter 只含健康检查和指标，worker 进程使用
func NewHealthRouter(deps map[string]Pinger) *Router {
	r := gin.New()
	r.Use(gin.Recovery())
	registerHealth(r, deps)
	return &Router{Engine: r}
}

func NewRouter(h Handlers, jwtSecret string, deps map[string]Pinger) *Router {
	r := gin.New()
	r.Use(gin.Recovery(), TraceMiddleware(), otel.GinMiddleware())

	registerHealth(r, deps)

	auth := r.Group("/")
	auth.Use(AuthMiddleware(jwtSecret))
	{
		auth.GET("/emails", RequirePermission(rbac.PermissionReadEmails), h.Email.GetEmails)
		auth.POST("/emails/:messageId/priority", RequirePermission(rbac.PermissionWriteMetadata), h.Email.SetPriority)
		auth.POST("/emails/:messageId/schedule", RequirePermission(rbac.PermissionWriteMetadata), h.Email.SetSchedule)
		auth.GET("/emails/:messageId/metadata", RequirePermission(rbac.PermissionReadEmails), h.Email.GetMetadata)
		auth.DELETE("/emails/:messageId/metadata", RequirePermission(rbac.PermissionDeleteMetadata), h.Email.DeleteMetadata)

		auth.GET("/reminders/upcoming", RequirePermission(rbac.PermissionReadReminders), h.Reminder.Upcoming)
		auth.GET("/reminders/history", RequirePermission(rbac.PermissionReadReminders), h.Reminder.History)

		auth.DELETE("/me", RequirePermission(rbac.PermissionDeleteAccount), h.User.DeleteMe)
		auth.PUT("/internal/users", RequirePermission(rbac.PermissionSyncUsers), h.User.Sync)

		admin := auth.Group("/admin", RequirePermission(rbac.PermissionReplayOutbox))
		admin.POST("/outbox/replay", h.Admin.ReplayOutboxEvent)
		admin.POST("/outbox/replay-failed", h.Admin.ReplayFailedEvents)
	}

	return &Router{Engine: r}
}

func registerHealth(r *gin.Engine, deps map[string]Pinger) {
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.HEAD("/healthz", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	r.GET("/readyz", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), time.Second)
		defer cancel()

		for name, dep := range deps {
			if dep == nil {
				continue
			}
			if err := dep.Ping(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": name + "_not_ready", "error": err.Error()})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
}
