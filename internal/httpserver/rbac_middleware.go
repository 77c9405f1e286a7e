package httpserver

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"mailminder/internal/handler"
	"mailminder/pkg/rbac"
)

// RequirePermission 中间件：要求当前角色具有指定权限
func RequirePermission(permission string) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := c.Get(handler.ContextKeyUserID)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
			return
		}
		uid, _ := userID.(int64)
		role := c.GetString(handler.ContextKeyRole)

		if err := rbac.CheckPermission(uid, role, permission); err != nil {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": err.Error()})
			return
		}
		c.Next()
	}
}
