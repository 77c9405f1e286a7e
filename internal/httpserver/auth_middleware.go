package httpserver

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"mailminder/internal/handler"
	"mailminder/pkg/rbac"
	"mailminder/pkg/util"
)

// AuthMiddleware 校验外部身份服务签发的 bearer 令牌
func AuthMiddleware(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := util.ExtractToken(c.Request)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			return
		}

		claims, err := util.ParseJWT(token, jwtSecret)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set(handler.ContextKeyUserID, claims.UserID)
		c.Set(handler.ContextKeyRole, rbac.NormalizeRole(claims.Role))
		c.Next()
	}
}
