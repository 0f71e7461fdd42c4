// Package middleware 提供了处理 HTTP 请求的中间件。
package middleware

import (
	"net/http"
	"strings"

	"piperag-go/internal/model"
	"piperag-go/pkg/token"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	ctxKeyUserID = "userID"
	ctxKeyTier   = "tier"
)

// AuthMiddleware 创建一个 Gin 中间件，用于 JWT 认证。
// 它从请求头中提取 token，验证有效性，并把 claims 中携带的
// 用户 ID 与订阅等级存入 Gin 的上下文。
func AuthMiddleware(jwtManager *token.JWTManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "请求未包含授权头"})
			return
		}

		const bearerPrefix = "Bearer "
		if !strings.HasPrefix(authHeader, bearerPrefix) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "无效的授权头格式"})
			return
		}
		tokenString := strings.TrimPrefix(authHeader, bearerPrefix)

		claims, err := jwtManager.VerifyToken(tokenString)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "无效或已过期的 token"})
			return
		}

		c.Set(ctxKeyUserID, claims.UserID)
		c.Set(ctxKeyTier, claims.Tier)
		c.Next()
	}
}

// UserID 从上下文中取出认证后的用户 ID。
func UserID(c *gin.Context) uuid.UUID {
	if v, ok := c.Get(ctxKeyUserID); ok {
		if id, ok := v.(uuid.UUID); ok {
			return id
		}
	}
	return uuid.Nil
}

// Tier 从上下文中取出用户的订阅等级，缺省为 Free。
func Tier(c *gin.Context) model.UserTier {
	if v, ok := c.Get(ctxKeyTier); ok {
		if t, ok := v.(model.UserTier); ok && t != "" {
			return t
		}
	}
	return model.TierFree
}
