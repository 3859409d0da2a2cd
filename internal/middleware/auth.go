package middleware

import (
	"context"
	"net/http"
	"strings"

	"shortlink-analytics/internal/model"
	auth "shortlink-analytics/pkg/jwt"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// 上下文中保存认证信息的键
const (
	ContextUserID   = "user_id"
	ContextUsername = "username"
	ContextRole     = "role"
)

// UserStatusFunc 查询用户当前是否可用；用户不存在时应返回 false
type UserStatusFunc func(ctx context.Context, userID uint) (bool, error)

// AuthMiddleware JWT认证中间件。
// userActive 不为 nil 时每次请求都会复核账户状态，令牌签发后被禁用的账户立即失效。
func AuthMiddleware(jwtManager *auth.TokenManager, userActive UserStatusFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "缺少认证令牌"})
			return
		}

		// 提取Bearer token
		scheme, tokenString, ok := strings.Cut(strings.TrimSpace(authHeader), " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(tokenString) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "认证格式错误"})
			return
		}

		claims, err := jwtManager.ValidateToken(strings.TrimSpace(tokenString))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "无效的认证令牌"})
			return
		}

		if userActive != nil {
			active, err := userActive(c.Request.Context(), claims.UserID)
			if err != nil {
				zap.S().Errorw("查询账户状态失败", "user_id", claims.UserID, "error", err)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "服务器内部错误"})
				return
			}
			if !active {
				c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "账户已被禁用"})
				return
			}
		}

		// 将用户信息存入上下文
		c.Set(ContextUserID, claims.UserID)
		c.Set(ContextUsername, claims.Username)
		c.Set(ContextRole, claims.Role)

		c.Next()
	}
}

// AdminMiddleware 管理员权限中间件，需挂在 AuthMiddleware 之后
func AdminMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString(ContextRole) != model.RoleAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "需要管理员权限"})
			return
		}
		c.Next()
	}
}

// CurrentUserID 读取认证中间件写入的用户 ID
func CurrentUserID(c *gin.Context) (uint, bool) {
	v, ok := c.Get(ContextUserID)
	if !ok {
		return 0, false
	}
	id, ok := v.(uint)
	return id, ok
}
