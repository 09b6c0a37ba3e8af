package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"roboadvisor/pkg/auth"
)

// 上下文键
const (
	ContextUserID = "userID"
	ContextEmail  = "email"
)

// publicPaths 无需认证的路径
var publicPaths = map[string]bool{
	"/health":                     true,
	"/auth/register":              true,
	"/auth/login":                 true,
	"/auth/login-json":            true,
	"/api/portfolio/csv-template": true,
}

// AuthMiddleware JWT认证中间件
func AuthMiddleware(tokens *auth.TokenManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if publicPaths[path] || c.Request.Method == http.MethodOptions {
			c.Next()
			return
		}

		var tokenString string
		if path == "/ws" {
			tokenString = c.Query("token")
			if tokenString == "" {
				abortUnauthorized(c, "missing token query parameter", "MISSING_TOKEN_PARAM")
				return
			}
		} else {
			authHeader := c.GetHeader("Authorization")
			if authHeader == "" {
				abortUnauthorized(c, "missing Authorization header", "MISSING_AUTH_HEADER")
				return
			}
			scheme, token, ok := strings.Cut(authHeader, " ")
			if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
				abortUnauthorized(c, "invalid Authorization format, expected 'Bearer <token>'", "INVALID_AUTH_FORMAT")
				return
			}
			tokenString = strings.TrimSpace(token)
		}

		claims, err := tokens.ValidateToken(tokenString)
		if err != nil {
			logrus.Warnf("Token验证失败: %v", err)
			abortUnauthorized(c, "invalid or expired token", "INVALID_TOKEN")
			return
		}
		userID, err := claims.UserID()
		if err != nil {
			abortUnauthorized(c, "invalid or expired token", "INVALID_TOKEN")
			return
		}

		c.Set(ContextUserID, userID)
		c.Set(ContextEmail, claims.Email)
		c.Next()
	}
}

func abortUnauthorized(c *gin.Context, msg, code string) {
	c.Header("WWW-Authenticate", "Bearer")
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"error": msg,
		"code":  code,
	})
}

// CurrentUserID 从上下文中获取当前用户ID
func CurrentUserID(c *gin.Context) uint {
	if v, exists := c.Get(ContextUserID); exists {
		if id, ok := v.(uint); ok {
			return id
		}
	}
	return 0
}
