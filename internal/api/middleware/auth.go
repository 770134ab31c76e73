package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"sashi-calendar/backend/pkg/jwt"
	"sashi-calendar/backend/pkg/response"
)

// RevocationChecker Token 吊销名单查询
type RevocationChecker interface {
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// JWTAuth JWT 认证中间件
// 从 Authorization: Bearer <token> 中提取并验证 Access Token
// revoked 为 nil 时跳过吊销检查
func JWTAuth(jwtMgr *jwt.Manager, revoked RevocationChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			response.Unauthorized(c, 10002, "缺少认证头")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			response.Unauthorized(c, 10002, "认证头格式无效")
			return
		}

		claims, err := jwtMgr.ParseToken(parts[1])
		if err != nil {
			response.Unauthorized(c, 10002, "Token 无效或已过期")
			return
		}

		if revoked != nil && claims.ID != "" {
			// Redis 出错时降级放行（与 RateLimit 策略一致）
			if ok, err := revoked.IsRevoked(c.Request.Context(), claims.ID); err == nil && ok {
				response.Unauthorized(c, 10002, "Token 已失效")
				return
			}
		}

		c.Set("user_id", claims.UserID)
		c.Set("token_scope", claims.Scope)
		c.Set("token_jti", claims.ID)
		if claims.ExpiresAt != nil {
			c.Set("token_exp", claims.ExpiresAt.Time)
		}

		c.Next()
	}
}

// RequireWrite 写接口权限中间件，需挂在 JWTAuth 之后
func RequireWrite() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := jwt.Claims{Scope: c.GetString("token_scope")}
		if !claims.CanWrite() {
			response.Forbidden(c, 10003, "Token 无写权限")
			return
		}
		c.Next()
	}
}
