package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	"sashi-calendar/backend/pkg/response"
)

// CallerID 返回调用方 user_id；未启用认证时为空字符串
func CallerID(c *gin.Context) string {
	s, _ := c.Get("user_id")
	id, _ := s.(string)
	return id
}

// MustGetUserID 从 Gin 上下文中安全提取 user_id。
// 如果 JWT 中间件未正确注入 user_id，返回 false 并写入 401 响应。
// 调用方应在 ok=false 时直接 return。
func MustGetUserID(c *gin.Context) (string, bool) {
	id := CallerID(c)
	if id == "" {
		response.Unauthorized(c, 10002, "未认证")
		return "", false
	}
	return id, true
}

// tokenLease 当前 Token 的 jti 与剩余有效期
func tokenLease(c *gin.Context) (string, time.Duration, bool) {
	jti := c.GetString("token_jti")
	exp, ok := c.Get("token_exp")
	if jti == "" || !ok {
		return "", 0, false
	}
	expAt, ok := exp.(time.Time)
	if !ok {
		return "", 0, false
	}
	return jti, time.Until(expAt), true
}
