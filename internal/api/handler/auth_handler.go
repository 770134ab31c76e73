package handler

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"sashi-calendar/backend/pkg/response"
)

// TokenRevoker Token 吊销名单（Redis）
type TokenRevoker interface {
	RevokeToken(ctx context.Context, jti string, ttl time.Duration) error
}

// AuthHandler 认证模块 HTTP 处理器
// Token 由外部签发，这里只负责当前 Token 的登出
type AuthHandler struct {
	revoker TokenRevoker
}

// NewAuthHandler 创建 AuthHandler；revoker 可为 nil
func NewAuthHandler(revoker TokenRevoker) *AuthHandler {
	return &AuthHandler{revoker: revoker}
}

// Logout 吊销当前 Access Token
// POST /api/v1/auth/logout
func (h *AuthHandler) Logout(c *gin.Context) {
	if _, ok := MustGetUserID(c); !ok {
		return
	}
	if h.revoker == nil {
		response.ServiceUnavailable(c, 10006, "吊销服务不可用")
		return
	}

	jti, ttl, ok := tokenLease(c)
	if !ok {
		response.BadRequest(c, 10001, "Token 缺少 jti")
		return
	}
	if err := h.revoker.RevokeToken(c.Request.Context(), jti, ttl); err != nil {
		_ = c.Error(err)
		response.InternalError(c)
		return
	}

	response.OK(c, nil)
}
