package router

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"sashi-calendar/backend/config"
	"sashi-calendar/backend/internal/api/handler"
	"sashi-calendar/backend/internal/api/middleware"
	"sashi-calendar/backend/pkg/jwt"
	"sashi-calendar/backend/pkg/redis"
)

// Setup 初始化并返回 Gin 路由引擎
// rdb 为 nil 时限流与 Token 吊销检查降级关闭
func Setup(cfg *config.Config, h *handler.Handler, jwtMgr *jwt.Manager, rdb *redis.Client, logger *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	// 避免 *redis.Client(nil) 装进接口后变成非 nil
	var (
		limiter middleware.RateLimiter
		revoked middleware.RevocationChecker
	)
	if rdb != nil {
		limiter, revoked = rdb, rdb
	}

	// ── 全局中间件 ──
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(logger))
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORS(cfg.Server.CORS.AllowOrigins))
	r.Use(middleware.BodyLimit(cfg.Server.BodyLimitKB << 10))

	// ── 健康检查 ──
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().UTC().Format(time.RFC3339)})
	})

	// ── API v1 ──
	v1 := r.Group("/api/v1")
	write := []gin.HandlerFunc{middleware.RateLimit(limiter, cfg.RateLimit.WriteLimit, cfg.RateLimit.WriteWindow)}
	if cfg.Auth.Enabled {
		v1.Use(middleware.JWTAuth(jwtMgr, revoked))
		write = append([]gin.HandlerFunc{middleware.RequireWrite()}, write...)

		v1.POST("/auth/logout", h.Auth.Logout)
	}
	writes := func(hf gin.HandlerFunc) []gin.HandlerFunc {
		return append(append([]gin.HandlerFunc{}, write...), hf)
	}

	// 日程模块
	events := v1.Group("/events")
	{
		events.GET("", h.Event.List)
		events.POST("", writes(h.Event.Create)...)
		events.PATCH("/batch", writes(h.Event.Batch)...)
		events.GET("/consistency", h.Event.Consistency)
		events.GET("/export.ics", h.Export.ExportICS)
		events.GET("/:id", h.Event.Get)
		events.PATCH("/:id", writes(h.Event.Update)...)
		events.DELETE("/:id", writes(h.Event.Delete)...)
	}

	// 导出模块
	export := v1.Group("/export")
	{
		export.GET("/events", h.Export.ExportXLSX)
	}

	// 任务队列看板
	queue := v1.Group("/queue")
	{
		queue.GET("", h.Queue.Board)
		queue.POST("", writes(h.Queue.Enqueue)...)
		queue.PUT("/:id/status", writes(h.Queue.UpdateStatus)...)
	}

	return r
}
