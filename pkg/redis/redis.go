package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"sashi-calendar/backend/config"
)

// Client Redis 客户端封装
// 用于系列变更通知、写接口限流和 Token 吊销名单
type Client struct {
	rdb     *goredis.Client
	channel string
	logger  *zap.Logger
}

// NewClient 创建 Redis 连接并执行 Ping 健康检查
func NewClient(cfg *config.RedisConfig, logger *zap.Logger) (*Client, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("Redis 连接失败: %w", err)
	}

	channel := cfg.ChangeChannel
	if channel == "" {
		channel = "calendar:series"
	}

	logger.Info("Redis 连接成功", zap.String("addr", cfg.Addr), zap.String("channel", channel))

	return &Client{rdb: rdb, channel: channel, logger: logger}, nil
}

// ── 系列变更通知 ──

// SeriesChange 一次已提交的系列变更
type SeriesChange struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"` // updated | split | deleted | created | exception
	SeriesIDs []string  `json:"series_ids"`
	Scope     string    `json:"scope,omitempty"`
	Date      string    `json:"date,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// PublishSeriesChange 向变更频道发布通知
func (c *Client) PublishSeriesChange(ctx context.Context, change SeriesChange) error {
	if change.ID == "" {
		change.ID = uuid.New().String()
	}
	if change.Timestamp.IsZero() {
		change.Timestamp = time.Now().UTC()
	}
	payload, err := json.Marshal(change)
	if err != nil {
		return fmt.Errorf("序列化变更通知失败: %w", err)
	}
	return c.rdb.Publish(ctx, c.channel, payload).Err()
}

// SubscribeSeriesChanges 订阅变更频道，ctx 取消时关闭订阅
func (c *Client) SubscribeSeriesChanges(ctx context.Context) (<-chan SeriesChange, error) {
	sub := c.rdb.Subscribe(ctx, c.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("订阅变更频道失败: %w", err)
	}

	out := make(chan SeriesChange, 16)
	go func() {
		defer close(out)
		defer sub.Close()
		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var change SeriesChange
				if err := json.Unmarshal([]byte(msg.Payload), &change); err != nil {
					c.logger.Warn("无法解析变更通知", zap.String("payload", msg.Payload), zap.Error(err))
					continue
				}
				select {
				case out <- change:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// ── 限流 ──

// CheckRateLimit 滑动窗口计数：窗口内请求数未超过 limit 时返回 true
func (c *Client) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	now := time.Now().UnixNano()
	windowStart := now - window.Nanoseconds()

	pipe := c.rdb.TxPipeline()
	pipe.ZRemRangeByScore(ctx, key, "0", strconv.FormatInt(windowStart, 10))
	pipe.ZAdd(ctx, key, goredis.Z{Score: float64(now), Member: strconv.FormatInt(now, 10) + ":" + uuid.New().String()})
	count := pipe.ZCard(ctx, key)
	pipe.Expire(ctx, key, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, err
	}

	return count.Val() <= int64(limit), nil
}

// ── Token 吊销名单 ──

const revokedPrefix = "token:revoked:"

// RevokeToken 将 JWT ID 加入吊销名单，TTL 与 Token 剩余有效期一致
func (c *Client) RevokeToken(ctx context.Context, jti string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil // Token 已过期
	}
	return c.rdb.Set(ctx, revokedPrefix+jti, "1", ttl).Err()
}

// IsRevoked 检查 JWT ID 是否已被吊销
func (c *Client) IsRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := c.rdb.Exists(ctx, revokedPrefix+jti).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Close 关闭 Redis 连接
func (c *Client) Close() error {
	return c.rdb.Close()
}
