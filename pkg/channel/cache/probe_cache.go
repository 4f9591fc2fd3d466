package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"itemstore/pkg/cluster"

	"github.com/fxamacker/cbor/v2"
	"github.com/redis/go-redis/v9"
)

// Channel 是一个装饰器，为底层 cluster.Channel 的存在性探测添加 Redis 缓存层
// 只缓存“存在” (Positive)，不缓存“不存在”：
// 新写入的数据不会被过期的负缓存挡住，发现 (Discovery) 的首个命中语义保持不变。
type Channel struct {
	cluster.Channel // 被装饰的底层通道，未覆盖的方法直接透传

	client *redis.Client
	ttl    time.Duration // 缓存过期时间
	logger *slog.Logger
}

type Config struct {
	RedisURL string        // 标准连接字符串: redis://<user>:<password>@<host>:<port>/<db>
	TTL      time.Duration // 过期时间
}

// probeRecord 是写入 Redis 的值
// 读取时校验 Node/Path，防止 Key 冲突时返回别人的结果
type probeRecord struct {
	Node      string `cbor:"n"`
	Path      string `cbor:"p"`
	CheckedAt int64  `cbor:"c"`
}

var encMode, _ = cbor.CanonicalEncOptions().EncMode()

// NewClient 解析 URL 并做 Fail-fast 连接检查
// 同一个客户端可以被多个节点的装饰器共享
func NewClient(cfg Config) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

// NewChannel 用 Redis 缓存装饰一个通道
func NewChannel(backend cluster.Channel, client *redis.Client, ttl time.Duration, logger *slog.Logger) *Channel {
	if logger == nil {
		logger = slog.Default()
	}
	return &Channel{
		Channel: backend,
		client:  client,
		ttl:     ttl,
		logger:  logger,
	}
}

// Unwrap 返回被装饰的底层通道
func (c *Channel) Unwrap() cluster.Channel { return c.Channel }

// cacheKey 生成 Redis Key，添加前缀防止冲突
func (c *Channel) cacheKey(p string) string {
	return "is:probe:" + c.Name() + ":" + path.Clean("/"+p)
}

// Exists 优先查 Redis
func (c *Channel) Exists(ctx context.Context, p string) (bool, error) {
	key := c.cacheKey(p)

	// 1. 查 Redis
	raw, err := c.client.Get(ctx, key).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		// Cache Miss
	case err != nil:
		// 缓存故障降级：Redis 挂了就直接查底层
		c.logger.Warn("probe cache unavailable", slog.String("node", c.Name()), slog.Any("err", err))
	default:
		if c.valid(raw, p) {
			return true, nil
		}
	}

	// 2. 查底层通道
	found, err := c.Channel.Exists(ctx, p)
	if err != nil {
		return false, err
	}

	// 3. 缓存回填 (只回填存在的结果)
	if found {
		c.fill(key, p)
	}
	return found, nil
}

func (c *Channel) valid(raw []byte, p string) bool {
	var rec probeRecord
	if err := cbor.Unmarshal(raw, &rec); err != nil {
		return false
	}
	return rec.Node == c.Name() && rec.Path == path.Clean("/"+p)
}

// fill 异步写入 Redis，不阻塞主流程
// 使用 context.Background() 确保即使上层 ctx 取消，回填也能完成
func (c *Channel) fill(key, p string) {
	data, err := encMode.Marshal(probeRecord{
		Node:      c.Name(),
		Path:      path.Clean("/" + p),
		CheckedAt: time.Now().Unix(),
	})
	if err != nil {
		return
	}
	go func() {
		fillCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := c.client.Set(fillCtx, key, data, c.ttl).Err(); err != nil {
			c.logger.Debug("probe cache fill failed", slog.String("node", c.Name()), slog.String("key", key), slog.Any("err", err))
		}
	}()
}

// DeleteRecursive 先删底层，再失效整棵子树的缓存
func (c *Channel) DeleteRecursive(ctx context.Context, p string) error {
	if err := c.Channel.DeleteRecursive(ctx, p); err != nil {
		return err
	}

	key := c.cacheKey(p)
	keys := []string{key}
	iter := c.client.Scan(ctx, 0, escapeGlob(key)+"/*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		c.logger.Warn("probe cache scan failed", slog.String("node", c.Name()), slog.Any("err", err))
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		c.logger.Warn("probe cache invalidation failed", slog.String("node", c.Name()), slog.Any("err", err))
	}
	return nil
}

var globEscaper = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)

func escapeGlob(s string) string { return globEscaper.Replace(s) }
