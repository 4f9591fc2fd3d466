package cache

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"itemstore/pkg/channel/memory"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// -----------------------------------------------------------------------------
// SpyChannel (间谍通道)
// 用于统计底层 Exists 被调用的次数，验证请求是否穿透了缓存
// -----------------------------------------------------------------------------
type SpyChannel struct {
	*memory.Channel
	existsCount int32
}

func (s *SpyChannel) Exists(ctx context.Context, p string) (bool, error) {
	atomic.AddInt32(&s.existsCount, 1)
	return s.Channel.Exists(ctx, p)
}

func TestProbeRecord_Validation(t *testing.T) {
	ch := NewChannel(memory.New("n1", "/home"), nil, time.Minute, nil)

	data, err := encMode.Marshal(probeRecord{Node: "n1", Path: "/home/jobs/proj", CheckedAt: 1})
	require.NoError(t, err)

	assert.True(t, ch.valid(data, "/home/jobs/proj/"))
	assert.False(t, ch.valid(data, "/home/jobs/other"), "路径不同")
	assert.False(t, ch.valid([]byte("garbage"), "/home/jobs/proj"))

	other := NewChannel(memory.New("n2", "/home"), nil, time.Minute, nil)
	assert.False(t, other.valid(data, "/home/jobs/proj"), "节点不同")
}

// lockedBuffer 让异步回填的日志可以被测试安全地读取
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestProbeCache_RedisDown(t *testing.T) {
	// 指向一个没有服务的端口：读写 Redis 都会失败
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	logs := &lockedBuffer{}
	logger := slog.New(slog.NewTextHandler(logs, &slog.HandlerOptions{Level: slog.LevelDebug}))

	backend := memory.New("n1", "/home")
	backend.WriteFile("/home/jobs/proj/a", nil)
	ch := NewChannel(backend, client, time.Minute, logger)

	// 降级到底层通道，结果不受影响
	ok, err := ch.Exists(context.Background(), "/home/jobs/proj")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Contains(t, logs.String(), "probe cache unavailable")

	// 异步回填失败会留下日志
	assert.Eventually(t, func() bool {
		return strings.Contains(logs.String(), "probe cache fill failed")
	}, 3*time.Second, 20*time.Millisecond)
	assert.Contains(t, logs.String(), "node=n1")
}

func TestEscapeGlob(t *testing.T) {
	assert.Equal(t, `is:probe:n1:/a\*b\?\[c\]`, escapeGlob("is:probe:n1:/a*b?[c]"))
}

func TestProbeCache_Integration(t *testing.T) {
	// A. 环境检查: 确保 Redis 在运行
	redisAddr := "localhost:6379"
	conn, err := net.DialTimeout("tcp", redisAddr, 1*time.Second)
	if err != nil {
		t.Skipf("Skipping Redis integration test: %v", err)
	}
	conn.Close()

	// B. 初始化
	ctx := context.Background()
	client, err := NewClient(Config{RedisURL: fmt.Sprintf("redis://%s/0", redisAddr)})
	require.NoError(t, err)
	defer client.Close()

	spy := &SpyChannel{Channel: memory.New("spy-node", "/home")}
	ch := NewChannel(spy, client, time.Hour, nil)

	// 清理残留
	require.NoError(t, ch.DeleteRecursive(ctx, "/home/jobs"))
	spy.WriteFile("/home/jobs/proj/cache/a.txt", []byte("a"))

	// --- Step 1: Cache Miss 穿透到底层 ---
	exists, err := ch.Exists(ctx, "/home/jobs/proj")
	require.NoError(t, err)
	assert.True(t, exists)
	assert.Equal(t, int32(1), atomic.LoadInt32(&spy.existsCount))

	// 等待异步回填
	key := ch.cacheKey("/home/jobs/proj")
	assert.Eventually(t, func() bool {
		n, err := client.Exists(ctx, key).Result()
		return err == nil && n == 1
	}, 2*time.Second, 20*time.Millisecond)

	// --- Step 2: Cache Hit 不再访问底层 ---
	exists, err = ch.Exists(ctx, "/home/jobs/proj")
	require.NoError(t, err)
	assert.True(t, exists)
	assert.Equal(t, int32(1), atomic.LoadInt32(&spy.existsCount), "命中时不应该访问底层")

	// --- Step 3: 不存在的结果不缓存 ---
	exists, err = ch.Exists(ctx, "/home/jobs/none")
	require.NoError(t, err)
	assert.False(t, exists)
	_, _ = ch.Exists(ctx, "/home/jobs/none")
	assert.Equal(t, int32(3), atomic.LoadInt32(&spy.existsCount))

	// --- Step 4: 删除父目录会失效子树缓存 ---
	require.NoError(t, ch.DeleteRecursive(ctx, "/home/jobs"))
	n, err := client.Exists(ctx, key).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	exists, err = ch.Exists(ctx, "/home/jobs/proj")
	require.NoError(t, err)
	assert.False(t, exists)
}
