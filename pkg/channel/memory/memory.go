package memory

import (
	"bytes"
	"context"
	"io"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"itemstore/pkg/cluster"
)

type file struct {
	data    []byte
	modTime time.Time
}

// Channel 是一个进程内的节点文件系统
// 用于测试以及 type: memory 的节点
type Channel struct {
	name  string
	home  string
	mu    sync.RWMutex
	files map[string]file // key: 清洗后的绝对路径
}

// New 创建一个空的内存节点
func New(name, home string) *Channel {
	return &Channel{
		name:  name,
		home:  clean(home),
		files: make(map[string]file),
	}
}

func clean(p string) string {
	return path.Clean("/" + p)
}

func (c *Channel) Name() string { return c.name }

func (c *Channel) Home(ctx context.Context) (string, error) { return c.home, nil }

// WriteFile 直接写入一个文件 (测试准备数据用)
func (c *Channel) WriteFile(p string, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.files[clean(p)] = file{data: append([]byte(nil), data...), modTime: time.Now()}
}

// ReadFile 直接读取一个文件
func (c *Channel) ReadFile(p string) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	f, ok := c.files[clean(p)]
	return f.data, ok
}

func (c *Channel) Exists(ctx context.Context, p string) (bool, error) {
	p = clean(p)
	c.mu.RLock()
	defer c.mu.RUnlock()

	if _, ok := c.files[p]; ok {
		return true, nil
	}
	// 目录是隐式的：只要有文件在它下面就存在
	prefix := dirPrefix(p)
	for k := range c.files {
		if strings.HasPrefix(k, prefix) {
			return true, nil
		}
	}
	return false, nil
}

func (c *Channel) List(ctx context.Context, root string) ([]cluster.Entry, error) {
	root = clean(root)
	prefix := dirPrefix(root)

	c.mu.RLock()
	defer c.mu.RUnlock()

	dirs := make(map[string]bool)
	var out []cluster.Entry
	for k, f := range c.files {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		rel := strings.TrimPrefix(k, prefix)
		out = append(out, cluster.Entry{Path: rel, Size: int64(len(f.data)), ModTime: f.modTime})

		// 补齐中间目录
		for d := path.Dir(rel); d != "." && !dirs[d]; d = path.Dir(d) {
			dirs[d] = true
			out = append(out, cluster.Entry{Path: d, Dir: true})
		}
	}

	if len(out) == 0 {
		if _, ok := c.files[root]; ok {
			// root 本身是文件
			return nil, nil
		}
		return nil, cluster.ErrNotFound
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func (c *Channel) Open(ctx context.Context, p string) (io.ReadCloser, error) {
	data, ok := c.ReadFile(p)
	if !ok {
		return nil, cluster.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (c *Channel) Create(ctx context.Context, p string) (io.WriteCloser, error) {
	return &writer{ch: c, path: clean(p)}, nil
}

func (c *Channel) DeleteRecursive(ctx context.Context, p string) error {
	p = clean(p)
	prefix := dirPrefix(p)

	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.files {
		if k == p || strings.HasPrefix(k, prefix) {
			delete(c.files, k)
		}
	}
	return nil
}

func dirPrefix(p string) string {
	if p == "/" {
		return p
	}
	return p + "/"
}

// writer 在 Close 时才把数据发布出去 (与磁盘实现的原子写一致)
type writer struct {
	ch   *Channel
	path string
	buf  bytes.Buffer
}

func (w *writer) Write(p []byte) (int, error) { return w.buf.Write(p) }

func (w *writer) Abort() error {
	w.buf.Reset()
	return nil
}

func (w *writer) Close() error {
	w.ch.WriteFile(w.path, w.buf.Bytes())
	return nil
}
