package disk

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"itemstore/pkg/cluster"

	"github.com/charlievieth/fastwalk"
)

// Channel 实现了 cluster.Channel 接口，操作本机磁盘
type Channel struct {
	name string
	home string // 比如: /var/lib/itemstore/home
}

// NewChannel 创建一个新的本地磁盘节点通道
func NewChannel(name, home string) (*Channel, error) {
	abs, err := filepath.Abs(home)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve home dir: %w", err)
	}
	// 确保 home 目录存在
	if err := os.MkdirAll(abs, 0755); err != nil {
		return nil, fmt.Errorf("failed to create home dir: %w", err)
	}
	return &Channel{name: name, home: filepath.ToSlash(abs)}, nil
}

func (c *Channel) Name() string { return c.name }

func (c *Channel) Home(ctx context.Context) (string, error) { return c.home, nil }

// native 把 "/" 分隔的路径转换为本机路径
func native(p string) string {
	return filepath.Clean(filepath.FromSlash(p))
}

func (c *Channel) Exists(ctx context.Context, p string) (bool, error) {
	_, err := os.Stat(native(p))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

func (c *Channel) List(ctx context.Context, root string) ([]cluster.Entry, error) {
	base := native(root)
	info, err := os.Stat(base)
	if os.IsNotExist(err) {
		return nil, cluster.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, nil
	}

	var (
		mu  sync.Mutex
		out []cluster.Entry
	)
	conf := fastwalk.Config{Follow: false}

	// fastwalk 会并发回调，写 out 时必须加锁
	err = fastwalk.Walk(&conf, base, func(p string, d fs.DirEntry, err error) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err != nil {
			return err
		}
		if p == base {
			return nil
		}

		fi, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(base, p)
		if err != nil {
			return err
		}

		e := cluster.Entry{Path: filepath.ToSlash(rel), Dir: d.IsDir(), ModTime: fi.ModTime()}
		if !e.Dir {
			e.Size = fi.Size()
		}

		mu.Lock()
		out = append(out, e)
		mu.Unlock()
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func (c *Channel) Open(ctx context.Context, p string) (io.ReadCloser, error) {
	f, err := os.Open(native(p))
	if os.IsNotExist(err) {
		return nil, cluster.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return f, nil
}

// Create 原子写入 (Atomic Write)
// 技巧：先写到同目录下的临时文件，Close 时再 Rename。
// 这样保证读者要么看不到文件，要么看到完整的文件。
func (c *Channel) Create(ctx context.Context, p string) (io.WriteCloser, error) {
	target := native(p)
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return nil, err
	}
	return &atomicFile{File: tmp, target: target}, nil
}

func (c *Channel) DeleteRecursive(ctx context.Context, p string) error {
	// os.RemoveAll 对不存在的路径返回 nil，正好满足幂等
	return os.RemoveAll(native(p))
}

type atomicFile struct {
	*os.File
	target string
}

// Abort 丢弃临时文件，目标文件保持原样
func (f *atomicFile) Abort() error {
	f.File.Close()
	return os.Remove(f.Name())
}

func (f *atomicFile) Close() error {
	// 无论成功与否都清理临时文件 (Rename 成功后这个删除是无害的)
	defer os.Remove(f.Name())

	if err := f.File.Close(); err != nil {
		return err
	}
	if err := os.Rename(f.Name(), f.target); err != nil {
		return errors.Join(fmt.Errorf("failed to publish %s", f.target), err)
	}
	return nil
}
