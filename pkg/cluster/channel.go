package cluster

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"
)

var (
	ErrNotFound    = errors.New("path not found")
	ErrInterrupted = errors.New("operation interrupted")
)

// Entry 是 List 返回的一条记录
type Entry struct {
	Path    string // 相对于 List 根目录的路径，"/" 分隔
	Dir     bool
	Size    int64
	ModTime time.Time
}

// Channel 定义了在某个节点文件系统上执行操作的句柄
// 实现可以是本地磁盘、对象存储或内存。
// Channel 从 Node 借来，ObjectPath 不拥有它，也不负责关闭。
type Channel interface {
	// Name 返回所属节点的名字
	Name() string

	// Home 返回节点的 home 目录，所有相对路径都挂在它下面
	Home(ctx context.Context) (string, error)

	// Exists 检查文件或目录是否存在
	Exists(ctx context.Context, path string) (bool, error)

	// List 递归列出 root 下的所有条目，按 Path 排序
	// root 不存在时返回 ErrNotFound
	List(ctx context.Context, root string) ([]Entry, error)

	// Open 打开文件用于流式读取
	Open(ctx context.Context, path string) (io.ReadCloser, error)

	// Create 创建 (或覆盖) 文件，父目录自动创建
	// 数据在 Close 成功后才对其他读者可见
	Create(ctx context.Context, path string) (io.WriteCloser, error)

	// DeleteRecursive 删除整棵目录树，路径不存在不算错误
	DeleteRecursive(ctx context.Context, path string) error
}

// Aborter 由可以丢弃未发布数据的写入器实现
// 传输失败时调用 Abort 而不是 Close，避免把半截文件发布出去
type Aborter interface {
	Abort() error
}

// Location 是 “节点 + 节点上的绝对路径”
type Location struct {
	Channel Channel
	Path    string
}

func (l Location) String() string {
	if l.Channel == nil {
		return "<unbound>:" + l.Path
	}
	return l.Channel.Name() + ":" + l.Path
}

// Interrupted 在循环的每次迭代之间调用，检查协作式取消
func Interrupted(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrInterrupted, err)
	}
	return nil
}
