package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"time"

	"itemstore/pkg/cluster"
	"itemstore/pkg/filter"
)

// TransferError 表示传输中某一端的 I/O 失败
type TransferError struct {
	Op   string // "list", "open", "read", "create", "write", "publish"
	Node string
	Path string
	Err  error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("transfer %s %s:%s: %v", e.Op, e.Node, e.Path, e.Err)
}

func (e *TransferError) Unwrap() error { return e.Err }

// Report 描述一次完成 (或失败) 的传输，交给 Recorder 持久化
type Report struct {
	SourceNode string
	SourcePath string
	DestNode   string
	DestPath   string
	Includes   string
	Excludes   string
	Count      int
	StartedAt  time.Time
	Duration   time.Duration
	Err        error
}

// Recorder 接收传输报告 (例如写入传输台账)
type Recorder interface {
	Record(ctx context.Context, r Report) error
}

// Transfer 在两个节点的通道之间递归复制目录树
// 字节从源通道直接流向目标通道，不经过第三方中转。
type Transfer struct {
	logger          *slog.Logger
	recorder        Recorder
	defaultExcludes bool
}

type Option func(*Transfer)

func WithLogger(l *slog.Logger) Option { return func(t *Transfer) { t.logger = l } }

func WithRecorder(r Recorder) Option { return func(t *Transfer) { t.recorder = r } }

// WithDefaultExcludes 控制是否跳过 VCS/编辑器残留文件 (默认开启)
func WithDefaultExcludes(on bool) Option { return func(t *Transfer) { t.defaultExcludes = on } }

func New(opts ...Option) *Transfer {
	t := &Transfer{logger: slog.Default(), defaultExcludes: true}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// CopyRecursive 把 src 下匹配的文件复制到 dst 下，返回复制的文件数 (目录不计数)
// 被取消时返回已完成的数量和 ErrInterrupted；I/O 失败返回已完成的数量和 *TransferError。
// 源目录不存在时什么也不做。
func (t *Transfer) CopyRecursive(ctx context.Context, src, dst cluster.Location, includes, excludes string) (int, error) {
	if src.Channel == nil || dst.Channel == nil {
		return 0, fmt.Errorf("transfer %s -> %s: location is not bound to a node", src, dst)
	}

	t.logger.Info("copying",
		slog.String("src_node", src.Channel.Name()),
		slog.String("src", src.Path),
		slog.String("dst_node", dst.Channel.Name()),
		slog.String("dst", dst.Path),
	)

	start := time.Now()
	count, err := t.copyTree(ctx, src, dst, includes, excludes)
	t.report(ctx, Report{
		SourceNode: src.Channel.Name(),
		SourcePath: src.Path,
		DestNode:   dst.Channel.Name(),
		DestPath:   dst.Path,
		Includes:   includes,
		Excludes:   excludes,
		Count:      count,
		StartedAt:  start,
		Duration:   time.Since(start),
		Err:        err,
	})
	return count, err
}

func (t *Transfer) copyTree(ctx context.Context, src, dst cluster.Location, includes, excludes string) (int, error) {
	// 1. 解析过滤器
	f, err := filter.New(includes, excludes, t.defaultExcludes)
	if err != nil {
		return 0, err
	}

	// 2. 列出源目录
	entries, err := src.Channel.List(ctx, src.Path)
	if errors.Is(err, cluster.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, t.failure(ctx, &TransferError{Op: "list", Node: src.Channel.Name(), Path: src.Path, Err: err})
	}

	// 3. 逐个文件流式复制，每个文件之前检查取消
	count := 0
	for _, e := range entries {
		if e.Dir || !f.Match(e.Path) {
			continue
		}
		if err := cluster.Interrupted(ctx); err != nil {
			return count, err
		}
		if err := t.copyFile(ctx, src, dst, e.Path); err != nil {
			return count, t.failure(ctx, err)
		}
		count++
	}
	return count, nil
}

// failure 把“因取消导致的 I/O 失败”统一成 ErrInterrupted
func (t *Transfer) failure(ctx context.Context, err error) error {
	if ierr := cluster.Interrupted(ctx); ierr != nil {
		return errors.Join(ierr, err)
	}
	return err
}

func (t *Transfer) copyFile(ctx context.Context, src, dst cluster.Location, rel string) error {
	srcPath := path.Join(src.Path, rel)
	dstPath := path.Join(dst.Path, rel)

	r, err := src.Channel.Open(ctx, srcPath)
	if err != nil {
		return &TransferError{Op: "open", Node: src.Channel.Name(), Path: srcPath, Err: err}
	}
	defer r.Close()

	w, err := dst.Channel.Create(ctx, dstPath)
	if err != nil {
		return &TransferError{Op: "create", Node: dst.Channel.Name(), Path: dstPath, Err: err}
	}

	tw := &trackedWriter{w: w}
	if _, err := io.Copy(tw, r); err != nil {
		t.abort(w, dst.Channel.Name(), dstPath)
		// 区分是读端还是写端出错
		if tw.err != nil {
			return &TransferError{Op: "write", Node: dst.Channel.Name(), Path: dstPath, Err: tw.err}
		}
		return &TransferError{Op: "read", Node: src.Channel.Name(), Path: srcPath, Err: err}
	}

	if err := w.Close(); err != nil {
		return &TransferError{Op: "publish", Node: dst.Channel.Name(), Path: dstPath, Err: err}
	}
	return nil
}

// trackedWriter 记住写端返回的第一个错误
type trackedWriter struct {
	w   io.Writer
	err error
}

func (t *trackedWriter) Write(p []byte) (int, error) {
	n, err := t.w.Write(p)
	if err != nil && t.err == nil {
		t.err = err
	}
	return n, err
}

// abort 丢弃写了一半的文件；清理失败只记日志，原始错误更重要
func (t *Transfer) abort(w io.WriteCloser, node, p string) {
	var err error
	if a, ok := w.(cluster.Aborter); ok {
		err = a.Abort()
	} else {
		err = w.Close()
	}
	if err != nil {
		t.logger.Warn("failed to discard partial file",
			slog.String("node", node),
			slog.String("path", p),
			slog.Any("err", err),
		)
	}
}

func (t *Transfer) report(ctx context.Context, r Report) {
	level := slog.LevelInfo
	if r.Err != nil {
		level = slog.LevelError
		if errors.Is(r.Err, cluster.ErrInterrupted) {
			level = slog.LevelWarn
		}
	}
	t.logger.Log(ctx, level, "transfer finished",
		slog.String("src_node", r.SourceNode),
		slog.String("dst_node", r.DestNode),
		slog.Int("count", r.Count),
		slog.Duration("dur", r.Duration),
		slog.String("err", errToString(r.Err)),
	)

	if t.recorder == nil {
		return
	}
	// 台账是尽力而为的：即使调用方已经取消，也要把记录写完
	if err := t.recorder.Record(context.WithoutCancel(ctx), r); err != nil {
		t.logger.Warn("failed to record transfer", slog.Any("err", err))
	}
}

func errToString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
