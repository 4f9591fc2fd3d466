package objectpath

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"itemstore/pkg/binder"
	"itemstore/pkg/browse"
	"itemstore/pkg/cluster"
	"itemstore/pkg/layout"
	"itemstore/pkg/transfer"
	"itemstore/pkg/types"
)

// Handle 指向某个条目下的一个逻辑路径
// 调用方不需要知道数据在哪个节点：Handle 负责绑定/发现节点，然后在那里操作。
// Handle 是不可变的，Child 返回新的 Handle。
type Handle struct {
	binder   *binder.Binder
	transfer *transfer.Transfer
	logger   *slog.Logger

	item    types.Item
	sub     types.SubPath
	binding *binder.Binding
}

// New 创建一个 Handle
// bound 是执行上下文提供的节点通道，浏览场景下为 nil。
func New(b *binder.Binder, t *transfer.Transfer, item types.Item, bound cluster.Channel, segments ...string) *Handle {
	return &Handle{
		binder:   b,
		transfer: t,
		logger:   slog.Default(),
		item:     item,
		sub:      types.NewSubPath(segments...),
		binding:  binder.NewBinding(bound),
	}
}

// WithLogger 返回使用指定 logger 的副本
func (h *Handle) WithLogger(l *slog.Logger) *Handle {
	nh := *h
	nh.logger = l
	return &nh
}

// Child 返回追加了一个路径段的新 Handle，绑定结果带过去，不重新发现
func (h *Handle) Child(seg string) *Handle {
	return &Handle{
		binder:   h.binder,
		transfer: h.transfer,
		logger:   h.logger,
		item:     h.item,
		sub:      h.sub.Child(seg),
		binding:  h.binding.Derive(),
	}
}

func (h *Handle) Item() types.Item { return h.item }

func (h *Handle) SubPath() types.SubPath { return h.sub }

// RelativePath 返回与节点无关的相对路径
func (h *Handle) RelativePath() string {
	return layout.RelativePath(h.item, h.sub)
}

// rel 是操作前使用的相对路径，会逃出条目存储区域的路径被拒绝
func (h *Handle) rel() (string, error) {
	rel, err := layout.Resolve(h.item, h.sub)
	if err != nil {
		return "", fmt.Errorf("%s: %w", h, err)
	}
	return rel, nil
}

func (h *Handle) String() string {
	return h.item.String() + ":" + h.sub.String()
}

// Locate 返回持有数据的节点上的绝对位置
// 找不到节点时返回 ErrUnresolvedChannel
func (h *Handle) Locate(ctx context.Context) (cluster.Location, error) {
	rel, err := h.rel()
	if err != nil {
		return cluster.Location{}, err
	}
	ch, err := h.binder.Resolve(ctx, rel, h.binding)
	if err != nil {
		return cluster.Location{}, err
	}
	return binder.Locate(ctx, ch, rel)
}

// lenient 在发现失败时退回 Coordinator
func (h *Handle) lenient(ctx context.Context) (cluster.Location, error) {
	rel, err := h.rel()
	if err != nil {
		return cluster.Location{}, err
	}
	ch, err := h.binder.Resolve(ctx, rel, h.binding)
	if errors.Is(err, binder.ErrUnresolvedChannel) {
		ch, err = h.binder.Fallback()
	}
	if err != nil {
		return cluster.Location{}, err
	}
	return binder.Locate(ctx, ch, rel)
}

// Exists 检查路径是否存在；集群里没人有这个路径时返回 false
func (h *Handle) Exists(ctx context.Context) (bool, error) {
	loc, err := h.lenient(ctx)
	if err != nil {
		return false, err
	}
	return loc.Channel.Exists(ctx, loc.Path)
}

// DeleteRecursive 删除整棵目录树，路径不存在时什么也不做
func (h *Handle) DeleteRecursive(ctx context.Context) error {
	loc, err := h.lenient(ctx)
	if err != nil {
		return err
	}
	h.logger.Info("deleting", slog.String("node", loc.Channel.Name()), slog.String("path", loc.Path))
	if err := loc.Channel.DeleteRecursive(ctx, loc.Path); err != nil {
		return fmt.Errorf("failed to delete %s: %w", loc, err)
	}
	return nil
}

// anchor 决定缓存所在的节点：
// 有绑定通道就用它，否则用外部端点自己的节点 (本地缓存)。
func (h *Handle) anchor(ctx context.Context, external cluster.Location) (cluster.Location, error) {
	rel, err := h.rel()
	if err != nil {
		return cluster.Location{}, err
	}
	ch := h.binding.Bound()
	if ch == nil {
		ch = external.Channel
	}
	if ch == nil {
		return cluster.Location{}, fmt.Errorf("%w: %s has no bound node and %s is unbound", binder.ErrUnresolvedChannel, h, external)
	}
	return binder.Locate(ctx, ch, rel)
}

// CopyRecursiveTo 把缓存复制到 target，返回复制的文件数
func (h *Handle) CopyRecursiveTo(ctx context.Context, includes, excludes string, target cluster.Location) (int, error) {
	cache, err := h.anchor(ctx, target)
	if err != nil {
		return 0, err
	}
	return h.transfer.CopyRecursive(ctx, cache, target, includes, excludes)
}

// CopyRecursiveFrom 把 source 复制进缓存，返回复制的文件数
func (h *Handle) CopyRecursiveFrom(ctx context.Context, includes, excludes string, source cluster.Location) (int, error) {
	cache, err := h.anchor(ctx, source)
	if err != nil {
		return 0, err
	}
	return h.transfer.CopyRecursive(ctx, source, cache, includes, excludes)
}

// Browse 把解析出的位置交给浏览器
// 任何失败都只记日志并返回 nil：浏览是尽力而为的。
func (h *Handle) Browse(ctx context.Context, b browse.Browser, name string) *browse.Listing {
	loc, err := h.Locate(ctx)
	if err != nil {
		h.logger.Warn("cache not available for browsing", slog.String("path", h.String()), slog.Any("err", err))
		return nil
	}
	listing, err := b.Browse(ctx, loc, "Cache of "+name)
	if err != nil {
		h.logger.Warn("failed to browse cache", slog.String("location", loc.String()), slog.Any("err", err))
		return nil
	}
	return listing
}
