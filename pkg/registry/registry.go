package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"itemstore/pkg/cluster"
	"itemstore/pkg/meta"
)

// Factory 根据注册表中的一行打开节点通道
type Factory func(ctx context.Context, n meta.NodeModel) (cluster.Channel, error)

// Registry 是基于数据库的 Membership
// 节点顺序由 Ordinal 决定；离线节点返回 nil 通道，由发现逻辑跳过。
type Registry struct {
	repo        *meta.Repository
	factory     Factory
	coordinator cluster.Node
	logger      *slog.Logger

	mu       sync.Mutex
	channels map[string]openChannel
}

// openChannel 记录通道是按哪个版本的注册信息打开的
type openChannel struct {
	ch        cluster.Channel
	updatedAt time.Time
}

var _ cluster.Membership = (*Registry)(nil)

func New(repo *meta.Repository, factory Factory, coordinator cluster.Node, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		repo:        repo,
		factory:     factory,
		coordinator: coordinator,
		logger:      logger,
		channels:    make(map[string]openChannel),
	}
}

func (r *Registry) Coordinator() cluster.Node { return r.coordinator }

func (r *Registry) Nodes(ctx context.Context) ([]cluster.Node, error) {
	rows, err := r.repo.ListNodes(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read node registry: %w", err)
	}

	out := make([]cluster.Node, 0, len(rows))
	for _, row := range rows {
		n := cluster.Node{Name: row.Name}
		if row.Online {
			ch, err := r.channel(ctx, row)
			if err != nil {
				// 打不开的节点视为离线
				r.logger.Warn("node unavailable", slog.String("node", row.Name), slog.Any("err", err))
			} else {
				n.Channel = ch
			}
		}
		out = append(out, n)
	}
	return out, nil
}

// channel 复用已打开的通道，注册信息变化后重新打开
func (r *Registry) channel(ctx context.Context, row meta.NodeModel) (cluster.Channel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if oc, ok := r.channels[row.Name]; ok && oc.updatedAt.Equal(row.UpdatedAt) {
		return oc.ch, nil
	}
	ch, err := r.factory(ctx, row)
	if err != nil {
		return nil, err
	}
	r.channels[row.Name] = openChannel{ch: ch, updatedAt: row.UpdatedAt}
	return ch, nil
}
