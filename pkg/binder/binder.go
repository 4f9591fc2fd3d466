package binder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"itemstore/pkg/cluster"
	"itemstore/pkg/layout"

	"golang.org/x/sync/singleflight"
)

// ErrUnresolvedChannel 表示没有任何节点持有该路径，且没有预先绑定的通道
var ErrUnresolvedChannel = errors.New("no node holds the path")

// Binding 是每个句柄上的绑定槽位
// bound 来自执行上下文 (可能为 nil)；cached 是发现结果，只写一次。
type Binding struct {
	bound  cluster.Channel
	cached atomic.Pointer[channelRef]
}

// atomic.Pointer 需要具体类型，接口值包一层
type channelRef struct{ ch cluster.Channel }

func NewBinding(bound cluster.Channel) *Binding {
	return &Binding{bound: bound}
}

// Bound 返回执行上下文提供的通道
func (b *Binding) Bound() cluster.Channel {
	if b == nil {
		return nil
	}
	return b.bound
}

// Cached 返回之前发现的通道
func (b *Binding) Cached() cluster.Channel {
	if b == nil {
		return nil
	}
	if ref := b.cached.Load(); ref != nil {
		return ref.ch
	}
	return nil
}

// remember 设置发现结果 (CAS，只有第一次生效)
// 返回最终生效的通道：并发发现时后来者采用先到者的结果
func (b *Binding) remember(ch cluster.Channel) cluster.Channel {
	if b.cached.CompareAndSwap(nil, &channelRef{ch: ch}) {
		return ch
	}
	return b.cached.Load().ch
}

// Derive 为子句柄创建新的 Binding，绑定和已发现的通道都带过去
func (b *Binding) Derive() *Binding {
	nb := &Binding{bound: b.Bound()}
	if ch := b.Cached(); ch != nil {
		nb.cached.Store(&channelRef{ch: ch})
	}
	return nb
}

// Binder 负责把相对路径解析到持有它的节点
type Binder struct {
	membership cluster.Membership
	order      cluster.Order
	logger     *slog.Logger
	group      singleflight.Group

	mu      sync.Mutex
	flights map[string]*flight
}

// flight 是同一路径上一次共享的发现
// 探测只在所有等待者都取消之后才中断，单个等待者取消只影响它自己。
type flight struct {
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	waiters []context.Context
}

// abandoned 报告是否所有等待者都已经取消
func (f *flight) abandoned() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, w := range f.waiters {
		if w.Err() == nil {
			return false
		}
	}
	return true
}

func (f *flight) interrupted() error {
	if err := cluster.Interrupted(f.ctx); err != nil {
		return err
	}
	if f.abandoned() {
		return fmt.Errorf("%w: every caller cancelled", cluster.ErrInterrupted)
	}
	return nil
}

type Option func(*Binder)

func WithOrder(o cluster.Order) Option { return func(b *Binder) { b.order = o } }

func WithLogger(l *slog.Logger) Option { return func(b *Binder) { b.logger = l } }

func New(m cluster.Membership, opts ...Option) *Binder {
	b := &Binder{
		membership: m,
		order:      cluster.OrderMembership,
		logger:     slog.Default(),
		flights:    make(map[string]*flight),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Resolve 返回持有 rel 的节点通道
// 顺序：绑定通道 -> 缓存 -> 发现。发现失败返回 ErrUnresolvedChannel。
func (b *Binder) Resolve(ctx context.Context, rel string, binding *Binding) (cluster.Channel, error) {
	// 1. 执行上下文已经告诉我们在哪个节点
	if ch := binding.Bound(); ch != nil {
		return ch, nil
	}

	// 2. 之前发现过
	if ch := binding.Cached(); ch != nil {
		return ch, nil
	}

	// 3. 发现：同一路径的并发发现合并成一次探测
	for {
		ch, err := b.await(ctx, rel)
		if err == nil {
			if binding != nil {
				ch = binding.remember(ch)
			}
			return ch, nil
		}
		// 共享的探测被其他调用方全部取消，而自己没有取消：重新发起
		if errors.Is(err, cluster.ErrInterrupted) && ctx.Err() == nil {
			continue
		}
		return nil, err
	}
}

// await 加入 rel 上正在进行的发现 (没有就发起一次)，并在自己的 ctx 上等待
func (b *Binder) await(ctx context.Context, rel string) (cluster.Channel, error) {
	f := b.join(ctx, rel)
	stop := context.AfterFunc(ctx, func() {
		if f.abandoned() {
			f.cancel()
		}
	})
	defer stop()

	res := b.group.DoChan(rel, func() (any, error) {
		defer b.finish(rel, f)
		return b.discover(f, rel)
	})

	select {
	case <-ctx.Done():
		return nil, cluster.Interrupted(ctx)
	case r := <-res:
		if r.Err != nil {
			return nil, r.Err
		}
		return r.Val.(cluster.Channel), nil
	}
}

// join 把 ctx 登记为 rel 上当前发现的等待者
// 已经被放弃的发现不再接收新的等待者，改为发起新的一次。
func (b *Binder) join(ctx context.Context, rel string) *flight {
	b.mu.Lock()
	defer b.mu.Unlock()

	f := b.flights[rel]
	if f == nil || f.ctx.Err() != nil || f.abandoned() {
		if f != nil {
			b.group.Forget(rel)
		}
		fctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		f = &flight{ctx: fctx, cancel: cancel}
		b.flights[rel] = f
	}

	f.mu.Lock()
	f.waiters = append(f.waiters, ctx)
	f.mu.Unlock()
	return f
}

func (b *Binder) finish(rel string, f *flight) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.flights[rel] == f {
		delete(b.flights, rel)
	}
}

func (b *Binder) discover(f *flight, rel string) (cluster.Channel, error) {
	ctx := f.ctx
	nodes, err := cluster.Candidates(ctx, b.membership, b.order)
	if err != nil {
		if ierr := f.interrupted(); ierr != nil {
			return nil, ierr
		}
		return nil, err
	}

	for _, n := range nodes {
		if err := f.interrupted(); err != nil {
			return nil, err
		}

		ok, err := b.probe(ctx, n.Channel, rel)
		if err != nil {
			if ierr := f.interrupted(); ierr != nil {
				return nil, ierr
			}
			// 单个节点出错不影响其他节点
			b.logger.Warn("probe failed, skipping node",
				slog.String("node", n.Name),
				slog.String("rel", rel),
				slog.Any("err", err),
			)
			continue
		}
		if ok {
			b.logger.Debug("discovered", slog.String("node", n.Name), slog.String("rel", rel))
			return n.Channel, nil
		}
		b.logger.Debug("miss", slog.String("node", n.Name), slog.String("rel", rel))
	}

	return nil, fmt.Errorf("%w: %s (probed %d nodes)", ErrUnresolvedChannel, rel, len(nodes))
}

func (b *Binder) probe(ctx context.Context, ch cluster.Channel, rel string) (bool, error) {
	home, err := ch.Home(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to resolve home: %w", err)
	}
	return ch.Exists(ctx, layout.Physical(home, rel))
}

// Fallback 返回 Coordinator 的通道
// exists/delete 在发现失败时用它，这样没人持有的路径得到 false / no-op
func (b *Binder) Fallback() (cluster.Channel, error) {
	c := b.membership.Coordinator()
	if !c.Online() {
		return nil, fmt.Errorf("%w: coordinator %q is offline", ErrUnresolvedChannel, c.Name)
	}
	return c.Channel, nil
}

// Locate 把通道和相对路径组合成节点上的绝对位置
func Locate(ctx context.Context, ch cluster.Channel, rel string) (cluster.Location, error) {
	home, err := ch.Home(ctx)
	if err != nil {
		return cluster.Location{}, fmt.Errorf("failed to resolve home of %s: %w", ch.Name(), err)
	}
	return cluster.Location{Channel: ch, Path: layout.Physical(home, rel)}, nil
}
