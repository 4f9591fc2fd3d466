package binder

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"itemstore/pkg/channel/memory"
	"itemstore/pkg/cluster"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// spyChannel 统计 Exists 调用次数，可选地注入错误或钩子
type spyChannel struct {
	*memory.Channel
	probes  int32
	err     error
	onProbe func()
}

func newSpy(name string) *spyChannel {
	return &spyChannel{Channel: memory.New(name, "/home/"+name)}
}

func (s *spyChannel) Exists(ctx context.Context, p string) (bool, error) {
	atomic.AddInt32(&s.probes, 1)
	if s.onProbe != nil {
		s.onProbe()
	}
	if s.err != nil {
		return false, s.err
	}
	return s.Channel.Exists(ctx, p)
}

func (s *spyChannel) count() int { return int(atomic.LoadInt32(&s.probes)) }

const rel = "jobs/proj/cache"

func TestResolve_BoundSkipsDiscovery(t *testing.T) {
	n1, n2 := newSpy("n1"), newSpy("n2")
	n2.WriteFile("/home/n2/"+rel+"/a.txt", []byte("a"))
	coord := newSpy("coordinator")

	b := New(cluster.NewStatic(cluster.Node{Name: "coordinator", Channel: coord},
		cluster.Node{Name: "n1", Channel: n1},
		cluster.Node{Name: "n2", Channel: n2},
	))

	ch, err := b.Resolve(context.Background(), rel, NewBinding(n1))
	require.NoError(t, err)
	assert.Same(t, n1, ch)
	assert.Zero(t, n1.count()+n2.count()+coord.count(), "绑定通道时不应该探测任何节点")
}

func TestResolve_FirstMatchWins(t *testing.T) {
	n1, n2 := newSpy("n1"), newSpy("n2")
	n1.WriteFile("/home/n1/"+rel+"/a.txt", []byte("1"))
	n2.WriteFile("/home/n2/"+rel+"/a.txt", []byte("2"))
	coord := newSpy("coordinator")

	b := New(cluster.NewStatic(cluster.Node{Name: "coordinator", Channel: coord},
		cluster.Node{Name: "n1", Channel: n1},
		cluster.Node{Name: "n2", Channel: n2},
	))

	binding := NewBinding(nil)
	ch, err := b.Resolve(context.Background(), rel, binding)
	require.NoError(t, err)
	assert.Same(t, n1, ch)
	assert.Equal(t, 1, n1.count())
	assert.Zero(t, n2.count(), "命中后不再探测后面的节点")

	// 缓存命中，不再探测
	ch, err = b.Resolve(context.Background(), rel, binding)
	require.NoError(t, err)
	assert.Same(t, n1, ch)
	assert.Equal(t, 1, n1.count())

	// 子句柄继承缓存
	child := binding.Derive()
	assert.Same(t, n1, child.Cached())
}

func TestResolve_OrderByName(t *testing.T) {
	zeta, alpha := newSpy("zeta"), newSpy("alpha")
	zeta.WriteFile("/home/zeta/"+rel+"/a", nil)
	alpha.WriteFile("/home/alpha/"+rel+"/a", nil)
	coord := newSpy("coordinator")

	m := cluster.NewStatic(cluster.Node{Name: "coordinator", Channel: coord},
		cluster.Node{Name: "zeta", Channel: zeta},
		cluster.Node{Name: "alpha", Channel: alpha},
	)

	ch, err := New(m).Resolve(context.Background(), rel, NewBinding(nil))
	require.NoError(t, err)
	assert.Same(t, zeta, ch, "默认按成员服务的顺序")

	ch, err = New(m, WithOrder(cluster.OrderByName)).Resolve(context.Background(), rel, NewBinding(nil))
	require.NoError(t, err)
	assert.Same(t, alpha, ch)
}

func TestResolve_CoordinatorIsCandidate(t *testing.T) {
	n1 := newSpy("n1")
	coord := newSpy("coordinator")
	coord.WriteFile("/home/coordinator/"+rel+"/a", nil)

	b := New(cluster.NewStatic(cluster.Node{Name: "coordinator", Channel: coord},
		cluster.Node{Name: "n1", Channel: n1},
		cluster.Node{Name: "offline"},
	))

	ch, err := b.Resolve(context.Background(), rel, NewBinding(nil))
	require.NoError(t, err)
	assert.Same(t, coord, ch)
	assert.Equal(t, 1, n1.count())
	assert.Equal(t, 1, coord.count(), "coordinator 只探测一次")
}

func TestResolve_Unresolved(t *testing.T) {
	n1 := newSpy("n1")
	coord := newSpy("coordinator")
	b := New(cluster.NewStatic(cluster.Node{Name: "coordinator", Channel: coord},
		cluster.Node{Name: "n1", Channel: n1},
	))

	binding := NewBinding(nil)
	_, err := b.Resolve(context.Background(), rel, binding)
	assert.ErrorIs(t, err, ErrUnresolvedChannel)
	assert.Nil(t, binding.Cached(), "失败不缓存")

	fb, err := b.Fallback()
	require.NoError(t, err)
	assert.Same(t, coord, fb)

	_, err = New(cluster.NewStatic(cluster.Node{Name: "coordinator"})).Fallback()
	assert.ErrorIs(t, err, ErrUnresolvedChannel)
}

func TestResolve_ProbeErrorSkipsNode(t *testing.T) {
	n1, n2 := newSpy("n1"), newSpy("n2")
	n1.err = errors.New("connection reset")
	n2.WriteFile("/home/n2/"+rel+"/a", nil)

	b := New(cluster.NewStatic(cluster.Node{Name: "coordinator", Channel: newSpy("coordinator")},
		cluster.Node{Name: "n1", Channel: n1},
		cluster.Node{Name: "n2", Channel: n2},
	))

	ch, err := b.Resolve(context.Background(), rel, NewBinding(nil))
	require.NoError(t, err)
	assert.Same(t, n2, ch)
}

func TestResolve_Interrupted(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	n1, n2 := newSpy("n1"), newSpy("n2")
	n1.onProbe = cancel
	n2.WriteFile("/home/n2/"+rel+"/a", nil)

	b := New(cluster.NewStatic(cluster.Node{Name: "coordinator", Channel: newSpy("coordinator")},
		cluster.Node{Name: "n1", Channel: n1},
		cluster.Node{Name: "n2", Channel: n2},
	))

	_, err := b.Resolve(ctx, rel, NewBinding(nil))
	assert.ErrorIs(t, err, cluster.ErrInterrupted)
	assert.Zero(t, n2.count(), "取消之后不再探测")
}

func TestResolve_ConcurrentConverges(t *testing.T) {
	n1 := newSpy("n1")
	n1.WriteFile("/home/n1/"+rel+"/a", nil)
	b := New(cluster.NewStatic(cluster.Node{Name: "coordinator", Channel: newSpy("coordinator")},
		cluster.Node{Name: "n1", Channel: n1},
	))

	binding := NewBinding(nil)
	var wg sync.WaitGroup
	results := make([]cluster.Channel, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ch, err := b.Resolve(context.Background(), rel, binding)
			assert.NoError(t, err)
			results[i] = ch
		}(i)
	}
	wg.Wait()

	for _, ch := range results {
		assert.Same(t, n1, ch)
	}
	assert.Same(t, n1, binding.Cached())
}

// flightWaiters 返回 rel 上当前发现登记的等待者数量
func flightWaiters(b *Binder, rel string) int {
	b.mu.Lock()
	f := b.flights[rel]
	b.mu.Unlock()
	if f == nil {
		return 0
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.waiters)
}

func TestResolve_SharedSweepCancellation(t *testing.T) {
	n1, n2 := newSpy("n1"), newSpy("n2")
	n2.WriteFile("/home/n2/"+rel+"/a", nil)

	// n1 的第一次探测卡住，直到 gate 打开
	gate := make(chan struct{})
	entered := make(chan struct{})
	var once sync.Once
	n1.onProbe = func() {
		once.Do(func() {
			close(entered)
			<-gate
		})
	}

	b := New(cluster.NewStatic(cluster.Node{Name: "coordinator", Channel: newSpy("coordinator")},
		cluster.Node{Name: "n1", Channel: n1},
		cluster.Node{Name: "n2", Channel: n2},
	))

	// 1. A 发起发现，卡在 n1
	ctxA, cancelA := context.WithCancel(context.Background())
	defer cancelA()
	errA := make(chan error, 1)
	go func() {
		_, err := b.Resolve(ctxA, rel, NewBinding(nil))
		errA <- err
	}()
	<-entered

	// 2. B 是独立的句柄，加入同一次发现
	type result struct {
		ch  cluster.Channel
		err error
	}
	resB := make(chan result, 1)
	go func() {
		ch, err := b.Resolve(context.Background(), rel, NewBinding(nil))
		resB <- result{ch, err}
	}()
	require.Eventually(t, func() bool { return flightWaiters(b, rel) == 2 }, time.Second, time.Millisecond)

	// 3. A 取消后立即返回，不用等卡住的探测
	cancelA()
	select {
	case err := <-errA:
		assert.ErrorIs(t, err, cluster.ErrInterrupted)
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("cancelled caller is still waiting on the shared discovery")
	}

	// 4. B 没有取消，发现继续进行并找到 n2
	close(gate)
	select {
	case r := <-resB:
		require.NoError(t, r.err)
		assert.Same(t, n2, r.ch)
	case <-time.After(time.Second):
		t.Fatal("discovery did not finish")
	}
}

func TestResolve_AfterAbandonedSweep(t *testing.T) {
	n1 := newSpy("n1")
	n1.WriteFile("/home/n1/"+rel+"/a", nil)
	b := New(cluster.NewStatic(cluster.Node{Name: "coordinator", Channel: newSpy("coordinator")},
		cluster.Node{Name: "n1", Channel: n1},
	))

	// 唯一的调用方已经取消
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := b.Resolve(ctx, rel, NewBinding(nil))
	require.ErrorIs(t, err, cluster.ErrInterrupted)

	// 之后的调用方不受影响
	ch, err := b.Resolve(context.Background(), rel, NewBinding(nil))
	require.NoError(t, err)
	assert.Same(t, n1, ch)
}

func TestLocate(t *testing.T) {
	loc, err := Locate(context.Background(), memory.New("n1", "/home/n1"), rel)
	require.NoError(t, err)
	assert.Equal(t, "/home/n1/jobs/proj/cache", loc.Path)
	assert.Equal(t, "n1:/home/n1/jobs/proj/cache", loc.String())
}
