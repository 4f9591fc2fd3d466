package cluster

import (
	"context"
	"fmt"
	"sort"
)

// Node 是集群中的一个成员
// Channel 为 nil 表示节点离线
type Node struct {
	Name    string
	Channel Channel
}

func (n Node) Online() bool { return n.Channel != nil }

// Membership 是集群成员服务的抽象
// Coordinator 总是集群的一员，即使它没有被单独注册
type Membership interface {
	// Nodes 按注册顺序返回所有已注册节点
	Nodes(ctx context.Context) ([]Node, error)

	// Coordinator 返回协调节点
	Coordinator() Node
}

// Order 决定发现 (Discovery) 时候选节点的遍历顺序
type Order string

const (
	// OrderMembership 保持成员服务给出的顺序，Coordinator 排在最后
	OrderMembership Order = "membership"
	// OrderByName 按节点名字母序
	OrderByName Order = "name"
)

// ParseOrder 解析配置中的顺序字符串，空字符串视为默认值
func ParseOrder(s string) (Order, error) {
	switch Order(s) {
	case "", OrderMembership:
		return OrderMembership, nil
	case OrderByName:
		return OrderByName, nil
	default:
		return "", fmt.Errorf("unsupported discovery order: %s", s)
	}
}

// Candidates 返回发现时需要探测的节点集合：已注册节点 ∪ {Coordinator}
// Coordinator 和普通节点一视同仁；离线节点被跳过。
func Candidates(ctx context.Context, m Membership, order Order) ([]Node, error) {
	nodes, err := m.Nodes(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list cluster nodes: %w", err)
	}

	seen := make(map[string]bool, len(nodes)+1)
	out := make([]Node, 0, len(nodes)+1)
	for _, n := range append(nodes, m.Coordinator()) {
		if seen[n.Name] || !n.Online() {
			continue
		}
		seen[n.Name] = true
		out = append(out, n)
	}

	if order == OrderByName {
		sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	}
	return out, nil
}

// Static 是一个固定节点列表的 Membership (来自配置文件)
type Static struct {
	nodes       []Node
	coordinator Node
}

func NewStatic(coordinator Node, nodes ...Node) *Static {
	return &Static{nodes: nodes, coordinator: coordinator}
}

func (s *Static) Nodes(ctx context.Context) ([]Node, error) {
	out := make([]Node, len(s.nodes))
	copy(out, s.nodes)
	return out, nil
}

func (s *Static) Coordinator() Node { return s.coordinator }
