package meta

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

// -----------------------------------------------------------------------------
// 通用辅助函数 (Helpers)
// -----------------------------------------------------------------------------

// mustUpsertNode 注册节点，失败则终止
func mustUpsertNode(t *testing.T, repo *Repository, name, kind, root string, online bool, msgAndArgs ...any) *NodeModel {
	t.Helper()
	n := &NodeModel{Name: name, Kind: kind, Root: root, Online: online}
	require.NoError(t, repo.UpsertNode(context.Background(), n), msgAndArgs...)
	return n
}

// nodeNames 提取名字，方便断言顺序
func nodeNames(nodes []NodeModel) []string {
	out := make([]string, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, n.Name)
	}
	return out
}
