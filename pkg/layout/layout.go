package layout

import (
	"path"

	"itemstore/pkg/types"
)

// RelativePath 返回条目子路径对应的规范相对路径
// 策略：<container>/<name>/<seg1>/.../<segN>
// Example: {jobs, proj} + [cache deps] -> "jobs/proj/cache/deps"
//
// 结果与节点无关：同一个相对路径会被挂到不同节点各自的 home 目录下。
func RelativePath(item types.Item, sub types.SubPath) string {
	parts := make([]string, 0, 2+len(sub.Segments()))
	parts = append(parts, item.Container, item.Name)
	parts = append(parts, sub.Segments()...)
	return path.Join(parts...)
}

// Resolve 和 RelativePath 相同，但先校验条目身份和子路径
// 结果总是位于 <container>/<name> 之下；否则返回 types.ErrInvalidPath。
func Resolve(item types.Item, sub types.SubPath) (string, error) {
	if err := item.Validate(); err != nil {
		return "", err
	}
	if err := sub.Validate(); err != nil {
		return "", err
	}
	return RelativePath(item, sub), nil
}

// Physical 把相对路径挂到某个节点的 home 目录下 (统一使用 "/" 分隔)
func Physical(home, rel string) string {
	if home == "" {
		return rel
	}
	return path.Join(home, rel)
}
