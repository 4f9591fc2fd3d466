// pkg/types/item.go
package types

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrInvalidPath 表示条目身份或子路径会逃出条目自己的存储区域
var ErrInvalidPath = errors.New("invalid item path")

// Item 代表拥有一棵对象树的逻辑实体 (例如一个 Job)
// 它的身份由根目录的两级名字组成: <容器目录>/<条目名>
// 这是一个“值对象”，在 Handle 生命周期内不可变。
type Item struct {
	Container string // 父容器目录名，例如 "jobs"
	Name      string // 条目名，例如 "proj"
}

// ItemFromRootDir 从条目的根目录推导身份
// Example: "/var/lib/ci/jobs/proj" -> {Container: "jobs", Name: "proj"}
// 根目录太浅 (例如 "/" 或 "/jobs") 时没有完整身份，返回 ErrInvalidPath。
func ItemFromRootDir(dir string) (Item, error) {
	clean := filepath.Clean(dir)
	item := Item{
		Container: filepath.Base(filepath.Dir(clean)),
		Name:      filepath.Base(clean),
	}
	if err := item.Validate(); err != nil {
		return Item{}, fmt.Errorf("cannot derive item from %q: %w", dir, err)
	}
	return item, nil
}

// ParseItem 解析 CLI 输入的 "container/name"
func ParseItem(s string) (Item, error) {
	parts := strings.Split(strings.Trim(s, "/"), "/")
	if len(parts) != 2 {
		return Item{}, fmt.Errorf("invalid item %q: expected <container>/<name>", s)
	}
	item := Item{Container: parts[0], Name: parts[1]}
	if err := item.Validate(); err != nil {
		return Item{}, fmt.Errorf("invalid item %q: %w", s, err)
	}
	return item, nil
}

// Validate 检查两级名字都是普通的目录名
func (i Item) Validate() error {
	for _, part := range []string{i.Container, i.Name} {
		if !plainSegment(part) {
			return fmt.Errorf("%w: bad item component %q", ErrInvalidPath, part)
		}
	}
	return nil
}

func (i Item) String() string { return i.Container + "/" + i.Name }

// SubPath 是相对于条目存储根的路径段序列
// 不可变：Child 总是返回新值，绝不修改共享的底层数组
type SubPath struct {
	segments []string
}

// NewSubPath 由路径段构造，空段会被丢弃
func NewSubPath(segments ...string) SubPath {
	out := make([]string, 0, len(segments))
	for _, s := range segments {
		out = append(out, splitSegments(s)...)
	}
	return SubPath{segments: out}
}

// ParseSubPath 解析 "a/b/c" 形式的子路径
func ParseSubPath(s string) SubPath {
	return SubPath{segments: splitSegments(s)}
}

// Child 追加一段 (可以包含 "/")，返回新的 SubPath
func (p SubPath) Child(segment string) SubPath {
	extra := splitSegments(segment)
	// 显式分配新数组，防止两个 Child 共享同一个 backing array 互相覆盖
	out := make([]string, 0, len(p.segments)+len(extra))
	out = append(out, p.segments...)
	out = append(out, extra...)
	return SubPath{segments: out}
}

// Segments 返回路径段的副本
func (p SubPath) Segments() []string {
	out := make([]string, len(p.segments))
	copy(out, p.segments)
	return out
}

func (p SubPath) IsRoot() bool   { return len(p.segments) == 0 }
func (p SubPath) String() string { return strings.Join(p.segments, "/") }

// Validate 拒绝 ".." 段，保证子路径停留在条目的存储根之下
func (p SubPath) Validate() error {
	for _, seg := range p.segments {
		if !plainSegment(seg) {
			return fmt.Errorf("%w: bad segment %q in %q", ErrInvalidPath, seg, p.String())
		}
	}
	return nil
}

// plainSegment: 非空，不是 "." / ".."，不含分隔符
func plainSegment(s string) bool {
	return s != "" && s != "." && s != ".." && !strings.ContainsAny(s, `/\`)
}

func splitSegments(s string) []string {
	var out []string
	for _, part := range strings.Split(filepath.ToSlash(s), "/") {
		if part == "" || part == "." {
			continue
		}
		out = append(out, part)
	}
	return out
}
