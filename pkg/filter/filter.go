package filter

import (
	"fmt"
	"strings"

	"itemstore/pkg/ignore"

	"github.com/bmatcuk/doublestar/v4"
)

// Filter 决定传输时哪些文件被选中
// includes/excludes 是 Ant 风格的 glob (支持 **)，路径相对于传输根目录
type Filter struct {
	includes []string
	excludes []string
	defaults *ignore.Matcher // 为 nil 表示关闭默认排除
}

// New 解析逗号/分号分隔的 include 与 exclude 掩码
// include 为空表示全部文件 ("**")
func New(includeMask, excludeMask string, defaultExcludes bool) (*Filter, error) {
	includes, err := Split(includeMask)
	if err != nil {
		return nil, fmt.Errorf("invalid include mask: %w", err)
	}
	if len(includes) == 0 {
		includes = []string{"**"}
	}

	excludes, err := Split(excludeMask)
	if err != nil {
		return nil, fmt.Errorf("invalid exclude mask: %w", err)
	}

	f := &Filter{includes: includes, excludes: excludes}
	if defaultExcludes {
		f.defaults = ignore.NewMatcher()
	}
	return f, nil
}

// Split 把掩码拆成独立的模式，并校验语法
// "dir/" 按 Ant 约定等价于 "dir/**"
func Split(mask string) ([]string, error) {
	fields := strings.FieldsFunc(mask, func(r rune) bool { return r == ',' || r == ';' })

	var out []string
	for _, f := range fields {
		p := strings.TrimSpace(f)
		if p == "" {
			continue
		}
		p = strings.TrimPrefix(p, "./")
		if strings.HasSuffix(p, "/") {
			p += "**"
		}
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("bad pattern %q", p)
		}
		out = append(out, p)
	}
	return out, nil
}

// Match 判断一个文件的相对路径是否应该被传输
func (f *Filter) Match(rel string) bool {
	if !matchAny(f.includes, rel) {
		return false
	}
	if matchAny(f.excludes, rel) {
		return false
	}
	return !f.defaults.Matches(rel)
}

func matchAny(patterns []string, rel string) bool {
	for _, p := range patterns {
		// 模式已经校验过，这里的错误只可能是 ErrBadPattern
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
	}
	return false
}
