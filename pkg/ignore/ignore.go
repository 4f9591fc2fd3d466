package ignore

import (
	gitignore "github.com/sabhiram/go-gitignore"
)

// DefaultRules 是传输时默认跳过的文件
// 版本控制元数据与编辑器残留，缓存里不应该出现它们
var DefaultRules = []string{
	// --- 版本控制 ---
	".git",
	".gitattributes",
	".gitignore",
	".gitmodules",
	".svn",
	".hg",
	".hgignore",
	".hgsub",
	".hgsubstate",
	".hgtags",
	".bzr",
	".bzrignore",
	"CVS",
	".cvsignore",
	"SCCS",
	"vssver.scc",

	// --- 编辑器与系统垃圾 ---
	"*~",
	".#*",
	"%*%",
	"._*",
	".DS_Store",
}

// Matcher 封装了忽略逻辑
// 它负责判断一个相对路径是否应该在传输中被跳过
type Matcher struct {
	ignorer *gitignore.GitIgnore
}

// NewMatcher 把默认规则和额外规则合并编译 (gitignore 语法)
func NewMatcher(extra ...string) *Matcher {
	rules := make([]string, 0, len(DefaultRules)+len(extra))
	rules = append(rules, DefaultRules...)
	rules = append(rules, extra...)
	return &Matcher{ignorer: gitignore.CompileIgnoreLines(rules...)}
}

// Matches 检查给定的路径是否匹配忽略规则
// path: 相对于传输根目录的路径 (例如 "deps/.git/config")
// 返回: true 表示应该忽略 (Skip), false 表示应该保留 (Keep)
func (m *Matcher) Matches(path string) bool {
	if m == nil || m.ignorer == nil {
		return false
	}
	return m.ignorer.MatchesPath(path)
}
