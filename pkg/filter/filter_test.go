package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplit(t *testing.T) {
	got, err := Split(" *.txt, deps/ ;./lib/*.jar,,")
	require.NoError(t, err)
	assert.Equal(t, []string{"*.txt", "deps/**", "lib/*.jar"}, got)

	got, err = Split("")
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = Split("[a-")
	assert.Error(t, err)
}

func TestFilter_Match(t *testing.T) {
	f, err := New("*.txt", "c.txt", true)
	require.NoError(t, err)

	tests := []struct {
		path string
		want bool
	}{
		{"a.txt", true},
		{"b.log", false},
		{"c.txt", false},
		{"sub/a.txt", false}, // *.txt 只匹配根目录
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, f.Match(tt.path))
		})
	}
}

func TestFilter_DefaultExcludes(t *testing.T) {
	f, err := New("", "", true)
	require.NoError(t, err)
	assert.True(t, f.Match("deps/lib.jar"))
	assert.False(t, f.Match(".git/HEAD"))
	assert.False(t, f.Match("notes~"))

	f, err = New("", "", false)
	require.NoError(t, err)
	assert.True(t, f.Match(".git/HEAD"), "关闭默认排除后应该保留")
}

func TestFilter_Recursive(t *testing.T) {
	f, err := New("**/*.jar;docs/", "**/tmp/**", false)
	require.NoError(t, err)

	assert.True(t, f.Match("lib.jar"))
	assert.True(t, f.Match("a/b/lib.jar"))
	assert.True(t, f.Match("docs/x/readme.md"))
	assert.False(t, f.Match("a/tmp/lib.jar"))
	assert.False(t, f.Match("src/main.go"))
}

func TestNew_InvalidMask(t *testing.T) {
	_, err := New("[", "", false)
	assert.Error(t, err)
	_, err = New("", "[", false)
	assert.Error(t, err)
}
