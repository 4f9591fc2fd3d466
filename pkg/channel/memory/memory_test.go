package memory

import (
	"context"
	"io"
	"testing"

	"itemstore/pkg/cluster"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryChannel(t *testing.T) {
	ctx := context.Background()
	ch := New("n1", "/home/n1")

	// 1. Create 在 Close 之前不可见
	w, err := ch.Create(ctx, "/home/n1/jobs/proj/a.txt")
	require.NoError(t, err)
	_, err = w.Write([]byte("hello"))
	require.NoError(t, err)

	exists, err := ch.Exists(ctx, "/home/n1/jobs/proj/a.txt")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, w.Close())

	// 2. 文件和隐式目录都存在
	for _, p := range []string{"/home/n1/jobs/proj/a.txt", "/home/n1/jobs/proj", "/home/n1/jobs"} {
		exists, err = ch.Exists(ctx, p)
		require.NoError(t, err)
		assert.True(t, exists, p)
	}
	exists, _ = ch.Exists(ctx, "/home/n1/jobs/pro")
	assert.False(t, exists, "前缀相同但不是目录")

	// 3. List
	ch.WriteFile("/home/n1/jobs/proj/sub/b.log", []byte("b"))
	entries, err := ch.List(ctx, "/home/n1/jobs/proj")
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "a.txt", entries[0].Path)
	assert.Equal(t, cluster.Entry{Path: "sub", Dir: true}, entries[1])
	assert.Equal(t, "sub/b.log", entries[2].Path)
	assert.Equal(t, int64(1), entries[2].Size)

	_, err = ch.List(ctx, "/home/n1/missing")
	assert.ErrorIs(t, err, cluster.ErrNotFound)

	// 4. Open
	r, err := ch.Open(ctx, "/home/n1/jobs/proj/a.txt")
	require.NoError(t, err)
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	// 5. DeleteRecursive (幂等)
	require.NoError(t, ch.DeleteRecursive(ctx, "/home/n1/jobs/proj"))
	require.NoError(t, ch.DeleteRecursive(ctx, "/home/n1/jobs/proj"))
	exists, _ = ch.Exists(ctx, "/home/n1/jobs")
	assert.False(t, exists)
}
