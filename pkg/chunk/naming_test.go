// pkg/chunk/naming_test.go

package chunk

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultFileNamingStrategy(t *testing.T) {
	dir := t.TempDir()
	s := NewDefaultFileNamingStrategy("chunk-")
	require.Equal(t, filepath.Join(dir, "chunk-00000007"), s.GetFileNameFor(dir, 7))

	for _, name := range []string{"chunk-00000010", "chunk-00000002", "chunk-00000001", "chunk-1", "index-00000003", "format.json", "a.tmp"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "chunk-00000004"), 0755))

	files, err := s.GetChunkFiles(dir)
	require.NoError(t, err)
	require.Equal(t, []string{
		filepath.Join(dir, "chunk-00000001"),
		filepath.Join(dir, "chunk-00000002"),
		filepath.Join(dir, "chunk-00000010"),
	}, files)

	temps, err := s.GetTempFiles(dir)
	require.NoError(t, err)
	require.Equal(t, []string{filepath.Join(dir, "a.tmp")}, temps)

	tmp := s.GetTempFileName(dir)
	require.Equal(t, dir, filepath.Dir(tmp))
	require.True(t, strings.HasSuffix(tmp, ".tmp"))
	require.NotEqual(t, tmp, s.GetTempFileName(dir))

	n, err := s.ParseChunkNumber("/some/dir/chunk-00000123")
	require.NoError(t, err)
	require.Equal(t, int32(123), n)
	_, err = s.ParseChunkNumber("chunk-abc")
	require.Error(t, err)
}
