// pkg/meta/config_test.go

package meta

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestFormatInitLoad(t *testing.T) {
	dir := t.TempDir()
	_, err := Load(dir)
	require.True(t, os.IsNotExist(errors.Cause(err)))

	f := &Format{Name: "orders", ChunkDataSize: 1 << 20}
	require.NoError(t, Init(dir, f, false))
	require.NotEmpty(t, f.UUID)

	loaded, err := Load(dir)
	require.NoError(t, err)
	require.Equal(t, *f, *loaded)

	// same layout keeps the uuid
	again := &Format{Name: "orders", ChunkDataSize: 1 << 20}
	require.NoError(t, Init(dir, again, false))
	require.Equal(t, f.UUID, again.UUID)

	_, err = os.Stat(filepath.Join(dir, FormatFileName+".tmp"))
	require.True(t, os.IsNotExist(err))
}

func TestFormatMismatch(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Init(dir, &Format{Name: "index", ChunkDataUnitSize: 16, ChunkDataCount: 4, ChunkDataSize: 64}, false))

	other := &Format{Name: "index", ChunkDataSize: 64}
	require.Error(t, Init(dir, other, false))
	require.NoError(t, Init(dir, other, true))

	loaded, err := Load(dir)
	require.NoError(t, err)
	require.Zero(t, loaded.ChunkDataUnitSize)
}

func TestFormatCheck(t *testing.T) {
	a := &Format{ChunkDataSize: 100, FilePrefix: "chunk-"}
	require.NoError(t, a.Check(&Format{ChunkDataSize: 100}))
	require.Error(t, a.Check(&Format{ChunkDataSize: 200}))
	require.Error(t, a.Check(&Format{ChunkDataSize: 100, FilePrefix: "index-"}))
}
