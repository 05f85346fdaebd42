package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalFileEmitter(t *testing.T) {
	dir := t.TempDir()
	e := LocalFileEmitter{OutputDir: dir}

	path, err := e.Emit(context.Background(), JobOutputName("job/../1"), []byte("png"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "job____1", "result.png"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte("png"), data)

	_, err = LocalFileEmitter{}.Emit(context.Background(), "x.png", nil)
	assert.Error(t, err)
}

func TestBatchOutputName(t *testing.T) {
	assert.Equal(t, "processed_cat.png", BatchOutputName("/app/input/cat.jpg"))
	assert.Equal(t, "processed_my.photo.png", BatchOutputName("my.photo.jpeg"))
}

func TestObjectStoreEmitter_RequiresStorage(t *testing.T) {
	_, err := ObjectStoreEmitter{}.Emit(context.Background(), "a.png", []byte("x"))
	assert.Error(t, err)
}
