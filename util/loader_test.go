package util

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorgonia.org/tensor"
)

func TestTensorFileRaw(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "frame-1.bin")
	data := []float32{0, 1.5, -2.25, 3e7, 4, 5}

	require.NoError(t, WriteTensorFile(path, tensor.New(tensor.WithShape(2, 3), tensor.WithBacking(data))))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)*4), info.Size(), "raw files hold only the values")

	flat, err := LoadTensorFile(path)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{6}, flat.Shape())
	assert.Equal(t, data, flat.Data())

	shaped, err := LoadTensorFile(path, 1, 3, 2)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{1, 3, 2}, shaped.Shape())

	_, err = LoadTensorFile(path, 1, 13, 13, 125)
	assert.Error(t, err, "mismatched shape")
}

func TestTensorFileNpy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "grid.npy")
	data := make([]float32, 24)
	for i := range data {
		data[i] = float32(i) / 4
	}
	require.NoError(t, WriteTensorFile(path, tensor.New(tensor.WithShape(1, 2, 3, 4), tensor.WithBacking(data))))

	loaded, err := LoadTensorFile(path)
	require.NoError(t, err)
	assert.Equal(t, tensor.Float32, loaded.Dtype())
	assert.Equal(t, tensor.Shape{1, 2, 3, 4}, loaded.Shape())
	assert.Equal(t, data, loaded.Data())
}

func TestWriteTensorFileMaterialisesViews(t *testing.T) {
	path := filepath.Join(t.TempDir(), "view.bin")
	view := tensor.New(tensor.WithShape(2, 3), tensor.WithBacking([]float32{1, 2, 3, 4, 5, 6}))
	require.NoError(t, view.T())

	require.NoError(t, WriteTensorFile(path, view))
	loaded, err := LoadTensorFile(path, 3, 2)
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 4, 2, 5, 3, 6}, loaded.Data())
}

func TestLoadTensorFileErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadTensorFile(filepath.Join(dir, "missing.bin"))
	assert.Error(t, err)

	odd := filepath.Join(dir, "odd.bin")
	require.NoError(t, os.WriteFile(odd, []byte{1, 2, 3}, 0o644))
	_, err = LoadTensorFile(odd)
	assert.Error(t, err, "partial float32")

	notNpy := filepath.Join(dir, "bad.npy")
	require.NoError(t, os.WriteFile(notNpy, []byte("not a numpy file"), 0o644))
	_, err = LoadTensorFile(notNpy)
	assert.Error(t, err)

	wide := filepath.Join(dir, "wide.bin")
	assert.Error(t, WriteTensorFile(wide, tensor.New(tensor.WithShape(2), tensor.WithBacking([]float64{1, 2}))))
}

func TestLoadDirectoryTensorFiles(t *testing.T) {
	dir := t.TempDir()
	for _, frame := range []string{"frame-10.bin", "frame-2.bin", "frame-1.npy"} {
		require.NoError(t, WriteTensorFile(filepath.Join(dir, frame),
			tensor.New(tensor.WithShape(4), tensor.WithBacking([]float32{1, 2, 3, 4}))))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested"), 0o755))

	files, err := LoadDirectoryTensorFiles(dir, 1, 2, 2)
	require.NoError(t, err)
	require.Len(t, files, 3)

	frames := []int{files[0].Frame, files[1].Frame, files[2].Frame}
	assert.Equal(t, []int{1, 2, 10}, frames, "sorted by frame number, not name")
	for _, f := range files {
		assert.Equal(t, tensor.Shape{1, 2, 2}, f.Tensor.Shape())
	}

	require.NoError(t, os.WriteFile(filepath.Join(dir, "latest.bin"), nil, 0o644))
	_, err = LoadDirectoryTensorFiles(dir)
	assert.Error(t, err, "files must be named frame-N")

	_, err = LoadDirectoryTensorFiles(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}
