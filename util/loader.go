package util

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// TensorFile represents a captured network output.
type TensorFile struct {
	// Path is the path to the tensor file.
	Path string
	// Tensor is the decoded float32 tensor.
	Tensor *tensor.Dense
	// Frame is the frame number of the tensor file.
	Frame int
}

// LoadTensorFile reads one tensor file.
//
// ".npy" files carry their own shape. Anything else is read as raw little-endian
// float32 values and shaped with shape, or left 1-D when no shape is given.
//
// Arguments:
//   - path: The tensor file.
//   - shape: The expected shape, e.g. 1, 13, 13, 125. Optional.
//
// Returns:
//   - *tensor.Dense: The float32 tensor.
//   - error: Error if the file cannot be read or does not match shape.
func LoadTensorFile(path string, shape ...int) (*tensor.Dense, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var t *tensor.Dense
	if strings.EqualFold(filepath.Ext(path), ".npy") {
		t = new(tensor.Dense)
		if err := t.ReadNpy(bufio.NewReader(f)); err != nil {
			return nil, errors.Wrapf(err, "failed to read npy tensor %s", path)
		}
		if t.Dtype() != tensor.Float32 {
			return nil, errors.Errorf("tensor %s has dtype %v, want float32", path, t.Dtype())
		}
	} else {
		data, err := readFloat32s(f)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read raw tensor %s", path)
		}
		t = tensor.New(tensor.WithShape(len(data)), tensor.WithBacking(data))
	}

	if len(shape) == 0 {
		return t, nil
	}
	if size := tensor.Shape(shape).TotalSize(); size != t.Size() {
		return nil, errors.Errorf("tensor %s holds %d values, shape %v needs %d", path, t.Size(), shape, size)
	}
	if err := t.Reshape(shape...); err != nil {
		return nil, errors.Wrapf(err, "failed to reshape tensor %s", path)
	}
	return t, nil
}

func readFloat32s(r io.Reader) ([]float32, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, errors.New("empty tensor file")
	}
	if len(raw)%4 != 0 {
		return nil, errors.Errorf("%d bytes is not a whole number of float32 values", len(raw))
	}
	data := make([]float32, len(raw)/4)
	if err := binary.Read(bytes.NewReader(raw), binary.LittleEndian, data); err != nil {
		return nil, err
	}
	return data, nil
}

// WriteTensorFile writes a float32 tensor as ".npy" or, for any other extension, as raw
// little-endian values.
func WriteTensorFile(path string, t *tensor.Dense) error {
	if t.Dtype() != tensor.Float32 {
		return errors.Errorf("cannot write %v tensor, want float32", t.Dtype())
	}

	if t.IsMaterializable() {
		t = t.Materialize().(*tensor.Dense)
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)

	if strings.EqualFold(filepath.Ext(path), ".npy") {
		err = t.WriteNpy(w)
	} else {
		err = binary.Write(w, binary.LittleEndian, t.Float32s())
	}
	if err == nil {
		err = w.Flush()
	}
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	return errors.Wrapf(err, "failed to write tensor %s", path)
}

// LoadDirectoryTensorFiles reads all "frame-N" tensor files from a directory.
//
// Arguments:
//   - dir: Directory path containing ".bin" or ".npy" tensor files.
//   - shape: The expected shape of every tensor. Optional.
//
// Returns:
//   - []TensorFile: The tensors sorted by frame number.
//   - error: Error if loading fails.
func LoadDirectoryTensorFiles(dir string, shape ...int) ([]TensorFile, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var tensors []TensorFile
	for _, file := range files {
		if file.IsDir() {
			continue
		}

		ext := filepath.Ext(file.Name())
		switch strings.ToLower(ext) {
		case ".bin", ".npy":
			path := filepath.Join(dir, file.Name())
			frame, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(file.Name(), "frame-"), ext))
			if err != nil {
				return nil, errors.Wrapf(err, "tensor file %s is not named frame-N", path)
			}
			t, err := LoadTensorFile(path, shape...)
			if err != nil {
				return nil, err
			}
			tensors = append(tensors, TensorFile{
				Path:   path,
				Tensor: t,
				Frame:  frame,
			})
		}
	}

	sort.Slice(tensors, func(i, j int) bool {
		return tensors[i].Frame < tensors[j].Frame
	})

	return tensors, nil
}
