package model

import (
	"bufio"
	"io"
	"os"
	"strings"

	"github.com/nvr-ai/go-tinyyolo/common"
	"github.com/pkg/errors"
)

// LabelTable holds class names index-aligned with the tensor's class channels.
type LabelTable []string

// ParseLabels reads one class name per line.
//
// Lines may end in \n, \r or \r\n. Surrounding whitespace is trimmed and empty lines are
// skipped.
//
// Arguments:
//   - r: The label source, e.g. a voc.names file.
//
// Returns:
//   - The label table.
//   - An error if reading fails or no label is found.
func ParseLabels(r io.Reader) (LabelTable, error) {
	scanner := bufio.NewScanner(r)
	scanner.Split(scanLines)

	var labels LabelTable
	for scanner.Scan() {
		label := strings.TrimSpace(scanner.Text())
		if label == "" {
			continue
		}
		labels = append(labels, label)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to read labels")
	}
	if len(labels) == 0 {
		return nil, common.NewConfigurationError("labels", "label source is empty")
	}
	return labels, nil
}

// LoadLabels reads a label file from disk. See ParseLabels.
func LoadLabels(path string) (LabelTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open labels file %s", path)
	}
	defer f.Close()

	labels, err := ParseLabels(f)
	if err != nil {
		return nil, errors.Wrapf(err, "labels file %s", path)
	}
	return labels, nil
}

// Validate checks the table has exactly classCount labels.
func (l LabelTable) Validate(classCount int) error {
	if len(l) != classCount {
		return common.NewConfigurationError("labels", "have %d labels for %d classes", len(l), classCount)
	}
	return nil
}

// scanLines is bufio.ScanLines extended to treat a lone \r as a line break.
func scanLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	for i, b := range data {
		switch b {
		case '\n':
			return i + 1, data[:i], nil
		case '\r':
			if i+1 < len(data) {
				if data[i+1] == '\n' {
					return i + 2, data[:i], nil
				}
				return i + 1, data[:i], nil
			}
			if !atEOF {
				// Need one more byte to tell \r from \r\n.
				return 0, nil, nil
			}
			return i + 1, data[:i], nil
		}
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

// VOCLabels are the 20 Pascal VOC classes in Tiny YOLO v2 output order.
var VOCLabels = LabelTable{
	"aeroplane", "bicycle", "bird", "boat", "bottle",
	"bus", "car", "cat", "chair", "cow",
	"diningtable", "dog", "horse", "motorbike", "person",
	"pottedplant", "sheep", "sofa", "train", "tvmonitor",
}
