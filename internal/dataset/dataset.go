// Package dataset loads MNIST-style CSV digits and generates the noise images
// that are labelled with the sentinel class.
package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"os"
	"strconv"

	"gorgonia.org/tensor"
)

const (
	ImgSize = 28
	Pixels  = ImgSize * ImgSize
)

// Set is a batch of flattened images with one-hot targets.
type Set struct {
	// Inputs is N x pixels, values in [0,1].
	Inputs *tensor.Dense
	// Targets is N x classes.
	Targets *tensor.Dense
	Labels  []int
}

func (s *Set) Len() int {
	return len(s.Labels)
}

// Rows returns per-example slices sharing the tensors' backing arrays.
func (s *Set) Rows() (inputs, targets [][]float64) {
	return rows(s.Inputs), rows(s.Targets)
}

func rows(t *tensor.Dense) [][]float64 {
	shape := t.Shape()
	n, width := shape[0], shape[1]
	backing := t.Data().([]float64)
	out := make([][]float64, n)
	for i := range out {
		out[i] = backing[i*width : (i+1)*width : (i+1)*width]
	}
	return out
}

func newSet(pixels []float64, labels []int, width, classes int) *Set {
	return &Set{
		Inputs:  tensor.New(tensor.Of(tensor.Float64), tensor.WithShape(len(labels), width), tensor.WithBacking(pixels)),
		Targets: OneHotEncode(labels, classes),
		Labels:  labels,
	}
}

// LoadCSVFile reads a CSV file of "label,p0,p1,..." rows with 0..255 pixels.
func LoadCSVFile(path string, classes int) (*Set, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return LoadCSV(f, classes)
}

// LoadCSV reads "label,p0,p1,..." rows. A leading header row is skipped.
func LoadCSV(r io.Reader, classes int) (*Set, error) {
	reader := csv.NewReader(r)
	reader.ReuseRecord = true

	var (
		pixels []float64
		labels []int
		width  int
	)
	for line := 1; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		label, err := strconv.Atoi(record[0])
		if err != nil {
			if line == 1 {
				continue
			}
			return nil, fmt.Errorf("line %d: bad label %q", line, record[0])
		}
		if label < 0 || label >= classes {
			return nil, fmt.Errorf("line %d: label %d outside %d classes", line, label, classes)
		}
		if width == 0 {
			width = len(record) - 1
		}
		if len(record)-1 != width || width == 0 {
			return nil, fmt.Errorf("line %d: %d pixels, want %d", line, len(record)-1, width)
		}
		for _, field := range record[1:] {
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", line, err)
			}
			pixels = append(pixels, v/255.0)
		}
		labels = append(labels, label)
	}
	if len(labels) == 0 {
		return nil, errors.New("no images loaded")
	}
	return newSet(pixels, labels, width, classes), nil
}

// Fakes generates count uniform-noise images labelled with the last class.
func Fakes(count, pixels, classes int, rng *rand.Rand) *Set {
	data := make([]float64, count*pixels)
	for i := range data {
		data[i] = rng.Float64()
	}
	labels := make([]int, count)
	for i := range labels {
		labels[i] = classes - 1
	}
	return newSet(data, labels, pixels, classes)
}

// Concat appends b after a. Both sets must agree on image and target width.
func Concat(a, b *Set) (*Set, error) {
	aw, bw := a.Inputs.Shape()[1], b.Inputs.Shape()[1]
	ac, bc := a.Targets.Shape()[1], b.Targets.Shape()[1]
	if aw != bw || ac != bc {
		return nil, fmt.Errorf("cannot concat %dx%d with %dx%d sets", aw, ac, bw, bc)
	}
	pixels := append(append([]float64(nil), a.Inputs.Data().([]float64)...), b.Inputs.Data().([]float64)...)
	labels := append(append([]int(nil), a.Labels...), b.Labels...)
	return newSet(pixels, labels, aw, ac), nil
}

// Shuffle permutes the examples in place.
func (s *Set) Shuffle(rng *rand.Rand) {
	inputs, targets := s.Rows()
	width := s.Inputs.Shape()[1]
	classes := s.Targets.Shape()[1]
	tmpIn := make([]float64, width)
	tmpOut := make([]float64, classes)
	rng.Shuffle(s.Len(), func(i, j int) {
		copy(tmpIn, inputs[i])
		copy(inputs[i], inputs[j])
		copy(inputs[j], tmpIn)
		copy(tmpOut, targets[i])
		copy(targets[i], targets[j])
		copy(targets[j], tmpOut)
		s.Labels[i], s.Labels[j] = s.Labels[j], s.Labels[i]
	})
}

func OneHotEncode(labels []int, numClasses int) *tensor.Dense {
	numLabels := len(labels)
	norm := make([]float64, numLabels*numClasses)

	for i, label := range labels {
		norm[i*numClasses+label] = 1.0
	}

	return tensor.New(tensor.Of(tensor.Float64), tensor.WithShape(numLabels, numClasses), tensor.WithBacking(norm))
}
