package neuralnet

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gonum.org/v1/gonum/mat"
)

// ErrCorruptModel marks a model document that exists but cannot be used.
var ErrCorruptModel = errors.New("neuralnet: corrupt model")

// Each variant carries only the fields it needs; alpha is only set for leaky_relu.
type activationDoc struct {
	Kind  ActivationKind `json:"kind"`
	Alpha *float64       `json:"alpha,omitempty"`
}

type lossDoc struct {
	Kind LossKind `json:"kind"`
}

type layerDoc struct {
	Weights    [][]float64   `json:"weights"`
	Biases     []float64     `json:"biases"`
	Activation activationDoc `json:"activation"`
}

type modelDoc struct {
	Layers []layerDoc `json:"layers"`
	Loss   lossDoc    `json:"loss"`
}

func (m *Model) MarshalJSON() ([]byte, error) {
	doc := modelDoc{
		Layers: make([]layerDoc, len(m.Layers)),
		Loss:   lossDoc{Kind: m.LossFunc.Kind()},
	}
	for i, layer := range m.Layers {
		rows := make([][]float64, layer.Out())
		for r := range rows {
			rows[r] = mat.Row(nil, r, layer.Weights)
		}
		act := activationDoc{Kind: layer.Activation.Kind()}
		if l, ok := layer.Activation.(LeakyReLU); ok {
			alpha := l.Alpha
			act.Alpha = &alpha
		}
		doc.Layers[i] = layerDoc{Weights: rows, Biases: layer.Biases, Activation: act}
	}
	return json.Marshal(doc)
}

func (m *Model) UnmarshalJSON(data []byte) error {
	var doc modelDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("%w: %v", ErrCorruptModel, err)
	}
	if len(doc.Layers) == 0 {
		return fmt.Errorf("%w: no layers", ErrCorruptModel)
	}
	loss, ok := NewLoss(doc.Loss.Kind)
	if !ok {
		return fmt.Errorf("%w: unknown loss %q", ErrCorruptModel, doc.Loss.Kind)
	}

	layers := make([]*Layer, len(doc.Layers))
	for i, ld := range doc.Layers {
		out := len(ld.Weights)
		if out == 0 || len(ld.Weights[0]) == 0 {
			return fmt.Errorf("%w: layer %d has no weights", ErrCorruptModel, i)
		}
		in := len(ld.Weights[0])
		if i > 0 && in != layers[i-1].Out() {
			return fmt.Errorf("%w: layer %d takes %d inputs, previous layer has %d outputs", ErrCorruptModel, i, in, layers[i-1].Out())
		}
		if len(ld.Biases) != out {
			return fmt.Errorf("%w: layer %d has %d biases for %d neurons", ErrCorruptModel, i, len(ld.Biases), out)
		}
		backing := make([]float64, 0, out*in)
		for r, row := range ld.Weights {
			if len(row) != in {
				return fmt.Errorf("%w: layer %d row %d has %d weights, want %d", ErrCorruptModel, i, r, len(row), in)
			}
			backing = append(backing, row...)
		}
		var alpha float64
		if ld.Activation.Alpha != nil {
			alpha = *ld.Activation.Alpha
		}
		act, ok := NewActivation(ld.Activation.Kind, alpha)
		if !ok {
			return fmt.Errorf("%w: layer %d has unknown activation %q", ErrCorruptModel, i, ld.Activation.Kind)
		}
		layers[i] = &Layer{
			Weights:    mat.NewDense(out, in, backing),
			Biases:     ld.Biases,
			Activation: act,
		}
	}

	m.Layers = layers
	m.LossFunc = loss
	return nil
}

// Save writes the model as JSON, replacing path atomically.
func (m *Model) Save(path string) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode model: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create model dir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write model: %w", err)
	}
	return os.Rename(tmp, path)
}

// Load reads a model written by Save. A missing file surfaces as
// fs.ErrNotExist; anything unreadable after opening is ErrCorruptModel.
func Load(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	m := &Model{}
	if err := json.Unmarshal(data, m); err != nil {
		if errors.Is(err, ErrCorruptModel) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrCorruptModel, err)
	}
	return m, nil
}
