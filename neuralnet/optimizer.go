package neuralnet

import (
	"errors"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Gradients holds per-layer loss gradients, summed over a batch.
type Gradients struct {
	Weights []*mat.Dense
	Biases  [][]float64
}

// Optimizer defines interface to apply averaged gradients to the layers.
type Optimizer interface {
	Apply(layers []*Layer, grads *Gradients, rate float64, batchSize int) error
}

// SGD implements stochastic gradient descent with optional L2 weight decay.
type SGD struct {
	L2 float64
}

// Apply averages grads over batchSize and steps every layer against them.
// grads is consumed.
func (o *SGD) Apply(layers []*Layer, grads *Gradients, rate float64, batchSize int) error {
	if batchSize <= 0 {
		return errors.New("invalid batch size")
	}
	if len(grads.Weights) != len(layers) || len(grads.Biases) != len(layers) {
		return ErrShape
	}
	scale := rate / float64(batchSize)
	for i, layer := range layers {
		if o.L2 != 0 {
			layer.Weights.Scale(1-rate*o.L2, layer.Weights)
		}
		grads.Weights[i].Scale(-scale, grads.Weights[i])
		layer.Weights.Add(layer.Weights, grads.Weights[i])
		floats.AddScaled(layer.Biases, -scale, grads.Biases[i])
	}
	return nil
}
