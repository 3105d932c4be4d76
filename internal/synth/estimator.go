// Package synth grows an input image that a fixed classifier assigns to a
// chosen class, while fine-tuning that classifier to call the image fake.
package synth

import (
	"gonum.org/v1/gonum/diff/fd"
)

// DefaultStep is the forward-difference step applied to one pixel at a time.
const DefaultStep = 0.01

// Oracle is the classifier the loop optimises against and keeps retraining.
// Evaluate and Loss must be safe for concurrent use between Fit calls.
type Oracle interface {
	Evaluate(input []float64) []float64
	Fit(inputs, targets [][]float64, epochs int, rate float64) error
	Loss(prediction, target []float64) float64
}

// Estimator approximates dLoss/dPixel with forward differences:
// (loss(x + h*e_i) - loss(x)) / h. The step is fixed, there is no clipping.
type Estimator struct {
	Step float64
	// Concurrent spreads the per-pixel evaluations over GOMAXPROCS goroutines.
	Concurrent bool
}

// Estimate returns a fresh gradient for image against target. The oracle is
// only read; callers must not train it until Estimate returns.
func (e *Estimator) Estimate(image, target []float64, oracle Oracle) []float64 {
	step := e.Step
	if step == 0 {
		step = DefaultStep
	}
	loss := func(x []float64) float64 {
		return oracle.Loss(oracle.Evaluate(x), target)
	}
	return fd.Gradient(nil, loss, image, &fd.Settings{
		Formula:    fd.Forward,
		Step:       step,
		Concurrent: e.Concurrent,
	})
}
