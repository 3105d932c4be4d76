package neuralnet

import "math"

// LossKind names a loss in the persisted model document.
type LossKind string

const (
	KindMeanSquaredError        LossKind = "mean_squared_error"
	KindCategoricalCrossEntropy LossKind = "categorical_cross_entropy"
)

// LossFunction defines the interface for computing loss and its gradient.
type LossFunction interface {
	Kind() LossKind
	// Compute returns the loss value given the model output and the target.
	Compute(output []float64, target []float64) float64
	// Gradient returns the gradient ∂L/∂output for each output neuron.
	Gradient(output []float64, target []float64) []float64
}

// probFloor keeps log away from zero for saturated softmax outputs.
const probFloor = 1e-15

// CrossEntropy implements categorical cross-entropy loss.
type CrossEntropy struct{}

func (CrossEntropy) Kind() LossKind { return KindCategoricalCrossEntropy }

// Compute returns the cross-entropy loss.
func (CrossEntropy) Compute(output []float64, target []float64) float64 {
	var loss float64
	for i := range output {
		loss -= target[i] * math.Log(math.Max(output[i], probFloor))
	}
	return loss
}

// Gradient returns -target/output. Chained through the softmax Jacobian this
// reduces to output - target for one-hot targets.
func (CrossEntropy) Gradient(output []float64, target []float64) []float64 {
	grad := make([]float64, len(output))
	for i := range output {
		grad[i] = -target[i] / math.Max(output[i], probFloor)
	}
	return grad
}

// MeanSquaredError averages the squared difference over the output.
type MeanSquaredError struct{}

func (MeanSquaredError) Kind() LossKind { return KindMeanSquaredError }

func (MeanSquaredError) Compute(output []float64, target []float64) float64 {
	var loss float64
	for i := range output {
		d := output[i] - target[i]
		loss += d * d
	}
	return loss / float64(len(output))
}

func (MeanSquaredError) Gradient(output []float64, target []float64) []float64 {
	grad := make([]float64, len(output))
	n := float64(len(output))
	for i := range output {
		grad[i] = 2 * (output[i] - target[i]) / n
	}
	return grad
}

// NewLoss returns the loss registered under kind.
func NewLoss(kind LossKind) (LossFunction, bool) {
	switch kind {
	case KindMeanSquaredError:
		return MeanSquaredError{}, true
	case KindCategoricalCrossEntropy:
		return CrossEntropy{}, true
	}
	return nil, false
}
