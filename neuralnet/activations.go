package neuralnet

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// ActivationKind names an activation in the persisted model document.
type ActivationKind string

const (
	KindLinear    ActivationKind = "linear"
	KindSigmoid   ActivationKind = "sigmoid"
	KindReLU      ActivationKind = "relu"
	KindLeakyReLU ActivationKind = "leaky_relu"
	KindTanh      ActivationKind = "tanh"
	KindSoftmax   ActivationKind = "softmax"
)

// ActivationFunction is applied to a whole layer output so that softmax fits
// the same shape as the element-wise activations.
type ActivationFunction interface {
	Kind() ActivationKind
	// Activate writes f(z) into dst.
	Activate(dst, z []float64)
	// Backward turns dL/da into dL/dz. z is the pre-activation, a = f(z).
	Backward(dst, z, a, grad []float64)
}

type ReLU struct{}

func (ReLU) Kind() ActivationKind { return KindReLU }

func (ReLU) Activate(dst, z []float64) {
	for i, x := range z {
		dst[i] = math.Max(x, 0)
	}
}

func (ReLU) Backward(dst, z, a, grad []float64) {
	for i, x := range z {
		if x > 0 {
			dst[i] = grad[i]
		} else {
			dst[i] = 0
		}
	}
}

type LeakyReLU struct {
	Alpha float64
}

func NewLeakyReLU(alpha float64) LeakyReLU {
	return LeakyReLU{Alpha: alpha}
}

func (LeakyReLU) Kind() ActivationKind { return KindLeakyReLU }

func (l LeakyReLU) Activate(dst, z []float64) {
	for i, x := range z {
		if x > 0 {
			dst[i] = x
		} else {
			dst[i] = l.Alpha * x
		}
	}
}

func (l LeakyReLU) Backward(dst, z, a, grad []float64) {
	for i, x := range z {
		if x > 0 {
			dst[i] = grad[i]
		} else {
			dst[i] = l.Alpha * grad[i]
		}
	}
}

type Sigmoid struct{}

func (Sigmoid) Kind() ActivationKind { return KindSigmoid }

func (Sigmoid) Activate(dst, z []float64) {
	for i, x := range z {
		dst[i] = 1 / (1 + math.Exp(-x))
	}
}

func (Sigmoid) Backward(dst, z, a, grad []float64) {
	for i := range z {
		dst[i] = grad[i] * a[i] * (1 - a[i])
	}
}

type Tanh struct{}

func (Tanh) Kind() ActivationKind { return KindTanh }

func (Tanh) Activate(dst, z []float64) {
	for i, x := range z {
		dst[i] = math.Tanh(x)
	}
}

func (Tanh) Backward(dst, z, a, grad []float64) {
	for i := range z {
		dst[i] = grad[i] * (1 - a[i]*a[i])
	}
}

type Linear struct{}

func (Linear) Kind() ActivationKind { return KindLinear }

func (Linear) Activate(dst, z []float64) {
	copy(dst, z)
}

func (Linear) Backward(dst, z, a, grad []float64) {
	copy(dst, grad)
}

type Softmax struct{}

func (Softmax) Kind() ActivationKind { return KindSoftmax }

func (Softmax) Activate(dst, z []float64) {
	// shift by the max so exp never overflows
	max := floats.Max(z)
	for i, x := range z {
		dst[i] = math.Exp(x - max)
	}
	floats.Scale(1/floats.Sum(dst), dst)
}

// Backward applies the softmax Jacobian: dz_j = a_j * (g_j - sum_i g_i*a_i).
func (Softmax) Backward(dst, z, a, grad []float64) {
	dot := floats.Dot(grad, a)
	for j := range a {
		dst[j] = a[j] * (grad[j] - dot)
	}
}

// NewActivation returns the activation registered under kind.
func NewActivation(kind ActivationKind, alpha float64) (ActivationFunction, bool) {
	switch kind {
	case KindLinear:
		return Linear{}, true
	case KindSigmoid:
		return Sigmoid{}, true
	case KindReLU:
		return ReLU{}, true
	case KindLeakyReLU:
		return NewLeakyReLU(alpha), true
	case KindTanh:
		return Tanh{}, true
	case KindSoftmax:
		return Softmax{}, true
	}
	return nil, false
}
