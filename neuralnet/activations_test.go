package neuralnet

import (
	"math"
	"testing"
)

func TestReLUActivate(t *testing.T) {
	r := ReLU{}
	got := make([]float64, 2)
	r.Activate(got, []float64{-1, 2})
	if got[0] != 0 {
		t.Errorf("ReLU.Activate(-1) = %v; want 0", got[0])
	}
	if got[1] != 2 {
		t.Errorf("ReLU.Activate(2) = %v; want 2", got[1])
	}
}

func TestSigmoidActivate(t *testing.T) {
	s := Sigmoid{}
	got := make([]float64, 1)
	s.Activate(got, []float64{0})
	if !floatEquals(got[0], 0.5, 1e-9) {
		t.Errorf("Sigmoid.Activate(0) = %v; want approx 0.5", got[0])
	}
}

func TestLinearActivate(t *testing.T) {
	l := Linear{}
	got := make([]float64, 1)
	l.Activate(got, []float64{3.14})
	if got[0] != 3.14 {
		t.Errorf("Linear.Activate(3.14) = %v; want 3.14", got[0])
	}
}

func TestSoftmaxActivate(t *testing.T) {
	s := Softmax{}
	got := make([]float64, 3)
	// large logits must not overflow
	s.Activate(got, []float64{1000, 1000, 1000})
	for i, v := range got {
		if !floatEquals(v, 1.0/3, 1e-12) {
			t.Errorf("Softmax[%d] = %v; want 1/3", i, v)
		}
	}
}

// Every Backward must agree with a numerical derivative of Activate.
func TestActivationBackward(t *testing.T) {
	z := []float64{-0.7, 0.2, 1.3}
	upstream := []float64{0.5, -1, 2}
	const h = 1e-6

	for _, act := range []ActivationFunction{Linear{}, Sigmoid{}, ReLU{}, NewLeakyReLU(0.1), Tanh{}, Softmax{}} {
		t.Run(string(act.Kind()), func(t *testing.T) {
			a := make([]float64, len(z))
			act.Activate(a, z)
			got := make([]float64, len(z))
			act.Backward(got, z, a, upstream)

			for j := range z {
				plus := append([]float64(nil), z...)
				minus := append([]float64(nil), z...)
				plus[j] += h
				minus[j] -= h
				ap := make([]float64, len(z))
				am := make([]float64, len(z))
				act.Activate(ap, plus)
				act.Activate(am, minus)
				var want float64
				for i := range z {
					want += upstream[i] * (ap[i] - am[i]) / (2 * h)
				}
				if math.Abs(got[j]-want) > 1e-5 {
					t.Errorf("dz[%d] = %v; want %v", j, got[j], want)
				}
			}
		})
	}
}
