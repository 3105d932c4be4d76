package synth

import (
	"errors"
	"io"
	"log/slog"
	"math"
	"path/filepath"
	"sync"
	"testing"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"dreamnet/internal/frames"
	"dreamnet/neuralnet"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// quadOracle has loss sum((x - c)^2), so the gradient is 2(x - c).
type quadOracle struct {
	c []float64
}

func (q *quadOracle) Evaluate(input []float64) []float64 {
	return append([]float64(nil), input...)
}

func (q *quadOracle) Fit(inputs, targets [][]float64, epochs int, rate float64) error {
	return nil
}

func (q *quadOracle) Loss(prediction, target []float64) float64 {
	var sum float64
	for i, p := range prediction {
		d := p - q.c[i]
		sum += d * d
	}
	return sum
}

type fitCall struct {
	inputs, targets [][]float64
	epochs          int
	rate            float64
}

// spyOracle scores with a fixed linear softmax and records every Fit.
type spyOracle struct {
	mu     sync.Mutex
	model  *neuralnet.Model
	calls  []fitCall
	fitErr error
}

func newSpyOracle(pixels int) *spyOracle {
	return &spyOracle{model: neuralnet.NewModel(pixels, nil, 11, neuralnet.Linear{}, neuralnet.Softmax{}, neuralnet.CrossEntropy{}, 42)}
}

func (s *spyOracle) Evaluate(input []float64) []float64 {
	return s.model.Evaluate(input)
}

func (s *spyOracle) Fit(inputs, targets [][]float64, epochs int, rate float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, fitCall{inputs: inputs, targets: targets, epochs: epochs, rate: rate})
	return s.fitErr
}

func (s *spyOracle) Loss(prediction, target []float64) float64 {
	return s.model.Loss(prediction, target)
}

func TestEstimateDeterministic(t *testing.T) {
	oracle := newSpyOracle(6)
	image := []float64{0.1, 0.7, 0.3, 0.9, 0.5, 0.2}
	target := OneHot(11, 3)

	for _, concurrent := range []bool{false, true} {
		e := &Estimator{Step: DefaultStep, Concurrent: concurrent}
		first := e.Estimate(image, target, oracle)
		second := e.Estimate(image, target, oracle)
		if !floats.Equal(first, second) {
			t.Errorf("concurrent=%v: %v != %v", concurrent, first, second)
		}
	}

	serial := (&Estimator{}).Estimate(image, target, oracle)
	parallel := (&Estimator{Concurrent: true}).Estimate(image, target, oracle)
	if !floats.Equal(serial, parallel) {
		t.Errorf("serial %v != concurrent %v", serial, parallel)
	}
}

func TestEstimateMatchesAnalyticGradient(t *testing.T) {
	c := []float64{0.5, -1, 2, 0}
	oracle := &quadOracle{c: c}
	image := []float64{0.1, 0.2, 0.3, 0.4}

	got := (&Estimator{Step: DefaultStep}).Estimate(image, nil, oracle)
	for i := range image {
		analytic := 2 * (image[i] - c[i])
		// forward differences on a quadratic are off by exactly h
		if diff := math.Abs(got[i] - analytic); diff > 1.01*DefaultStep {
			t.Errorf("grad[%d] = %v, analytic %v, diff %v", i, got[i], analytic, diff)
		}
	}
}

func TestOneHotAndConfig(t *testing.T) {
	v := OneHot(11, 10)
	if len(v) != 11 || v[10] != 1 || floats.Sum(v) != 1 {
		t.Errorf("OneHot(11, 10) = %v", v)
	}

	tests := []struct {
		description string
		mutate      func(*Config)
	}{
		{"target too large", func(c *Config) { c.Target = 10 }},
		{"negative target", func(c *Config) { c.Target = -1 }},
		{"no classes", func(c *Config) { c.Classes = 0 }},
		{"no iterations", func(c *Config) { c.Iterations = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.description, func(t *testing.T) {
			cfg := DefaultConfig(3)
			tt.mutate(&cfg)
			if _, err := New(newSpyOracle(4), 4, cfg); err == nil {
				t.Error("New accepted an invalid config")
			}
		})
	}
}

func TestRateRampAndSentinelTarget(t *testing.T) {
	oracle := newSpyOracle(4)
	cfg := DefaultConfig(3)
	loop, err := New(oracle, 4, cfg, WithImage([]float64{0.2, 0.4, 0.6, 0.8}), WithLogger(quietLogger()))
	if err != nil {
		t.Fatal(err)
	}
	if loop.State() != Initialized {
		t.Fatalf("state = %s, want initialized", loop.State())
	}

	sentinel := OneHot(11, 10)
	for i := 0; i < cfg.Iterations; i++ {
		if _, err := loop.Step(); err != nil {
			t.Fatalf("Step %d: %v", i, err)
		}
		if i < cfg.Iterations-1 && loop.State() != Iterating {
			t.Fatalf("state after step %d = %s", i, loop.State())
		}

		if len(oracle.calls) != i+1 {
			t.Fatalf("%d Fit calls after %d iterations", len(oracle.calls), i+1)
		}
		call := oracle.calls[i]
		if call.epochs != 1 {
			t.Errorf("iteration %d: epochs = %d, want 1", i, call.epochs)
		}
		if len(call.targets) != 1 || !floats.Equal(call.targets[0], sentinel) {
			t.Errorf("iteration %d: fit target = %v, want sentinel", i, call.targets)
		}
		if len(call.inputs) != 1 || !floats.Equal(call.inputs[0], loop.Image()) {
			t.Errorf("iteration %d: fit input is not the updated image", i)
		}
		if want := 0.005 * float64(i); call.rate != want {
			t.Errorf("iteration %d: rate = %v, want %v", i, call.rate, want)
		}
		if i > 0 && call.rate < oracle.calls[i-1].rate {
			t.Errorf("iteration %d: rate decreased", i)
		}
	}
	if loop.State() != Completed {
		t.Errorf("state = %s, want completed", loop.State())
	}
	if _, err := loop.Step(); !errors.Is(err, ErrCompleted) {
		t.Errorf("Step after completion = %v, want ErrCompleted", err)
	}
}

func TestRunRecordsFrames(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "iterations")
	rec := frames.NewRecorder(dir, 5, 2, 2)
	rec.Logger = quietLogger()

	var observed []int
	loop, err := New(newSpyOracle(4), 4, DefaultConfig(3),
		WithRecorder(rec),
		WithEstimator(&Estimator{Concurrent: true}),
		WithObserver(func(r Report) error {
			observed = append(observed, r.Iteration)
			return nil
		}),
		WithLogger(quietLogger()))
	if err != nil {
		t.Fatal(err)
	}

	res, err := loop.Run()
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Frames) != 41 {
		t.Fatalf("recorded %d frames, want 41", len(res.Frames))
	}
	for k, f := range res.Frames {
		if f.Iteration != 5*k {
			t.Errorf("frame %d at iteration %d, want %d", k, f.Iteration, 5*k)
		}
	}
	if len(observed) != 201 || observed[200] != 200 {
		t.Errorf("observed %d reports", len(observed))
	}
	if res.Initial.Iteration != -1 || res.Final.Iteration != 200 {
		t.Errorf("initial %d final %d", res.Initial.Iteration, res.Final.Iteration)
	}
}

// A 4-pixel linear softmax over 11 classes with known weights: one iteration
// must move the image by exactly -0.04 times the forward difference.
func TestSingleIterationByHand(t *testing.T) {
	weights := make([]float64, 11*4)
	for k := 0; k < 11; k++ {
		for j := 0; j < 4; j++ {
			weights[k*4+j] = 0.1 * float64(k+1) * (float64(j) - 1.5)
		}
	}
	newModel := func() *neuralnet.Model {
		return &neuralnet.Model{
			Layers: []*neuralnet.Layer{{
				Weights:    mat.NewDense(11, 4, append([]float64(nil), weights...)),
				Biases:     make([]float64, 11),
				Activation: neuralnet.Softmax{},
			}},
			LossFunc: neuralnet.CrossEntropy{},
		}
	}

	initial := []float64{0.1, 0.2, 0.3, 0.4}
	target := OneHot(11, 3)

	reference := newModel()
	base := reference.Loss(reference.Evaluate(initial), target)
	want := make([]float64, 4)
	for i := range initial {
		inc := append([]float64(nil), initial...)
		inc[i] += 0.01
		diff := (reference.Loss(reference.Evaluate(inc), target) - base) / 0.01
		want[i] = initial[i] - 0.04*diff
	}

	cfg := DefaultConfig(3)
	cfg.Iterations = 1
	loop, err := New(newModel(), 4, cfg, WithImage(initial), WithLogger(quietLogger()))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := loop.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := loop.Image(); !floats.EqualApprox(got, want, 1e-12) {
		t.Errorf("image = %v, want %v", got, want)
	}
	if loop.State() != Completed {
		t.Errorf("state = %s", loop.State())
	}
}

type failingRecorder struct{}

func (failingRecorder) MaybeRecord(image []float64, iteration int) (*frames.Frame, error) {
	return nil, errors.New("disk full")
}

func TestRunAborts(t *testing.T) {
	t.Run("fit error", func(t *testing.T) {
		oracle := newSpyOracle(4)
		oracle.fitErr = errors.New("bad batch")
		loop, err := New(oracle, 4, DefaultConfig(1), WithLogger(quietLogger()))
		if err != nil {
			t.Fatal(err)
		}
		if _, err := loop.Run(); err == nil {
			t.Error("Run ignored the Fit error")
		}
		if len(oracle.calls) != 1 {
			t.Errorf("%d Fit calls, want 1", len(oracle.calls))
		}
	})
	t.Run("record error", func(t *testing.T) {
		loop, err := New(newSpyOracle(4), 4, DefaultConfig(1), WithRecorder(failingRecorder{}), WithLogger(quietLogger()))
		if err != nil {
			t.Fatal(err)
		}
		if _, err := loop.Run(); err == nil {
			t.Error("Run ignored the recorder error")
		}
	})
}

func TestNoiseImageInUnitRange(t *testing.T) {
	loop, err := New(newSpyOracle(784), 784, DefaultConfig(0))
	if err != nil {
		t.Fatal(err)
	}
	for i, p := range loop.Image() {
		if p < 0 || p >= 1 {
			t.Fatalf("pixel %d = %v outside [0,1)", i, p)
		}
	}
	if _, err := New(newSpyOracle(4), 4, DefaultConfig(0), WithImage([]float64{1, 2})); err == nil {
		t.Error("New accepted an image of the wrong size")
	}
}
