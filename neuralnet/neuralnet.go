package neuralnet

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// ErrShape is returned when inputs or targets don't match the model dimensions.
var ErrShape = errors.New("neuralnet: dimension mismatch")

// Layer is a fully connected layer: a = f(W·x + b).
type Layer struct {
	// Weights is Out x In.
	Weights    *mat.Dense
	Biases     []float64
	Activation ActivationFunction
}

// In is the number of inputs the layer expects.
func (l *Layer) In() int {
	_, c := l.Weights.Dims()
	return c
}

// Out is the number of neurons in the layer.
func (l *Layer) Out() int {
	r, _ := l.Weights.Dims()
	return r
}

// Model is a feed-forward network trained with plain SGD.
type Model struct {
	Layers   []*Layer
	LossFunc LossFunction

	// Optimizer defaults to SGD without weight decay.
	Optimizer Optimizer
	// OnSample, if set, is called after every training example.
	OnSample func()
}

// NewModel builds a network with xavier-initialised weights. Hidden layers use
// hiddenAct, the last layer uses outputAct. A zero seed derives one from the
// layer sizes so equal architectures start from equal weights.
func NewModel(inputSize int, hidden []int, outputSize int, hiddenAct, outputAct ActivationFunction, loss LossFunction, seed int64) *Model {
	if seed == 0 {
		seed = int64(NNSeed(inputSize, hidden, outputSize))
	}
	rng := rand.New(rand.NewSource(seed))

	sizes := append(append([]int{inputSize}, hidden...), outputSize)
	m := &Model{
		Layers:   make([]*Layer, len(sizes)-1),
		LossFunc: loss,
	}
	for i := 0; i < len(sizes)-1; i++ {
		in, out := sizes[i], sizes[i+1]
		weights := make([]float64, out*in)
		for k := range weights {
			weights[k] = xavierInit(rng, in, out)
		}
		act := hiddenAct
		if i == len(sizes)-2 {
			act = outputAct
		}
		m.Layers[i] = &Layer{
			Weights:    mat.NewDense(out, in, weights),
			Biases:     make([]float64, out),
			Activation: act,
		}
	}
	return m
}

func NNSeed(inputSize int, hidden []int, outputSize int) int {
	seed := inputSize
	for _, h := range hidden {
		seed = seed + h
	}
	return seed + outputSize
}

// InputSize is the length Evaluate expects.
func (m *Model) InputSize() int {
	return m.Layers[0].In()
}

// OutputSize is the length of Evaluate's result.
func (m *Model) OutputSize() int {
	return m.Layers[len(m.Layers)-1].Out()
}

// Evaluate runs a forward pass. It only reads the model and is safe for
// concurrent use as long as nothing trains the model at the same time.
func (m *Model) Evaluate(input []float64) []float64 {
	if len(input) != m.InputSize() {
		panic(fmt.Sprintf("neuralnet: input length %d, want %d", len(input), m.InputSize()))
	}
	_, as := m.forward(input)
	return as[len(as)-1]
}

// Loss scores a prediction with the model's configured loss.
func (m *Model) Loss(prediction, target []float64) float64 {
	return m.LossFunc.Compute(prediction, target)
}

// Fit runs epochs of per-example SGD over the batch at the given rate.
func (m *Model) Fit(inputs, targets [][]float64, epochs int, rate float64) error {
	if len(inputs) != len(targets) {
		return fmt.Errorf("%w: %d inputs, %d targets", ErrShape, len(inputs), len(targets))
	}
	for i := range inputs {
		if len(inputs[i]) != m.InputSize() {
			return fmt.Errorf("%w: input %d has length %d, want %d", ErrShape, i, len(inputs[i]), m.InputSize())
		}
		if len(targets[i]) != m.OutputSize() {
			return fmt.Errorf("%w: target %d has length %d, want %d", ErrShape, i, len(targets[i]), m.OutputSize())
		}
	}
	opt := m.Optimizer
	if opt == nil {
		opt = &SGD{}
	}
	for e := 0; e < epochs; e++ {
		for i := range inputs {
			grads := m.backpropagate(inputs[i], targets[i])
			if err := opt.Apply(m.Layers, grads, rate, 1); err != nil {
				return err
			}
			if m.OnSample != nil {
				m.OnSample()
			}
		}
	}
	return nil
}

// forward returns the pre-activations of every layer and the activations,
// where as[0] is the input itself.
func (m *Model) forward(input []float64) (zs, as [][]float64) {
	zs = make([][]float64, len(m.Layers))
	as = make([][]float64, len(m.Layers)+1)
	as[0] = input
	for i, layer := range m.Layers {
		var z mat.VecDense
		z.MulVec(layer.Weights, mat.NewVecDense(len(as[i]), as[i]))
		zs[i] = z.RawVector().Data
		floats.Add(zs[i], layer.Biases)
		as[i+1] = make([]float64, len(zs[i]))
		layer.Activation.Activate(as[i+1], zs[i])
	}
	return zs, as
}

func (m *Model) backpropagate(input, target []float64) *Gradients {
	zs, as := m.forward(input)
	grads := &Gradients{
		Weights: make([]*mat.Dense, len(m.Layers)),
		Biases:  make([][]float64, len(m.Layers)),
	}

	upstream := m.LossFunc.Gradient(as[len(as)-1], target)
	for i := len(m.Layers) - 1; i >= 0; i-- {
		layer := m.Layers[i]
		delta := make([]float64, len(zs[i]))
		layer.Activation.Backward(delta, zs[i], as[i+1], upstream)

		deltaVec := mat.NewVecDense(len(delta), delta)
		var dw mat.Dense
		dw.Outer(1, deltaVec, mat.NewVecDense(len(as[i]), as[i]))
		grads.Weights[i] = &dw
		grads.Biases[i] = delta

		if i > 0 {
			var up mat.VecDense
			up.MulVec(layer.Weights.T(), deltaVec)
			upstream = up.RawVector().Data
		}
	}
	return grads
}

// Argmax returns the index of the largest prediction.
func Argmax(preds []float64) int {
	return floats.MaxIdx(preds)
}

func xavierInit(rng *rand.Rand, numInputs int, numOutputs int) float64 {
	limit := math.Sqrt(6.0 / float64(numInputs+numOutputs))
	return 2*rng.Float64()*limit - limit
}

// Debug
func (l *Layer) String() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d -> %d %s\n", l.In(), l.Out(), l.Activation.Kind()))
	sb.WriteString(fmt.Sprintf("Biases: %.3v\n", l.Biases))
	return sb.String()
}

func (m *Model) String() string {
	var sb strings.Builder
	for i, layer := range m.Layers {
		sb.WriteString(fmt.Sprintf("Layer %d: %s", i, layer.String()))
	}
	sb.WriteString(fmt.Sprintf("Loss: %s\n", m.LossFunc.Kind()))
	return sb.String()
}
