package synth

import (
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"gonum.org/v1/gonum/floats"

	"dreamnet/internal/frames"
)

var ErrCompleted = errors.New("synth: loop already completed")

// State is the loop lifecycle: Initialized, then Iterating until the fixed
// iteration count is spent, then Completed.
type State int

const (
	Initialized State = iota
	Iterating
	Completed
)

func (s State) String() string {
	switch s {
	case Initialized:
		return "initialized"
	case Iterating:
		return "iterating"
	case Completed:
		return "completed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Config holds the loop constants.
type Config struct {
	// Classes is the number of real classes. The oracle outputs Classes+1
	// values, the last one being the sentinel "fake" class.
	Classes int
	// Target is the class the image is steered towards.
	Target     int
	Iterations int
	// StateRate scales the gradient step applied to the image.
	StateRate float64
	// ModelRateStep is the per-iteration increment of the oracle's rate.
	ModelRateStep float64
}

func DefaultConfig(target int) Config {
	return Config{
		Classes:       10,
		Target:        target,
		Iterations:    201,
		StateRate:     0.04,
		ModelRateStep: 0.005,
	}
}

// ModelRate is the rate handed to Fit at iteration i. It ramps linearly from 0.
func (c Config) ModelRate(i int) float64 {
	return c.ModelRateStep * float64(i)
}

func (c Config) Validate() error {
	if c.Classes <= 0 {
		return fmt.Errorf("classes must be positive, got %d", c.Classes)
	}
	if c.Target < 0 || c.Target >= c.Classes {
		return fmt.Errorf("target class %d outside 0..%d", c.Target, c.Classes-1)
	}
	if c.Iterations <= 0 {
		return fmt.Errorf("iterations must be positive, got %d", c.Iterations)
	}
	return nil
}

// OneHot returns a vector of length n with a 1 at index hot.
func OneHot(n, hot int) []float64 {
	v := make([]float64, n)
	v[hot] = 1
	return v
}

// Recorder snapshots the image on its own cadence. It returns a nil frame
// for iterations it skips.
type Recorder interface {
	MaybeRecord(image []float64, iteration int) (*frames.Frame, error)
}

// Report describes the oracle's view of the image after an iteration.
type Report struct {
	Iteration   int
	Loss        float64
	Predicted   int
	Predictions []float64
	ModelRate   float64
	Frame       *frames.Frame
}

type Option func(*Loop)

func WithEstimator(e *Estimator) Option {
	return func(l *Loop) { l.estimator = e }
}

func WithRecorder(r Recorder) Option {
	return func(l *Loop) { l.recorder = r }
}

// WithObserver registers fn to receive every report. An error aborts the run.
func WithObserver(fn func(Report) error) Option {
	return func(l *Loop) { l.observers = append(l.observers, fn) }
}

func WithLogger(logger *slog.Logger) Option {
	return func(l *Loop) { l.logger = logger }
}

// WithImage starts from a copy of image instead of uniform noise.
func WithImage(image []float64) Option {
	return func(l *Loop) { l.image = append([]float64(nil), image...) }
}

// WithRand sets the source for the initial noise image.
func WithRand(rng *rand.Rand) Option {
	return func(l *Loop) { l.rng = rng }
}

// Loop owns the synthetic image and drives the oracle it was handed.
type Loop struct {
	cfg       Config
	oracle    Oracle
	estimator *Estimator
	recorder  Recorder
	observers []func(Report) error
	logger    *slog.Logger
	rng       *rand.Rand

	image    []float64
	target   []float64
	sentinel []float64
	next     int
	state    State
}

// New prepares a loop over an image of the given pixel count.
func New(oracle Oracle, pixels int, cfg Config, opts ...Option) (*Loop, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	l := &Loop{
		cfg:      cfg,
		oracle:   oracle,
		target:   OneHot(cfg.Classes+1, cfg.Target),
		sentinel: OneHot(cfg.Classes+1, cfg.Classes),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.estimator == nil {
		l.estimator = &Estimator{Step: DefaultStep}
	}
	if l.logger == nil {
		l.logger = slog.Default()
	}
	if l.image == nil {
		if l.rng == nil {
			l.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
		}
		l.image = make([]float64, pixels)
		for i := range l.image {
			l.image[i] = l.rng.Float64()
		}
	}
	if len(l.image) != pixels {
		return nil, fmt.Errorf("image has %d pixels, want %d", len(l.image), pixels)
	}
	return l, nil
}

func (l *Loop) State() State {
	return l.state
}

// Image returns a copy of the current synthetic image.
func (l *Loop) Image() []float64 {
	return append([]float64(nil), l.image...)
}

// Target returns a copy of the reconstruction target.
func (l *Loop) Target() []float64 {
	return append([]float64(nil), l.target...)
}

// Sentinel returns a copy of the target used to retrain the oracle.
func (l *Loop) Sentinel() []float64 {
	return append([]float64(nil), l.sentinel...)
}

// Evaluate scores the current image without changing anything.
func (l *Loop) Evaluate() Report {
	preds := l.oracle.Evaluate(l.image)
	return Report{
		Iteration:   l.next - 1,
		Loss:        l.oracle.Loss(preds, l.target),
		Predicted:   floats.MaxIdx(preds),
		Predictions: preds,
	}
}

// Step runs one iteration: gradient step on the image, one epoch of Fit on
// the updated image labelled as fake, then re-evaluation and recording.
func (l *Loop) Step() (Report, error) {
	if l.state == Completed {
		return Report{}, ErrCompleted
	}
	l.state = Iterating
	i := l.next

	grad := l.estimator.Estimate(l.image, l.target, l.oracle)
	floats.AddScaled(l.image, -l.cfg.StateRate, grad)

	rate := l.cfg.ModelRate(i)
	batch := [][]float64{l.Image()}
	truth := [][]float64{l.Sentinel()}
	if err := l.oracle.Fit(batch, truth, 1, rate); err != nil {
		return Report{}, fmt.Errorf("fit at iteration %d: %w", i, err)
	}
	l.next++

	report := l.Evaluate()
	report.ModelRate = rate
	l.logger.Debug("synth: iteration",
		"iteration", i,
		"loss", report.Loss,
		"predicted", report.Predicted,
		"model_rate", rate,
		"predictions", report.Predictions)

	if l.recorder != nil {
		frame, err := l.recorder.MaybeRecord(l.image, i)
		if err != nil {
			return report, fmt.Errorf("record iteration %d: %w", i, err)
		}
		report.Frame = frame
	}
	for _, observe := range l.observers {
		if err := observe(report); err != nil {
			return report, fmt.Errorf("observe iteration %d: %w", i, err)
		}
	}

	if l.next == l.cfg.Iterations {
		l.state = Completed
	}
	return report, nil
}

// Result summarises a finished run.
type Result struct {
	Initial Report
	Final   Report
	Frames  []*frames.Frame
	Image   []float64
}

// Run steps until the iteration count is spent. There is no early exit; any
// error from Fit, the recorder or an observer aborts the run.
func (l *Loop) Run() (*Result, error) {
	res := &Result{Initial: l.Evaluate()}
	l.logger.Info("synth: start",
		"target", l.cfg.Target,
		"iterations", l.cfg.Iterations,
		"loss", res.Initial.Loss,
		"predicted", res.Initial.Predicted)

	for l.state != Completed {
		report, err := l.Step()
		if err != nil {
			return nil, err
		}
		if report.Frame != nil {
			res.Frames = append(res.Frames, report.Frame)
		}
		res.Final = report
	}
	res.Image = l.Image()

	l.logger.Info("synth: done",
		"loss", res.Final.Loss,
		"predicted", res.Final.Predicted,
		"frames", len(res.Frames))
	return res, nil
}
