// Package trainer obtains a ready classifier: it loads the persisted model or
// trains one from the digit CSV and noise images.
package trainer

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"math/rand"
	"time"

	"github.com/schollz/progressbar/v3"

	"dreamnet/internal/config"
	"dreamnet/internal/dataset"
	"dreamnet/neuralnet"
)

type Trainer struct {
	Config *config.Config
	Logger *slog.Logger
	// Progress receives the training progress bar. Nil hides it.
	Progress io.Writer
}

func New(cfg *config.Config, logger *slog.Logger) *Trainer {
	return &Trainer{Config: cfg, Logger: logger}
}

// Classes is the classifier output width: the digits, plus the sentinel
// class when noise images are mixed in.
func (t *Trainer) Classes() int {
	if t.Config.Training.Fakes {
		return t.Config.Synth.OutputSize()
	}
	return t.Config.Synth.Classes
}

// NewModel returns an untrained classifier for the configured shape.
func (t *Trainer) NewModel() *neuralnet.Model {
	return neuralnet.NewModel(
		t.Config.Synth.Pixels(),
		t.Config.Model.Hidden,
		t.Classes(),
		neuralnet.ReLU{},
		neuralnet.Softmax{},
		neuralnet.CrossEntropy{},
		t.Config.Model.Seed,
	)
}

func (t *Trainer) rng() *rand.Rand {
	seed := t.Config.Training.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return rand.New(rand.NewSource(seed))
}

// Dataset loads the digit CSV and, when enabled, appends the noise images.
func (t *Trainer) Dataset() (*dataset.Set, error) {
	tc := t.Config.Training
	set, err := dataset.LoadCSVFile(tc.CSV, t.Classes())
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", tc.CSV, err)
	}
	if width := set.Inputs.Shape()[1]; width != t.Config.Synth.Pixels() {
		return nil, fmt.Errorf("%s has %d pixels per image, want %d", tc.CSV, width, t.Config.Synth.Pixels())
	}
	rng := t.rng()
	if tc.Fakes && tc.FakeCount > 0 {
		fakes := dataset.Fakes(tc.FakeCount, t.Config.Synth.Pixels(), t.Classes(), rng)
		if set, err = dataset.Concat(set, fakes); err != nil {
			return nil, err
		}
	}
	set.Shuffle(rng)
	return set, nil
}

// Train fits a fresh model and persists it to the configured path.
func (t *Trainer) Train() (*neuralnet.Model, error) {
	set, err := t.Dataset()
	if err != nil {
		return nil, err
	}
	tc := t.Config.Training
	t.Logger.Info("trainer: training",
		"examples", set.Len(),
		"classes", t.Classes(),
		"epochs", tc.Epochs,
		"rate", tc.Rate)

	out := t.Progress
	if out == nil {
		out = io.Discard
	}
	bar := progressbar.NewOptions(set.Len()*tc.Epochs,
		progressbar.OptionSetDescription("training"),
		progressbar.OptionSetWriter(out),
		progressbar.OptionShowCount(),
		progressbar.OptionThrottle(100*time.Millisecond),
	)

	model := t.NewModel()
	model.OnSample = func() { bar.Add(1) }
	inputs, targets := set.Rows()
	if err := model.Fit(inputs, targets, tc.Epochs, tc.Rate); err != nil {
		return nil, err
	}
	model.OnSample = nil
	bar.Finish()

	correct := 0
	for i := range inputs {
		if neuralnet.Argmax(model.Evaluate(inputs[i])) == set.Labels[i] {
			correct++
		}
	}
	t.Logger.Info("trainer: trained",
		"accuracy", float64(correct)/float64(set.Len()),
		"path", t.Config.Model.Path)

	if err := model.Save(t.Config.Model.Path); err != nil {
		return nil, err
	}
	return model, nil
}

// LoadOrTrain returns the persisted model, training one when it is missing
// or retrain is set. A model that exists but cannot be used is reported as
// neuralnet.ErrCorruptModel and is not retrained.
func (t *Trainer) LoadOrTrain(retrain bool) (*neuralnet.Model, error) {
	path := t.Config.Model.Path
	if retrain {
		return t.Train()
	}
	model, err := neuralnet.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		t.Logger.Info("trainer: no model, training from scratch", "path", path)
		return t.Train()
	}
	if err != nil {
		return nil, err
	}
	if model.InputSize() != t.Config.Synth.Pixels() || model.OutputSize() != t.Classes() {
		return nil, fmt.Errorf("%w: %s maps %d pixels to %d classes, want %d to %d",
			neuralnet.ErrCorruptModel, path, model.InputSize(), model.OutputSize(), t.Config.Synth.Pixels(), t.Classes())
	}
	t.Logger.Info("trainer: loaded model", "path", path)
	return model, nil
}
