package cmd

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"

	"dreamnet/internal/frames"
	"dreamnet/internal/journal"
	"dreamnet/internal/synth"
	"dreamnet/internal/trainer"
	"dreamnet/neuralnet"
)

// SynthOptions are the root command flags.
type SynthOptions struct {
	Num     int
	Retrain bool
}

var synthOpts SynthOptions

// runSynth obtains a model, runs the synthesis loop, journals it when
// configured and assembles the recorded frames into a GIF.
func runSynth(ctx context.Context, o SynthOptions) {
	if o.Num < 0 || o.Num >= cfg.Synth.Classes {
		die("Invalid target digit", fmt.Errorf("--num %d outside 0..%d", o.Num, cfg.Synth.Classes-1), "")
	}

	model := obtainModel(o.Retrain)
	if model.OutputSize() != cfg.Synth.OutputSize() {
		die("Model has no fake class",
			fmt.Errorf("%s has %d outputs, synthesis needs %d", cfg.Model.Path, model.OutputSize(), cfg.Synth.OutputSize()),
			fmt.Sprintf("delete %s and rerun", cfg.Model.Path))
	}

	var (
		jrnl  *journal.Journal
		runID string
	)
	if cfg.Journal.DSN != "" {
		var err error
		jrnl, err = journal.Open(ctx, cfg.Journal.DSN)
		if err != nil {
			die("Failed to open run journal", err, "")
		}
		defer jrnl.Close()
		runID, err = jrnl.StartRun(ctx, o.Num, cfg.Synth.Iterations, cfg.Synth.StateRate, cfg.Model.Path)
		if err != nil {
			die("Failed to start journal run", err, "")
		}
		logger.Info("dreamnet: journaling run", "run", runID)
	}

	seed := cfg.Synth.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	recorder := frames.NewRecorder(cfg.Frames.Dir, cfg.Frames.Every, cfg.Synth.Width, cfg.Synth.Height)
	recorder.Scale = cfg.Frames.Scale
	recorder.Logger = logger

	bar := progressbar.NewOptions(cfg.Synth.Iterations,
		progressbar.OptionSetDescription(fmt.Sprintf("dreaming a %d", o.Num)),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
	)

	loopOpts := []synth.Option{
		synth.WithEstimator(&synth.Estimator{Step: cfg.Synth.Step, Concurrent: cfg.Synth.Concurrent}),
		synth.WithRecorder(recorder),
		synth.WithLogger(logger),
		synth.WithRand(rand.New(rand.NewSource(seed))),
		synth.WithObserver(func(synth.Report) error {
			bar.Add(1)
			return ctx.Err()
		}),
	}
	if jrnl != nil {
		loopOpts = append(loopOpts, synth.WithObserver(func(r synth.Report) error {
			return jrnl.RecordStep(ctx, runID, journalStep(r))
		}))
	}

	loop, err := synth.New(model, cfg.Synth.Pixels(), synth.Config{
		Classes:       cfg.Synth.Classes,
		Target:        o.Num,
		Iterations:    cfg.Synth.Iterations,
		StateRate:     cfg.Synth.StateRate,
		ModelRateStep: cfg.Synth.ModelRateStep,
	}, loopOpts...)
	if err != nil {
		die("Invalid synthesis settings", err, "")
	}

	initial := loop.Evaluate()
	logger.Info("dreamnet: initial image",
		"loss", initial.Loss,
		"predicted", initial.Predicted,
		"predictions", initial.Predictions)

	res, err := loop.Run()
	bar.Finish()
	if errors.Is(err, context.Canceled) {
		die("Interrupted", err, "")
	}
	if err != nil {
		die("Synthesis failed", err, "")
	}
	logger.Debug("dreamnet: final image", "preview", "\n"+frames.Preview(res.Image, cfg.Synth.Width, 0.25))

	if jrnl != nil {
		if err := jrnl.FinishRun(ctx, runID, res.Final.Loss, res.Final.Predicted, len(res.Frames)); err != nil {
			die("Failed to finish journal run", err, "")
		}
	}

	gifPath, n := assembleGIF()
	fmt.Printf("target %d: predicted %d with loss %.4f (started at %d, %.4f)\n",
		o.Num, res.Final.Predicted, res.Final.Loss, initial.Predicted, initial.Loss)
	if n > 0 {
		fmt.Printf("%d frames in %s, animation %s\n", len(res.Frames), cfg.Frames.Dir, gifPath)
	}
}

// obtainModel loads or trains the classifier, dying with a remediation hint
// when the persisted model is unusable.
func obtainModel(retrain bool) *neuralnet.Model {
	t := trainer.New(cfg, logger)
	t.Progress = os.Stderr
	model, err := t.LoadOrTrain(retrain)
	if errors.Is(err, neuralnet.ErrCorruptModel) {
		die("Persisted model is unusable", err, fmt.Sprintf("delete %s and rerun", cfg.Model.Path))
	}
	if err != nil {
		die("Failed to obtain a model", err, "")
	}
	return model
}

// assembleGIF writes the configured GIF from the frames on disk and returns
// its path and frame count. No frames is reported, not fatal.
func assembleGIF() (string, int) {
	a := frames.NewAssembler(cfg.Frames.Dir)
	a.Delay = cfg.Frames.Delay
	a.Logger = logger
	anim, err := a.Assemble(cfg.Frames.MaxFrames, cfg.Frames.Every)
	if errors.Is(err, frames.ErrNoFrames) {
		logger.Warn("dreamnet: no frames to assemble", "dir", cfg.Frames.Dir)
		return cfg.Frames.GIF, 0
	}
	if err != nil {
		die("Failed to assemble frames", err, "")
	}
	if err := frames.WriteGIF(cfg.Frames.GIF, anim); err != nil {
		die("Failed to write animation", err, "")
	}
	logger.Info("dreamnet: wrote animation", "path", cfg.Frames.GIF, "frames", len(anim.Image))
	return cfg.Frames.GIF, len(anim.Image)
}

func journalStep(r synth.Report) journal.Step {
	s := journal.Step{
		Iteration:   r.Iteration,
		Loss:        r.Loss,
		Predicted:   r.Predicted,
		ModelRate:   r.ModelRate,
		Predictions: r.Predictions,
	}
	if r.Frame != nil {
		s.FramePath = r.Frame.Path
	}
	return s
}
