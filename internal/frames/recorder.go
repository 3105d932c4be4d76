package frames

import (
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"os"
	"path/filepath"
)

// Frame is one recorded snapshot.
type Frame struct {
	Iteration int
	Path      string
	Image     *image.Gray
}

// FramePath is where the frame for iteration lives under dir.
func FramePath(dir string, iteration int) string {
	return filepath.Join(dir, fmt.Sprintf("%d.png", iteration))
}

// Recorder writes a PNG every Every iterations.
type Recorder struct {
	Dir           string
	Every         int
	Width, Height int
	Scale         int
	Logger        *slog.Logger
}

func NewRecorder(dir string, every, width, height int) *Recorder {
	return &Recorder{
		Dir:    dir,
		Every:  every,
		Width:  width,
		Height: height,
		Scale:  1,
		Logger: slog.Default(),
	}
}

// MaybeRecord writes the frame when iteration is on the cadence and returns
// nil otherwise. Write failures are returned; frames are required output.
func (r *Recorder) MaybeRecord(pixels []float64, iteration int) (*Frame, error) {
	if r.Every <= 0 || iteration%r.Every != 0 {
		return nil, nil
	}
	img, err := Rasterize(pixels, r.Width, r.Height, r.Scale)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(r.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create frame dir: %w", err)
	}

	path := FramePath(r.Dir, iteration)
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to encode PNG %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to close %s: %w", path, err)
	}

	if r.Logger != nil {
		r.Logger.Debug("frames: recorded", "iteration", iteration, "path", path)
	}
	return &Frame{Iteration: iteration, Path: path, Image: img}, nil
}
