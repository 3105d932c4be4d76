package frames

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/gif"
	"image/png"
	"log/slog"
	"os"
	"path/filepath"

	"golang.org/x/image/draw"
)

var ErrNoFrames = errors.New("frames: no frames to assemble")

// DefaultDelay is the per-frame delay in 100ths of a second.
const DefaultDelay = 10

var grayPalette = func() color.Palette {
	p := make(color.Palette, 256)
	for i := range p {
		p[i] = color.Gray{Y: uint8(i)}
	}
	return p
}()

// Assembler reads recorded frames back from Dir.
type Assembler struct {
	Dir    string
	Delay  int
	Logger *slog.Logger
}

func NewAssembler(dir string) *Assembler {
	return &Assembler{Dir: dir, Delay: DefaultDelay, Logger: slog.Default()}
}

// Assemble reads up to count frames at iterations 0, cadence, 2*cadence, ...
// It stops at the first frame that is missing or unreadable, so the
// animation may be shorter than count. Every frame is converted to the gray
// palette at the size of the first one. The GIF loops forever.
func (a *Assembler) Assemble(count, cadence int) (*gif.GIF, error) {
	if cadence <= 0 {
		return nil, fmt.Errorf("cadence must be positive, got %d", cadence)
	}
	anim := &gif.GIF{LoopCount: 0}
	var bounds image.Rectangle

	for k := 0; k < count; k++ {
		path := FramePath(a.Dir, k*cadence)
		img, err := readPNG(path)
		if err != nil {
			if a.Logger != nil {
				a.Logger.Warn("frames: stopping assembly", "path", path, "frames", len(anim.Image), "error", err)
			}
			break
		}
		if len(anim.Image) == 0 {
			bounds = image.Rect(0, 0, img.Bounds().Dx(), img.Bounds().Dy())
		}
		anim.Image = append(anim.Image, toPaletted(img, bounds))
		anim.Delay = append(anim.Delay, a.Delay)
	}

	if len(anim.Image) == 0 {
		return nil, ErrNoFrames
	}
	return anim, nil
}

func readPNG(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return png.Decode(f)
}

func toPaletted(img image.Image, bounds image.Rectangle) *image.Paletted {
	out := image.NewPaletted(bounds, grayPalette)
	src := img.Bounds()
	if src.Dx() == bounds.Dx() && src.Dy() == bounds.Dy() {
		draw.Draw(out, bounds, img, src.Min, draw.Src)
	} else {
		draw.NearestNeighbor.Scale(out, bounds, img, src, draw.Src, nil)
	}
	return out
}

// WriteGIF encodes anim to path, creating parent directories.
func WriteGIF(path string, anim *gif.GIF) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("couldn't create gif: %w", err)
	}
	if err := gif.EncodeAll(f, anim); err != nil {
		f.Close()
		return fmt.Errorf("encode gif: %w", err)
	}
	return f.Close()
}
