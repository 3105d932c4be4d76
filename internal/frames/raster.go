// Package frames turns synthetic images into PNG snapshots and folds the
// snapshots into a looping GIF.
package frames

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"strings"

	"golang.org/x/image/draw"
)

// Intensity maps a pixel to 8 bits as round(255*p). The image is never
// clamped during optimisation, so values outside [0,1] saturate to 0 or 255
// here instead of wrapping. NaN maps to 0.
func Intensity(p float64) uint8 {
	v := math.Round(255 * p)
	switch {
	case math.IsNaN(v), v <= 0:
		return 0
	case v >= 255:
		return 255
	}
	return uint8(v)
}

// Rasterize lays pixels out row-major on a width x height grid and scales
// the result up by an integer factor with nearest-neighbour sampling.
func Rasterize(pixels []float64, width, height, scale int) (*image.Gray, error) {
	if width*height != len(pixels) {
		return nil, fmt.Errorf("%d pixels do not fill %dx%d", len(pixels), width, height)
	}
	img := image.NewGray(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetGray(x, y, color.Gray{Y: Intensity(pixels[y*width+x])})
		}
	}
	if scale <= 1 {
		return img, nil
	}
	big := image.NewGray(image.Rect(0, 0, width*scale, height*scale))
	draw.NearestNeighbor.Scale(big, big.Bounds(), img, img.Bounds(), draw.Src, nil)
	return big, nil
}

// Preview renders the image as text, marking pixels above threshold.
func Preview(pixels []float64, width int, threshold float64) string {
	var sb strings.Builder
	for i, p := range pixels {
		if p > threshold {
			sb.WriteString("1 ")
		} else {
			sb.WriteString("  ")
		}
		if (i+1)%width == 0 {
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}
