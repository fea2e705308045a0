package imaging

import (
	"image"

	"github.com/anthonynsimon/bild/segment"
	"github.com/disintegration/imaging"

	"github.com/ironsheep/sheet-scale-mcp/internal/runs"
)

// DefaultLevel is the gray level separating foreground from background.
const DefaultLevel uint8 = 140

// Binarize converts a page to black and white.
//
// Pixels whose luminance is below level become black (0), all others white
// (255). Fully transparent pixels count as white.
func Binarize(img image.Image, level uint8) *image.Gray {
	bounds := img.Bounds()

	// Flatten onto white so that transparent margins are background.
	flat := imaging.New(bounds.Dx(), bounds.Dy(), image.White)
	flat = imaging.Overlay(flat, img, image.Pt(0, 0), 1.0)

	gray := imaging.Grayscale(flat)
	return segment.Threshold(gray, level)
}

// RunTable binarizes a page and returns its vertical run table.
func RunTable(img image.Image, level uint8) *runs.Table {
	return runs.FromGray(Binarize(img, level), 128)
}
