package diagnostics

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"

	"github.com/lucasb-eyer/go-colorful"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/ironsheep/sheet-scale-mcp/internal/histogram"
	"github.com/ironsheep/sheet-scale-mcp/internal/scale"
)

// Options control the chart layout.
type Options struct {
	// Width of the whole image, in pixels.
	Width int

	// ChartHeight is the height of each of the two charts.
	ChartHeight int
}

// DefaultOptions returns a layout readable on a laptop screen.
func DefaultOptions() Options {
	return Options{Width: 900, ChartHeight: 320}
}

const (
	marginLeft   = 50
	marginRight  = 20
	marginTop    = 34
	marginBottom = 36
)

var (
	background = color.RGBA{255, 255, 255, 255}
	axisColor  = color.RGBA{90, 90, 90, 255}
	textColor  = color.RGBA{20, 20, 20, 255}
)

// Palette returns n distinct, evenly spaced colors of equal lightness.
func Palette(n int) []color.RGBA {
	out := make([]color.RGBA, n)
	for i := range out {
		c := colorful.Hcl(30+float64(i)*360/float64(n), 0.6, 0.55).Clamped()
		r, g, b := c.RGB255()
		out[i] = color.RGBA{r, g, b, 255}
	}
	return out
}

// Render draws the black and combo charts of a snapshot.
func Render(snap *scale.Snapshot, opts Options) (*image.RGBA, error) {
	if snap == nil || snap.Black == nil {
		return nil, errors.New("snapshot holds no histogram to render")
	}
	if opts.Width < marginLeft+marginRight+50 || opts.ChartHeight < marginTop+marginBottom+50 {
		return nil, fmt.Errorf("chart too small: %dx%d", opts.Width, opts.ChartHeight)
	}

	img := image.NewRGBA(image.Rect(0, 0, opts.Width, 2*opts.ChartHeight))
	draw.Draw(img, img.Bounds(), &image.Uniform{background}, image.Point{}, draw.Src)

	colors := Palette(6)

	blackTitle := fmt.Sprintf("%s black - total:%d", snap.Page, snap.Black.Area)
	if snap.BeamQuorum != nil {
		blackTitle += fmt.Sprintf(" - beam quorum:%d", snap.BeamQuorum.Count)
	}
	black := newChart(img, image.Rect(0, 0, opts.Width, opts.ChartHeight), snap.Black, 0, snap.MaxBlack)
	black.draw(blackTitle, colors, snap.BeamQuorum)

	if snap.Combo != nil {
		comboTitle := fmt.Sprintf("%s combo - total:%d", snap.Page, snap.Combo.Area)
		if snap.Calibration != nil {
			comboTitle += " - " + snap.Calibration.String()
		}
		combo := newChart(img, image.Rect(0, opts.ChartHeight, opts.Width, 2*opts.ChartHeight),
			snap.Combo, 0, snap.MaxCombo())
		combo.draw(comboTitle, colors, nil)
	} else {
		drawText(img, marginLeft, opts.ChartHeight+marginTop, textColor, "combo histogram not built")
	}

	return img, nil
}

// chart maps histogram coordinates onto an area of the image.
type chart struct {
	img  *image.RGBA
	area image.Rectangle // plotting area, inside margins
	view *scale.HistogramView
	xMin int
	xMax int
	yMax float64
	zero int // ordinate of the zero line
}

func newChart(img *image.RGBA, frame image.Rectangle, v *scale.HistogramView, xMin, xMax int) *chart {
	xMax = max(xMax, xMin)
	c := &chart{
		img: img,
		area: image.Rect(frame.Min.X+marginLeft, frame.Min.Y+marginTop,
			frame.Max.X-marginRight, frame.Max.Y-marginBottom),
		view: v,
		xMin: xMin,
		xMax: xMax,
		yMax: 1,
	}
	for x := xMin; x <= xMax; x++ {
		c.yMax = max(c.yMax, float64(v.Value(x)), float64(abs(v.Value(x)-v.Value(x-1))))
	}
	c.zero = c.area.Min.Y + c.area.Dy()*3/4
	return c
}

func (c *chart) bucketWidth() float64 {
	return float64(c.area.Dx()) / float64(c.xMax-c.xMin+1)
}

// left returns the left edge of bucket x.
func (c *chart) left(x int) int {
	return c.area.Min.X + int(float64(x-c.xMin)*c.bucketWidth())
}

// y returns the ordinate of value v, clipped to the plotting area.
func (c *chart) y(v float64) int {
	span := float64(c.zero - c.area.Min.Y)
	y := c.zero - int(v/c.yMax*span)
	return min(max(y, c.area.Min.Y), c.area.Max.Y)
}

func (c *chart) draw(title string, colors []color.RGBA, quorum *histogram.Quorum) {
	drawText(c.img, c.area.Min.X, c.area.Min.Y-14, textColor, title)

	// Peak spans below everything else.
	for i, p := range c.view.Peaks {
		if p.Max < c.xMin || p.Min > c.xMax {
			continue
		}
		pc := colors[3+i%3]
		span := image.Rect(c.left(p.Min), c.area.Min.Y, c.left(p.Max+1), c.area.Max.Y)
		fillRect(c.img, span, color.NRGBA{pc.R, pc.G, pc.B, 60})
		mark := c.left(p.Main) + int(c.bucketWidth()/2)
		fillRect(c.img, image.Rect(mark, c.area.Min.Y, mark+1, c.area.Max.Y), pc)
		drawText(c.img, mark+3, c.area.Min.Y+12+12*(i%3), pc, p.String())
	}

	// Counts
	bw := c.bucketWidth()
	gap := 0
	if bw >= 4 {
		gap = 1
	}
	for x := c.xMin; x <= c.xMax; x++ {
		if v := c.view.Value(x); v > 0 {
			fillRect(c.img, image.Rect(c.left(x)+gap, c.y(float64(v)), c.left(x+1)-gap, c.zero), colors[0])
		}
	}

	// Derivative as steps
	prev := c.y(0)
	for x := c.xMin; x <= c.xMax; x++ {
		d := c.y(float64(c.view.Value(x) - c.view.Value(x-1)))
		lo, hi := min(prev, d), max(prev, d)
		fillRect(c.img, image.Rect(c.left(x), lo, c.left(x)+1, hi+1), colors[1])
		fillRect(c.img, image.Rect(c.left(x), d, c.left(x+1), d+1), colors[1])
		prev = d
	}

	// Derivative threshold
	if md := c.view.MinDerivative; md > 0 {
		for _, v := range []float64{float64(md), float64(-md)} {
			dashed(c.img, c.area.Min.X, c.area.Max.X, c.y(v), colors[2])
		}
	}

	if quorum != nil && quorum.Max >= quorum.Min {
		qy := c.y(float64(quorum.Count))
		fillRect(c.img, image.Rect(c.left(quorum.Min), qy, c.left(quorum.Max+1), qy+2), colors[5])
		drawText(c.img, c.left(quorum.Min), qy-3, colors[5], quorum.String())
	}

	c.drawAxes()
}

func (c *chart) drawAxes() {
	fillRect(c.img, image.Rect(c.area.Min.X, c.zero, c.area.Max.X, c.zero+1), axisColor)
	fillRect(c.img, image.Rect(c.area.Min.X-1, c.area.Min.Y, c.area.Min.X, c.area.Max.Y), axisColor)

	step := tickStep(c.xMax - c.xMin + 1)
	for x := c.xMin - c.xMin%step; x <= c.xMax; x += step {
		if x < c.xMin {
			continue
		}
		tx := c.left(x) + int(c.bucketWidth()/2)
		fillRect(c.img, image.Rect(tx, c.area.Max.Y, tx+1, c.area.Max.Y+4), axisColor)
		drawText(c.img, tx-3, c.area.Max.Y+16, textColor, fmt.Sprint(x))
	}
	drawText(c.img, 4, c.area.Min.Y+10, textColor, fmt.Sprint(int(c.yMax)))
	drawText(c.img, 4, c.zero+4, textColor, "0")
}

// tickStep returns a round step giving at most 20 ticks.
func tickStep(n int) int {
	for _, s := range []int{1, 2, 5, 10, 20, 50, 100, 200, 500} {
		if n/s <= 20 {
			return s
		}
	}
	return 1000
}

func fillRect(img *image.RGBA, r image.Rectangle, c color.Color) {
	draw.Draw(img, r.Intersect(img.Bounds()), &image.Uniform{c}, image.Point{}, draw.Over)
}

func dashed(img *image.RGBA, x0, x1, y int, c color.Color) {
	for x := x0; x < x1; x += 8 {
		fillRect(img, image.Rect(x, y, min(x+4, x1), y+1), c)
	}
}

func drawText(img *image.RGBA, x, y int, c color.Color, s string) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(s)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
