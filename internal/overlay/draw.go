// Package overlay draws the landmark skeleton onto decoded frames and
// re-encodes the annotated sequence. Drawing is anti-aliased via
// golang.org/x/image/vector; joints whose positions were interpolated are
// painted in a distinct color, and edges touching a genuine gap are
// skipped.
package overlay

import (
	"image"
	"image/color"
	"math"

	"golang.org/x/image/vector"

	"github.com/formsight/formsight-server/internal/media"
	"github.com/formsight/formsight-server/internal/pose"
	"github.com/formsight/formsight-server/internal/track"
)

// Style controls skeleton appearance. Widths and radii are in pixels.
type Style struct {
	EdgeWidth   float64
	JointRadius float64
	BoneColor   color.RGBA
	JointColor  color.RGBA
	// InterpColor marks joints whose position was filled in, so a viewer
	// can tell reconstruction from detection.
	InterpColor color.RGBA
}

// DefaultStyle is tuned for 720p-ish footage.
func DefaultStyle() Style {
	return Style{
		EdgeWidth:   3,
		JointRadius: 4.5,
		BoneColor:   color.RGBA{R: 60, G: 200, B: 120, A: 255},
		JointColor:  color.RGBA{R: 220, G: 60, B: 70, A: 255},
		InterpColor: color.RGBA{R: 255, G: 180, B: 40, A: 255},
	}
}

// Painter draws skeletons onto RGBA frames, reusing one rasterizer. Not
// safe for concurrent use; the render pool gives each worker its own.
type Painter struct {
	style Style
	ras   *vector.Rasterizer
}

func NewPainter(style Style) *Painter {
	return &Painter{style: style}
}

// Paint draws the track's entry for frame idx onto the frame in place.
// Landmarks in a gap at this frame are left undrawn.
func (p *Painter) Paint(f *media.Frame, tr *track.Track, idx int) {
	img := &image.RGBA{
		Pix:    f.Pix,
		Stride: f.Width * 4,
		Rect:   image.Rect(0, 0, f.Width, f.Height),
	}
	if p.ras == nil {
		p.ras = vector.NewRasterizer(f.Width, f.Height)
	}

	w, h := float64(f.Width), float64(f.Height)

	p.ras.Reset(f.Width, f.Height)
	bones := 0
	for _, e := range pose.Topology {
		if !tr.Valid(e.A, idx) || !tr.Valid(e.B, idx) {
			continue
		}
		a := tr.Landmark(e.A)[idx]
		b := tr.Landmark(e.B)[idx]
		strokeSegment(p.ras, a.X*w, a.Y*h, b.X*w, b.Y*h, p.style.EdgeWidth)
		bones++
	}
	if bones > 0 {
		p.ras.Draw(img, img.Rect, image.NewUniform(p.style.BoneColor), image.Point{})
	}

	p.paintJoints(img, tr, idx, track.Observed, p.style.JointColor)
	p.paintJoints(img, tr, idx, track.Interpolated, p.style.InterpColor)
}

func (p *Painter) paintJoints(img *image.RGBA, tr *track.Track, idx int, prov track.Provenance, c color.RGBA) {
	w, h := float64(img.Rect.Dx()), float64(img.Rect.Dy())

	p.ras.Reset(img.Rect.Dx(), img.Rect.Dy())
	joints := 0
	for _, name := range pose.Names {
		samples := tr.Landmark(name)
		if idx >= len(samples) || samples[idx].Prov != prov {
			continue
		}
		fillCircle(p.ras, samples[idx].X*w, samples[idx].Y*h, p.style.JointRadius)
		joints++
	}
	if joints > 0 {
		p.ras.Draw(img, img.Rect, image.NewUniform(c), image.Point{})
	}
}

// strokeSegment adds a filled quad covering the segment with the given
// stroke width.
func strokeSegment(z *vector.Rasterizer, x0, y0, x1, y1, width float64) {
	dx, dy := x1-x0, y1-y0
	length := math.Hypot(dx, dy)
	if length < 1e-3 {
		return
	}
	px := -dy / length * width / 2
	py := dx / length * width / 2
	z.MoveTo(float32(x0+px), float32(y0+py))
	z.LineTo(float32(x1+px), float32(y1+py))
	z.LineTo(float32(x1-px), float32(y1-py))
	z.LineTo(float32(x0-px), float32(y0-py))
	z.ClosePath()
}

// fillCircle adds a circle as four cubic Bézier arcs.
func fillCircle(z *vector.Rasterizer, cx, cy, r float64) {
	const k = 0.5522847498 // 4/3 * tan(pi/8)
	x, y, kr := float32(cx), float32(cy), float32(k*r)
	rr := float32(r)
	z.MoveTo(x+rr, y)
	z.CubeTo(x+rr, y+kr, x+kr, y+rr, x, y+rr)
	z.CubeTo(x-kr, y+rr, x-rr, y+kr, x-rr, y)
	z.CubeTo(x-rr, y-kr, x-kr, y-rr, x, y-rr)
	z.CubeTo(x+kr, y-rr, x+rr, y-kr, x+rr, y)
	z.ClosePath()
}
