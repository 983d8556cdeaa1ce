// Package plots renders task embeddings, scatters and similarity heat maps to image files.
package plots

import (
	"image"
	"image/color"
	"math"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette/brewer"
	"gonum.org/v1/plot/palette/moreland"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

const (
	figureSize      = 20 * vg.Inch
	imageFigureSize = 30 * vg.Inch
	tickFontSize    = 8
	heatMapColors   = 9
	labelOffset     = 0.02
	// Thumbnails span this fraction of the larger embedding extent.
	thumbnailFraction = 0.04
)

// Scatter writes a scatter plot of ys against xs to path.
func Scatter(xs, ys []float64, path, xlabel, ylabel, title string) error {
	if len(xs) != len(ys) {
		return errors.Errorf("scatter has %d x values and %d y values", len(xs), len(ys))
	}
	p := newPlot(title, xlabel, ylabel)
	xys := make(plotter.XYs, len(xs))
	for i := range xs {
		xys[i] = plotter.XY{X: xs[i], Y: ys[i]}
	}
	s, err := plotter.NewScatter(xys)
	if err != nil {
		return errors.Wrap(err, "building scatter")
	}
	p.Add(s)
	return save(p, figureSize, figureSize, path)
}

// EmbeddingWithLabels writes a two dimensional embedding with a text label beside every point.
// Points are coloured by their position in labels.
func EmbeddingWithLabels(points mat.Matrix, labels []string, title, path, xlabel, ylabel string) error {
	xys, err := toXYs(points)
	if err != nil {
		return err
	}
	if len(xys) != len(labels) {
		return errors.Errorf("embedding has %d points and %d labels", len(xys), len(labels))
	}

	p := newPlot(title, xlabel, ylabel)
	s, err := plotter.NewScatter(xys)
	if err != nil {
		return errors.Wrap(err, "building scatter")
	}
	colors := orderColors(len(labels))
	s.GlyphStyleFunc = func(i int) draw.GlyphStyle {
		style := s.GlyphStyle
		style.Color = colors[i]
		return style
	}

	offset := make(plotter.XYs, len(xys))
	for i, xy := range xys {
		offset[i] = plotter.XY{X: xy.X + labelOffset, Y: xy.Y + labelOffset}
	}
	l, err := plotter.NewLabels(plotter.XYLabels{XYs: offset, Labels: labels})
	if err != nil {
		return errors.Wrap(err, "building labels")
	}
	for i := range l.TextStyle {
		l.TextStyle[i].Font.Size = vg.Points(tickFontSize)
	}

	p.Add(s, l)
	return save(p, figureSize, figureSize, path)
}

// EmbeddingWithImages writes a two dimensional embedding with every point drawn as its image.
func EmbeddingWithImages(points mat.Matrix, images []image.Image, title, path string) error {
	xys, err := toXYs(points)
	if err != nil {
		return err
	}
	if len(xys) != len(images) {
		return errors.Errorf("embedding has %d points and %d images", len(xys), len(images))
	}

	xs, ys := make([]float64, len(xys)), make([]float64, len(xys))
	for i, xy := range xys {
		xs[i], ys[i] = xy.X, xy.Y
	}
	extent := math.Max(floats.Max(xs)-floats.Min(xs), floats.Max(ys)-floats.Min(ys))
	half := thumbnailFraction * extent / 2
	if half == 0 {
		half = 0.5
	}

	p := newPlot(title, "", "")
	for i, img := range images {
		p.Add(plotter.NewImage(img, xs[i]-half, ys[i]-half, xs[i]+half, ys[i]+half))
	}
	return save(p, imageFigureSize, imageFigureSize, path)
}

// HeatMap writes a square matrix as a heat map with the class names as tick labels. Row zero is
// drawn at the top.
func HeatMap(m mat.Matrix, classes []string, title, path string) error {
	r, c := m.Dims()
	if r != c {
		return errors.Errorf("heat map matrix is %dx%d, expected a square matrix", r, c)
	}
	if len(classes) != r {
		return errors.Errorf("heat map has %d rows and %d class names", r, len(classes))
	}

	pal, err := brewer.GetPalette(brewer.TypeSequential, "Blues", heatMapColors)
	if err != nil {
		return errors.Wrap(err, "loading palette")
	}
	h := plotter.NewHeatMap(grid{m: m}, pal)
	if h.Min == h.Max {
		h.Max = h.Min + 1
	}

	p := newPlot(title, "", "")
	p.Add(h)

	xticks := make([]plot.Tick, len(classes))
	yticks := make([]plot.Tick, len(classes))
	for i, name := range classes {
		xticks[i] = plot.Tick{Value: float64(i), Label: name}
		yticks[i] = plot.Tick{Value: float64(r - 1 - i), Label: name}
	}
	p.X.Tick.Marker = plot.ConstantTicks(xticks)
	p.Y.Tick.Marker = plot.ConstantTicks(yticks)
	p.X.Tick.Label.Rotation = math.Pi / 2
	p.X.Tick.Label.XAlign = draw.XRight
	p.X.Tick.Label.Font.Size = vg.Points(tickFontSize)
	p.Y.Tick.Label.Font.Size = vg.Points(tickFontSize)
	return save(p, figureSize, figureSize, path)
}

// grid adapts a matrix to plotter.GridXYZ with the first row at the top.
type grid struct {
	m mat.Matrix
}

func (g grid) Dims() (c, r int) {
	r, c = g.m.Dims()
	return c, r
}

func (g grid) Z(c, r int) float64 {
	rows, _ := g.m.Dims()
	return g.m.At(rows-1-r, c)
}

func (g grid) X(c int) float64 { return float64(c) }

func (g grid) Y(r int) float64 { return float64(r) }

func newPlot(title, xlabel, ylabel string) *plot.Plot {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = xlabel
	p.Y.Label.Text = ylabel
	return p
}

func save(p *plot.Plot, w, h vg.Length, path string) error {
	log.WithField("path", path).Debug("saving plot")
	if err := p.Save(w, h, path); err != nil {
		return errors.Wrapf(err, "saving plot to %s", path)
	}
	return nil
}

func toXYs(points mat.Matrix) (plotter.XYs, error) {
	if points == nil {
		return nil, errors.New("no points to plot")
	}
	r, c := points.Dims()
	if r == 0 {
		return nil, errors.New("no points to plot")
	}
	if c != 2 {
		return nil, errors.Errorf("embedding has %d columns, expected 2", c)
	}
	xys := make(plotter.XYs, r)
	for i := 0; i < r; i++ {
		xys[i] = plotter.XY{X: points.At(i, 0), Y: points.At(i, 1)}
	}
	return xys, nil
}

// orderColors maps index i of n to a perceptually ordered colour.
func orderColors(n int) []color.Color {
	cm := moreland.Kindlmann()
	cm.SetMin(0)
	cm.SetMax(float64(n))
	out := make([]color.Color, n)
	for i := range out {
		c, err := cm.At(float64(i))
		if err != nil {
			c = color.Black
		}
		out[i] = c
	}
	return out
}
