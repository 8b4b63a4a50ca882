package chart

import (
	"fmt"
	"image/color"

	latent "github.com/milosgajdos/go-latent"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

// New creates a time series plot of chain and its estimate.
// Both matrices store a single time step per column.
// Every chain dimension is drawn as a line and every estimate dimension as a scatter.
// It returns error if the plot fails to be created. This can be due to either of the following conditions:
// * either of the supplied data matrices is nil
// * the supplied data matrices have different dimensions
// * gonum plot fails to be created
func New(chain, estimate *mat.Dense) (*plot.Plot, error) {
	if chain == nil || estimate == nil {
		return nil, fmt.Errorf("%w: nil data", latent.ErrInvalidArgument)
	}

	rc, cc := chain.Dims()
	re, ce := estimate.Dims()
	if rc != re || cc != ce {
		return nil, fmt.Errorf("%w: chain: [%d x %d], estimate: [%d x %d]", latent.ErrDimensionMismatch, rc, cc, re, ce)
	}

	p := plot.New()

	p.Title.Text = "Chain"
	p.X.Label.Text = "step"
	p.Y.Label.Text = "value"

	p.Legend.Top = true

	for i := 0; i < rc; i++ {
		line, err := plotter.NewLine(makePoints(chain, i))
		if err != nil {
			return nil, fmt.Errorf("failed to create line: %w", err)
		}
		line.LineStyle.Color = plotutil.Color(i)
		line.LineStyle.Width = vg.Points(1)

		p.Add(line)
		p.Legend.Add(fmt.Sprintf("chain[%d]", i), line)

		scatter, err := plotter.NewScatter(makePoints(estimate, i))
		if err != nil {
			return nil, fmt.Errorf("failed to create scatter: %w", err)
		}
		scatter.GlyphStyle.Color = color.RGBA{R: 169, G: 169, B: 169, A: 255}
		scatter.Shape = draw.CrossGlyph{}
		scatter.GlyphStyle.Radius = vg.Points(2)

		p.Add(scatter)
		p.Legend.Add(fmt.Sprintf("estimate[%d]", i), scatter)
	}

	return p, nil
}

// makePoints returns row of m indexed by time step
func makePoints(m *mat.Dense, row int) plotter.XYs {
	_, c := m.Dims()
	pts := make(plotter.XYs, c)
	for t := 0; t < c; t++ {
		pts[t].X = float64(t)
		pts[t].Y = m.At(row, t)
	}

	return pts
}
