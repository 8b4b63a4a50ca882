package lgssm

import (
	"fmt"

	latent "github.com/milosgajdos/go-latent"
	"github.com/milosgajdos/go-latent/cov"
	"github.com/milosgajdos/go-latent/matrix"
	"gonum.org/v1/gonum/mat"
)

// Expectation runs Kalman filter and Rauch-Tung-Striebel smoother over the model observations
// and returns their log-likelihood. The smoothed statistics are kept for the following Maximization.
// It returns error if no observations have been set or if the filter or smoother fail.
func (m *LGSSM) Expectation() (float64, error) {
	if m.y == nil {
		return 0, fmt.Errorf("%w: no observations", latent.ErrInvalidArgument)
	}

	f, err := m.filter()
	if err != nil {
		return 0, fmt.Errorf("kalman filter failed: %w", err)
	}

	s, err := m.smooth(f)
	if err != nil {
		return 0, fmt.Errorf("rts smoother failed: %w", err)
	}

	m.stats = s
	log.Debugf("expectation: log-likelihood: %g", s.ll)

	return s.ll, nil
}

// Maximization updates model parameters to the maximum likelihood estimates
// given the statistics computed by the last Expectation.
// It returns error if no expectation has been run since the parameters last changed
// or if the updated parameters are degenerate. Parameters are left untouched on error.
func (m *LGSSM) Maximization() error {
	if m.stats == nil {
		return fmt.Errorf("%w: no expectation step has been run", latent.ErrInvalidArgument)
	}

	s := m.stats
	nx, ny := m.p.Dims()
	steps := len(s.xs)

	// sum of E[x[t]*x[t]'] over all, all but last and all but first steps
	sumP := mat.NewDense(nx, nx, nil)
	sumPPrev := mat.NewDense(nx, nx, nil)
	sumPNext := mat.NewDense(nx, nx, nil)
	// sum of E[x[t]*x[t-1]']
	sumCross := mat.NewDense(nx, nx, nil)
	// sum of y[t]*E[x[t]]' and y[t]*y[t]'
	sumYX := mat.NewDense(ny, nx, nil)
	sumYY := mat.NewDense(ny, ny, nil)

	xx := mat.NewDense(nx, nx, nil)
	yx := mat.NewDense(ny, nx, nil)
	yy := mat.NewDense(ny, ny, nil)
	for t := 0; t < steps; t++ {
		pt := &mat.Dense{}
		xx.Outer(1, s.xs[t], s.xs[t])
		pt.Add(s.ps[t], xx)

		sumP.Add(sumP, pt)
		if t < steps-1 {
			sumPPrev.Add(sumPPrev, pt)
		}
		if t > 0 {
			sumPNext.Add(sumPNext, pt)

			xx.Outer(1, s.xs[t], s.xs[t-1])
			sumCross.Add(sumCross, xx)
			sumCross.Add(sumCross, s.cross[t])
		}

		yt := m.y.ColView(t)
		yx.Outer(1, yt, s.xs[t])
		sumYX.Add(sumYX, yx)
		yy.Outer(1, yt, yt)
		sumYY.Add(sumYY, yy)
	}

	// C = sum(y*x') * inv(sum(x*x'))
	inv := &mat.Dense{}
	if err := inv.Inverse(sumP); err != nil {
		return fmt.Errorf("failed to update observation matrix: %w", err)
	}
	c := &mat.Dense{}
	c.Mul(sumYX, inv)

	// R = (sum(y*y') - C*sum(x*y')) / T
	r := &mat.Dense{}
	r.Mul(c, sumYX.T())
	r.Sub(sumYY, r)
	r.Scale(1/float64(steps), r)

	// A = sum(x[t]*x[t-1]') * inv(sum(x[t-1]*x[t-1]'))
	if err := inv.Inverse(sumPPrev); err != nil {
		return fmt.Errorf("failed to update state matrix: %w", err)
	}
	a := &mat.Dense{}
	a.Mul(sumCross, inv)

	// Q = (sum(x[t]*x[t]') - A*sum(x[t-1]*x[t]')) / (T-1)
	q := &mat.Dense{}
	q.Mul(a, sumCross.T())
	q.Sub(sumPNext, q)
	q.Scale(1/float64(steps-1), q)

	p := Params{
		A:   a,
		C:   c,
		Q:   matrix.Symmetrize(q),
		R:   matrix.Symmetrize(r),
		Mu0: mat.VecDenseCopyOf(s.xs[0]),
		P0:  matrix.SymCopyOf(s.ps[0]),
	}

	for _, v := range []struct {
		name string
		m    *mat.SymDense
	}{
		{name: "state noise", m: p.Q},
		{name: "observation noise", m: p.R},
		{name: "initial state", m: p.P0},
	} {
		if _, err := cov.Cholesky(v.m); err != nil {
			return fmt.Errorf("degenerate %s covariance: %w", v.name, err)
		}
	}

	m.p = p
	m.stats = nil

	return nil
}
