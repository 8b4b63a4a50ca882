package lgssm

import (
	"fmt"

	"github.com/milosgajdos/go-latent/gauss"
	"github.com/milosgajdos/go-latent/matrix"
	mx "github.com/milosgajdos/matrix"
	"gonum.org/v1/gonum/mat"
)

// filtered stores Kalman filter estimates
type filtered struct {
	// xp and pp are predicted state and covariance
	xp []*mat.VecDense
	pp []*mat.SymDense
	// xf and pf are filtered state and covariance
	xf []*mat.VecDense
	pf []*mat.SymDense
	// ll is observations log-likelihood
	ll float64
}

// stats stores smoothed state estimates
type stats struct {
	// xs and ps are smoothed state and covariance
	xs []*mat.VecDense
	ps []*mat.SymDense
	// cross[t] is the smoothed covariance of x[t] and x[t-1]; cross[0] is nil
	cross []*mat.Dense
	// ll is observations log-likelihood
	ll float64
}

// filter runs Kalman filter over the model observations.
// It returns error if any of the innovation covariances is not positive definite.
func (m *LGSSM) filter() (*filtered, error) {
	nx, ny := m.p.Dims()
	_, steps := m.y.Dims()

	f := &filtered{
		xp: make([]*mat.VecDense, steps),
		pp: make([]*mat.SymDense, steps),
		xf: make([]*mat.VecDense, steps),
		pf: make([]*mat.SymDense, steps),
	}

	eye, err := mx.NewDenseValIdentity(nx, 1.0)
	if err != nil {
		return nil, err
	}
	zero := make([]float64, ny)

	for t := 0; t < steps; t++ {
		// predict
		xp := mat.NewVecDense(nx, nil)
		var pp *mat.SymDense
		if t == 0 {
			xp.CopyVec(m.p.Mu0)
			pp = matrix.SymCopyOf(m.p.P0)
		} else {
			xp.MulVec(m.p.A, f.xf[t-1])

			cov := &mat.Dense{}
			cov.Mul(m.p.A, f.pf[t-1])
			cov.Mul(cov, m.p.A.T())
			cov.Add(cov, m.p.Q)
			pp = matrix.Symmetrize(cov)
		}

		// innovation vector
		yp := &mat.VecDense{}
		yp.MulVec(m.p.C, xp)
		inn := &mat.VecDense{}
		inn.SubVec(m.y.ColView(t), yp)

		// P*C'
		pxy := &mat.Dense{}
		pxy.Mul(pp, m.p.C.T())
		// C*P*C' + R
		pyy := &mat.Dense{}
		pyy.Mul(m.p.C, pxy)
		pyy.Add(pyy, m.p.R)
		s := matrix.Symmetrize(pyy)

		// innovation is distributed as N(0, C*P*C' + R)
		innDist, err := gauss.NewFull(zero, s, false, nil)
		if err != nil {
			return nil, fmt.Errorf("invalid innovation covariance at step %d: %w", t, err)
		}
		lp, err := innDist.LogPDF(inn)
		if err != nil {
			return nil, err
		}
		f.ll += lp[0]

		// calculate Kalman gain
		sInv := &mat.Dense{}
		if err := sInv.Inverse(s); err != nil {
			return nil, fmt.Errorf("failed to invert innovation covariance at step %d: %w", t, err)
		}
		gain := &mat.Dense{}
		gain.Mul(pxy, sInv)

		// correct state
		corr := &mat.VecDense{}
		corr.MulVec(gain, inn)
		xf := &mat.VecDense{}
		xf.AddVec(xp, corr)

		// Joseph form update
		a := &mat.Dense{}
		// K*C
		a.Mul(gain, m.p.C)
		// eye - K*C
		a.Sub(eye, a)

		apa := &mat.Dense{}
		apa.Mul(a, pp)
		apa.Mul(apa, a.T())

		// K*R*K'
		kr := &mat.Dense{}
		kr.Mul(gain, m.p.R)
		krk := &mat.Dense{}
		krk.Mul(kr, gain.T())
		apa.Add(apa, krk)

		f.xp[t], f.pp[t] = xp, pp
		f.xf[t], f.pf[t] = xf, matrix.Symmetrize(apa)
	}

	return f, nil
}

// smooth runs Rauch-Tung-Striebel smoother over the filter estimates f.
// It returns error if any of the predicted covariances can't be inverted.
func (m *LGSSM) smooth(f *filtered) (*stats, error) {
	steps := len(f.xf)

	s := &stats{
		xs:    make([]*mat.VecDense, steps),
		ps:    make([]*mat.SymDense, steps),
		cross: make([]*mat.Dense, steps),
		ll:    f.ll,
	}

	s.xs[steps-1] = mat.VecDenseCopyOf(f.xf[steps-1])
	s.ps[steps-1] = matrix.SymCopyOf(f.pf[steps-1])

	for t := steps - 2; t >= 0; t-- {
		// P_(t+1)^-1 inverse
		pinv := &mat.Dense{}
		if err := pinv.Inverse(f.pp[t+1]); err != nil {
			return nil, fmt.Errorf("failed to invert predicted covariance at step %d: %w", t+1, err)
		}

		// smoothing matrix: Pt*A'*P_(t+1)^-1
		j := &mat.Dense{}
		j.Mul(f.pf[t], m.p.A.T())
		j.Mul(j, pinv)

		// smooth the state
		diff := &mat.VecDense{}
		diff.SubVec(s.xs[t+1], f.xp[t+1])
		x := &mat.VecDense{}
		x.MulVec(j, diff)
		x.AddVec(f.xf[t], x)

		// smooth covariance
		cov := &mat.Dense{}
		cov.Sub(s.ps[t+1], f.pp[t+1])
		pk := &mat.Dense{}
		pk.Mul(j, cov)
		pk.Mul(pk, j.T())
		pk.Add(f.pf[t], pk)

		// lag-one covariance: Cov(x[t+1], x[t]) = Ps_(t+1)*J'
		cross := &mat.Dense{}
		cross.Mul(s.ps[t+1], j.T())

		s.xs[t] = x
		s.ps[t] = matrix.Symmetrize(pk)
		s.cross[t+1] = cross
	}

	return s, nil
}
