package hmm

import (
	"fmt"
	"math"

	latent "github.com/milosgajdos/go-latent"
	"github.com/milosgajdos/go-latent/matrix"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// stats stores statistics computed by forward-backward algorithm
type stats struct {
	// gamma[k][t] is posterior probability of state k at step t
	gamma *mat.Dense
	// xi[i][j] is expected number of transitions from state i to j
	xi *mat.Dense
	// ll is observations log-likelihood
	ll float64
}

// Expectation runs scaled forward-backward algorithm over the model observations
// and returns their log-likelihood. The state posteriors are kept for the following Maximization.
// It returns error if no observations have been set or if the observations are impossible under the model.
func (h *HMM) Expectation() (float64, error) {
	if h.y == nil {
		return 0, fmt.Errorf("%w: no observations", latent.ErrInvalidArgument)
	}

	lb, err := h.logEmissions()
	if err != nil {
		return 0, err
	}

	k, steps := lb.Dims()

	// rescale emission densities at every step by their maximum to avoid underflow
	b := mat.NewDense(k, steps, nil)
	shift := make([]float64, steps)
	col := make([]float64, k)
	for t := 0; t < steps; t++ {
		mat.Col(col, t, lb)
		shift[t] = floats.Max(col)
		for s := 0; s < k; s++ {
			b.Set(s, t, math.Exp(col[s]-shift[t]))
		}
	}

	// forward probabilities normalized to sum up to 1 at every step
	alpha := mat.NewDense(k, steps, nil)
	scale := make([]float64, steps)
	ll := 0.0
	for t := 0; t < steps; t++ {
		for s := 0; s < k; s++ {
			p := 0.0
			if t == 0 {
				p = h.p.Init[s]
			} else {
				for r := 0; r < k; r++ {
					p += alpha.At(r, t-1) * h.p.Trans.At(r, s)
				}
			}
			alpha.Set(s, t, p*b.At(s, t))
		}

		scale[t] = mat.Sum(alpha.ColView(t))
		if !(scale[t] > 0) {
			return 0, fmt.Errorf("%w: observation %d has zero probability", latent.ErrInvalidArgument, t)
		}
		for s := 0; s < k; s++ {
			alpha.Set(s, t, alpha.At(s, t)/scale[t])
		}

		ll += math.Log(scale[t]) + shift[t]
	}

	// backward probabilities scaled by the forward scales
	beta := mat.NewDense(k, steps, nil)
	for s := 0; s < k; s++ {
		beta.Set(s, steps-1, 1)
	}
	for t := steps - 2; t >= 0; t-- {
		for s := 0; s < k; s++ {
			p := 0.0
			for r := 0; r < k; r++ {
				p += h.p.Trans.At(s, r) * b.At(r, t+1) * beta.At(r, t+1)
			}
			beta.Set(s, t, p/scale[t+1])
		}
	}

	gamma := &mat.Dense{}
	gamma.MulElem(alpha, beta)
	norm := matrix.ColSums(gamma)
	for t := 0; t < steps; t++ {
		for s := 0; s < k; s++ {
			gamma.Set(s, t, gamma.At(s, t)/norm[t])
		}
	}

	xi := mat.NewDense(k, k, nil)
	for t := 0; t < steps-1; t++ {
		for i := 0; i < k; i++ {
			for j := 0; j < k; j++ {
				v := alpha.At(i, t) * h.p.Trans.At(i, j) * b.At(j, t+1) * beta.At(j, t+1) / scale[t+1]
				xi.Set(i, j, xi.At(i, j)+v)
			}
		}
	}

	h.stats = &stats{
		gamma: gamma,
		xi:    xi,
		ll:    ll,
	}
	log.Debugf("expectation: log-likelihood: %g", ll)

	return ll, nil
}

// Maximization updates model parameters to the Baum-Welch estimates
// given the statistics computed by the last Expectation.
// Parameters of states and transitions which were never visited are left unchanged.
// It returns error if no expectation has been run since the parameters last changed
// or if any of the updated emissions is degenerate. Parameters are left untouched on error.
func (h *HMM) Maximization() error {
	if h.stats == nil {
		return fmt.Errorf("%w: no expectation step has been run", latent.ErrInvalidArgument)
	}

	k, d := h.p.Dims()
	_, steps := h.y.Dims()
	s := h.stats

	p := h.p.Clone()

	// initial distribution
	mat.Col(p.Init, 0, s.gamma)

	// transitions
	rowSums := matrix.RowSums(s.xi)
	for i := 0; i < k; i++ {
		if rowSums[i] <= 0 {
			continue
		}
		for j := 0; j < k; j++ {
			p.Trans.Set(i, j, s.xi.At(i, j)/rowSums[i])
		}
	}

	// emissions
	occupancy := matrix.RowSums(s.gamma)
	for i := 0; i < k; i++ {
		if occupancy[i] <= 0 {
			log.Warningf("state %d is never visited: keeping its emission", i)
			continue
		}

		w := s.gamma.RawRowView(i)

		mean := mat.NewVecDense(d, nil)
		mean.MulVec(h.y, mat.NewVecDense(steps, w))
		mean.ScaleVec(1/occupancy[i], mean)

		cov := mat.NewSymDense(d, nil)
		diff := mat.NewVecDense(d, nil)
		for t := 0; t < steps; t++ {
			diff.SubVec(h.y.ColView(t), mean)
			cov.SymRankOne(cov, w[t], diff)
		}
		cov.ScaleSym(1/occupancy[i], cov)
		for j := 0; j < d; j++ {
			cov.SetSym(j, j, cov.At(j, j)+covReg)
		}

		p.Means[i] = mean
		p.Covs[i] = cov
	}

	e, err := p.emissions(h.src)
	if err != nil {
		return fmt.Errorf("degenerate emissions: %w", err)
	}

	h.p = p
	h.e = e
	h.stats = nil

	return nil
}
