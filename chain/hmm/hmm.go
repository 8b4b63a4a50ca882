package hmm

import (
	"fmt"
	"math"

	latent "github.com/milosgajdos/go-latent"
	"github.com/milosgajdos/go-latent/gauss"
	"github.com/milosgajdos/go-latent/matrix"
	"github.com/milosgajdos/go-latent/rand"
	logging "github.com/op/go-logging"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

var log = logging.MustGetLogger("hmm")

const (
	// probTol is tolerance of probability vectors summing up to 1
	probTol = 1e-9
	// covReg is added to the diagonal of estimated emission covariances
	covReg = 1e-6
)

// Params are parameters of Hidden Markov Model with Gaussian emissions
type Params struct {
	// Init is initial state distribution
	Init []float64
	// Trans is state transition matrix: Trans[i][j] is probability of moving from state i to j
	Trans *mat.Dense
	// Means are emission means
	Means []*mat.VecDense
	// Covs are emission covariances
	Covs []*mat.SymDense
}

// Dims returns the number of hidden states and the emission dimension
func (p Params) Dims() (k, d int) {
	k = len(p.Init)
	if len(p.Means) > 0 && p.Means[0] != nil {
		d = p.Means[0].Len()
	}

	return k, d
}

// Clone returns a deep copy of p. Nil parameters stay nil.
func (p Params) Clone() Params {
	pi := make([]float64, len(p.Init))
	copy(pi, p.Init)

	var trans *mat.Dense
	if p.Trans != nil {
		trans = mat.DenseCopyOf(p.Trans)
	}

	means := make([]*mat.VecDense, len(p.Means))
	for i := range p.Means {
		if p.Means[i] != nil {
			means[i] = mat.VecDenseCopyOf(p.Means[i])
		}
	}

	covs := make([]*mat.SymDense, len(p.Covs))
	for i := range p.Covs {
		covs[i] = matrix.SymCopyOf(p.Covs[i])
	}

	return Params{
		Init:  pi,
		Trans: trans,
		Means: means,
		Covs:  covs,
	}
}

func checkProb(p []float64) error {
	for _, v := range p {
		if v < 0 || math.IsNaN(v) {
			return fmt.Errorf("%w: negative probability: %v", latent.ErrInvalidArgument, p)
		}
	}

	if math.Abs(floats.Sum(p)-1) > probTol {
		return fmt.Errorf("%w: probabilities don't sum up to 1: %v", latent.ErrInvalidArgument, p)
	}

	return nil
}

func (p Params) validate() error {
	k := len(p.Init)
	if k == 0 {
		return fmt.Errorf("%w: no hidden states", latent.ErrInvalidArgument)
	}

	if err := checkProb(p.Init); err != nil {
		return fmt.Errorf("invalid initial distribution: %w", err)
	}

	if p.Trans == nil {
		return fmt.Errorf("%w: nil transition matrix", latent.ErrInvalidArgument)
	}

	if r, c := p.Trans.Dims(); r != k || c != k {
		return fmt.Errorf("%w: transition matrix: [%d x %d], states: %d", latent.ErrDimensionMismatch, r, c, k)
	}

	for i := 0; i < k; i++ {
		if err := checkProb(p.Trans.RawRowView(i)); err != nil {
			return fmt.Errorf("invalid transition matrix row %d: %w", i, err)
		}
	}

	if len(p.Means) != k || len(p.Covs) != k {
		return fmt.Errorf("%w: emissions: %d means, %d covariances, states: %d", latent.ErrDimensionMismatch, len(p.Means), len(p.Covs), k)
	}

	for i := 0; i < k; i++ {
		if p.Means[i] == nil || p.Covs[i] == nil {
			return fmt.Errorf("%w: missing emission %d", latent.ErrInvalidArgument, i)
		}
	}

	return nil
}

// emissions creates emission distributions
func (p Params) emissions(src latent.Rander) ([]*gauss.Gaussian, error) {
	_, d := p.Dims()

	e := make([]*gauss.Gaussian, len(p.Means))
	for i := range p.Means {
		if p.Means[i].Len() != d {
			return nil, fmt.Errorf("%w: emission %d mean: %d, want: %d", latent.ErrDimensionMismatch, i, p.Means[i].Len(), d)
		}

		g, err := gauss.NewFull(p.Means[i].RawVector().Data, p.Covs[i], false, src)
		if err != nil {
			return nil, fmt.Errorf("invalid emission %d: %w", i, err)
		}
		e[i] = g
	}

	return e, nil
}

// HMM is Hidden Markov Model with Gaussian emissions.
// Its parameters are fitted to observations with Baum-Welch algorithm.
type HMM struct {
	// p are model parameters
	p Params
	// e are emission distributions of the hidden states
	e []*gauss.Gaussian
	// steps is the number of generated time steps
	steps int
	// src is a source of standard normal draws
	src latent.Rander
	// u is a source of uniform draws
	u rand.Uniform
	// path is the hidden path of the last generated chain
	path []int
	// y stores observations in its columns
	y *mat.Dense
	// stats are statistics computed by the last expectation step
	stats *stats
}

// New creates new HMM with parameters p which generates chains of the given number of steps and returns it.
// Emissions are drawn from src and hidden states from u; either may be nil to use the global sources.
// It returns error if the parameters are invalid or steps is not positive.
func New(p Params, steps int, src latent.Rander, u rand.Uniform) (*HMM, error) {
	if steps <= 0 {
		return nil, fmt.Errorf("%w: chain steps: %d", latent.ErrInvalidArgument, steps)
	}

	if err := p.validate(); err != nil {
		return nil, err
	}

	p = p.Clone()
	e, err := p.emissions(src)
	if err != nil {
		return nil, err
	}

	return &HMM{
		p:     p,
		e:     e,
		steps: steps,
		src:   src,
		u:     u,
	}, nil
}

// Params returns a copy of model parameters
func (h *HMM) Params() Params {
	return h.p.Clone()
}

// Steps returns the number of generated time steps
func (h *HMM) Steps() int {
	return h.steps
}

// Generate generates a random chain of emissions and returns it in d x steps matrix.
// The hidden state path of the chain is available via Path.
// It returns error if the chain fails to be generated.
func (h *HMM) Generate() (*mat.Dense, error) {
	_, d := h.p.Dims()

	path := make([]int, h.steps)
	chain := mat.NewDense(d, h.steps, nil)

	probs := h.p.Init
	for t := 0; t < h.steps; t++ {
		s, err := rand.RouletteDraw(probs, h.u)
		if err != nil {
			return nil, fmt.Errorf("failed to draw hidden state at step %d: %w", t, err)
		}
		path[t] = s

		if _, err := h.e[s].Sample(1, chain.Slice(0, d, t, t+1).(*mat.Dense)); err != nil {
			return nil, err
		}

		probs = h.p.Trans.RawRowView(s)
	}

	h.path = path

	return chain, nil
}

// Path returns the hidden state path of the last generated chain
func (h *HMM) Path() []int {
	path := make([]int, len(h.path))
	copy(path, h.path)

	return path
}

// SetObservations sets observations which the model parameters are fitted to.
// Observations are stored in the columns of y.
// It returns error if y has no columns or its rows don't match emission dimension.
func (h *HMM) SetObservations(y *mat.Dense) error {
	_, d := h.p.Dims()
	rows, cols := y.Dims()
	if rows != d {
		return fmt.Errorf("%w: observations: %d, want: %d", latent.ErrDimensionMismatch, rows, d)
	}

	if cols == 0 {
		return fmt.Errorf("%w: no observations", latent.ErrInvalidArgument)
	}

	h.y = mat.DenseCopyOf(y)
	h.stats = nil

	return nil
}

// logEmissions returns k x T matrix of log densities of the observations under every emission
func (h *HMM) logEmissions() (*mat.Dense, error) {
	k, _ := h.p.Dims()
	_, steps := h.y.Dims()

	lb := mat.NewDense(k, steps, nil)
	for i, g := range h.e {
		lp, err := g.LogPDF(h.y)
		if err != nil {
			return nil, err
		}
		lb.SetRow(i, lp)
	}

	return lb, nil
}

// Viterbi returns the most likely hidden state path of the observations.
// It returns error if no observations have been set.
func (h *HMM) Viterbi() ([]int, error) {
	if h.y == nil {
		return nil, fmt.Errorf("%w: no observations", latent.ErrInvalidArgument)
	}

	lb, err := h.logEmissions()
	if err != nil {
		return nil, err
	}

	k, steps := lb.Dims()

	logTrans := mat.NewDense(k, k, nil)
	logTrans.Apply(func(_, _ int, v float64) float64 { return math.Log(v) }, h.p.Trans)

	// lpr[t][s] is log probability of the best path ending in state s at step t
	// lpt[t][s] is the best previous state of that path
	lpr := mat.NewDense(steps, k, nil)
	lpt := make([][]int, steps)
	for s := 0; s < k; s++ {
		lpr.Set(0, s, math.Log(h.p.Init[s])+lb.At(s, 0))
	}

	wk := make([]float64, k)
	for t := 1; t < steps; t++ {
		lpt[t] = make([]int, k)
		for s2 := 0; s2 < k; s2++ {
			for s1 := 0; s1 < k; s1++ {
				wk[s1] = lpr.At(t-1, s1) + logTrans.At(s1, s2)
			}
			best := floats.MaxIdx(wk)
			lpt[t][s2] = best
			lpr.Set(t, s2, wk[best]+lb.At(s2, t))
		}
	}

	path := make([]int, steps)
	path[steps-1] = floats.MaxIdx(lpr.RawRowView(steps - 1))
	for t := steps - 1; t > 0; t-- {
		path[t-1] = lpt[t][path[t]]
	}

	return path, nil
}

// String implements the Stringer interface.
func (h *HMM) String() string {
	return fmt.Sprintf("HMM{\nInit=%v\nTrans=%v\nEmissions=%v\n}",
		h.p.Init,
		mat.Formatted(h.p.Trans, mat.Prefix("      "), mat.Squeeze()),
		h.e,
	)
}
