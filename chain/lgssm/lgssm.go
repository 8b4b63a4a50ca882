package lgssm

import (
	"fmt"

	latent "github.com/milosgajdos/go-latent"
	"github.com/milosgajdos/go-latent/cov"
	"github.com/milosgajdos/go-latent/gauss"
	"github.com/milosgajdos/go-latent/matrix"
	logging "github.com/op/go-logging"
	"gonum.org/v1/gonum/mat"
)

var log = logging.MustGetLogger("lgssm")

// Params are Linear Gaussian State Space Model parameters:
//
//	x[0]   ~ N(Mu0, P0)
//	x[t+1] = A*x[t] + w[t],  w ~ N(0, Q)
//	y[t]   = C*x[t] + v[t],  v ~ N(0, R)
type Params struct {
	// A is state transition matrix
	A *mat.Dense
	// C is observation matrix
	C *mat.Dense
	// Q is state noise covariance
	Q *mat.SymDense
	// R is observation noise covariance
	R *mat.SymDense
	// Mu0 is initial state mean
	Mu0 *mat.VecDense
	// P0 is initial state covariance
	P0 *mat.SymDense
}

// Dims returns the state and observation dimensions
func (p Params) Dims() (nx, ny int) {
	nx, _ = p.A.Dims()
	ny, _ = p.C.Dims()

	return nx, ny
}

// Clone returns a deep copy of p
func (p Params) Clone() Params {
	return Params{
		A:   mat.DenseCopyOf(p.A),
		C:   mat.DenseCopyOf(p.C),
		Q:   matrix.SymCopyOf(p.Q),
		R:   matrix.SymCopyOf(p.R),
		Mu0: mat.VecDenseCopyOf(p.Mu0),
		P0:  matrix.SymCopyOf(p.P0),
	}
}

func (p Params) validate() error {
	if p.A == nil || p.C == nil || p.Q == nil || p.R == nil || p.Mu0 == nil || p.P0 == nil {
		return fmt.Errorf("%w: missing model parameters", latent.ErrInvalidArgument)
	}

	ar, ac := p.A.Dims()
	if ar != ac {
		return fmt.Errorf("%w: state matrix: [%d x %d]", latent.ErrNotSquare, ar, ac)
	}
	nx := ar

	ny, cc := p.C.Dims()
	if cc != nx {
		return fmt.Errorf("%w: observation matrix: [%d x %d], state: %d", latent.ErrDimensionMismatch, ny, cc, nx)
	}

	for _, c := range []struct {
		name string
		m    mat.Matrix
		n    int
	}{
		{name: "state noise", m: p.Q, n: nx},
		{name: "observation noise", m: p.R, n: ny},
		{name: "initial state", m: p.P0, n: nx},
	} {
		if r, _ := c.m.Dims(); r != c.n {
			return fmt.Errorf("%w: %s covariance: %d, want: %d", latent.ErrDimensionMismatch, c.name, r, c.n)
		}
		if _, err := cov.Cholesky(c.m); err != nil {
			return fmt.Errorf("invalid %s covariance: %w", c.name, err)
		}
	}

	if p.Mu0.Len() != nx {
		return fmt.Errorf("%w: initial state: %d, want: %d", latent.ErrDimensionMismatch, p.Mu0.Len(), nx)
	}

	return nil
}

// LGSSM is Linear Gaussian State Space Model: a latent Markov chain over continuous
// state observed through linear Gaussian emissions.
// Its parameters are fitted to observations by Expectation Maximization.
type LGSSM struct {
	// p are model parameters
	p Params
	// steps is the number of generated time steps
	steps int
	// src is a source of standard normal draws
	src latent.Rander
	// y stores observations in its columns
	y *mat.Dense
	// stats are statistics computed by the last expectation step
	stats *stats
}

// New creates new LGSSM with parameters p which generates chains of the given number of steps and returns it.
// It returns error if the parameters are invalid or steps is not positive.
func New(p Params, steps int, src latent.Rander) (*LGSSM, error) {
	if steps <= 0 {
		return nil, fmt.Errorf("%w: chain steps: %d", latent.ErrInvalidArgument, steps)
	}

	if err := p.validate(); err != nil {
		return nil, err
	}

	return &LGSSM{
		p:     p.Clone(),
		steps: steps,
		src:   src,
	}, nil
}

// Params returns a copy of model parameters
func (m *LGSSM) Params() Params {
	return m.p.Clone()
}

// Steps returns the number of generated time steps
func (m *LGSSM) Steps() int {
	return m.steps
}

// Generate generates a random latent state chain and returns it in nx x steps matrix.
// It returns error if the chain fails to be generated.
func (m *LGSSM) Generate() (*mat.Dense, error) {
	nx, _ := m.p.Dims()

	x0, err := gauss.NewFull(m.p.Mu0.RawVector().Data, m.p.P0, false, m.src)
	if err != nil {
		return nil, fmt.Errorf("invalid initial state distribution: %w", err)
	}

	x, err := x0.Sample(1, nil)
	if err != nil {
		return nil, err
	}

	if m.steps == 1 {
		return x, nil
	}

	q, err := gauss.NewFull(make([]float64, nx), m.p.Q, false, m.src)
	if err != nil {
		return nil, fmt.Errorf("invalid state noise distribution: %w", err)
	}

	// state noise for every transition is stored in columns 1..steps-1
	chain := mat.NewDense(nx, m.steps, nil)
	if _, err := q.Sample(m.steps-1, chain.Slice(0, nx, 1, m.steps).(*mat.Dense)); err != nil {
		return nil, err
	}
	chain.Slice(0, nx, 0, 1).(*mat.Dense).Copy(x)

	next := mat.NewVecDense(nx, nil)
	for t := 1; t < m.steps; t++ {
		next.MulVec(m.p.A, chain.ColView(t-1))
		next.AddVec(next, chain.ColView(t))
		chain.SetCol(t, next.RawVector().Data)
	}

	return chain, nil
}

// Emit generates observations of the latent state chain x and returns them in ny x T matrix.
// It returns error if x does not have nx rows.
func (m *LGSSM) Emit(x *mat.Dense) (*mat.Dense, error) {
	nx, ny := m.p.Dims()
	rows, cols := x.Dims()
	if rows != nx || cols == 0 {
		return nil, fmt.Errorf("%w: chain: [%d x %d], state: %d", latent.ErrDimensionMismatch, rows, cols, nx)
	}

	r, err := gauss.NewFull(make([]float64, ny), m.p.R, false, m.src)
	if err != nil {
		return nil, fmt.Errorf("invalid observation noise distribution: %w", err)
	}

	y, err := r.Sample(cols, nil)
	if err != nil {
		return nil, err
	}

	cx := &mat.Dense{}
	cx.Mul(m.p.C, x)
	y.Add(y, cx)

	return y, nil
}

// Sample generates a random latent chain and its observations and returns them.
func (m *LGSSM) Sample() (x, y *mat.Dense, err error) {
	x, err = m.Generate()
	if err != nil {
		return nil, nil, err
	}

	y, err = m.Emit(x)
	if err != nil {
		return nil, nil, err
	}

	return x, y, nil
}

// SetObservations sets observations which the model parameters are fitted to.
// Observations are stored in the columns of y.
// It returns error if y has fewer than 2 columns or its rows don't match observation dimension.
func (m *LGSSM) SetObservations(y *mat.Dense) error {
	_, ny := m.p.Dims()
	rows, cols := y.Dims()
	if rows != ny {
		return fmt.Errorf("%w: observations: %d, want: %d", latent.ErrDimensionMismatch, rows, ny)
	}

	if cols < 2 {
		return fmt.Errorf("%w: need at least 2 observations, got: %d", latent.ErrInvalidArgument, cols)
	}

	m.y = mat.DenseCopyOf(y)
	m.stats = nil

	return nil
}

// Smoothed returns smoothed state estimates computed by the last expectation step in nx x T matrix.
// It returns error if no expectation step has been run since the parameters last changed.
func (m *LGSSM) Smoothed() (*mat.Dense, error) {
	if m.stats == nil {
		return nil, fmt.Errorf("%w: no expectation step has been run", latent.ErrInvalidArgument)
	}

	nx, _ := m.p.Dims()
	xs := mat.NewDense(nx, len(m.stats.xs), nil)
	for t, x := range m.stats.xs {
		xs.SetCol(t, x.RawVector().Data)
	}

	return xs, nil
}

// String implements the Stringer interface.
func (m *LGSSM) String() string {
	return fmt.Sprintf("LGSSM{\nA=%v\nC=%v\nQ=%v\nR=%v\nMu0=%v\nP0=%v\n}",
		mat.Formatted(m.p.A, mat.Prefix("  "), mat.Squeeze()),
		mat.Formatted(m.p.C, mat.Prefix("  "), mat.Squeeze()),
		mat.Formatted(m.p.Q, mat.Prefix("  "), mat.Squeeze()),
		mat.Formatted(m.p.R, mat.Prefix("  "), mat.Squeeze()),
		mat.Formatted(m.p.Mu0.T(), mat.Prefix("    "), mat.Squeeze()),
		mat.Formatted(m.p.P0, mat.Prefix("   "), mat.Squeeze()),
	)
}
