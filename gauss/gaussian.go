package gauss

import (
	"errors"
	"fmt"
	"math"

	latent "github.com/milosgajdos/go-latent"
	"github.com/milosgajdos/go-latent/cov"
	"github.com/milosgajdos/go-latent/rand"
	logging "github.com/op/go-logging"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

var log = logging.MustGetLogger("gauss")

// Gaussian is a multivariate Normal (aka Gaussian) distribution.
// Its covariance is kept in one of the cov.Covariance representations and
// every sampling and density evaluation reuses its Cholesky factor.
type Gaussian struct {
	// mean is Gaussian mean
	mean *mat.VecDense
	// cov is Gaussian covariance
	cov cov.Covariance
	// l is the lower Cholesky factor of cov
	l *mat.TriDense
	// logDetL is sum(log(diag(l)))
	logDetL float64
	// src is a source of standard normal draws
	src latent.Rander
}

// New creates new Gaussian with given mean and covariance c and returns it.
// If src is nil, samples are drawn from the global gonum standard normal source.
// It returns error if mean is empty or if its dimension does not match the dimension of c.
func New(mean []float64, c cov.Covariance, src latent.Rander) (*Gaussian, error) {
	if len(mean) == 0 {
		return nil, fmt.Errorf("%w: empty mean", latent.ErrInvalidArgument)
	}

	if c == nil {
		return nil, fmt.Errorf("%w: nil covariance", latent.ErrInvalidArgument)
	}

	if c.Dim() != len(mean) {
		return nil, fmt.Errorf("%w: mean: %d, covariance: %d", latent.ErrDimensionMismatch, len(mean), c.Dim())
	}

	m := make([]float64, len(mean))
	copy(m, mean)

	g := &Gaussian{
		mean: mat.NewVecDense(len(m), m),
		src:  src,
	}
	g.setCov(c)

	return g, nil
}

// NewScalar creates new Gaussian with isotropic covariance v*I and returns it.
// It returns error if v is not positive.
func NewScalar(mean []float64, v float64, src latent.Rander) (*Gaussian, error) {
	if len(mean) == 0 {
		return nil, fmt.Errorf("%w: empty mean", latent.ErrInvalidArgument)
	}

	c, err := cov.NewScalar(v, len(mean))
	if err != nil {
		return nil, err
	}

	return New(mean, c, src)
}

// NewDiagonal creates new Gaussian with diagonal covariance diag(d) and returns it.
// It returns error if the lengths of mean and d differ or if any of d values is not positive.
func NewDiagonal(mean, d []float64, src latent.Rander) (*Gaussian, error) {
	if len(mean) != len(d) {
		return nil, fmt.Errorf("%w: mean: %d, covariance: %d", latent.ErrDimensionMismatch, len(mean), len(d))
	}

	c, err := cov.NewDiagonal(d)
	if err != nil {
		return nil, err
	}

	return New(mean, c, src)
}

// NewFull creates new Gaussian with full covariance m and returns it.
// If isCholesky is true, m is trusted to be the lower Cholesky factor of the covariance.
// It returns error if m is not square, if its dimension does not match mean or if it's not positive definite.
func NewFull(mean []float64, m mat.Matrix, isCholesky bool, src latent.Rander) (*Gaussian, error) {
	rows, cols := m.Dims()
	if rows != cols {
		return nil, fmt.Errorf("%w: covariance is %d x %d", latent.ErrNotSquare, rows, cols)
	}

	if rows != len(mean) {
		return nil, fmt.Errorf("%w: mean: %d, covariance: %d", latent.ErrDimensionMismatch, len(mean), rows)
	}

	c, err := cov.NewFull(m, isCholesky)
	if err != nil {
		return nil, err
	}

	return New(mean, c, src)
}

func (g *Gaussian) setCov(c cov.Covariance) {
	l := c.Factor()

	logDetL := 0.0
	n, _ := l.Dims()
	for i := 0; i < n; i++ {
		logDetL += math.Log(math.Abs(l.At(i, i)))
	}

	g.cov = c
	g.l = l
	g.logDetL = logDetL
}

// SetCov replaces Gaussian covariance with c.
// It returns error if c dimension does not match the Gaussian dimension.
func (g *Gaussian) SetCov(c cov.Covariance) error {
	if c == nil {
		return fmt.Errorf("%w: nil covariance", latent.ErrInvalidArgument)
	}

	if c.Dim() != g.Dim() {
		return fmt.Errorf("%w: gaussian: %d, covariance: %d", latent.ErrDimensionMismatch, g.Dim(), c.Dim())
	}

	g.setCov(c)

	return nil
}

// SetCovScalar replaces Gaussian covariance with v*I.
// It returns error if v is not positive.
func (g *Gaussian) SetCovScalar(v float64) error {
	c, err := cov.NewScalar(v, g.Dim())
	if err != nil {
		return err
	}

	return g.SetCov(c)
}

// SetCovDiagonal replaces Gaussian covariance with diag(d).
// It returns error if d has invalid dimension or if any of its values is not positive.
func (g *Gaussian) SetCovDiagonal(d []float64) error {
	if len(d) != g.Dim() {
		return fmt.Errorf("%w: gaussian: %d, covariance: %d", latent.ErrDimensionMismatch, g.Dim(), len(d))
	}

	c, err := cov.NewDiagonal(d)
	if err != nil {
		return err
	}

	return g.SetCov(c)
}

// SetCovFull replaces Gaussian covariance with m.
// If isCholesky is true, m is trusted to be the lower Cholesky factor of the covariance.
// It returns error if m is not square, has invalid dimension or if it's not positive definite.
func (g *Gaussian) SetCovFull(m mat.Matrix, isCholesky bool) error {
	rows, cols := m.Dims()
	if rows != cols {
		return fmt.Errorf("%w: covariance is %d x %d", latent.ErrNotSquare, rows, cols)
	}

	if rows != g.Dim() {
		return fmt.Errorf("%w: gaussian: %d, covariance: %d", latent.ErrDimensionMismatch, g.Dim(), rows)
	}

	c, err := cov.NewFull(m, isCholesky)
	if err != nil {
		return err
	}

	return g.SetCov(c)
}

// SetMean replaces Gaussian mean.
// It returns error if mean has invalid dimension.
func (g *Gaussian) SetMean(mean []float64) error {
	if len(mean) != g.Dim() {
		return fmt.Errorf("%w: gaussian: %d, mean: %d", latent.ErrDimensionMismatch, g.Dim(), len(mean))
	}

	for i, v := range mean {
		g.mean.SetVec(i, v)
	}

	return nil
}

// Dim returns Gaussian dimension.
func (g *Gaussian) Dim() int {
	return g.mean.Len()
}

// Mean returns Gaussian mean.
func (g *Gaussian) Mean() []float64 {
	mean := make([]float64, g.mean.Len())
	copy(mean, g.mean.RawVector().Data)

	return mean
}

// Cov returns Gaussian covariance representation.
func (g *Gaussian) Cov() cov.Covariance {
	return g.cov
}

// CovMatrix returns covariance matrix of Gaussian.
func (g *Gaussian) CovMatrix() *mat.SymDense {
	return g.cov.Matrix()
}

// Factor returns the lower Cholesky factor of Gaussian covariance.
func (g *Gaussian) Factor() *mat.TriDense {
	return g.cov.Factor()
}

// LogDet returns log determinant of Gaussian covariance.
func (g *Gaussian) LogDet() float64 {
	return 2 * g.logDetL
}

// Sample draws n samples from the Gaussian and returns them stored in the columns of D x n matrix.
// If dst is not nil, its contents are overwritten with the samples and dst is returned.
// It returns error if n is not positive or if dst is not D x n matrix.
func (g *Gaussian) Sample(n int, dst *mat.Dense) (*mat.Dense, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: sample count: %d", latent.ErrInvalidArgument, n)
	}

	dim := g.Dim()
	if dst != nil {
		rows, cols := dst.Dims()
		if rows != dim || cols != n {
			return nil, fmt.Errorf("%w: samples: [%d x %d], want: [%d x %d]", latent.ErrDimensionMismatch, rows, cols, dim, n)
		}
	} else {
		dst = mat.NewDense(dim, n, nil)
	}

	// draw from N(0, I) and map into N(mean, L*L')
	rand.NormalN(g.src, dst)
	dst.Mul(g.l, dst)

	for r := 0; r < dim; r++ {
		mean := g.mean.AtVec(r)
		row := dst.RawRowView(r)
		for c := range row {
			row[c] += mean
		}
	}

	return dst, nil
}

// Rand draws a single sample from the Gaussian and stores it in x.
// If x is nil, a new slice is allocated. It panics if len(x) does not match Gaussian dimension.
func (g *Gaussian) Rand(x []float64) []float64 {
	if x == nil {
		x = make([]float64, g.Dim())
	}

	if len(x) != g.Dim() {
		panic(mat.ErrShape)
	}

	if _, err := g.Sample(1, mat.NewDense(len(x), 1, x)); err != nil {
		panic(err)
	}

	return x
}

// LogPDF returns log probability density of every column of x.
// It returns error if x has no columns or if its row count does not match Gaussian dimension.
func (g *Gaussian) LogPDF(x mat.Matrix) ([]float64, error) {
	rows, n := x.Dims()
	if n == 0 {
		return nil, fmt.Errorf("%w: sample count: %d", latent.ErrInvalidArgument, n)
	}

	dim := g.Dim()
	if rows != dim {
		return nil, fmt.Errorf("%w: samples: %d, gaussian: %d", latent.ErrDimensionMismatch, rows, dim)
	}

	centred := mat.NewDense(dim, n, nil)
	for r := 0; r < dim; r++ {
		mean := g.mean.AtVec(r)
		row := centred.RawRowView(r)
		for c := range row {
			row[c] = x.At(r, c) - mean
		}
	}

	// L*y = x - mean, so that y'*y = (x-mean)' * inv(Sigma) * (x-mean)
	y := &mat.Dense{}
	if err := y.Solve(g.l, centred); err != nil {
		var cond mat.Condition
		if !errors.As(err, &cond) {
			return nil, fmt.Errorf("failed to solve for samples: %w", err)
		}
		log.Warningf("ill-conditioned covariance factor: condition number %g", float64(cond))
	}

	constPart := -0.5*float64(dim)*math.Log(2*math.Pi) - g.logDetL

	res := make([]float64, n)
	for c := 0; c < n; c++ {
		col := mat.Col(nil, c, y)
		res[c] = -0.5*floats.Dot(col, col) + constPart
	}

	return res, nil
}

// LogProb returns log probability density of x.
// It panics if len(x) does not match Gaussian dimension.
func (g *Gaussian) LogProb(x []float64) float64 {
	if len(x) != g.Dim() {
		panic(mat.ErrShape)
	}

	res, err := g.LogPDF(mat.NewVecDense(len(x), x))
	if err != nil {
		panic(err)
	}

	return res[0]
}

// Prob returns probability density of x.
// It panics if len(x) does not match Gaussian dimension.
func (g *Gaussian) Prob(x []float64) float64 {
	return math.Exp(g.LogProb(x))
}

// String implements the Stringer interface.
func (g *Gaussian) String() string {
	var c interface{}
	switch cv := g.cov.(type) {
	case *cov.Scalar:
		c = cv.Value()
	case *cov.Diagonal:
		c = cv.Values()
	case *cov.Full:
		c = mat.Formatted(cv.Matrix(), mat.Prefix("    "), mat.Squeeze())
	}

	return fmt.Sprintf("Gaussian{\nMean=%v\nCov=%s(%v)\n}", g.Mean(), g.cov.Kind(), c)
}
