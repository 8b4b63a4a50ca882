package cov

import (
	"fmt"
	"math"

	latent "github.com/milosgajdos/go-latent"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Kind is covariance representation kind
type Kind int

const (
	// KindScalar is isotropic covariance v*I
	KindScalar Kind = iota
	// KindDiagonal is diagonal covariance diag(d)
	KindDiagonal
	// KindFull is full covariance stored as its Cholesky factor
	KindFull
)

// String implements fmt.Stringer
func (k Kind) String() string {
	switch k {
	case KindScalar:
		return "Scalar"
	case KindDiagonal:
		return "Diagonal"
	case KindFull:
		return "Full"
	}

	return fmt.Sprintf("Kind(%d)", int(k))
}

// Covariance is a covariance matrix representation.
// It is implemented only by *Scalar, *Diagonal and *Full.
type Covariance interface {
	// Kind returns representation kind
	Kind() Kind
	// Dim returns covariance dimension
	Dim() int
	// Factor returns lower triangular L such that L*L' is the covariance matrix
	Factor() *mat.TriDense
	// Matrix returns the covariance matrix
	Matrix() *mat.SymDense

	covariance()
}

// Scalar is isotropic covariance v*I
type Scalar struct {
	v float64
	n int
}

// NewScalar creates n x n isotropic covariance with variance v and returns it.
// It returns error if n is not positive or if v is not a positive finite number.
func NewScalar(v float64, n int) (*Scalar, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: covariance dimension: %d", latent.ErrInvalidArgument, n)
	}

	if !(v > 0) || math.IsInf(v, 1) {
		return nil, &FactorError{MinEigen: v, HasEigen: true}
	}

	return &Scalar{v: v, n: n}, nil
}

// Value returns the variance
func (s *Scalar) Value() float64 { return s.v }

// Kind returns KindScalar
func (s *Scalar) Kind() Kind { return KindScalar }

// Dim returns covariance dimension
func (s *Scalar) Dim() int { return s.n }

// Factor returns sqrt(v)*I
func (s *Scalar) Factor() *mat.TriDense {
	l := mat.NewTriDense(s.n, mat.Lower, nil)
	sd := math.Sqrt(s.v)
	for i := 0; i < s.n; i++ {
		l.SetTri(i, i, sd)
	}

	return l
}

// Matrix returns v*I
func (s *Scalar) Matrix() *mat.SymDense {
	m := mat.NewSymDense(s.n, nil)
	for i := 0; i < s.n; i++ {
		m.SetSym(i, i, s.v)
	}

	return m
}

func (s *Scalar) covariance() {}

// Diagonal is diagonal covariance diag(d)
type Diagonal struct {
	d []float64
}

// NewDiagonal creates diagonal covariance with variances d and returns it.
// It returns error if d is empty or if any of its values is not a positive finite number.
func NewDiagonal(d []float64) (*Diagonal, error) {
	if len(d) == 0 {
		return nil, fmt.Errorf("%w: empty covariance diagonal", latent.ErrInvalidArgument)
	}

	for _, v := range d {
		if !(v > 0) || math.IsInf(v, 1) {
			return nil, &FactorError{MinEigen: floats.Min(d), HasEigen: true}
		}
	}

	dd := make([]float64, len(d))
	copy(dd, d)

	return &Diagonal{d: dd}, nil
}

// Values returns a copy of the variances
func (d *Diagonal) Values() []float64 {
	v := make([]float64, len(d.d))
	copy(v, d.d)

	return v
}

// Kind returns KindDiagonal
func (d *Diagonal) Kind() Kind { return KindDiagonal }

// Dim returns covariance dimension
func (d *Diagonal) Dim() int { return len(d.d) }

// Factor returns diag(sqrt(d))
func (d *Diagonal) Factor() *mat.TriDense {
	l := mat.NewTriDense(len(d.d), mat.Lower, nil)
	for i, v := range d.d {
		l.SetTri(i, i, math.Sqrt(v))
	}

	return l
}

// Matrix returns diag(d)
func (d *Diagonal) Matrix() *mat.SymDense {
	m := mat.NewSymDense(len(d.d), nil)
	for i, v := range d.d {
		m.SetSym(i, i, v)
	}

	return m
}

func (d *Diagonal) covariance() {}

// Full is full covariance stored as its lower Cholesky factor
type Full struct {
	l *mat.TriDense
}

// NewFull creates full covariance from m and returns it.
// If isCholesky is true, the lower triangle of m is used as the Cholesky factor without any validation.
// Otherwise m is factorized with Cholesky.
// It returns error if m is not square or if its factorization fails.
func NewFull(m mat.Matrix, isCholesky bool) (*Full, error) {
	rows, cols := m.Dims()
	if rows != cols {
		return nil, fmt.Errorf("%w: covariance is %d x %d", latent.ErrNotSquare, rows, cols)
	}

	if !isCholesky {
		l, err := Cholesky(m)
		if err != nil {
			return nil, err
		}

		return &Full{l: l}, nil
	}

	if rows == 0 {
		return nil, fmt.Errorf("%w: empty covariance factor", latent.ErrInvalidArgument)
	}

	l := mat.NewTriDense(rows, mat.Lower, nil)
	for i := 0; i < rows; i++ {
		for j := 0; j <= i; j++ {
			l.SetTri(i, j, m.At(i, j))
		}
	}

	return &Full{l: l}, nil
}

// Kind returns KindFull
func (f *Full) Kind() Kind { return KindFull }

// Dim returns covariance dimension
func (f *Full) Dim() int {
	n, _ := f.l.Dims()
	return n
}

// Factor returns a copy of the Cholesky factor
func (f *Full) Factor() *mat.TriDense {
	n := f.Dim()
	l := mat.NewTriDense(n, mat.Lower, nil)
	for i := 0; i < n; i++ {
		for j := 0; j <= i; j++ {
			l.SetTri(i, j, f.l.At(i, j))
		}
	}

	return l
}

// Matrix returns L*L'
func (f *Full) Matrix() *mat.SymDense {
	m := &mat.SymDense{}
	m.SymOuterK(1, f.l)

	return m
}

func (f *Full) covariance() {}
