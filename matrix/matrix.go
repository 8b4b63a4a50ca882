package matrix

import (
	"fmt"

	latent "github.com/milosgajdos/go-latent"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// RowSums returns a slice containing m row sums.
// It panics if m is nil.
func RowSums(m *mat.Dense) []float64 {
	rows, _ := m.Dims()
	sum := make([]float64, rows)

	for i := 0; i < rows; i++ {
		sum[i] = floats.Sum(m.RawRowView(i))
	}

	return sum
}

// ColSums returns a slice containing m column sums.
// It panics if m is nil.
func ColSums(m *mat.Dense) []float64 {
	_, cols := m.Dims()
	sum := make([]float64, cols)

	for i := 0; i < cols; i++ {
		sum[i] = mat.Sum(m.ColView(i))
	}

	return sum
}

// RowMeans returns a slice containing m row means.
// It panics if m is nil.
func RowMeans(m *mat.Dense) []float64 {
	_, cols := m.Dims()
	means := RowSums(m)
	floats.Scale(1/float64(cols), means)

	return means
}

// SymLower returns a symmetric matrix built from the lower triangle of m.
// The upper triangle of m is never read.
// It returns error if m is not square.
func SymLower(m mat.Matrix) (*mat.SymDense, error) {
	rows, cols := m.Dims()
	if rows != cols {
		return nil, fmt.Errorf("%w: [%d x %d]", latent.ErrNotSquare, rows, cols)
	}

	s := mat.NewSymDense(rows, nil)
	for i := 0; i < rows; i++ {
		for j := 0; j <= i; j++ {
			s.SetSym(i, j, m.At(i, j))
		}
	}

	return s, nil
}

// Symmetrize returns (m + m') / 2.
// It is used to wash out round off asymmetry of computed covariance matrices.
// It panics if m is not square.
func Symmetrize(m mat.Matrix) *mat.SymDense {
	rows, cols := m.Dims()
	if rows != cols {
		panic(mat.ErrShape)
	}

	s := mat.NewSymDense(rows, nil)
	for i := 0; i < rows; i++ {
		for j := i; j < rows; j++ {
			s.SetSym(i, j, 0.5*(m.At(i, j)+m.At(j, i)))
		}
	}

	return s
}

// SymCopyOf returns a newly allocated copy of the symmetric matrix s.
// It returns nil if s is nil.
func SymCopyOf(s *mat.SymDense) *mat.SymDense {
	if s == nil {
		return nil
	}

	c := mat.NewSymDense(s.SymmetricDim(), nil)
	c.CopySym(s)

	return c
}
