package cov

import (
	"errors"
	"testing"

	latent "github.com/milosgajdos/go-latent"
	"github.com/milosgajdos/go-latent/matrix"
	"github.com/milosgajdos/go-latent/rand"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// randomSPD returns a random symmetric positive definite n x n matrix.
func randomSPD(n int, seed uint64) *mat.SymDense {
	a := mat.NewDense(n, n, nil)
	rand.NormalN(rand.NewNormal(seed), a)

	s := &mat.SymDense{}
	s.SymOuterK(1, a)
	for i := 0; i < n; i++ {
		s.SetSym(i, i, s.At(i, i)+float64(n))
	}

	return s
}

func TestCholesky(t *testing.T) {
	assert := assert.New(t)

	for _, n := range []int{1, 2, 5, 10} {
		sigma := randomSPD(n, uint64(n))
		orig := matrix.SymCopyOf(sigma)

		l, err := Cholesky(sigma)
		require.NoError(t, err)

		// factor is lower triangular
		_, kind := l.Triangle()
		assert.Equal(mat.Lower, kind)

		llt := &mat.Dense{}
		llt.Mul(l, l.T())

		diff := &mat.Dense{}
		diff.Sub(llt, sigma)
		assert.Less(mat.Norm(diff, 2), 1e-9)

		// input is not modified
		assert.True(mat.Equal(orig, sigma))
	}
}

func TestCholeskyReadsLowerTriangle(t *testing.T) {
	m := mat.NewDense(2, 2, []float64{
		4, 1000,
		2, 3,
	})

	l, err := Cholesky(m)
	require.NoError(t, err)

	assert.InDelta(t, 2.0, l.At(0, 0), 1e-12)
	assert.InDelta(t, 1.0, l.At(1, 0), 1e-12)
	assert.InDelta(t, 1.4142135623730951, l.At(1, 1), 1e-12)
}

func TestCholeskyErrors(t *testing.T) {
	assert := assert.New(t)

	// eigenvalues: 3, -1
	l, err := Cholesky(mat.NewDense(2, 2, []float64{1, 2, 2, 1}))
	assert.Nil(l)
	assert.True(errors.Is(err, latent.ErrNotPositiveDefinite))

	var fe *FactorError
	require.True(t, errors.As(err, &fe))
	assert.True(fe.HasEigen)
	assert.InDelta(-1.0, fe.MinEigen, 1e-9)
	assert.Contains(fe.Error(), "smallest eigenvalue")

	l, err = Cholesky(mat.NewDense(2, 3, nil))
	assert.Nil(l)
	assert.True(errors.Is(err, latent.ErrNotSquare))

	l, err = Cholesky(&mat.Dense{})
	assert.Nil(l)
	assert.True(errors.Is(err, latent.ErrInvalidArgument))
}

func TestFactorErrorWithoutEigen(t *testing.T) {
	fe := &FactorError{}
	assert.Contains(t, fe.Error(), "could not compute eigenvalues")
	assert.True(t, errors.Is(fe, latent.ErrNotPositiveDefinite))
}
