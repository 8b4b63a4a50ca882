package cov

import (
	"fmt"

	latent "github.com/milosgajdos/go-latent"
	"github.com/milosgajdos/go-latent/matrix"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// FactorError is returned when Cholesky factorization of a covariance matrix fails.
// It wraps latent.ErrNotPositiveDefinite.
type FactorError struct {
	// MinEigen is the smallest eigenvalue of the matrix which failed to factorize
	MinEigen float64
	// HasEigen is false if the eigenvalues could not be computed either
	HasEigen bool
}

// Error implements error interface.
func (e *FactorError) Error() string {
	if e.HasEigen {
		return fmt.Sprintf("cov: cholesky factorization failed: smallest eigenvalue is %g", e.MinEigen)
	}

	return "cov: cholesky factorization failed: numerical issue (could not compute eigenvalues)"
}

// Unwrap returns latent.ErrNotPositiveDefinite.
func (e *FactorError) Unwrap() error {
	return latent.ErrNotPositiveDefinite
}

// Cholesky computes lower triangular matrix L such that L*L' = m and returns it.
// Only the lower triangle of m is read: m is assumed to be symmetric. m is not modified.
// It returns error if m is empty or not square or if it is not positive definite.
// When factorization fails the returned *FactorError reports the smallest eigenvalue of m.
func Cholesky(m mat.Matrix) (*mat.TriDense, error) {
	rows, cols := m.Dims()
	if rows == 0 || cols == 0 {
		return nil, fmt.Errorf("%w: empty covariance matrix", latent.ErrInvalidArgument)
	}

	sym, err := matrix.SymLower(m)
	if err != nil {
		return nil, err
	}

	var chol mat.Cholesky
	if ok := chol.Factorize(sym); !ok {
		return nil, factorError(sym)
	}

	l := &mat.TriDense{}
	chol.LTo(l)

	return l, nil
}

func factorError(sym *mat.SymDense) *FactorError {
	var es mat.EigenSym
	if ok := es.Factorize(sym, false); !ok {
		return &FactorError{}
	}

	return &FactorError{
		MinEigen: floats.Min(es.Values(nil)),
		HasEigen: true,
	}
}
