package gauss

import (
	"fmt"

	latent "github.com/milosgajdos/go-latent"
	"github.com/milosgajdos/go-latent/matrix"
	mx "github.com/milosgajdos/matrix"
	"gonum.org/v1/gonum/mat"
)

// Fit fits a Gaussian with full covariance to samples stored in the columns of x and returns it.
// The mean is the sample mean and the covariance is the sample covariance of x columns.
// It returns error if x has fewer than 2 columns or if the sample covariance is not positive definite.
func Fit(x *mat.Dense, src latent.Rander) (*Gaussian, error) {
	if x == nil {
		return nil, fmt.Errorf("%w: nil samples", latent.ErrInvalidArgument)
	}

	_, n := x.Dims()
	if n < 2 {
		return nil, fmt.Errorf("%w: need at least 2 samples, got %d", latent.ErrInvalidArgument, n)
	}

	mean := matrix.RowMeans(x)

	c, err := mx.Cov(x, "cols")
	if err != nil {
		return nil, fmt.Errorf("failed to compute sample covariance: %w", err)
	}

	return NewFull(mean, c, false, src)
}
