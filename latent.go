package latent

import (
	"errors"

	"gonum.org/v1/gonum/mat"
)

var (
	// ErrDimensionMismatch is returned when mean, covariance or sample shapes disagree.
	ErrDimensionMismatch = errors.New("latent: dimension mismatch")
	// ErrNotSquare is returned when a covariance matrix is not square.
	ErrNotSquare = errors.New("latent: matrix is not square")
	// ErrNotPositiveDefinite is returned when a covariance fails to factorize.
	ErrNotPositiveDefinite = errors.New("latent: matrix is not positive definite")
	// ErrInvalidArgument is returned for malformed scalar arguments such as non-positive counts.
	ErrInvalidArgument = errors.New("latent: invalid argument")
)

// Rander is a source of independent standard normal draws.
type Rander interface {
	// Rand returns a single draw from N(0, 1)
	Rand() float64
}

// Sampler draws samples from a distribution
type Sampler interface {
	// Sample returns n samples stored in the columns of the returned matrix.
	// If dst is not nil the samples are written into it.
	Sample(n int, dst *mat.Dense) (*mat.Dense, error)
}

// LogProber evaluates log density of a distribution
type LogProber interface {
	// LogPDF returns log density of every column of x
	LogPDF(x mat.Matrix) ([]float64, error)
}

// Model is a latent variable model fitted by Expectation Maximization.
type Model interface {
	// Expectation computes the statistics required by Maximization under the
	// current parameters and returns the data log-likelihood.
	// It must not modify model parameters.
	Expectation() (float64, error)
	// Maximization updates model parameters using the statistics
	// computed by the most recent Expectation.
	Maximization() error
}

// MarkovChain is a Markov chain whose parameters of type T are fitted by Expectation Maximization.
type MarkovChain[T any] interface {
	// Model fits chain parameters
	Model
	// Generate generates a random chain and returns its values in a D x T matrix:
	// D is the chain dimension and T is the number of time steps.
	// It does not modify chain parameters.
	Generate() (*mat.Dense, error)
	// Params returns a copy of chain parameters
	Params() T
}
