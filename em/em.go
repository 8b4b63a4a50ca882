package em

import (
	"fmt"

	latent "github.com/milosgajdos/go-latent"
	logging "github.com/op/go-logging"
)

var log = logging.MustGetLogger("em")

// Driver runs Expectation Maximization on a latent.Model.
// Driver holds no model state: it only tracks the log-likelihood trace of its last run.
type Driver struct {
	// m is the fitted model
	m latent.Model
	// c is driver configuration
	c Config
	// trace stores log-likelihood returned by every expectation step
	trace []float64
	// iters counts maximization steps of the last run
	iters int
}

// New creates new EM driver for model m with configuration c and returns it.
// It returns error if m is nil or c is invalid.
func New(m latent.Model, c Config) (*Driver, error) {
	if m == nil {
		return nil, fmt.Errorf("%w: nil model", latent.ErrInvalidArgument)
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}

	return &Driver{
		m: m,
		c: c,
	}, nil
}

// Run alternates expectation and maximization steps until the log-likelihood
// increase between two consecutive expectation steps drops below Epsilon or
// until MaxIters maximization steps have been run.
// The first expectation step is never checked for convergence and no maximization
// step is run once convergence has been declared.
// It returns true if EM converged. Failing to converge is not an error: Run
// returns error only if any of the model steps fails.
func (d *Driver) Run() (bool, error) {
	d.trace = d.trace[:0]
	d.iters = 0

	llCur, llPrev := 0.0, 0.0
	for i := 0; i < d.c.MaxIters; i++ {
		llPrev = llCur

		var err error
		llCur, err = d.m.Expectation()
		if err != nil {
			return false, fmt.Errorf("expectation step %d failed: %w", i, err)
		}
		d.trace = append(d.trace, llCur)

		log.Debugf("iteration %d: log-likelihood: %g", i, llCur)

		if i > 0 && llCur-llPrev < d.c.Epsilon {
			log.Infof("converged after %d iterations: log-likelihood: %g", i, llCur)
			return true, nil
		}

		if err := d.m.Maximization(); err != nil {
			return false, fmt.Errorf("maximization step %d failed: %w", i, err)
		}
		d.iters++
	}

	log.Infof("no convergence after %d iterations: log-likelihood: %g", d.iters, llCur)

	return false, nil
}

// Trace returns log-likelihood values computed by the expectation steps of the last run.
func (d *Driver) Trace() []float64 {
	trace := make([]float64, len(d.trace))
	copy(trace, d.trace)

	return trace
}

// Iters returns the number of maximization steps run by the last run.
func (d *Driver) Iters() int {
	return d.iters
}

// Iterate runs EM on model m with configuration c.
// It returns true if EM converged.
func Iterate(m latent.Model, c Config) (bool, error) {
	d, err := New(m, c)
	if err != nil {
		return false, err
	}

	return d.Run()
}
