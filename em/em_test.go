package em

import (
	"errors"
	"testing"

	latent "github.com/milosgajdos/go-latent"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// seqModel returns ll(k) from its expectation step, k being
// the number of maximization steps run so far.
type seqModel struct {
	ll           func(k int) float64
	expectations int
	steps        int
	eErr         error
	mErr         error
}

func (m *seqModel) Expectation() (float64, error) {
	m.expectations++
	if m.eErr != nil {
		return 0, m.eErr
	}

	return m.ll(m.steps), nil
}

func (m *seqModel) Maximization() error {
	if m.mErr != nil {
		return m.mErr
	}
	m.steps++

	return nil
}

func TestIterateConverges(t *testing.T) {
	assert := assert.New(t)

	m := &seqModel{ll: func(k int) float64 { return 1 - 1/float64(k+1) }}

	d, err := New(m, Config{MaxIters: 1000, Epsilon: 1e-4})
	require.NoError(t, err)

	ok, err := d.Run()
	assert.NoError(err)
	assert.True(ok)

	// 1/(k*(k+1)) drops below 1e-4 at k = 100
	assert.Equal(100, m.steps)
	assert.Equal(100, d.Iters())
	assert.Equal(101, m.expectations)

	trace := d.Trace()
	assert.Len(trace, 101)
	for i := 1; i < len(trace); i++ {
		assert.Greater(trace[i], trace[i-1])
	}
}

func TestIterateNoConvergence(t *testing.T) {
	assert := assert.New(t)

	m := &seqModel{ll: func(k int) float64 { return float64(k) }}

	ok, err := Iterate(m, Config{MaxIters: 50, Epsilon: 1e-8})
	assert.NoError(err)
	assert.False(ok)
	assert.Equal(50, m.steps)
	assert.Equal(50, m.expectations)
}

func TestIterateDecreasingLikelihood(t *testing.T) {
	m := &seqModel{ll: func(k int) float64 { return -float64(k) }}

	ok, err := Iterate(m, DefaultConfig())
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, m.steps)
}

func TestIterateZeroIters(t *testing.T) {
	m := &seqModel{ll: func(k int) float64 { return 0 }}

	ok, err := Iterate(m, Config{MaxIters: 0, Epsilon: 1e-8})
	assert.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 0, m.expectations)
}

func TestIterateErrors(t *testing.T) {
	assert := assert.New(t)

	eErr := errors.New("expectation failed")
	m := &seqModel{ll: func(k int) float64 { return 0 }, eErr: eErr}
	ok, err := Iterate(m, DefaultConfig())
	assert.False(ok)
	assert.True(errors.Is(err, eErr))

	mErr := errors.New("maximization failed")
	m = &seqModel{ll: func(k int) float64 { return float64(k) }, mErr: mErr}
	ok, err = Iterate(m, DefaultConfig())
	assert.False(ok)
	assert.True(errors.Is(err, mErr))
	assert.Equal(1, m.expectations)

	ok, err = Iterate(nil, DefaultConfig())
	assert.False(ok)
	assert.True(errors.Is(err, latent.ErrInvalidArgument))

	ok, err = Iterate(m, Config{MaxIters: -1})
	assert.False(ok)
	assert.True(errors.Is(err, latent.ErrInvalidArgument))
}

func TestDriverRerun(t *testing.T) {
	m := &seqModel{ll: func(k int) float64 { return float64(k) }}

	d, err := New(m, Config{MaxIters: 3, Epsilon: 1e-8})
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		ok, err := d.Run()
		assert.NoError(t, err)
		assert.False(t, ok)
		assert.Equal(t, 3, d.Iters())
		assert.Len(t, d.Trace(), 3)
	}
	assert.Equal(t, 6, m.steps)
}
