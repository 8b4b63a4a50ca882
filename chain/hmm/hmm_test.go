package hmm

import (
	"errors"
	"math"
	"testing"

	latent "github.com/milosgajdos/go-latent"
	"github.com/milosgajdos/go-latent/em"
	"github.com/milosgajdos/go-latent/gauss"
	"github.com/milosgajdos/go-latent/rand"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

var _ latent.MarkovChain[Params] = (*HMM)(nil)

func testParams() Params {
	return Params{
		Init:  []float64{0.6, 0.4},
		Trans: mat.NewDense(2, 2, []float64{0.7, 0.3, 0.2, 0.8}),
		Means: []*mat.VecDense{
			mat.NewVecDense(1, []float64{-1}),
			mat.NewVecDense(1, []float64{2}),
		},
		Covs: []*mat.SymDense{
			mat.NewSymDense(1, []float64{1}),
			mat.NewSymDense(1, []float64{0.5}),
		},
	}
}

// paths enumerates all hidden state paths of the given length
func paths(k, steps int) [][]int {
	if steps == 0 {
		return [][]int{{}}
	}

	var out [][]int
	for _, p := range paths(k, steps-1) {
		for s := 0; s < k; s++ {
			path := append(append([]int{}, p...), s)
			out = append(out, path)
		}
	}

	return out
}

// pathLogProb returns joint log probability of path and observations y
func pathLogProb(t *testing.T, p Params, path []int, y *mat.Dense) float64 {
	e := make([]*gauss.Gaussian, len(p.Means))
	for i := range p.Means {
		g, err := gauss.NewFull(p.Means[i].RawVector().Data, p.Covs[i], false, nil)
		require.NoError(t, err)
		e[i] = g
	}

	lp := math.Log(p.Init[path[0]])
	for i, s := range path {
		if i > 0 {
			lp += math.Log(p.Trans.At(path[i-1], s))
		}
		lp += e[s].LogProb(mat.Col(nil, i, y))
	}

	return lp
}

func TestNew(t *testing.T) {
	assert := assert.New(t)

	h, err := New(testParams(), 10, rand.NewNormal(1), rand.NewUniform(1))
	assert.NoError(err)
	assert.NotNil(h)
	assert.Equal(10, h.Steps())

	// parameters are copied
	p := testParams()
	h, err = New(p, 10, nil, nil)
	require.NoError(t, err)
	p.Trans.Set(0, 0, 100)
	p.Means[0].SetVec(0, 100)
	assert.Equal(0.7, h.Params().Trans.At(0, 0))
	assert.Equal(-1.0, h.Params().Means[0].AtVec(0))

	for _, test := range []struct {
		name   string
		mutate func(p *Params)
		steps  int
		want   error
	}{
		{name: "steps", mutate: func(p *Params) {}, steps: 0, want: latent.ErrInvalidArgument},
		{name: "no states", mutate: func(p *Params) { p.Init = nil }, steps: 1, want: latent.ErrInvalidArgument},
		{name: "init sum", mutate: func(p *Params) { p.Init = []float64{0.5, 0.6} }, steps: 1, want: latent.ErrInvalidArgument},
		{name: "init negative", mutate: func(p *Params) { p.Init = []float64{1.5, -0.5} }, steps: 1, want: latent.ErrInvalidArgument},
		{name: "nil trans", mutate: func(p *Params) { p.Trans = nil }, steps: 1, want: latent.ErrInvalidArgument},
		{name: "trans dims", mutate: func(p *Params) { p.Trans = mat.NewDense(2, 3, nil) }, steps: 1, want: latent.ErrDimensionMismatch},
		{name: "trans row", mutate: func(p *Params) { p.Trans.Set(1, 1, 0.9) }, steps: 1, want: latent.ErrInvalidArgument},
		{name: "emissions", mutate: func(p *Params) { p.Covs = p.Covs[:1] }, steps: 1, want: latent.ErrDimensionMismatch},
		{name: "nil mean", mutate: func(p *Params) { p.Means[1] = nil }, steps: 1, want: latent.ErrInvalidArgument},
		{name: "nil cov", mutate: func(p *Params) { p.Covs[0] = nil }, steps: 1, want: latent.ErrInvalidArgument},
		{name: "mean dim", mutate: func(p *Params) { p.Means[1] = mat.NewVecDense(2, nil) }, steps: 1, want: latent.ErrDimensionMismatch},
		{name: "cov pd", mutate: func(p *Params) { p.Covs[0] = mat.NewSymDense(1, []float64{-1}) }, steps: 1, want: latent.ErrNotPositiveDefinite},
	} {
		p := testParams()
		test.mutate(&p)
		h, err := New(p, test.steps, nil, nil)
		assert.Nil(h, test.name)
		assert.True(errors.Is(err, test.want), test.name)
	}
}

func TestClone(t *testing.T) {
	assert := assert.New(t)

	p := testParams()
	c := p.Clone()
	c.Means[0].SetVec(0, 10)
	c.Covs[1].SetSym(0, 0, 10)
	c.Trans.Set(0, 0, 10)
	assert.Equal(-1.0, p.Means[0].AtVec(0))
	assert.Equal(0.5, p.Covs[1].At(0, 0))
	assert.Equal(0.7, p.Trans.At(0, 0))

	p.Trans = nil
	p.Means[1] = nil
	p.Covs[0] = nil
	c = p.Clone()
	assert.Nil(c.Trans)
	assert.Nil(c.Means[1])
	assert.Nil(c.Covs[0])
	assert.Equal(-1.0, c.Means[0].AtVec(0))
}

func TestGenerate(t *testing.T) {
	assert := assert.New(t)

	h1, err := New(testParams(), 50, rand.NewNormal(7), rand.NewUniform(7))
	require.NoError(t, err)
	h2, err := New(testParams(), 50, rand.NewNormal(7), rand.NewUniform(7))
	require.NoError(t, err)

	y1, err := h1.Generate()
	require.NoError(t, err)
	r, c := y1.Dims()
	assert.Equal(1, r)
	assert.Equal(50, c)

	path := h1.Path()
	assert.Len(path, 50)
	for _, s := range path {
		assert.True(s == 0 || s == 1)
	}

	y2, err := h2.Generate()
	require.NoError(t, err)
	assert.True(mat.Equal(y1, y2))
	assert.Equal(path, h2.Path())

	// deterministic transitions produce a fixed path
	p := testParams()
	p.Init = []float64{0, 1}
	p.Trans = mat.NewDense(2, 2, []float64{0, 1, 1, 0})
	h, err := New(p, 5, nil, nil)
	require.NoError(t, err)
	_, err = h.Generate()
	require.NoError(t, err)
	assert.Equal([]int{1, 0, 1, 0, 1}, h.Path())
}

func TestSetObservations(t *testing.T) {
	assert := assert.New(t)

	h, err := New(testParams(), 10, nil, nil)
	require.NoError(t, err)

	_, err = h.Expectation()
	assert.True(errors.Is(err, latent.ErrInvalidArgument))
	assert.True(errors.Is(h.Maximization(), latent.ErrInvalidArgument))
	_, err = h.Viterbi()
	assert.True(errors.Is(err, latent.ErrInvalidArgument))

	assert.True(errors.Is(h.SetObservations(mat.NewDense(2, 3, nil)), latent.ErrDimensionMismatch))
	assert.NoError(h.SetObservations(mat.NewDense(1, 1, []float64{0.5})))

	// maximization requires a fresh expectation
	_, err = h.Expectation()
	require.NoError(t, err)
	require.NoError(t, h.Maximization())
	assert.True(errors.Is(h.Maximization(), latent.ErrInvalidArgument))
}

func TestExpectationMatchesEnumeration(t *testing.T) {
	assert := assert.New(t)

	p := testParams()
	y := mat.NewDense(1, 3, []float64{-0.5, 1.7, 2.4})

	h, err := New(p, 3, nil, nil)
	require.NoError(t, err)
	require.NoError(t, h.SetObservations(y))

	ll, err := h.Expectation()
	require.NoError(t, err)

	total := 0.0
	for _, path := range paths(2, 3) {
		total += math.Exp(pathLogProb(t, p, path, y))
	}
	assert.InDelta(math.Log(total), ll, 1e-10)

	// state posteriors are probabilities
	k, steps := h.stats.gamma.Dims()
	for s := 0; s < steps; s++ {
		sum := 0.0
		for i := 0; i < k; i++ {
			sum += h.stats.gamma.At(i, s)
		}
		assert.InDelta(1.0, sum, 1e-12)
	}
	assert.InDelta(float64(steps-1), mat.Sum(h.stats.xi), 1e-12)
}

func TestExpectationFarObservations(t *testing.T) {
	h, err := New(testParams(), 3, nil, nil)
	require.NoError(t, err)

	// emission densities underflow without rescaling
	require.NoError(t, h.SetObservations(mat.NewDense(1, 3, []float64{60, -60, 60})))
	ll, err := h.Expectation()
	require.NoError(t, err)
	assert.False(t, math.IsInf(ll, 0))
	assert.False(t, math.IsNaN(ll))
}

func TestViterbi(t *testing.T) {
	assert := assert.New(t)

	p := testParams()
	y := mat.NewDense(1, 4, []float64{-1.2, 0.4, 2.1, -0.3})

	h, err := New(p, 4, nil, nil)
	require.NoError(t, err)
	require.NoError(t, h.SetObservations(y))

	got, err := h.Viterbi()
	require.NoError(t, err)

	var want []int
	best := math.Inf(-1)
	for _, path := range paths(2, 4) {
		if lp := pathLogProb(t, p, path, y); lp > best {
			best = lp
			want = path
		}
	}
	assert.Equal(want, got)
}

func TestEM(t *testing.T) {
	assert := assert.New(t)

	truth := Params{
		Init:  []float64{0.5, 0.5},
		Trans: mat.NewDense(2, 2, []float64{0.9, 0.1, 0.1, 0.9}),
		Means: []*mat.VecDense{
			mat.NewVecDense(1, []float64{-5}),
			mat.NewVecDense(1, []float64{5}),
		},
		Covs: []*mat.SymDense{
			mat.NewSymDense(1, []float64{1}),
			mat.NewSymDense(1, []float64{1}),
		},
	}

	gen, err := New(truth, 500, rand.NewNormal(42), rand.NewUniform(42))
	require.NoError(t, err)
	y, err := gen.Generate()
	require.NoError(t, err)

	start := Params{
		Init:  []float64{0.5, 0.5},
		Trans: mat.NewDense(2, 2, []float64{0.5, 0.5, 0.5, 0.5}),
		Means: []*mat.VecDense{
			mat.NewVecDense(1, []float64{-1}),
			mat.NewVecDense(1, []float64{1}),
		},
		Covs: []*mat.SymDense{
			mat.NewSymDense(1, []float64{4}),
			mat.NewSymDense(1, []float64{4}),
		},
	}

	h, err := New(start, 500, nil, nil)
	require.NoError(t, err)
	require.NoError(t, h.SetObservations(y))

	d, err := em.New(h, em.Config{MaxIters: 200, Epsilon: 1e-8})
	require.NoError(t, err)
	_, err = d.Run()
	require.NoError(t, err)

	trace := d.Trace()
	require.True(t, len(trace) > 2)
	for i := 1; i < len(trace); i++ {
		assert.GreaterOrEqual(trace[i], trace[i-1]-1e-3)
	}

	fit := h.Params()
	assert.InDelta(-5.0, fit.Means[0].AtVec(0), 0.3)
	assert.InDelta(5.0, fit.Means[1].AtVec(0), 0.3)
	assert.InDelta(0.9, fit.Trans.At(0, 0), 0.08)
	assert.InDelta(0.9, fit.Trans.At(1, 1), 0.08)

	path, err := h.Viterbi()
	require.NoError(t, err)
	assert.Equal(gen.Path(), path)
}

func TestString(t *testing.T) {
	h, err := New(testParams(), 5, nil, nil)
	require.NoError(t, err)
	assert.Contains(t, h.String(), "HMM{")
}
