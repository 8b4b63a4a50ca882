package rand

import (
	"fmt"
	"sort"

	latent "github.com/milosgajdos/go-latent"
	rnd "golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Uniform is a source of draws from the unit interval [0,1)
type Uniform interface {
	// Rand returns a single uniform draw
	Rand() float64
}

// NewNormal returns a standard Normal (aka Gaussian) distribution seeded with seed.
// The returned value satisfies latent.Rander.
func NewNormal(seed uint64) distuv.Normal {
	return distuv.Normal{
		Mu:    0,
		Sigma: 1,
		Src:   rnd.NewSource(seed),
	}
}

// NewUniform returns a unit Uniform distribution seeded with seed.
func NewUniform(seed uint64) distuv.Uniform {
	return distuv.Uniform{
		Min: 0,
		Max: 1,
		Src: rnd.NewSource(seed),
	}
}

// NormalN overwrites every element of m with an independent draw from src.
// If src is nil the global gonum unit normal source is used.
// It panics if m is nil.
func NormalN(src latent.Rander, m *mat.Dense) {
	if src == nil {
		src = distuv.UnitNormal
	}

	rows, cols := m.Dims()
	for r := 0; r < rows; r++ {
		row := m.RawRowView(r)
		for c := 0; c < cols; c++ {
			row[c] = src.Rand()
		}
	}
}

// RouletteDrawN draws n numbers randomly from a probability mass function (PMF) defined by weights in p.
// RouletteDrawN implements the Roulette Wheel Draw a.k.a. Fitness Proportionate Selection:
// - https://en.wikipedia.org/wiki/Fitness_proportionate_selection
// - http://www.keithschwarz.com/darts-dice-coins/
// It returns a slice of n indices into the vector p.
// If u is nil the global gonum unit uniform source is used.
// It fails with error if p is empty or nil or if n is negative.
func RouletteDrawN(p []float64, n int, u Uniform) ([]int, error) {
	if len(p) == 0 {
		return nil, fmt.Errorf("%w: probability weights: %v", latent.ErrInvalidArgument, p)
	}

	if n < 0 {
		return nil, fmt.Errorf("%w: draw count: %d", latent.ErrInvalidArgument, n)
	}

	if u == nil {
		u = distuv.UnitUniform
	}

	// Initialization: create the discrete CDF
	// We know that cdf is sorted in ascending order
	cdf := make([]float64, len(p))
	floats.CumSum(cdf, p)

	// Generation:
	// 1. Generate a uniformly-random value x in the range [0,1)
	// 2. Using a binary search, find the index of the smallest element in cdf larger than x
	var val float64
	indices := make([]int, n)
	for i := range indices {
		// multiply the sample with the largest CDF value; easier than normalizing to [0,1)
		val = u.Rand() * cdf[len(cdf)-1]
		// Search returns the smallest index i such that cdf[i] > val
		indices[i] = sort.Search(len(cdf), func(i int) bool { return cdf[i] > val })
	}

	return indices, nil
}

// RouletteDraw draws a single index from the PMF defined by weights in p.
// It fails with error if p is empty or nil.
func RouletteDraw(p []float64, u Uniform) (int, error) {
	indices, err := RouletteDrawN(p, 1, u)
	if err != nil {
		return 0, err
	}

	return indices[0], nil
}
