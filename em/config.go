package em

import (
	"errors"
	"fmt"
	"io"
	"math"

	latent "github.com/milosgajdos/go-latent"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultMaxIters is default maximum number of EM iterations
	DefaultMaxIters = 10000
	// DefaultEpsilon is default log-likelihood convergence tolerance
	DefaultEpsilon = 1e-8
)

// Config is EM driver configuration
type Config struct {
	// MaxIters is maximum number of EM iterations
	MaxIters int `yaml:"max_iters"`
	// Epsilon is convergence tolerance: EM converges once
	// the log-likelihood increases by less than Epsilon
	Epsilon float64 `yaml:"epsilon"`
}

// DefaultConfig returns default EM configuration
func DefaultConfig() Config {
	return Config{
		MaxIters: DefaultMaxIters,
		Epsilon:  DefaultEpsilon,
	}
}

// Validate checks the configuration and returns error if it's invalid.
func (c Config) Validate() error {
	if c.MaxIters < 0 {
		return fmt.Errorf("%w: max iterations: %d", latent.ErrInvalidArgument, c.MaxIters)
	}

	if math.IsNaN(c.Epsilon) {
		return fmt.Errorf("%w: epsilon: %v", latent.ErrInvalidArgument, c.Epsilon)
	}

	return nil
}

// LoadConfig decodes YAML configuration from r and returns it.
// Fields missing in r keep their default values.
// It returns error if r can't be decoded or if the decoded configuration is invalid.
func LoadConfig(r io.Reader) (Config, error) {
	c := DefaultConfig()

	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("failed to decode EM config: %w", err)
	}

	if err := c.Validate(); err != nil {
		return Config{}, err
	}

	return c, nil
}
