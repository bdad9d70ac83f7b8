package expreplay

import (
	"fmt"

	"golang.org/x/exp/rand"
)

// Type denotes which kind of buffer a Config creates
type Type string

const (
	UniformType     Type = "uniform"
	PrioritizedType Type = "prioritized"
)

// Config implements a specific configuration of an ExperienceReplayer.
// The priority fields are ignored for uniform buffers.
type Config struct {
	Type     Type `json:"type" mapstructure:"type"`
	Capacity int  `json:"capacity" mapstructure:"capacity"`

	Alpha         float64 `json:"alpha" mapstructure:"alpha"`
	Beta          float64 `json:"beta" mapstructure:"beta"`
	BetaIncrement float64 `json:"beta_increment" mapstructure:"beta_increment"`
	Epsilon       float64 `json:"epsilon" mapstructure:"epsilon"`
	MaxError      float64 `json:"max_error" mapstructure:"max_error"`
}

// DefaultConfig returns the configuration of a prioritized buffer with
// commonly used hyperparameters
func DefaultConfig() Config {
	return Config{
		Type:          PrioritizedType,
		Capacity:      100_000,
		Alpha:         0.6,
		Beta:          0.4,
		BetaIncrement: 0.001,
		Epsilon:       0.01,
		MaxError:      1.0,
	}
}

// Validate returns an error describing whether or not the
// configuration is valid.
func (c Config) Validate() error {
	if c.Capacity < 1 {
		return invalid("validate", fmt.Sprintf("capacity must be >= 1 "+
			"\n\twant(>=1)\n\thave(%v)", c.Capacity))
	}

	switch c.Type {
	case UniformType:
		return nil

	case PrioritizedType:
		if c.Alpha < 0 || c.Alpha > 1 {
			return invalid("validate", fmt.Sprintf("alpha must be in [0, 1]"+
				"\n\thave(%v)", c.Alpha))
		}
		if c.Beta < 0 || c.Beta > 1 {
			return invalid("validate", fmt.Sprintf("beta must be in [0, 1]"+
				"\n\thave(%v)", c.Beta))
		}
		if c.BetaIncrement < 0 {
			return invalid("validate", fmt.Sprintf("beta increment must be "+
				">= 0 \n\thave(%v)", c.BetaIncrement))
		}
		if !(c.Epsilon > 0) {
			return invalid("validate", fmt.Sprintf("epsilon must be > 0"+
				"\n\thave(%v)", c.Epsilon))
		}
		if !(c.MaxError > 0) {
			return invalid("validate", fmt.Sprintf("max error must be > 0"+
				"\n\thave(%v)", c.MaxError))
		}
		return nil

	default:
		return invalid("validate", fmt.Sprintf("unknown buffer type %q",
			c.Type))
	}
}

// String returns a description of the configured buffer
func (c Config) String() string {
	if c.Type == PrioritizedType {
		return fmt.Sprintf("%v: capacity=%v α=%v β=%v β_increment=%v ε=%v "+
			"max_error=%v", c.Type, c.Capacity, c.Alpha, c.Beta,
			c.BetaIncrement, c.Epsilon, c.MaxError)
	}
	return fmt.Sprintf("%v: capacity=%v", c.Type, c.Capacity)
}

// Create creates and returns the ExperienceReplayer described by c,
// drawing random numbers from a source seeded with seed.
func Create[T any](c Config, seed uint64) (ExperienceReplayer[T], error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	src := rand.NewSource(seed)
	if c.Type == UniformType {
		u, err := NewUniform[T](c.Capacity, src)
		if err != nil {
			return nil, err
		}
		return u, nil
	}

	p, err := NewPrioritized[T](c.Capacity, c.Alpha, c.Beta, c.BetaIncrement,
		c.Epsilon, c.MaxError, src)
	if err != nil {
		return nil, err
	}
	return p, nil
}
