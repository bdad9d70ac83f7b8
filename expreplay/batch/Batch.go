// Package batch lays out batches sampled from experience replay buffers
// of vector experiences for a learner, as flat slices and as tensors
package batch

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gorgonia.org/tensor"

	"github.com/samuelfneumann/goreplay/expreplay"
	"github.com/samuelfneumann/goreplay/timestep"
)

// NewTransition returns the Experience of taking action at step and
// arriving at next. The reward is that received on next, and the
// experience is done if next ends its episode.
func NewTransition(step timestep.TimeStep, action mat.Vector,
	next timestep.TimeStep) *expreplay.Experience[mat.Vector] {
	return expreplay.NewExperience(step.Observation, action, next.Reward,
		next.Observation, next.Last())
}

// Batch is a batch of vector experiences laid out row-major, one row
// per sample, ready to be fed to a learner
type Batch struct {
	Len         int // Number of samples in the batch
	FeatureSize int // Length of each state vector
	ActionSize  int // Length of each action vector

	States     []float64 // Len x FeatureSize
	Actions    []float64 // Len x ActionSize
	NextStates []float64 // Len x FeatureSize
	Rewards    []float64
	Dones      []bool

	Weights []float64 // Importance sampling weights
	Indices []int     // Indices to pass back to Update
}

// Flatten copies a sampled batch of vector experiences into a Batch.
// Every state and next state must have the same length, as must every
// action.
func Flatten(samples []expreplay.Sample[mat.Vector]) (Batch, error) {
	if len(samples) == 0 {
		return Batch{}, invalid("empty batch")
	}
	for i, sample := range samples {
		e := sample.Experience
		if e == nil || e.State == nil || e.Action == nil || e.NextState == nil {
			return Batch{}, invalid(fmt.Sprintf("sample %v is "+
				"missing a vector", i))
		}
	}

	first := samples[0].Experience
	featureSize := first.State.Len()
	actionSize := first.Action.Len()
	n := len(samples)

	b := Batch{
		Len:         n,
		FeatureSize: featureSize,
		ActionSize:  actionSize,
		States:      make([]float64, n*featureSize),
		Actions:     make([]float64, n*actionSize),
		NextStates:  make([]float64, n*featureSize),
		Rewards:     make([]float64, n),
		Dones:       make([]bool, n),
		Weights:     make([]float64, n),
		Indices:     make([]int, n),
	}

	for i, sample := range samples {
		e := sample.Experience
		if e.State.Len() != featureSize || e.NextState.Len() != featureSize {
			return Batch{}, invalid(fmt.Sprintf("invalid feature "+
				"size in sample %v \n\twant(%v)\n\thave(%v, %v)", i,
				featureSize, e.State.Len(), e.NextState.Len()))
		}
		if e.Action.Len() != actionSize {
			return Batch{}, invalid(fmt.Sprintf("invalid action "+
				"size in sample %v \n\twant(%v)\n\thave(%v)", i, actionSize,
				e.Action.Len()))
		}

		mat.Col(b.States[i*featureSize:(i+1)*featureSize], 0, e.State)
		mat.Col(b.NextStates[i*featureSize:(i+1)*featureSize], 0, e.NextState)
		mat.Col(b.Actions[i*actionSize:(i+1)*actionSize], 0, e.Action)

		b.Rewards[i] = e.Reward
		b.Dones[i] = e.Done
		b.Weights[i] = sample.Weight
		b.Indices[i] = sample.Index
	}
	return b, nil
}

// StateTensor returns the states of the batch as a tensor of shape
// (Len, FeatureSize). The tensor shares its backing data with the
// Batch.
func (b Batch) StateTensor() *tensor.Dense {
	return tensor.New(tensor.WithShape(b.Len, b.FeatureSize),
		tensor.WithBacking(b.States))
}

// NextStateTensor returns the next states of the batch as a tensor of
// shape (Len, FeatureSize), sharing its backing data with the Batch
func (b Batch) NextStateTensor() *tensor.Dense {
	return tensor.New(tensor.WithShape(b.Len, b.FeatureSize),
		tensor.WithBacking(b.NextStates))
}

// ActionTensor returns the actions of the batch as a tensor of shape
// (Len, ActionSize), sharing its backing data with the Batch
func (b Batch) ActionTensor() *tensor.Dense {
	return tensor.New(tensor.WithShape(b.Len, b.ActionSize),
		tensor.WithBacking(b.Actions))
}

// WeightTensor returns the importance sampling weights of the batch as
// a tensor of shape (Len), sharing its backing data with the Batch
func (b Batch) WeightTensor() *tensor.Dense {
	return tensor.New(tensor.WithShape(b.Len), tensor.WithBacking(b.Weights))
}

// invalid returns an error for Flatten that matches
// expreplay.ErrInvalidArgument
func invalid(msg string) error {
	return &expreplay.ExpReplayError{
		Op:  "flatten",
		Err: fmt.Errorf("%w: %v", expreplay.ErrInvalidArgument, msg),
	}
}
