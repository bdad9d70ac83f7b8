package expreplay

import "fmt"

// Experience is a single recorded environment transition: the agent
// took Action in State, received Reward, and ended up in NextState.
// Done marks NextState as terminal.
//
// The replay buffers never inspect or modify an Experience once it has
// been pushed. Callers must not modify it either.
type Experience[T any] struct {
	State     T
	Action    T
	NextState T
	Reward    float64
	Done      bool
}

// NewExperience returns a new *Experience
func NewExperience[T any](state, action T, reward float64, nextState T,
	done bool) *Experience[T] {
	return &Experience[T]{
		State:     state,
		Action:    action,
		NextState: nextState,
		Reward:    reward,
		Done:      done,
	}
}

// Sample is one element of a batch drawn from a replay buffer.
//
// Index is the slot of the buffer that held Experience when it was
// sampled. It must be handed back unchanged to Update. Weight is the
// importance sampling weight the learner should scale this sample's
// update by; it is always 1 for uniform replay.
type Sample[T any] struct {
	Experience *Experience[T]
	Weight     float64
	Index      int
}

// String returns the string representation of the Sample
func (s Sample[T]) String() string {
	return fmt.Sprintf("Sample | Index: %v  |  Weight: %.4f  |  Reward: %.2f"+
		"  |  Done: %v", s.Index, s.Weight, s.Experience.Reward,
		s.Experience.Done)
}
