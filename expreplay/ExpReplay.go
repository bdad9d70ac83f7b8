// Package expreplay implements experience replay buffers.
//
// Two buffers are provided. Uniform is a circular store which samples
// its contents uniformly randomly. Prioritized stores a priority with
// each experience in a SumTree and samples in proportion to those
// priorities, returning importance sampling weights that correct for
// the bias this introduces. Learners feed refreshed priorities back
// through Update.
//
// Both buffers have a fixed capacity and evict the oldest experience
// once full. Neither buffer is safe for concurrent use; wrap a buffer
// with NewLocked to share it between goroutines.
package expreplay

import "fmt"

// ExperienceReplayer implements an experience replay buffer
type ExperienceReplayer[T any] interface {
	// Push adds an experience to the buffer, evicting the oldest
	// experience if the buffer is full
	Push(e *Experience[T]) error

	// Sample draws a batch of batchSize experiences from the buffer,
	// with replacement
	Sample(batchSize int) ([]Sample[T], error)

	// Update reports the absolute errors the learner computed on a
	// sampled batch. absErrors[i] belongs to samples[i].
	Update(samples []Sample[T], absErrors []float64) error

	// Size returns the current number of experiences in the buffer
	Size() int

	// Capacity returns the maximum number of experiences the buffer
	// can hold
	Capacity() int

	// Stats returns a snapshot of the buffer's state
	Stats() Stats
}

// Stats is a snapshot of the state of an experience replay buffer.
// The priority fields and Beta are zero for uniform buffers.
type Stats struct {
	Prioritized   bool
	Size          int
	Capacity      int
	Beta          float64
	TotalPriority float64
	MaxPriority   float64
	MinPriority   float64
}

// String returns the string representation of the Stats
func (s Stats) String() string {
	if !s.Prioritized {
		return fmt.Sprintf("Size: %v/%v", s.Size, s.Capacity)
	}
	return fmt.Sprintf("Size: %v/%v  |  β: %.4f  |  Total Priority: %.4f  |  "+
		"Priority Range: [%.4f, %.4f]", s.Size, s.Capacity, s.Beta,
		s.TotalPriority, s.MinPriority, s.MaxPriority)
}

// checkUpdate validates the arguments of an Update call on a buffer
// holding size experiences
func checkUpdate[T any](samples []Sample[T], absErrors []float64,
	size int) error {
	if len(samples) != len(absErrors) {
		return invalid("update", fmt.Sprintf("mismatched batch and error "+
			"lengths \n\twant(%v)\n\thave(%v)", len(samples), len(absErrors)))
	}

	for i, sample := range samples {
		if sample.Index < 0 || sample.Index >= size {
			return invalid("update", fmt.Sprintf("sample %v has index %v "+
				"outside [0, %v)", i, sample.Index, size))
		}
	}
	return nil
}
