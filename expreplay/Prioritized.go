package expreplay

import (
	"fmt"
	"math"

	"github.com/rs/zerolog"
	"golang.org/x/exp/rand"

	"github.com/samuelfneumann/goreplay/utils/floatutils"
)

// Prioritized implements an ExperienceReplayer which samples each
// experience with probability proportional to its priority, following
// https://arxiv.org/abs/1511.05952.
//
// Newly pushed experiences receive the largest priority currently in
// the buffer, so that each is likely to be sampled at least once.
// After a learner computes absolute errors on a sampled batch, it calls
// Update to set the priority of each sampled experience to
//
//	min(|error| + ε, maxError)^α
//
// α controls how strongly priorities shape the sampling distribution:
// α = 0 is uniform sampling, α = 1 is fully proportional. Each sample
// carries an importance sampling weight
//
//	(N * P(i))^-β / max_j (N * P(j))^-β
//
// which lies in (0, 1]. β is annealed linearly toward 1 by
// betaIncrement on every call to Sample.
//
// Batches are drawn by stratified sampling: the total priority is
// split into batchSize equal segments and one experience is drawn from
// each.
type Prioritized[T any] struct {
	tree    *SumTree[*Experience[T]]
	sampler *stratifiedSelector

	alpha         float64 // Priority exponent α
	beta          float64 // Importance sampling exponent β
	betaIncrement float64 // Per Sample() increment of β
	epsilon       float64 // Added to errors so no priority is 0
	maxError      float64 // Errors are clipped to this value

	logger zerolog.Logger
}

// NewPrioritized returns a new Prioritized buffer holding at most
// capacity experiences. Random numbers are drawn from src, so two
// buffers with identically seeded sources sample identically.
func NewPrioritized[T any](capacity int, alpha, beta, betaIncrement,
	epsilon, maxError float64, src rand.Source) (*Prioritized[T], error) {
	const op = "newPrioritized"

	if alpha < 0 || alpha > 1 {
		return nil, invalid(op, fmt.Sprintf("α must be in [0, 1] \n\t"+
			"have(%v)", alpha))
	}
	if beta < 0 || beta > 1 {
		return nil, invalid(op, fmt.Sprintf("β must be in [0, 1] \n\t"+
			"have(%v)", beta))
	}
	if betaIncrement < 0 {
		return nil, invalid(op, fmt.Sprintf("β increment must be >= 0 \n\t"+
			"have(%v)", betaIncrement))
	}
	if !(epsilon > 0) {
		return nil, invalid(op, fmt.Sprintf("ε must be > 0 \n\thave(%v)",
			epsilon))
	}
	if !(maxError > 0) {
		return nil, invalid(op, fmt.Sprintf("max error must be > 0 \n\t"+
			"have(%v)", maxError))
	}
	if src == nil {
		return nil, invalid(op, "nil random source")
	}

	tree, err := NewSumTree[*Experience[T]](capacity)
	if err != nil {
		return nil, newError(op, err)
	}

	return &Prioritized[T]{
		tree:          tree,
		sampler:       newStratifiedSelector(src),
		alpha:         alpha,
		beta:          beta,
		betaIncrement: betaIncrement,
		epsilon:       epsilon,
		maxError:      maxError,
		logger:        zerolog.Nop(),
	}, nil
}

// SetLogger sets the logger the buffer reports to. By default nothing
// is logged.
func (p *Prioritized[T]) SetLogger(logger zerolog.Logger) {
	p.logger = logger
}

// Push adds an experience to the buffer with the largest priority
// currently in the buffer, or with priority maxError if the buffer is
// empty.
func (p *Prioritized[T]) Push(e *Experience[T]) error {
	if e == nil {
		return invalid("push", "nil experience")
	}

	priority := p.tree.MaxPriority(p.Size())
	if priority == 0 {
		priority = p.maxError
	}

	p.tree.Add(e, priority)
	return nil
}

// Sample draws batchSize experiences from the buffer in proportion to
// their priorities and anneals β. Each returned Sample carries its
// importance sampling weight.
//
// The Index of each returned Sample must be passed back unchanged to
// Update.
func (p *Prioritized[T]) Sample(batchSize int) ([]Sample[T], error) {
	if batchSize < 1 {
		return nil, invalid("sample", fmt.Sprintf("batch size must be >= 1 "+
			"\n\twant(>=1)\n\thave(%v)", batchSize))
	}
	if p.Size() == 0 {
		return nil, newError("sample", ErrEmptyBuffer)
	}

	p.anneal()

	// The weight (N * P(i))^-β / (N * P_min)^-β simplifies to
	// (p_min / p_i)^β, since N and the total priority cancel
	minPriority := p.tree.MinPriority(p.Size())
	values := p.sampler.values(batchSize, p.tree.TotalPriority())

	batch := make([]Sample[T], batchSize)
	for i, value := range values {
		leaf, guarded := p.tree.getLeaf(value)
		if guarded {
			p.logger.Trace().
				Float64("value", value).
				Float64("total_priority", p.tree.TotalPriority()).
				Int("leaf", leaf).
				Msg("sum tree descent redirected from empty subtree")
		}

		slot := p.tree.SlotIndex(leaf)
		priority := p.tree.NodeValue(leaf)
		batch[i] = Sample[T]{
			Experience: p.tree.data.at(slot),
			Weight:     math.Pow(minPriority/priority, p.beta),
			Index:      slot,
		}
	}
	return batch, nil
}

// anneal moves β one increment toward 1
func (p *Prioritized[T]) anneal() {
	if p.beta >= 1 {
		return
	}

	p.beta += p.betaIncrement
	if p.beta >= 1 {
		p.beta = 1
		p.logger.Debug().Msg("importance sampling β reached 1")
	}
}

// Update sets the priority of each sampled experience from the
// absolute error the learner computed on it. absErrors[i] belongs to
// samples[i]. If the arguments are invalid, no priority is changed.
//
// Priorities are written to the slot named by each Sample's Index. If
// that slot was overwritten by Push after the batch was sampled, the
// priority of the new occupant is changed instead. Learners that push
// between Sample and Update accept this staleness.
func (p *Prioritized[T]) Update(samples []Sample[T], absErrors []float64) error {
	if err := checkUpdate(samples, absErrors, p.Size()); err != nil {
		return err
	}
	for i, absError := range absErrors {
		if math.IsNaN(absError) {
			return invalid("update", fmt.Sprintf("error %v is NaN", i))
		}
	}

	for i, sample := range samples {
		clipped := floatutils.Clip(math.Abs(absErrors[i])+p.epsilon, 0,
			p.maxError)
		priority := math.Pow(clipped, p.alpha)
		p.tree.Update(p.tree.LeafIndex(sample.Index), priority)
	}
	return nil
}

// Size returns the current number of experiences in the buffer
func (p *Prioritized[T]) Size() int {
	return p.tree.Len()
}

// Capacity returns the maximum number of experiences in the buffer
func (p *Prioritized[T]) Capacity() int {
	return p.tree.Capacity()
}

// Beta returns the current importance sampling exponent β
func (p *Prioritized[T]) Beta() float64 {
	return p.beta
}

// TotalPriority returns the sum of the priorities of all experiences
// in the buffer
func (p *Prioritized[T]) TotalPriority() float64 {
	return p.tree.TotalPriority()
}

// Stats returns a snapshot of the buffer's state
func (p *Prioritized[T]) Stats() Stats {
	return Stats{
		Prioritized:   true,
		Size:          p.Size(),
		Capacity:      p.Capacity(),
		Beta:          p.beta,
		TotalPriority: p.tree.TotalPriority(),
		MaxPriority:   p.tree.MaxPriority(p.Size()),
		MinPriority:   p.tree.MinPriority(p.Size()),
	}
}

// String returns a description of the buffer and its parameters
func (p *Prioritized[T]) String() string {
	return fmt.Sprintf("Prioritized: capacity=%v α=%v β=%v β_increment=%v "+
		"ε=%v max_error=%v", p.Capacity(), p.alpha, p.beta, p.betaIncrement,
		p.epsilon, p.maxError)
}
