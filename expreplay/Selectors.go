package expreplay

import (
	"golang.org/x/exp/rand"

	"gonum.org/v1/gonum/stat/distuv"
)

// uniformSelector selects slots of a replay buffer uniformly randomly,
// with replacement
type uniformSelector struct {
	rng *rand.Rand
}

// newUniformSelector returns a new uniformSelector drawing from src
func newUniformSelector(src rand.Source) *uniformSelector {
	return &uniformSelector{rng: rand.New(src)}
}

// choose selects n slots from [0, size). Size must be positive.
func (u *uniformSelector) choose(n, size int) []int {
	selected := make([]int, n)
	for i := range selected {
		selected[i] = u.rng.Intn(size)
	}
	return selected
}

// stratifiedSelector draws values for prefix-sum lookups in a SumTree.
// The total priority mass is split into equal-width segments, one per
// element of the batch, and one value is drawn uniformly from each
// segment. This guarantees that every region of the priority mass is
// represented in each batch.
type stratifiedSelector struct {
	src rand.Source
}

// newStratifiedSelector returns a new stratifiedSelector drawing from
// src
func newStratifiedSelector(src rand.Source) *stratifiedSelector {
	return &stratifiedSelector{src: src}
}

// values returns n values, the i-th drawn uniformly from
// [i*total/n, (i+1)*total/n)
func (s *stratifiedSelector) values(n int, total float64) []float64 {
	segment := total / float64(n)

	values := make([]float64, n)
	for i := range values {
		dist := distuv.Uniform{
			Min: segment * float64(i),
			Max: segment * float64(i+1),
			Src: s.src,
		}
		values[i] = dist.Rand()
	}
	return values
}
