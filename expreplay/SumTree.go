package expreplay

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/floats/scalar"
)

// sumTolerance is the tolerance Validate allows between a node and the
// sum of its children. Ancestors are recomputed from their children on
// every update, so a tree mutated only through Add and Update matches
// exactly.
const sumTolerance = 1e-9

// SumTree is an array-backed complete binary tree in which each leaf
// holds the priority of one slot of a circular store and each internal
// node holds the sum of its two children. It supports O(log n) priority
// updates and O(log n) selection of a slot with probability proportional
// to its priority.
//
// For a SumTree with capacity n, the tree has 2n-1 nodes. The root is
// node 0, the children of node i are nodes 2i+1 and 2i+2, and the
// leaves are the last n nodes, so that slot s is stored at leaf
// s+n-1. Leaves of slots that were never written hold priority 0 and
// can never be selected while the total priority is positive.
//
// A SumTree is not safe for concurrent use.
type SumTree[T any] struct {
	tree []float64
	data *ring[T]
}

// NewSumTree returns a new SumTree holding capacity slots
func NewSumTree[T any](capacity int) (*SumTree[T], error) {
	if capacity < 1 {
		return nil, invalid("newSumTree",
			fmt.Sprintf("capacity must be >= 1 \n\twant(>=1)\n\thave(%v)",
				capacity))
	}

	return &SumTree[T]{
		tree: make([]float64, 2*capacity-1),
		data: newRing[T](capacity),
	}, nil
}

// Capacity returns the number of slots in the tree
func (s *SumTree[T]) Capacity() int {
	return s.data.capacity()
}

// Len returns the number of slots that have been written
func (s *SumTree[T]) Len() int {
	return s.data.count()
}

// LeafIndex returns the index of the tree node holding slot's priority
func (s *SumTree[T]) LeafIndex(slot int) int {
	return slot + s.Capacity() - 1
}

// SlotIndex returns the slot whose priority is held by tree node leaf
func (s *SumTree[T]) SlotIndex(leaf int) int {
	return leaf - s.Capacity() + 1
}

// Add stores payload in the slot at the write cursor with the given
// priority, evicting the oldest payload once every slot is in use. The
// index of the leaf holding the payload's priority is returned.
func (s *SumTree[T]) Add(payload T, priority float64) int {
	leaf := s.LeafIndex(s.data.put(payload))
	s.Update(leaf, priority)
	return leaf
}

// Update sets the priority of a leaf and recomputes every ancestor of
// the leaf as the sum of its two children.
//
// Priorities must be finite and non-negative, and leaf must be a leaf
// index. Neither is checked unless built with the replaydebug tag.
func (s *SumTree[T]) Update(leaf int, priority float64) {
	if debug {
		if leaf < s.Capacity()-1 || leaf >= len(s.tree) {
			panic(fmt.Sprintf("update: node %v is not a leaf", leaf))
		}
		if priority < 0 || math.IsNaN(priority) || math.IsInf(priority, 0) {
			panic(fmt.Sprintf("update: illegal priority %v", priority))
		}
	}

	s.tree[leaf] = priority

	for node := leaf; node != 0; {
		node = (node - 1) / 2
		s.tree[node] = s.tree[2*node+1] + s.tree[2*node+2]
	}
}

// GetLeaf descends the tree to find the leaf at which the running sum
// of priorities reaches value. Value should be in [0, TotalPriority()).
// The leaf index, the payload stored at the leaf, and the leaf's
// priority are returned.
func (s *SumTree[T]) GetLeaf(value float64) (int, T, float64) {
	leaf, _ := s.getLeaf(value)
	return leaf, s.data.at(s.SlotIndex(leaf)), s.tree[leaf]
}

// getLeaf implements GetLeaf, additionally reporting whether a
// descent had to be redirected away from an empty subtree.
//
// Accumulated rounding can leave value slightly larger than the sum of
// the subtree it should land in. A subtree whose sum is 0 holds only
// unwritten slots, so the descent never enters one while its sibling
// has positive mass: value is clamped to the sibling's sum instead.
func (s *SumTree[T]) getLeaf(value float64) (int, bool) {
	node := 0
	guarded := false

	for {
		left := 2*node + 1
		right := left + 1
		if left >= len(s.tree) {
			return node, guarded
		}

		leftSum, rightSum := s.tree[left], s.tree[right]
		switch {
		case rightSum <= 0:
			if value > leftSum {
				value = leftSum
				guarded = true
			}
			node = left

		case leftSum <= 0:
			if value <= leftSum {
				guarded = true
			}
			node = right

		case value <= leftSum:
			node = left

		default:
			value -= leftSum
			if value > rightSum {
				value = rightSum
				guarded = true
			}
			node = right
		}
	}
}

// TotalPriority returns the sum of all priorities in the tree
func (s *SumTree[T]) TotalPriority() float64 {
	return s.tree[0]
}

// leaves returns the priorities of the first n slots
func (s *SumTree[T]) leaves(n int) []float64 {
	if n > s.Capacity() {
		n = s.Capacity()
	}
	start := s.Capacity() - 1
	return s.tree[start : start+n]
}

// MaxPriority returns the largest priority among the first validCount
// slots, or 0 if validCount <= 0
func (s *SumTree[T]) MaxPriority(validCount int) float64 {
	if validCount <= 0 {
		return 0
	}
	return floats.Max(s.leaves(validCount))
}

// MinPriority returns the smallest priority among the first validCount
// slots, or 0 if validCount <= 0
func (s *SumTree[T]) MinPriority(validCount int) float64 {
	if validCount <= 0 {
		return 0
	}
	return floats.Min(s.leaves(validCount))
}

// NodeValue returns the value stored at node i of the tree
func (s *SumTree[T]) NodeValue(i int) float64 {
	return s.tree[i]
}

// Validate checks that every internal node equals the sum of its
// children, within a relative tolerance, and that no node is negative
// or NaN. It is O(capacity).
func (s *SumTree[T]) Validate() error {
	if len(s.tree) != 2*s.Capacity()-1 {
		return fmt.Errorf("validate: tree size mismatch \n\twant(%v)\n\thave(%v)",
			2*s.Capacity()-1, len(s.tree))
	}

	for i, v := range s.tree {
		if v < 0 || math.IsNaN(v) {
			return fmt.Errorf("validate: node %v holds illegal value %v", i, v)
		}
	}

	for i := 0; i < s.Capacity()-1; i++ {
		sum := s.tree[2*i+1] + s.tree[2*i+2]
		if !scalar.EqualWithinAbsOrRel(s.tree[i], sum, sumTolerance,
			sumTolerance) {
			return fmt.Errorf("validate: node %v holds %v but its children "+
				"sum to %v", i, s.tree[i], sum)
		}
	}
	return nil
}

// String returns the string representation of the SumTree
func (s *SumTree[T]) String() string {
	var builder strings.Builder

	builder.WriteString(fmt.Sprintf("SumTree | Capacity: %v  |  Len: %v  |  "+
		"Total: %.4f \n", s.Capacity(), s.Len(), s.TotalPriority()))
	builder.WriteString(fmt.Sprintf("Leaves: %v", s.leaves(s.Capacity())))

	return builder.String()
}
