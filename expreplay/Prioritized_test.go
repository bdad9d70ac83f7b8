package expreplay

import (
	"bytes"
	"math"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"
)

// prioritizedArgs holds the arguments of NewPrioritized
type prioritizedArgs struct {
	capacity      int
	alpha         float64
	beta          float64
	betaIncrement float64
	epsilon       float64
	maxError      float64
}

func defaultArgs(capacity int) prioritizedArgs {
	return prioritizedArgs{capacity, 0.6, 0.4, 0.001, 0.01, 1.0}
}

// newPrioritized returns a Prioritized buffer holding experiences whose
// rewards are 0, 1, ..., pushes-1
func newPrioritized(t testing.TB, args prioritizedArgs, pushes int,
	seed uint64) *Prioritized[int] {
	p, err := NewPrioritized[int](args.capacity, args.alpha, args.beta,
		args.betaIncrement, args.epsilon, args.maxError, rand.NewSource(seed))
	require.NoError(t, err)

	for i := 0; i < pushes; i++ {
		require.NoError(t, p.Push(NewExperience(i, 0, float64(i), i+1, false)))
	}
	return p
}

// samplesAt returns samples referring to the given slots
func samplesAt(slots ...int) []Sample[int] {
	samples := make([]Sample[int], len(slots))
	for i, slot := range slots {
		samples[i] = Sample[int]{Index: slot}
	}
	return samples
}

func TestNewPrioritized_Invalid(t *testing.T) {
	tests := map[string]prioritizedArgs{
		"capacity":           {0, 0.6, 0.4, 0.001, 0.01, 1},
		"negative alpha":     {10, -0.1, 0.4, 0.001, 0.01, 1},
		"alpha above 1":      {10, 1.1, 0.4, 0.001, 0.01, 1},
		"negative beta":      {10, 0.6, -0.4, 0.001, 0.01, 1},
		"beta above 1":       {10, 0.6, 1.4, 0.001, 0.01, 1},
		"beta increment":     {10, 0.6, 0.4, -0.001, 0.01, 1},
		"zero epsilon":       {10, 0.6, 0.4, 0.001, 0, 1},
		"NaN epsilon":        {10, 0.6, 0.4, 0.001, math.NaN(), 1},
		"zero max error":     {10, 0.6, 0.4, 0.001, 0.01, 0},
		"negative max error": {10, 0.6, 0.4, 0.001, 0.01, -1},
	}

	for name, args := range tests {
		t.Run(name, func(t *testing.T) {
			p, err := NewPrioritized[int](args.capacity, args.alpha, args.beta,
				args.betaIncrement, args.epsilon, args.maxError,
				rand.NewSource(1))
			assert.Nil(t, p)
			assert.True(t, IsInvalidArgument(err), "%v", err)
		})
	}

	_, err := NewPrioritized[int](10, 0.6, 0.4, 0.001, 0.01, 1, nil)
	assert.True(t, IsInvalidArgument(err))
}

func TestPrioritized_PushNil(t *testing.T) {
	p := newPrioritized(t, defaultArgs(4), 0, 1)

	assert.True(t, IsInvalidArgument(p.Push(nil)))
	assert.Equal(t, 0, p.Size())
	assert.Equal(t, 0.0, p.TotalPriority())
	assert.Equal(t, 0, p.tree.data.cursor())
}

func TestPrioritized_PushPriority(t *testing.T) {
	args := defaultArgs(4)
	args.alpha = 1
	args.maxError = 2
	p := newPrioritized(t, args, 2, 1)

	// The first experiences receive maxError
	assert.Equal(t, 4.0, p.TotalPriority())

	require.NoError(t, p.Update(samplesAt(0, 1), []float64{0, 0}))
	assert.InDelta(t, 0.02, p.TotalPriority(), 1e-12)

	// Later experiences receive the largest priority in the buffer
	require.NoError(t, p.Push(NewExperience(2, 0, 2, 3, false)))
	assert.InDelta(t, 0.03, p.TotalPriority(), 1e-12)

	require.NoError(t, p.Update(samplesAt(0), []float64{0.5}))
	require.NoError(t, p.Push(NewExperience(3, 0, 3, 4, false)))
	assert.InDelta(t, 0.51, p.tree.NodeValue(p.tree.LeafIndex(3)), 1e-12)
	assert.InDelta(t, 1.04, p.TotalPriority(), 1e-12)
	require.NoError(t, p.tree.Validate())
}

func TestPrioritized_Eviction(t *testing.T) {
	args := defaultArgs(4)
	args.alpha = 1
	p := newPrioritized(t, args, 6, 1)

	assert.Equal(t, 4, p.Size())
	rewards := []float64{4, 5, 2, 3}
	for slot, reward := range rewards {
		assert.Equal(t, reward, p.tree.data.at(slot).Reward)
	}

	batch, err := p.Sample(100)
	require.NoError(t, err)
	for _, sample := range batch {
		assert.GreaterOrEqual(t, sample.Experience.Reward, 2.0)
		assert.Equal(t, sample.Experience, p.tree.data.at(sample.Index))
	}
}

func TestPrioritized_EvictionReplacesPriority(t *testing.T) {
	args := defaultArgs(2)
	args.alpha = 1
	p := newPrioritized(t, args, 2, 1)

	require.NoError(t, p.Update(samplesAt(0), []float64{0}))
	assert.InDelta(t, 1.01, p.TotalPriority(), 1e-12)

	// Slot 0 is evicted and its priority replaced by the maximum
	require.NoError(t, p.Push(NewExperience(2, 0, 2, 3, false)))
	assert.InDelta(t, 2.0, p.TotalPriority(), 1e-12)
	assert.Equal(t, 2, p.Size())
}

func TestPrioritized_SampleErrors(t *testing.T) {
	p := newPrioritized(t, defaultArgs(4), 0, 1)

	_, err := p.Sample(2)
	assert.True(t, IsEmptyBuffer(err))
	assert.Equal(t, 0.4, p.Beta())

	require.NoError(t, p.Push(NewExperience(0, 0, 0, 0, false)))
	_, err = p.Sample(0)
	assert.True(t, IsInvalidArgument(err))
	assert.Equal(t, 0.4, p.Beta())
}

func TestPrioritized_BetaAnnealing(t *testing.T) {
	args := defaultArgs(4)
	args.betaIncrement = 0.25
	p := newPrioritized(t, args, 4, 1)

	var buf bytes.Buffer
	p.SetLogger(zerolog.New(&buf).Level(zerolog.DebugLevel))

	for _, want := range []float64{0.65, 0.9, 1, 1, 1} {
		_, err := p.Sample(2)
		require.NoError(t, err)
		assert.InDelta(t, want, p.Beta(), 1e-12)
	}
	assert.Equal(t, 1, strings.Count(buf.String(), "reached 1"))
}

func TestPrioritized_WeightsBounded(t *testing.T) {
	p := newPrioritized(t, defaultArgs(50), 50, 1)
	rng := rand.New(rand.NewSource(2))

	for i := 0; i < 100; i++ {
		batch, err := p.Sample(32)
		require.NoError(t, err)

		absErrors := make([]float64, len(batch))
		for j, sample := range batch {
			assert.Greater(t, sample.Weight, 0.0)
			assert.LessOrEqual(t, sample.Weight, 1.0)
			absErrors[j] = rng.ExpFloat64()
		}
		require.NoError(t, p.Update(batch, absErrors))
	}
}

func TestPrioritized_Weights(t *testing.T) {
	args := prioritizedArgs{2, 1, 1, 0, 0.01, 1}
	p := newPrioritized(t, args, 2, 1)
	require.NoError(t, p.Update(samplesAt(0, 1), []float64{0.09, 0.39}))

	batch, err := p.Sample(100)
	require.NoError(t, err)
	for _, sample := range batch {
		if sample.Index == 0 {
			assert.Equal(t, 1.0, sample.Weight)
		} else {
			assert.InDelta(t, 0.25, sample.Weight, 1e-12)
		}
	}

	// With β = 0, no correction is applied
	args.beta = 0
	p = newPrioritized(t, args, 2, 1)
	require.NoError(t, p.Update(samplesAt(0, 1), []float64{0.09, 0.39}))
	batch, err = p.Sample(100)
	require.NoError(t, err)
	for _, sample := range batch {
		assert.Equal(t, 1.0, sample.Weight)
	}
}

// With equal priorities, each stratum of a batch as large as the
// buffer covers exactly one slot
func TestPrioritized_StratifiedCoverage(t *testing.T) {
	const (
		capacity = 6
		trials   = 10_000
	)
	p := newPrioritized(t, defaultArgs(capacity), capacity, 1)

	counts := make([]float64, capacity)
	for i := 0; i < trials; i++ {
		batch, err := p.Sample(capacity)
		require.NoError(t, err)
		for _, sample := range batch {
			counts[sample.Index]++
		}
	}

	for slot, count := range counts {
		assert.InDelta(t, trials, count, 0.01*trials, "slot %v", slot)
	}
}

func TestPrioritized_FavoursLargeErrors(t *testing.T) {
	const trials = 5000
	args := prioritizedArgs{10, 1, 0.4, 0, 0.01, 1}
	p := newPrioritized(t, args, 10, 1)

	absErrors := make([]float64, 10)
	absErrors[3] = 5
	require.NoError(t, p.Update(samplesAt(0, 1, 2, 3, 4, 5, 6, 7, 8, 9),
		absErrors))

	hits := 0
	for i := 0; i < trials; i++ {
		batch, err := p.Sample(1)
		require.NoError(t, err)
		if batch[0].Index == 3 {
			hits++
		}
	}
	assert.Greater(t, float64(hits)/trials, 0.88)
}

func TestPrioritized_AlphaZero(t *testing.T) {
	args := defaultArgs(5)
	args.alpha = 0
	p := newPrioritized(t, args, 5, 1)

	require.NoError(t, p.Update(samplesAt(0, 1, 2, 3, 4),
		[]float64{0, 0.3, 10, 2, 0.001}))
	assert.Equal(t, 5.0, p.TotalPriority())
}

func TestPrioritized_Update(t *testing.T) {
	args := defaultArgs(5)
	args.alpha = 1
	p := newPrioritized(t, args, 3, 1)

	// Errors are made absolute, shifted by ε, then clipped
	require.NoError(t, p.Update(samplesAt(0, 1, 2), []float64{-0.5, 0.2, 9}))
	assert.InDelta(t, 0.51, p.tree.NodeValue(p.tree.LeafIndex(0)), 1e-12)
	assert.InDelta(t, 0.21, p.tree.NodeValue(p.tree.LeafIndex(1)), 1e-12)
	assert.Equal(t, 1.0, p.tree.NodeValue(p.tree.LeafIndex(2)))

	// Repeated slots take the last error
	require.NoError(t, p.Update(samplesAt(1, 1), []float64{0.1, 0.3}))
	assert.InDelta(t, 0.31, p.tree.NodeValue(p.tree.LeafIndex(1)), 1e-12)
	require.NoError(t, p.tree.Validate())
}

func TestPrioritized_UpdateInvalid(t *testing.T) {
	p := newPrioritized(t, defaultArgs(5), 3, 1)
	total := p.TotalPriority()

	tests := map[string]struct {
		samples   []Sample[int]
		absErrors []float64
	}{
		"length mismatch": {samplesAt(0, 1), []float64{0.5}},
		"negative index":  {samplesAt(0, -1), []float64{0.5, 0.5}},
		"unwritten slot":  {samplesAt(0, 3), []float64{0.5, 0.5}},
		"past capacity":   {samplesAt(0, 5), []float64{0.5, 0.5}},
		"NaN error":       {samplesAt(0, 1), []float64{0.5, math.NaN()}},
		"missing errors":  {samplesAt(0), nil},
		"missing samples": {nil, []float64{0.5}},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			err := p.Update(test.samples, test.absErrors)
			assert.True(t, IsInvalidArgument(err), "%v", err)
			assert.Equal(t, total, p.TotalPriority())
		})
	}
}

func TestPrioritized_UpdateAfterEviction(t *testing.T) {
	args := defaultArgs(2)
	args.alpha = 1
	p := newPrioritized(t, args, 2, 1)

	batch, err := p.Sample(1)
	require.NoError(t, err)
	slot := batch[0].Index

	// Overwrite the sampled slot
	if slot == 1 {
		require.NoError(t, p.Push(NewExperience(2, 0, 2, 3, false)))
	}
	require.NoError(t, p.Push(NewExperience(3, 0, 3, 4, false)))
	require.NotEqual(t, batch[0].Experience, p.tree.data.at(slot))

	// The new occupant of the slot receives the priority
	require.NoError(t, p.Update(batch, []float64{0.2}))
	assert.InDelta(t, 0.21, p.tree.NodeValue(p.tree.LeafIndex(slot)), 1e-12)
}

func TestPrioritized_Invariants(t *testing.T) {
	const capacity = 7
	p := newPrioritized(t, defaultArgs(capacity), 0, 1)
	rng := rand.New(rand.NewSource(5))

	pushes := 0
	beta := p.Beta()
	for step := 0; step < 2000; step++ {
		switch op := rng.Intn(3); {
		case op == 0 || p.Size() == 0:
			require.NoError(t, p.Push(NewExperience(step, 0, 0, 0, false)))
			pushes++

		default:
			batch, err := p.Sample(1 + rng.Intn(8))
			require.NoError(t, err)

			absErrors := make([]float64, len(batch))
			for i := range absErrors {
				absErrors[i] = 2 * rng.NormFloat64()
			}
			require.NoError(t, p.Update(batch, absErrors))
		}

		require.NoError(t, p.tree.Validate())
		require.Equal(t, min(pushes, capacity), p.Size())
		require.Equal(t, pushes%capacity, p.tree.data.cursor())
		require.GreaterOrEqual(t, p.Beta(), beta)
		require.LessOrEqual(t, p.Beta(), 1.0)
		beta = p.Beta()
	}
}

func TestPrioritized_Deterministic(t *testing.T) {
	a := newPrioritized(t, defaultArgs(20), 20, 42)
	b := newPrioritized(t, defaultArgs(20), 20, 42)

	for i := 0; i < 5; i++ {
		batchA, err := a.Sample(8)
		require.NoError(t, err)
		batchB, err := b.Sample(8)
		require.NoError(t, err)
		require.Equal(t, batchA, batchB)

		absErrors := make([]float64, len(batchA))
		for j, sample := range batchA {
			absErrors[j] = float64(sample.Index) / 10
		}
		require.NoError(t, a.Update(batchA, absErrors))
		require.NoError(t, b.Update(batchB, absErrors))
	}
}

func TestPrioritized_Stats(t *testing.T) {
	args := defaultArgs(8)
	args.alpha = 1
	p := newPrioritized(t, args, 3, 1)
	require.NoError(t, p.Update(samplesAt(0), []float64{0.24}))

	stats := p.Stats()
	assert.True(t, stats.Prioritized)
	assert.Equal(t, 3, stats.Size)
	assert.Equal(t, 8, stats.Capacity)
	assert.Equal(t, 0.4, stats.Beta)
	assert.InDelta(t, 2.25, stats.TotalPriority, 1e-12)
	assert.Equal(t, 1.0, stats.MaxPriority)
	assert.InDelta(t, 0.25, stats.MinPriority, 1e-12)
	assert.Contains(t, stats.String(), "Size: 3/8")

	assert.Equal(t, "Prioritized: capacity=8 α=1 β=0.4 β_increment=0.001 "+
		"ε=0.01 max_error=1", p.String())
}

func BenchmarkPrioritizedSampleUpdate(b *testing.B) {
	p := newPrioritized(b, defaultArgs(100_000), 100_000, 1)
	absErrors := make([]float64, 64)
	for i := range absErrors {
		absErrors[i] = float64(i) / 64
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		batch, err := p.Sample(64)
		if err != nil {
			b.Fatal(err)
		}
		if err := p.Update(batch, absErrors); err != nil {
			b.Fatal(err)
		}
	}
}
