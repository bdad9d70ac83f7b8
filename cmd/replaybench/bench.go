package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/exp/rand"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/samuelfneumann/goreplay/expreplay"
	"github.com/samuelfneumann/goreplay/expreplay/batch"
	"github.com/samuelfneumann/goreplay/metrics"
	"github.com/samuelfneumann/goreplay/timestep"
	"github.com/samuelfneumann/goreplay/utils/progressbar"
)

const discount = 0.99

// bench runs a synthetic actor and learner against a shared replay
// buffer. The actor plays episodes of random transitions; the learner
// samples batches, computes TD errors of a fixed linear value function
// and feeds them back as priorities.
type bench struct {
	cfg    *Config
	buffer *expreplay.Locked[mat.Vector]
	logger zerolog.Logger

	registry *prometheus.Registry
	pushes   prometheus.Counter
	updates  prometheus.Counter
	loss     prometheus.Gauge

	steps    atomic.Int64 // Completed learner steps
	progress io.Writer    // Progress bar output, nil for none
}

// newBench returns a new bench configured by cfg
func newBench(cfg *Config, logger zerolog.Logger) (*bench, error) {
	replay, err := expreplay.Create[mat.Vector](cfg.Replay, cfg.Seed)
	if err != nil {
		return nil, fmt.Errorf("create replay buffer: %w", err)
	}
	if p, ok := replay.(*expreplay.Prioritized[mat.Vector]); ok {
		p.SetLogger(logger.With().Str("component", "replay").Logger())
	}
	buffer := expreplay.NewLocked(replay)

	registry := prometheus.NewRegistry()
	registry.MustRegister(metrics.NewCollector("replaybench",
		map[string]metrics.Statter{string(cfg.Replay.Type): buffer}))
	factory := promauto.With(registry)

	return &bench{
		cfg:      cfg,
		buffer:   buffer,
		logger:   logger,
		registry: registry,
		pushes: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "replaybench",
			Name:      "pushes_total",
			Help:      "Total number of transitions pushed by the actor",
		}),
		updates: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "replaybench",
			Name:      "updates_total",
			Help:      "Total number of learner priority updates",
		}),
		loss: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "replaybench",
			Name:      "weighted_loss",
			Help:      "Importance weighted squared TD error of the last batch",
		}),
	}, nil
}

// run runs the actor and learner until the learner has completed
// cfg.Steps updates or ctx is cancelled
func (b *bench) run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	b.logger.Info().
		Str("replay", b.cfg.Replay.String()).
		Int("steps", b.cfg.Steps).
		Int("batch_size", b.cfg.BatchSize).
		Int("learn_every", b.cfg.LearnEvery).
		Msg("starting benchmark")
	start := time.Now()

	// The actor signals the learner once every LearnEvery pushes
	ready := make(chan struct{})

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return b.act(ctx, ready) })
	g.Go(func() error {
		defer cancel()
		return b.learn(ctx, ready)
	})
	g.Go(func() error { return b.report(ctx) })
	if b.cfg.MetricsAddr != "" {
		g.Go(func() error { return b.serveMetrics(ctx) })
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	elapsed := time.Since(start)
	b.logger.Info().
		Int64("steps", b.steps.Load()).
		Dur("elapsed", elapsed).
		Float64("steps_per_second", float64(b.steps.Load())/elapsed.Seconds()).
		Str("stats", b.buffer.Stats().String()).
		Msg("benchmark finished")
	return nil
}

// act pushes random transitions into the buffer until ctx is done
func (b *bench) act(ctx context.Context, ready chan<- struct{}) error {
	src := rand.NewSource(b.cfg.Seed + 1)
	obs := distuv.Normal{Mu: 0, Sigma: 1, Src: src}
	reward := distuv.Normal{Mu: 0, Sigma: 1, Src: src}
	ends := distuv.Bernoulli{P: 1 / b.cfg.EpisodeLength, Src: src}

	observe := func() mat.Vector {
		v := mat.NewVecDense(b.cfg.FeatureSize, nil)
		for i := 0; i < v.Len(); i++ {
			v.SetVec(i, obs.Rand())
		}
		return v
	}

	step := timestep.New(timestep.First, 0, discount, observe(), 0)
	for pushed := 1; ; pushed++ {
		action := mat.NewVecDense(b.cfg.ActionSize, nil)
		for i := 0; i < action.Len(); i++ {
			action.SetVec(i, obs.Rand())
		}

		stepType := timestep.Mid
		if ends.Rand() == 1 {
			stepType = timestep.Last
		}
		next := timestep.New(stepType, reward.Rand(), discount, observe(),
			step.Number+1)

		if err := b.buffer.Push(batch.NewTransition(step, action,
			next)); err != nil {
			return fmt.Errorf("push: %w", err)
		}
		b.pushes.Inc()

		step = next
		if step.Last() {
			b.logger.Trace().Int("length", step.Number).Msg("episode ended")
			step = timestep.New(timestep.First, 0, discount, observe(), 0)
		}

		if pushed%b.cfg.LearnEvery != 0 {
			continue
		}
		select {
		case ready <- struct{}{}:
		case <-ctx.Done():
			return nil
		}
	}
}

// learn performs cfg.Steps learner updates, one per signal on ready.
// Sampling starts once the buffer holds a full batch, or is full.
func (b *bench) learn(ctx context.Context, ready <-chan struct{}) error {
	weights := mat.NewVecDense(b.cfg.FeatureSize, nil)
	for i := 0; i < weights.Len(); i++ {
		weights.SetVec(i, 1/float64(weights.Len()))
	}

	for b.steps.Load() < int64(b.cfg.Steps) {
		select {
		case <-ready:
		case <-ctx.Done():
			return nil
		}
		if b.buffer.Size() < b.warmup() {
			continue
		}

		samples, err := b.buffer.Sample(b.cfg.BatchSize)
		if err != nil {
			return fmt.Errorf("sample: %w", err)
		}
		flat, err := batch.Flatten(samples)
		if err != nil {
			return fmt.Errorf("flatten: %w", err)
		}

		deltas := tdErrors(flat, weights)
		if err := b.buffer.Update(samples, deltas); err != nil {
			return fmt.Errorf("update: %w", err)
		}
		b.updates.Inc()

		loss := 0.0
		for i, delta := range deltas {
			loss += flat.Weights[i] * delta * delta
		}
		b.loss.Set(loss / float64(flat.Len))

		if b.steps.Add(1) == 1 {
			b.logger.Debug().
				Ints("state_shape", flat.StateTensor().Shape()).
				Ints("action_shape", flat.ActionTensor().Shape()).
				Ints("weight_shape", flat.WeightTensor().Shape()).
				Msg("first batch")
		}
	}
	return nil
}

// warmup returns the number of experiences the buffer must hold before
// the learner starts sampling. A batch larger than the buffer is drawn
// with replacement once the buffer is full.
func (b *bench) warmup() int {
	return min(b.cfg.BatchSize, b.cfg.Replay.Capacity)
}

// tdErrors returns the absolute one-step TD errors of the linear value
// function with the given weights on each transition of flat
func tdErrors(flat batch.Batch, weights mat.Vector) []float64 {
	states := mat.NewDense(flat.Len, flat.FeatureSize, flat.States)
	nextStates := mat.NewDense(flat.Len, flat.FeatureSize, flat.NextStates)

	var values, nextValues mat.VecDense
	values.MulVec(states, weights)
	nextValues.MulVec(nextStates, weights)

	deltas := make([]float64, flat.Len)
	for i := range deltas {
		target := flat.Rewards[i]
		if !flat.Dones[i] {
			target += discount * nextValues.AtVec(i)
		}
		deltas[i] = math.Abs(target - values.AtVec(i))
	}
	return deltas
}

// report periodically logs the state of the buffer and draws the
// progress bar, if any, until ctx is done
func (b *bench) report(ctx context.Context) error {
	var bar *progressbar.ManualProgressBar
	if b.progress != nil {
		bar = progressbar.NewManualProgressBar(b.progress, 40, b.cfg.Steps)
		defer bar.Close()
	}

	ticker := time.NewTicker(b.cfg.StatsEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
		case <-ctx.Done():
			if bar != nil {
				bar.Set(int(b.steps.Load()))
				bar.Display()
			}
			return nil
		}

		stats := b.buffer.Stats()
		b.logger.Info().
			Int64("steps", b.steps.Load()).
			Int("size", stats.Size).
			Float64("beta", stats.Beta).
			Float64("total_priority", stats.TotalPriority).
			Float64("max_priority", stats.MaxPriority).
			Float64("min_priority", stats.MinPriority).
			Msg("progress")

		if bar != nil {
			bar.Set(int(b.steps.Load()))
			bar.Display()
		}
	}
}

// serveMetrics serves the bench's metrics at /metrics until ctx is done
func (b *bench) serveMetrics(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(b.registry,
		promhttp.HandlerOpts{}))
	server := &http.Server{
		Addr:              b.cfg.MetricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(),
			5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdown)
	}()

	b.logger.Info().Str("addr", b.cfg.MetricsAddr).Msg("serving metrics")
	if err := server.ListenAndServe(); err != nil &&
		!errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve metrics: %w", err)
	}
	return nil
}
