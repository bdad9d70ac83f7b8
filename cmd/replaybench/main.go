// Command replaybench exercises an experience replay buffer with a
// synthetic actor and learner, reporting throughput and the state of
// the buffer as it runs.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// newRootCmd returns the replaybench command. Settings are read, in
// increasing order of precedence, from the defaults, a config file,
// REPLAYBENCH_* environment variables, and flags.
func newRootCmd() *cobra.Command {
	cfg := Default()
	var (
		v          *viper.Viper
		configFile string
	)

	cmd := &cobra.Command{
		Use:   "replaybench",
		Short: "Benchmark an experience replay buffer",
		Long: `replaybench runs an actor pushing random transitions and a learner
sampling batches and updating priorities against a shared replay buffer.

Every flag may also be set in a config file (--config) or through an
environment variable, e.g. REPLAYBENCH_REPLAY_CAPACITY=50000.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := loadConfig(v, configFile, cfg); err != nil {
				return err
			}
			return runBench(cmd, cfg)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&configFile, "config", "", "Config file (json, yaml, or toml)")

	// Replay buffer settings
	flags.String("type", string(cfg.Replay.Type), "Buffer type (uniform, prioritized)")
	flags.Int("capacity", cfg.Replay.Capacity, "Maximum number of experiences in the buffer")
	flags.Float64("alpha", cfg.Replay.Alpha, "Priority exponent α")
	flags.Float64("beta", cfg.Replay.Beta, "Initial importance sampling exponent β")
	flags.Float64("beta-increment", cfg.Replay.BetaIncrement, "Increment of β per sampled batch")
	flags.Float64("epsilon", cfg.Replay.Epsilon, "Added to every absolute error")
	flags.Float64("max-error", cfg.Replay.MaxError, "Absolute errors are clipped to this value")

	// Loop settings
	flags.Int("steps", cfg.Steps, "Number of learner updates to run")
	flags.Int("batch-size", cfg.BatchSize, "Batch size sampled by the learner")
	flags.Int("learn-every", cfg.LearnEvery, "Number of pushes per learner update")
	flags.Int("feature-size", cfg.FeatureSize, "Length of each observation")
	flags.Int("action-size", cfg.ActionSize, "Length of each action")
	flags.Float64("episode-length", cfg.EpisodeLength, "Mean episode length")
	flags.Uint64("seed", cfg.Seed, "Random seed")

	// Reporting
	flags.Duration("stats-every", cfg.StatsEvery, "Interval between progress reports")
	flags.String("metrics-addr", cfg.MetricsAddr, "Serve Prometheus metrics on this address (e.g. :9090)")
	flags.Bool("progress", cfg.Progress, "Draw a progress bar")
	flags.String("log-level", cfg.LogLevel, "Log level (trace, debug, info, warn, error)")
	flags.String("log-format", cfg.LogFormat, "Log format (console, json)")

	v = newViper(flags)

	return cmd
}

// newViper returns a Viper reading REPLAYBENCH_* environment variables
// with every flag except --config bound to its key in Config
func newViper(flags *pflag.FlagSet) *viper.Viper {
	v := viper.New()

	// Replay flags are bound to the nested keys of Config
	keys := map[string]string{
		"type":           "replay.type",
		"capacity":       "replay.capacity",
		"alpha":          "replay.alpha",
		"beta":           "replay.beta",
		"beta-increment": "replay.beta_increment",
		"epsilon":        "replay.epsilon",
		"max-error":      "replay.max_error",
	}
	flags.VisitAll(func(f *pflag.Flag) {
		if f.Name == "config" {
			return
		}
		key, ok := keys[f.Name]
		if !ok {
			key = strings.ReplaceAll(f.Name, "-", "_")
		}
		cobra.CheckErr(v.BindPFlag(key, f))
	})

	v.SetEnvPrefix("REPLAYBENCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// loadConfig reads the config file, if any, and decodes every setting
// known to v into cfg
func loadConfig(v *viper.Viper, configFile string, cfg *Config) error {
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// runBench runs the benchmark described by cfg until it completes or
// the process is interrupted
func runBench(cmd *cobra.Command, cfg *Config) error {
	logger := cfg.newLogger(cmd.ErrOrStderr())

	b, err := newBench(cfg, logger)
	if err != nil {
		return err
	}
	if cfg.Progress {
		b.progress = cmd.OutOrStdout()
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt,
		syscall.SIGTERM)
	defer stop()

	return b.run(ctx)
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
