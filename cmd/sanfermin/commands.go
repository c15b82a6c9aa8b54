package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"SanFermin/internal/api"
	"SanFermin/internal/committee"
	"SanFermin/internal/config"
	"SanFermin/internal/logger"
	"SanFermin/internal/metrics"
)

// defaultDuration bounds runs in virtual milliseconds.
const defaultDuration = 60_000

func rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "sanfermin",
		Short:         "Simulates San Fermin signature aggregation in a committee",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(c *cobra.Command, _ []string) error {
			name, err := c.Flags().GetString(logLevelKey)
			if err != nil {
				return err
			}

			level, err := logger.ParseLevel(name)
			if err != nil {
				return err
			}

			logger.Init(level)

			return nil
		},
	}

	addGlobalFlags(root.PersistentFlags())

	root.AddCommand(runCommand(), compareCommand(), checkpointCommand(), statusCommand())

	return root
}

func runCommand() *cobra.Command {
	c := &cobra.Command{
		Use:   "run",
		Short: "Runs a simulation until every member completes",
		Args:  cobra.NoArgs,
		RunE:  runFunc,
	}

	flags := c.Flags()
	addScenarioFlags(flags)
	flags.Int64(durationKey, defaultDuration, "Virtual time limit in milliseconds")
	flags.String(metricsKey, "", "Write Prometheus metrics of the run to this file")
	flags.String(listenKey, "", "Serve the status API on this address while running")
	flags.Int64(stepKey, 50, "Virtual milliseconds between status updates when serving")
	flags.Duration(paceKey, 0, "Wall time to wait between status updates when serving")

	return c
}

func runFunc(c *cobra.Command, _ []string) error {
	flags := c.Flags()

	cfg, err := loadConfig(flags)
	if err != nil {
		return err
	}

	duration, err := flags.GetInt64(durationKey)
	if err != nil {
		return err
	}

	sim, err := newCommittee(cfg)
	if err != nil {
		return err
	}

	listen, err := flags.GetString(listenKey)
	if err != nil {
		return err
	}

	start := time.Now()

	if listen == "" {
		err = sim.RunUntilDone(duration)
	} else {
		err = serveRun(c, sim, listen, duration)
	}
	if err != nil {
		return err
	}

	logger.Info("simulation finished",
		"members", sim.Size(),
		"completed", sim.Done(),
		"t", sim.Now(),
		logger.Timed(start),
	)

	printSummary(c.OutOrStdout(), sim)

	path, err := flags.GetString(metricsKey)
	if err != nil {
		return err
	}

	return writeMetrics(path, sim)
}

func compareCommand() *cobra.Command {
	c := &cobra.Command{
		Use:   "compare",
		Short: "Clones a simulation part way and checks that both copies finish identically",
		Args:  cobra.NoArgs,
		RunE:  compareFunc,
	}

	flags := c.Flags()
	addScenarioFlags(flags)
	flags.Int64(branchKey, 300, "Virtual time at which the simulation is cloned")
	flags.Int64(durationKey, defaultDuration, "Virtual time limit in milliseconds")

	return c
}

func compareFunc(c *cobra.Command, _ []string) error {
	flags := c.Flags()

	cfg, err := loadConfig(flags)
	if err != nil {
		return err
	}

	branch, err := flags.GetInt64(branchKey)
	if err != nil {
		return err
	}

	duration, err := flags.GetInt64(durationKey)
	if err != nil {
		return err
	}

	original, err := newCommittee(cfg)
	if err != nil {
		return err
	}

	if err := original.Run(branch); err != nil {
		return err
	}

	clone := original.Clone()
	logger.Info("simulation cloned", "t", original.Now(), "completed", original.Done())

	if err := original.RunUntilDone(duration); err != nil {
		return fmt.Errorf("original:\n%w", err)
	}

	if err := clone.RunUntilDone(duration); err != nil {
		return fmt.Errorf("clone:\n%w", err)
	}

	a, b := original.Digest(), clone.Digest()
	same := a == b && slices.Equal(original.Results(), clone.Results())

	fmt.Fprintf(c.OutOrStdout(), "original digest %x\nclone digest    %x\n", a, b)

	if !same {
		return fmt.Errorf("clone diverged from original")
	}

	fmt.Fprintln(c.OutOrStdout(), "runs match")
	printSummary(c.OutOrStdout(), original)

	return nil
}

// serveRun runs the simulation in steps, publishing each step to the status API.
// The server keeps running after the simulation ends until the command is interrupted.
func serveRun(c *cobra.Command, sim *committee.Committee, addr string, duration int64) error {
	flags := c.Flags()

	step, err := flags.GetInt64(stepKey)
	if err != nil {
		return err
	}

	if step <= 0 {
		return fmt.Errorf("--%s must be positive, got %d", stepKey, step)
	}

	pace, err := flags.GetDuration(paceKey)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(c.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server := api.New(addr)
	server.Publish(sim)

	if err := server.Start(); err != nil {
		return err
	}
	defer server.Stop()

	for sim.Done() < sim.Size() && sim.Now() < duration {
		if err := sim.RunUntilDone(min(sim.Now()+step, duration)); err != nil {
			return err
		}

		server.Publish(sim)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(pace):
		}
	}

	logger.Info("simulation finished, serving status until interrupted", "addr", addr)
	<-ctx.Done()

	return nil
}

// newCommittee creates and initializes a committee for cfg.
func newCommittee(cfg *config.Config) (*committee.Committee, error) {
	sim, err := committee.New(cfg)
	if err != nil {
		return nil, err
	}

	if err := sim.Init(); err != nil {
		return nil, err
	}

	return sim, nil
}

// printSummary writes the outcome of a run.
func printSummary(w io.Writer, sim *committee.Committee) {
	s := sim.Stats()

	fmt.Fprintf(w, "time            %d ms\n", s.Time)
	fmt.Fprintf(w, "completed       %d/%d\n", s.Completed, s.Members)
	fmt.Fprintf(w, "first/last done %d/%d ms\n", s.FirstDone, s.LastDone)
	fmt.Fprintf(w, "batches sent    %d (%d replies)\n", s.BatchesSent, s.RepliesSent)
	fmt.Fprintf(w, "units sent      %d\n", s.UnitsSent)
	fmt.Fprintf(w, "verifications   %d\n", s.Verifications)
	fmt.Fprintf(w, "messages        %d\n", s.Messages)

	var times []int64
	for _, r := range sim.Results() {
		if r.Completed {
			times = append(times, r.CompletedAt)
		}
	}

	if len(times) == 0 {
		return
	}

	slices.Sort(times)
	fmt.Fprintf(w, "completion p50  %d ms\n", times[len(times)/2])
	fmt.Fprintf(w, "completion p90  %d ms\n", times[len(times)*9/10])
}

// writeMetrics writes the run's metrics when a path is given.
func writeMetrics(path string, sim *committee.Committee) error {
	if path == "" {
		return nil
	}

	reg, err := metrics.NewRegistry(sim, prometheus.ExponentialBuckets(50, 2, 10))
	if err != nil {
		return fmt.Errorf("register metrics:\n%w", err)
	}

	if err := metrics.WriteFile(path, reg); err != nil {
		return fmt.Errorf("write metrics:\n%w", err)
	}

	logger.Info("metrics written", "path", path)

	return nil
}
