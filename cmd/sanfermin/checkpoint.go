package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"SanFermin/internal/checkpoint"
	"SanFermin/internal/committee"
	"SanFermin/internal/logger"
	"SanFermin/internal/storage"
)

func checkpointCommand() *cobra.Command {
	c := &cobra.Command{
		Use:   "checkpoint",
		Short: "Saves, resumes and lists simulation checkpoints",
	}

	c.PersistentFlags().String(dataKey, "./data", "Checkpoint database directory")
	c.AddCommand(saveCommand(), resumeCommand(), listCommand())

	return c
}

func saveCommand() *cobra.Command {
	c := &cobra.Command{
		Use:   "save <name>",
		Short: "Runs a simulation to a point in time and saves it",
		Args:  cobra.ExactArgs(1),
		RunE:  saveFunc,
	}

	flags := c.Flags()
	addScenarioFlags(flags)
	flags.Int64(atKey, 300, "Virtual time at which the checkpoint is taken")

	return c
}

func saveFunc(c *cobra.Command, args []string) error {
	flags := c.Flags()

	cfg, err := loadConfig(flags)
	if err != nil {
		return err
	}

	at, err := flags.GetInt64(atKey)
	if err != nil {
		return err
	}

	sim, err := newCommittee(cfg)
	if err != nil {
		return err
	}

	if err := sim.Run(at); err != nil {
		return err
	}

	st, err := sim.Export()
	if err != nil {
		return err
	}

	return withStore(c, false, func(store *checkpoint.Store) error {
		if err := store.Save(args[0], st); err != nil {
			return err
		}

		logger.Info("checkpoint saved", "name", args[0], "t", sim.Now(), "completed", sim.Done())

		return nil
	})
}

func resumeCommand() *cobra.Command {
	c := &cobra.Command{
		Use:   "resume <name>",
		Short: "Restores a checkpoint and runs it until every member completes",
		Args:  cobra.ExactArgs(1),
		RunE:  resumeFunc,
	}

	flags := c.Flags()
	flags.Int64(durationKey, defaultDuration, "Virtual time limit in milliseconds")
	flags.String(metricsKey, "", "Write Prometheus metrics of the run to this file")

	return c
}

func resumeFunc(c *cobra.Command, args []string) error {
	flags := c.Flags()

	duration, err := flags.GetInt64(durationKey)
	if err != nil {
		return err
	}

	var st *checkpoint.State
	err = withStore(c, true, func(store *checkpoint.Store) error {
		st, err = store.Load(args[0])
		return err
	})
	if err != nil {
		return err
	}

	sim, err := committee.Restore(st)
	if err != nil {
		return fmt.Errorf("restore %s:\n%w", args[0], err)
	}

	logger.Info("checkpoint restored", "name", args[0], "t", sim.Now(), "completed", sim.Done())

	if err := sim.RunUntilDone(duration); err != nil {
		return err
	}

	printSummary(c.OutOrStdout(), sim)

	path, err := flags.GetString(metricsKey)
	if err != nil {
		return err
	}

	return writeMetrics(path, sim)
}

func listCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Lists saved checkpoints",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			return withStore(c, true, func(store *checkpoint.Store) error {
				entries, err := store.List()
				if err != nil {
					return err
				}

				for _, e := range entries {
					fmt.Fprintf(c.OutOrStdout(), "%-24s %8d bytes\n", e.Name, e.Size)
				}

				return nil
			})
		},
	}
}

// withStore opens the checkpoint database for the duration of fn.
func withStore(c *cobra.Command, readOnly bool, fn func(*checkpoint.Store) error) error {
	path, err := c.Flags().GetString(dataKey)
	if err != nil {
		return err
	}

	opts := storage.DefaultOptions()
	opts.ReadOnly = readOnly

	db, err := storage.Open(path, opts)
	if err != nil {
		return err
	}
	defer db.Close()

	return fn(checkpoint.NewStore(db))
}
