package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"SanFermin/client"
)

const (
	addrKey = "addr"
	waitKey = "wait"
)

func statusCommand() *cobra.Command {
	c := &cobra.Command{
		Use:   "status",
		Short: "Queries the status API of a simulation started with run --listen",
		Args:  cobra.NoArgs,
		RunE:  statusFunc,
	}

	flags := c.Flags()
	flags.String(addrKey, "127.0.0.1:9090", "Status API address")
	flags.Duration(waitKey, 0, "Poll until every member completed, at most this long")

	return c
}

func statusFunc(c *cobra.Command, _ []string) error {
	flags := c.Flags()

	addr, err := flags.GetString(addrKey)
	if err != nil {
		return err
	}

	wait, err := flags.GetDuration(waitKey)
	if err != nil {
		return err
	}

	cl := client.New(addr)

	var s *client.Status
	if wait > 0 {
		ctx, cancel := context.WithTimeout(c.Context(), wait)
		defer cancel()

		s, err = cl.WaitDone(ctx, 200*time.Millisecond)
	} else {
		s, err = cl.Status(c.Context())
	}
	if err != nil {
		return err
	}

	w := c.OutOrStdout()
	fmt.Fprintf(w, "time            %d ms\n", s.Time)
	fmt.Fprintf(w, "completed       %d/%d\n", s.Completed, s.Members)
	fmt.Fprintf(w, "first/last done %d/%d ms\n", s.FirstDone, s.LastDone)
	fmt.Fprintf(w, "pending events  %d\n", s.PendingEvents)
	fmt.Fprintf(w, "digest          %s\n", s.Digest)

	return nil
}
