package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func reconcileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Run a single reconciliation sweep over stuck PENDING orders and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			summary, err := a.newWorker().RunOnce(ctx)
			if err != nil {
				return err
			}
			if len(summary) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no stuck orders")
				return nil
			}
			for result, n := range summary {
				fmt.Fprintf(cmd.OutOrStdout(), "%-14s %d\n", result, n)
			}
			return nil
		},
	}
}
