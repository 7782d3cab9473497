package main

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/bft-labs/edgevisor/internal/adapters/fs"
	"github.com/bft-labs/edgevisor/pkg/edgevisor"
)

func newOrderCommand(s *settings) *cobra.Command {
	return &cobra.Command{
		Use:   "order",
		Short: "Print the startup order of the services",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := s.load(cmd); err != nil {
				return err
			}
			if s.cfg.Services == "" {
				return fmt.Errorf("services file is required")
			}
			ev, err := edgevisor.New(s.cfg.Services)
			if err != nil {
				return err
			}
			order, err := ev.Order()
			if err != nil {
				return err
			}
			for i, name := range order {
				fmt.Fprintf(cmd.OutOrStdout(), "%d. %s\n", i+1, name)
			}
			return nil
		},
	}
}

func newStatusCommand(s *settings) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print the last recorded status of every service",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := s.load(cmd); err != nil {
				return err
			}
			if s.cfg.StatusFile == "" {
				return fmt.Errorf("status file is required")
			}
			snap, err := fs.NewStatusFile(s.cfg.StatusFile).Load(context.Background())
			if err != nil {
				return err
			}
			if snap.UpdatedAt.IsZero() {
				fmt.Fprintln(cmd.OutOrStdout(), "no status recorded")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintf(w, "updated %s\n", snap.UpdatedAt.Format("2006-01-02 15:04:05Z07:00"))
			fmt.Fprintln(w, "NAME\tSTATE\tGEN\tCODE\tFAILURE")
			for _, st := range snap.Services {
				state := st.StateName
				if st.Paused {
					state += " (paused)"
				}
				failure := st.Failure
				if st.FailedStage != "" {
					failure = strings.TrimSpace(string(st.FailedStage) + ": " + failure)
				}
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n", st.Name, state, st.Generation, st.Code, failure)
			}
			if err := w.Flush(); err != nil {
				return err
			}
			if broken := snap.Broken(); len(broken) > 0 {
				return fmt.Errorf("%d service(s) broken", len(broken))
			}
			return nil
		},
	}
}
