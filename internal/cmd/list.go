package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List exploration graphs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, store, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer store.Close()

		graphs, err := store.ListGraphs(context.Background())
		if err != nil {
			return err
		}
		if len(graphs) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No graphs.")
			return nil
		}

		w := cmd.OutOrStdout()
		for _, g := range graphs {
			fmt.Fprintf(w, "%s  %-16s %-8s %2d/%-2d agents  %s  %s\n",
				short(g.ID), g.Status, g.Intensity,
				g.AgentsSpawned, g.MaxAgents,
				g.CreatedAt.Local().Format(time.DateTime),
				truncate(g.Seed, 60))
		}
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <graph-id>",
	Short: "Delete a graph and all of its nodes and edges",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, store, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer store.Close()

		if err := store.DeleteGraph(context.Background(), args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
		return nil
	},
}
