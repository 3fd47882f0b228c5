package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rand/fractal/internal/graph"
)

var showCmd = &cobra.Command{
	Use:   "show <graph-id>",
	Short: "Show an exploration graph",
	Long: `Print a graph's header, its question tree with answers and saturation
reasons, and the convergence and contradiction edges between branches.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")

		_, store, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer store.Close()

		ctx := context.Background()
		snap, err := store.Snapshot(ctx, args[0])
		if err != nil {
			return err
		}

		if asJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(snap)
		}

		counts, err := store.SaturationStatus(ctx, args[0])
		if err != nil {
			return err
		}
		printSnapshot(cmd.OutOrStdout(), snap, counts)
		return nil
	},
}

func init() {
	showCmd.Flags().Bool("json", false, "Emit the full snapshot as JSON")
}

func printSnapshot(w io.Writer, snap *graph.Snapshot, counts *graph.SaturationCounts) {
	g := snap.Graph
	fmt.Fprintf(w, "Graph %s  [%s]\n", g.ID, g.Status)
	fmt.Fprintf(w, "Seed: %s\n", g.Seed)
	fmt.Fprintf(w, "Intensity: %s  Agents: %d/%d  Max depth: %d\n",
		g.Intensity, g.AgentsSpawned, g.MaxAgents, g.MaxDepth)
	fmt.Fprintf(w, "Nodes: open %d, exploring %d, saturated %d, errored %d\n",
		counts.Open, counts.Exploring, counts.Saturated, counts.Errored)
	for reason, n := range counts.ByReason {
		fmt.Fprintf(w, "  %s: %d\n", reason, n)
	}

	if root := snap.Root(); root != nil {
		fmt.Fprintln(w)
		printTree(w, snap, root, 0)
	}

	convergences := snap.EdgesOfKind(graph.EdgeConvergence)
	contradictions := snap.EdgesOfKind(graph.EdgeContradiction)
	if len(convergences) > 0 {
		fmt.Fprintf(w, "\nConvergences:\n")
		for _, e := range convergences {
			fmt.Fprintf(w, "  %s <-> %s: %s\n", short(e.SourceID), short(e.TargetID), e.Detail)
		}
	}
	if len(contradictions) > 0 {
		fmt.Fprintf(w, "\nContradictions:\n")
		for _, e := range contradictions {
			fmt.Fprintf(w, "  %s <-> %s [%s]: %s\n",
				short(e.SourceID), short(e.TargetID), e.Resolution, e.Detail)
		}
	}
}

func printTree(w io.Writer, snap *graph.Snapshot, node *graph.Node, indent int) {
	pad := strings.Repeat("  ", indent)
	marker := string(node.Status)
	if node.Reason != "" {
		marker += "/" + string(node.Reason)
	}
	fmt.Fprintf(w, "%s[%s] %s (%s)\n", pad, short(node.ID), truncate(node.Text, 80), marker)
	if ans := node.Answer(); ans != "" {
		fmt.Fprintf(w, "%s  = %s\n", pad, truncate(ans, 100))
	}
	for _, child := range snap.Children(node.ID) {
		printTree(w, snap, child, indent+1)
	}
}

func short(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, max int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
