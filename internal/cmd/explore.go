package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/rand/fractal/internal/explore"
	"github.com/rand/fractal/internal/graph"
)

var exploreCmd = &cobra.Command{
	Use:   "explore [seed question...]",
	Short: "Explore a seed question recursively",
	Long: `Create a new exploration graph for the seed question and run it until a
terminal status or a checkpoint pause.

The intensity fixes the budget for the whole run:
  pulse    3 agents, depth 2
  explore  8 agents, depth 4
  deep     15 agents, depth 6

The checkpoint mode controls when control returns to you:
  autonomous    run to a terminal status (default)
  convergence   pause when independent branches agree
  interactive   pause after every batch of answers
  depth:N       pause when the frontier reaches depth N`,
	Example: `
# Quick probe
fractal explore --intensity pulse "Is event sourcing a fit for our billing system?"

# Default exploration, pausing on convergence
fractal explore --checkpoint convergence "How should we shard the tenant database?"

# Pipe in context
cat notes.md | fractal explore "What are the open risks here?"`,
	Args: cobra.ArbitraryArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		intensityFlag, _ := cmd.Flags().GetString("intensity")
		checkpointFlag, _ := cmd.Flags().GetString("checkpoint")
		timeoutFlag, _ := cmd.Flags().GetDuration("timeout")

		intensity := graph.Intensity(intensityFlag)
		if !intensity.Valid() {
			return fmt.Errorf("unknown intensity %q (want pulse, explore, or deep)", intensityFlag)
		}
		mode, modeArg, err := graph.ParseCheckpointMode(checkpointFlag)
		if err != nil {
			return err
		}

		seed := strings.TrimSpace(strings.Join(args, " "))
		seed, err = MaybePrependStdin(seed)
		if err != nil {
			return err
		}
		if seed == "" {
			return fmt.Errorf("no seed question provided")
		}

		cfg, store, engine, err := setup(cmd)
		if err != nil {
			return err
		}
		defer store.Close()

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
		defer cancel()
		if timeoutFlag == 0 {
			timeoutFlag = cfg.Run.Timeout.Std()
		}
		if timeoutFlag > 0 {
			ctx, cancel = context.WithTimeout(ctx, timeoutFlag)
			defer cancel()
		}

		g, err := engine.Create(ctx, seed, intensity, mode, modeArg)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Exploring graph %s (%s, budget %d agents / depth %d)...\n",
			g.ID, intensity, g.MaxAgents, g.MaxDepth)

		res, err := engine.Run(ctx, g.ID)
		if err != nil {
			return err
		}
		printResult(cmd.OutOrStdout(), res)
		return nil
	},
}

var resumeCmd = &cobra.Command{
	Use:   "resume <graph-id>",
	Short: "Resume a paused or interrupted exploration",
	Long: `Continue an exploration from its durable state. The graph must still be
active: resuming a completed, budget-exhausted, or errored graph fails with
its terminal status instead of silently doing nothing.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, store, engine, err := setup(cmd)
		if err != nil {
			return err
		}
		defer store.Close()

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
		defer cancel()
		if cfg.Run.Timeout > 0 {
			ctx, cancel = context.WithTimeout(ctx, cfg.Run.Timeout.Std())
			defer cancel()
		}

		res, err := engine.Resume(ctx, args[0])
		if err != nil {
			return err
		}
		printResult(cmd.OutOrStdout(), res)
		return nil
	},
}

func init() {
	exploreCmd.Flags().StringP("intensity", "i", string(graph.IntensityExplore),
		"Exploration intensity: pulse, explore, or deep")
	exploreCmd.Flags().StringP("checkpoint", "c", string(graph.ModeAutonomous),
		"Checkpoint mode: autonomous, convergence, interactive, or depth:N")
	exploreCmd.Flags().Duration("timeout", 0, "Overall run timeout (0 = config default)")
}

func printResult(w io.Writer, res *explore.Result) {
	if res.Paused {
		fmt.Fprintf(w, "Paused: %s\n", res.PauseReason)
		fmt.Fprintf(w, "Resume with: fractal resume %s\n\n", res.GraphID)
	} else {
		fmt.Fprintf(w, "Status: %s\n", res.Status)
	}

	fmt.Fprintf(w, "Dispatches: %d (retries %d, failures %d)\n",
		res.Dispatches, res.Retries, res.Failures)
	fmt.Fprintf(w, "New questions: %d  Convergences: %d  Contradictions: %d\n",
		res.NewQuestions, res.Convergences, res.Contradictions)
	if res.BudgetHits > 0 {
		fmt.Fprintf(w, "Budget hits: %d\n", res.BudgetHits)
	}
	for _, v := range res.Violations {
		fmt.Fprintf(w, "Budget: %s\n", v.Message)
	}
	fmt.Fprintf(w, "Duration: %s\n", res.Duration.Round(time.Millisecond))

	if res.Snapshot != nil && res.SynthesisID != "" {
		if node := res.Snapshot.Node(res.SynthesisID); node != nil {
			fmt.Fprintf(w, "\n%s\n", node.Text)
		}
	}
}
