// Package cmd wires the exploration engine into a CLI.
package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/rand/fractal/internal/answer"
	"github.com/rand/fractal/internal/config"
	"github.com/rand/fractal/internal/explore"
	"github.com/rand/fractal/internal/graph"
	"github.com/rand/fractal/internal/synthesize"
)

var rootCmd = &cobra.Command{
	Use:   "fractal",
	Short: "Recursive question exploration over a persistent graph",
	Long: `Fractal explores a seed question by recursively decomposing it into
sub-questions, dispatching each to an answering model within hard agent and
depth budgets, and recording everything in a durable SQLite graph.

Convergences and contradictions between branches are detected and recorded
as edges; contradictions are flagged for the caller, never silently resolved.
Interrupted explorations resume from the stored graph.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// Missing .env is fine; explicit config comes from flags and env.
		_ = godotenv.Load()

		level := slog.LevelWarn
		if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: level,
		})))
	},
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Path to the policy config file")
	rootCmd.PersistentFlags().String("db", "", "Path to the graph database (overrides config)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(exploreCmd, resumeCmd, showCmd, listCmd, deleteCmd)
}

// Execute runs the CLI.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		var tse *explore.TerminalStateError
		if errors.As(err, &tse) {
			fmt.Fprintf(os.Stderr, "fractal: %v\n", err)
			fmt.Fprintf(os.Stderr, "Use 'fractal show %s' to inspect the result.\n", tse.GraphID)
		} else {
			fmt.Fprintf(os.Stderr, "fractal: %v\n", err)
		}
		os.Exit(1)
	}
}

// openStore loads the policy and opens the graph store. Enough for the
// read-only commands, which must work without any API key configured.
func openStore(cmd *cobra.Command) (*config.Config, *graph.Store, error) {
	cfgPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, nil, err
	}
	if db, _ := cmd.Flags().GetString("db"); db != "" {
		cfg.DBPath = db
	}

	store, err := graph.NewStore(graph.Options{
		Path:              cfg.DBPath,
		CreateIfNotExists: true,
	})
	if err != nil {
		return nil, nil, err
	}
	return cfg, store, nil
}

// setup additionally builds the answering capability and the engine.
func setup(cmd *cobra.Command) (*config.Config, *graph.Store, *explore.Engine, error) {
	cfg, store, err := openStore(cmd)
	if err != nil {
		return nil, nil, nil, err
	}

	answerer, err := answer.NewOpenRouterAnswerer(answer.OpenRouterConfig{
		Model:           cfg.Answerer.Model,
		FallbackModel:   cfg.Answerer.FallbackModel,
		MaxOutputTokens: cfg.Answerer.MaxOutputTokens,
	})
	if err != nil {
		store.Close()
		return nil, nil, nil, err
	}

	engine := explore.NewEngine(store, answerer, explore.Config{
		Profiles:        cfg.Profiles,
		Classifier:      cfg.Classifier,
		Detector:        cfg.Detector,
		MaxParallel:     cfg.Run.MaxParallel,
		DispatchTimeout: cfg.Run.DispatchTimeout.Std(),
		Synthesize:      cfg.Run.Synthesize,
	})
	engine.SetSynthesizer(synthesize.NewLLMSynthesizer(answerer))

	return cfg, store, engine, nil
}

// MaybePrependStdin prepends piped stdin to the seed text, if any.
func MaybePrependStdin(seed string) (string, error) {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return seed, nil
	}
	if stat.Mode()&os.ModeNamedPipe == 0 && !stat.Mode().IsRegular() {
		return seed, nil
	}

	data, err := io.ReadAll(bufio.NewReader(os.Stdin))
	if err != nil {
		return "", err
	}
	if len(data) == 0 {
		return seed, nil
	}
	return strings.TrimSpace(string(data)) + "\n\n" + seed, nil
}
