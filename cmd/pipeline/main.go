package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"ctscan/config"
	"ctscan/internal/container"
	"ctscan/internal/domain/port"
	"ctscan/internal/infrastructure/logging"
	"ctscan/internal/infrastructure/storage"
)

var (
	// Global flags
	configPath string
	verbose    bool
	noJournal  bool

	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "pipeline",
	Short: "Train the CT-scan classifier: ingest, prepare base model, train",
	Long: `Runs the training pipeline stages strictly in order:
  1. Data Ingestion      download the dataset archive and extract it
  2. Prepare Base Model  build the pretrained backbone with a fresh head
  3. Training            fit the head and write the trained model artifact

The first failing stage halts the run; the process exits non-zero.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		logger, err = logging.New(cfg.Log, verbose)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPipeline(cmd.Context(), container.Stages(cfg, logger)...)
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

// stageCmd запускает один этап
var stageCmd = &cobra.Command{
	Use:       "stage <ingest|prepare|train>",
	Short:     "Run a single pipeline stage",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"ingest", "prepare", "train"},
	RunE: func(cmd *cobra.Command, args []string) error {
		stages := container.Stages(cfg, logger)
		idx := map[string]int{"ingest": 0, "prepare": 1, "train": 2}
		i, ok := idx[args[0]]
		if !ok {
			return fmt.Errorf("unknown stage %q (want ingest, prepare or train)", args[0])
		}
		return runPipeline(cmd.Context(), stages[i])
	},
}

// runsCmd печатает последние записи журнала
var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Show recent pipeline runs from the journal",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		journal, err := storage.OpenRunJournal(cfg.Pipeline.Journal)
		if err != nil {
			return err
		}
		defer journal.Close()

		entries, err := journal.Recent(cmd.Context(), limit)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, e := range entries {
			r := e.Result
			line := fmt.Sprintf("%s  %s  %-20s %-9s %s",
				e.RunID, r.StartedAt.Local().Format(time.DateTime), r.Stage, r.Status, r.Duration().Round(time.Millisecond))
			if r.Err != nil {
				line += "  " + r.Err.Error()
			}
			fmt.Fprintln(out, line)
		}
		return nil
	},
}

func runPipeline(ctx context.Context, stages ...port.Stage) error {
	var journal port.RunJournal
	if !noJournal && cfg.Pipeline.Journal != "" {
		j, err := storage.OpenRunJournal(cfg.Pipeline.Journal)
		if err != nil {
			logger.Warn("run journal unavailable", zap.String("path", cfg.Pipeline.Journal), zap.Error(err))
		} else {
			defer j.Close()
			journal = j
		}
	}

	report := container.Pipeline(cfg, logger, journal, stages...).Run(ctx)
	if err := report.Err(); err != nil {
		failed, _ := report.Failed()
		return fmt.Errorf("stage %q failed: %w", failed.Stage, err)
	}
	logger.Info("pipeline finished", zap.String("run_id", report.RunID))
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file (default: $CTSCAN_CONFIG or config/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().BoolVar(&noJournal, "no-journal", false, "Do not record stage results in the run journal")

	runsCmd.Flags().Int("limit", 20, "Number of journal entries to show")

	rootCmd.AddCommand(stageCmd)
	rootCmd.AddCommand(runsCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}
