package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"ctscan/config"
	"ctscan/internal/api/telegram"
	"ctscan/internal/api/web"
	"ctscan/internal/container"
	"ctscan/internal/infrastructure/logging"
	"ctscan/internal/infrastructure/model"
)

var (
	configPath string
	verbose    bool
	withBot    bool
)

var rootCmd = &cobra.Command{
	Use:   "app",
	Short: "Serve the CT-scan diagnostic dashboard",
	Long: `Starts the web dashboard and JSON API. With --bot (or a configured
telegram token) the Telegram bot runs alongside it.

A missing model artifact does not stop the server: analysis requests are
rejected until the artifact appears (see inference.watch).`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          run,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file (default: $CTSCAN_CONFIG or config/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.Flags().BoolVar(&withBot, "bot", false, "Run the Telegram bot (requires TELEGRAM_TOKEN)")
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	logger, err := logging.New(cfg.Log, verbose)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Sync()

	// Собираем сервисы приложения
	appContainer, err := container.New(cfg, logger)
	if err != nil {
		return err
	}

	server, err := web.NewServer(appContainer.AnalysisService, appContainer.SessionService, web.Options{
		MaxUploadBytes: cfg.HTTP.MaxUploadMB << 20,
		HistoryDisplay: cfg.HTTP.HistoryDisplay,
		SessionTTL:     cfg.HTTP.SessionTTL,
	}, logger.Named("web"))
	if err != nil {
		return err
	}

	var watcher *model.Watcher
	if cfg.Inference.Watch && !appContainer.Model.Available() {
		watcher, err = model.NewWatcher(cfg.Inference.ModelPath, appContainer.Loader, appContainer.Model, logger.Named("watcher"))
		if err != nil {
			return err
		}
	}

	var bot *telegram.Bot
	if withBot || cfg.Telegram.Token != "" {
		if cfg.Telegram.Token == "" {
			return fmt.Errorf("TELEGRAM_TOKEN is required for --bot")
		}
		bot, err = telegram.NewBot(cfg.Telegram.Token, appContainer.AnalysisService, appContainer.SessionService, logger.Named("telegram"))
		if err != nil {
			return fmt.Errorf("failed to create bot: %w", err)
		}
	}

	g, ctx := errgroup.WithContext(cmd.Context())
	g.Go(func() error {
		return server.Run(ctx, cfg.HTTP.Addr)
	})
	if watcher != nil {
		g.Go(func() error {
			return watcher.Run(ctx)
		})
	}
	if bot != nil {
		g.Go(func() error {
			return bot.Run(ctx)
		})
	}

	logger.Info("app is running",
		zap.String("addr", cfg.HTTP.Addr),
		zap.Bool("model_available", appContainer.Model.Available()),
	)
	return g.Wait()
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
