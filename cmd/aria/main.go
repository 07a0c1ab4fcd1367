// Command aria runs the assistant subsystem headless: it connects to the
// assistant server, keeps the conversation store reconciled with the inbound
// token stream, and executes assistant-requested playback actions. The
// rendering layer attaches through the event bus and the store snapshot.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"aria/internal/adapter/catalog"
	"aria/internal/adapter/history"
	"aria/internal/adapter/playback"
	"aria/internal/adapter/prefs"
	"aria/internal/adapter/transport"
	"aria/internal/infra/config"
	"aria/internal/infra/logger"
	"aria/internal/infra/tracer"
	"aria/internal/usecase"
	"aria/internal/usecase/eventbus"
)

func main() {
	if len(os.Args) >= 2 && os.Args[1] == "encrypt" {
		if err := runEncrypt(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "encrypt: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("aria", flag.ExitOnError)
	configPath := fs.String("config", "aria.yaml", "path to config file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, closeLog, err := logger.New(cfg.Logger)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := tracer.Setup(ctx, cfg.Tracer)
	if err != nil {
		return fmt.Errorf("init tracer: %w", err)
	}
	defer shutdownTracer(context.Background())

	prefStore, err := prefs.NewSQLiteStore(cfg.Prefs.Path)
	if err != nil {
		return fmt.Errorf("open prefs: %w", err)
	}
	defer prefStore.Close()

	bus := eventbus.New(log)
	defer bus.Close()

	client := transport.NewClient(cfg.Assistant, log)
	catalogClient := catalog.NewClient(cfg.Catalog, log)
	historyClient := history.NewClient(cfg.History, log)
	queue := playback.New(log)

	store := usecase.NewStore()
	executor := usecase.NewExecutor(catalogClient, queue, logNavigator{log}, bus, log)
	orch := usecase.NewOrchestrator(store, executor, client, historyClient, prefStore, bus, log)
	orch.SetHistoryLimits(cfg.History.MaxMessages, cfg.History.PageSize)

	transportDone := make(chan error, 1)
	go func() { transportDone <- client.Run(ctx) }()

	orch.Restore(ctx)
	orch.RefreshConversations(ctx)

	log.Info("aria started", "assistant", cfg.Assistant.URL)

	if err := orch.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	<-transportDone
	log.Info("aria stopped")
	return nil
}

// runEncrypt encrypts a secret for use as an "enc:" config value.
func runEncrypt(args []string) error {
	fs := flag.NewFlagSet("aria encrypt", flag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: aria encrypt <value> (reads ARIA_CONFIG_KEY)")
	}
	passphrase := os.Getenv("ARIA_CONFIG_KEY")
	if passphrase == "" {
		return fmt.Errorf("ARIA_CONFIG_KEY not set")
	}
	enc, err := config.EncryptValue(fs.Arg(0), passphrase)
	if err != nil {
		return err
	}
	fmt.Println("enc:" + enc)
	return nil
}

// logNavigator is the headless navigation target. A real rendering layer
// replaces this with its router.
type logNavigator struct {
	log *slog.Logger
}

func (n logNavigator) ShowSearch(query, resultType string) {
	n.log.Info("navigate to search", "query", query, "result_type", resultType)
}

func (n logNavigator) ShowPlaylist(playlistID string) {
	n.log.Info("navigate to playlist", "playlist_id", playlistID)
}
