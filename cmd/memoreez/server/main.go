package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/astromechza/memoreez/pkg/board"
	"github.com/astromechza/memoreez/pkg/config"
	"github.com/astromechza/memoreez/pkg/server"
	"github.com/astromechza/memoreez/pkg/viz"
)

func main() {
	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}
}

type options struct {
	configPath string
	envFile    string
	addr       string
	database   string
	dumpDir    string
	colors     []string
}

// load reads the configuration and applies any flags that were set.
func (o *options) load() (config.Config, error) {
	cfg, err := config.Load(o.configPath, o.envFile)
	if err != nil {
		return cfg, err
	}
	if o.addr != "" {
		cfg.Server.Addr = o.addr
	}
	if o.database != "" {
		cfg.Server.Database = o.database
	}
	if o.dumpDir != "" {
		cfg.Server.DumpDir = o.dumpDir
	}
	if len(o.colors) > 0 {
		cfg.Server.Colors = o.colors
	}
	return cfg, cfg.Server.Validate()
}

func newRootCommand() *cobra.Command {
	opts := &options{}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the board over HTTP and websocket",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}

	repopulateCmd := &cobra.Command{
		Use:   "repopulate",
		Short: "Reshuffle the stored board and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			return repopulate(cmd.Context(), cfg)
		},
	}

	rootCmd := &cobra.Command{
		Use:           "memoreez-server",
		Short:         "Server for the memoreez matching game",
		Long:          "Server for the memoreez matching game. Without a subcommand it behaves like serve.",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          serveCmd.RunE,
	}
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "path to a YAML config file")
	flags.StringVar(&opts.envFile, "env-file", ".env", "dotenv file to load if present")
	flags.StringVar(&opts.addr, "addr", "", "the address to listen on")
	flags.StringVar(&opts.database, "database", "", "path to the sqlite database")
	flags.StringVar(&opts.dumpDir, "dump-dir", "", "directory the board is dumped to on shutdown")
	flags.StringSliceVar(&opts.colors, "colors", nil, "colors to lay out, each appears twice")

	rootCmd.AddCommand(serveCmd, repopulateCmd)
	return rootCmd
}

func openBoard(ctx context.Context, cfg config.Config) (*board.Store, *board.Service, error) {
	slog.Info("Opening database", "path", cfg.Server.Database)
	store, err := board.OpenStore(cfg.Server.Database)
	if err != nil {
		return nil, nil, err
	}
	svc, err := board.NewService(ctx, store, cfg.Server.Colors, nil, slog.Default())
	if err != nil {
		_ = store.Close()
		return nil, nil, err
	}
	return store, svc, nil
}

func repopulate(ctx context.Context, cfg config.Config) error {
	store, svc, err := openBoard(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	generation, err := svc.Repopulate(ctx)
	if err != nil {
		return err
	}
	slog.Info("repopulated", "generation", generation, "cells", svc.Count())
	return nil
}

func serve(ctx context.Context, cfg config.Config) error {
	store, svc, err := openBoard(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	httpServer := &http.Server{Addr: cfg.Server.Addr, Handler: server.New(svc, slog.Default()).Handler()}

	wg := new(sync.WaitGroup)
	serveErr := make(chan error, 1)
	wg.Add(1)
	go func() {
		defer wg.Done()
		slog.Info("listening", "addr", cfg.Server.Addr, "generation", svc.Generation())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	exit := make(chan os.Signal, 1) // we need to reserve to buffer size 1, so the notifier are not blocked
	signal.Notify(exit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(exit)

	select {
	case sig := <-exit:
		slog.Info("Signal caught", "sig", sig)
	case err := <-serveErr:
		wg.Wait()
		return fmt.Errorf("server listen failed: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("graceful shutdown failed", "err", err)
		_ = httpServer.Close()
	}
	wg.Wait()

	dump(svc, cfg.Server.DumpDir)
	return nil
}

// dump writes the board document and a rendering of its history to dir.
func dump(svc *board.Service, dir string) {
	doc, err := svc.Snapshot()
	if err != nil {
		slog.Error("failed to snapshot board", "err", err)
		return
	}
	base := filepath.Join(dir, "memoreez-"+svc.Generation())
	if err := os.WriteFile(base+".automerge", doc.Save(), 0o644); err != nil {
		slog.Error("failed to dump", "err", err)
		return
	}
	slog.Info("dumped", "path", base+".automerge")

	if err := viz.RenderDocToSvg(doc, base+".svg"); err != nil {
		slog.Error("failed to render", "err", err)
		return
	}
	slog.Info("rendered", "path", "file://"+base+".svg")
}
