// Command loaderd is the workload-generation control plane's HTTP
// server entrypoint. It wires the Loader Registry, the shared document
// generator/template, and the per-backend adapter constructors behind
// the HTTP Control Surface, then serves until an interrupt or SIGTERM
// is observed.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/minghe/crudloader/internal/generator"
	"github.com/minghe/crudloader/internal/httpapi"
	"github.com/minghe/crudloader/internal/model"
	"github.com/minghe/crudloader/internal/registry"
)

func main() {
	var (
		addr             string
		registryURI      string
		registryDatabase string
		registryCollection string
		opLogDir         string
		verbose          bool
	)

	root := &cobra.Command{
		Use:   "loaderd",
		Short: "Run the workload-generation control plane",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), runConfig{
				Addr:               addr,
				RegistryURI:        registryURI,
				RegistryDatabase:   registryDatabase,
				RegistryCollection: registryCollection,
				OpLogDir:           opLogDir,
				Verbose:            verbose,
			})
		},
	}

	flags := root.Flags()
	flags.StringVar(&addr, "addr", ":8080", "HTTP listen address")
	flags.StringVar(&registryURI, "registry-uri", "", "MongoDB connection string backing the loader registry (empty uses an in-memory store)")
	flags.StringVar(&registryDatabase, "registry-database", "loaderControlPlane", "Database holding the loader registry collection")
	flags.StringVar(&registryCollection, "registry-collection", "loaders", "Collection holding loader records")
	flags.StringVar(&opLogDir, "oplog-dir", "", "Directory to write per-loader operation logs (empty disables)")
	flags.BoolVar(&verbose, "verbose", false, "Debug-level logging")

	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type runConfig struct {
	Addr               string
	RegistryURI        string
	RegistryDatabase   string
	RegistryCollection string
	OpLogDir           string
	Verbose            bool
}

func run(ctx context.Context, cfg runConfig) error {
	level := zerolog.InfoLevel
	if cfg.Verbose {
		level = zerolog.DebugLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
		Level(level).
		With().Timestamp().Logger()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info().Msg("shutdown signal received")
		cancel()
	}()

	store, closeStore, err := buildStore(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("loaderd: build registry store: %w", err)
	}
	defer closeStore()

	reg := registry.New(store)
	gen := generator.New(model.NewTemplate())

	manager := &httpapi.Manager{
		Registry:  reg,
		Generator: gen,
		Logger:    logger,
		OpLogDir:  cfg.OpLogDir,
	}

	srv := &http.Server{
		Addr:    cfg.Addr,
		Handler: httpapi.NewRouter(manager),
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.Addr).Msg("control plane listening")
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("loaderd: serve: %w", err)
		}
	case <-ctx.Done():
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("graceful shutdown failed")
		}
	}
	logger.Info().Msg("control plane stopped")
	return nil
}

// buildStore returns a Mongo-backed registry.Store when a connection URI
// is configured, else an in-memory one — matching the Non-goals'
// best-effort durability stance rather than refusing to start.
func buildStore(ctx context.Context, cfg runConfig, logger zerolog.Logger) (registry.Store, func(), error) {
	if cfg.RegistryURI == "" {
		logger.Warn().Msg("no registry-uri configured, loader registry is in-memory only")
		return registry.NewMemStore(), func() {}, nil
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.RegistryURI))
	if err != nil {
		return nil, nil, fmt.Errorf("connect registry store: %w", err)
	}
	store := registry.NewMongoStore(client, cfg.RegistryDatabase, cfg.RegistryCollection)
	return store, func() {
		disconnectCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = client.Disconnect(disconnectCtx)
	}, nil
}
