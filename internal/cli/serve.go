package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/contentsync/internal/content"
	"github.com/roach88/contentsync/internal/metrics"
	"github.com/roach88/contentsync/internal/server"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Addr string

	// Ready receives the bound address once the server listens (for
	// testing).
	Ready chan<- net.Addr
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	return newServeCommand(&ServeOptions{RootOptions: rootOpts})
}

func newServeCommand(opts *ServeOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve stored variants over HTTP",
		Long: `Open the content store and serve its variants at
http://<host>:<port>/<namespace>/<key>/<id>/<variant>, plus Prometheus
metrics at /metrics.

The homescreen defaults are seeded and the plugin list is watched while
serving. SIGINT or SIGTERM shuts the server down gracefully.

Example:
  contentsync serve --db ./content.db
  contentsync serve --addr 127.0.0.1:0 --verbose`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", "", "listen address (default: http.host:http.port)")

	return cmd
}

func runServe(cmd *cobra.Command, opts *ServeOptions) error {
	e, err := openEnv(cmd, opts.RootOptions, slog.LevelInfo)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := e.Close(); closeErr != nil {
			e.logger.Error("error closing database", "error", closeErr)
		}
	}()
	slog.SetDefault(e.logger)

	ctx, cancel := context.WithCancel(e.ctx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			e.logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	if _, err := e.actions(); err != nil {
		return err
	}
	pm, err := e.plugins()
	if err != nil {
		return err
	}
	if err := pm.Init(ctx); err != nil {
		return e.fail(err, "failed to watch plugins")
	}
	defer pm.Close(context.Background())

	for _, name := range []string{content.ContainerPlaces, content.ContainerMedia} {
		if _, err := e.content.EnsureTopLevelContainer(ctx, name); err != nil {
			return e.fail(err, "failed to resolve "+name)
		}
	}

	reg, err := metrics.NewRegistry(e.metrics)
	if err != nil {
		return e.fail(err, "failed to register metrics")
	}
	key, err := e.store.HTTPKey(ctx)
	if err != nil {
		return e.fail(err, "failed to read http key")
	}
	srv := server.New(e.store, server.Options{
		Namespace: e.cfg.HTTP.Namespace,
		Key:       key,
		Registry:  reg,
		Logger:    e.logger,
	})

	addr := opts.Addr
	if addr == "" {
		addr = e.cfg.HTTP.Addr()
	}

	ready := make(chan net.Addr, 1)
	go func() {
		select {
		case bound := <-ready:
			fmt.Fprintf(cmd.OutOrStdout(), "Serving content at http://%s/%s/%s/\n", bound, e.cfg.HTTP.Namespace, key)
			fmt.Fprintln(cmd.OutOrStdout(), "Press Ctrl-C to stop.")
			if opts.Ready != nil {
				opts.Ready <- bound
			}
		case <-ctx.Done():
		}
	}()

	if err := srv.ListenAndServe(ctx, addr, ready); err != nil && !errors.Is(err, context.Canceled) {
		return e.fail(err, "server error")
	}

	e.logger.Info("server stopped gracefully")
	return nil
}
