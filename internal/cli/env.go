package cli

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/contentsync/internal/actions"
	"github.com/roach88/contentsync/internal/config"
	"github.com/roach88/contentsync/internal/content"
	"github.com/roach88/contentsync/internal/metrics"
	"github.com/roach88/contentsync/internal/plugins"
	"github.com/roach88/contentsync/internal/registry"
	"github.com/roach88/contentsync/internal/service"
	"github.com/roach88/contentsync/internal/store"
)

// closeTimeout bounds the final flush of pending writes.
const closeTimeout = 10 * time.Second

// env is the opened application state shared by all commands.
type env struct {
	cfg     config.Config
	logger  *slog.Logger
	metrics *metrics.Collector
	store   *store.Store
	content *content.Manager
	out     *OutputFormatter

	ctx    context.Context
	cancel context.CancelFunc
}

// openEnv loads config, opens the store and builds the content manager.
// level is the log level used without --verbose.
func openEnv(cmd *cobra.Command, opts *RootOptions, level slog.Level) (*env, error) {
	out := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	cfg, err := config.Load(opts.Config)
	if err != nil {
		_ = out.Error(ErrCodeConfig, err.Error(), nil)
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if opts.DB != "" {
		cfg.Database.Path = opts.DB
	}

	logger := newLogger(cmd.ErrOrStderr(), opts.Verbose, level)

	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		_ = out.Error(ErrCodeDatabase, err.Error(), nil)
		return nil, WrapExitError(ExitCommandError, "failed to create database directory", err)
	}
	storeOpts := append([]store.Option{
		store.WithLogger(logger),
		store.WithPageSize(cfg.Listing.PageSize),
	}, opts.StoreOptions...)

	logger.Debug("opening database", "path", cfg.Database.Path)
	st, err := store.Open(cfg.Database.Path, storeOpts...)
	if err != nil {
		_ = out.Error(ErrCodeDatabase, err.Error(), map[string]string{"path": cfg.Database.Path})
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}

	fetcher := opts.Fetcher
	if fetcher == nil {
		fetcher = service.FileFetcher{Remote: service.NewHTTPFetcher(cfg.Fetch.Timeout)}
	}

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)

	collector := metrics.New()
	cm := content.NewManager(ctx, st, fetcher, content.Options{
		URLs: service.URLBuilder{
			Host:      cfg.HTTP.Host,
			Port:      cfg.HTTP.Port,
			Namespace: cfg.HTTP.Namespace,
		},
		Concurrency: cfg.Listing.Concurrency,
		Logger:      logger,
		Metrics:     collector,
	})

	return &env{
		cfg:     cfg,
		logger:  logger,
		metrics: collector,
		store:   st,
		content: cm,
		out:     out,
		ctx:     ctx,
		cancel:  cancel,
	}, nil
}

// actions returns the initialized homescreen store, seeding defaults on
// first use.
func (e *env) actions() (*actions.Store, error) {
	s := actions.New(e.content, actions.Options{Port: e.cfg.HTTP.Port})
	if err := s.Init(e.ctx); err != nil {
		return nil, e.fail(err, "failed to load actions")
	}
	return s, nil
}

// plugins returns a plugin manager with its list loaded.
func (e *env) plugins() (*plugins.Manager, error) {
	m := plugins.New(e.ctx, e.content, nil)
	if err := m.Update(e.ctx); err != nil {
		_ = m.Close(e.ctx)
		return nil, e.fail(err, "failed to load plugins")
	}
	return m, nil
}

// Close flushes pending writes and releases the store.
func (e *env) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	if err := e.content.Flush(ctx); err != nil {
		e.logger.Warn("pending writes not flushed", "error", err)
	}
	e.content.Close()
	e.cancel()
	return e.store.Close()
}

// fail reports err in the configured format and returns it as an
// ExitError.
func (e *env) fail(err error, message string) error {
	code, exit := classify(err)
	_ = e.out.Error(code, message+": "+err.Error(), nil)
	return WrapExitError(exit, message, err)
}

// classify maps domain errors to a response code and exit code.
func classify(err error) (string, int) {
	switch {
	case errors.Is(err, service.ErrNotFound),
		errors.Is(err, actions.ErrUnknownAction):
		return ErrCodeNotFound, ExitFailure
	case errors.Is(err, actions.ErrNotReady):
		return ErrCodeNotReady, ExitFailure
	case errors.Is(err, actions.ErrDuplicateAction),
		errors.Is(err, service.ErrExists):
		return ErrCodeInvalidArgs, ExitFailure
	case errors.Is(err, plugins.ErrNotWasm):
		return ErrCodeInvalidPlugin, ExitFailure
	case errors.Is(err, registry.ErrUnresolvable):
		return ErrCodeDatabase, ExitFailure
	default:
		return ErrCodeGeneric, ExitFailure
	}
}

// newLogger returns a text logger on w. verbose switches to debug.
func newLogger(w io.Writer, verbose bool, level slog.Level) *slog.Logger {
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// withEnv opens the environment, runs fn and closes it.
func withEnv(cmd *cobra.Command, opts *RootOptions, fn func(e *env) error) error {
	e, err := openEnv(cmd, opts, slog.LevelWarn)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := e.Close(); closeErr != nil {
			e.logger.Error("error closing database", "error", closeErr)
		}
	}()
	return fn(e)
}

// invalid reports a usage error and returns it as an ExitError.
func (e *env) invalid(message string) error {
	_ = e.out.Error(ErrCodeInvalidArgs, message, nil)
	return NewExitError(ExitCommandError, message)
}
