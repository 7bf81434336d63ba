// Package server exposes stored variants over HTTP at
// /{namespace}/{key}/{id}/{variant} and Prometheus metrics at /metrics.
package server

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/roach88/contentsync/internal/resource"
	"github.com/roach88/contentsync/internal/service"
)

// Variants is the slice of the content service the server reads from.
type Variants interface {
	Variant(ctx context.Context, id resource.ID, variant string) (resource.Blob, error)
}

// Options configures a Server.
type Options struct {
	// Namespace is the first path segment (default service.DefaultNamespace).
	Namespace string
	// Key must match the second path segment.
	Key string
	// Registry is served at /metrics when set.
	Registry *prometheus.Registry
	Logger   *slog.Logger
}

// Server serves variant content.
type Server struct {
	svc    Variants
	ns     string
	key    string
	logger *slog.Logger
	router *mux.Router
}

// New returns a Server reading from svc.
func New(svc Variants, opts Options) *Server {
	s := &Server{
		svc:    svc,
		ns:     opts.Namespace,
		key:    opts.Key,
		logger: opts.Logger,
		router: mux.NewRouter(),
	}
	if s.ns == "" {
		s.ns = service.DefaultNamespace
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.logger = s.logger.With("component", "server")

	s.router.Use(s.logRequests)
	if opts.Registry != nil {
		s.router.Handle("/metrics", promhttp.HandlerFor(opts.Registry, promhttp.HandlerOpts{}))
	}
	s.router.HandleFunc("/{namespace}/{key}/{id}/{variant}", s.serveVariant).
		Methods(http.MethodGet, http.MethodHead)
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) serveVariant(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if vars["namespace"] != s.ns || subtle.ConstantTimeCompare([]byte(vars["key"]), []byte(s.key)) != 1 {
		http.NotFound(w, r)
		return
	}

	blob, err := s.svc.Variant(r.Context(), resource.ID(vars["id"]), vars["variant"])
	if errors.Is(err, service.ErrNotFound) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		s.logger.Error("failed to read variant", "id", vars["id"], "variant", vars["variant"], "error", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	mimeType := blob.MimeType
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", mimeType)
	w.Header().Set("Content-Length", strconv.Itoa(len(blob.Data)))
	w.Header().Set("Cache-Control", "no-cache")
	if r.Method == http.MethodHead {
		return
	}
	_, _ = w.Write(blob.Data)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("request", "method", r.Method, "path", r.URL.Path, "elapsed", time.Since(start))
	})
}

// ListenAndServe serves on addr until ctx is done, then shuts down
// gracefully. ready, when non-nil, receives the bound address.
func (s *Server) ListenAndServe(ctx context.Context, addr string, ready chan<- net.Addr) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	s.logger.Info("listening", "addr", ln.Addr().String())
	if ready != nil {
		ready <- ln.Addr()
	}

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
