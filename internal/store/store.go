package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/contentsync/internal/service"
)

// DefaultPageSize is the batch size of cursors returned by the store.
const DefaultPageSize = 20

// Store is the local content service.
// Uses SQLite with WAL mode for concurrent read access.
//
// Thread-safety: all methods are safe for concurrent use.
type Store struct {
	db       *sql.DB
	clock    *Clock
	ids      IDGenerator
	httpKey  string
	pageSize int
	logger   *slog.Logger

	changes    *changeQueue
	done       chan struct{}
	dispatched chan struct{}
	closeOnce  sync.Once

	obsMu     sync.Mutex
	observers map[service.Subscription]observer
	subOrder  []service.Subscription
	nextSub   service.Subscription
}

var _ service.Service = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithIDGenerator sets the resource id generator (default UUIDv7).
func WithIDGenerator(g IDGenerator) Option {
	return func(s *Store) {
		s.ids = g
	}
}

// WithHTTPKey fixes the http key instead of generating a random one.
func WithHTTPKey(key string) Option {
	return func(s *Store) {
		if key != "" {
			s.httpKey = key
		}
	}
}

// WithPageSize sets the batch size of returned cursors.
func WithPageSize(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.pageSize = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		s.logger = l
	}
}

// Open creates or opens a SQLite database at the given path.
// Applies required pragmas and migrations automatically.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode (balance durability/performance)
//   - 5-second busy timeout for lock contention
//   - Foreign key enforcement
//
// This function is idempotent - safe to call multiple times.
func Open(path string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?_foreign_keys=on", path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections.
	// Never hold rows open while issuing another statement.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	var last int64
	err = db.QueryRow(`
		SELECT MAX(
			(SELECT COALESCE(MAX(modified_seq), 0) FROM resources),
			(SELECT COALESCE(MAX(seq), 0) FROM visits)
		)
	`).Scan(&last)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to resume clock: %w", err)
	}

	s := &Store{
		db:         db,
		clock:      NewClockAt(last),
		ids:        UUIDv7Generator{},
		httpKey:    uuid.NewString(),
		pageSize:   DefaultPageSize,
		logger:     slog.Default(),
		changes:    newChangeQueue(),
		done:       make(chan struct{}),
		dispatched: make(chan struct{}),
		observers:  make(map[service.Subscription]observer),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "store")

	go s.dispatch()
	return s, nil
}

// Close stops change delivery and closes the database connection.
// Pending notifications are delivered before Close returns.
func (s *Store) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.changes.Close()
		close(s.done)
		<-s.dispatched
		err = s.db.Close()
	})
	return err
}

// DB returns the underlying sql.DB for direct queries.
// Use with caution - prefer using Store methods when available.
func (s *Store) DB() *sql.DB {
	return s.db
}

// HTTPKey implements service.Service.
func (s *Store) HTTPKey(ctx context.Context) (string, error) {
	return s.httpKey, nil
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	query := fmt.Sprintf("PRAGMA %s", name)
	if err := s.db.QueryRow(query).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
