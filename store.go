package kaybee

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"
)

const (
	dbFileName     = "index.sqlite"
	metaTable      = "_kaybee_store_meta"
	metaModeKey    = "storage_mode"
	changelogTable = "_changelog"
	typesTable     = "_types"
	linksTable     = "_links"
	nodesTable     = "nodes"
)

// Store is an open handle to a kaybee data directory. It owns the
// sqlite connection, the chosen storage backend, and the validator (if
// any) attached via UseValidator. A Store is not safe for concurrent
// use from multiple goroutines without external synchronization beyond
// what the connection pool itself serializes - matching the
// single-threaded cooperative model spec.md 5 describes.
type Store struct {
	mu     sync.Mutex
	db     *sql.DB
	dir    string
	cfg    Config
	backend backend
	validator *Validator
	log    zerolog.Logger
}

// Open opens (creating if necessary) a store rooted at cfg.DataDir. If
// the directory already holds a store created under a different
// storage mode, Open returns an error wrapping ErrModeMismatch.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	log := withComponent("store")

	if cfg.StorageMode == "" {
		cfg.StorageMode = ModeMulti
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, wrap(fmt.Errorf("creating data directory: %w", err), withOp("Open"))
	}

	db, err := openSQLite(ctx, filepath.Join(cfg.DataDir, dbFileName))
	if err != nil {
		return nil, wrap(err, withOp("Open"))
	}

	s := &Store{db: db, dir: cfg.DataDir, cfg: cfg, log: log}

	if err := s.bootstrap(ctx); err != nil {
		db.Close()

		return nil, err
	}

	return s, nil
}

// bootstrap creates the shared schema (nodes/_types/_links and,
// conditionally, _changelog) and resolves/stamps the storage mode.
func (s *Store) bootstrap(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrap(err, withOp("Open"))
	}
	defer tx.Rollback()

	if err := ensureTable(ctx, tx, metaTable, []string{"key TEXT PRIMARY KEY", "value TEXT"}); err != nil {
		return wrap(err, withOp("Open"))
	}

	var storedMode string

	row := tx.QueryRowContext(ctx, fmt.Sprintf("SELECT value FROM %q WHERE key = ?", metaTable), metaModeKey)
	if err := row.Scan(&storedMode); err != nil && err != sql.ErrNoRows {
		return wrap(err, withOp("Open"))
	}

	if storedMode == "" {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("INSERT INTO %q (key, value) VALUES (?, ?)", metaTable),
			metaModeKey, string(s.cfg.StorageMode)); err != nil {
			return wrap(err, withOp("Open"))
		}
	} else if StorageMode(storedMode) != s.cfg.StorageMode {
		return wrap(fmt.Errorf("%w: store was created in %q mode, cannot open as %q",
			ErrModeMismatch, storedMode, s.cfg.StorageMode), withOp("Open"))
	}

	if s.cfg.StorageMode == ModeSingle {
		s.backend = singleBackend{}
	} else {
		s.backend = multiBackend{}
	}

	if err := ensureTable(ctx, tx, nodesTable, []string{"name TEXT PRIMARY KEY", "type TEXT NOT NULL"}); err != nil {
		return wrap(err, withOp("Open"))
	}

	if err := ensureTable(ctx, tx, typesTable, []string{"type_name TEXT PRIMARY KEY"}); err != nil {
		return wrap(err, withOp("Open"))
	}

	if err := ensureTable(ctx, tx, linksTable, []string{
		"source TEXT NOT NULL", "target_raw TEXT NOT NULL", "target_resolved TEXT", "context TEXT",
		"PRIMARY KEY (source, target_raw)",
	}); err != nil {
		return wrap(err, withOp("Open"))
	}

	if _, err := tx.ExecContext(ctx,
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_links_target_resolved ON %q (target_resolved)", linksTable)); err != nil {
		return wrap(err, withOp("Open"))
	}

	if s.cfg.ChangelogEnabled {
		if err := ensureTable(ctx, tx, changelogTable, []string{
			"seq INTEGER PRIMARY KEY AUTOINCREMENT", "ts INTEGER NOT NULL", "op TEXT NOT NULL",
			"name TEXT NOT NULL", "payload TEXT NOT NULL",
		}); err != nil {
			return wrap(err, withOp("Open"))
		}
	}

	return tx.Commit()
}

// UseValidator attaches v as the gatekeeper run on every write. Passing
// nil detaches any previously attached validator.
func (s *Store) UseValidator(v *Validator) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.validator = v
}

// Close releases the underlying sqlite connection. Close is idempotent.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}

	err := s.db.Close()
	s.db = nil

	return err
}

// Query runs sqlText with args against the store's raw *sql.DB, giving
// callers (tests, embedding code) escape-hatch access to run arbitrary read-only
// SQL against the contractual table names in spec.md 6.3.
func (s *Store) Query(ctx context.Context, sqlText string, args ...any) (*sql.Rows, error) {
	s.mu.Lock()
	db := s.db
	s.mu.Unlock()

	if db == nil {
		return nil, ErrClosed
	}

	return db.QueryContext(ctx, sqlText, args...)
}
