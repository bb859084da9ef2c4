package kaybee

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3" // registers the "sqlite3" driver
)

// sqliteBusyTimeoutMs bounds how long a connection waits on SQLITE_BUSY
// before giving up, matching the teacher's single-writer tuning.
const sqliteBusyTimeoutMs = 10000

// openSQLite opens the store's sqlite file with the pragmas the engine
// relies on: WAL for durability without torn writes, a single pooled
// connection (the engine never needs more - spec.md explicitly makes
// multi-writer concurrency a Non-goal), and a busy timeout for
// contention from other connections to the same file.
func openSQLite(ctx context.Context, path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()

		return nil, fmt.Errorf("pinging sqlite database: %w", err)
	}

	pragmas := []string{
		fmt.Sprintf("PRAGMA busy_timeout = %d", sqliteBusyTimeoutMs),
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA temp_store = MEMORY",
	}

	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			db.Close()

			return nil, fmt.Errorf("applying %q: %w", p, err)
		}
	}

	return db, nil
}
