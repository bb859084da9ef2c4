// Command kaybeed runs the replication daemon: on a fixed interval it
// pushes new changelog entries to a remote relational store and pulls
// rows back, using the adapter contract so the remote engine stays
// swappable.
//
// Usage:
//
//	kaybeed --data-dir .kaybee --remote-dsn ./remote.sqlite --scope project=demo
package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	flag "github.com/spf13/pflag"

	"github.com/kaybeehq/kaybee"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "kaybeed: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		dataDir       string
		remoteDSN     string
		scopeFlags    []string
		intervalSecs  int
		once          bool
		fallbackEvery int
		logLevel      string
	)

	flag.StringVar(&dataDir, "data-dir", ".kaybee", "local store data directory")
	flag.StringVar(&remoteDSN, "remote-dsn", "", "sqlite DSN for the remote store (stand-in adapter target)")
	flag.StringSliceVar(&scopeFlags, "scope", nil, "scope key=value pair injected into every remote row, repeatable")
	flag.IntVar(&intervalSecs, "interval", 30, "seconds between replication cycles")
	flag.BoolVar(&once, "once", false, "run a single replication cycle and exit")
	flag.IntVar(&fallbackEvery, "fallback-every", 0, "run a full-scan PushFallback every N cycles instead of Push (0 disables)")
	flag.StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	if remoteDSN == "" {
		return fmt.Errorf("--remote-dsn is required")
	}

	level, err := zerolog.ParseLevel(logLevel)
	if err != nil {
		return fmt.Errorf("parsing --log-level: %w", err)
	}

	kaybee.SetLogOutput(os.Stderr, level)

	scope, err := parseScope(scopeFlags)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := kaybee.LoadConfig(".", kaybee.Config{DataDir: dataDir}, os.Getenv)
	if err != nil {
		return err
	}

	store, err := kaybee.Open(ctx, cfg)
	if err != nil {
		return fmt.Errorf("opening local store: %w", err)
	}
	defer store.Close()

	remoteDB, err := sql.Open("sqlite3", remoteDSN)
	if err != nil {
		return fmt.Errorf("opening remote store: %w", err)
	}
	defer remoteDB.Close()

	dialect := kaybee.SQLiteDialect{}

	var (
		sinceSeq int64
		cycle    int
	)

	for {
		cycle++

		if err := replicationCycle(ctx, store, remoteDB, dialect, scope, &sinceSeq, fallbackEvery, cycle); err != nil {
			kaybee.Logger.Error().Err(err).Int("cycle", cycle).Msg("replication cycle failed")
		}

		if once {
			return nil
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(time.Duration(intervalSecs) * time.Second):
		}
	}
}

func replicationCycle(ctx context.Context, store *kaybee.Store, remoteDB *sql.DB, dialect kaybee.SQLiteDialect, scope map[string]string, sinceSeq *int64, fallbackEvery, cycle int) error {
	conn, err := kaybee.NewSQLiteAdapterConn(ctx, remoteDB)
	if err != nil {
		return fmt.Errorf("opening adapter connection: %w", err)
	}

	if fallbackEvery > 0 && cycle%fallbackEvery == 0 {
		if _, err := kaybee.PushFallback(ctx, store, conn, dialect, scope); err != nil {
			return fmt.Errorf("push fallback: %w", err)
		}
	} else {
		newSeq, err := kaybee.Push(ctx, store, conn, dialect, scope, *sinceSeq)
		if err != nil {
			return fmt.Errorf("push: %w", err)
		}

		*sinceSeq = newSeq
	}

	pullConn, err := kaybee.NewSQLiteAdapterConn(ctx, remoteDB)
	if err != nil {
		return fmt.Errorf("opening adapter connection for pull: %w", err)
	}

	n, err := kaybee.Pull(ctx, store, pullConn, dialect, scope)
	if err != nil {
		return fmt.Errorf("pull: %w", err)
	}

	if err := pullConn.Commit(); err != nil {
		return fmt.Errorf("committing pull: %w", err)
	}

	kaybee.Logger.Info().Int("cycle", cycle).Int64("since_seq", *sinceSeq).Int("pulled", n).Msg("replication cycle complete")

	return nil
}

// parseScope turns repeated "key=value" flags into a scope map.
func parseScope(pairs []string) (map[string]string, error) {
	scope := make(map[string]string, len(pairs))

	for _, p := range pairs {
		key, val, ok := strings.Cut(p, "=")
		if !ok {
			return nil, fmt.Errorf("invalid --scope %q, expected key=value", p)
		}

		scope[key] = val
	}

	return scope, nil
}
