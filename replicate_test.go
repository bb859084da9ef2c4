package kaybee

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func openTestRemote(t *testing.T) *sql.DB {
	t.Helper()

	db, err := openSQLite(context.Background(), filepath.Join(t.TempDir(), "remote.db"))
	require.NoError(t, err)

	t.Cleanup(func() { db.Close() })

	return db
}

func TestPushWritesRemoteRows(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	remote := openTestRemote(t)

	require.NoError(t, s.Write(ctx, "t1", "---\ntype: task\nowner: alice\n---\nbody\n"))

	conn, err := NewSQLiteAdapterConn(ctx, remote)
	require.NoError(t, err)

	lastSeq, err := Push(ctx, s, conn, SQLiteDialect{}, nil, 0)
	require.NoError(t, err)
	require.EqualValues(t, 1, lastSeq)

	var name, owner string
	row := remote.QueryRowContext(ctx, `SELECT name, owner FROM task WHERE name = ?`, "t1")
	require.NoError(t, row.Scan(&name, &owner))
	require.Equal(t, "t1", name)
	require.Equal(t, "alice", owner)
}

func TestPushIsResumableFromSinceSeq(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	remote := openTestRemote(t)

	require.NoError(t, s.Write(ctx, "t1", "---\ntype: task\n---\nbody one\n"))

	conn, err := NewSQLiteAdapterConn(ctx, remote)
	require.NoError(t, err)

	firstSeq, err := Push(ctx, s, conn, SQLiteDialect{}, nil, 0)
	require.NoError(t, err)

	require.NoError(t, s.Write(ctx, "t2", "---\ntype: task\n---\nbody two\n"))

	conn2, err := NewSQLiteAdapterConn(ctx, remote)
	require.NoError(t, err)

	secondSeq, err := Push(ctx, s, conn2, SQLiteDialect{}, nil, firstSeq)
	require.NoError(t, err)
	require.Greater(t, secondSeq, firstSeq)

	var count int
	require.NoError(t, remote.QueryRowContext(ctx, `SELECT COUNT(*) FROM task`).Scan(&count))
	require.Equal(t, 2, count)
}

func TestPushPropagatesDelete(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	remote := openTestRemote(t)

	require.NoError(t, s.Write(ctx, "t1", "---\ntype: task\n---\nbody\n"))

	conn, err := NewSQLiteAdapterConn(ctx, remote)
	require.NoError(t, err)

	lastSeq, err := Push(ctx, s, conn, SQLiteDialect{}, nil, 0)
	require.NoError(t, err)

	require.NoError(t, s.Rm(ctx, "t1"))

	conn2, err := NewSQLiteAdapterConn(ctx, remote)
	require.NoError(t, err)

	_, err = Push(ctx, s, conn2, SQLiteDialect{}, nil, lastSeq)
	require.NoError(t, err)

	var count int
	require.NoError(t, remote.QueryRowContext(ctx, `SELECT COUNT(*) FROM task WHERE name = ?`, "t1").Scan(&count))
	require.Equal(t, 0, count)
}

func TestPushScopesRemoteRows(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	remote := openTestRemote(t)

	require.NoError(t, s.Write(ctx, "t1", "---\ntype: task\n---\nbody\n"))

	conn, err := NewSQLiteAdapterConn(ctx, remote)
	require.NoError(t, err)

	scope := map[string]string{"workspace": "ws1"}

	_, err = Push(ctx, s, conn, SQLiteDialect{}, scope, 0)
	require.NoError(t, err)

	var ws string
	row := remote.QueryRowContext(ctx, `SELECT workspace FROM task WHERE name = ?`, "t1")
	require.NoError(t, row.Scan(&ws))
	require.Equal(t, "ws1", ws)
}

func TestPushFallbackFullScan(t *testing.T) {
	ctx := context.Background()

	cfg := DefaultConfig()
	cfg.DataDir = t.TempDir()
	cfg.ChangelogEnabled = false

	s, err := Open(ctx, cfg)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Write(ctx, "t1", "---\ntype: task\nowner: alice\n---\nbody\n"))

	remote := openTestRemote(t)

	conn, err := NewSQLiteAdapterConn(ctx, remote)
	require.NoError(t, err)

	n, err := PushFallback(ctx, s, conn, SQLiteDialect{}, nil)
	require.NoError(t, err)
	require.EqualValues(t, 0, n)

	var owner string
	row := remote.QueryRowContext(ctx, `SELECT owner FROM task WHERE name = ?`, "t1")
	require.NoError(t, row.Scan(&owner))
	require.Equal(t, "alice", owner)
}

func TestPullInsertsRemoteRowsWithoutChangelogEntries(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	remote := openTestRemote(t)

	_, err := remote.ExecContext(ctx, `CREATE TABLE task (name TEXT PRIMARY KEY, content TEXT, owner TEXT)`)
	require.NoError(t, err)

	_, err = remote.ExecContext(ctx, `INSERT INTO task (name, content, owner) VALUES (?, ?, ?)`, "pulled1", "remote body", "carol")
	require.NoError(t, err)

	conn, err := NewSQLiteAdapterConn(ctx, remote)
	require.NoError(t, err)

	n, err := Pull(ctx, s, conn, SQLiteDialect{}, nil)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	exists, err := s.Exists(ctx, "pulled1")
	require.NoError(t, err)
	require.True(t, exists)

	entries, err := s.Changelog(ctx, 0, 10)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestPullSkipsTablesMissingScopeColumn(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	remote := openTestRemote(t)

	_, err := remote.ExecContext(ctx, `CREATE TABLE task (name TEXT PRIMARY KEY, content TEXT)`)
	require.NoError(t, err)

	_, err = remote.ExecContext(ctx, `INSERT INTO task (name, content) VALUES (?, ?)`, "unscoped", "body")
	require.NoError(t, err)

	conn, err := NewSQLiteAdapterConn(ctx, remote)
	require.NoError(t, err)

	n, err := Pull(ctx, s, conn, SQLiteDialect{}, map[string]string{"workspace": "ws1"})
	require.NoError(t, err)
	require.Equal(t, 0, n)
}
