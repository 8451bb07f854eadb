// Copyright 2026 The Engram Authors
// SPDX-License-Identifier: Apache-2.0

package streamstate

import (
	"context"
	"fmt"
	"log/slog"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/engram-foundation/engram/lib/chain"
	"github.com/engram-foundation/engram/lib/memcrypt"
	"github.com/engram-foundation/engram/lib/sqlitepool"
)

const stateSchema = `
CREATE TABLE IF NOT EXISTS stream_state (
	stream_id         TEXT PRIMARY KEY,
	last_pointer      TEXT NOT NULL DEFAULT '',
	last_content_hash TEXT NOT NULL DEFAULT '',
	last_anchor_date  TEXT NOT NULL DEFAULT ''
);
`

// SQLiteStore implements Store on an embedded SQLite database. Same
// contract as FileStore; deployments choose it via configuration when
// they want transactional durability instead of whole-file rewrites.
type SQLiteStore struct {
	pool *sqlitepool.Pool
}

// OpenSQLiteStore opens (or creates) the state database at path.
func OpenSQLiteStore(path string, logger *slog.Logger) (*SQLiteStore, error) {
	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:   path,
		Logger: logger,
		OnConnect: func(conn *sqlite.Conn) error {
			return sqlitex.ExecuteScript(conn, stateSchema, nil)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("streamstate: opening sqlite store: %w", err)
	}
	return &SQLiteStore{pool: pool}, nil
}

// Close releases the connection pool.
func (s *SQLiteStore) Close() error {
	return s.pool.Close()
}

// Get returns the state for streamID, or the zero state if unseen.
func (s *SQLiteStore) Get(ctx context.Context, streamID string) (State, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return State{}, err
	}
	defer s.pool.Put(conn)

	state := State{StreamID: streamID}
	err = sqlitex.Execute(conn,
		`SELECT last_pointer, last_content_hash, last_anchor_date
		 FROM stream_state WHERE stream_id = ?`,
		&sqlitex.ExecOptions{
			Args: []any{streamID},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				state.LastPointer = chain.Pointer(stmt.ColumnText(0))
				if hashText := stmt.ColumnText(1); hashText != "" {
					digest, err := memcrypt.ParseDigest(hashText)
					if err != nil {
						return fmt.Errorf("stream %s has corrupt content hash: %w", streamID, err)
					}
					state.LastContentHash = digest
				}
				state.LastAnchorDate = stmt.ColumnText(2)
				return nil
			},
		})
	if err != nil {
		return State{}, fmt.Errorf("streamstate: get %s: %w", streamID, err)
	}
	return state, nil
}

// Set merges update into the stream's row. The UPSERT touches only
// the columns the update carries, so the upload and anchor paths
// cannot clobber each other's fields.
func (s *SQLiteStore) Set(ctx context.Context, streamID string, update Update) (err error) {
	conn, takeErr := s.pool.Take(ctx)
	if takeErr != nil {
		return takeErr
	}
	defer s.pool.Put(conn)

	// One transaction per Set: the pointer and hash of an upload land
	// together or not at all.
	release := sqlitex.Save(conn)
	defer release(&err)

	if err := sqlitex.Execute(conn,
		`INSERT INTO stream_state (stream_id) VALUES (?)
		 ON CONFLICT (stream_id) DO NOTHING`,
		&sqlitex.ExecOptions{Args: []any{streamID}}); err != nil {
		return fmt.Errorf("streamstate: ensuring row for %s: %w", streamID, err)
	}

	if update.LastPointer != nil {
		if err := sqlitex.Execute(conn,
			`UPDATE stream_state SET last_pointer = ? WHERE stream_id = ?`,
			&sqlitex.ExecOptions{Args: []any{string(*update.LastPointer), streamID}}); err != nil {
			return fmt.Errorf("streamstate: updating pointer for %s: %w", streamID, err)
		}
	}
	if update.LastContentHash != nil {
		if err := sqlitex.Execute(conn,
			`UPDATE stream_state SET last_content_hash = ? WHERE stream_id = ?`,
			&sqlitex.ExecOptions{Args: []any{update.LastContentHash.String(), streamID}}); err != nil {
			return fmt.Errorf("streamstate: updating content hash for %s: %w", streamID, err)
		}
	}
	if update.LastAnchorDate != nil {
		if err := sqlitex.Execute(conn,
			`UPDATE stream_state SET last_anchor_date = ? WHERE stream_id = ?`,
			&sqlitex.ExecOptions{Args: []any{*update.LastAnchorDate, streamID}}); err != nil {
			return fmt.Errorf("streamstate: updating anchor date for %s: %w", streamID, err)
		}
	}
	return nil
}

// List returns all known stream IDs in lexicographic order.
func (s *SQLiteStore) List(ctx context.Context) ([]string, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, err
	}
	defer s.pool.Put(conn)

	var streamIDs []string
	err = sqlitex.Execute(conn,
		`SELECT stream_id FROM stream_state ORDER BY stream_id`,
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				streamIDs = append(streamIDs, stmt.ColumnText(0))
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("streamstate: list: %w", err)
	}
	return streamIDs, nil
}
