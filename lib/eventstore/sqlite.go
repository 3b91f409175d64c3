// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package eventstore

import (
	"context"
	"fmt"
	"log/slog"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/parley-im/parley/lib/ref"
	"github.com/parley-im/parley/lib/sqlitepool"
	"github.com/parley-im/parley/messaging"
)

const schema = `
CREATE TABLE IF NOT EXISTS events (
	event_id TEXT PRIMARY KEY,
	room_id TEXT NOT NULL,
	ordinal INTEGER NOT NULL,
	origin_server_ts INTEGER NOT NULL,
	payload BLOB NOT NULL
) WITHOUT ROWID;

CREATE INDEX IF NOT EXISTS events_by_room ON events (room_id, ordinal);
`

// SQLiteStore persists timelines in a SQLite database. Event payloads
// are zstd-compressed CBOR; timeline order is a per-room ordinal where
// live events count up from 1 and backfilled events count down from 0.
type SQLiteStore struct {
	pool   *sqlitepool.Pool
	codec  *codec
	logger *slog.Logger
}

// SQLiteConfig holds parameters for opening a SQLiteStore.
type SQLiteConfig struct {
	// Path is the database file path. Required.
	Path string

	// PoolSize is the connection pool size. Zero uses the pool default.
	PoolSize int

	// Logger receives operational messages. Nil means discard.
	Logger *slog.Logger
}

// OpenSQLite opens (creating if necessary) the event database.
func OpenSQLite(config SQLiteConfig) (*SQLiteStore, error) {
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	eventCodec, err := newCodec()
	if err != nil {
		return nil, err
	}

	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:     config.Path,
		PoolSize: config.PoolSize,
		Logger:   logger,
		OnConnect: func(conn *sqlite.Conn) error {
			return sqlitex.ExecuteScript(conn, schema, nil)
		},
	})
	if err != nil {
		eventCodec.close()
		return nil, fmt.Errorf("eventstore: opening database: %w", err)
	}

	return &SQLiteStore{
		pool:   pool,
		codec:  eventCodec,
		logger: logger,
	}, nil
}

// AppendEvent stores a live event at the tail of the room's timeline.
// Duplicate event IDs are ignored.
func (s *SQLiteStore) AppendEvent(ctx context.Context, roomID ref.RoomID, event messaging.Event) error {
	return s.insert(ctx, roomID, event,
		`INSERT INTO events (event_id, room_id, ordinal, origin_server_ts, payload)
		 VALUES (:event_id, :room_id,
		   (SELECT COALESCE(MAX(ordinal), 0) + 1 FROM events WHERE room_id = :room_id),
		   :origin_server_ts, :payload)
		 ON CONFLICT (event_id) DO NOTHING`)
}

// PrependEvent stores a backfilled event at the head of the room's
// timeline. Duplicate event IDs are ignored.
func (s *SQLiteStore) PrependEvent(ctx context.Context, roomID ref.RoomID, event messaging.Event) error {
	return s.insert(ctx, roomID, event,
		`INSERT INTO events (event_id, room_id, ordinal, origin_server_ts, payload)
		 VALUES (:event_id, :room_id,
		   (SELECT COALESCE(MIN(ordinal), 1) - 1 FROM events WHERE room_id = :room_id),
		   :origin_server_ts, :payload)
		 ON CONFLICT (event_id) DO NOTHING`)
}

func (s *SQLiteStore) insert(ctx context.Context, roomID ref.RoomID, event messaging.Event, query string) error {
	if event.EventID.IsZero() {
		return fmt.Errorf("eventstore: event ID is required")
	}

	payload, err := s.codec.encode(event)
	if err != nil {
		return err
	}

	conn, err := s.pool.Take(ctx)
	if err != nil {
		return err
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
		Named: map[string]any{
			":event_id":         event.EventID.String(),
			":room_id":          roomID.String(),
			":origin_server_ts": event.OriginServerTS,
			":payload":          payload,
		},
	})
	if err != nil {
		return fmt.Errorf("eventstore: storing event %s: %w", event.EventID, err)
	}
	return nil
}

// RoomEvents returns the room's stored timeline, oldest first.
func (s *SQLiteStore) RoomEvents(ctx context.Context, roomID ref.RoomID) ([]messaging.Event, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, err
	}
	defer s.pool.Put(conn)

	var events []messaging.Event
	var decodeErr error
	err = sqlitex.Execute(conn,
		`SELECT payload FROM events WHERE room_id = :room_id ORDER BY ordinal ASC`,
		&sqlitex.ExecOptions{
			Named: map[string]any{":room_id": roomID.String()},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				payload := make([]byte, stmt.ColumnLen(0))
				stmt.ColumnBytes(0, payload)
				event, err := s.codec.decode(payload, roomID)
				if err != nil {
					decodeErr = err
					return err
				}
				events = append(events, event)
				return nil
			},
		})
	if decodeErr != nil {
		return nil, decodeErr
	}
	if err != nil {
		return nil, fmt.Errorf("eventstore: loading events for %s: %w", roomID, err)
	}
	return events, nil
}

// Rooms returns the IDs of all rooms with stored events.
func (s *SQLiteStore) Rooms(ctx context.Context) ([]ref.RoomID, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, err
	}
	defer s.pool.Put(conn)

	var rooms []ref.RoomID
	var parseErr error
	err = sqlitex.Execute(conn,
		`SELECT DISTINCT room_id FROM events ORDER BY room_id`,
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				roomID, err := ref.ParseRoomID(stmt.ColumnText(0))
				if err != nil {
					parseErr = fmt.Errorf("eventstore: stored room ID: %w", err)
					return parseErr
				}
				rooms = append(rooms, roomID)
				return nil
			},
		})
	if parseErr != nil {
		return nil, parseErr
	}
	if err != nil {
		return nil, fmt.Errorf("eventstore: listing rooms: %w", err)
	}
	return rooms, nil
}

// DeleteRoom discards a room's stored timeline.
func (s *SQLiteStore) DeleteRoom(ctx context.Context, roomID ref.RoomID) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return err
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn,
		`DELETE FROM events WHERE room_id = :room_id`,
		&sqlitex.ExecOptions{
			Named: map[string]any{":room_id": roomID.String()},
		})
	if err != nil {
		return fmt.Errorf("eventstore: deleting events for %s: %w", roomID, err)
	}
	return nil
}

// DeleteAll discards every stored timeline. Used on logout.
func (s *SQLiteStore) DeleteAll(ctx context.Context) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return err
	}
	defer s.pool.Put(conn)

	if err := sqlitex.Execute(conn, `DELETE FROM events`, nil); err != nil {
		return fmt.Errorf("eventstore: deleting all events: %w", err)
	}
	return nil
}

// Close releases the connection pool and codec resources.
func (s *SQLiteStore) Close() error {
	s.codec.close()
	return s.pool.Close()
}

var _ Store = (*SQLiteStore)(nil)
