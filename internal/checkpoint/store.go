package checkpoint

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"sync"

	"guildmirror/internal/models"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
)

const schema = `
CREATE TABLE IF NOT EXISTS checkpoints (
	channel_id      TEXT PRIMARY KEY,
	last_message_id TEXT NOT NULL,
	updated_at      TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);`

// Snowflake cursors compare numerically; the WHERE clause makes the advance
// a monotonic max rather than a blind overwrite, so concurrent backfill and
// live-relay writers can never move a cursor backward.
const advanceQuery = `
INSERT INTO checkpoints (channel_id, last_message_id) VALUES (?, ?)
ON CONFLICT(channel_id) DO UPDATE SET
	last_message_id = excluded.last_message_id,
	updated_at      = CURRENT_TIMESTAMP
WHERE CAST(excluded.last_message_id AS INTEGER) > CAST(checkpoints.last_message_id AS INTEGER)`

// Store durably maps channel ids to the last fully relayed message id. It is
// the sole resume anchor of the whole process.
type Store struct {
	db     *sql.DB
	logger *logrus.Logger

	mu   sync.RWMutex
	last map[models.ChannelID]models.MessageID
}

// New opens (or creates) the store at path. A corrupt store is moved aside
// and recreated empty: the worst outcome of losing it is a full re-backfill,
// which must never be a fatal startup error.
func New(path string, logger *logrus.Logger) (*Store, error) {
	db, err := open(path)
	if err != nil {
		logger.WithError(err).WithField("path", path).Warn("Checkpoint store unreadable, starting empty")
		if mvErr := os.Rename(path, path+".corrupt"); mvErr != nil && !os.IsNotExist(mvErr) {
			return nil, fmt.Errorf("failed to move corrupt checkpoint store aside: %w", mvErr)
		}
		db, err = open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to recreate checkpoint store: %w", err)
		}
	}

	return &Store{
		db:     db,
		logger: logger,
		last:   make(map[models.ChannelID]models.MessageID),
	}, nil
}

func open(path string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open checkpoint store: %w", err)
	}
	if err := db.Ping(); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to ping checkpoint store: %w (close error: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to ping checkpoint store: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to initialize schema: %w (close error: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return db, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Load reads all cursors into memory and returns a copy. A read failure is
// reported but callers treat it as an empty mapping.
func (s *Store) Load(ctx context.Context) (map[models.ChannelID]models.MessageID, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT channel_id, last_message_id FROM checkpoints`)
	if err != nil {
		return map[models.ChannelID]models.MessageID{}, fmt.Errorf("failed to load checkpoints: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			s.logger.WithError(closeErr).Warn("Failed to close checkpoint rows")
		}
	}()

	loaded := make(map[models.ChannelID]models.MessageID)
	for rows.Next() {
		var channel, id string
		if err := rows.Scan(&channel, &id); err != nil {
			return map[models.ChannelID]models.MessageID{}, fmt.Errorf("failed to scan checkpoint row: %w", err)
		}
		loaded[models.ChannelID(channel)] = models.MessageID(id)
	}
	if err := rows.Err(); err != nil {
		return map[models.ChannelID]models.MessageID{}, fmt.Errorf("failed to iterate checkpoints: %w", err)
	}

	s.mu.Lock()
	s.last = loaded
	s.mu.Unlock()

	out := make(map[models.ChannelID]models.MessageID, len(loaded))
	for k, v := range loaded {
		out[k] = v
	}
	return out, nil
}

// Advance durably records id as the channel's cursor. It is a monotonic max:
// advancing to an id at or below the stored cursor is a silent no-op.
func (s *Store) Advance(ctx context.Context, channel models.ChannelID, id models.MessageID) error {
	if _, err := s.db.ExecContext(ctx, advanceQuery, string(channel), string(id)); err != nil {
		return fmt.Errorf("failed to advance checkpoint for channel %s: %w", channel, err)
	}

	s.mu.Lock()
	if cur, ok := s.last[channel]; !ok || id.After(cur) {
		s.last[channel] = id
	}
	s.mu.Unlock()
	return nil
}

// Last returns the in-memory cursor for a channel, if any.
func (s *Store) Last(channel models.ChannelID) (models.MessageID, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.last[channel]
	return id, ok
}
