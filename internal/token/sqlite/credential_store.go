// Package sqlite persists the credentials that must survive process restarts: the
// streamer and bot refresh tokens plus the poll key issued by the webhook proxy.
// Everything else about the token lifecycle is reconstructed at startup by running
// an immediate renewal against the persisted refresh tokens.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/streamkit/kickhooks/internal/token"
)

type CredentialStore struct {
	db *sql.DB
}

func NewCredentialStore(db *sql.DB) *CredentialStore {
	return &CredentialStore{db: db}
}

func EnsureCredentialsTable(db *sql.DB) error {
	schema := `
CREATE TABLE IF NOT EXISTS credentials (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	streamer_refresh_token TEXT NOT NULL DEFAULT '',
	bot_refresh_token TEXT NOT NULL DEFAULT '',
	poll_key TEXT NOT NULL DEFAULT '',
	updated_at TEXT NOT NULL
);
`
	_, err := db.Exec(schema)
	return err
}

// Load returns the persisted credentials, or zero-valued credentials if none have
// ever been saved.
func (s *CredentialStore) Load(ctx context.Context) (token.Credentials, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT streamer_refresh_token, bot_refresh_token, poll_key FROM credentials WHERE id = 1`)
	var c token.Credentials
	if err := row.Scan(&c.StreamerRefreshToken, &c.BotRefreshToken, &c.PollKey); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return token.Credentials{}, nil
		}
		return token.Credentials{}, err
	}
	return c, nil
}

// Save replaces the persisted credentials in full. Called on every successful
// exchange or refresh and on every clearing event, so the stored state always
// matches the in-memory state.
func (s *CredentialStore) Save(ctx context.Context, c token.Credentials) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO credentials (id, streamer_refresh_token, bot_refresh_token, poll_key, updated_at)
VALUES (1, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
	streamer_refresh_token = excluded.streamer_refresh_token,
	bot_refresh_token = excluded.bot_refresh_token,
	poll_key = excluded.poll_key,
	updated_at = excluded.updated_at
`,
		c.StreamerRefreshToken, c.BotRefreshToken, c.PollKey,
		time.Now().UTC().Format(time.RFC3339Nano))
	return err
}
