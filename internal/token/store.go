package token

import (
	"sync"
	"time"

	"github.com/streamkit/kickhooks"
)

// Record holds the complete token state for a single identity. An empty
// RefreshToken means the identity is not authorized at all; an ExpiresAt of zero
// means no access token lifetime is known (e.g. only a refresh token was restored
// from persistence at startup).
type Record struct {
	AccessToken   string
	RefreshToken  string
	ExpiresAt     time.Time
	MissingScopes []string
}

// Authorized reports whether the identity has been authorized: the refresh token,
// not the access token, is the signal, since access tokens lapse and get renewed.
func (r Record) Authorized() bool {
	return r.RefreshToken != ""
}

// Credentials is the subset of token state that survives process restarts: the two
// refresh tokens plus the poll key issued by the webhook proxy to the streamer role.
type Credentials struct {
	StreamerRefreshToken string
	BotRefreshToken      string
	PollKey              string
}

// Store owns the token records for both identities. Each identity's record is only
// ever read or replaced whole, via the Handle for that identity: there is no way to
// update an individual field, so a record can never be committed half-updated.
type Store struct {
	mu      sync.Mutex
	records [2]Record
}

func NewStore() *Store {
	return &Store{}
}

// Streamer returns the handle through which the streamer identity's record is
// accessed. The two handles are distinct values, so code holding one cannot
// accidentally touch the other identity's record.
func (s *Store) Streamer() *Handle {
	return &Handle{store: s, identity: kickhooks.IdentityStreamer}
}

// Bot returns the handle for the bot identity's record.
func (s *Store) Bot() *Handle {
	return &Handle{store: s, identity: kickhooks.IdentityBot}
}

// Handle provides get/commit/clear access to exactly one identity's token record.
type Handle struct {
	store    *Store
	identity kickhooks.Identity
}

func (h *Handle) Identity() kickhooks.Identity {
	return h.identity
}

// Get returns a copy of the current record.
func (h *Handle) Get() Record {
	h.store.mu.Lock()
	defer h.store.mu.Unlock()
	r := h.store.records[h.identity]
	r.MissingScopes = append([]string(nil), r.MissingScopes...)
	return r
}

// Commit replaces the record in its entirety with the outcome of a successful
// token exchange or refresh.
func (h *Handle) Commit(accessToken, refreshToken string, expiresAt time.Time, missingScopes []string) {
	h.store.mu.Lock()
	defer h.store.mu.Unlock()
	h.store.records[h.identity] = Record{
		AccessToken:   accessToken,
		RefreshToken:  refreshToken,
		ExpiresAt:     expiresAt,
		MissingScopes: append([]string(nil), missingScopes...),
	}
}

// Clear resets the record to the unauthorized state, zeroing every field together.
func (h *Handle) Clear() {
	h.store.mu.Lock()
	defer h.store.mu.Unlock()
	h.store.records[h.identity] = Record{}
}

// Seed installs a refresh token restored from persistence at startup, leaving the
// access token absent and the expiry unknown so that the first renewal happens
// immediately.
func (h *Handle) Seed(refreshToken string) {
	h.store.mu.Lock()
	defer h.store.mu.Unlock()
	h.store.records[h.identity] = Record{RefreshToken: refreshToken}
}
