package userauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/slog"

	"github.com/streamkit/kickhooks"
	"github.com/streamkit/kickhooks/internal/token"
	"github.com/streamkit/kickhooks/internal/transport"
)

type fakeTransport struct {
	requests []transport.Request
	respond  func(req transport.Request) (json.RawMessage, error)
}

func (f *fakeTransport) Execute(ctx context.Context, req transport.Request) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.requests = append(f.requests, req)
	return f.respond(req)
}

type armedTimer struct {
	identity kickhooks.Identity
	delay    time.Duration
	fn       func()
}

type fakeScheduler struct {
	armed    []armedTimer
	canceled []kickhooks.Identity
}

func (s *fakeScheduler) Arm(identity kickhooks.Identity, delay time.Duration, fn func()) {
	s.armed = append(s.armed, armedTimer{identity: identity, delay: delay, fn: fn})
}

func (s *fakeScheduler) Cancel(identity kickhooks.Identity) {
	s.canceled = append(s.canceled, identity)
}

func (s *fakeScheduler) lastFor(identity kickhooks.Identity) *armedTimer {
	for i := len(s.armed) - 1; i >= 0; i-- {
		if s.armed[i].identity == identity {
			return &s.armed[i]
		}
	}
	return nil
}

type fakeNotifier struct {
	messages []string
}

func (n *fakeNotifier) Critical(message string) {
	n.messages = append(n.messages, message)
}

type fakePersister struct {
	saved []token.Credentials
}

func (p *fakePersister) Save(ctx context.Context, c token.Credentials) error {
	p.saved = append(p.saved, c)
	return nil
}

type managerFixture struct {
	manager    *Manager
	transport  *fakeTransport
	scheduler  *fakeScheduler
	notifier   *fakeNotifier
	persister  *fakePersister
	store      *token.Store
	reconnects int
}

func newFixture(t *testing.T, config Config) *managerFixture {
	t.Helper()
	f := &managerFixture{
		transport: &fakeTransport{
			respond: func(req transport.Request) (json.RawMessage, error) {
				return nil, fmt.Errorf("unexpected request to %s", req.URL)
			},
		},
		scheduler: &fakeScheduler{},
		notifier:  &fakeNotifier{},
		persister: &fakePersister{},
		store:     token.NewStore(),
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f.manager = NewManager(context.Background(), config, f.transport, f.store, f.scheduler, f.persister, f.notifier, func(ctx context.Context) {
		f.reconnects++
	}, logger)
	return f
}

func directConfig() Config {
	return Config{
		AuthServerURL: "https://id.kick.test",
		ApiServerURL:  "https://api.kick.test",
		ClientId:      "client-id",
		ClientSecret:  "client-secret",
		RedirectURI:   "https://app.example.com/auth/callback",
	}
}

func proxiedConfig() Config {
	return Config{
		ApiServerURL: "https://api.kick.test",
		ProxyURL:     "https://proxy.example.com",
		RedirectURI:  "https://app.example.com/auth/callback",
	}
}

func streamerScope() string {
	return strings.Join(kickhooks.StreamerScopes, " ")
}

func botScope() string {
	return strings.Join(kickhooks.BotScopes, " ")
}

// respondWith routes fake transport requests by URL: token requests get the given
// token response, and users requests resolve by bearer token
func respondWith(tokenBody string, usersByToken map[string]string) func(req transport.Request) (json.RawMessage, error) {
	return func(req transport.Request) (json.RawMessage, error) {
		if strings.HasSuffix(req.URL, "/oauth/token") || strings.HasSuffix(req.URL, "/auth/token") {
			return json.RawMessage(tokenBody), nil
		}
		if strings.HasSuffix(req.URL, "/public/v1/users") {
			if body, ok := usersByToken[req.AuthToken]; ok {
				return json.RawMessage(body), nil
			}
			return nil, &transport.StatusError{Status: 401, Body: "invalid token"}
		}
		return nil, fmt.Errorf("unexpected request to %s", req.URL)
	}
}

func Test_Manager_BuildAuthorizationURL_direct(t *testing.T) {
	f := newFixture(t, directConfig())

	got, err := f.manager.BuildAuthorizationURL(kickhooks.IdentityStreamer)
	require.NoError(t, err)

	u, err := url.Parse(got)
	require.NoError(t, err)
	assert.Equal(t, "id.kick.test", u.Host)
	assert.Equal(t, "/oauth/authorize", u.Path)

	q := u.Query()
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, "client-id", q.Get("client_id"))
	assert.Equal(t, "https://app.example.com/auth/callback", q.Get("redirect_uri"))
	assert.Equal(t, streamerScope(), q.Get("scope"))
	assert.Equal(t, "S256", q.Get("code_challenge_method"))

	// The state is a fresh UUID mapping back to a pending flow whose verifier
	// hashes to the challenge in the URL
	state := q.Get("state")
	_, err = uuid.Parse(state)
	assert.NoError(t, err)
	pending, ok := f.manager.pending[state]
	require.True(t, ok)
	assert.Equal(t, kickhooks.IdentityStreamer, pending.identity)
	assert.GreaterOrEqual(t, len(pending.verifier), 43)
	assert.Equal(t, computePkceChallenge(pending.verifier), q.Get("code_challenge"))
}

func Test_Manager_BuildAuthorizationURL_proxied(t *testing.T) {
	f := newFixture(t, proxiedConfig())

	got, err := f.manager.BuildAuthorizationURL(kickhooks.IdentityBot)
	require.NoError(t, err)

	u, err := url.Parse(got)
	require.NoError(t, err)
	assert.Equal(t, "proxy.example.com", u.Host)
	assert.Equal(t, "/auth/authorize", u.Path)

	// The proxy injects the client ID itself
	q := u.Query()
	assert.Empty(t, q.Get("client_id"))
	assert.Equal(t, botScope(), q.Get("scope"))
}

func Test_Manager_BuildAuthorizationURL_requiresConfiguration(t *testing.T) {
	f := newFixture(t, Config{
		AuthServerURL: "https://id.kick.test",
		RedirectURI:   "https://app.example.com/auth/callback",
	})
	_, err := f.manager.BuildAuthorizationURL(kickhooks.IdentityStreamer)
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func Test_Manager_HandleAuthCallback_rejectsBadInput(t *testing.T) {
	f := newFixture(t, directConfig())
	ctx := context.Background()

	_, err := f.manager.HandleAuthCallback(ctx, "", "some-state")
	var rejected *RejectedError
	require.ErrorAs(t, err, &rejected)

	_, err = f.manager.HandleAuthCallback(ctx, "some-code", "")
	require.ErrorAs(t, err, &rejected)

	_, err = f.manager.HandleAuthCallback(ctx, "some-code", "never-issued")
	require.ErrorAs(t, err, &rejected)
	assert.Contains(t, rejected.Message, "state")

	// No network traffic for any of these
	assert.Empty(t, f.transport.requests)
}

func Test_Manager_HandleAuthCallback_authorizesStreamer(t *testing.T) {
	f := newFixture(t, directConfig())
	f.manager.pending["s1"] = pendingAuth{identity: kickhooks.IdentityStreamer, verifier: "test-verifier"}
	f.transport.respond = respondWith(
		fmt.Sprintf(`{"access_token":"streamer-access","refresh_token":"streamer-refresh","expires_in":3600,"scope":"%s"}`, streamerScope()),
		map[string]string{"streamer-access": `{"data":[{"user_id":1001,"name":"thebroadcaster"}]}`},
	)

	outcome, err := f.manager.HandleAuthCallback(context.Background(), "auth-code", "s1")
	require.NoError(t, err)
	assert.Equal(t, kickhooks.IdentityStreamer, outcome.Identity)
	assert.Empty(t, outcome.MissingScopes)

	// The exchange went to the OAuth token endpoint with the full form payload
	require.NotEmpty(t, f.transport.requests)
	exchange := f.transport.requests[0]
	assert.Equal(t, "https://id.kick.test/oauth/token", exchange.URL)
	form, err := url.ParseQuery(exchange.Body)
	require.NoError(t, err)
	assert.Equal(t, "authorization_code", form.Get("grant_type"))
	assert.Equal(t, "auth-code", form.Get("code"))
	assert.Equal(t, "client-id", form.Get("client_id"))
	assert.Equal(t, "client-secret", form.Get("client_secret"))
	assert.Equal(t, "test-verifier", form.Get("code_verifier"))

	// The record was committed whole and a renewal armed for expiry minus 5 min
	rec := f.store.Streamer().Get()
	assert.Equal(t, "streamer-access", rec.AccessToken)
	assert.Equal(t, "streamer-refresh", rec.RefreshToken)
	assert.False(t, rec.ExpiresAt.IsZero())
	assert.Empty(t, rec.MissingScopes)
	armed := f.scheduler.lastFor(kickhooks.IdentityStreamer)
	require.NotNil(t, armed)
	assert.Equal(t, 3600*time.Second-5*time.Minute, armed.delay)

	// Credentials were persisted and dependent systems told to reconnect
	require.NotEmpty(t, f.persister.saved)
	assert.Equal(t, "streamer-refresh", f.persister.saved[len(f.persister.saved)-1].StreamerRefreshToken)
	assert.Equal(t, 1, f.reconnects)
	assert.Empty(t, f.notifier.messages)

	// The state value is single-use
	_, err = f.manager.HandleAuthCallback(context.Background(), "auth-code", "s1")
	var rejected *RejectedError
	assert.ErrorAs(t, err, &rejected)
}

func Test_Manager_HandleAuthCallback_acceptsPartialScopes(t *testing.T) {
	f := newFixture(t, directConfig())
	f.manager.pending["s1"] = pendingAuth{identity: kickhooks.IdentityStreamer, verifier: "test-verifier"}
	f.transport.respond = respondWith(
		`{"access_token":"streamer-access","refresh_token":"streamer-refresh","expires_in":3600,"scope":"user:read channel:read"}`,
		map[string]string{"streamer-access": `{"data":[{"user_id":1001,"name":"thebroadcaster"}]}`},
	)

	outcome, err := f.manager.HandleAuthCallback(context.Background(), "auth-code", "s1")
	require.NoError(t, err)
	assert.Equal(t, []string{"channel:write", "chat:write", "events:subscribe"}, outcome.MissingScopes)

	// Authorization still completes, but the missing scopes are recorded and a
	// critical notification raised
	assert.True(t, f.store.Streamer().Get().Authorized())
	assert.Equal(t, outcome.MissingScopes, f.store.Streamer().Get().MissingScopes)
	require.Len(t, f.notifier.messages, 1)
	assert.Contains(t, f.notifier.messages[0], "channel:write")
}

func Test_Manager_HandleAuthCallback_rejectsBotBeforeStreamer(t *testing.T) {
	f := newFixture(t, directConfig())
	f.manager.pending["b1"] = pendingAuth{identity: kickhooks.IdentityBot, verifier: "test-verifier"}

	_, err := f.manager.HandleAuthCallback(context.Background(), "auth-code", "b1")
	var rejected *RejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Contains(t, rejected.Message, "until the streamer account has been authorized")

	// The code is never exchanged
	assert.Empty(t, f.transport.requests)
	assert.False(t, f.store.Bot().Get().Authorized())
}

func authorizeStreamer(t *testing.T, f *managerFixture) {
	t.Helper()
	f.store.Streamer().Commit("streamer-access", "streamer-refresh", time.Now().Add(time.Hour), nil)
	f.manager.streamerUserId = "1001"
}

func Test_Manager_HandleAuthCallback_rejectsSameAccountBot(t *testing.T) {
	f := newFixture(t, directConfig())
	authorizeStreamer(t, f)
	f.manager.pending["b1"] = pendingAuth{identity: kickhooks.IdentityBot, verifier: "test-verifier"}
	f.transport.respond = respondWith(
		fmt.Sprintf(`{"access_token":"bot-access","refresh_token":"bot-refresh","expires_in":3600,"scope":"%s"}`, botScope()),
		map[string]string{"bot-access": `{"data":[{"user_id":1001,"name":"thebroadcaster"}]}`},
	)

	_, err := f.manager.HandleAuthCallback(context.Background(), "auth-code", "b1")
	var rejected *RejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Contains(t, rejected.Message, "different Kick account")

	// No bot token is committed
	assert.False(t, f.store.Bot().Get().Authorized())
	assert.Nil(t, f.scheduler.lastFor(kickhooks.IdentityBot))
}

func Test_Manager_HandleAuthCallback_rejectedBotRaisesNoScopeAlert(t *testing.T) {
	f := newFixture(t, directConfig())
	authorizeStreamer(t, f)
	f.manager.pending["b1"] = pendingAuth{identity: kickhooks.IdentityBot, verifier: "test-verifier"}

	// The bot resolves to the streamer's own account AND was granted only a
	// partial scope set; the rejection wins, so nothing is committed and the
	// missing scopes warrant no notification
	f.transport.respond = respondWith(
		`{"access_token":"bot-access","refresh_token":"bot-refresh","expires_in":3600,"scope":"user:read"}`,
		map[string]string{"bot-access": `{"data":[{"user_id":1001,"name":"thebroadcaster"}]}`},
	)

	_, err := f.manager.HandleAuthCallback(context.Background(), "auth-code", "b1")
	var rejected *RejectedError
	require.ErrorAs(t, err, &rejected)

	assert.False(t, f.store.Bot().Get().Authorized())
	assert.Empty(t, f.notifier.messages)
}

func Test_Manager_HandleAuthCallback_shortLivedTokenRenewsImmediately(t *testing.T) {
	f := newFixture(t, directConfig())
	f.manager.pending["s1"] = pendingAuth{identity: kickhooks.IdentityStreamer, verifier: "test-verifier"}
	f.transport.respond = respondWith(
		fmt.Sprintf(`{"access_token":"streamer-access","refresh_token":"streamer-refresh","expires_in":60,"scope":"%s"}`, streamerScope()),
		map[string]string{"streamer-access": `{"data":[{"user_id":1001,"name":"thebroadcaster"}]}`},
	)

	_, err := f.manager.HandleAuthCallback(context.Background(), "auth-code", "s1")
	require.NoError(t, err)

	// A token already inside the 5-minute renewal lead window gets a zero-delay
	// renewal, never a negative one
	armed := f.scheduler.lastFor(kickhooks.IdentityStreamer)
	require.NotNil(t, armed)
	assert.Equal(t, time.Duration(0), armed.delay)
}

func Test_Manager_HandleAuthCallback_authorizesBot(t *testing.T) {
	f := newFixture(t, directConfig())
	authorizeStreamer(t, f)
	f.manager.pending["b1"] = pendingAuth{identity: kickhooks.IdentityBot, verifier: "test-verifier"}
	f.transport.respond = respondWith(
		fmt.Sprintf(`{"access_token":"bot-access","refresh_token":"bot-refresh","expires_in":7200,"scope":"%s"}`, botScope()),
		map[string]string{"bot-access": `{"data":[{"user_id":2002,"name":"thebot"}]}`},
	)

	outcome, err := f.manager.HandleAuthCallback(context.Background(), "auth-code", "b1")
	require.NoError(t, err)
	assert.Equal(t, kickhooks.IdentityBot, outcome.Identity)
	assert.Empty(t, outcome.MissingScopes)

	rec := f.store.Bot().Get()
	assert.Equal(t, "bot-access", rec.AccessToken)
	assert.Equal(t, "bot-refresh", rec.RefreshToken)
	armed := f.scheduler.lastFor(kickhooks.IdentityBot)
	require.NotNil(t, armed)
	assert.Equal(t, 7200*time.Second-5*time.Minute, armed.delay)

	// Both refresh tokens are persisted together
	saved := f.persister.saved[len(f.persister.saved)-1]
	assert.Equal(t, "streamer-refresh", saved.StreamerRefreshToken)
	assert.Equal(t, "bot-refresh", saved.BotRefreshToken)
}

func Test_Manager_HandleAuthCallback_rejectsBotWithPollKey(t *testing.T) {
	f := newFixture(t, proxiedConfig())
	authorizeStreamer(t, f)
	f.manager.pending["b1"] = pendingAuth{identity: kickhooks.IdentityBot, verifier: "test-verifier"}
	f.transport.respond = respondWith(
		fmt.Sprintf(`{"access_token":"bot-access","refresh_token":"bot-refresh","expires_in":3600,"scope":"%s","poll_key":"unexpected"}`, botScope()),
		nil,
	)

	_, err := f.manager.HandleAuthCallback(context.Background(), "auth-code", "b1")
	var rejected *RejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Contains(t, rejected.Message, "poll key")
	assert.False(t, f.store.Bot().Get().Authorized())
}

func Test_Manager_HandleAuthCallback_proxiedStreamerRequiresPollKey(t *testing.T) {
	f := newFixture(t, proxiedConfig())
	f.manager.pending["s1"] = pendingAuth{identity: kickhooks.IdentityStreamer, verifier: "test-verifier"}
	f.transport.respond = respondWith(
		fmt.Sprintf(`{"access_token":"streamer-access","refresh_token":"streamer-refresh","expires_in":3600,"scope":"%s"}`, streamerScope()),
		map[string]string{"streamer-access": `{"data":[{"user_id":1001,"name":"thebroadcaster"}]}`},
	)

	_, err := f.manager.HandleAuthCallback(context.Background(), "auth-code", "s1")
	var rejected *RejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Contains(t, rejected.Message, "poll key")
	assert.False(t, f.store.Streamer().Get().Authorized())
}

func Test_Manager_HandleAuthCallback_proxiedStreamerStoresPollKey(t *testing.T) {
	f := newFixture(t, proxiedConfig())
	f.manager.pending["s1"] = pendingAuth{identity: kickhooks.IdentityStreamer, verifier: "test-verifier"}
	f.transport.respond = respondWith(
		fmt.Sprintf(`{"access_token":"streamer-access","refresh_token":"streamer-refresh","expires_in":3600,"scope":"%s","poll_key":"poll-key-123"}`, streamerScope()),
		map[string]string{"streamer-access": `{"data":[{"user_id":1001,"name":"thebroadcaster"}]}`},
	)

	_, err := f.manager.HandleAuthCallback(context.Background(), "auth-code", "s1")
	require.NoError(t, err)

	// The exchange went through the proxy as JSON, without client credentials
	exchange := f.transport.requests[0]
	assert.Equal(t, "https://proxy.example.com/auth/token", exchange.URL)
	var payload map[string]string
	require.NoError(t, json.Unmarshal([]byte(exchange.Body), &payload))
	assert.Equal(t, "authorization_code", payload["grant_type"])
	assert.NotContains(t, payload, "client_id")
	assert.NotContains(t, payload, "client_secret")

	saved := f.persister.saved[len(f.persister.saved)-1]
	assert.Equal(t, "poll-key-123", saved.PollKey)
}

func Test_Manager_HandleAuthCallback_surfacesExchangeFailure(t *testing.T) {
	f := newFixture(t, directConfig())
	f.manager.pending["s1"] = pendingAuth{identity: kickhooks.IdentityStreamer, verifier: "test-verifier"}
	f.transport.respond = func(req transport.Request) (json.RawMessage, error) {
		return nil, &transport.StatusError{Status: 500, Body: "mock server error"}
	}

	_, err := f.manager.HandleAuthCallback(context.Background(), "auth-code", "s1")
	require.Error(t, err)

	// An exchange failure is a server-side error, not a client rejection
	var rejected *RejectedError
	assert.False(t, errors.As(err, &rejected))

	// No state is retained: nothing was committed, no timer armed, and the state
	// value was consumed
	assert.False(t, f.store.Streamer().Get().Authorized())
	assert.Empty(t, f.scheduler.armed)
	assert.Empty(t, f.manager.pending)
}

func Test_Manager_renew_success(t *testing.T) {
	f := newFixture(t, directConfig())
	f.store.Streamer().Commit("old-access", "old-refresh", time.Now().Add(time.Minute), nil)
	f.transport.respond = respondWith(
		fmt.Sprintf(`{"access_token":"new-access","refresh_token":"new-refresh","expires_in":3600,"scope":"%s"}`, streamerScope()),
		nil,
	)

	err := f.manager.renew(context.Background(), kickhooks.IdentityStreamer)
	require.NoError(t, err)

	// All three of access token, refresh token, and expiry were replaced together
	rec := f.store.Streamer().Get()
	assert.Equal(t, "new-access", rec.AccessToken)
	assert.Equal(t, "new-refresh", rec.RefreshToken)
	assert.True(t, rec.ExpiresAt.After(time.Now().Add(30*time.Minute)))

	// The refresh used the refresh_token grant
	form, err := url.ParseQuery(f.transport.requests[0].Body)
	require.NoError(t, err)
	assert.Equal(t, "refresh_token", form.Get("grant_type"))
	assert.Equal(t, "old-refresh", form.Get("refresh_token"))

	// A fresh renewal timer was armed and dependents reconnected
	armed := f.scheduler.lastFor(kickhooks.IdentityStreamer)
	require.NotNil(t, armed)
	assert.Equal(t, 3600*time.Second-5*time.Minute, armed.delay)
	assert.Equal(t, 1, f.reconnects)
}

func Test_Manager_renew_schedulesRetryOnTransientFailure(t *testing.T) {
	f := newFixture(t, directConfig())
	f.store.Streamer().Commit("old-access", "old-refresh", time.Now().Add(time.Minute), nil)
	f.transport.respond = func(req transport.Request) (json.RawMessage, error) {
		return nil, &transport.StatusError{Status: 503, Body: "mock outage"}
	}

	err := f.manager.renew(context.Background(), kickhooks.IdentityStreamer)
	require.Error(t, err)

	// The refresh token is retained unchanged and a retry armed for 10 seconds
	rec := f.store.Streamer().Get()
	assert.Equal(t, "old-refresh", rec.RefreshToken)
	assert.Equal(t, "old-access", rec.AccessToken)
	armed := f.scheduler.lastFor(kickhooks.IdentityStreamer)
	require.NotNil(t, armed)
	assert.Equal(t, 10*time.Second, armed.delay)
	assert.Empty(t, f.notifier.messages)
}

func Test_Manager_renew_deauthorizesOn401(t *testing.T) {
	f := newFixture(t, directConfig())
	f.store.Streamer().Commit("old-access", "old-refresh", time.Now().Add(time.Minute), nil)
	f.transport.respond = func(req transport.Request) (json.RawMessage, error) {
		return nil, &transport.StatusError{Status: 401, Body: "invalid refresh token"}
	}

	err := f.manager.renew(context.Background(), kickhooks.IdentityStreamer)
	require.Error(t, err)

	// The refresh token is purged, a critical notification raised, and no retry
	// scheduled: a human must re-authorize
	rec := f.store.Streamer().Get()
	assert.Empty(t, rec.RefreshToken)
	assert.Empty(t, rec.AccessToken)
	assert.Empty(t, f.scheduler.armed)
	require.Len(t, f.notifier.messages, 1)
	assert.Contains(t, f.notifier.messages[0], "re-authorized")

	// The cleared state was persisted
	saved := f.persister.saved[len(f.persister.saved)-1]
	assert.Empty(t, saved.StreamerRefreshToken)
}

func Test_Manager_renew_botWithoutRefreshTokenIsANoOp(t *testing.T) {
	f := newFixture(t, directConfig())

	err := f.manager.renew(context.Background(), kickhooks.IdentityBot)
	assert.NoError(t, err)
	assert.Empty(t, f.transport.requests)
	assert.Empty(t, f.notifier.messages)
	assert.Empty(t, f.scheduler.armed)
}

func Test_Manager_renew_streamerWithoutRefreshTokenDisconnects(t *testing.T) {
	f := newFixture(t, directConfig())

	err := f.manager.renew(context.Background(), kickhooks.IdentityStreamer)
	require.Error(t, err)

	// The whole subsystem disconnects: both timers canceled, in-flight work
	// aborted, critical notification raised, no retry scheduled
	require.Len(t, f.notifier.messages, 1)
	assert.Contains(t, f.notifier.messages[0], "re-authorized")
	assert.Empty(t, f.scheduler.armed)
	assert.ElementsMatch(t, []kickhooks.Identity{kickhooks.IdentityStreamer, kickhooks.IdentityBot}, f.scheduler.canceled)
	assert.ErrorIs(t, f.manager.ctx.Err(), context.Canceled)
}

func Test_Manager_Resume(t *testing.T) {
	f := newFixture(t, directConfig())

	f.manager.Resume(token.Credentials{
		StreamerRefreshToken: "streamer-refresh",
		BotRefreshToken:      "bot-refresh",
		PollKey:              "poll-key",
	})

	// Both identities are seeded and armed for an immediate renewal
	assert.True(t, f.store.Streamer().Get().Authorized())
	assert.True(t, f.store.Bot().Get().Authorized())
	streamerTimer := f.scheduler.lastFor(kickhooks.IdentityStreamer)
	botTimer := f.scheduler.lastFor(kickhooks.IdentityBot)
	require.NotNil(t, streamerTimer)
	require.NotNil(t, botTimer)
	assert.Equal(t, time.Duration(0), streamerTimer.delay)
	assert.Equal(t, time.Duration(0), botTimer.delay)
}

func Test_Manager_Resume_withoutBotIsSilent(t *testing.T) {
	f := newFixture(t, directConfig())

	f.manager.Resume(token.Credentials{StreamerRefreshToken: "streamer-refresh"})

	assert.False(t, f.store.Bot().Get().Authorized())
	assert.Nil(t, f.scheduler.lastFor(kickhooks.IdentityBot))
	require.NotNil(t, f.scheduler.lastFor(kickhooks.IdentityStreamer))
}

func Test_Manager_Deauthorize(t *testing.T) {
	f := newFixture(t, directConfig())
	authorizeStreamer(t, f)
	f.store.Bot().Commit("bot-access", "bot-refresh", time.Now().Add(time.Hour), nil)

	f.manager.Deauthorize(context.Background(), kickhooks.IdentityBot)

	// Only the bot identity is affected
	assert.False(t, f.store.Bot().Get().Authorized())
	assert.True(t, f.store.Streamer().Get().Authorized())
	assert.Equal(t, []kickhooks.Identity{kickhooks.IdentityBot}, f.scheduler.canceled)
	saved := f.persister.saved[len(f.persister.saved)-1]
	assert.Empty(t, saved.BotRefreshToken)
	assert.Equal(t, "streamer-refresh", saved.StreamerRefreshToken)
	assert.Equal(t, 1, f.reconnects)
}

func Test_Manager_scheduledRenewalNeverPropagates(t *testing.T) {
	f := newFixture(t, directConfig())
	f.store.Streamer().Commit("old-access", "old-refresh", time.Now().Add(time.Minute), nil)
	f.transport.respond = func(req transport.Request) (json.RawMessage, error) {
		return nil, &transport.StatusError{Status: 503, Body: "mock outage"}
	}

	f.manager.scheduleRenewal(kickhooks.IdentityStreamer, 0)
	timer := f.scheduler.lastFor(kickhooks.IdentityStreamer)
	require.NotNil(t, timer)

	// Firing the timer runs the renewal; the failure is logged, not panicked, and
	// the retry timer displaces the original
	assert.NotPanics(t, timer.fn)
	retry := f.scheduler.lastFor(kickhooks.IdentityStreamer)
	assert.Equal(t, 10*time.Second, retry.delay)
}
