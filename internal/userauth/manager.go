package userauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/exp/slog"

	"github.com/streamkit/kickhooks"
	"github.com/streamkit/kickhooks/internal/token"
	"github.com/streamkit/kickhooks/internal/transport"
)

const (
	// renewalLeadTime is how long before an access token expires that we renew it
	renewalLeadTime = 5 * time.Minute

	// renewalRetryDelay is how long we wait before retrying a refresh that failed
	// for any reason other than the refresh token being invalidated
	renewalRetryDelay = 10 * time.Second

	// exchangeTimeout bounds every outbound call made by the manager
	exchangeTimeout = 10 * time.Second
)

// ErrNotConfigured indicates that we have no way to talk to the Kick OAuth server:
// the operator must supply either a client ID/secret pair or a webhook proxy URL
var ErrNotConfigured = errors.New("neither client credentials nor a webhook proxy URL are configured")

// RejectedError is a client-facing rejection of an authorization callback,
// surfaced to the browser as a 400 rather than a server error
type RejectedError struct {
	Message string
}

func (e *RejectedError) Error() string {
	return e.Message
}

// Config carries the endpoints and credentials used for all OAuth traffic. Exactly
// one of {ClientId+ClientSecret, ProxyURL} must be set: with a proxy, the proxy
// holds the client credentials and injects them on our behalf.
type Config struct {
	AuthServerURL string
	ApiServerURL  string
	ClientId      string
	ClientSecret  string
	ProxyURL      string
	RedirectURI   string
}

// Transport is the subset of transport.Client functionality the manager depends on
type Transport interface {
	Execute(ctx context.Context, req transport.Request) (json.RawMessage, error)
}

// Notifier raises critical, human-directed notifications: lost authorization,
// missing scopes, anything that requires operator intervention
type Notifier interface {
	Critical(message string)
}

// Persister saves the restart-surviving credentials after every token change
type Persister interface {
	Save(ctx context.Context, c token.Credentials) error
}

// pendingAuth records an authorization flow that has been started but whose
// callback has not yet arrived, keyed by the single-use state value
type pendingAuth struct {
	identity kickhooks.Identity
	verifier string
}

// Manager keeps the streamer and bot identities continuously authorized: it builds
// authorization URLs, handles callbacks, exchanges and refreshes tokens, and arms
// the per-identity renewal timers. It is the sole owner of the token store.
type Manager struct {
	config    Config
	transport Transport
	store     *token.Store
	scheduler Scheduler
	persister Persister
	notifier  Notifier
	reconnect func(ctx context.Context)
	logger    *slog.Logger

	// ctx is canceled by Disconnect, aborting any in-flight renewal calls
	ctx  context.Context
	stop context.CancelFunc

	mu             sync.Mutex
	pending        map[string]pendingAuth
	pollKey        string
	streamerUserId string
}

func NewManager(ctx context.Context, config Config, t Transport, store *token.Store, scheduler Scheduler, persister Persister, notifier Notifier, reconnect func(ctx context.Context), logger *slog.Logger) *Manager {
	ctx, stop := context.WithCancel(ctx)
	return &Manager{
		config:    config,
		transport: t,
		store:     store,
		scheduler: scheduler,
		persister: persister,
		notifier:  notifier,
		reconnect: reconnect,
		logger:    logger,
		ctx:       ctx,
		stop:      stop,
		pending:   make(map[string]pendingAuth),
	}
}

// Resume seeds the token store from persisted credentials and arms an immediate
// renewal for each identity that has a refresh token, re-establishing access
// tokens after a process restart. Any authorization that was in flight when the
// previous process exited is simply lost; the user can restart the flow.
func (m *Manager) Resume(creds token.Credentials) {
	m.mu.Lock()
	m.pollKey = creds.PollKey
	m.mu.Unlock()

	if creds.StreamerRefreshToken != "" {
		m.store.Streamer().Seed(creds.StreamerRefreshToken)
		m.scheduleRenewal(kickhooks.IdentityStreamer, 0)
	}
	if creds.BotRefreshToken != "" {
		m.store.Bot().Seed(creds.BotRefreshToken)
		m.scheduleRenewal(kickhooks.IdentityBot, 0)
	}
}

// Disconnect shuts the manager down: it aborts any in-flight network calls and
// cancels both identities' renewal timers. Token state is left intact.
func (m *Manager) Disconnect() {
	m.stop()
	m.scheduler.Cancel(kickhooks.IdentityStreamer)
	m.scheduler.Cancel(kickhooks.IdentityBot)
}

// Deauthorize explicitly drops one identity's authorization: its renewal timer is
// canceled and its token record is cleared whole. The other identity is untouched.
func (m *Manager) Deauthorize(ctx context.Context, identity kickhooks.Identity) {
	m.scheduler.Cancel(identity)
	m.handleFor(identity).Clear()
	if identity == kickhooks.IdentityStreamer {
		m.mu.Lock()
		m.pollKey = ""
		m.streamerUserId = ""
		m.mu.Unlock()
	}
	m.persistCredentials(ctx)
	m.reconnect(ctx)
}

// BuildAuthorizationURL starts an authorization flow for the given identity: it
// generates a fresh PKCE verifier/challenge pair and a single-use state value,
// records them, and returns the URL the user's browser should be sent to. With a
// proxy configured the URL targets the proxy, which injects our client ID.
func (m *Manager) BuildAuthorizationURL(identity kickhooks.Identity) (string, error) {
	base := ""
	includeClientId := false
	if m.config.ProxyURL != "" {
		base = m.config.ProxyURL + "/auth/authorize"
	} else if m.config.ClientId != "" && m.config.ClientSecret != "" {
		base = m.config.AuthServerURL + "/oauth/authorize"
		includeClientId = true
	} else {
		return "", ErrNotConfigured
	}

	verifier := generatePkceVerifier()
	state := uuid.NewString()
	m.mu.Lock()
	m.pending[state] = pendingAuth{identity: identity, verifier: verifier}
	m.mu.Unlock()

	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Add("response_type", "code")
	if includeClientId {
		q.Add("client_id", m.config.ClientId)
	}
	q.Add("redirect_uri", m.config.RedirectURI)
	q.Add("scope", strings.Join(kickhooks.RequiredScopes(identity), " "))
	q.Add("code_challenge", computePkceChallenge(verifier))
	q.Add("code_challenge_method", "S256")
	q.Add("state", state)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// AuthOutcome describes a completed authorization: which identity it was for, and
// any required scopes the user declined to grant
type AuthOutcome struct {
	Identity      kickhooks.Identity
	MissingScopes []string
}

// HandleAuthCallback consumes an authorization redirect: it maps the state value
// back to a pending flow, exchanges the code for tokens, verifies scopes and role
// consistency, commits the new token record, and arms the renewal timer. A
// *RejectedError means the request itself was bad (400); any other error means the
// exchange failed (500).
func (m *Manager) HandleAuthCallback(ctx context.Context, code, state string) (*AuthOutcome, error) {
	if code == "" || state == "" {
		return nil, &RejectedError{Message: "'code' and 'state' parameters are required"}
	}

	m.mu.Lock()
	p, ok := m.pending[state]
	delete(m.pending, state)
	m.mu.Unlock()
	if !ok {
		return nil, &RejectedError{Message: "unrecognized 'state' value; please restart the authorization flow"}
	}

	// A bot authorization is meaningless until we know who the broadcaster is: we
	// couldn't check for a same-account collision
	if p.identity == kickhooks.IdentityBot && !m.store.Streamer().Get().Authorized() {
		return nil, &RejectedError{Message: "the bot account cannot be authorized until the streamer account has been authorized"}
	}

	resp, err := m.exchangeCode(ctx, code, p.verifier)
	if err != nil {
		return nil, fmt.Errorf("token exchange failed: %w", err)
	}

	missing := kickhooks.MissingScopes(resp.Scope, kickhooks.RequiredScopes(p.identity))

	if p.identity == kickhooks.IdentityBot {
		if err := m.checkBotExchange(ctx, resp); err != nil {
			return nil, err
		}
	} else {
		if err := m.checkStreamerExchange(ctx, resp); err != nil {
			return nil, err
		}
	}

	// Partial grants are accepted, but the operator needs to know: features tied
	// to the missing scopes won't work until the identity is re-authorized. A
	// rejected exchange commits nothing, so it warrants no scope alert.
	if len(missing) > 0 {
		m.notifier.Critical(fmt.Sprintf("The %s account was authorized without required scopes: %s", p.identity, strings.Join(missing, ", ")))
	}

	m.commit(ctx, p.identity, resp, missing)
	return &AuthOutcome{Identity: p.identity, MissingScopes: missing}, nil
}

// checkBotExchange enforces role consistency for a bot token exchange: the token
// response must not carry a poll key (the proxy only issues those to the streamer
// role), and the bot must not resolve to the same Kick user as the streamer.
func (m *Manager) checkBotExchange(ctx context.Context, resp *tokenResponse) error {
	if resp.PollKey != "" {
		return &RejectedError{Message: "the token response carried a poll key, which belongs to the streamer role; this authorization cannot be used for the bot account"}
	}

	streamerUserId, err := m.resolveStreamerUserId(ctx)
	if err != nil {
		return fmt.Errorf("failed to resolve streamer identity: %w", err)
	}
	botUserId, botName, err := m.lookupUser(ctx, resp.AccessToken)
	if err != nil {
		return fmt.Errorf("failed to verify bot identity: %w", err)
	}
	if botUserId == streamerUserId {
		return &RejectedError{Message: fmt.Sprintf("'%s' is the streamer account; the bot must be authorized as a different Kick account", botName)}
	}
	return nil
}

// checkStreamerExchange enforces role consistency for a streamer token exchange
// and records the broadcaster's user ID and poll key for later use.
func (m *Manager) checkStreamerExchange(ctx context.Context, resp *tokenResponse) error {
	if m.config.ProxyURL != "" && resp.PollKey == "" {
		return &RejectedError{Message: "the webhook proxy did not issue a poll key; this authorization cannot be used for the streamer account"}
	}

	userId, _, err := m.lookupUser(ctx, resp.AccessToken)
	if err != nil {
		return fmt.Errorf("failed to resolve streamer identity: %w", err)
	}

	m.mu.Lock()
	m.streamerUserId = userId
	if resp.PollKey != "" {
		m.pollKey = resp.PollKey
	}
	m.mu.Unlock()
	return nil
}

// renew refreshes one identity's access token using its stored refresh token. A
// 401 means Kick has invalidated the refresh token: the identity is deauthorized
// and a human must re-authorize. Any other failure schedules a retry.
func (m *Manager) renew(ctx context.Context, identity kickhooks.Identity) error {
	h := m.handleFor(identity)
	rec := h.Get()

	if rec.RefreshToken == "" {
		if identity == kickhooks.IdentityBot {
			// No bot is configured; nothing to renew
			return nil
		}
		m.notifier.Critical("Streamer authorization has been lost; the streamer account must be re-authorized")
		m.Disconnect()
		return errors.New("no streamer refresh token is available")
	}

	resp, err := m.exchangeRefresh(ctx, rec.RefreshToken)
	if err != nil {
		var statusErr *transport.StatusError
		if errors.As(err, &statusErr) && statusErr.Status == http.StatusUnauthorized {
			h.Clear()
			if identity == kickhooks.IdentityStreamer {
				m.mu.Lock()
				m.pollKey = ""
				m.streamerUserId = ""
				m.mu.Unlock()
			}
			m.persistCredentials(ctx)
			m.notifier.Critical(fmt.Sprintf("Kick has invalidated the %s refresh token; the %s account must be re-authorized", identity, identity))
			return fmt.Errorf("refresh token for %s was rejected: %w", identity, err)
		}
		m.scheduleRenewal(identity, renewalRetryDelay)
		return fmt.Errorf("failed to refresh %s token, will retry in %v: %w", identity, renewalRetryDelay, err)
	}

	// Scope verification happens at authorization time; a refresh carries the
	// grant forward unchanged
	m.commit(ctx, identity, resp, rec.MissingScopes)
	return nil
}

// commit atomically installs the outcome of a successful exchange or refresh:
// the token record is replaced whole, credentials are persisted, dependent
// systems are told to reconnect, and the next renewal is armed for five minutes
// before the new token expires.
func (m *Manager) commit(ctx context.Context, identity kickhooks.Identity, resp *tokenResponse, missingScopes []string) {
	lifetime := time.Duration(resp.ExpiresIn) * time.Second
	m.handleFor(identity).Commit(resp.AccessToken, resp.RefreshToken, time.Now().Add(lifetime), missingScopes)
	m.persistCredentials(ctx)
	m.reconnect(ctx)

	// A token that's already inside the lead window gets renewed immediately
	delay := lifetime - renewalLeadTime
	if delay < 0 {
		delay = 0
	}
	m.scheduleRenewal(identity, delay)
	m.logger.Info("Committed token change",
		"identity", identity.String(),
		"expiresIn", lifetime,
		"missingScopes", missingScopes,
	)
}

// scheduleRenewal arms the renewal timer for an identity, displacing any timer
// already pending. The timer callback never propagates an error: a failure inside
// a background renewal is logged, not thrown.
func (m *Manager) scheduleRenewal(identity kickhooks.Identity, delay time.Duration) {
	m.scheduler.Arm(identity, delay, func() {
		if err := m.renew(m.ctx, identity); err != nil {
			m.logger.Error("Scheduled token renewal failed", "identity", identity.String(), "error", err)
		}
	})
}

func (m *Manager) handleFor(identity kickhooks.Identity) *token.Handle {
	if identity == kickhooks.IdentityBot {
		return m.store.Bot()
	}
	return m.store.Streamer()
}

// persistCredentials snapshots the restart-surviving credentials and hands them to
// the persister. Persistence failure doesn't fail the flow: the in-memory state is
// authoritative, but the operator is warned since a restart would lose it.
func (m *Manager) persistCredentials(ctx context.Context) {
	m.mu.Lock()
	pollKey := m.pollKey
	m.mu.Unlock()
	creds := token.Credentials{
		StreamerRefreshToken: m.store.Streamer().Get().RefreshToken,
		BotRefreshToken:      m.store.Bot().Get().RefreshToken,
		PollKey:              pollKey,
	}
	if err := m.persister.Save(ctx, creds); err != nil {
		m.logger.Error("Failed to persist credentials", "error", err)
		m.notifier.Critical("Failed to persist credentials; authorization will not survive a restart")
	}
}

// resolveStreamerUserId returns the broadcaster's Kick user ID, looking it up with
// the streamer's access token if it isn't already known (e.g. after a restart,
// when the streamer record was seeded from a persisted refresh token).
func (m *Manager) resolveStreamerUserId(ctx context.Context) (string, error) {
	m.mu.Lock()
	cached := m.streamerUserId
	m.mu.Unlock()
	if cached != "" {
		return cached, nil
	}

	rec := m.store.Streamer().Get()
	if rec.AccessToken == "" {
		return "", errors.New("streamer access token is not available")
	}
	userId, _, err := m.lookupUser(ctx, rec.AccessToken)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	m.streamerUserId = userId
	m.mu.Unlock()
	return userId, nil
}

// lookupUser calls the Kick users endpoint to resolve the user that an access
// token belongs to
func (m *Manager) lookupUser(ctx context.Context, accessToken string) (userId string, name string, err error) {
	body, err := m.transport.Execute(ctx, transport.Request{
		URL:       m.config.ApiServerURL + "/public/v1/users",
		AuthToken: accessToken,
		Timeout:   exchangeTimeout,
	})
	if err != nil {
		return "", "", err
	}
	var parsed struct {
		Data []struct {
			UserId int64  `json:"user_id"`
			Name   string `json:"name"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", "", fmt.Errorf("failed to parse users response: %w", err)
	}
	if len(parsed.Data) != 1 {
		return "", "", fmt.Errorf("expected exactly 1 user in users response, got %d", len(parsed.Data))
	}
	return strconv.FormatInt(parsed.Data[0].UserId, 10), parsed.Data[0].Name, nil
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	Scope        string `json:"scope"`
	PollKey      string `json:"poll_key,omitempty"`
}

// exchangeCode swaps an authorization code for tokens, going through the proxy if
// one is configured (the proxy injects the client credentials) or directly against
// the Kick OAuth server otherwise.
func (m *Manager) exchangeCode(ctx context.Context, code, verifier string) (*tokenResponse, error) {
	if m.config.ProxyURL != "" {
		payload, err := json.Marshal(map[string]string{
			"grant_type":    "authorization_code",
			"code":          code,
			"redirect_uri":  m.config.RedirectURI,
			"code_verifier": verifier,
		})
		if err != nil {
			return nil, err
		}
		return m.postTokenRequest(ctx, m.config.ProxyURL+"/auth/token", string(payload))
	}
	if m.config.ClientId == "" || m.config.ClientSecret == "" {
		return nil, ErrNotConfigured
	}
	form := url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"client_id":     {m.config.ClientId},
		"client_secret": {m.config.ClientSecret},
		"redirect_uri":  {m.config.RedirectURI},
		"code_verifier": {verifier},
	}
	return m.postTokenRequest(ctx, m.config.AuthServerURL+"/oauth/token", form.Encode())
}

// exchangeRefresh swaps a refresh token for a fresh token set, mirroring the mode
// used for code exchange.
func (m *Manager) exchangeRefresh(ctx context.Context, refreshToken string) (*tokenResponse, error) {
	if m.config.ProxyURL != "" {
		payload, err := json.Marshal(map[string]string{
			"grant_type":    "refresh_token",
			"refresh_token": refreshToken,
		})
		if err != nil {
			return nil, err
		}
		return m.postTokenRequest(ctx, m.config.ProxyURL+"/auth/token", string(payload))
	}
	if m.config.ClientId == "" || m.config.ClientSecret == "" {
		return nil, ErrNotConfigured
	}
	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
		"client_id":     {m.config.ClientId},
		"client_secret": {m.config.ClientSecret},
		"redirect_uri":  {m.config.RedirectURI},
	}
	return m.postTokenRequest(ctx, m.config.AuthServerURL+"/oauth/token", form.Encode())
}

func (m *Manager) postTokenRequest(ctx context.Context, targetUrl, body string) (*tokenResponse, error) {
	raw, err := m.transport.Execute(ctx, transport.Request{
		URL:     targetUrl,
		Method:  http.MethodPost,
		Body:    body,
		Timeout: exchangeTimeout,
	})
	if err != nil {
		return nil, err
	}
	var resp tokenResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse token response: %w", err)
	}
	if resp.AccessToken == "" || resp.RefreshToken == "" {
		return nil, errors.New("token response is missing access_token or refresh_token")
	}
	return &resp, nil
}
