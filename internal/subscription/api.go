package subscription

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/streamkit/kickhooks"
	"github.com/streamkit/kickhooks/internal/token"
	"github.com/streamkit/kickhooks/internal/transport"
)

// Transport is the subset of transport.Client functionality used to talk to the
// Kick events API
type Transport interface {
	Execute(ctx context.Context, req transport.Request) (json.RawMessage, error)
}

// TokenSource yields the streamer's current token record: subscription management
// is authorized with the streamer's user access token
type TokenSource interface {
	Get() token.Record
}

var ErrNotAuthorized = errors.New("the streamer account is not authorized")

// Client wraps the Kick events API endpoints used to view and manage webhook
// event subscriptions
type Client struct {
	transport    Transport
	tokens       TokenSource
	apiServerURL string
}

func NewClient(t Transport, tokens TokenSource, apiServerURL string) *Client {
	return &Client{
		transport:    t,
		tokens:       tokens,
		apiServerURL: apiServerURL,
	}
}

// apiSubscription mirrors one element of the events API's list response
type apiSubscription struct {
	Id      string `json:"id"`
	Event   string `json:"event"`
	Version int    `json:"version"`
	Method  string `json:"method"`
}

func (c *Client) accessToken() (string, error) {
	rec := c.tokens.Get()
	if rec.AccessToken == "" {
		return "", ErrNotAuthorized
	}
	return rec.AccessToken, nil
}

// listSubscriptions queries the Kick API for all event subscriptions registered by
// our app against the broadcaster's channel
func (c *Client) listSubscriptions(ctx context.Context) ([]apiSubscription, error) {
	accessToken, err := c.accessToken()
	if err != nil {
		return nil, err
	}
	body, err := c.transport.Execute(ctx, transport.Request{
		URL:       c.apiServerURL + "/public/v1/events/subscriptions",
		AuthToken: accessToken,
	})
	if err != nil {
		return nil, err
	}
	var parsed struct {
		Data []apiSubscription `json:"data"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse subscriptions response: %w", err)
	}
	return parsed.Data, nil
}

// createSubscriptions registers webhook subscriptions for the given event types
func (c *Client) createSubscriptions(ctx context.Context, events []kickhooks.RequiredEventSubscription) error {
	accessToken, err := c.accessToken()
	if err != nil {
		return err
	}
	payload, err := json.Marshal(map[string]any{
		"events": events,
		"method": "webhook",
	})
	if err != nil {
		return err
	}
	_, err = c.transport.Execute(ctx, transport.Request{
		URL:       c.apiServerURL + "/public/v1/events/subscriptions",
		Method:    http.MethodPost,
		Body:      string(payload),
		AuthToken: accessToken,
	})
	return err
}

// deleteSubscription removes a single event subscription, given its ID
func (c *Client) deleteSubscription(ctx context.Context, id string) error {
	accessToken, err := c.accessToken()
	if err != nil {
		return err
	}
	_, err = c.transport.Execute(ctx, transport.Request{
		URL:       c.apiServerURL + "/public/v1/events/subscriptions?id=" + url.QueryEscape(id),
		Method:    http.MethodDelete,
		AuthToken: accessToken,
	})
	return err
}
