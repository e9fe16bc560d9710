package kickhooks

import "strings"

// Identity distinguishes the two Kick accounts whose tokens we manage. The streamer
// account is mandatory; the bot account is optional and must belong to a different
// Kick user than the streamer.
type Identity int

const (
	IdentityStreamer Identity = iota
	IdentityBot
)

func (i Identity) String() string {
	if i == IdentityBot {
		return "bot"
	}
	return "streamer"
}

// StreamerScopes declares the OAuth scopes that the streamer account must grant for
// full backend functionality: reading and updating channel metadata, sending chat
// messages, and registering event subscriptions all happen under this token.
var StreamerScopes = []string{
	"user:read",
	"channel:read",
	"channel:write",
	"chat:write",
	"events:subscribe",
}

// BotScopes declares the OAuth scopes required for the bot account, which only ever
// identifies itself and writes chat messages.
var BotScopes = []string{
	"user:read",
	"chat:write",
}

// RequiredScopes returns the scope set that must be granted when authorizing the
// given identity.
func RequiredScopes(identity Identity) []string {
	if identity == IdentityBot {
		return BotScopes
	}
	return StreamerScopes
}

// MissingScopes compares the space-delimited scope string returned by the Kick token
// endpoint against a required scope set, returning the required scopes that were not
// granted, in the order they appear in the required set.
func MissingScopes(granted string, required []string) []string {
	have := make(map[string]bool)
	for _, scope := range strings.Fields(granted) {
		have[strings.TrimSpace(scope)] = true
	}
	missing := make([]string, 0)
	for _, scope := range required {
		if !have[scope] {
			missing = append(missing, scope)
		}
	}
	return missing
}

// RequiredEventSubscription identifies a Kick webhook event type that must be
// subscribed for our app to function
type RequiredEventSubscription struct {
	Name    string `json:"name"`
	Version int    `json:"version"`
}

// EventSubscriptions declares all of the Kick webhook event subscriptions that must
// be registered against the broadcaster's channel
var EventSubscriptions = []RequiredEventSubscription{
	{
		Name:    "chat.message.sent",
		Version: 1,
	},
	{
		Name:    "channel.followed",
		Version: 1,
	},
	{
		Name:    "channel.subscription.new",
		Version: 1,
	},
	{
		Name:    "channel.subscription.renewal",
		Version: 1,
	},
	{
		Name:    "channel.subscription.gifts",
		Version: 1,
	},
	{
		Name:    "livestream.status.updated",
		Version: 1,
	},
}
