package subscription

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/streamkit/kickhooks"
)

func Test_reconcileSubscriptionStatus(t *testing.T) {
	required := []kickhooks.RequiredEventSubscription{
		{Name: "chat.message.sent", Version: 1},
		{Name: "channel.followed", Version: 1},
	}

	tests := []struct {
		name          string
		subscriptions []apiSubscription
		wantOk        bool
		wantStates    []State
	}{
		{
			"no extant subscriptions means everything is missing",
			[]apiSubscription{},
			false,
			[]State{
				{Required: true, Name: "chat.message.sent", Version: 1, Status: "missing"},
				{Required: true, Name: "channel.followed", Version: 1, Status: "missing"},
			},
		},
		{
			"all required subscriptions registered is ok",
			[]apiSubscription{
				{Id: "sub-1", Event: "chat.message.sent", Version: 1, Method: "webhook"},
				{Id: "sub-2", Event: "channel.followed", Version: 1, Method: "webhook"},
			},
			true,
			[]State{
				{Required: true, Name: "chat.message.sent", Version: 1, Status: "active", subscriptionId: "sub-1"},
				{Required: true, Name: "channel.followed", Version: 1, Status: "active", subscriptionId: "sub-2"},
			},
		},
		{
			"a version mismatch does not satisfy a requirement",
			[]apiSubscription{
				{Id: "sub-1", Event: "chat.message.sent", Version: 2, Method: "webhook"},
				{Id: "sub-2", Event: "channel.followed", Version: 1, Method: "webhook"},
			},
			false,
			[]State{
				{Required: true, Name: "chat.message.sent", Version: 1, Status: "missing"},
				{Required: true, Name: "channel.followed", Version: 1, Status: "active", subscriptionId: "sub-2"},
				{Required: false, Name: "chat.message.sent", Version: 2, Status: "active", subscriptionId: "sub-1"},
			},
		},
		{
			"non-webhook subscriptions are ignored",
			[]apiSubscription{
				{Id: "sub-1", Event: "chat.message.sent", Version: 1, Method: "websocket"},
				{Id: "sub-2", Event: "channel.followed", Version: 1, Method: "webhook"},
			},
			false,
			[]State{
				{Required: true, Name: "chat.message.sent", Version: 1, Status: "missing"},
				{Required: true, Name: "channel.followed", Version: 1, Status: "active", subscriptionId: "sub-2"},
			},
		},
		{
			"extra webhook subscriptions are listed as ancillary",
			[]apiSubscription{
				{Id: "sub-1", Event: "chat.message.sent", Version: 1, Method: "webhook"},
				{Id: "sub-2", Event: "channel.followed", Version: 1, Method: "webhook"},
				{Id: "sub-3", Event: "livestream.status.updated", Version: 1, Method: "webhook"},
			},
			true,
			[]State{
				{Required: true, Name: "chat.message.sent", Version: 1, Status: "active", subscriptionId: "sub-1"},
				{Required: true, Name: "channel.followed", Version: 1, Status: "active", subscriptionId: "sub-2"},
				{Required: false, Name: "livestream.status.updated", Version: 1, Status: "active", subscriptionId: "sub-3"},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := reconcileSubscriptionStatus(tt.subscriptions, required)
			assert.Equal(t, tt.wantOk, got.Ok)
			assert.Equal(t, tt.wantStates, got.Subscriptions)
		})
	}
}
