package main

import (
	"encoding/json"
	"flag"
	"strings"
	"time"
)

var resubUsername string
var resubUserId string
var resubDuration int

func initResubCommand(cmd *flag.FlagSet) {
	cmd.StringVar(&resubUsername, "username", "BigJoeBob", "Kick username of the renewing subscriber")
	cmd.StringVar(&resubUserId, "user-id", "1337", "Kick user ID of the renewing subscriber")
	cmd.IntVar(&resubDuration, "duration", 3, "Total number of months the user has been subscribed")
}

func runResubCommand(channelName, channelUserId string) (string, json.RawMessage) {
	type subscriptionRenewalEvent struct {
		Broadcaster userRef `json:"broadcaster"`
		Subscriber  userRef `json:"subscriber"`
		Duration    int     `json:"duration"`
		CreatedAt   string  `json:"created_at"`
	}
	ev, err := json.Marshal(subscriptionRenewalEvent{
		Broadcaster: userRef{UserId: channelUserId, Username: channelName},
		Subscriber:  userRef{UserId: resubUserId, Username: strings.ToLower(resubUsername)},
		Duration:    resubDuration,
		CreatedAt:   time.Now().Format(time.RFC3339),
	})
	if err != nil {
		panic(err)
	}
	return "channel.subscription.renewal", ev
}
