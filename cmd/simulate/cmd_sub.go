package main

import (
	"encoding/json"
	"flag"
	"strings"
	"time"
)

var subUsername string
var subUserId string
var subDuration int

func initSubCommand(cmd *flag.FlagSet) {
	cmd.StringVar(&subUsername, "username", "BigJoeBob", "Kick username of the new subscriber")
	cmd.StringVar(&subUserId, "user-id", "1337", "Kick user ID of the new subscriber")
	cmd.IntVar(&subDuration, "duration", 1, "Number of months covered by the new subscription")
}

func runSubCommand(channelName, channelUserId string) (string, json.RawMessage) {
	type subscriptionEvent struct {
		Broadcaster userRef `json:"broadcaster"`
		Subscriber  userRef `json:"subscriber"`
		Duration    int     `json:"duration"`
		CreatedAt   string  `json:"created_at"`
	}
	ev, err := json.Marshal(subscriptionEvent{
		Broadcaster: userRef{UserId: channelUserId, Username: channelName},
		Subscriber:  userRef{UserId: subUserId, Username: strings.ToLower(subUsername)},
		Duration:    subDuration,
		CreatedAt:   time.Now().Format(time.RFC3339),
	})
	if err != nil {
		panic(err)
	}
	return "channel.subscription.new", ev
}
