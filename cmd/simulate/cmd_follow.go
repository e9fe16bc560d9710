package main

import (
	"encoding/json"
	"flag"
	"strings"
)

var followUsername string
var followUserId string

func initFollowCommand(cmd *flag.FlagSet) {
	cmd.StringVar(&followUsername, "username", "BigJoeBob", "Kick username of the user that followed the channel")
	cmd.StringVar(&followUserId, "user-id", "1337", "Kick user ID of the user that followed the channel")
}

func runFollowCommand(channelName, channelUserId string) (string, json.RawMessage) {
	type channelFollowedEvent struct {
		Broadcaster userRef `json:"broadcaster"`
		Follower    userRef `json:"follower"`
	}
	ev, err := json.Marshal(channelFollowedEvent{
		Broadcaster: userRef{UserId: channelUserId, Username: channelName},
		Follower:    userRef{UserId: followUserId, Username: strings.ToLower(followUsername)},
	})
	if err != nil {
		panic(err)
	}
	return "channel.followed", ev
}
