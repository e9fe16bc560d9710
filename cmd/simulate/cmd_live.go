package main

import (
	"encoding/json"
	"flag"
	"time"
)

var liveOffline bool
var liveTitle string

func initLiveCommand(cmd *flag.FlagSet) {
	cmd.BoolVar(&liveOffline, "offline", false, "Simulate the stream ending rather than starting")
	cmd.StringVar(&liveTitle, "title", "Untitled Stream", "Title of the livestream")
}

func runLiveCommand(channelName, channelUserId string) (string, json.RawMessage) {
	type livestreamStatusEvent struct {
		Broadcaster userRef `json:"broadcaster"`
		IsLive      bool    `json:"is_live"`
		Title       string  `json:"title"`
		StartedAt   string  `json:"started_at,omitempty"`
		EndedAt     string  `json:"ended_at,omitempty"`
	}
	ev := livestreamStatusEvent{
		Broadcaster: userRef{UserId: channelUserId, Username: channelName},
		IsLive:      !liveOffline,
		Title:       liveTitle,
	}
	if liveOffline {
		ev.StartedAt = time.Now().Add(-2 * time.Hour).Format(time.RFC3339)
		ev.EndedAt = time.Now().Format(time.RFC3339)
	} else {
		ev.StartedAt = time.Now().Format(time.RFC3339)
	}
	encoded, err := json.Marshal(ev)
	if err != nil {
		panic(err)
	}
	return "livestream.status.updated", encoded
}
