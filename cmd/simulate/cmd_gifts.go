package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"strings"
	"time"
)

var giftsUsername string
var giftsUserId string
var giftsCount int

func initGiftsCommand(cmd *flag.FlagSet) {
	cmd.StringVar(&giftsUsername, "username", "BigJoeBob", "Kick username of the user gifting subscriptions")
	cmd.StringVar(&giftsUserId, "user-id", "1337", "Kick user ID of the user gifting subscriptions")
	cmd.IntVar(&giftsCount, "count", 5, "Number of gifted subscriptions")
}

func runGiftsCommand(channelName, channelUserId string) (string, json.RawMessage) {
	type subscriptionGiftsEvent struct {
		Broadcaster userRef   `json:"broadcaster"`
		Gifter      userRef   `json:"gifter"`
		Giftees     []userRef `json:"giftees"`
		CreatedAt   string    `json:"created_at"`
	}
	giftees := make([]userRef, 0, giftsCount)
	for i := 0; i < giftsCount; i++ {
		giftees = append(giftees, userRef{
			UserId:   fmt.Sprintf("9%03d", i),
			Username: fmt.Sprintf("luckyviewer%d", i),
		})
	}
	ev, err := json.Marshal(subscriptionGiftsEvent{
		Broadcaster: userRef{UserId: channelUserId, Username: channelName},
		Gifter:      userRef{UserId: giftsUserId, Username: strings.ToLower(giftsUsername)},
		Giftees:     giftees,
		CreatedAt:   time.Now().Format(time.RFC3339),
	})
	if err != nil {
		panic(err)
	}
	return "channel.subscription.gifts", ev
}
