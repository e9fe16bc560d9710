package main

import (
	"encoding/json"
	"flag"
	"strings"
	"time"
)

var chatUsername string
var chatUserId string
var chatText string

func initChatCommand(cmd *flag.FlagSet) {
	cmd.StringVar(&chatUsername, "username", "BigJoeBob", "Kick username of the user sending the chat message")
	cmd.StringVar(&chatUserId, "user-id", "1337", "Kick user ID of the user sending the chat message")
	cmd.StringVar(&chatText, "text", "hello from the simulator", "Text of the chat message")
}

func runChatCommand(channelName, channelUserId string) (string, json.RawMessage) {
	type chatMessageEvent struct {
		MessageId   string  `json:"message_id"`
		Broadcaster userRef `json:"broadcaster"`
		Sender      userRef `json:"sender"`
		Content     string  `json:"content"`
		CreatedAt   string  `json:"created_at"`
	}
	ev, err := json.Marshal(chatMessageEvent{
		MessageId:   "simulated-message",
		Broadcaster: userRef{UserId: channelUserId, Username: channelName},
		Sender:      userRef{UserId: chatUserId, Username: strings.ToLower(chatUsername)},
		Content:     chatText,
		CreatedAt:   time.Now().Format(time.RFC3339),
	})
	if err != nil {
		panic(err)
	}
	return "chat.message.sent", ev
}
