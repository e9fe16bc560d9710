package main

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/codingconcepts/env"
	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/streamkit/kickhooks"
	"github.com/streamkit/kickhooks/internal/signature"
)

type Config struct {
	ChannelName         string `env:"CHANNEL_NAME" default:"teststreamer"`
	ChannelUserId       string `env:"CHANNEL_USER_ID" default:"1001"`
	TestEventPrivateKey string `env:"TEST_EVENT_PRIVATE_KEY" required:"true"`
}

// userRef identifies a Kick user within an event body.
type userRef struct {
	UserId   string `json:"user_id"`
	Username string `json:"username"`
}

type Command struct {
	name     string
	initFunc func(cmd *flag.FlagSet)
	runFunc  func(channelName, channelUserId string) (string, json.RawMessage)
}

var commands = []Command{
	{"chat", initChatCommand, runChatCommand},
	{"follow", initFollowCommand, runFollowCommand},
	{"sub", initSubCommand, runSubCommand},
	{"resub", initResubCommand, runResubCommand},
	{"gifts", initGiftsCommand, runGiftsCommand},
	{"live", initLiveCommand, runLiveCommand},
}

func main() {
	// We only want to simulate events locally: the server must be running with
	// ALLOW_TEST_WEBHOOKS enabled and a TEST_EVENT_PUBLIC_KEY matching our private
	// key, which real deployments should never do
	url := "http://localhost:5004/webhook"

	// Parse config from environment variables
	err := godotenv.Load()
	if err != nil && !os.IsNotExist(err) {
		log.Fatalf("error loading .env file: %v", err)
	}
	config := Config{}
	if err := env.Set(&config); err != nil {
		log.Fatalf("error loading config: %v", err)
	}
	privateKey, err := parseTestPrivateKey(config.TestEventPrivateKey)
	if err != nil {
		log.Fatalf("error parsing test event private key: %v", err)
	}

	// Parse the subcommand that we want to run, or print usage if no match
	var command *Command
	commandName := ""
	if len(os.Args) > 1 {
		commandName = os.Args[1]
	}
	for i := range commands {
		if commands[i].name == commandName {
			command = &commands[i]
			break
		}
	}
	if command == nil {
		commandNames := make([]string, 0, len(commands))
		for i := range commands {
			commandNames = append(commandNames, commands[i].name)
		}
		log.Fatalf("Usage: simulate [%s]", strings.Join(commandNames, "|"))
	}

	// Initialize command-line flags for the chosen subcommand
	flagSet := flag.NewFlagSet(command.name, flag.ExitOnError)
	command.initFunc(flagSet)
	if err := flagSet.Parse(os.Args[2:]); err != nil {
		log.Fatalf("Parse error: %v", err)
	}

	// Run the subcommand-specific function to build an event body
	eventName, data := command.runFunc(config.ChannelName, config.ChannelUserId)

	// Build a webhook payload, finding a required subscription that matches the
	// event type indicated by our subcommand
	payload := kickhooks.EventPayload{
		IsTestEvent: true,
		Event:       eventName,
		Data:        data,
	}
	for _, required := range kickhooks.EventSubscriptions {
		if required.Name == eventName {
			payload.Version = required.Version
			break
		}
	}
	if payload.Version == 0 {
		log.Fatalf("no subscription for event %s is required by the service", eventName)
	}
	broadcaster, err := json.Marshal(userRef{UserId: config.ChannelUserId, Username: config.ChannelName})
	if err != nil {
		log.Fatalf("failed to encode broadcaster details: %v", err)
	}
	payload.Broadcaster = broadcaster

	// Serialize our entire payload to JSON: the signature covers these exact bytes
	body, err := json.Marshal(payload)
	if err != nil {
		log.Fatalf("failed to encode webhook payload: %v", err)
	}

	// Prepare the HTTP request that will carry that payload in its body, signing
	// the raw body with our test key so that the server's test-event verification
	// will accept it
	req, err := http.NewRequest(http.MethodPost, url, strings.NewReader(string(body)))
	if err != nil {
		log.Fatalf("error initializing HTTP request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(signature.MessageIdHeader, uuid.NewString())
	req.Header.Set(signature.TimestampHeader, time.Now().Format(time.RFC3339))
	req.Header.Set(signature.SignatureHeader, hex.EncodeToString(ed25519.Sign(privateKey, body)))

	// Print the details of the request to stdout
	fmt.Printf("%s %s\n", req.Method, req.URL)
	for k, values := range req.Header {
		for _, v := range values {
			fmt.Printf("> %s: %s\n", k, v)
		}
	}
	pretty, err := json.MarshalIndent(payload, "", "    ")
	if err != nil {
		log.Fatalf("failed to pretty-print JSON payload: %v", err)
	}
	fmt.Printf("\n%s\n\n", pretty)

	// Send the request and verify that we get an OK response
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Fatalf("error sending HTTP request: %v", err)
	}
	if res.StatusCode != http.StatusOK {
		log.Fatalf("got response %d", res.StatusCode)
	}
	fmt.Printf("< %d\n", res.StatusCode)
}

// parseTestPrivateKey accepts a base64-encoded Ed25519 private key, given either as
// a 32-byte seed or as the full 64-byte expanded key.
func parseTestPrivateKey(encoded string) (ed25519.PrivateKey, error) {
	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, err
	}
	switch len(decoded) {
	case ed25519.SeedSize:
		return ed25519.NewKeyFromSeed(decoded), nil
	case ed25519.PrivateKeySize:
		return ed25519.PrivateKey(decoded), nil
	}
	return nil, fmt.Errorf("expected a %d- or %d-byte key, got %d bytes", ed25519.SeedSize, ed25519.PrivateKeySize, len(decoded))
}
