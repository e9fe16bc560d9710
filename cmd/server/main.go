package main

import (
	"context"
	"crypto/ed25519"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/codingconcepts/env"
	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	amqp "github.com/rabbitmq/amqp091-go"
	"golang.org/x/exp/slog"
	_ "modernc.org/sqlite"

	"github.com/streamkit/kickhooks/internal/events"
	"github.com/streamkit/kickhooks/internal/signature"
	"github.com/streamkit/kickhooks/internal/subscription"
	"github.com/streamkit/kickhooks/internal/token"
	"github.com/streamkit/kickhooks/internal/token/sqlite"
	"github.com/streamkit/kickhooks/internal/transport"
	"github.com/streamkit/kickhooks/internal/userauth"
	"github.com/streamkit/kickhooks/internal/webhook"
)

type Config struct {
	BindAddr   string `env:"BIND_ADDR"`
	ListenPort uint16 `env:"LISTEN_PORT" default:"5004"`
	Origin     string `env:"ORIGIN" default:"http://localhost:5004"`

	KickClientId     string `env:"KICK_CLIENT_ID"`
	KickClientSecret string `env:"KICK_CLIENT_SECRET"`
	KickAuthURL      string `env:"KICK_AUTH_URL" default:"https://id.kick.com"`
	KickApiURL       string `env:"KICK_API_URL" default:"https://api.kick.com"`
	AuthProxyURL     string `env:"AUTH_PROXY_URL"`

	AllowTestWebhooks    bool   `env:"ALLOW_TEST_WEBHOOKS" default:"false"`
	TestEventPublicKey   string `env:"TEST_EVENT_PUBLIC_KEY"`
	KickWebhookPublicKey string `env:"KICK_WEBHOOK_PUBLIC_KEY" required:"true"`

	RmqHost     string `env:"RMQ_HOST" required:"true"`
	RmqPort     int    `env:"RMQ_PORT" required:"true"`
	RmqVhost    string `env:"RMQ_VHOST" required:"true"`
	RmqUser     string `env:"RMQ_USER" required:"true"`
	RmqPassword string `env:"RMQ_PASSWORD" required:"true"`

	DatabasePath string `env:"DATABASE_PATH" default:"kickhooks.db"`
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	fail := func(message string, err error) {
		logger.Error(message, "error", err)
		os.Exit(1)
	}

	// Parse config from environment variables
	err := godotenv.Load()
	if err != nil && !os.IsNotExist(err) {
		fail("Failed to load .env file", err)
	}
	config := Config{}
	if err := env.Set(&config); err != nil {
		fail("Failed to load config", err)
	}
	if config.AuthProxyURL == "" && (config.KickClientId == "" || config.KickClientSecret == "") {
		fail("Invalid config", fmt.Errorf("KICK_CLIENT_ID and KICK_CLIENT_SECRET are required unless AUTH_PROXY_URL is set"))
	}

	// Initialize an AMQP client, with one producer that fans out verified Kick
	// events and another that signals downstream consumers when our connection to
	// Kick has been (re-)established
	amqpConn, err := amqp.Dial(events.FormatConnectionString(config.RmqHost, config.RmqPort, config.RmqVhost, config.RmqUser, config.RmqPassword))
	if err != nil {
		fail("Failed to connect to AMQP server", err)
	}
	defer amqpConn.Close()
	eventsProducer, err := events.NewProducer(amqpConn, "kick-events")
	if err != nil {
		fail("Failed to initialize AMQP producer for kick-events", err)
	}
	statusProducer, err := events.NewProducer(amqpConn, "kick-auth-status")
	if err != nil {
		fail("Failed to initialize AMQP producer for kick-auth-status", err)
	}
	notifier := &alertNotifier{producer: statusProducer, logger: logger}

	// Open the sqlite database where we persist refresh tokens and the webhook
	// poll key so that authorization survives restarts
	db, err := sql.Open("sqlite", config.DatabasePath)
	if err != nil {
		fail("Failed to open database", err)
	}
	defer db.Close()
	if err := sqlite.EnsureCredentialsTable(db); err != nil {
		fail("Failed to initialize database schema", err)
	}
	credentialStore := sqlite.NewCredentialStore(db)

	// Decide which signing keys we're prepared to trust on incoming webhooks
	var testPublicKey ed25519.PublicKey
	if config.AllowTestWebhooks {
		if config.TestEventPublicKey == "" {
			fail("Invalid config", fmt.Errorf("TEST_EVENT_PUBLIC_KEY is required when ALLOW_TEST_WEBHOOKS is set"))
		}
		testPublicKey, err = signature.ParseTestPublicKey(config.TestEventPublicKey)
		if err != nil {
			fail("Failed to parse test event public key", err)
		}
	}
	prodPublicKey, err := signature.ParseProdPublicKey(config.KickWebhookPublicKey)
	if err != nil {
		fail("Failed to parse Kick webhook public key", err)
	}
	trust := signature.NewTrustContext(config.AllowTestWebhooks, testPublicKey, prodPublicKey, logger)

	// Initialize the HTTP client used for all outbound calls to Kick
	client := transport.NewClient(logger)

	// Shut down cleanly on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize the token lifecycle manager and resume any authorization that was
	// persisted by a previous run; whenever tokens change, we notify downstream
	// services via the kick-auth-status exchange
	store := token.NewStore()
	reconnect := func(ctx context.Context) {
		if err := statusProducer.Send(ctx, map[string]string{"status": "connected"}); err != nil {
			logger.Error("Failed to publish auth status", "error", err)
		}
	}
	manager := userauth.NewManager(ctx, userauth.Config{
		AuthServerURL: config.KickAuthURL,
		ApiServerURL:  config.KickApiURL,
		ClientId:      config.KickClientId,
		ClientSecret:  config.KickClientSecret,
		ProxyURL:      config.AuthProxyURL,
		RedirectURI:   config.Origin + "/auth/callback",
	}, client, store, userauth.NewScheduler(), credentialStore, notifier, reconnect, logger)
	creds, err := credentialStore.Load(ctx)
	if err != nil {
		fail("Failed to load persisted credentials", err)
	}
	manager.Resume(creds)
	defer manager.Disconnect()

	// Start setting up our HTTP handlers, using gorilla/mux for routing
	r := mux.NewRouter()

	// Kick will call POST /webhook (once event subscriptions are registered) in
	// response to events that occur on the streamer's channel
	webhookServer := webhook.NewServer(trust, eventsProducer, logger)
	webhookServer.RegisterRoutes(r)

	// The streamer can GET /link/streamer or GET /link/bot to begin an OAuth code
	// grant flow for either account, with the authorization code sent back to
	// GET /auth/callback
	userauthServer := userauth.NewServer(manager, logger)
	userauthServer.RegisterRoutes(r)

	// GET /subscriptions reports the status of required event subscriptions; PATCH
	// creates any that are missing, and DELETE removes them all
	subscriptionServer := subscription.NewServer(subscription.NewClient(client, store.Streamer(), config.KickApiURL), logger)
	subscriptionServer.RegisterRoutes(r)

	// Handle incoming HTTP connections until our top-level context is canceled, at
	// which point shut down cleanly
	addr := fmt.Sprintf("%s:%d", config.BindAddr, config.ListenPort)
	server := &http.Server{Addr: addr, Handler: r}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()
	logger.Info("Listening", "addr", addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		fail("Server error", err)
	}
	logger.Info("Server stopped")
}
