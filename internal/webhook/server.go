package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/gorilla/mux"
	"golang.org/x/exp/slog"

	"github.com/streamkit/kickhooks"
	"github.com/streamkit/kickhooks/internal/signature"
)

type VerifyFunc func(payload *kickhooks.EventPayload, rawBody []byte, header http.Header) error

type Producer interface {
	SendRaw(ctx context.Context, body []byte) error
}

type Server struct {
	verify   VerifyFunc
	producer Producer
	logger   *slog.Logger
}

func NewServer(trust *signature.TrustContext, producer Producer, logger *slog.Logger) *Server {
	return &Server{
		verify:   trust.Verify,
		producer: producer,
		logger:   logger,
	}
}

func (s *Server) RegisterRoutes(r *mux.Router) {
	r.Path("/webhook").Methods("POST").HandlerFunc(s.handlePostWebhook)
}

func (s *Server) handlePostWebhook(res http.ResponseWriter, req *http.Request) {
	logger := s.logger.With("path", req.URL.Path)

	// Pre-emptively read the request body: the verifier needs the exact bytes that
	// arrived on the wire, not a re-serialization of the decoded payload
	rawBody, err := io.ReadAll(req.Body)
	if err != nil {
		logger.Error("Failed to read request body", "error", err)
		http.Error(res, err.Error(), http.StatusInternalServerError)
		return
	}
	defer req.Body.Close()

	// Decode the envelope so the verifier can classify the event and so we can log
	// what we're handling
	var payload kickhooks.EventPayload
	if err := json.Unmarshal(rawBody, &payload); err != nil {
		logger.Error("Failed to decode request body", "error", err)
		http.Error(res, err.Error(), http.StatusBadRequest)
		return
	}

	// Verify that this event is genuinely signed by one of our trust roots: abort
	// if phony
	if err := s.verify(&payload, rawBody, req.Header); err != nil {
		logger.Error("Failed to verify webhook signature", "error", err, "event", payload.Event)
		http.Error(res, err.Error(), http.StatusBadRequest)
		return
	}

	logger = logger.With(
		"event", payload.Event,
		"version", payload.Version,
		"isTestEvent", payload.IsTestEvent,
	)

	// Fan the event out to downstream consumers, preserving the raw payload bytes
	if err := s.producer.SendRaw(req.Context(), rawBody); err != nil {
		logger.Error("Failed to publish event", "error", err)
		http.Error(res, err.Error(), http.StatusInternalServerError)
		return
	}

	logger.Info("Handled event")
	res.WriteHeader(http.StatusOK)
}
