package subscription

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"golang.org/x/exp/slog"

	"github.com/streamkit/kickhooks"
)

type Server struct {
	client                *Client
	requiredSubscriptions []kickhooks.RequiredEventSubscription
	logger                *slog.Logger
}

func NewServer(client *Client, logger *slog.Logger) *Server {
	return &Server{
		client:                client,
		requiredSubscriptions: kickhooks.EventSubscriptions,
		logger:                logger,
	}
}

func (s *Server) RegisterRoutes(r *mux.Router) {
	subscriptions := r.Path("/subscriptions").Subrouter()
	subscriptions.Methods("GET").HandlerFunc(s.handleGetSubscriptions)
	subscriptions.Methods("PATCH").HandlerFunc(s.handlePatchSubscriptions)
	subscriptions.Methods("DELETE").HandlerFunc(s.handleDeleteSubscriptions)
}

// handleGetSubscriptions (GET /subscriptions) reports the current status of all
// required and registered webhook event subscriptions
func (s *Server) handleGetSubscriptions(res http.ResponseWriter, req *http.Request) {
	status, err := s.fetchSubscriptionStatus(req)
	if err != nil {
		s.logger.Error("Failed to resolve event subscription status", "error", err)
		http.Error(res, err.Error(), httpStatusFor(err))
		return
	}
	if err := json.NewEncoder(res).Encode(status); err != nil {
		http.Error(res, err.Error(), http.StatusInternalServerError)
	}
}

// handlePatchSubscriptions (PATCH /subscriptions) registers all required event
// subscriptions that are not currently registered
func (s *Server) handlePatchSubscriptions(res http.ResponseWriter, req *http.Request) {
	status, err := s.fetchSubscriptionStatus(req)
	if err != nil {
		s.logger.Error("Failed to resolve event subscription status", "error", err)
		http.Error(res, err.Error(), httpStatusFor(err))
		return
	}

	missing := make([]kickhooks.RequiredEventSubscription, 0)
	for _, subscription := range status.Subscriptions {
		if subscription.Required && subscription.Status == statusMissing {
			missing = append(missing, kickhooks.RequiredEventSubscription{
				Name:    subscription.Name,
				Version: subscription.Version,
			})
		}
	}
	if len(missing) > 0 {
		if err := s.client.createSubscriptions(req.Context(), missing); err != nil {
			s.logger.Error("Failed to create event subscriptions", "error", err, "events", missing)
			http.Error(res, fmt.Sprintf("failed to create event subscriptions: %v", err), http.StatusInternalServerError)
			return
		}
		s.logger.Info("Created event subscriptions", "events", missing)
	}
	res.WriteHeader(http.StatusNoContent)
}

// handleDeleteSubscriptions (DELETE /subscriptions) removes ALL event
// subscriptions registered by our app
func (s *Server) handleDeleteSubscriptions(res http.ResponseWriter, req *http.Request) {
	status, err := s.fetchSubscriptionStatus(req)
	if err != nil {
		s.logger.Error("Failed to resolve event subscription status", "error", err)
		http.Error(res, err.Error(), httpStatusFor(err))
		return
	}

	for _, subscription := range status.Subscriptions {
		if subscription.subscriptionId != "" {
			if err := s.client.deleteSubscription(req.Context(), subscription.subscriptionId); err != nil {
				s.logger.Error("Failed to delete event subscription",
					"error", err,
					"subscriptionId", subscription.subscriptionId,
					"event", subscription.Name,
				)
				http.Error(res, fmt.Sprintf("failed to delete event subscription: %v", err), http.StatusInternalServerError)
				return
			}
			s.logger.Info("Deleted event subscription",
				"subscriptionId", subscription.subscriptionId,
				"event", subscription.Name,
			)
		}
	}
	res.WriteHeader(http.StatusNoContent)
}

func (s *Server) fetchSubscriptionStatus(req *http.Request) (*Status, error) {
	subscriptions, err := s.client.listSubscriptions(req.Context())
	if err != nil {
		return nil, fmt.Errorf("failed to list event subscriptions: %w", err)
	}
	return reconcileSubscriptionStatus(subscriptions, s.requiredSubscriptions), nil
}

// httpStatusFor maps an unauthorized streamer to 409: the request was fine, but
// the service isn't in a state where subscriptions can be managed yet
func httpStatusFor(err error) int {
	if errors.Is(err, ErrNotAuthorized) {
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}
