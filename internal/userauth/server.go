package userauth

import (
	"errors"
	"fmt"
	"html"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"golang.org/x/exp/slog"

	"github.com/streamkit/kickhooks"
)

// Server exposes the browser-facing surface of the authorization flow: the /link
// endpoints that start a flow by redirecting to Kick, and the /auth/callback
// endpoint that Kick redirects back to with an authorization code.
type Server struct {
	manager *Manager
	logger  *slog.Logger
}

func NewServer(manager *Manager, logger *slog.Logger) *Server {
	return &Server{
		manager: manager,
		logger:  logger,
	}
}

func (s *Server) RegisterRoutes(r *mux.Router) {
	r.PathPrefix("/link/").Methods("GET").HandlerFunc(s.handleGetLink)
	r.Path("/auth/callback").Methods("GET").HandlerFunc(s.handleGetCallback)
}

// handleGetLink (GET /link/streamer, GET /link/bot) starts an authorization flow
// for the identity named by the path suffix, redirecting the browser to the Kick
// (or proxy) authorize URL
func (s *Server) handleGetLink(res http.ResponseWriter, req *http.Request) {
	var identity kickhooks.Identity
	switch strings.TrimPrefix(req.URL.Path, "/link/") {
	case "streamer":
		identity = kickhooks.IdentityStreamer
	case "bot":
		identity = kickhooks.IdentityBot
	default:
		http.Error(res, "link target must be 'streamer' or 'bot'", http.StatusBadRequest)
		return
	}

	u, err := s.manager.BuildAuthorizationURL(identity)
	if err != nil {
		s.logger.Error("Failed to build authorization URL", "identity", identity.String(), "error", err)
		http.Error(res, fmt.Sprintf("failed to build authorization URL: %v", err), http.StatusInternalServerError)
		return
	}

	s.logger.Info("Redirecting to authorization URL", "identity", identity.String())
	res.Header().Set("Location", u)
	res.WriteHeader(http.StatusFound)
}

// handleGetCallback (GET /auth/callback) receives the authorization redirect from
// Kick and completes the flow, responding with a human-readable HTML status page
func (s *Server) handleGetCallback(res http.ResponseWriter, req *http.Request) {
	code := req.URL.Query().Get("code")
	state := req.URL.Query().Get("state")

	outcome, err := s.manager.HandleAuthCallback(req.Context(), code, state)
	if err != nil {
		var rejected *RejectedError
		if errors.As(err, &rejected) {
			s.logger.Error("Rejected authorization callback", "error", err)
			writeStatusPage(res, http.StatusBadRequest, "Authorization rejected", rejected.Message)
			return
		}
		s.logger.Error("Failed to complete authorization", "error", err)
		writeStatusPage(res, http.StatusInternalServerError, "Authorization failed", err.Error())
		return
	}

	s.logger.Info("Completed authorization",
		"identity", outcome.Identity.String(),
		"missingScopes", outcome.MissingScopes,
	)
	if len(outcome.MissingScopes) > 0 {
		writeStatusPage(res, http.StatusOK, "Partially authorized",
			fmt.Sprintf("The %s account was authorized, but some required permissions were not granted: %s. Some features will not work until the account is re-authorized with all permissions.",
				outcome.Identity, strings.Join(outcome.MissingScopes, ", ")))
		return
	}
	writeStatusPage(res, http.StatusOK, "Success!",
		fmt.Sprintf("The %s account has been authorized. You may close this window.", outcome.Identity))
}

func writeStatusPage(res http.ResponseWriter, status int, title, message string) {
	res.Header().Set("Content-Type", "text/html; charset=utf-8")
	res.WriteHeader(status)
	fmt.Fprintf(res,
		"<!DOCTYPE html><html><head><title>%s</title></head><body><h1>%s</h1><p>%s</p></body></html>",
		html.EscapeString(title), html.EscapeString(title), html.EscapeString(message))
}
