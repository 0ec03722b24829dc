package web_server

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/microcosm-game/microcosm-server/errors"
	"github.com/microcosm-game/microcosm-server/logging"
	"github.com/microcosm-game/microcosm-server/session"
	"github.com/microcosm-game/microcosm-server/ws"
)

// PopulateRoutes populates the WebServer with the routes.
func (server *WebServer) PopulateRoutes(hub *ws.Hub, registry *session.Registry, wsCtx context.Context) {
	// Websocket stuff.
	server.router.HandleFunc("/ws", ws.HandleWS(hub, wsCtx))
	// API stuff.
	apiRouter := server.router.PathPrefix("/api/v1").Subrouter()
	// Enable logging.
	apiRouter.Use(loggingMiddleware)
	// Disable caching.
	apiRouter.Use(noCacheMiddleware)
	apiRouter.HandleFunc("/lobbies", handleLobbies(registry)).Methods(http.MethodGet)
	apiRouter.HandleFunc("/status", handleStatus(registry)).Methods(http.MethodGet)
}

// handleLobbies lists the discoverable matches. The same data is available
// in-protocol via lobby queries; this endpoint serves launchers and server
// browsers that do not speak the game protocol.
func handleLobbies(registry *session.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, registry.Lobbies())
	}
}

// statusReport is the response of the status endpoint.
type statusReport struct {
	LiveMatches int `json:"live_matches"`
}

// handleStatus reports basic liveness information.
func handleStatus(registry *session.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, statusReport{LiveMatches: registry.MatchCount()})
	}
}

func respondJSON(w http.ResponseWriter, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		errors.Log(logging.WebServerLogger, errors.Wrap(err, "encode response", nil))
	}
}
