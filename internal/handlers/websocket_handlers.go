package handlers

import (
	"net/http"
	"strings"

	"gator-press/internal/utils"
	"gator-press/internal/websocket"

	"github.com/google/uuid"
	ws "github.com/gorilla/websocket"
)

// checkOrigin applies the CORS origin list to WebSocket upgrades. Requests
// without an Origin header come from non-browser clients and are allowed.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || s.CORS == nil {
		return true
	}
	return s.CORS.AllowsOrigin(origin)
}

// HandleWebSocket upgrades an authenticated request to the lifecycle event stream.
func (s *Server) HandleWebSocket() http.HandlerFunc {
	upgrader := ws.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}

	return func(w http.ResponseWriter, r *http.Request) {
		// Browsers cannot set headers on upgrades, so the token rides in the query.
		tokenString := r.URL.Query().Get("token")
		if tokenString == "" {
			tokenString = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		}
		if tokenString == "" {
			respondError(w, utils.NewUnauthorizedError("missing authentication token"))
			return
		}

		claims, err := s.Auth.ValidateToken(tokenString)
		if err != nil || claims.UserID == uuid.Nil {
			s.logger.Debug().Err(err).Msg("WebSocket connection refused")
			respondError(w, utils.NewAppError(utils.ErrInvalidToken, "invalid or expired token", err))
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			// Upgrade has already written the HTTP error.
			s.logger.Debug().Err(err).Str("user_id", claims.UserID.String()).Msg("WebSocket upgrade failed")
			return
		}

		websocket.NewClient(s.Hub, claims.UserID, conn).Serve()
		s.logger.Debug().Str("user_id", claims.UserID.String()).Msg("WebSocket client connected")
	}
}
