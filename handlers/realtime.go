package handlers

import (
	"log/slog"
	"net/http"
	"slices"

	"github.com/gorilla/websocket"

	"github.com/CrowderSoup/taskboard/services"
)

// RealtimeHandler upgrades signed-in clients to a websocket that receives
// their own change notifications.
type RealtimeHandler struct {
	authService *services.AuthService
	hub         *services.Hub
	upgrader    websocket.Upgrader
	log         *slog.Logger
}

func NewRealtimeHandler(authService *services.AuthService, hub *services.Hub, allowedOrigins []string, log *slog.Logger) *RealtimeHandler {
	if log == nil {
		log = slog.Default()
	}
	return &RealtimeHandler{
		authService: authService,
		hub:         hub,
		log:         log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
}

func originChecker(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || slices.Contains(allowed, "*") {
			return true
		}
		return slices.Contains(allowed, origin)
	}
}

// HandleWebSocket authenticates with the Authorization header or, for
// browsers, a token query parameter.
func (h *RealtimeHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	token, err := bearerToken(r)
	if err != nil {
		token = r.URL.Query().Get("token")
	}
	if token == "" {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return
	}
	email, err := h.authService.VerifyJWT(token)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "email", email, "error", err)
		return
	}

	client := services.NewClient(h.hub, conn, email)
	h.hub.Register(client)

	go client.WritePump()
	go client.ReadPump()
}
