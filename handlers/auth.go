package handlers

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/mail"
	"net/url"

	"github.com/CrowderSoup/taskboard/database"
	"github.com/CrowderSoup/taskboard/services"
)

// AuthHandler handles authentication-related endpoints
type AuthHandler struct {
	authService *services.AuthService
	dataService *database.DataService
	log         *slog.Logger
}

func NewAuthHandler(authService *services.AuthService, dataService *database.DataService, log *slog.Logger) *AuthHandler {
	if log == nil {
		log = slog.Default()
	}
	return &AuthHandler{
		authService: authService,
		dataService: dataService,
		log:         log,
	}
}

// Login sends a magic link to the posted email address.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request format", http.StatusBadRequest)
		return
	}
	addr, err := mail.ParseAddress(req.Email)
	if err != nil {
		http.Error(w, "Invalid email address", http.StatusBadRequest)
		return
	}

	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	baseURL := fmt.Sprintf("%s://%s", scheme, r.Host)

	magicLink, err := h.authService.GenerateMagicLink(addr.Address, baseURL)
	if err != nil {
		h.log.Error("failed to generate magic link", "error", err)
		http.Error(w, "Failed to generate login link", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "success",
		"message":   "Magic link has been sent",
		"magicLink": magicLink, // For development only
	})
}

// HandleMagicLink exchanges a magic link token for a JWT and redirects to
// the frontend with it.
func (h *AuthHandler) HandleMagicLink(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		http.Error(w, "Missing token", http.StatusBadRequest)
		return
	}

	email, err := h.authService.VerifyMagicLinkToken(token)
	if err != nil {
		http.Error(w, "Invalid or expired token", http.StatusBadRequest)
		return
	}
	if err := h.dataService.EnsureUser(r.Context(), email); err != nil {
		h.log.Error("failed to create user", "email", email, "error", err)
		http.Error(w, "Authentication error", http.StatusInternalServerError)
		return
	}

	jwtToken, err := h.authService.CreateJWT(email)
	if err != nil {
		h.log.Error("failed to create JWT", "email", email, "error", err)
		http.Error(w, "Authentication error", http.StatusInternalServerError)
		return
	}

	q := url.Values{"token": {jwtToken}, "email": {email}}
	http.Redirect(w, r, "/?"+q.Encode(), http.StatusFound)
}

// VerifyToken reports whether the bearer token is valid.
func (h *AuthHandler) VerifyToken(w http.ResponseWriter, r *http.Request) {
	token, err := bearerToken(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}
	email, err := h.authService.VerifyJWT(token)
	if err != nil {
		http.Error(w, "Invalid token", http.StatusUnauthorized)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"email":  email,
		"status": "valid",
	})
}
