package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/cors"

	"github.com/CrowderSoup/taskboard/database"
	"github.com/CrowderSoup/taskboard/handlers"
	"github.com/CrowderSoup/taskboard/services"
)

func main() {
	if err := services.LoadEnv(".env"); err != nil {
		slog.Error("failed to load .env", "error", err)
		os.Exit(1)
	}
	cfg := services.LoadConfig()
	logger := cfg.NewLogger(os.Stderr)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg services.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.InitDB(cfg.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()

	authService := services.NewAuthService(cfg, logger)
	dataService := database.NewDataService(db)

	hub := services.NewHub(logger)
	go hub.Run(ctx)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      newRouter(cfg, authService, dataService, hub, logger),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("server starting", "port", cfg.Port)
		errc <- server.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	logger.Info("server shutting down")
	return server.Shutdown(shutdownCtx)
}

func newRouter(cfg services.Config, authService *services.AuthService, dataService *database.DataService, hub *services.Hub, logger *slog.Logger) http.Handler {
	authHandler := handlers.NewAuthHandler(authService, dataService, logger)
	rowsHandler := handlers.NewRowsHandler(dataService, hub, logger)
	realtimeHandler := handlers.NewRealtimeHandler(authService, hub, cfg.AllowedOrigins, logger)
	authMiddleware := handlers.NewAuthMiddleware(authService)

	r := mux.NewRouter()

	// Auth routes
	r.HandleFunc("/api/auth/login", authHandler.Login).Methods(http.MethodPost)
	r.HandleFunc("/api/auth/verify", authHandler.VerifyToken).Methods(http.MethodGet)
	r.HandleFunc("/api/auth/magic-link", authHandler.HandleMagicLink).Methods(http.MethodGet)

	// WebSocket route for change notifications
	r.HandleFunc("/api/ws", realtimeHandler.HandleWebSocket)

	// Row gateway (protected)
	api := r.PathPrefix("/api").Subrouter()
	api.Use(authMiddleware.Auth)
	rowsHandler.Register(api)

	// Static file server for frontend
	r.PathPrefix("/").Handler(http.FileServer(http.Dir("./public")))

	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})
	return c.Handler(r)
}
