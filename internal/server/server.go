// internal/server/server.go
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ThinkInAIXYZ/go-mcp/protocol"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"mcp-calorie-log/internal/metrics"
	"mcp-calorie-log/internal/tracker"
)

const Version = "1.1.0"

var serverInfo = protocol.Implementation{
	Name:    "calorie-log",
	Version: Version,
}

type Config struct {
	Host string
	Port int
}

type CalorieLogServer struct {
	httpServer *http.Server
	router     chi.Router
	tracker    *tracker.Tracker
	metrics    *metrics.Metrics
	tools      map[string]toolHandler
	log        zerolog.Logger
}

func NewCalorieLogServer(cfg Config, tr *tracker.Tracker, m *metrics.Metrics, log zerolog.Logger) *CalorieLogServer {
	s := &CalorieLogServer{
		tracker: tr,
		metrics: m,
		log:     log.With().Str("component", "http").Logger(),
	}
	s.tools = s.registerTools()
	s.router = s.routes()

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler exposes the router, mainly for httptest.
func (s *CalorieLogServer) Handler() http.Handler {
	return s.router
}

func (s *CalorieLogServer) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(s.cors)

	r.Get("/", s.handleHealth)
	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	r.Post("/mcp", s.handleToolCall)

	r.Route("/api", func(api chi.Router) {
		api.Post("/log-meal", s.handleLogMeal)
		api.Get("/daily-total/{userId}", s.handleDailyTotal)
		api.Get("/meals/{userId}", s.handleMeals)

		api.Route("/users/{userId}", func(user chi.Router) {
			user.Post("/meals", s.handleLogStructuredMeal)
			user.Get("/meals", s.handleMeals)
			user.Get("/settings", s.handleGetSettings)
			user.Put("/settings", s.handleUpdateSettings)
			user.Post("/settings", s.handleUpdateSettings)
			user.Get("/progress", s.handleProgress)
		})
	})

	return r
}

func (s *CalorieLogServer) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *CalorieLogServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Calorie log is running",
		"server":  serverInfo,
		"endpoints": []string{
			"POST /mcp",
			"POST /api/log-meal",
			"GET /api/daily-total/{userId}",
			"GET /api/meals/{userId}",
			"POST /api/users/{userId}/meals",
			"GET|PUT /api/users/{userId}/settings",
			"GET /api/users/{userId}/progress",
		},
	})
}

func (s *CalorieLogServer) Start(ctx context.Context) error {
	s.log.Info().Str("addr", s.httpServer.Addr).Msg("starting calorie log server")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *CalorieLogServer) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *CalorieLogServer) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error().Err(err).Msg("failed to encode response")
	}
}

// writeError maps validation failures to 400 and everything else to 500.
func (s *CalorieLogServer) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, tracker.ErrInvalidInput) {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	s.log.Error().Err(err).Str("method", r.Method).Str("path", r.URL.Path).Msg("request failed")
	s.writeJSON(w, http.StatusInternalServerError, map[string]string{
		"error":   "Internal server error",
		"message": err.Error(),
	})
}

func (s *CalorieLogServer) badRequest(w http.ResponseWriter, format string, args ...interface{}) {
	s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf(format, args...)})
}
