// Package api provides the internal ops HTTP server: health probes, queue
// inspection and manual job triggers for operators. The product-facing REST
// API lives elsewhere.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/library-sync/internal/config"
	"github.com/library-sync/internal/storage"
	"github.com/library-sync/internal/types"
	"github.com/library-sync/internal/worker"
)

// Server is the ops HTTP server
type Server struct {
	router        *mux.Router
	httpServer    *http.Server
	postgres      *storage.PostgresDB
	redis         *storage.RedisCache
	clickhouse    *storage.ClickHouseDB
	imports       *storage.ImportRepository
	importLogs    *storage.ImportLogRepository
	games         *storage.GameRepository
	similar       *storage.SimilarGameRepository
	notifications *storage.NotificationRepository
	enqueuer      *worker.Enqueuer
	counters      *worker.Counters
}

// ServerConfig holds ops server dependencies
type ServerConfig struct {
	Config        *config.ServerConfig
	Postgres      *storage.PostgresDB
	Redis         *storage.RedisCache
	ClickHouse    *storage.ClickHouseDB
	Imports       *storage.ImportRepository
	ImportLogs    *storage.ImportLogRepository
	Games         *storage.GameRepository
	Similar       *storage.SimilarGameRepository
	Notifications *storage.NotificationRepository
	Enqueuer      *worker.Enqueuer
	Counters      *worker.Counters
}

// NewServer creates a new ops server
func NewServer(cfg ServerConfig) *Server {
	s := &Server{
		router:        mux.NewRouter(),
		postgres:      cfg.Postgres,
		redis:         cfg.Redis,
		clickhouse:    cfg.ClickHouse,
		imports:       cfg.Imports,
		importLogs:    cfg.ImportLogs,
		games:         cfg.Games,
		similar:       cfg.Similar,
		notifications: cfg.Notifications,
		enqueuer:      cfg.Enqueuer,
		counters:      cfg.Counters,
	}

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Config.Host, cfg.Config.Port),
		Handler:      s.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")

	ops := s.router.PathPrefix("/ops").Subrouter()
	ops.HandleFunc("/queue", s.handleQueueStats).Methods("GET")
	ops.HandleFunc("/queue/{jobId}/position", s.handleQueuePosition).Methods("GET")
	ops.HandleFunc("/imports", s.handleEnqueue).Methods("POST")
	ops.HandleFunc("/counters", s.handleCounters).Methods("GET")
	ops.HandleFunc("/durations", s.handleDurations).Methods("GET")
	ops.HandleFunc("/similar", s.handleSimilarPending).Methods("GET")
	ops.HandleFunc("/games/{gameId}/synonyms", s.handleCreateSynonym).Methods("POST")
	ops.HandleFunc("/users/{userId}/notifications", s.handleUserNotifications).Methods("GET")
}

// handleHealth reports dependency reachability
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	checks := map[string]string{}
	healthy := true

	if err := s.postgres.Ping(ctx); err != nil {
		checks["postgres"] = err.Error()
		healthy = false
	} else {
		checks["postgres"] = "ok"
	}
	if s.redis != nil {
		if err := s.redis.Ping(ctx); err != nil {
			checks["redis"] = err.Error()
			healthy = false
		} else {
			checks["redis"] = "ok"
		}
	}
	if s.clickhouse != nil {
		if err := s.clickhouse.Ping(ctx); err != nil {
			checks["clickhouse"] = err.Error()
			healthy = false
		} else {
			checks["clickhouse"] = "ok"
		}
	}

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}
	respondJSON(w, status, map[string]interface{}{
		"status": map[bool]string{true: "healthy", false: "degraded"}[healthy],
		"checks": checks,
	})
}

func (s *Server) handleQueueStats(w http.ResponseWriter, r *http.Request) {
	pending, err := s.imports.CountPending(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}

	abandoned, err := s.imports.Abandoned(r.Context(), time.Hour)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"pending":   pending,
		"abandoned": len(abandoned),
	})
}

func (s *Server) handleQueuePosition(w http.ResponseWriter, r *http.Request) {
	jobID, err := strconv.ParseInt(mux.Vars(r)["jobId"], 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, fmt.Errorf("invalid job id"))
		return
	}

	position, approx, err := s.enqueuer.EstimateWait(r.Context(), jobID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"position":       position,
		"approx_seconds": approx,
	})
}

func (s *Server) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID int64 `json:"user_id"`
		IsSync bool  `json:"is_sync"`
		IsFast bool  `json:"is_fast"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	if req.UserID == 0 {
		respondError(w, http.StatusBadRequest, fmt.Errorf("user_id is required"))
		return
	}

	job, err := s.enqueuer.Enqueue(r.Context(), req.UserID, worker.EnqueueOptions{
		IsSync:   req.IsSync,
		IsFast:   req.IsFast,
		IsManual: true,
	})
	if err != nil {
		if errors.Is(err, worker.ErrThrottled) {
			respondError(w, http.StatusTooManyRequests, err)
			return
		}
		respondError(w, http.StatusInternalServerError, err)
		return
	}

	respondJSON(w, http.StatusAccepted, map[string]interface{}{
		"job_id":       job.ID,
		"scheduled_at": job.ScheduledAt,
	})
}

func (s *Server) handleCounters(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.counters.Snapshot())
}

func (s *Server) handleDurations(w http.ResponseWriter, r *http.Request) {
	if s.importLogs == nil {
		respondJSON(w, http.StatusOK, map[string]interface{}{})
		return
	}

	averages, err := s.importLogs.AvgDurations(r.Context(), 24*time.Hour)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}

	out := make(map[string]float64, len(averages))
	for network, avg := range averages {
		out[string(network)] = avg.Seconds()
	}
	respondJSON(w, http.StatusOK, out)
}

// handleSimilarPending lists similar-game pairs awaiting a moderation
// decision. The admin UI polls this to feed the merge queue.
func (s *Server) handleSimilarPending(w http.ResponseWriter, r *http.Request) {
	limit := queryLimit(r, 50)

	pairs, err := s.similar.ListPending(r.Context(), limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}

	out := make([]map[string]interface{}, 0, len(pairs))
	for _, pair := range pairs {
		out = append(out, map[string]interface{}{
			"id":          pair.ID,
			"first_game":  pair.FirstGameID,
			"second_game": pair.SecondGameID,
			"created_at":  pair.CreatedAt,
		})
	}
	respondJSON(w, http.StatusOK, out)
}

// handleCreateSynonym records an alternate name for a game so imports can
// resolve titles the normalizer misses
func (s *Server) handleCreateSynonym(w http.ResponseWriter, r *http.Request) {
	gameID, err := strconv.ParseInt(mux.Vars(r)["gameId"], 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, fmt.Errorf("invalid game id"))
		return
	}

	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	if req.Name == "" {
		respondError(w, http.StatusBadRequest, fmt.Errorf("name is required"))
		return
	}

	if err := s.games.CreateSynonym(r.Context(), gameID, req.Name); err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]interface{}{
		"game_id": gameID,
		"name":    req.Name,
	})
}

// handleUserNotifications returns a user's recent notifications, newest first
func (s *Server) handleUserNotifications(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(mux.Vars(r)["userId"], 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, fmt.Errorf("invalid user id"))
		return
	}

	notifications, err := s.notifications.ListForUser(r.Context(), userID, queryLimit(r, 20))
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}

	out := make([]map[string]interface{}, 0, len(notifications))
	for _, n := range notifications {
		out = append(out, map[string]interface{}{
			"id":         n.ID,
			"action":     n.Action,
			"data":       n.Data,
			"created_at": n.CreatedAt,
		})
	}
	respondJSON(w, http.StatusOK, out)
}

// queryLimit parses the limit query parameter, falling back to a default
func queryLimit(r *http.Request, fallback int) int {
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if limit, err := strconv.Atoi(raw); err == nil && limit > 0 {
			return limit
		}
	}
	return fallback
}

// Start starts the HTTP server
func (s *Server) Start() error {
	log.Printf("Starting ops server on %s", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	log.Println("Shutting down ops server...")
	return s.httpServer.Shutdown(ctx)
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("[API] failed to encode response: %v", err)
	}
}

func respondError(w http.ResponseWriter, status int, err error) {
	respondJSON(w, status, &types.ServiceError{
		Code:    http.StatusText(status),
		Message: err.Error(),
	})
}
