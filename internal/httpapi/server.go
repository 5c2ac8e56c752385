package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/agentd/internal/config"
	"github.com/fyrsmithlabs/agentd/internal/memory"
	"github.com/fyrsmithlabs/agentd/internal/orchestrator"
	"github.com/fyrsmithlabs/agentd/internal/task"
)

// recallTopKDefault bounds memory recall when top_k is not given.
const recallTopKDefault = 5

// Server exposes the orchestrator and memory manager over HTTP.
type Server struct {
	echo         *echo.Echo
	orchestrator *orchestrator.Orchestrator
	memory       *memory.Manager
	logger       *zap.Logger
	config       config.ServerConfig
}

// NewServer creates the API server and registers its routes.
func NewServer(orch *orchestrator.Orchestrator, mem *memory.Manager, cfg config.ServerConfig, logger *zap.Logger) (*Server, error) {
	if orch == nil {
		return nil, fmt.Errorf("orchestrator cannot be nil")
	}
	if mem == nil {
		return nil, fmt.Errorf("memory manager cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Middleware
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			duration := time.Since(start)

			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", duration),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)

			return err
		}
	})

	s := &Server{
		echo:         e,
		orchestrator: orch,
		memory:       mem,
		logger:       logger,
		config:       cfg,
	}

	s.registerRoutes()

	return s, nil
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1")
	v1.POST("/tasks", s.handleCreateTask)
	v1.GET("/tasks/:id", s.handleGetTask)
	v1.POST("/tasks/:id/cancel", s.handleCancelTask)
	v1.GET("/status", s.handleStatus)
	v1.POST("/memory", s.handleStoreMemory)
	v1.GET("/memory/recall", s.handleRecallMemory)
}

// TaskCreateRequest is the request body for POST /api/v1/tasks.
type TaskCreateRequest struct {
	Description string         `json:"description"`
	Priority    string         `json:"priority"`
	MaxRetries  *int           `json:"max_retries,omitempty"`
	Context     map[string]any `json:"context,omitempty"`
}

// TaskResponse is the task view returned by the task endpoints.
type TaskResponse struct {
	ID          uuid.UUID     `json:"id"`
	Description string        `json:"description"`
	Status      task.Status   `json:"status"`
	Priority    task.Priority `json:"priority"`
	Result      string        `json:"result,omitempty"`
	Error       string        `json:"error,omitempty"`
	RetryCount  int           `json:"retry_count"`
	CreatedAt   time.Time     `json:"created_at"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
}

// MemoryStoreRequest is the request body for POST /api/v1/memory.
type MemoryStoreRequest struct {
	Content    string         `json:"content"`
	Tier       string         `json:"tier"`
	Importance float64        `json:"importance"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// MemoryEntryResponse is one recalled memory entry; content is clipped
// to keep responses bounded.
type MemoryEntryResponse struct {
	ID         string    `json:"id"`
	Content    string    `json:"content"`
	Importance float64   `json:"importance"`
	CreatedAt  time.Time `json:"created_at"`
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

func taskResponse(t *task.Task) TaskResponse {
	return TaskResponse{
		ID:          t.ID,
		Description: t.Description,
		Status:      t.Status(),
		Priority:    t.Priority,
		Result:      t.Result,
		Error:       t.Error,
		RetryCount:  t.RetryCount,
		CreatedAt:   t.CreatedAt,
		CompletedAt: t.CompletedAt,
	}
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "healthy", Timestamp: time.Now().UTC()})
}

// handleCreateTask accepts a task and executes it in the background.
// The response carries the task id for polling.
func (s *Server) handleCreateTask(c echo.Context) error {
	var req TaskCreateRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid task request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Description == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "description field is required")
	}

	t := task.New(req.Description)
	if req.Priority != "" {
		t.Priority = task.ParsePriority(req.Priority)
	}
	if req.MaxRetries != nil && *req.MaxRetries >= 0 {
		t.MaxRetries = *req.MaxRetries
	}
	for key, value := range req.Context {
		t.SetContext(key, value)
	}

	// The run outlives the request; it is tracked through the
	// orchestrator registry, not the request context.
	go func() {
		if _, err := s.orchestrator.ExecuteTask(context.Background(), t); err != nil {
			s.logger.Warn("background task failed",
				zap.String("task_id", t.ID.String()),
				zap.Error(err))
		}
	}()

	return c.JSON(http.StatusAccepted, taskResponse(t))
}

func (s *Server) handleGetTask(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid task id")
	}
	t, ok := s.orchestrator.Get(id)
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "task not found")
	}
	return c.JSON(http.StatusOK, taskResponse(t))
}

func (s *Server) handleCancelTask(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid task id")
	}
	t, ok := s.orchestrator.Get(id)
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "task not found")
	}
	if !t.Cancel() {
		return echo.NewHTTPError(http.StatusConflict, "task already finished")
	}
	return c.JSON(http.StatusOK, map[string]string{
		"message": "task cancelled",
		"task_id": id.String(),
	})
}

func (s *Server) handleStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, s.orchestrator.SystemStatus())
}

func (s *Server) handleStoreMemory(c echo.Context) error {
	var req MemoryStoreRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid memory request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Content == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "content field is required")
	}
	importance := req.Importance
	if importance == 0 {
		importance = 0.5
	}

	id, err := s.memory.Remember(c.Request().Context(), req.Content, memory.Tier(req.Tier), req.Metadata, importance)
	if err != nil {
		s.logger.Error("memory store failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to store memory")
	}
	if id == "" {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, "importance below tier admission floor")
	}
	return c.JSON(http.StatusCreated, map[string]string{"memory_id": id})
}

func (s *Server) handleRecallMemory(c echo.Context) error {
	query := c.QueryParam("query")
	if query == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "query parameter is required")
	}

	var tiers []memory.Tier
	for _, name := range c.QueryParams()["tier"] {
		tiers = append(tiers, memory.Tier(name))
	}

	topK := recallTopKDefault
	if raw := c.QueryParam("top_k"); raw != "" {
		if _, err := fmt.Sscanf(raw, "%d", &topK); err != nil || topK <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid top_k")
		}
	}

	recalled, err := s.memory.Recall(c.Request().Context(), query, tiers, topK)
	if err != nil {
		s.logger.Error("memory recall failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to recall memories")
	}

	response := make(map[string][]MemoryEntryResponse, len(recalled))
	for tier, entries := range recalled {
		out := make([]MemoryEntryResponse, 0, len(entries))
		for _, entry := range entries {
			out = append(out, MemoryEntryResponse{
				ID:         entry.ID,
				Content:    task.Truncate(entry.Content, 200),
				Importance: entry.Importance,
				CreatedAt:  entry.CreatedAt,
			})
		}
		response[string(tier)] = out
	}
	return c.JSON(http.StatusOK, response)
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}
