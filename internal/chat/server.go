package chat

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/fleetmetry/fleetmetry/internal/ai"
	"github.com/fleetmetry/fleetmetry/internal/auth"
	"github.com/fleetmetry/fleetmetry/internal/logging"
	"github.com/fleetmetry/fleetmetry/internal/observability"
	"github.com/fleetmetry/fleetmetry/internal/orchestrator"
	"github.com/fleetmetry/fleetmetry/pkg/models"
)

// ServerConfig wires the chat HTTP service.
type ServerConfig struct {
	Port          int
	MaxIterations int
	TurnTimeout   time.Duration
}

// Server is the user-facing chat service. It authorizes callers against the
// session database, keeps per-session conversation state, and drives the
// orchestrator for every incoming message.
type Server struct {
	echo     *echo.Echo
	store    *Store
	provider ai.Provider
	runner   orchestrator.ToolRunner
	catalog  []models.ToolSpec
	sink     orchestrator.EventSink
	cfg      ServerConfig
	logger   zerolog.Logger
}

func NewServer(cfg ServerConfig, store *Store, authorizer *auth.Authorizer, provider ai.Provider, runner orchestrator.ToolRunner, catalog []models.ToolSpec) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "X-Workspace-Id", "Content-Type"},
	}))

	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = orchestrator.DefaultMaxIterations
	}
	if cfg.TurnTimeout <= 0 {
		cfg.TurnTimeout = 5 * time.Minute
	}

	s := &Server{
		echo:     e,
		store:    store,
		provider: provider,
		runner:   runner,
		catalog:  catalog,
		sink:     orchestrator.NewLogSink(),
		cfg:      cfg,
		logger:   logging.Component("chat"),
	}

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/metrics", echo.WrapHandler(observability.Handler()))

	api := e.Group("/sessions", authorizer.Middleware(false))
	api.POST("", s.createSession)
	api.POST("/:id/messages", s.postMessage)
	api.POST("/:id/clear", s.clearSession)
	api.GET("/:id/summary", s.sessionSummary)
	api.DELETE("/:id", s.deleteSession)

	return s
}

func (s *Server) createSession(c echo.Context) error {
	workspace := auth.WorkspaceFrom(c)
	session := s.store.Create(workspace)
	s.logger.Info().Str("session_id", session.ID).Str("workspace", workspace).Msg("session created")
	return c.JSON(http.StatusOK, map[string]string{"sessionId": session.ID})
}

type messageRequest struct {
	UserMessage string `json:"userMessage"`
}

type messageResponse struct {
	Response   string `json:"response"`
	Iterations int    `json:"iterations"`
}

func (s *Server) postMessage(c echo.Context) error {
	session, err := s.session(c)
	if session == nil {
		return err
	}

	var req messageRequest
	if err := c.Bind(&req); err != nil || req.UserMessage == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Message is required"})
	}

	if !session.Allow() {
		return c.JSON(http.StatusTooManyRequests, map[string]string{"error": "Too many messages, slow down"})
	}
	if !session.Acquire() {
		return c.JSON(http.StatusConflict, map[string]string{"error": "Session is busy processing another message"})
	}
	defer session.Release()

	ctx, cancel := context.WithTimeout(c.Request().Context(), s.cfg.TurnTimeout)
	defer cancel()

	runner := &scopedRunner{base: s.runner, workspace: session.Workspace}
	orc := orchestrator.New(s.provider, runner, s.catalog,
		orchestrator.WithMaxIterations(s.cfg.MaxIterations),
		orchestrator.WithEventSink(s.sink))

	result := orc.RunTurn(ctx, session.Conversation(), req.UserMessage)
	return c.JSON(http.StatusOK, messageResponse{Response: result.Text, Iterations: result.Iterations})
}

func (s *Server) clearSession(c echo.Context) error {
	session, err := s.session(c)
	if session == nil {
		return err
	}
	if !session.Acquire() {
		return c.JSON(http.StatusConflict, map[string]string{"error": "Session is busy processing another message"})
	}
	defer session.Release()

	cfg := s.store.Config()
	session.Clear(cfg.HistoryLimit, cfg.HistoryKeep)
	return c.JSON(http.StatusOK, map[string]string{"message": "Chat history cleared"})
}

func (s *Server) sessionSummary(c echo.Context) error {
	session, err := s.session(c)
	if session == nil {
		return err
	}
	if !session.Acquire() {
		return c.JSON(http.StatusConflict, map[string]string{"error": "Session is busy processing another message"})
	}
	defer session.Release()

	return c.JSON(http.StatusOK, session.Summary())
}

func (s *Server) deleteSession(c echo.Context) error {
	id := c.Param("id")
	if !s.store.Delete(id) {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Session not found"})
	}
	return c.NoContent(http.StatusNoContent)
}

// session resolves the path session and checks it belongs to the caller's
// workspace. On failure the error response is already written and the
// returned session is nil.
func (s *Server) session(c echo.Context) (*Session, error) {
	session, ok := s.store.Get(c.Param("id"))
	if !ok {
		return nil, c.JSON(http.StatusNotFound, map[string]string{"error": "Session not found"})
	}
	if session.Workspace != auth.WorkspaceFrom(c) {
		return nil, c.JSON(http.StatusForbidden, map[string]string{"error": "Session belongs to another workspace"})
	}
	return session, nil
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start runs the server until SIGINT/SIGTERM, then shuts down gracefully.
func (s *Server) Start() error {
	errCh := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf(":%d", s.cfg.Port)
		s.logger.Info().Str("addr", addr).Msg("chat server listening")
		if err := s.echo.Start(addr); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case <-quit:
		s.logger.Info().Msg("shutting down chat server")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.echo.Shutdown(ctx)
	}
}

// scopedRunner stamps the session workspace onto every tool call that does
// not already carry one, without touching the caller's map.
type scopedRunner struct {
	base      orchestrator.ToolRunner
	workspace string
}

func (r *scopedRunner) Call(ctx context.Context, callID, name string, arguments map[string]any) models.ToolResult {
	if r.workspace != "" {
		if _, ok := arguments["workspace_id"]; !ok {
			scoped := make(map[string]any, len(arguments)+1)
			for k, v := range arguments {
				scoped[k] = v
			}
			scoped["workspace_id"] = r.workspace
			arguments = scoped
		}
	}
	return r.base.Call(ctx, callID, name, arguments)
}
