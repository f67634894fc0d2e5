package toolserver

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/fleetmetry/fleetmetry/internal/faults"
	"github.com/fleetmetry/fleetmetry/internal/logging"
	"github.com/fleetmetry/fleetmetry/internal/observability"
	"github.com/fleetmetry/fleetmetry/internal/tools"
	"github.com/fleetmetry/fleetmetry/pkg/models"
)

// Server exposes the tool catalogue and dispatch over HTTP. The wire shapes
// of /tools and /call-tool are fixed; the chat service's prompting depends
// on them.
type Server struct {
	echo       *echo.Echo
	dispatcher *tools.Dispatcher
	accessKey  string
	port       int
	logger     zerolog.Logger
}

type callToolRequest struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

func NewServer(dispatcher *tools.Dispatcher, port int, accessKey string) *Server {
	e := echo.New()
	e.HideBanner = true

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	server := &Server{
		echo:       e,
		dispatcher: dispatcher,
		accessKey:  accessKey,
		port:       port,
		logger:     logging.Component("toolserver"),
	}
	server.setupRoutes()
	return server
}

func (s *Server) setupRoutes() {
	s.echo.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "healthy"})
	})
	s.echo.GET("/metrics", echo.WrapHandler(observability.Handler()))

	protected := s.echo.Group("", s.requireAccessKey)
	protected.GET("/tools", s.listTools)
	protected.POST("/call-tool", s.callTool)
}

// requireAccessKey checks the bearer access key on the tool endpoints.
// An empty configured key disables the check for local development.
func (s *Server) requireAccessKey(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if s.accessKey == "" {
			return next(c)
		}
		header := c.Request().Header.Get(echo.HeaderAuthorization)
		provided := strings.TrimPrefix(header, "Bearer ")
		if provided == "" || provided != s.accessKey {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized: invalid access key"})
		}
		return next(c)
	}
}

func (s *Server) listTools(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string][]models.ToolSpec{
		"tools": s.dispatcher.ListTools(),
	})
}

func (s *Server) callTool(c echo.Context) error {
	var req callToolRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if req.Arguments == nil {
		req.Arguments = map[string]any{}
	}

	start := time.Now()
	resp, err := s.dispatcher.Dispatch(c.Request().Context(), req.Name, req.Arguments)
	if err != nil {
		status := http.StatusInternalServerError
		if faults.Is(err, faults.UnknownTool) {
			status = http.StatusBadRequest
		}
		observability.ObserveToolCall(req.Name, status, time.Since(start))
		return c.JSON(status, map[string]string{"error": err.Error()})
	}

	observability.ObserveToolCall(req.Name, resp.Status, time.Since(start))
	s.logger.Debug().Str("tool", req.Name).Int("status", resp.Status).
		Dur("took", time.Since(start)).Msg("tool dispatched")
	return c.JSON(resp.Status, resp)
}

// Handler exposes the routed handler for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start runs the server until an interrupt, then shuts down gracefully.
func (s *Server) Start() error {
	go func() {
		if err := s.echo.Start(fmt.Sprintf(":%d", s.port)); err != nil && err != http.ErrServerClosed {
			s.logger.Fatal().Err(err).Msg("tool server stopped")
		}
	}()
	s.logger.Info().Int("port", s.port).Msg("tool server running")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.echo.Shutdown(ctx)
}
