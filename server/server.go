package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jcqin2022/AIAssistant/core"
	"github.com/jcqin2022/AIAssistant/logging"
)

// Service is what the HTTP layer needs from the assistant.
type Service interface {
	// Ask answers with the single-agent path.
	Ask(ctx context.Context, question string) (string, error)
	// RunOrchestration runs the full pipeline and returns the session.
	RunOrchestration(ctx context.Context, question string) (*core.Session, error)
	// Session returns an archived session.
	Session(id string) (*core.Session, error)
}

// Options configures a Server.
type Options struct {
	Version string
	// Orchestrate routes GET /Ask through the orchestration pipeline.
	Orchestrate bool
	// Gatherer backs /metrics; the route is omitted when nil.
	Gatherer        prometheus.Gatherer
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
	Logger          logging.Logger
}

// Server is the HTTP front end.
type Server struct {
	svc  Service
	opts Options
	e    *echo.Echo
}

// AskRequest is the body of POST /api/ask.
type AskRequest struct {
	Question string `json:"question"`
	// Mode is "single" or "multi" (default).
	Mode string `json:"mode,omitempty"`
}

// AskResponse is returned by the ask routes.
type AskResponse struct {
	Question string        `json:"question"`
	Answer   string        `json:"answer"`
	Session  *core.Session `json:"session,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// New creates a server with all routes registered.
func New(svc Service, optFns ...func(o *Options)) *Server {
	opts := Options{
		Version:         "dev",
		Orchestrate:     true,
		RequestTimeout:  10 * time.Minute,
		ShutdownTimeout: 10 * time.Second,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	opts.Logger = logging.OrNoOp(opts.Logger)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	s := &Server{svc: svc, opts: opts, e: e}
	e.Use(s.logRequests)

	e.GET("/GetVersion", s.version)
	e.GET("/Ask", s.ask)
	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })

	api := e.Group("/api")
	api.POST("/ask", s.apiAsk)
	api.GET("/sessions/:id", s.session)

	if opts.Gatherer != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})))
	}
	return s
}

// Handler returns the router.
func (s *Server) Handler() http.Handler { return s.e }

// Run serves on addr until ctx is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	errCh := make(chan error, 1)
	go func() {
		s.opts.Logger.Info("server.listen", "addr", addr)
		errCh <- s.e.Start(addr)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
	defer cancel()
	return s.e.Shutdown(shutdownCtx)
}

func (s *Server) logRequests(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)
		s.opts.Logger.Debug("server.request",
			"method", c.Request().Method,
			"path", c.Path(),
			"status", c.Response().Status,
			"duration", time.Since(start),
		)
		return err
	}
}

func (s *Server) version(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"version": s.opts.Version})
}

func (s *Server) ask(c echo.Context) error {
	question := strings.TrimSpace(c.QueryParam("question"))
	if question == "" {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "question is required"})
	}
	resp, err := s.answer(c, question, s.opts.Orchestrate)
	if err != nil {
		return s.failure(c, err)
	}
	resp.Session = nil
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) apiAsk(c echo.Context) error {
	var req AskRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body"})
	}
	req.Question = strings.TrimSpace(req.Question)
	if req.Question == "" {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "question is required"})
	}

	var multi bool
	switch req.Mode {
	case "", "multi":
		multi = true
	case "single":
	default:
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "mode must be single or multi"})
	}

	resp, err := s.answer(c, req.Question, multi)
	if err != nil {
		return s.failure(c, err)
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) answer(c echo.Context, question string, multi bool) (*AskResponse, error) {
	ctx, cancel := context.WithTimeout(c.Request().Context(), s.opts.RequestTimeout)
	defer cancel()

	if !multi {
		answer, err := s.svc.Ask(ctx, question)
		if err != nil {
			return nil, err
		}
		return &AskResponse{Question: question, Answer: answer}, nil
	}

	session, err := s.svc.RunOrchestration(ctx, question)
	if err != nil {
		return nil, err
	}
	return &AskResponse{Question: question, Answer: session.Answer, Session: session}, nil
}

func (s *Server) failure(c echo.Context, err error) error {
	s.opts.Logger.Error("server.ask.failed", "path", c.Path(), "error", err)
	status := http.StatusInternalServerError
	if errors.Is(err, context.DeadlineExceeded) {
		status = http.StatusGatewayTimeout
	}
	return c.JSON(status, errorResponse{Error: err.Error()})
}

func (s *Server) session(c echo.Context) error {
	session, err := s.svc.Session(c.Param("id"))
	if errors.Is(err, core.ErrSessionNotFound) {
		return c.JSON(http.StatusNotFound, errorResponse{Error: "session not found"})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
	}
	return c.JSON(http.StatusOK, session)
}
