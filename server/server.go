// Package server exposes the gateway over HTTP: synchronous chat, SSE
// streaming chat, fill-in-the-middle completion and session inspection.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/axelhq/axel/provider"
	"github.com/axelhq/axel/router"
)

const (
	maxBodySize         = "1M"
	shutdownGracePeriod = 10 * time.Second
	readTimeout         = 30 * time.Second
	idleTimeout         = 120 * time.Second
)

// Server wires the router into an echo application.
type Server struct {
	router  *router.Router
	app     *echo.Echo
	log     zerolog.Logger
	address string
}

// New constructs an HTTP server wired with routing and middleware.
func New(port int, rt *router.Router, log zerolog.Logger) (*Server, error) {
	if rt == nil {
		return nil, errors.New("router must not be nil")
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errorHandler

	e.Pre(middleware.RemoveTrailingSlash())
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit(maxBodySize))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogLatency: true,
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			log.Info().
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Int64("latency_ms", v.Latency.Milliseconds()).
				Err(v.Error).
				Msg("request")
			return nil
		},
	}))

	srv := &Server{
		router:  rt,
		app:     e,
		log:     log,
		address: fmt.Sprintf(":%d", port),
	}

	srv.registerRoutes()

	return srv, nil
}

// Run starts the HTTP server and blocks until the context is cancelled.
// WriteTimeout is deliberately unset so long-lived SSE responses are not
// cut off mid-stream.
func (s *Server) Run(ctx context.Context) error {
	s.log.Info().Str("addr", s.address).Msg("starting server")

	httpServer := &http.Server{
		Addr:        s.address,
		Handler:     s.app,
		ReadTimeout: readTimeout,
		IdleTimeout: idleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.app.StartServer(httpServer); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
		defer cancel()
		if err := s.app.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.log.Info().Msg("server shutdown complete")
		return nil
	case err := <-errCh:
		return err
	}
}

// Handler exposes the echo application for tests.
func (s *Server) Handler() http.Handler {
	return s.app
}

func (s *Server) registerRoutes() {
	s.app.GET("/health", s.handleHealth)
	s.app.POST("/chat", s.handleChat)
	s.app.POST("/chat/stream", s.handleChatStream)
	s.app.POST("/fim", s.handleFIM)
	s.app.GET("/chat/sessions", s.handleListSessions)
	s.app.GET("/chat/sessions/:id", s.handleGetSession)
}

// requestError is a handler-level failure with a fixed HTTP status.
type requestError struct {
	Status     int
	Message    string
	RetryAfter time.Duration
}

func (e requestError) Error() string {
	return e.Message
}

type errorBody struct {
	Error string `json:"error"`
}

func errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var reqErr requestError
	if errors.As(err, &reqErr) {
		if reqErr.RetryAfter > 0 {
			c.Response().Header().Set("Retry-After",
				fmt.Sprintf("%d", int(reqErr.RetryAfter.Seconds())))
		}
		_ = c.JSON(reqErr.Status, errorBody{Error: reqErr.Message})
		return
	}

	var echoErr *echo.HTTPError
	if errors.As(err, &echoErr) {
		_ = c.JSON(echoErr.Code, errorBody{Error: fmt.Sprintf("%v", echoErr.Message)})
		return
	}

	_ = c.JSON(http.StatusInternalServerError, errorBody{Error: "internal server error"})
}

// toHTTPError maps gateway error kinds onto HTTP statuses.
func toHTTPError(err error) error {
	if errors.Is(err, provider.ErrUnknownProvider) {
		return requestError{Status: http.StatusBadRequest, Message: err.Error()}
	}

	var pe *provider.Error
	if errors.As(err, &pe) {
		switch pe.Kind {
		case provider.KindInvalidRequest:
			return requestError{Status: http.StatusBadRequest, Message: pe.Message}
		case provider.KindRateLimited:
			return requestError{
				Status:     http.StatusTooManyRequests,
				Message:    pe.Message,
				RetryAfter: pe.RetryAfter,
			}
		case provider.KindUpstreamTimeout:
			return requestError{Status: http.StatusGatewayTimeout, Message: pe.Message}
		default:
			return requestError{Status: http.StatusBadGateway, Message: pe.Message}
		}
	}

	return requestError{Status: http.StatusBadGateway, Message: err.Error()}
}
