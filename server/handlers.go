package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/axelhq/axel/provider"
	"github.com/axelhq/axel/router"
	"github.com/axelhq/axel/session"
)

const defaultSessionListLimit = 50

// chatRequest is the wire form of a conversational request.
type chatRequest struct {
	Messages    []provider.Message `json:"messages"`
	Provider    string             `json:"provider,omitempty"`
	SessionID   string             `json:"session_id,omitempty"`
	Model       string             `json:"model,omitempty"`
	Temperature *float64           `json:"temperature,omitempty"`
	MaxTokens   *int               `json:"max_tokens,omitempty"`
}

func (r *chatRequest) toRouter() *router.ChatRequest {
	return &router.ChatRequest{
		Messages:  r.Messages,
		Provider:  r.Provider,
		SessionID: r.SessionID,
		Options: router.Options{
			Model:       r.Model,
			Temperature: r.Temperature,
			MaxTokens:   r.MaxTokens,
		},
	}
}

// chatResponse is the wire form of a synchronous chat reply.
type chatResponse struct {
	Content   string          `json:"content"`
	SessionID string          `json:"session_id"`
	Usage     *provider.Usage `json:"usage,omitempty"`
}

// fimRequest is the wire form of a fill-in-the-middle request.
type fimRequest struct {
	Prompt      string   `json:"prompt"`
	Suffix      string   `json:"suffix,omitempty"`
	Provider    string   `json:"provider,omitempty"`
	Model       string   `json:"model,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
	MaxTokens   *int     `json:"max_tokens,omitempty"`
}

// fimResponse is the wire form of a fill-in-the-middle reply.
type fimResponse struct {
	Content string `json:"content"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleChat(c echo.Context) error {
	var req chatRequest
	if err := decodeRequestBody(c, &req); err != nil {
		return err
	}

	result, err := s.router.Chat(c.Request().Context(), req.toRouter())
	if err != nil {
		return toHTTPError(err)
	}

	return c.JSON(http.StatusOK, chatResponse{
		Content:   result.Content,
		SessionID: result.SessionID,
		Usage:     result.Usage,
	})
}

func (s *Server) handleFIM(c echo.Context) error {
	var req fimRequest
	if err := decodeRequestBody(c, &req); err != nil {
		return err
	}

	result, err := s.router.FIM(c.Request().Context(), &router.FIMRequest{
		Prompt:   req.Prompt,
		Suffix:   req.Suffix,
		Provider: req.Provider,
		Options: router.Options{
			Model:       req.Model,
			Temperature: req.Temperature,
			MaxTokens:   req.MaxTokens,
		},
	})
	if err != nil {
		return toHTTPError(err)
	}

	return c.JSON(http.StatusOK, fimResponse{Content: result.Content})
}

// streamDelta is one incremental SSE payload.
type streamDelta struct {
	Content   string `json:"content"`
	SessionID string `json:"session_id"`
}

// streamUsage is the usage SSE payload delivered before [DONE].
type streamUsage struct {
	Usage provider.Usage `json:"usage"`
}

// streamError is the terminal SSE payload for a failed stream.
type streamError struct {
	Error string `json:"error"`
	Done  bool   `json:"done"`
}

func (s *Server) handleChatStream(c echo.Context) error {
	var req chatRequest
	if err := decodeRequestBody(c, &req); err != nil {
		return err
	}

	// Resolution and validation errors surface as plain HTTP statuses;
	// only errors after the stream opens travel as SSE payloads.
	handle, err := s.router.ChatStream(c.Request().Context(), req.toRouter())
	if err != nil {
		return toHTTPError(err)
	}

	writer := c.Response().Writer
	flusher, ok := writer.(http.Flusher)
	if !ok {
		return requestError{
			Status:  http.StatusInternalServerError,
			Message: "server does not support streaming responses",
		}
	}

	header := c.Response().Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	c.Response().WriteHeader(http.StatusOK)

	for ev := range handle.Events {
		switch {
		case ev.Err != nil:
			writeSSE(writer, streamError{Error: ev.Err.Error(), Done: true})
			flusher.Flush()
			return nil
		case ev.Done:
			if _, err := fmt.Fprint(writer, "data: [DONE]\n\n"); err != nil {
				return nil
			}
			flusher.Flush()
			return nil
		case ev.Usage != nil:
			writeSSE(writer, streamUsage{Usage: *ev.Usage})
			flusher.Flush()
		default:
			if err := writeSSE(writer, streamDelta{Content: ev.Delta, SessionID: handle.SessionID}); err != nil {
				// Client went away; the relay notices via context.
				return nil
			}
			flusher.Flush()
		}
	}

	// Channel closed without a terminal event: the client cancelled.
	return nil
}

func (s *Server) handleListSessions(c echo.Context) error {
	summaries, err := s.router.Sessions().List(c.Request().Context(), defaultSessionListLimit)
	if err != nil {
		return toHTTPError(err)
	}
	if summaries == nil {
		summaries = []session.Summary{}
	}
	return c.JSON(http.StatusOK, map[string]any{"sessions": summaries})
}

func (s *Server) handleGetSession(c echo.Context) error {
	sess, err := s.router.Sessions().Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return requestError{Status: http.StatusNotFound, Message: "session not found"}
		}
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, sess)
}

func writeSSE(w io.Writer, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal SSE payload: %w", err)
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return fmt.Errorf("write SSE data: %w", err)
	}
	return nil
}

func decodeRequestBody[T any](c echo.Context, target *T) error {
	req := c.Request()
	defer func() { _ = req.Body.Close() }()

	decoder := json.NewDecoder(req.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, io.EOF) {
			return requestError{Status: http.StatusBadRequest, Message: "request body is required"}
		}
		return requestError{Status: http.StatusBadRequest, Message: fmt.Sprintf("invalid JSON payload: %v", err)}
	}

	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return requestError{Status: http.StatusBadRequest, Message: "request body must contain a single JSON object"}
	}
	return nil
}
