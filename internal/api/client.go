package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// Error is the single failure shape returned by the client. Error() yields
// the human-readable message only.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// Client is the request facade shared by every feature area.
type Client struct {
	http   *resty.Client
	logger *zap.Logger
}

func NewClient(baseURL string, timeout time.Duration, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &Client{
		http:   httpClient,
		logger: logger.Named("api"),
	}
}

// Do performs method against path. A nil body sends no payload; a nil out
// discards the response body after checking the status. Any failure is
// returned as *Error.
func (c *Client) Do(ctx context.Context, method, path string, query map[string]string, body, out any) error {
	req := c.http.R().SetContext(ctx)
	if body != nil {
		req.SetBody(body)
	}
	if len(query) > 0 {
		req.SetQueryParams(query)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		c.logger.Debug("request failed", zap.String("method", method), zap.String("path", path), zap.Error(err))
		return &Error{Message: err.Error()}
	}

	if !resp.IsSuccess() {
		apiErr := &Error{Status: resp.StatusCode(), Message: errorMessage(resp.StatusCode(), resp.Body())}
		c.logger.Debug("backend returned non-success status",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status_code", apiErr.Status),
			zap.String("message", apiErr.Message),
		)
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return &Error{Status: resp.StatusCode(), Message: fmt.Sprintf("invalid JSON response: %v", err)}
	}
	return nil
}

// errorMessage prefers the "detail" then "message" field of a JSON error body.
func errorMessage(status int, body []byte) string {
	fallback := fmt.Sprintf("HTTP error %d", status)
	var payload struct {
		Detail  json.RawMessage `json:"detail"`
		Message string          `json:"message"`
	}
	if len(body) == 0 || json.Unmarshal(body, &payload) != nil {
		return fallback
	}
	var detail string
	if len(payload.Detail) > 0 && json.Unmarshal(payload.Detail, &detail) == nil && detail != "" {
		return detail
	}
	if payload.Message != "" {
		return payload.Message
	}
	return fallback
}

// Health calls GET /health; callers bound it with ctx.
func (c *Client) Health(ctx context.Context) error {
	return c.Do(ctx, http.MethodGet, "/health", nil, nil, nil)
}
