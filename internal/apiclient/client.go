// Package apiclient is the typed wrapper around the storefront REST API.
//
// Every call attaches a request id and, when present, the bearer token.
// Endpoints that need a token short-circuit with model.ErrAuthRequired and an
// events.AuthRequired notification instead of issuing a doomed request.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"storefront/internal/config"
	"storefront/internal/events"
	"storefront/internal/model"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const maxResponseBytes = 4 << 20

// Client talks to the REST API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	bus        events.Publisher
	logger     zerolog.Logger
}

// New creates a client. A nil httpClient gets one with cfg.Timeout.
func New(cfg config.APIConfig, httpClient *http.Client, bus events.Publisher, logger zerolog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	if bus == nil {
		bus = events.Discard
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: httpClient,
		bus:        bus,
		logger:     logger.With().Str("component", "api-client").Logger(),
	}
}

type call struct {
	method       string
	path         string
	token        string
	body         interface{}
	authRequired bool
}

func (c *Client) do(ctx context.Context, in call, out interface{}) error {
	if in.authRequired && in.token == "" {
		c.bus.Publish(ctx, events.AuthRequired{Path: in.path, Reason: "missing token"})
		return model.ErrAuthRequired
	}

	var body io.Reader
	if in.body != nil {
		payload, err := json.Marshal(in.body)
		if err != nil {
			return fmt.Errorf("failed to encode %s %s request: %w", in.method, in.path, err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, in.method, c.baseURL+in.path, body)
	if err != nil {
		return fmt.Errorf("failed to build %s %s request: %w", in.method, in.path, err)
	}

	requestID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if in.token != "" {
		req.Header.Set("Authorization", "Bearer "+in.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn().
			Err(err).
			Str("method", in.method).
			Str("path", in.path).
			Str("request_id", requestID).
			Msg("api request failed")
		return fmt.Errorf("%s %s: %w", in.method, in.path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("failed to read %s %s response: %w", in.method, in.path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := decodeError(resp.StatusCode, data, requestID)
		if resp.StatusCode == http.StatusUnauthorized {
			c.bus.Publish(ctx, events.AuthRequired{Path: in.path, Reason: apiErr.Message})
		}
		c.logger.Debug().
			Str("method", in.method).
			Str("path", in.path).
			Int("status", resp.StatusCode).
			Str("code", apiErr.Code).
			Str("request_id", requestID).
			Msg("api rejected request")
		return apiErr
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}

	if err := json.Unmarshal(unwrapEnvelope(data), out); err != nil {
		return fmt.Errorf("failed to decode %s %s response: %w", in.method, in.path, err)
	}

	return nil
}

// unwrapEnvelope strips a {"success":..,"data":..} wrapper when the API uses one.
func unwrapEnvelope(data []byte) []byte {
	var env map[string]json.RawMessage
	if err := json.Unmarshal(data, &env); err != nil {
		return data
	}
	inner, ok := env["data"]
	if !ok || len(env) > 3 {
		return data
	}
	for key := range env {
		if key != "data" && key != "success" && key != "message" {
			return data
		}
	}
	return inner
}
