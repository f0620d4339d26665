// Package client talks to a running splitgoat server over its JSON API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/headline-goat/splitgoat/internal/experiment"
	"github.com/headline-goat/splitgoat/internal/server"
)

// ErrNotFound is returned when the server answers 404.
var ErrNotFound = errors.New("not found")

// APIError is a non-2xx answer from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error {
	if e.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	return nil
}

type Client struct {
	baseURL string
	http    *http.Client
}

func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *Client) Health(ctx context.Context) (server.HealthResponse, error) {
	var resp server.HealthResponse
	err := c.do(ctx, http.MethodGet, "/health", nil, &resp)
	return resp, err
}

func (c *Client) ListExperiments(ctx context.Context) ([]experiment.Experiment, error) {
	var resp struct {
		Experiments []experiment.Experiment `json:"experiments"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/experiments", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Experiments, nil
}

// CreateExperiment gets or creates id. cfg is ignored by the server when the
// experiment already exists.
func (c *Client) CreateExperiment(ctx context.Context, id string, cfg experiment.Config) (experiment.Experiment, error) {
	var exp experiment.Experiment
	err := c.do(ctx, http.MethodPost, "/api/experiments", server.CreateExperimentRequest{ID: id, Config: cfg}, &exp)
	return exp, err
}

func (c *Client) GetExperiment(ctx context.Context, id string) (experiment.Experiment, error) {
	var exp experiment.Experiment
	err := c.do(ctx, http.MethodGet, "/api/experiments/"+url.PathEscape(id), nil, &exp)
	return exp, err
}

func (c *Client) UpdateStatus(ctx context.Context, id string, status experiment.Status) error {
	return c.do(ctx, http.MethodPut, "/api/experiments/"+url.PathEscape(id)+"/status",
		server.UpdateStatusRequest{Status: string(status)}, nil)
}

func (c *Client) GetVariant(ctx context.Context, id, userID string) (experiment.Variant, error) {
	var resp server.VariantResponse
	path := "/api/experiments/" + url.PathEscape(id) + "/variant?user_id=" + url.QueryEscape(userID)
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return "", err
	}
	return resp.Variant, nil
}

func (c *Client) TrackConversion(ctx context.Context, id, userID string, variant experiment.Variant, ev experiment.Event) (server.ConversionResponse, error) {
	var resp server.ConversionResponse
	err := c.do(ctx, http.MethodPost, "/api/experiments/"+url.PathEscape(id)+"/conversions", server.ConversionRequest{
		UserID:     userID,
		Variant:    string(variant),
		EventType:  ev.EventType,
		EventValue: ev.Value,
		Metadata:   ev.Metadata,
	}, &resp)
	return resp, err
}

func (c *Client) Results(ctx context.Context, id string) (server.ResultsResponse, error) {
	var resp server.ResultsResponse
	err := c.do(ctx, http.MethodGet, "/api/experiments/"+url.PathEscape(id)+"/results", nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach server at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// decodeError reads echo's {"message": ...} error body, falling back to the
// status text.
func decodeError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}

	var body struct {
		Message string `json:"message"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if json.Unmarshal(raw, &body) == nil && body.Message != "" {
		apiErr.Message = body.Message
	}
	return apiErr
}
