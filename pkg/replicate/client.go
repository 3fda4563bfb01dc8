// Package replicate adapts the Replicate predictions API to the
// llm.Client contract. A call creates a prediction, polls it to a
// terminal state, then drains the output, which may arrive as a sequence
// of text fragments.
package replicate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// Default base URL for the Replicate v1 API.
const defaultBaseURL = "https://api.replicate.com/v1"

// Client defines the Replicate API operations the adapter uses.
type Client interface {
	CreatePrediction(ctx context.Context, req PredictionRequest) (*Prediction, error)
	GetPrediction(ctx context.Context, id string) (*Prediction, error)
}

// PredictionRequest is the body for POST /predictions.
type PredictionRequest struct {
	Version string          `json:"version"`
	Input   PredictionInput `json:"input"`
}

// PredictionInput carries the prompt parameters for a language model
// prediction.
type PredictionInput struct {
	Prompt       string  `json:"prompt"`
	SystemPrompt string  `json:"system_prompt,omitempty"`
	Temperature  float64 `json:"temperature,omitempty"`
	MaxNewTokens int     `json:"max_new_tokens,omitempty"`
}

// Prediction is the resource returned by the predictions endpoints.
// Output shape depends on the model, so it stays raw until drained.
type Prediction struct {
	ID      string          `json:"id"`
	Version string          `json:"version"`
	Status  string          `json:"status"`
	Output  json.RawMessage `json:"output"`
	Error   string          `json:"error"`
	Metrics Metrics         `json:"metrics"`
}

// Metrics reports prediction runtime.
type Metrics struct {
	PredictTime float64 `json:"predict_time"`
}

// Terminal reports whether the prediction has finished, successfully or
// not.
func (p *Prediction) Terminal() bool {
	switch p.Status {
	case "succeeded", "failed", "canceled":
		return true
	}
	return false
}

// APIError is returned when Replicate responds with a non-2xx status.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("replicate: HTTP %d: %s", e.StatusCode, e.Body)
}

// Option configures the httpClient.
type Option func(*httpClient)

// WithBaseURL overrides the default base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient sets a custom *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// httpClient implements Client using net/http.
type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

// NewClient creates a new Replicate client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 60 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) CreatePrediction(ctx context.Context, req PredictionRequest) (*Prediction, error) {
	var resp Prediction
	if err := c.post(ctx, "/predictions", req, &resp); err != nil {
		return nil, eris.Wrap(err, "replicate: create prediction")
	}
	return &resp, nil
}

func (c *httpClient) GetPrediction(ctx context.Context, id string) (*Prediction, error) {
	var resp Prediction
	if err := c.get(ctx, fmt.Sprintf("/predictions/%s", id), &resp); err != nil {
		return nil, eris.Wrap(err, fmt.Sprintf("replicate: get prediction %s", id))
	}
	return &resp, nil
}

func (c *httpClient) post(ctx context.Context, path string, body any, out any) error {
	buf, err := json.Marshal(body)
	if err != nil {
		return eris.Wrap(err, "marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(buf))
	if err != nil {
		return eris.Wrap(err, "create request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	return c.do(req, out)
}

func (c *httpClient) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return eris.Wrap(err, "create request")
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	return c.do(req, out)
}

func (c *httpClient) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return eris.Wrap(err, "execute request")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return eris.Wrap(err, "read response")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return eris.Wrap(err, "unmarshal response")
	}
	return nil
}
