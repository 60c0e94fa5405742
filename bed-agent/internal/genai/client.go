package genai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// Schema is the response-schema subset understood by the endpoint.
type Schema struct {
	Type       string             `json:"type"`
	Properties map[string]*Schema `json:"properties,omitempty"`
	Items      *Schema            `json:"items,omitempty"`
	Enum       []string           `json:"enum,omitempty"`
	Required   []string           `json:"required,omitempty"`
}

// Turn is one prior message of a conversation. Role is "user" or "model".
type Turn struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

type Request struct {
	SystemInstruction string
	History           []Turn
	Content           string
	// ResponseSchema switches the call to structured JSON output. Nil means plain text.
	ResponseSchema *Schema
	Temperature    *float64
}

// Generator is a single-attempt call to a generative text endpoint.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
	Model() string
}

type ClientConfig struct {
	BaseURL    string
	APIKey     string
	Model      string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// Client talks to a Gemini-compatible generateContent endpoint.
type Client struct {
	http    *resty.Client
	model   string
	timeout time.Duration
	logger  *zap.Logger
}

func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("genai base url required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("genai model required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	var rc *resty.Client
	if cfg.HTTPClient != nil {
		rc = resty.NewWithClient(cfg.HTTPClient)
	} else {
		rc = resty.New()
	}
	rc.SetBaseURL(strings.TrimSuffix(cfg.BaseURL, "/")).
		SetTimeout(timeout).
		SetRetryCount(0).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetHeader("x-goog-api-key", cfg.APIKey)

	return &Client{http: rc, model: cfg.Model, timeout: timeout, logger: logger}, nil
}

func (c *Client) Model() string { return c.model }

type part struct {
	Text string `json:"text"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type generationConfig struct {
	Temperature      *float64 `json:"temperature,omitempty"`
	ResponseMimeType string   `json:"responseMimeType,omitempty"`
	ResponseSchema   *Schema  `json:"responseSchema,omitempty"`
}

type generateRequest struct {
	SystemInstruction *content         `json:"systemInstruction,omitempty"`
	Contents          []content        `json:"contents"`
	GenerationConfig  generationConfig `json:"generationConfig"`
}

type generateResponse struct {
	Candidates []struct {
		Content      content `json:"content"`
		FinishReason string  `json:"finishReason"`
	} `json:"candidates"`
}

// Generate performs exactly one call bounded by the client timeout. Every failure is a
// *TransportFailure or a *SchemaViolation.
func (c *Client) Generate(ctx context.Context, req Request) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	contents := make([]content, 0, len(req.History)+1)
	for _, t := range req.History {
		contents = append(contents, content{Role: t.Role, Parts: []part{{Text: t.Text}}})
	}
	contents = append(contents, content{Role: "user", Parts: []part{{Text: req.Content}}})
	body := generateRequest{
		Contents:         contents,
		GenerationConfig: generationConfig{Temperature: req.Temperature},
	}
	if req.SystemInstruction != "" {
		body.SystemInstruction = &content{Parts: []part{{Text: req.SystemInstruction}}}
	}
	if req.ResponseSchema != nil {
		body.GenerationConfig.ResponseMimeType = "application/json"
		body.GenerationConfig.ResponseSchema = req.ResponseSchema
	}

	started := time.Now()
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("model", c.model).
		SetBody(body).
		Post("/v1beta/models/{model}:generateContent")
	if err != nil {
		c.logger.Warn("genai call failed", zap.String("model", c.model), zap.Duration("elapsed", time.Since(started)), zap.Error(err))
		return "", &TransportFailure{Op: "generate", Err: err}
	}
	if resp.IsError() {
		c.logger.Warn("genai call rejected", zap.String("model", c.model), zap.Int("status", resp.StatusCode()))
		return "", &TransportFailure{Op: "generate", Err: fmt.Errorf("endpoint returned %s", resp.Status())}
	}

	var parsed generateResponse
	if err := json.Unmarshal(resp.Body(), &parsed); err != nil {
		return "", &SchemaViolation{Reason: "decode envelope", Err: err}
	}
	if len(parsed.Candidates) == 0 {
		return "", &TransportFailure{Op: "generate", Err: errors.New("endpoint returned no candidates")}
	}
	var sb strings.Builder
	for _, p := range parsed.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", &SchemaViolation{Reason: "empty response text"}
	}
	c.logger.Debug("genai call completed", zap.String("model", c.model), zap.Duration("elapsed", time.Since(started)))
	return text, nil
}

// Unavailable is the Generator used when no endpoint is configured; every call fails
// as a transport failure so callers take their fallback path.
type Unavailable struct{}

func (Unavailable) Generate(context.Context, Request) (string, error) {
	return "", &TransportFailure{Op: "generate", Err: ErrNotConfigured}
}

func (Unavailable) Model() string { return "none" }

// DecodeStrict decodes a single JSON document into v, rejecting unknown fields and
// trailing data. Failures are *SchemaViolation.
func DecodeStrict(text string, v interface{}) error {
	dec := json.NewDecoder(bytes.NewReader([]byte(stripFence(text))))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return &SchemaViolation{Reason: "decode response", Err: err}
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return &SchemaViolation{Reason: "trailing data after response object"}
	}
	return nil
}

// stripFence removes a markdown code fence some models wrap JSON in.
func stripFence(text string) string {
	t := strings.TrimSpace(text)
	if !strings.HasPrefix(t, "```") {
		return t
	}
	t = strings.TrimPrefix(t, "```")
	t = strings.TrimPrefix(t, "json")
	t = strings.TrimSuffix(strings.TrimSpace(t), "```")
	return strings.TrimSpace(t)
}
