// Package nlu wraps a remote natural-language-understanding API.
package nlu

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

const (
	DefaultModel = "gemini-2.0-flash"

	systemPrompt = `You are an intent classifier for chat messages.
Reply with a single JSON object: {"intent": string, "confidence": number between 0 and 1, "entities": object of string to string}.
Use "none" as the intent when nothing applies.`
)

var (
	// ErrMissingToken is returned when no API key is configured.
	ErrMissingToken = errors.New("nlu: api key is required")
	// ErrMalformedResponse is returned when the model output is not the expected JSON.
	ErrMalformedResponse = errors.New("nlu: malformed model response")
)

// Understanding is the interpretation of a piece of text.
type Understanding struct {
	Text       string            `json:"text"`
	Intent     string            `json:"intent"`
	Confidence float64           `json:"confidence"`
	Entities   map[string]string `json:"entities,omitempty"`
}

// Understander interprets free text.
type Understander interface {
	Understand(ctx context.Context, text string) (*Understanding, error)
}

// Config holds the settings needed to reach the NLU backend.
type Config struct {
	APIKey  string
	Model   string
	BaseURL string
}

// Client is an Understander backed by the Gemini API.
type Client struct {
	genai *genai.Client
	model string
}

// NewClient constructs a Client. It does not contact the API.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrMissingToken
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = DefaultModel
	}

	clientCfg := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	gc, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("nlu: failed to create genai client: %w", err)
	}
	return &Client{genai: gc, model: model}, nil
}

// Model returns the model name requests are sent to.
func (c *Client) Model() string { return c.model }

// Understand asks the model to classify text.
func (c *Client) Understand(ctx context.Context, text string) (*Understanding, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return &Understanding{Intent: "none"}, nil
	}

	resp, err := c.genai.Models.GenerateContent(ctx, c.model, genai.Text(text), &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(systemPrompt, genai.RoleUser),
		ResponseMIMEType:  "application/json",
	})
	if err != nil {
		return nil, fmt.Errorf("nlu: generate content: %w", err)
	}

	u, err := parseUnderstanding(resp.Text())
	if err != nil {
		return nil, err
	}
	u.Text = text
	return u, nil
}

func parseUnderstanding(raw string) (*Understanding, error) {
	raw = strings.TrimSpace(raw)
	// Some models wrap JSON in a fenced block even when asked not to.
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("%w: empty output", ErrMalformedResponse)
	}

	var u Understanding
	if err := json.Unmarshal([]byte(raw), &u); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if u.Intent == "" {
		u.Intent = "none"
	}
	return &u, nil
}
